// Package metrics exposes Prometheus counters/gauges for the
// scheduler, the matching engine, and the bot fleet at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_job_runs_total",
			Help: "Scheduler job runs by job name and final status.",
		},
		[]string{"job", "status"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "exchange_job_duration_seconds",
			Help: "Scheduler job wall-clock duration.",
		},
		[]string{"job"},
	)

	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_orders_placed_total",
			Help: "Orders placed by side and order type.",
		},
		[]string{"side", "order_type"},
	)

	TradesExecuted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exchange_trades_executed_total",
			Help: "Trades executed across all players.",
		},
	)

	TradeVolume = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exchange_trade_volume_shares_total",
			Help: "Total shares traded across all players.",
		},
	)

	BotActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_bot_actions_total",
			Help: "Bot fleet strategy invocations by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	ContestsSettled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exchange_contests_settled_total",
			Help: "Contests settled.",
		},
	)

	AccrualSharesGranted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exchange_accrual_shares_granted_total",
			Help: "Shares granted by the accrual engine across all claims.",
		},
	)
)

func init() {
	prometheus.MustRegister(JobRuns, JobDuration)
	prometheus.MustRegister(OrdersPlaced, TradesExecuted, TradeVolume)
	prometheus.MustRegister(BotActions, ContestsSettled, AccrualSharesGranted)
}

// RecordJob is called once per scheduler tick with the job's name,
// final status, and wall-clock duration in seconds.
func RecordJob(jobName, status string, seconds float64) {
	JobRuns.WithLabelValues(jobName, status).Inc()
	JobDuration.WithLabelValues(jobName).Observe(seconds)
}

// RecordBotAction is called once per bot strategy invocation; outcome
// is "ok" or "error".
func RecordBotAction(strategy, outcome string) {
	BotActions.WithLabelValues(strategy, outcome).Inc()
}
