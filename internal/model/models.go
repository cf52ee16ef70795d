// Package model holds the plain data types shared across the exchange:
// users, players, holdings, orders, trades, locks, accrual state,
// contests, games, and the scheduler's job log.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Enums ────────────────────────────────────────────

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type OrderType string

const (
	TypeLimit  OrderType = "LIMIT"
	TypeMarket OrderType = "MARKET"
)

type OrderStatus string

const (
	StatusOpen      OrderStatus = "OPEN"
	StatusPartial   OrderStatus = "PARTIAL"
	StatusFilled    OrderStatus = "FILLED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
)

// Terminal reports whether an order status can never change again.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

type LockRefType string

const (
	RefOrder   LockRefType = "order"
	RefContest LockRefType = "contest"
)

type ContestStatus string

const (
	ContestOpen      ContestStatus = "open"
	ContestLive      ContestStatus = "live"
	ContestCompleted ContestStatus = "completed"
)

type GameStatus string

const (
	GameScheduled  GameStatus = "scheduled"
	GameInProgress GameStatus = "inprogress"
	GameCompleted  GameStatus = "completed"
)

// NormalizeGameStatus maps provider-specific status strings onto the
// three-value set the core understands.
func NormalizeGameStatus(raw string) GameStatus {
	switch raw {
	case "final", "completed":
		return GameCompleted
	case "live", "inprogress", "in-progress":
		return GameInProgress
	default:
		return GameScheduled
	}
}

type JobStatus string

const (
	JobRunning  JobStatus = "running"
	JobSuccess  JobStatus = "success"
	JobDegraded JobStatus = "degraded"
	JobFailed   JobStatus = "failed"
)

// ── Core domain objects ──────────────────────────────

type User struct {
	ID                  string          `json:"id"`
	Username            string          `json:"username"`
	Balance             decimal.Decimal `json:"balance"`
	IsPremium           bool            `json:"is_premium"`
	PremiumExpiresAt    *time.Time      `json:"premium_expires_at,omitempty"`
	IsAdmin             bool            `json:"is_admin"`
	IsBot               bool            `json:"is_bot"`
	LifetimeSharesMined int64           `json:"lifetime_shares_mined"`
	CreatedAt           time.Time       `json:"created_at"`
}

type Player struct {
	ID                   string           `json:"id"`
	ExternalID           string           `json:"external_id"`
	Name                 string           `json:"name"`
	Team                 string           `json:"team"`
	Position             string           `json:"position"`
	IsActive             bool             `json:"is_active"`
	IsEligibleForAccrual bool             `json:"is_eligible_for_accrual"`
	LastTradePrice       *decimal.Decimal `json:"last_trade_price"`
	Volume24h            int64            `json:"volume_24h"`
	PriceChange24h       decimal.Decimal  `json:"price_change_24h"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

type Holding struct {
	UserID         string          `json:"user_id"`
	PlayerID       string          `json:"player_id"`
	Quantity       int             `json:"quantity"`
	AvgCostBasis   decimal.Decimal `json:"avg_cost_basis"`
	TotalCostBasis decimal.Decimal `json:"total_cost_basis"`
}

type Order struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	PlayerID       string           `json:"player_id"`
	Side           OrderSide        `json:"side"`
	OrderType      OrderType        `json:"order_type"`
	Quantity       int              `json:"quantity"`
	FilledQuantity int              `json:"filled_quantity"`
	LimitPrice     *decimal.Decimal `json:"limit_price"`
	LockedAmount   decimal.Decimal  `json:"locked_amount"`
	LockedShares   int              `json:"locked_shares"`
	Status         OrderStatus      `json:"status"`
	Seq            int64            `json:"seq"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type Trade struct {
	ID          string          `json:"id"`
	PlayerID    string          `json:"player_id"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Seq         int64           `json:"seq"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

type BalanceLock struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	RefType   LockRefType     `json:"ref_type"`
	RefID     string          `json:"ref_id"`
	CreatedAt time.Time       `json:"created_at"`
}

type HoldingsLock struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	PlayerID  string      `json:"player_id"`
	Quantity  int         `json:"quantity"`
	RefType   LockRefType `json:"ref_type"`
	RefID     string      `json:"ref_id"`
	CreatedAt time.Time   `json:"created_at"`
}

type Accrual struct {
	UserID            string     `json:"user_id"`
	SharesAccumulated int        `json:"shares_accumulated"`
	ResidualMs        int64      `json:"residual_ms"`
	LastAccruedAt     time.Time  `json:"last_accrued_at"`
	LastClaimedAt     *time.Time `json:"last_claimed_at,omitempty"`
	CapReachedAt      *time.Time `json:"cap_reached_at,omitempty"`
}

type AccrualSplit struct {
	UserID        string `json:"user_id"`
	PlayerID      string `json:"player_id"`
	SharesPerHour int    `json:"shares_per_hour"`
}

type Contest struct {
	ID                 string          `json:"id"`
	GameDay            string          `json:"game_day"` // YYYY-MM-DD, America/New_York civil date
	Status             ContestStatus   `json:"status"`
	StartsAt           time.Time       `json:"starts_at"`
	EndsAt             time.Time       `json:"ends_at"`
	EntryFee           decimal.Decimal `json:"entry_fee"`
	EntryCount         int             `json:"entry_count"`
	TotalPrizePool     decimal.Decimal `json:"total_prize_pool"`
	TotalSharesEntered int             `json:"total_shares_entered"`
	CreatedAt          time.Time       `json:"created_at"`
}

type ContestEntry struct {
	ID                 string          `json:"id"`
	ContestID          string          `json:"contest_id"`
	UserID             string          `json:"user_id"`
	TotalSharesEntered int             `json:"total_shares_entered"`
	TotalScore         decimal.Decimal `json:"total_score"`
	Rank               *int            `json:"rank,omitempty"`
	Payout             decimal.Decimal `json:"payout"`
	CreatedAt          time.Time       `json:"created_at"`
}

type ContestLineup struct {
	ID            string          `json:"id"`
	EntryID       string          `json:"entry_id"`
	PlayerID      string          `json:"player_id"`
	SharesEntered int             `json:"shares_entered"`
	FantasyPoints decimal.Decimal `json:"fantasy_points"`
	EarnedScore   decimal.Decimal `json:"earned_score"`
}

type Game struct {
	ID         string     `json:"id"`
	ExternalID string     `json:"external_id"`
	HomeTeam   string     `json:"home_team"`
	AwayTeam   string     `json:"away_team"`
	StartsAt   time.Time  `json:"starts_at"`
	Status     GameStatus `json:"status"`
	GameDay    string     `json:"game_day"`
}

type PlayerGameStat struct {
	PlayerID string `json:"player_id"`
	GameID   string `json:"game_id"`
	Pts      int    `json:"pts"`
	ThreePM  int    `json:"three_pm"`
	Reb      int    `json:"reb"`
	Ast      int    `json:"ast"`
	Stl      int    `json:"stl"`
	Blk      int    `json:"blk"`
	Tov      int    `json:"tov"`
}

// FantasyPoints computes the box-score scoring formula.
func (s PlayerGameStat) FantasyPoints() decimal.Decimal {
	pts := decimal.NewFromInt(int64(s.Pts))
	tpm := decimal.NewFromInt(int64(s.ThreePM)).Mul(decimal.NewFromFloat(0.5))
	reb := decimal.NewFromInt(int64(s.Reb)).Mul(decimal.NewFromFloat(1.25))
	ast := decimal.NewFromInt(int64(s.Ast)).Mul(decimal.NewFromFloat(1.5))
	stl := decimal.NewFromInt(int64(s.Stl)).Mul(decimal.NewFromFloat(2.0))
	blk := decimal.NewFromInt(int64(s.Blk)).Mul(decimal.NewFromFloat(2.0))
	tov := decimal.NewFromInt(int64(s.Tov)).Mul(decimal.NewFromFloat(-0.5))
	total := pts.Add(tpm).Add(reb).Add(ast).Add(stl).Add(blk).Add(tov)

	atLeast10 := 0
	for _, v := range []int{s.Pts, s.Reb, s.Ast, s.Stl, s.Blk} {
		if v >= 10 {
			atLeast10++
		}
	}
	switch {
	case atLeast10 >= 3:
		total = total.Add(decimal.NewFromFloat(3.0))
	case atLeast10 >= 2:
		total = total.Add(decimal.NewFromFloat(1.5))
	}
	return total
}

type JobLog struct {
	ID               int64      `json:"id"`
	JobName          string     `json:"job_name"`
	Status           JobStatus  `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	RecordsProcessed int        `json:"records_processed"`
	ErrorCount       int        `json:"error_count"`
	Message          string     `json:"message,omitempty"`
}

// PortfolioSnapshot is one user's daily standing, persisted by the
// scheduler's portfolio-snapshot job for the leaderboard/history views.
type PortfolioSnapshot struct {
	UserID          string          `json:"user_id"`
	SnapshotDate    string          `json:"snapshot_date"`
	CashBalance     decimal.Decimal `json:"cash_balance"`
	PortfolioValue  decimal.Decimal `json:"portfolio_value"`
	NetWorth        decimal.Decimal `json:"net_worth"`
	CashRank        int             `json:"cash_rank"`
	PortfolioRank   int             `json:"portfolio_rank"`
}

type BotProfile struct {
	UserID                  string          `json:"user_id"`
	Aggressiveness          decimal.Decimal `json:"aggressiveness"` // 0..1
	SpreadPercent           decimal.Decimal `json:"spread_percent"`
	MinOrderSize            int             `json:"min_order_size"`
	MaxOrderSize            int             `json:"max_order_size"`
	MaxDailyOrders          int             `json:"max_daily_orders"`
	MaxDailyVolume          int             `json:"max_daily_volume"`
	ContestEntryBudget      decimal.Decimal `json:"contest_entry_budget"`
	MaxContestEntriesPerDay int             `json:"max_contest_entries_per_day"`
	MinActionCooldownMs     int64           `json:"min_action_cooldown_ms"`
	MaxActionCooldownMs     int64           `json:"max_action_cooldown_ms"`
	LastActionAt            time.Time       `json:"last_action_at"`
	OrdersToday             int             `json:"orders_today"`
	VolumeToday             int             `json:"volume_today"`
	ContestEntriesToday     int             `json:"contest_entries_today"`
	LastResetDate           string          `json:"last_reset_date"` // YYYY-MM-DD UTC
}

// ── API DTOs ─────────────────────────────────────────

type PlaceOrderReq struct {
	Side       OrderSide        `json:"side"`
	OrderType  OrderType        `json:"order_type"`
	Quantity   int              `json:"quantity"`
	LimitPrice *decimal.Decimal `json:"limit_price"`
}

type PlaceOrderResult struct {
	Order             Order           `json:"order"`
	Trades            []Trade         `json:"trades"`
	RequestedQuantity int             `json:"requested_quantity"`
	FilledQuantity    int             `json:"filled_quantity"`
	CancelledQuantity int             `json:"cancelled_quantity"`
	AvgFillPrice      decimal.Decimal `json:"avg_fill_price"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	Reason            string          `json:"reason,omitempty"`
}

type BookLevel struct {
	Price decimal.Decimal `json:"price"`
	Qty   int             `json:"qty"`
}

type BookSnapshot struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}

type LineupEntryReq struct {
	PlayerID      string `json:"player_id"`
	SharesEntered int    `json:"shares_entered"`
}

type EnterContestReq struct {
	Lineup []LineupEntryReq `json:"lineup"`
}
