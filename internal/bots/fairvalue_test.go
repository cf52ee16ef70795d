package bots

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"fantasy-exchange/internal/model"
)

func statLine(pts int) model.PlayerGameStat {
	return model.PlayerGameStat{Pts: pts, Reb: 2, Ast: 1}
}

func toDecimalMap(vals map[string]float64) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(vals))
	for k, v := range vals {
		out[k] = decimal.NewFromFloat(v)
	}
	return out
}

func TestFairValueDefaultsWhenNoHistory(t *testing.T) {
	v := fairValue(nil)
	assert.True(t, v.Equal(decimal.NewFromFloat(defaultFairValue)))
}

func TestFairValueMomentumNeutralWithoutPriorGames(t *testing.T) {
	stats := []model.PlayerGameStat{statLine(20), statLine(18), statLine(22)}
	v := fairValue(stats)
	avg := avgFantasyPoints(stats)
	assert.True(t, v.Equal(avg.Mul(decimal.NewFromFloat(0.5))), "no prior games means momentum stays at 1.0")
}

func TestFairValueMomentumClampedToRange(t *testing.T) {
	// A huge hot streak (last 3) against a cold prior stretch should clamp
	// the momentum multiplier at 1.3 rather than blow past it.
	hot := []model.PlayerGameStat{statLine(60), statLine(60), statLine(60)}
	cold := []model.PlayerGameStat{statLine(1), statLine(1), statLine(1), statLine(1)}
	stats := append(hot, cold...)

	v := fairValue(stats)
	avgAll := avgFantasyPoints(stats)
	maxPossible := avgAll.Mul(decimal.NewFromFloat(0.5)).Mul(decimal.NewFromFloat(1.3))
	assert.True(t, v.LessThanOrEqual(maxPossible.Add(decimal.NewFromFloat(0.01))))
}

func TestTiersFromPopulationSpreadsAcrossBuckets(t *testing.T) {
	vals := map[string]float64{
		"low":    1,
		"mid":    10,
		"high":   19,
		"steady": 10,
	}
	tiers := tiersFromPopulation(toDecimalMap(vals))

	assert.Equal(t, 4, len(tiers))
	for _, tier := range tiers {
		assert.GreaterOrEqual(t, tier, 1)
		assert.LessOrEqual(t, tier, 5)
	}
	// the two identical "mid"/"steady" values must land in the same tier
	assert.Equal(t, tiers["mid"], tiers["steady"])
}

func TestTiersFromPopulationEmptyInput(t *testing.T) {
	tiers := tiersFromPopulation(nil)
	assert.Empty(t, tiers)
}

func TestTiersFromPopulationZeroVariance(t *testing.T) {
	vals := map[string]float64{"a": 5, "b": 5, "c": 5}
	tiers := tiersFromPopulation(toDecimalMap(vals))
	for _, tier := range tiers {
		assert.Equal(t, 3, tier, "zero stddev collapses every player to the center tier")
	}
}
