package bots

import (
	"math"

	"github.com/shopspring/decimal"

	"fantasy-exchange/internal/model"
)

const defaultFairValue = 10.0

// fairValue estimates a player's worth as average fantasy points over the
// last 10 games times 0.5, scaled by a momentum factor comparing the
// last 3 games to the games before them.
func fairValue(recentGames []model.PlayerGameStat) decimal.Decimal {
	if len(recentGames) == 0 {
		return decimal.NewFromFloat(defaultFairValue)
	}

	avgAll := avgFantasyPoints(recentGames)

	last3 := recentGames
	if len(last3) > 3 {
		last3 = last3[:3]
	}
	prior := []model.PlayerGameStat{}
	if len(recentGames) > 3 {
		prior = recentGames[3:]
	}

	momentum := 1.0
	if len(prior) > 0 {
		avgLast3, _ := avgFantasyPoints(last3).Float64()
		avgPrior, _ := avgFantasyPoints(prior).Float64()
		if avgPrior != 0 {
			momentum = clamp(avgLast3/avgPrior, 0.7, 1.3)
		}
	}

	return avgAll.Mul(decimal.NewFromFloat(0.5)).Mul(decimal.NewFromFloat(momentum))
}

func avgFantasyPoints(stats []model.PlayerGameStat) decimal.Decimal {
	if len(stats) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, st := range stats {
		total = total.Add(st.FantasyPoints())
	}
	return total.Div(decimal.NewFromInt(int64(len(stats))))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// tiersFromPopulation buckets every fair value into tier 1-5 by
// z-score over the whole population, centered on tier 3. One
// z-score-wide band around the mean is the simplest mapping that
// produces five non-degenerate buckets on a roughly normal
// fair-value distribution.
func tiersFromPopulation(values map[string]decimal.Decimal) map[string]int {
	tiers := make(map[string]int, len(values))
	if len(values) == 0 {
		return tiers
	}

	floats := make(map[string]float64, len(values))
	sum := 0.0
	for id, v := range values {
		f, _ := v.Float64()
		floats[id] = f
		sum += f
	}
	mean := sum / float64(len(floats))

	variance := 0.0
	for _, f := range floats {
		d := f - mean
		variance += d * d
	}
	variance /= float64(len(floats))
	stddev := math.Sqrt(variance)

	for id, f := range floats {
		z := 0.0
		if stddev > 0 {
			z = (f - mean) / stddev
		}
		tier := 3 + int(math.Round(z))
		if tier < 1 {
			tier = 1
		}
		if tier > 5 {
			tier = 5
		}
		tiers[id] = tier
	}
	return tiers
}
