package contest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fantasy-exchange/internal/model"
)

func TestBurnSharesReducesQuantityKeepingAvgCostBasis(t *testing.T) {
	h := &model.Holding{
		Quantity:       10,
		AvgCostBasis:   decimal.NewFromFloat(2.5),
		TotalCostBasis: decimal.NewFromFloat(25),
	}
	err := burnShares(h, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, h.Quantity)
	assert.True(t, h.AvgCostBasis.Equal(decimal.NewFromFloat(2.5)))
	assert.True(t, h.TotalCostBasis.Equal(decimal.NewFromFloat(15)))
}

func TestBurnSharesNegativeDeltaCreditsBack(t *testing.T) {
	h := &model.Holding{
		Quantity:       6,
		AvgCostBasis:   decimal.NewFromFloat(2.5),
		TotalCostBasis: decimal.NewFromFloat(15),
	}
	err := burnShares(h, -4)
	require.NoError(t, err)
	assert.Equal(t, 10, h.Quantity)
	assert.True(t, h.TotalCostBasis.Equal(decimal.NewFromFloat(25)))
}

func TestBurnSharesToZeroClearsCostBasis(t *testing.T) {
	h := &model.Holding{
		Quantity:       5,
		AvgCostBasis:   decimal.NewFromFloat(3),
		TotalCostBasis: decimal.NewFromFloat(15),
	}
	err := burnShares(h, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Quantity)
	assert.True(t, h.AvgCostBasis.IsZero())
	assert.True(t, h.TotalCostBasis.IsZero())
}

func TestBurnSharesRejectsNegativeResult(t *testing.T) {
	h := &model.Holding{Quantity: 3, AvgCostBasis: decimal.NewFromFloat(1), TotalCostBasis: decimal.NewFromFloat(3)}
	err := burnShares(h, 5)
	assert.Error(t, err)
}

func TestEnterRejectsEmptyLineup(t *testing.T) {
	e := &Engine{}
	_, err := e.Enter(nil, "contest1", "user1", model.EnterContestReq{})
	assert.ErrorIs(t, err, ErrLineupEmpty)
}

func TestEditRejectsEmptyLineup(t *testing.T) {
	e := &Engine{}
	err := e.Edit(nil, "entry1", "user1", model.EnterContestReq{})
	assert.ErrorIs(t, err, ErrLineupEmpty)
}

// TestSplitPoolNeverExceedsPool reproduces the $500-pool, 3-winner case:
// naive decimal.Div (16-digit DivisionPrecision) yields 166.6666666666667,
// which NUMERIC(18,4) would round to 166.6667 per winner — three payouts
// summing to $500.0001, 0.0001 over the pool.
func TestSplitPoolNeverExceedsPool(t *testing.T) {
	pool := decimal.NewFromInt(500)
	winnerCount := 3

	base, extra, remainderUnits := splitPool(pool, winnerCount)

	total := decimal.Zero
	for i := 0; i < winnerCount; i++ {
		payout := base
		if int64(i) < remainderUnits {
			payout = payout.Add(extra)
		}
		total = total.Add(payout)
	}

	assert.True(t, total.Equal(pool), "payouts must sum to exactly the pool, got %s", total)
	assert.True(t, base.Equal(decimal.NewFromFloat(166.6666)))
	assert.Equal(t, int64(2), remainderUnits)
}

func TestSplitPoolEvenDivisionHasNoRemainder(t *testing.T) {
	base, extra, remainderUnits := splitPool(decimal.NewFromInt(100), 4)
	assert.Equal(t, int64(0), remainderUnits)
	assert.True(t, base.Equal(decimal.NewFromInt(25)))
	_ = extra
}

func TestSplitPoolRemainderGoesToTopRanksOnly(t *testing.T) {
	// $10.0003 across 4 winners: base 2.5000, 3 leftover 0.0001 units go
	// to ranks 1-3, rank 4 gets only the base share.
	pool, err := decimal.NewFromString("10.0003")
	require.NoError(t, err)

	base, extra, remainderUnits := splitPool(pool, 4)
	assert.Equal(t, int64(3), remainderUnits)

	payouts := make([]decimal.Decimal, 4)
	total := decimal.Zero
	for i := range payouts {
		payouts[i] = base
		if int64(i) < remainderUnits {
			payouts[i] = payouts[i].Add(extra)
		}
		total = total.Add(payouts[i])
	}
	assert.True(t, total.Equal(pool))
	assert.True(t, payouts[3].Equal(base), "last-ranked winner should not receive a remainder unit")
}
