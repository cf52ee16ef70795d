package accrual

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fantasy-exchange/internal/config"
	"fantasy-exchange/internal/model"
)

func testEngine() *Engine {
	return &Engine{cfg: config.AccrualConfig{
		FreeSharesPerHour:    100,
		PremiumSharesPerHour: 200,
		FreeDailyCap:         2400,
		PremiumDailyCap:      4800,
	}}
}

func TestAccrueGrantsSharesProportionalToElapsedTime(t *testing.T) {
	e := testEngine()
	now := time.Now().UTC()
	user := &model.User{IsPremium: false}
	acc := &model.Accrual{LastAccruedAt: now.Add(-1 * time.Hour)}

	require.NoError(t, e.accrue(user, acc, now))
	assert.Equal(t, 100, acc.SharesAccumulated)
}

func TestAccrueIsIdempotentWithNoElapsedTime(t *testing.T) {
	e := testEngine()
	now := time.Now().UTC()
	user := &model.User{}
	acc := &model.Accrual{LastAccruedAt: now}

	require.NoError(t, e.accrue(user, acc, now))
	assert.Equal(t, 0, acc.SharesAccumulated)
}

func TestAccrueCapsAtDailyLimit(t *testing.T) {
	e := testEngine()
	now := time.Now().UTC()
	user := &model.User{IsPremium: false}
	acc := &model.Accrual{LastAccruedAt: now.Add(-48 * time.Hour)}

	require.NoError(t, e.accrue(user, acc, now))
	assert.Equal(t, e.cfg.FreeDailyCap, acc.SharesAccumulated)
	assert.NotNil(t, acc.CapReachedAt)
}

func TestAccruePremiumUsesPremiumRate(t *testing.T) {
	e := testEngine()
	now := time.Now().UTC()
	user := &model.User{IsPremium: true}
	acc := &model.Accrual{LastAccruedAt: now.Add(-1 * time.Hour)}

	require.NoError(t, e.accrue(user, acc, now))
	assert.Equal(t, 200, acc.SharesAccumulated)
}

func TestAccruePreservesResidualMillis(t *testing.T) {
	e := testEngine()
	now := time.Now().UTC()
	user := &model.User{}
	// 100 shares/hour means one share every 36000ms; 90000ms elapsed
	// should grant 2 shares with 18000ms left over.
	acc := &model.Accrual{LastAccruedAt: now.Add(-90 * time.Second)}

	require.NoError(t, e.accrue(user, acc, now))
	assert.Equal(t, 2, acc.SharesAccumulated)
	assert.Equal(t, int64(18000), acc.ResidualMs)
}
