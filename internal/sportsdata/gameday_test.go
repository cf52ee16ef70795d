package sportsdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGameDayETSameCalendarDayInUTC(t *testing.T) {
	// 18:00 UTC on Jan 15 is 13:00 ET the same day.
	ts := time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-01-15", GameDayET(ts))
}

func TestGameDayETRollsBackADayLateNightUTC(t *testing.T) {
	// 2:00 UTC on Jan 16 is 21:00 ET on Jan 15 — a late tip-off still
	// belongs to the prior calendar day once converted to Eastern time.
	ts := time.Date(2026, 1, 16, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-01-15", GameDayET(ts))
}

func TestGameDayETHandlesDaylightSaving(t *testing.T) {
	// Mid-July, ET is UTC-4 (EDT); 3:30 UTC is 23:30 ET the prior day.
	ts := time.Date(2026, 7, 15, 3, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-07-14", GameDayET(ts))
}
