package sportsdata

import "time"

var eastern *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	eastern = loc
}

// GameDayET converts a UTC game start time into the Eastern-time civil
// date used as "game day" — the only place in the system that
// reasons about time-of-day rather than plain instants.
func GameDayET(t time.Time) string {
	return t.In(eastern).Format("2006-01-02")
}
