// Package period computes time-windowed usage rollups from stored
// records. Window boundaries follow the local wall clock of the
// querying process; weeks start Monday 00:00:00.
package period

import (
	"time"

	"github.com/ccmeter/ccmeter/internal/model"
)

// Window selects a reporting period.
type Window int

const (
	Day Window = iota
	Week
	Month
	Year
	AllTime
)

// String returns the window's report label.
func (w Window) String() string {
	switch w {
	case Day:
		return "Today"
	case Week:
		return "This Week"
	case Month:
		return "This Month"
	case Year:
		return "This Year"
	case AllTime:
		return "All Time"
	}
	return "Unknown"
}

// farFuture is the sentinel range end: newly arriving records inside a
// window are always included without re-querying, and queries stay a
// single half-open interval.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// Start returns the window's inclusive start relative to now.
func (w Window) Start(now time.Time) time.Time {
	year, month, day := now.Date()
	loc := now.Location()

	switch w {
	case Day:
		return time.Date(year, month, day, 0, 0, 0, 0, loc)
	case Week:
		midnight := time.Date(year, month, day, 0, 0, 0, 0, loc)
		daysSinceMonday := (int(now.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -daysSinceMonday)
	case Month:
		return time.Date(year, month, 1, 0, 0, 0, 0, loc)
	case Year:
		return time.Date(year, 1, 1, 0, 0, 0, 0, loc)
	case AllTime:
		return time.Unix(0, 0)
	}
	return time.Unix(0, 0)
}

// Querier is the slice of the store the aggregator needs.
type Querier interface {
	QueryByRange(machineID string, start, end time.Time, modelSubstring string) ([]model.UsageRecord, int, error)
}

// Aggregator computes rollups for one machine. Results are computed
// fresh per query, never cached.
type Aggregator struct {
	store     Querier
	machineID string
}

// New returns an aggregator over the store for the given machine.
func New(store Querier, machineID string) *Aggregator {
	return &Aggregator{store: store, machineID: machineID}
}

// Aggregate rolls up the window ending "now or beyond", optionally
// narrowed by a case-sensitive model substring filter.
func (a *Aggregator) Aggregate(w Window, modelFilter string) (*model.AggregateStats, error) {
	return a.AggregateFrom(w.Start(time.Now()), modelFilter)
}

// AggregateFrom rolls up all records from start onward.
func (a *Aggregator) AggregateFrom(start time.Time, modelFilter string) (*model.AggregateStats, error) {
	records, sessions, err := a.store.QueryByRange(a.machineID, start, farFuture, modelFilter)
	if err != nil {
		return nil, err
	}

	stats := model.NewAggregateStats()
	stats.SessionCount = sessions
	for _, r := range records {
		stats.AddRecord(r)
	}
	return stats, nil
}
