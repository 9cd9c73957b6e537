// Package bucket folds raw daily or per-period observations into
// calendar-month accumulators. Bucketing is pure: the same observations
// always produce the same totals regardless of call order or batching.
package bucket

import (
	"fmt"
	"time"
)

// MonthKey identifies one calendar-month bucket.
type MonthKey struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// KeyFor derives the MonthKey for a timestamp by truncating to
// first-of-month.
func KeyFor(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: int(t.Month())}
}

// String renders the key as "YYYY-MM".
func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
}

// Before reports whether k precedes other in calendar order.
func (k MonthKey) Before(other MonthKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

// Next returns the following calendar month.
func (k MonthKey) Next() MonthKey {
	if k.Month == 12 {
		return MonthKey{Year: k.Year + 1, Month: 1}
	}
	return MonthKey{Year: k.Year, Month: k.Month + 1}
}

// Prev returns the preceding calendar month.
func (k MonthKey) Prev() MonthKey {
	if k.Month == 1 {
		return MonthKey{Year: k.Year - 1, Month: 12}
	}
	return MonthKey{Year: k.Year, Month: k.Month - 1}
}

// Days returns the number of calendar days in the month (28-31, leap aware).
func (k MonthKey) Days() int {
	first := time.Date(k.Year, time.Month(k.Month), 1, 0, 0, 0, 0, time.UTC)
	return int(first.AddDate(0, 1, 0).Sub(first).Hours() / 24)
}

// Start returns midnight UTC on the first day of the month.
func (k MonthKey) Start() time.Time {
	return time.Date(k.Year, time.Month(k.Month), 1, 0, 0, 0, 0, time.UTC)
}

// Range lists every month from from to to inclusive. Returns nil when to
// precedes from.
func Range(from, to MonthKey) []MonthKey {
	if to.Before(from) {
		return nil
	}
	var months []MonthKey
	for k := from; !to.Before(k); k = k.Next() {
		months = append(months, k)
	}
	return months
}

// LastN lists the n months ending at now's month, oldest first.
func LastN(now time.Time, n int) []MonthKey {
	if n <= 0 {
		return nil
	}
	months := make([]MonthKey, n)
	k := KeyFor(now)
	for i := n - 1; i >= 0; i-- {
		months[i] = k
		k = k.Prev()
	}
	return months
}

// Observation is one raw data point pulled from a source during a
// collection run.
type Observation struct {
	Timestamp time.Time
	Kind      string
	Value     float64
}

// Accumulator holds running totals per metric kind for one month. Every
// tracked kind is present (possibly zero) so downstream code never sees a
// partial-key map.
type Accumulator map[string]float64

func newAccumulator(kinds []string) Accumulator {
	acc := make(Accumulator, len(kinds))
	for _, kind := range kinds {
		acc[kind] = 0
	}
	return acc
}

// Add folds a value into the accumulator. Kinds outside the tracked set are
// accepted; they simply start from zero on first sight.
func (a Accumulator) Add(kind string, value float64) {
	a[kind] += value
}

// Bucket assigns each observation to its calendar month and sums values per
// metric kind. Duplicate timestamps are additive. An empty input yields an
// empty map.
func Bucket(observations []Observation, kinds []string) map[MonthKey]Accumulator {
	buckets := make(map[MonthKey]Accumulator)
	for _, obs := range observations {
		key := KeyFor(obs.Timestamp)
		acc, ok := buckets[key]
		if !ok {
			acc = newAccumulator(kinds)
			buckets[key] = acc
		}
		acc.Add(obs.Kind, obs.Value)
	}
	return buckets
}

// PeriodDays reports how many days of data a month bucket represents: the
// full calendar month once it has completed, or the days elapsed inside the
// collection window for the still-accumulating current month.
func PeriodDays(key MonthKey, windowStart, now time.Time) int {
	if key != KeyFor(now) {
		return key.Days()
	}
	start := key.Start()
	if windowStart.After(start) {
		start = windowStart
	}
	elapsed := int(now.Sub(start).Hours()/24) + 1
	if elapsed < 1 {
		elapsed = 1
	}
	if max := key.Days(); elapsed > max {
		elapsed = max
	}
	return elapsed
}
