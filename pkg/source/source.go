// Package source defines the contract every vendor integration implements:
// fetch raw metrics for a date window and return them already folded into
// calendar-month buckets. The orchestrator never sees vendor windowing
// rules; chunking, retry and fan-out strategy live behind this interface.
package source

import (
	"context"
	"time"

	"github.com/nicktill/journeyboard/pkg/bucket"
	"github.com/nicktill/journeyboard/pkg/journey"
)

// Monthly is an adapter's result: per-month raw metric totals keyed by
// metric kind.
type Monthly map[bucket.MonthKey]map[string]float64

// Add folds one value into a month bucket, creating the bucket on first
// sight.
func (m Monthly) Add(key bucket.MonthKey, kind string, value float64) {
	kinds, ok := m[key]
	if !ok {
		kinds = make(map[string]float64)
		m[key] = kinds
	}
	kinds[kind] += value
}

// Merge folds src into dst additively. A month present in both accumulates
// contributions from both, which is what makes chunked fetches equivalent
// to a single bulk fetch.
func Merge(dst, src Monthly) {
	for key, kinds := range src {
		for kind, value := range kinds {
			dst.Add(key, kind, value)
		}
	}
}

// SetEachMonth writes the same point-in-time value into every month bucket
// already present. Used for audience-size metrics (followers, fans) that
// are current snapshots, not per-day deltas: the value is never prorated
// or summed across days.
func (m Monthly) SetEachMonth(kind string, value float64) {
	for _, kinds := range m {
		kinds[kind] = value
	}
}

// DateRange is a half-open-by-day collection window [Start, End].
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days returns the window length in whole days, minimum 1.
func (r DateRange) Days() int {
	d := int(r.End.Sub(r.Start).Hours()/24) + 1
	if d < 1 {
		d = 1
	}
	return d
}

// Chunk partitions the window into consecutive sub-windows of at most
// maxDays days. The pieces cover the window exactly with no overlap.
func (r DateRange) Chunk(maxDays int) []DateRange {
	if maxDays <= 0 || !r.Start.Before(r.End) {
		return []DateRange{r}
	}
	var chunks []DateRange
	start := r.Start
	for start.Before(r.End) {
		end := start.AddDate(0, 0, maxDays-1)
		if end.After(r.End) {
			end = r.End
		}
		chunks = append(chunks, DateRange{Start: start, End: end})
		start = end.AddDate(0, 0, 1)
	}
	return chunks
}

// Months lists the calendar months the window touches, oldest first.
func (r DateRange) Months() []bucket.MonthKey {
	return bucket.Range(bucket.KeyFor(r.Start), bucket.KeyFor(r.End))
}

// Contains reports whether t falls inside the window.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Pause sleeps for d unless the context ends first. A non-positive d
// returns immediately.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Identity carries everything an adapter needs to act on behalf of one
// customer: the customer ID and the per-platform credential map.
type Identity struct {
	CustomerID  string
	Credentials map[string]string
}

// Credential returns a named credential or "" when absent.
func (id Identity) Credential(key string) string {
	return id.Credentials[key]
}

// Adapter is the shared contract for the three vendor integrations.
//
// FetchMonthlyMetrics returns ErrSourceUnavailable when no usable
// credential exists, an *UpstreamError when the vendor failed after
// exhausting retries, and an empty Monthly (nil error) when the window
// simply contains no data. Partial failures inside the window are absorbed:
// the adapter returns the months it could complete.
type Adapter interface {
	Channel() journey.Channel
	FetchMonthlyMetrics(ctx context.Context, id Identity, window DateRange) (Monthly, error)
}
