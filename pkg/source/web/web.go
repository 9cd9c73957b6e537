// Package web integrates the web-analytics endpoint. The upstream already
// segments results by calendar month server-side, so the whole window is
// fetched in one bulk call; when the deployment predates month-range
// support the adapter degrades to one call per month.
package web

import (
	"context"
	"errors"
	"log"

	"github.com/nicktill/journeyboard/pkg/bucket"
	"github.com/nicktill/journeyboard/pkg/journey"
	"github.com/nicktill/journeyboard/pkg/source"
)

// Credential keys the adapter reads from the customer's website platform
// credentials.
const (
	CredPropertyID = "property_id"
	CredEndpoint   = "endpoint" // optional override of the default endpoint
)

// MonthData is one month's metrics as the vendor reports them: journey
// stage name to metric name to value.
type MonthData map[string]map[string]float64

// ErrBulkUnsupported is returned by an API implementation whose deployment
// cannot serve a multi-month range in one call.
var ErrBulkUnsupported = errors.New("web analytics endpoint does not support month ranges")

// API is the vendor surface the adapter consumes. FetchMonthRange returns
// month-segmented data keyed by "YYYY-MM".
type API interface {
	FetchMonthRange(ctx context.Context, propertyID string, start, end bucket.MonthKey) (map[string]MonthData, error)
}

// Adapter implements source.Adapter for the website channel.
type Adapter struct {
	api API
}

// New creates a web adapter over the given vendor API.
func New(api API) *Adapter {
	return &Adapter{api: api}
}

// Channel reports the channel this adapter feeds.
func (a *Adapter) Channel() journey.Channel { return journey.ChannelWebsite }

// vendor metric names that differ from our canonical kinds
var kindRenames = map[string]string{
	"total_conversions":   "conversions",
	"returning_user_rate": "retention_rate",
	"referral_sessions":   "referrals",
	"social_sessions":     "social_shares",
}

// FetchMonthlyMetrics pulls the window in a single month-ranged call,
// falling back to per-month calls when the upstream rejects ranges. A
// failed month in the fallback path is skipped, not fatal.
func (a *Adapter) FetchMonthlyMetrics(ctx context.Context, id source.Identity, window source.DateRange) (source.Monthly, error) {
	propertyID := id.Credential(CredPropertyID)
	if propertyID == "" {
		return nil, source.ErrSourceUnavailable
	}

	months := window.Months()
	if len(months) == 0 {
		return source.Monthly{}, nil
	}
	start, end := months[0], months[len(months)-1]

	byMonth, err := a.api.FetchMonthRange(ctx, propertyID, start, end)
	if errors.Is(err, ErrBulkUnsupported) {
		return a.fetchPerMonth(ctx, propertyID, months)
	}
	if err != nil {
		return nil, err
	}

	result := source.Monthly{}
	for label, data := range byMonth {
		key, ok := parseMonthLabel(label)
		if !ok {
			log.Printf("web: skipping unparseable month label %q", label)
			continue
		}
		mergeMonth(result, key, data)
	}
	return result, nil
}

// fetchPerMonth is the degraded path: one ranged call per month, partial
// results on individual failures.
func (a *Adapter) fetchPerMonth(ctx context.Context, propertyID string, months []bucket.MonthKey) (source.Monthly, error) {
	result := source.Monthly{}
	var failed int
	for _, key := range months {
		byMonth, err := a.api.FetchMonthRange(ctx, propertyID, key, key)
		if err != nil {
			failed++
			log.Printf("web: month %s failed, continuing: %v", key, err)
			continue
		}
		for label, data := range byMonth {
			if got, ok := parseMonthLabel(label); ok && got == key {
				mergeMonth(result, key, data)
			}
		}
	}
	if failed == len(months) && failed > 0 {
		return nil, &source.UpstreamError{Op: "month range", Err: errors.New("every month in the window failed")}
	}
	return result, nil
}

// mergeMonth flattens one month's stage-structured metrics into canonical
// kinds.
func mergeMonth(dst source.Monthly, key bucket.MonthKey, data MonthData) {
	for _, metrics := range data {
		for name, value := range metrics {
			kind := name
			if renamed, ok := kindRenames[name]; ok {
				kind = renamed
			}
			dst.Add(key, kind, value)
		}
	}
}

// parseMonthLabel parses "YYYY-MM" without pulling in time parsing for a
// fixed-width label.
func parseMonthLabel(label string) (bucket.MonthKey, bool) {
	if len(label) != 7 || label[4] != '-' {
		return bucket.MonthKey{}, false
	}
	year, month := 0, 0
	for _, c := range label[:4] {
		if c < '0' || c > '9' {
			return bucket.MonthKey{}, false
		}
		year = year*10 + int(c-'0')
	}
	for _, c := range label[5:] {
		if c < '0' || c > '9' {
			return bucket.MonthKey{}, false
		}
		month = month*10 + int(c-'0')
	}
	if month < 1 || month > 12 {
		return bucket.MonthKey{}, false
	}
	return bucket.MonthKey{Year: year, Month: month}, true
}
