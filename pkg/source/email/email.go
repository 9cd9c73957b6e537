// Package email integrates the email-campaign API. Campaigns are listed in
// one call and grouped into months by their start date; analytics are then
// pulled with one bulk-aggregate call per month rather than one call per
// campaign, which is asymptotically cheaper for accounts with many
// campaigns.
package email

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/nicktill/journeyboard/pkg/bucket"
	"github.com/nicktill/journeyboard/pkg/config"
	"github.com/nicktill/journeyboard/pkg/journey"
	"github.com/nicktill/journeyboard/pkg/source"
)

// Credential keys for the email platform.
const (
	CredAPIKey   = "api_key"
	CredEndpoint = "endpoint" // optional override of the default endpoint
)

// Campaign is one email campaign as listed by the vendor.
type Campaign struct {
	ID        string
	Name      string
	StartDate time.Time
}

// Totals are aggregated delivery counters for a set of campaigns over a
// date range.
type Totals struct {
	Sent         float64
	Delivered    float64
	Opened       float64
	Clicked      float64
	Replied      float64
	Bounced      float64
	Unsubscribed float64
}

// API is the vendor surface the adapter consumes.
type API interface {
	// ListCampaigns returns every campaign on the account in one call.
	ListCampaigns(ctx context.Context, apiKey string) ([]Campaign, error)

	// AggregateAnalytics returns summed counters for the given campaigns
	// restricted to the date range.
	AggregateAnalytics(ctx context.Context, apiKey string, campaignIDs []string, window source.DateRange) (Totals, error)
}

// Adapter implements source.Adapter for the email channel.
type Adapter struct {
	api API
}

// New creates an email adapter over the given vendor API.
func New(api API) *Adapter {
	return &Adapter{api: api}
}

// Channel reports the channel this adapter feeds.
func (a *Adapter) Channel() journey.Channel { return journey.ChannelEmail }

// FetchMonthlyMetrics lists campaigns once, groups them by start-date
// month, and issues one aggregate call per month. A failed month is
// skipped; the remaining months still come back.
func (a *Adapter) FetchMonthlyMetrics(ctx context.Context, id source.Identity, window source.DateRange) (source.Monthly, error) {
	apiKey := id.Credential(CredAPIKey)
	if apiKey == "" {
		return nil, source.ErrSourceUnavailable
	}

	campaigns, err := a.api.ListCampaigns(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	byMonth := groupByMonth(campaigns, window)
	if len(byMonth) == 0 {
		return source.Monthly{}, nil
	}

	result := source.Monthly{}
	failed := 0
	var monthErr error

	for i, key := range sortedKeys(byMonth) {
		ids := byMonth[key]
		// Pause between per-month calls to stay under the vendor's rate
		// limit during backfills.
		if i > 0 {
			if err := source.Pause(ctx, config.HistoryThrottle); err != nil {
				return nil, err
			}
		}
		monthWindow := source.DateRange{
			Start: key.Start(),
			End:   key.Start().AddDate(0, 1, -1),
		}
		totals, err := a.api.AggregateAnalytics(ctx, apiKey, ids, monthWindow)
		if err != nil {
			failed++
			monthErr = err
			log.Printf("email: month %s analytics failed, continuing: %v", key, err)
			continue
		}
		addTotals(result, key, totals)
	}

	if failed == len(byMonth) {
		return nil, monthErr
	}
	return result, nil
}

// sortedKeys orders month keys chronologically so per-month calls run
// oldest first.
func sortedKeys(byMonth map[bucket.MonthKey][]string) []bucket.MonthKey {
	keys := make([]bucket.MonthKey, 0, len(byMonth))
	for key := range byMonth {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

// groupByMonth buckets campaign IDs by start-date month, dropping
// campaigns outside the window or without a usable start date.
func groupByMonth(campaigns []Campaign, window source.DateRange) map[bucket.MonthKey][]string {
	byMonth := make(map[bucket.MonthKey][]string)
	for _, c := range campaigns {
		if c.ID == "" || c.StartDate.IsZero() || !window.Contains(c.StartDate) {
			continue
		}
		key := bucket.KeyFor(c.StartDate)
		byMonth[key] = append(byMonth[key], c.ID)
	}
	return byMonth
}

// addTotals writes one month's raw counters into the result. Rates are not
// derived here; the orchestrator computes them from these monthly totals
// during normalization.
func addTotals(dst source.Monthly, key bucket.MonthKey, t Totals) {
	dst.Add(key, "sent", t.Sent)
	dst.Add(key, "delivered", t.Delivered)
	dst.Add(key, "opened", t.Opened)
	dst.Add(key, "clicked", t.Clicked)
	dst.Add(key, "replied", t.Replied)
	dst.Add(key, "bounced", t.Bounced)
	dst.Add(key, "unsubscribed", t.Unsubscribed)
}
