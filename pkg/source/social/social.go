// Package social integrates the social-graph insights API. The upstream
// only serves per-day granularity for windows of 30 days or less, so the
// requested window is partitioned into chunks and the daily points from
// each chunk are folded into month buckets. Account-scoped metrics come
// from one insights call per chunk; content-scoped metrics (saves, shares)
// require enumerating the posted items and querying insights per item.
package social

import (
	"context"
	"log"
	"time"

	"github.com/nicktill/journeyboard/pkg/bucket"
	"github.com/nicktill/journeyboard/pkg/config"
	"github.com/nicktill/journeyboard/pkg/journey"
	"github.com/nicktill/journeyboard/pkg/source"
)

// Credential keys for the social platform.
const (
	CredAccountID   = "account_id"
	CredAccessToken = "access_token"
)

// accountMetrics are requested per chunk at daily granularity.
var accountMetrics = []string{"reach", "impressions", "interactions", "profile_views", "link_clicks"}

// mediaMetrics are only exposed per content item, never account-wide.
var mediaMetrics = []string{"saved", "shares"}

// DailyPoint is one day's value for one metric.
type DailyPoint struct {
	Date  time.Time
	Value float64
}

// MediaItem is one piece of published content.
type MediaItem struct {
	ID       string
	PostedAt time.Time
}

// API is the vendor surface the adapter consumes.
type API interface {
	// AccountInsights returns daily series for account-scoped metrics.
	// The window must not exceed the vendor's 30-day limit.
	AccountInsights(ctx context.Context, accountID, token string, window source.DateRange, metrics []string) (map[string][]DailyPoint, error)

	// ListMedia enumerates content items posted inside the window.
	ListMedia(ctx context.Context, accountID, token string, window source.DateRange) ([]MediaItem, error)

	// MediaInsights returns lifetime totals for one content item.
	MediaInsights(ctx context.Context, mediaID, token string, metrics []string) (map[string]float64, error)

	// AudienceSize returns the current follower count. Point-in-time,
	// not windowed.
	AudienceSize(ctx context.Context, accountID, token string) (float64, error)
}

// Adapter implements source.Adapter for the social channel.
type Adapter struct {
	api       API
	chunkDays int
}

// New creates a social adapter over the given vendor API.
func New(api API) *Adapter {
	return &Adapter{api: api, chunkDays: config.SocialChunkDays}
}

// Channel reports the channel this adapter feeds.
func (a *Adapter) Channel() journey.Channel { return journey.ChannelSocial }

// FetchMonthlyMetrics covers the window with ≤30-day chunks, merges chunk
// results additively (a month straddling two chunks accumulates from both),
// then layers in per-item metrics and the point-in-time audience size.
// Individual chunk or item failures are absorbed; only a window with zero
// successful chunks is an error.
func (a *Adapter) FetchMonthlyMetrics(ctx context.Context, id source.Identity, window source.DateRange) (source.Monthly, error) {
	accountID := id.Credential(CredAccountID)
	token := id.Credential(CredAccessToken)
	if accountID == "" || token == "" {
		return nil, source.ErrSourceUnavailable
	}

	result := source.Monthly{}
	chunks := window.Chunk(a.chunkDays)
	var chunkErr error
	failed := 0

	for i, chunk := range chunks {
		// Cooperative pause between chunks so a 12-month backfill does not
		// hammer the vendor's rate limit.
		if i > 0 {
			if err := source.Pause(ctx, config.HistoryThrottle); err != nil {
				return nil, err
			}
		}
		series, err := a.api.AccountInsights(ctx, accountID, token, chunk, accountMetrics)
		if err != nil {
			failed++
			chunkErr = err
			log.Printf("social: chunk %s..%s failed, continuing: %v",
				chunk.Start.Format("2006-01-02"), chunk.End.Format("2006-01-02"), err)
			continue
		}
		source.Merge(result, bucketDaily(series))
	}
	if failed == len(chunks) {
		return nil, chunkErr
	}

	a.collectMedia(ctx, accountID, token, window, result)

	// Audience size is a snapshot: the same current value lands once in
	// every month the window touched.
	if followers, err := a.api.AudienceSize(ctx, accountID, token); err != nil {
		log.Printf("social: audience size unavailable: %v", err)
	} else {
		result.SetEachMonth("follower_growth", followers)
	}

	return result, nil
}

// collectMedia runs the content-scoped fan-out: list items once, then one
// insights call per item, attributed to the item's posted month.
func (a *Adapter) collectMedia(ctx context.Context, accountID, token string, window source.DateRange, dst source.Monthly) {
	items, err := a.api.ListMedia(ctx, accountID, token, window)
	if err != nil {
		log.Printf("social: media listing failed, skipping content metrics: %v", err)
		return
	}

	for _, item := range items {
		if !window.Contains(item.PostedAt) {
			continue
		}
		totals, err := a.api.MediaInsights(ctx, item.ID, token, mediaMetrics)
		if err != nil {
			log.Printf("social: media %s insights failed, continuing: %v", item.ID, err)
			continue
		}
		key := bucket.KeyFor(item.PostedAt)
		for kind, value := range totals {
			dst.Add(key, kind, value)
		}
	}
}

// bucketDaily folds daily metric series into month buckets.
func bucketDaily(series map[string][]DailyPoint) source.Monthly {
	var observations []bucket.Observation
	for kind, points := range series {
		for _, p := range points {
			observations = append(observations, bucket.Observation{
				Timestamp: p.Date,
				Kind:      kind,
				Value:     p.Value,
			})
		}
	}

	monthly := source.Monthly{}
	for key, acc := range bucket.Bucket(observations, accountMetrics) {
		monthly[key] = acc
	}
	return monthly
}
