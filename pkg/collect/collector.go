// Package collect orchestrates a collection run: it fans out to the source
// adapters, normalizes what they return into KPI records, persists them, and
// reports progress through the status tracker. One source failing never
// stops the others; only a store failure aborts a run.
package collect

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nicktill/journeyboard/pkg/bucket"
	"github.com/nicktill/journeyboard/pkg/config"
	"github.com/nicktill/journeyboard/pkg/journey"
	"github.com/nicktill/journeyboard/pkg/source"
	"github.com/nicktill/journeyboard/pkg/store"
)

// Collector runs collection for one customer at a time per customer.
type Collector struct {
	store    store.Store
	adapters map[journey.Channel]source.Adapter
	tracker  *Tracker
}

// NewCollector wires the orchestrator over a store and the source adapters.
func NewCollector(s store.Store, adapters []source.Adapter, tracker *Tracker) *Collector {
	byChannel := make(map[journey.Channel]source.Adapter, len(adapters))
	for _, a := range adapters {
		byChannel[a.Channel()] = a
	}
	return &Collector{store: s, adapters: byChannel, tracker: tracker}
}

// Options control one run.
type Options struct {
	// Days is the trailing collection window for a current-period run.
	Days int

	// CollectHistory ignores Days and backfills the trailing 12 full
	// months ending at the current month.
	CollectHistory bool
}

// sourceResult is one source's outcome inside a run.
type sourceResult struct {
	channel  journey.Channel
	records  int
	skipped  bool
	fetchErr error
	storeErr error
}

// Run executes one collection run to completion. The caller owns the
// goroutine; Run only returns after the terminal status is recorded.
func (c *Collector) Run(ctx context.Context, cust store.Customer, opts Options) {
	creds, err := c.store.AllCredentials(ctx, cust.ID)
	if err != nil {
		log.Printf("collect: %s: credential read failed: %v", cust.ID, err)
		c.tracker.Finish(cust.ID, StateError, false, fmt.Sprintf("store unavailable: %v", err))
		return
	}

	now := time.Now()
	window := c.window(now, opts)
	c.tracker.SetProgress(cust.ID, StateCollecting, 10, "collecting from sources")

	channels := journey.Channels()
	results := make([]sourceResult, len(channels))

	if opts.CollectHistory {
		// Backfills run one source at a time; the adapters pace their own
		// per-month and per-chunk calls.
		for i, channel := range channels {
			results[i] = c.collectSource(ctx, cust, channel, creds[string(channel)], window, now)
			c.bumpProgress(cust.ID, i+1, len(channels))
		}
	} else {
		var wg sync.WaitGroup
		var done int
		var mu sync.Mutex
		for i, channel := range channels {
			wg.Add(1)
			go func(i int, channel journey.Channel) {
				defer wg.Done()
				results[i] = c.collectSource(ctx, cust, channel, creds[string(channel)], window, now)
				mu.Lock()
				done++
				c.bumpProgress(cust.ID, done, len(channels))
				mu.Unlock()
			}(i, channel)
		}
		wg.Wait()
	}

	c.finish(cust.ID, results)
}

// window derives the collection window from the options.
func (c *Collector) window(now time.Time, opts Options) source.DateRange {
	if opts.CollectHistory {
		months := bucket.LastN(now, config.HistoryMonths)
		return source.DateRange{Start: months[0].Start(), End: now}
	}
	days := opts.Days
	if days <= 0 {
		days = config.DefaultCollectDays
	}
	return source.DateRange{Start: now.AddDate(0, 0, -days+1), End: now}
}

func (c *Collector) bumpProgress(customerID string, done, total int) {
	progress := 10 + done*85/total
	c.tracker.SetProgress(customerID, StateCollecting, progress,
		fmt.Sprintf("%d of %d sources done", done, total))
}

// collectSource runs one source end to end: fetch, normalize, persist. The
// tracker sees every transition.
func (c *Collector) collectSource(ctx context.Context, cust store.Customer, channel journey.Channel, creds map[string]string, window source.DateRange, now time.Time) sourceResult {
	res := sourceResult{channel: channel}

	adapter, ok := c.adapters[channel]
	if !ok || len(creds) == 0 {
		res.skipped = true
		c.tracker.SetSource(cust.ID, channel, SourceSkipped, "credentials not configured")
		return res
	}

	c.tracker.SetSource(cust.ID, channel, SourceCollecting, "fetching")

	monthly, err := adapter.FetchMonthlyMetrics(ctx, source.Identity{
		CustomerID:  cust.ID,
		Credentials: creds,
	}, window)
	if err != nil {
		res.fetchErr = err
		log.Printf("collect: %s/%s: fetch failed: %v", cust.ID, channel, err)
		c.tracker.SetSource(cust.ID, channel, SourceFailed, err.Error())
		return res
	}

	records := Normalize(cust, channel, monthly, window.Start, now)
	for _, rec := range records {
		if err := c.store.Put(ctx, rec); err != nil {
			// A write failing because the run context ended is a timeout,
			// not a store outage; it fails the source, never the run.
			if ctx.Err() != nil {
				res.fetchErr = ctx.Err()
				log.Printf("collect: %s/%s: run ended mid-write: %v", cust.ID, channel, ctx.Err())
				c.tracker.SetSource(cust.ID, channel, SourceFailed, "collection run timed out")
				return res
			}
			res.storeErr = err
			log.Printf("collect: %s/%s: store write failed: %v", cust.ID, channel, err)
			c.tracker.SetSource(cust.ID, channel, SourceFailed, "store write failed")
			return res
		}
	}

	res.records = len(records)
	c.tracker.SetSource(cust.ID, channel, SourceCompleted,
		fmt.Sprintf("%d records over %d months", len(records), len(monthly)))
	return res
}

// finish derives the run's terminal status. Store failures abort as an
// error; source failures only mark data as partial when at least one other
// source delivered.
func (c *Collector) finish(customerID string, results []sourceResult) {
	var completed, failed, stored int
	for _, r := range results {
		switch {
		case r.storeErr != nil:
			c.tracker.Finish(customerID, StateError, false,
				fmt.Sprintf("store unavailable: %v", r.storeErr))
			return
		case r.skipped:
		case r.fetchErr != nil:
			failed++
		default:
			completed++
			stored += r.records
		}
	}

	partial := completed > 0 && failed > 0
	switch {
	case completed == 0 && failed > 0:
		c.tracker.Finish(customerID, StateCompleted, false, "no data collected")
	case completed == 0:
		c.tracker.Finish(customerID, StateCompleted, false, "no sources configured")
	default:
		c.tracker.Finish(customerID, StateCompleted, partial,
			fmt.Sprintf("stored %d records from %d sources", stored, completed))
	}
}
