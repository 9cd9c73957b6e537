package collect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/journeyboard/pkg/bucket"
	"github.com/nicktill/journeyboard/pkg/journey"
	"github.com/nicktill/journeyboard/pkg/source"
	"github.com/nicktill/journeyboard/pkg/store"
	"github.com/nicktill/journeyboard/pkg/store/memory"
)

// stubAdapter serves canned monthly data or a canned error.
type stubAdapter struct {
	channel journey.Channel
	monthly source.Monthly
	err     error
	calls   int
}

func (s *stubAdapter) Channel() journey.Channel { return s.channel }

func (s *stubAdapter) FetchMonthlyMetrics(ctx context.Context, id source.Identity, window source.DateRange) (source.Monthly, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.monthly, nil
}

func monthly(kind string, value float64) source.Monthly {
	m := source.Monthly{}
	m.Add(bucket.KeyFor(time.Now()), kind, value)
	return m
}

func seedCustomer(t *testing.T, s store.Store, platforms ...journey.Channel) store.Customer {
	t.Helper()
	ctx := context.Background()
	cust := store.Customer{ID: "cust-1", Name: "Acme Dental", Industry: "dental"}
	require.NoError(t, s.CreateCustomer(ctx, cust))
	for _, p := range platforms {
		require.NoError(t, s.SetCredentials(ctx, "cust-1", string(p), map[string]string{"token": "t"}))
	}
	return cust
}

func TestCollector_AllSourcesSucceed(t *testing.T) {
	s := memory.New()
	cust := seedCustomer(t, s, journey.ChannelSocial, journey.ChannelEmail, journey.ChannelWebsite)

	tracker := NewTracker()
	require.True(t, tracker.Begin(cust.ID))

	c := NewCollector(s, []source.Adapter{
		&stubAdapter{channel: journey.ChannelSocial, monthly: monthly("reach", 1200)},
		&stubAdapter{channel: journey.ChannelEmail, monthly: monthly("sent", 500)},
		&stubAdapter{channel: journey.ChannelWebsite, monthly: monthly("sessions", 900)},
	}, tracker)

	c.Run(context.Background(), cust, Options{Days: 30})

	status := tracker.Snapshot(cust.ID)
	assert.Equal(t, StateCompleted, status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.False(t, status.PartialDataAvailable)
	for _, key := range []string{"social", "email", "website"} {
		assert.Equal(t, SourceCompleted, status.Sources[key].Status, key)
	}

	records, err := s.Latest(context.Background(), cust.ID, journey.ChannelSocial, journey.StageAwareness)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, 1200.0, records[0].KPIValue)
}

func TestCollector_OneSourceFailingYieldsPartialData(t *testing.T) {
	s := memory.New()
	cust := seedCustomer(t, s, journey.ChannelSocial, journey.ChannelEmail, journey.ChannelWebsite)

	tracker := NewTracker()
	require.True(t, tracker.Begin(cust.ID))

	upstream := &source.UpstreamError{Op: "account insights", Status: 503, Transient: true}
	c := NewCollector(s, []source.Adapter{
		&stubAdapter{channel: journey.ChannelSocial, err: upstream},
		&stubAdapter{channel: journey.ChannelEmail, monthly: monthly("sent", 500)},
		&stubAdapter{channel: journey.ChannelWebsite, monthly: monthly("sessions", 900)},
	}, tracker)

	c.Run(context.Background(), cust, Options{Days: 30})

	status := tracker.Snapshot(cust.ID)
	// One source failing must not fail the run.
	assert.Equal(t, StateCompleted, status.Status)
	assert.True(t, status.PartialDataAvailable)
	assert.Equal(t, SourceFailed, status.Sources["social"].Status)
	assert.Equal(t, SourceCompleted, status.Sources["email"].Status)
	assert.Equal(t, SourceCompleted, status.Sources["website"].Status)

	// The surviving sources' data must be persisted.
	records, err := s.Latest(context.Background(), cust.ID, journey.ChannelWebsite, journey.StageAwareness)
	require.NoError(t, err)
	assert.NotEmpty(t, records)
}

func TestCollector_AllSourcesFailing(t *testing.T) {
	s := memory.New()
	cust := seedCustomer(t, s, journey.ChannelSocial, journey.ChannelEmail, journey.ChannelWebsite)

	tracker := NewTracker()
	require.True(t, tracker.Begin(cust.ID))

	upstream := &source.UpstreamError{Op: "fetch", Status: 500}
	c := NewCollector(s, []source.Adapter{
		&stubAdapter{channel: journey.ChannelSocial, err: upstream},
		&stubAdapter{channel: journey.ChannelEmail, err: upstream},
		&stubAdapter{channel: journey.ChannelWebsite, err: upstream},
	}, tracker)

	c.Run(context.Background(), cust, Options{Days: 30})

	status := tracker.Snapshot(cust.ID)
	assert.Equal(t, StateCompleted, status.Status)
	assert.False(t, status.PartialDataAvailable)
	assert.Equal(t, "no data collected", status.Message)
}

func TestCollector_MissingCredentialsSkipsChannel(t *testing.T) {
	s := memory.New()
	// Only social credentials configured.
	cust := seedCustomer(t, s, journey.ChannelSocial)

	tracker := NewTracker()
	require.True(t, tracker.Begin(cust.ID))

	c := NewCollector(s, []source.Adapter{
		&stubAdapter{channel: journey.ChannelSocial, monthly: monthly("reach", 100)},
		&stubAdapter{channel: journey.ChannelEmail, monthly: monthly("sent", 500)},
		&stubAdapter{channel: journey.ChannelWebsite, monthly: monthly("sessions", 900)},
	}, tracker)

	c.Run(context.Background(), cust, Options{Days: 30})

	status := tracker.Snapshot(cust.ID)
	assert.Equal(t, StateCompleted, status.Status)
	assert.Equal(t, SourceSkipped, status.Sources["email"].Status)
	assert.Equal(t, SourceSkipped, status.Sources["website"].Status)
	assert.Equal(t, SourceCompleted, status.Sources["social"].Status)
	// Skipped channels are not failures: the data is not partial.
	assert.False(t, status.PartialDataAvailable)
}

// failingStore wraps a working store but refuses metric writes.
type failingStore struct {
	store.Store
}

func (f *failingStore) Put(ctx context.Context, rec store.Record) error {
	return errors.New("disk full")
}

func TestCollector_StoreFailureAbortsRun(t *testing.T) {
	inner := memory.New()
	cust := seedCustomer(t, inner, journey.ChannelSocial, journey.ChannelEmail, journey.ChannelWebsite)
	s := &failingStore{Store: inner}

	tracker := NewTracker()
	require.True(t, tracker.Begin(cust.ID))

	c := NewCollector(s, []source.Adapter{
		&stubAdapter{channel: journey.ChannelSocial, monthly: monthly("reach", 100)},
		&stubAdapter{channel: journey.ChannelEmail, monthly: monthly("sent", 500)},
		&stubAdapter{channel: journey.ChannelWebsite, monthly: monthly("sessions", 900)},
	}, tracker)

	c.Run(context.Background(), cust, Options{Days: 30})

	status := tracker.Snapshot(cust.ID)
	assert.Equal(t, StateError, status.Status)
}

// deadlineStore surfaces the caller's expired context on writes, the way
// the badger store does when a run outlives its timeout.
type deadlineStore struct {
	store.Store
}

func (d *deadlineStore) Put(ctx context.Context, rec store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.Store.Put(ctx, rec)
}

func TestCollector_RunTimeoutIsNotAStoreOutage(t *testing.T) {
	inner := memory.New()
	cust := seedCustomer(t, inner, journey.ChannelSocial)
	s := &deadlineStore{Store: inner}

	tracker := NewTracker()
	require.True(t, tracker.Begin(cust.ID))

	c := NewCollector(s, []source.Adapter{
		&stubAdapter{channel: journey.ChannelSocial, monthly: monthly("reach", 100)},
	}, tracker)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	c.Run(ctx, cust, Options{Days: 30})

	status := tracker.Snapshot(cust.ID)
	// An expired run deadline fails the source, not the store.
	assert.Equal(t, StateCompleted, status.Status)
	assert.Equal(t, SourceFailed, status.Sources["social"].Status)
	assert.Equal(t, "collection run timed out", status.Sources["social"].Message)
}

func TestCollector_HistoryRunsSourcesSequentially(t *testing.T) {
	s := memory.New()
	cust := seedCustomer(t, s, journey.ChannelSocial, journey.ChannelEmail, journey.ChannelWebsite)

	tracker := NewTracker()
	require.True(t, tracker.Begin(cust.ID))

	social := &stubAdapter{channel: journey.ChannelSocial, monthly: monthly("reach", 100)}
	email := &stubAdapter{channel: journey.ChannelEmail, monthly: monthly("sent", 500)}
	web := &stubAdapter{channel: journey.ChannelWebsite, monthly: monthly("sessions", 900)}

	c := NewCollector(s, []source.Adapter{social, email, web}, tracker)
	c.Run(context.Background(), cust, Options{CollectHistory: true})

	status := tracker.Snapshot(cust.ID)
	assert.Equal(t, StateCompleted, status.Status)
	assert.Equal(t, 1, social.calls)
	assert.Equal(t, 1, email.calls)
	assert.Equal(t, 1, web.calls)
}

func TestCollector_RerunOverwritesInsteadOfDuplicating(t *testing.T) {
	s := memory.New()
	cust := seedCustomer(t, s, journey.ChannelSocial)

	tracker := NewTracker()
	adapter := &stubAdapter{channel: journey.ChannelSocial, monthly: monthly("reach", 100)}
	c := NewCollector(s, []source.Adapter{adapter}, tracker)

	require.True(t, tracker.Begin(cust.ID))
	c.Run(context.Background(), cust, Options{Days: 30})

	adapter.monthly = monthly("reach", 300)
	require.True(t, tracker.Begin(cust.ID))
	c.Run(context.Background(), cust, Options{Days: 30})

	history, err := s.History(context.Background(), cust.ID, journey.ChannelSocial, journey.StageAwareness, "Reach", 12)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 300.0, history[0].KPIValue)
}
