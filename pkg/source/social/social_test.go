package social

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nicktill/journeyboard/pkg/bucket"
	"github.com/nicktill/journeyboard/pkg/source"
)

// fakeAPI generates a deterministic daily reach series so chunked fetches
// can be compared against a single bulk fold.
type fakeAPI struct {
	failChunks   bool
	failMedia    bool
	failAudience bool
	media        []MediaItem
	mediaTotals  map[string]map[string]float64
	insightCalls int
}

func (f *fakeAPI) AccountInsights(ctx context.Context, accountID, token string, window source.DateRange, metrics []string) (map[string][]DailyPoint, error) {
	f.insightCalls++
	if f.failChunks {
		return nil, &source.UpstreamError{Op: "insights", Status: 503, Transient: true}
	}
	var points []DailyPoint
	for d := window.Start; !d.After(window.End); d = d.AddDate(0, 0, 1) {
		points = append(points, DailyPoint{Date: d, Value: float64(d.Day())})
	}
	return map[string][]DailyPoint{"reach": points}, nil
}

func (f *fakeAPI) ListMedia(ctx context.Context, accountID, token string, window source.DateRange) ([]MediaItem, error) {
	if f.failMedia {
		return nil, errors.New("media listing down")
	}
	return f.media, nil
}

func (f *fakeAPI) MediaInsights(ctx context.Context, mediaID, token string, metrics []string) (map[string]float64, error) {
	if totals, ok := f.mediaTotals[mediaID]; ok {
		return totals, nil
	}
	return nil, errors.New("unknown media")
}

func (f *fakeAPI) AudienceSize(ctx context.Context, accountID, token string) (float64, error) {
	if f.failAudience {
		return 0, errors.New("audience endpoint down")
	}
	return 5200, nil
}

func identity() source.Identity {
	return source.Identity{
		CustomerID: "cust-1",
		Credentials: map[string]string{
			CredAccountID:   "acct-1",
			CredAccessToken: "tok",
		},
	}
}

func window(startDay, endDay int) source.DateRange {
	return source.DateRange{
		Start: time.Date(2026, 1, startDay, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, endDay, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetchMonthlyMetrics_ChunkedEqualsBulkFold(t *testing.T) {
	// Two chunks across a month boundary: sum of day-of-month values
	// 1..31 for January, 1..28 for February.
	api := &fakeAPI{}
	adapter := New(api)

	monthly, err := adapter.FetchMonthlyMetrics(context.Background(), identity(), window(1, 28))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if api.insightCalls < 2 {
		t.Errorf("A 59-day window must be chunked, got %d insight calls", api.insightCalls)
	}

	jan := monthly[bucket.MonthKey{Year: 2026, Month: 1}]
	if jan["reach"] != 31*32/2 {
		t.Errorf("January reach: expected %d, got %v", 31*32/2, jan["reach"])
	}
	feb := monthly[bucket.MonthKey{Year: 2026, Month: 2}]
	if feb["reach"] != 28*29/2 {
		t.Errorf("February reach: expected %d, got %v", 28*29/2, feb["reach"])
	}
}

func TestFetchMonthlyMetrics_AllChunksFailing(t *testing.T) {
	adapter := New(&fakeAPI{failChunks: true})
	_, err := adapter.FetchMonthlyMetrics(context.Background(), identity(), window(1, 28))
	if err == nil {
		t.Fatal("Every chunk failing must be an error")
	}
	var upstream *source.UpstreamError
	if !errors.As(err, &upstream) {
		t.Errorf("Expected the last chunk error to surface, got %v", err)
	}
}

func TestFetchMonthlyMetrics_MediaFanOutAttributesToPostedMonth(t *testing.T) {
	api := &fakeAPI{
		media: []MediaItem{
			{ID: "post-jan", PostedAt: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
			{ID: "post-feb", PostedAt: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)},
			{ID: "post-old", PostedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		},
		mediaTotals: map[string]map[string]float64{
			"post-jan": {"saved": 12, "shares": 4},
			"post-feb": {"saved": 7},
			"post-old": {"saved": 999},
		},
	}
	adapter := New(api)

	monthly, err := adapter.FetchMonthlyMetrics(context.Background(), identity(), window(1, 28))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	jan := monthly[bucket.MonthKey{Year: 2026, Month: 1}]
	if jan["saved"] != 12 || jan["shares"] != 4 {
		t.Errorf("January media totals wrong: saved=%v shares=%v", jan["saved"], jan["shares"])
	}
	if monthly[bucket.MonthKey{Year: 2026, Month: 2}]["saved"] != 7 {
		t.Error("February media totals missing")
	}
	for key, kinds := range monthly {
		if key.Year == 2025 && kinds["saved"] != 0 {
			t.Error("Out-of-window media must not be attributed")
		}
	}
}

func TestFetchMonthlyMetrics_AudienceSizeIsPointInTime(t *testing.T) {
	adapter := New(&fakeAPI{})
	monthly, err := adapter.FetchMonthlyMetrics(context.Background(), identity(), window(1, 28))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	// The same current snapshot lands in every touched month; it is never
	// summed across chunks.
	for key, kinds := range monthly {
		if kinds["follower_growth"] != 5200 {
			t.Errorf("%s: expected follower snapshot 5200, got %v", key, kinds["follower_growth"])
		}
	}
}

func TestFetchMonthlyMetrics_MediaAndAudienceFailuresAreAbsorbed(t *testing.T) {
	adapter := New(&fakeAPI{failMedia: true, failAudience: true})
	monthly, err := adapter.FetchMonthlyMetrics(context.Background(), identity(), window(1, 28))
	if err != nil {
		t.Fatalf("Optional surfaces failing must not be fatal: %v", err)
	}
	if monthly[bucket.MonthKey{Year: 2026, Month: 1}]["reach"] == 0 {
		t.Error("Account metrics lost")
	}
}

func TestFetchMonthlyMetrics_MissingCredentials(t *testing.T) {
	adapter := New(&fakeAPI{})
	id := source.Identity{CustomerID: "c", Credentials: map[string]string{CredAccountID: "acct"}}
	if _, err := adapter.FetchMonthlyMetrics(context.Background(), id, window(1, 28)); err != source.ErrSourceUnavailable {
		t.Errorf("Expected ErrSourceUnavailable without a token, got %v", err)
	}
}
