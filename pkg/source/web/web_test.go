package web

import (
	"context"
	"testing"
	"time"

	"github.com/nicktill/journeyboard/pkg/bucket"
	"github.com/nicktill/journeyboard/pkg/source"
)

// fakeAPI serves canned month-segmented data and can simulate deployments
// without month-range support.
type fakeAPI struct {
	byMonth     map[string]MonthData
	bulkFails   bool
	failMonths  map[string]bool
	rangeCalls  int
	singleCalls int
}

func (f *fakeAPI) FetchMonthRange(ctx context.Context, propertyID string, start, end bucket.MonthKey) (map[string]MonthData, error) {
	if start != end {
		f.rangeCalls++
		if f.bulkFails {
			return nil, ErrBulkUnsupported
		}
		return f.byMonth, nil
	}

	f.singleCalls++
	label := start.String()
	if f.failMonths[label] {
		return nil, &source.UpstreamError{Op: "month", Status: 500, Transient: true}
	}
	if data, ok := f.byMonth[label]; ok {
		return map[string]MonthData{label: data}, nil
	}
	return map[string]MonthData{}, nil
}

func identity() source.Identity {
	return source.Identity{
		CustomerID:  "cust-1",
		Credentials: map[string]string{CredPropertyID: "prop-9"},
	}
}

func window() source.DateRange {
	return source.DateRange{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
	}
}

func sampleData() map[string]MonthData {
	return map[string]MonthData{
		"2026-01": {
			"awareness":  {"sessions": 500, "users": 400},
			"conversion": {"total_conversions": 12},
		},
		"2026-02": {
			"awareness": {"sessions": 650},
			"advocacy":  {"referral_sessions": 9},
		},
	}
}

func TestFetchMonthlyMetrics_BulkPath(t *testing.T) {
	api := &fakeAPI{byMonth: sampleData()}
	adapter := New(api)

	monthly, err := adapter.FetchMonthlyMetrics(context.Background(), identity(), window())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if api.rangeCalls != 1 || api.singleCalls != 0 {
		t.Errorf("Expected one bulk call, got range=%d single=%d", api.rangeCalls, api.singleCalls)
	}

	jan := monthly[bucket.MonthKey{Year: 2026, Month: 1}]
	if jan["sessions"] != 500 {
		t.Errorf("Expected sessions 500, got %v", jan["sessions"])
	}
	// Vendor names are renamed to canonical kinds.
	if jan["conversions"] != 12 {
		t.Errorf("Expected renamed conversions 12, got %v", jan["conversions"])
	}
	feb := monthly[bucket.MonthKey{Year: 2026, Month: 2}]
	if feb["referrals"] != 9 {
		t.Errorf("Expected renamed referrals 9, got %v", feb["referrals"])
	}
}

func TestFetchMonthlyMetrics_FallsBackToPerMonth(t *testing.T) {
	api := &fakeAPI{byMonth: sampleData(), bulkFails: true}
	adapter := New(api)

	monthly, err := adapter.FetchMonthlyMetrics(context.Background(), identity(), window())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if api.singleCalls != 2 {
		t.Errorf("Expected 2 per-month calls, got %d", api.singleCalls)
	}
	if monthly[bucket.MonthKey{Year: 2026, Month: 1}]["sessions"] != 500 {
		t.Error("Fallback path lost January data")
	}
}

func TestFetchMonthlyMetrics_FallbackSkipsFailedMonths(t *testing.T) {
	api := &fakeAPI{
		byMonth:    sampleData(),
		bulkFails:  true,
		failMonths: map[string]bool{"2026-01": true},
	}
	adapter := New(api)

	monthly, err := adapter.FetchMonthlyMetrics(context.Background(), identity(), window())
	if err != nil {
		t.Fatalf("Partial failure must not be fatal: %v", err)
	}

	if _, ok := monthly[bucket.MonthKey{Year: 2026, Month: 1}]; ok {
		t.Error("Failed month should be absent")
	}
	if monthly[bucket.MonthKey{Year: 2026, Month: 2}]["sessions"] != 650 {
		t.Error("Surviving month lost")
	}
}

func TestFetchMonthlyMetrics_AllMonthsFailing(t *testing.T) {
	api := &fakeAPI{
		byMonth:    sampleData(),
		bulkFails:  true,
		failMonths: map[string]bool{"2026-01": true, "2026-02": true},
	}
	adapter := New(api)

	if _, err := adapter.FetchMonthlyMetrics(context.Background(), identity(), window()); err == nil {
		t.Error("Every month failing must be an error")
	}
}

func TestFetchMonthlyMetrics_MissingCredentials(t *testing.T) {
	adapter := New(&fakeAPI{})
	_, err := adapter.FetchMonthlyMetrics(context.Background(), source.Identity{CustomerID: "c"}, window())
	if err != source.ErrSourceUnavailable {
		t.Errorf("Expected ErrSourceUnavailable, got %v", err)
	}
}

func TestParseMonthLabel(t *testing.T) {
	if key, ok := parseMonthLabel("2026-09"); !ok || key != (bucket.MonthKey{Year: 2026, Month: 9}) {
		t.Errorf("Expected 2026-09, got %v ok=%v", key, ok)
	}
	for _, bad := range []string{"2026-13", "2026/09", "26-09", "abcd-ef", ""} {
		if _, ok := parseMonthLabel(bad); ok {
			t.Errorf("%q should not parse", bad)
		}
	}
}
