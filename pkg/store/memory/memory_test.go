package memory

import (
	"context"
	"testing"
	"time"

	"github.com/nicktill/journeyboard/pkg/bucket"
	"github.com/nicktill/journeyboard/pkg/journey"
	"github.com/nicktill/journeyboard/pkg/store"
)

func record(customerID string, key bucket.MonthKey, kpi string, value float64) store.Record {
	return store.Record{
		CustomerID: customerID,
		Channel:    journey.ChannelEmail,
		Stage:      journey.StageEngagement,
		KPIName:    kpi,
		KPIValue:   value,
		Year:       key.Year,
		Month:      key.Month,
		RecordedAt: time.Now(),
	}
}

func TestMemoryStorage_PutHistoryLatest(t *testing.T) {
	s := New()
	defer s.Close()

	ctx := context.Background()
	current := bucket.KeyFor(time.Now())
	previous := current.Prev()

	for _, rec := range []store.Record{
		record("cust-1", previous, "Open Rate", 21.5),
		record("cust-1", current, "Open Rate", 24.0),
		record("cust-1", current, "Click Rate", 3.2),
	} {
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	// Overwrite the current month.
	if err := s.Put(ctx, record("cust-1", current, "Open Rate", 25.0)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	history, err := s.History(ctx, "cust-1", journey.ChannelEmail, journey.StageEngagement, "Open Rate", 12)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(history))
	}
	if history[0].KPIValue != 21.5 || history[1].KPIValue != 25.0 {
		t.Errorf("Expected chronological [21.5 25.0], got [%v %v]", history[0].KPIValue, history[1].KPIValue)
	}

	latest, err := s.Latest(ctx, "cust-1", journey.ChannelEmail, journey.StageEngagement)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("Expected 2 KPIs, got %d", len(latest))
	}
	if latest[1].KPIName != "Open Rate" || latest[1].KPIValue != 25.0 {
		t.Errorf("Expected latest Open Rate 25.0, got %+v", latest[1])
	}
}

func TestMemoryStorage_DeleteCustomerCascades(t *testing.T) {
	s := New()
	defer s.Close()

	ctx := context.Background()
	key := bucket.KeyFor(time.Now())

	if err := s.CreateCustomer(ctx, store.Customer{ID: "cust-1", Name: "One"}); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	if err := s.SetCredentials(ctx, "cust-1", "email", map[string]string{"api_key": "key"}); err != nil {
		t.Fatalf("SetCredentials failed: %v", err)
	}
	if err := s.Put(ctx, record("cust-1", key, "Open Rate", 20)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, record("cust-2", key, "Open Rate", 30)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := s.DeleteCustomer(ctx, "cust-1"); err != nil {
		t.Fatalf("DeleteCustomer failed: %v", err)
	}

	if _, err := s.GetCustomer(ctx, "cust-1"); err != store.ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	history, _ := s.History(ctx, "cust-1", journey.ChannelEmail, journey.StageEngagement, "Open Rate", 1)
	if len(history) != 0 {
		t.Errorf("Expected metrics gone, got %d", len(history))
	}
	other, _ := s.History(ctx, "cust-2", journey.ChannelEmail, journey.StageEngagement, "Open Rate", 1)
	if len(other) != 1 {
		t.Errorf("Expected other customer's record to survive, got %d", len(other))
	}
}
