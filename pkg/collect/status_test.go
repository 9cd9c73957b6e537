package collect

import (
	"fmt"
	"testing"

	"github.com/nicktill/journeyboard/pkg/journey"
)

func TestTracker_BeginBlocksConcurrentRuns(t *testing.T) {
	tracker := NewTracker()

	if !tracker.Begin("cust-1") {
		t.Fatal("First Begin should succeed")
	}
	if tracker.Begin("cust-1") {
		t.Error("Begin must fail while a run is active")
	}
	// A different customer is unaffected.
	if !tracker.Begin("cust-2") {
		t.Error("Begin for another customer should succeed")
	}

	tracker.Finish("cust-1", StateCompleted, false, "done")
	if !tracker.Begin("cust-1") {
		t.Error("Begin should succeed again after the run finished")
	}
}

func TestTracker_SnapshotIsIdleForUnknownCustomer(t *testing.T) {
	tracker := NewTracker()

	s := tracker.Snapshot("nobody")
	if s.Status != StateIdle {
		t.Errorf("Expected idle, got %s", s.Status)
	}
	if s.Progress != 0 {
		t.Errorf("Expected progress 0, got %d", s.Progress)
	}
}

func TestTracker_SourceTransitionsAndSnapshotCopy(t *testing.T) {
	tracker := NewTracker()
	tracker.Begin("cust-1")

	tracker.SetSource("cust-1", journey.ChannelSocial, SourceCollecting, "fetching")

	snap := tracker.Snapshot("cust-1")
	if snap.Sources["social"].Status != SourceCollecting {
		t.Errorf("Expected collecting, got %s", snap.Sources["social"].Status)
	}
	if snap.Sources["email"].Status != SourcePending {
		t.Errorf("Expected pending, got %s", snap.Sources["email"].Status)
	}

	// Mutating the snapshot must not leak into the tracker.
	snap.Sources["social"] = SourceStatus{Status: SourceFailed}
	if tracker.Snapshot("cust-1").Sources["social"].Status != SourceCollecting {
		t.Error("Snapshot mutation leaked into tracker state")
	}
}

func TestTracker_FinishFreezesElapsed(t *testing.T) {
	tracker := NewTracker()
	tracker.Begin("cust-1")
	tracker.Finish("cust-1", StateCompleted, true, "done")

	first := tracker.Snapshot("cust-1")
	second := tracker.Snapshot("cust-1")
	if first.ElapsedSeconds != second.ElapsedSeconds {
		t.Errorf("Elapsed time must freeze at finish: %v != %v", first.ElapsedSeconds, second.ElapsedSeconds)
	}
	if !first.PartialDataAvailable {
		t.Error("Expected partial flag to be recorded")
	}
}

func TestTracker_EvictsOldestFinishedRunAtCap(t *testing.T) {
	tracker := NewTracker()
	tracker.max = 3

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("cust-%d", i)
		tracker.Begin(id)
		tracker.Finish(id, StateCompleted, false, "done")
	}

	tracker.Begin("cust-new")

	if len(tracker.runs) != 3 {
		t.Errorf("Expected cap of 3 entries, got %d", len(tracker.runs))
	}
	if tracker.Snapshot("cust-0").Status != StateIdle {
		t.Error("Expected oldest finished run to be evicted")
	}
	if tracker.Snapshot("cust-new").Status != StateStarting {
		t.Error("Expected new run to be tracked")
	}
}

func TestTracker_NotifyObservesEveryUpdate(t *testing.T) {
	tracker := NewTracker()

	var seen []RunState
	tracker.SetNotify(func(s Status) {
		seen = append(seen, s.Status)
	})

	tracker.Begin("cust-1")
	tracker.SetProgress("cust-1", StateCollecting, 50, "halfway")
	tracker.Finish("cust-1", StateCompleted, false, "done")

	want := []RunState{StateStarting, StateCollecting, StateCompleted}
	if len(seen) != len(want) {
		t.Fatalf("Expected %d notifications, got %d", len(want), len(seen))
	}
	for i, state := range want {
		if seen[i] != state {
			t.Errorf("Notification %d: expected %s, got %s", i, state, seen[i])
		}
	}
}
