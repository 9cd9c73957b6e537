package collect

import (
	"sync"
	"time"

	"github.com/nicktill/journeyboard/pkg/config"
	"github.com/nicktill/journeyboard/pkg/journey"
)

// RunState is the overall state of one customer's collection run.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateStarting   RunState = "starting"
	StateCollecting RunState = "collecting"
	StateCompleted  RunState = "completed"
	StateError      RunState = "error"
)

// SourceState is the per-source state inside a run.
type SourceState string

const (
	SourcePending    SourceState = "pending"
	SourceCollecting SourceState = "collecting"
	SourceCompleted  SourceState = "completed"
	SourceFailed     SourceState = "failed"

	// SourceSkipped marks a channel with no stored credentials. Skipped
	// channels do not count toward partial-data detection.
	SourceSkipped SourceState = "skipped"
)

// SourceStatus is the observable state of one source in a run.
type SourceStatus struct {
	Status  SourceState `json:"status"`
	Message string      `json:"message"`
}

// Status is the observable state of one customer's collection run. Reads
// get a copy; a snapshot may lag the live run by one update but never runs
// ahead of it.
type Status struct {
	CustomerID           string                  `json:"customer_id"`
	Status               RunState                `json:"status"`
	Progress             int                     `json:"progress"`
	Message              string                  `json:"message"`
	Sources              map[string]SourceStatus `json:"sources"`
	PartialDataAvailable bool                    `json:"partial_data_available"`
	ElapsedSeconds       float64                 `json:"elapsed_seconds"`
	UpdatedAt            time.Time               `json:"updated_at"`
}

// sourceKey maps a channel to its short status key.
func sourceKey(c journey.Channel) string {
	switch c {
	case journey.ChannelSocial:
		return "social"
	case journey.ChannelEmail:
		return "email"
	default:
		return "website"
	}
}

type runStatus struct {
	Status
	startedAt  time.Time
	finishedAt time.Time
}

func (r *runStatus) active() bool {
	return r.Status.Status == StateStarting || r.Status.Status == StateCollecting
}

// Tracker holds the live status of collection runs, one entry per customer.
// All mutations happen under one mutex; source workers touch disjoint source
// slots but share the overall progress fields.
type Tracker struct {
	mu     sync.RWMutex
	runs   map[string]*runStatus
	max    int
	notify func(Status)
}

// NewTracker creates a status tracker capped at config.StatusMaxCustomers
// entries.
func NewTracker() *Tracker {
	return &Tracker{
		runs: make(map[string]*runStatus),
		max:  config.StatusMaxCustomers,
	}
}

// SetNotify installs a best-effort observer called with a snapshot after
// every update. The callback must not block.
func (t *Tracker) SetNotify(fn func(Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notify = fn
}

// Begin claims a run slot for the customer. It fails when a run is already
// active so concurrent triggers cannot interleave.
func (t *Tracker) Begin(customerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if run, ok := t.runs[customerID]; ok && run.active() {
		return false
	}
	t.evictLocked()

	sources := make(map[string]SourceStatus, len(journey.Channels()))
	for _, c := range journey.Channels() {
		sources[sourceKey(c)] = SourceStatus{Status: SourcePending}
	}
	now := time.Now()
	t.runs[customerID] = &runStatus{
		Status: Status{
			CustomerID: customerID,
			Status:     StateStarting,
			Message:    "starting collection",
			Sources:    sources,
			UpdatedAt:  now,
		},
		startedAt: now,
	}
	t.notifyLocked(customerID)
	return true
}

// evictLocked drops the oldest-updated finished run once the cap is hit.
func (t *Tracker) evictLocked() {
	if len(t.runs) < t.max {
		return
	}
	var oldestID string
	var oldest time.Time
	for id, run := range t.runs {
		if run.active() {
			continue
		}
		if oldestID == "" || run.UpdatedAt.Before(oldest) {
			oldestID = id
			oldest = run.UpdatedAt
		}
	}
	if oldestID != "" {
		delete(t.runs, oldestID)
	}
}

// SetProgress updates the overall state, progress percentage and message.
func (t *Tracker) SetProgress(customerID string, state RunState, progress int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[customerID]
	if !ok {
		return
	}
	run.Status.Status = state
	run.Progress = progress
	run.Message = message
	run.UpdatedAt = time.Now()
	t.notifyLocked(customerID)
}

// SetSource updates one source's slot.
func (t *Tracker) SetSource(customerID string, channel journey.Channel, state SourceState, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[customerID]
	if !ok {
		return
	}
	run.Sources[sourceKey(channel)] = SourceStatus{Status: state, Message: message}
	run.UpdatedAt = time.Now()
	t.notifyLocked(customerID)
}

// Finish records the run's terminal state. Elapsed time freezes here.
func (t *Tracker) Finish(customerID string, state RunState, partial bool, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[customerID]
	if !ok {
		return
	}
	now := time.Now()
	run.Status.Status = state
	run.Progress = 100
	run.Message = message
	run.PartialDataAvailable = partial
	run.UpdatedAt = now
	run.finishedAt = now
	t.notifyLocked(customerID)
}

// Snapshot returns a copy of the customer's run status. Customers with no
// recorded run get an idle status.
func (t *Tracker) Snapshot(customerID string) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	run, ok := t.runs[customerID]
	if !ok {
		return Status{CustomerID: customerID, Status: StateIdle, Sources: map[string]SourceStatus{}}
	}
	return run.snapshotLocked()
}

// Active reports whether a run is in flight for the customer.
func (t *Tracker) Active(customerID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[customerID]
	return ok && run.active()
}

func (r *runStatus) snapshotLocked() Status {
	s := r.Status
	s.Sources = make(map[string]SourceStatus, len(r.Sources))
	for k, v := range r.Sources {
		s.Sources[k] = v
	}
	end := r.finishedAt
	if end.IsZero() {
		end = time.Now()
	}
	s.ElapsedSeconds = end.Sub(r.startedAt).Seconds()
	return s
}

func (t *Tracker) notifyLocked(customerID string) {
	if t.notify == nil {
		return
	}
	if run, ok := t.runs[customerID]; ok {
		t.notify(run.snapshotLocked())
	}
}
