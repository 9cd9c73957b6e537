package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nicktill/journeyboard/pkg/config"
	"github.com/nicktill/journeyboard/pkg/httpx"
	"github.com/nicktill/journeyboard/pkg/store"
)

// Handler exposes the collection trigger and status read endpoints.
type Handler struct {
	store     store.Store
	collector *Collector
	tracker   *Tracker
}

// NewHandler creates a collection handler.
func NewHandler(s store.Store, collector *Collector, tracker *Tracker) *Handler {
	return &Handler{store: s, collector: collector, tracker: tracker}
}

// CollectRequest is the payload for POST /v1/customers/{id}/collect.
type CollectRequest struct {
	Days           int  `json:"days,omitempty"`
	CollectHistory bool `json:"collect_history,omitempty"`
}

// HandleCollect handles POST /v1/customers/{id}/collect. The run executes
// in the background; the response carries the initial status snapshot.
func (h *Handler) HandleCollect(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["id"]

	cust, err := h.store.GetCustomer(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.RespondErrorString(w, http.StatusNotFound, "customer not found")
			return
		}
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}

	var req CollectRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
			return
		}
	}
	if req.Days < 0 {
		httpx.RespondErrorString(w, http.StatusBadRequest, "days must be positive")
		return
	}

	if !h.tracker.Begin(customerID) {
		httpx.RespondErrorString(w, http.StatusConflict, "collection already running for customer")
		return
	}

	// The run outlives the request; it gets its own bounded context.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.CollectTimeout)
		defer cancel()
		h.collector.Run(ctx, cust, Options{Days: req.Days, CollectHistory: req.CollectHistory})
	}()

	httpx.RespondJSON(w, http.StatusAccepted, h.tracker.Snapshot(customerID))
}

// HandleStatus handles GET /v1/customers/{id}/collect/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["id"]
	httpx.RespondJSON(w, http.StatusOK, h.tracker.Snapshot(customerID))
}
