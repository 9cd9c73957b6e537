// Package customer exposes CRUD for customer profiles and their
// per-platform API credentials.
package customer

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/nicktill/journeyboard/pkg/httpx"
	"github.com/nicktill/journeyboard/pkg/journey"
	"github.com/nicktill/journeyboard/pkg/store"
)

// Handler serves the customer management endpoints.
type Handler struct {
	store store.Store
}

// NewHandler creates a customer handler.
func NewHandler(s store.Store) *Handler {
	return &Handler{store: s}
}

// CustomerRequest is the payload for create and update.
type CustomerRequest struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

// HandleCreate handles POST /v1/customers.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "name is required")
		return
	}

	now := time.Now()
	cust := store.Customer{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Industry:  strings.ToLower(strings.TrimSpace(req.Industry)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateCustomer(r.Context(), cust); err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, cust)
}

// HandleList handles GET /v1/customers.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	customers, err := h.store.ListCustomers(r.Context())
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"customers": customers,
		"count":     len(customers),
	})
}

// HandleGet handles GET /v1/customers/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	cust, err := h.store.GetCustomer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondStoreError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, cust)
}

// HandleUpdate handles PUT /v1/customers/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	cust, err := h.store.GetCustomer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var req CustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		cust.Name = name
	}
	if industry := strings.TrimSpace(req.Industry); industry != "" {
		cust.Industry = strings.ToLower(industry)
	}
	cust.UpdatedAt = time.Now()

	if err := h.store.UpdateCustomer(r.Context(), cust); err != nil {
		respondStoreError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, cust)
}

// HandleDelete handles DELETE /v1/customers/{id}. The delete cascades to
// every metric record and credential stored under the customer.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.store.GetCustomer(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	if err := h.store.DeleteCustomer(r.Context(), id); err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetCredentials handles PUT /v1/customers/{id}/credentials/{platform}.
// The body is a flat key/value map merged into any credentials already
// stored for the platform.
func (h *Handler) HandleSetCredentials(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	channel, err := journey.ParseChannel(vars["platform"])
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := h.store.GetCustomer(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}

	var creds map[string]string
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if len(creds) == 0 {
		httpx.RespondErrorString(w, http.StatusBadRequest, "at least one credential is required")
		return
	}

	if err := h.store.SetCredentials(r.Context(), id, string(channel), creds); err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

// HandleGetCredentials handles GET /v1/customers/{id}/credentials. Secret
// values never leave the store; only key names and masked previews are
// returned.
func (h *Handler) HandleGetCredentials(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.store.GetCustomer(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}

	all, err := h.store.AllCredentials(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}

	masked := make(map[string]map[string]string, len(all))
	for platform, creds := range all {
		entry := make(map[string]string, len(creds))
		for key, value := range creds {
			entry[key] = mask(value)
		}
		masked[platform] = entry
	}
	httpx.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"customer_id": id,
		"credentials": masked,
	})
}

// mask hides all but the last four characters of a secret.
func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		httpx.RespondErrorString(w, http.StatusNotFound, "customer not found")
		return
	}
	httpx.RespondError(w, http.StatusInternalServerError, err)
}
