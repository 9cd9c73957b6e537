package trend

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/nicktill/journeyboard/pkg/config"
	"github.com/nicktill/journeyboard/pkg/httpx"
	"github.com/nicktill/journeyboard/pkg/journey"
	"github.com/nicktill/journeyboard/pkg/store"
)

// Handler serves the metric read path: latest records per stage and the
// trend-analyzed history of one KPI.
type Handler struct {
	store store.Store
}

// NewHandler creates a metric read handler.
func NewHandler(s store.Store) *Handler {
	return &Handler{store: s}
}

// LatestResponse is the payload for /v1/customers/{id}/metrics.
type LatestResponse struct {
	CustomerID string          `json:"customer_id"`
	Channel    journey.Channel `json:"channel"`
	Stage      journey.Stage   `json:"stage"`
	Metrics    []store.Record  `json:"metrics"`
}

// HandleLatest handles GET /v1/customers/{id}/metrics. With explicit
// channel+stage query params it returns that stage's KPIs; otherwise it
// returns every stage of every channel.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["id"]
	if _, err := h.store.GetCustomer(r.Context(), customerID); err != nil {
		respondStoreError(w, err)
		return
	}

	channelParam := r.URL.Query().Get("channel")
	stageParam := r.URL.Query().Get("stage")

	if channelParam != "" && stageParam != "" {
		channel, err := journey.ParseChannel(channelParam)
		if err != nil {
			httpx.RespondError(w, http.StatusBadRequest, err)
			return
		}
		stage, err := journey.ParseStage(channel, stageParam)
		if err != nil {
			httpx.RespondError(w, http.StatusBadRequest, err)
			return
		}
		records, err := h.store.Latest(r.Context(), customerID, channel, stage)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		httpx.RespondJSON(w, http.StatusOK, LatestResponse{
			CustomerID: customerID,
			Channel:    channel,
			Stage:      stage,
			Metrics:    records,
		})
		return
	}

	out := make(map[journey.Channel]map[journey.Stage][]store.Record)
	for _, channel := range journey.Channels() {
		stages := make(map[journey.Stage][]store.Record)
		for _, stage := range journey.Stages(channel) {
			records, err := h.store.Latest(r.Context(), customerID, channel, stage)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			if len(records) > 0 {
				stages[stage] = records
			}
		}
		if len(stages) > 0 {
			out[channel] = stages
		}
	}
	httpx.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"customer_id": customerID,
		"channels":    out,
	})
}

// HistoryResponse is the payload for /v1/customers/{id}/metrics/history.
type HistoryResponse struct {
	CustomerID string          `json:"customer_id"`
	Channel    journey.Channel `json:"channel"`
	Stage      journey.Stage   `json:"stage"`
	KPI        string          `json:"kpi"`
	Months     int             `json:"months"`
	Records    []store.Record  `json:"records"`
	Trend      Candidate       `json:"trend"`
}

// HandleHistory handles GET /v1/customers/{id}/metrics/history. It pulls the
// last N months for one KPI and runs trend selection over the series.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["id"]
	q := r.URL.Query()

	channel, err := journey.ParseChannel(q.Get("channel"))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	stage, err := journey.ParseStage(channel, q.Get("stage"))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	kpi := q.Get("kpi")
	if kpi == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "kpi parameter is required")
		return
	}

	months := config.TrendDefaultMonths
	if s := q.Get("months"); s != "" {
		months, err = strconv.Atoi(s)
		if err != nil || months < 1 {
			httpx.RespondErrorString(w, http.StatusBadRequest, "months must be a positive integer")
			return
		}
		if months > config.TrendMaxMonths {
			months = config.TrendMaxMonths
		}
	}

	if _, err := h.store.GetCustomer(r.Context(), customerID); err != nil {
		respondStoreError(w, err)
		return
	}

	records, err := h.store.History(r.Context(), customerID, channel, stage, kpi, months)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	series := make([]float64, len(records))
	labels := make([]string, len(records))
	for i, rec := range records {
		series[i] = rec.KPIValue
		labels[i] = rec.MonthKey().String()
	}

	httpx.RespondJSON(w, http.StatusOK, HistoryResponse{
		CustomerID: customerID,
		Channel:    channel,
		Stage:      stage,
		KPI:        kpi,
		Months:     months,
		Records:    records,
		Trend:      SelectBest(series, labels),
	})
}

func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		httpx.RespondErrorString(w, http.StatusNotFound, "customer not found")
		return
	}
	httpx.RespondError(w, http.StatusInternalServerError, err)
}
