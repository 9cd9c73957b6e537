package export

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/journeyboard/pkg/httpx"
	"github.com/nicktill/journeyboard/pkg/store"
)

// Handler serves backup and restore endpoints.
type Handler struct {
	store    store.Store
	exporter *Exporter
	importer *Importer
}

// NewHandler creates an export/import handler.
func NewHandler(s store.Store) *Handler {
	return &Handler{
		store:    s,
		exporter: NewExporter(s),
		importer: NewImporter(s),
	}
}

// HandleExport handles GET /v1/customers/{id}/export.
// Query params:
//   - format: "json" or "csv" (default: json)
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["id"]
	if _, err := h.store.GetCustomer(r.Context(), customerID); err != nil {
		respondStoreError(w, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "format must be 'json' or 'csv'")
		return
	}

	timestamp := time.Now().Format("20060102-150405")
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=journeyboard-%s-%s.json", customerID, timestamp))
	} else {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=journeyboard-%s-%s.csv", customerID, timestamp))
	}

	var result *Result
	var err error
	if format == "json" {
		result, err = h.exporter.ExportToJSON(r.Context(), w, customerID)
	} else {
		result, err = h.exporter.ExportToCSV(r.Context(), w, customerID)
	}
	if err != nil {
		log.Printf("Export failed for %s: %v", customerID, err)
		return
	}
	log.Printf("Exported %d records (%s) for customer %s", result.RecordsExported, format, customerID)
}

// HandleImport handles POST /v1/customers/{id}/import with a JSON backup
// body.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["id"]
	if _, err := h.store.GetCustomer(r.Context(), customerID); err != nil {
		respondStoreError(w, err)
		return
	}

	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		httpx.RespondErrorString(w, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}

	result, err := h.importer.ImportFromJSON(r.Context(), r.Body, customerID)
	if err != nil {
		log.Printf("Import failed for %s: %v", customerID, err)
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	if len(result.Errors) > 0 {
		log.Printf("Import for %s skipped %d invalid records", customerID, result.RecordsSkipped)
	}
	log.Printf("Imported %d records for customer %s", result.RecordsImported, customerID)
	httpx.RespondJSON(w, http.StatusOK, result)
}

func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		httpx.RespondErrorString(w, http.StatusNotFound, "customer not found")
		return
	}
	httpx.RespondError(w, http.StatusInternalServerError, err)
}
