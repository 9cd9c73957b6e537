// Package export implements backup and restore of one customer's metric
// records as downloadable JSON or CSV.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nicktill/journeyboard/pkg/config"
	"github.com/nicktill/journeyboard/pkg/journey"
	"github.com/nicktill/journeyboard/pkg/store"
)

// Exporter reads a customer's full metric history out of the store.
type Exporter struct {
	store store.Store
}

// NewExporter creates a new exporter.
func NewExporter(s store.Store) *Exporter {
	return &Exporter{store: s}
}

// Result contains stats about one export.
type Result struct {
	RecordsExported int       `json:"records_exported"`
	Format          string    `json:"format"`
	ExportedAt      time.Time `json:"exported_at"`
}

// collect walks every (channel, stage, KPI) and pulls the full retained
// history for each.
func (e *Exporter) collect(ctx context.Context, customerID string) ([]store.Record, error) {
	var records []store.Record
	for _, channel := range journey.Channels() {
		for _, kpi := range journey.KPIs(channel) {
			history, err := e.store.History(ctx, customerID, channel, kpi.Stage, kpi.Name, config.TrendMaxMonths)
			if err != nil {
				return nil, fmt.Errorf("failed to read history for %s/%s: %w", channel, kpi.Name, err)
			}
			records = append(records, history...)
		}
	}
	return records, nil
}

// backupFile is the JSON export envelope. Import accepts the same shape.
type backupFile struct {
	Metadata struct {
		CustomerID  string    `json:"customer_id"`
		ExportedAt  time.Time `json:"exported_at"`
		RecordCount int       `json:"record_count"`
		Version     string    `json:"version"`
	} `json:"metadata"`
	Records []store.Record `json:"records"`
}

// ExportToJSON writes the customer's records as a JSON backup.
func (e *Exporter) ExportToJSON(ctx context.Context, w io.Writer, customerID string) (*Result, error) {
	records, err := e.collect(ctx, customerID)
	if err != nil {
		return nil, err
	}

	var backup backupFile
	backup.Metadata.CustomerID = customerID
	backup.Metadata.ExportedAt = time.Now()
	backup.Metadata.RecordCount = len(records)
	backup.Metadata.Version = "1.0"
	backup.Records = records

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}

	return &Result{
		RecordsExported: len(records),
		Format:          "json",
		ExportedAt:      backup.Metadata.ExportedAt,
	}, nil
}

// ExportToCSV writes the customer's records as CSV rows.
func (e *Exporter) ExportToCSV(ctx context.Context, w io.Writer, customerID string) (*Result, error) {
	records, err := e.collect(ctx, customerID)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"year", "month", "channel", "stage", "kpi", "value", "benchmark", "period_days", "recorded_at"}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			strconv.Itoa(rec.Year),
			strconv.Itoa(rec.Month),
			string(rec.Channel),
			string(rec.Stage),
			rec.KPIName,
			strconv.FormatFloat(rec.KPIValue, 'f', -1, 64),
			strconv.FormatFloat(rec.BenchmarkValue, 'f', -1, 64),
			strconv.Itoa(rec.PeriodDays),
			rec.RecordedAt.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	return &Result{
		RecordsExported: len(records),
		Format:          "csv",
		ExportedAt:      time.Now(),
	}, nil
}
