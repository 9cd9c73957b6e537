package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nicktill/journeyboard/pkg/journey"
	"github.com/nicktill/journeyboard/pkg/store"
)

// Importer restores metric records from a JSON backup.
type Importer struct {
	store store.Store
}

// NewImporter creates a new importer.
func NewImporter(s store.Store) *Importer {
	return &Importer{store: s}
}

// ImportResult contains stats about one import.
type ImportResult struct {
	RecordsImported int       `json:"records_imported"`
	RecordsSkipped  int       `json:"records_skipped"`
	Errors          []string  `json:"errors,omitempty"`
	ImportedAt      time.Time `json:"imported_at"`
}

// ImportFromJSON reads a backup file and writes its records under the given
// customer. Records carrying a different customer ID are rewritten to the
// target customer; invalid records are skipped with an error note rather
// than aborting the whole import.
func (i *Importer) ImportFromJSON(ctx context.Context, r io.Reader, customerID string) (*ImportResult, error) {
	var backup backupFile
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}

	result := &ImportResult{ImportedAt: time.Now()}
	for idx, rec := range backup.Records {
		if err := validateRecord(rec); err != nil {
			result.RecordsSkipped++
			if len(result.Errors) < 10 {
				result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", idx, err))
			}
			continue
		}

		rec.CustomerID = customerID
		if err := i.store.Put(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to write record %d: %w", idx, err)
		}
		result.RecordsImported++
	}
	return result, nil
}

func validateRecord(rec store.Record) error {
	channel, err := journey.ParseChannel(string(rec.Channel))
	if err != nil {
		return err
	}
	if _, err := journey.ParseStage(channel, string(rec.Stage)); err != nil {
		return err
	}
	if rec.KPIName == "" {
		return fmt.Errorf("missing kpi name")
	}
	if rec.Month < 1 || rec.Month > 12 {
		return fmt.Errorf("month %d out of range", rec.Month)
	}
	if rec.Year < 2000 || rec.Year > 2100 {
		return fmt.Errorf("year %d out of range", rec.Year)
	}
	return nil
}
