// Package store defines the persistence model: customers, their platform
// credentials, and the monthly KPI records the collection pipeline writes.
// Implementations: badger (production), memory (testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nicktill/journeyboard/pkg/bucket"
	"github.com/nicktill/journeyboard/pkg/journey"
)

// ErrNotFound is returned when a looked-up entity does not exist.
var ErrNotFound = errors.New("not found")

// Record is one persisted (customer, channel, stage, kpi, month) metric.
// Writing the same key again overwrites; re-running a month never
// duplicates.
type Record struct {
	CustomerID     string          `json:"customer_id"`
	Channel        journey.Channel `json:"channel"`
	Stage          journey.Stage   `json:"stage"`
	KPIName        string          `json:"kpi_name"`
	KPIValue       float64         `json:"kpi_value"`
	BenchmarkValue float64         `json:"benchmark_value"`
	PeriodDays     int             `json:"period_days"`
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	RecordedAt     time.Time       `json:"recorded_at"`
}

// MonthKey returns the record's month bucket.
func (r Record) MonthKey() bucket.MonthKey {
	return bucket.MonthKey{Year: r.Year, Month: r.Month}
}

// Customer is a dashboard customer profile.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Industry  string    `json:"industry"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MetricStore persists monthly KPI records under hierarchical keys.
type MetricStore interface {
	// Put writes one record, overwriting any prior record for the same
	// (customer, channel, stage, kpi, year, month) key.
	Put(ctx context.Context, rec Record) error

	// History returns the last months records for one KPI ending at the
	// current month, oldest first. Months with no record are skipped.
	History(ctx context.Context, customerID string, channel journey.Channel, stage journey.Stage, kpi string, months int) ([]Record, error)

	// Latest returns the most recent record per KPI under (customer,
	// channel, stage).
	Latest(ctx context.Context, customerID string, channel journey.Channel, stage journey.Stage) ([]Record, error)
}

// CustomerStore manages customer profiles. Deleting a customer cascades to
// every metric record and credential stored under that customer.
type CustomerStore interface {
	CreateCustomer(ctx context.Context, c Customer) error
	GetCustomer(ctx context.Context, id string) (Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	UpdateCustomer(ctx context.Context, c Customer) error
	DeleteCustomer(ctx context.Context, id string) error
}

// CredentialStore manages per-customer, per-platform API credentials.
type CredentialStore interface {
	SetCredentials(ctx context.Context, customerID, platform string, creds map[string]string) error
	GetCredentials(ctx context.Context, customerID, platform string) (map[string]string, error)
	AllCredentials(ctx context.Context, customerID string) (map[string]map[string]string, error)
}

// Store is the full persistence surface the server wires up.
type Store interface {
	MetricStore
	CustomerStore
	CredentialStore
	Close() error
}
