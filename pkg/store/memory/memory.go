// Package memory provides an in-memory store implementation for testing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nicktill/journeyboard/pkg/bucket"
	"github.com/nicktill/journeyboard/pkg/journey"
	"github.com/nicktill/journeyboard/pkg/store"
)

type metricKey struct {
	customerID string
	channel    journey.Channel
	stage      journey.Stage
	kpi        string
	month      bucket.MonthKey
}

// Storage implements store.Store with plain maps behind a mutex.
type Storage struct {
	mu        sync.RWMutex
	metrics   map[metricKey]store.Record
	customers map[string]store.Customer
	creds     map[string]map[string]map[string]string // customerID -> platform -> creds
}

// New creates an empty in-memory store.
func New() *Storage {
	return &Storage{
		metrics:   make(map[metricKey]store.Record),
		customers: make(map[string]store.Customer),
		creds:     make(map[string]map[string]map[string]string),
	}
}

// Close is a no-op for the in-memory store.
func (s *Storage) Close() error { return nil }

func keyOf(rec store.Record) metricKey {
	return metricKey{
		customerID: rec.CustomerID,
		channel:    rec.Channel,
		stage:      rec.Stage,
		kpi:        strings.ToLower(rec.KPIName),
		month:      rec.MonthKey(),
	}
}

// Put writes one record; same key overwrites.
func (s *Storage) Put(ctx context.Context, rec store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[keyOf(rec)] = rec
	return nil
}

// History returns the last months records for one KPI, oldest first.
func (s *Storage) History(ctx context.Context, customerID string, channel journey.Channel, stage journey.Stage, kpi string, months int) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []store.Record
	for _, month := range bucket.LastN(time.Now(), months) {
		k := metricKey{
			customerID: customerID,
			channel:    channel,
			stage:      stage,
			kpi:        strings.ToLower(kpi),
			month:      month,
		}
		if rec, ok := s.metrics[k]; ok {
			results = append(results, rec)
		}
	}
	return results, nil
}

// Latest returns the most recent record per KPI under (customer, channel,
// stage), sorted by KPI name.
func (s *Storage) Latest(ctx context.Context, customerID string, channel journey.Channel, stage journey.Stage) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	newest := make(map[string]store.Record)
	for k, rec := range s.metrics {
		if k.customerID != customerID || k.channel != channel || k.stage != stage {
			continue
		}
		prev, ok := newest[k.kpi]
		if !ok || prev.MonthKey().Before(rec.MonthKey()) {
			newest[k.kpi] = rec
		}
	}

	results := make([]store.Record, 0, len(newest))
	for _, rec := range newest {
		results = append(results, rec)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].KPIName < results[j].KPIName
	})
	return results, nil
}

// CreateCustomer stores a new customer profile.
func (s *Storage) CreateCustomer(ctx context.Context, c store.Customer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
	return nil
}

// GetCustomer fetches one customer profile.
func (s *Storage) GetCustomer(ctx context.Context, id string) (store.Customer, error) {
	if err := ctx.Err(); err != nil {
		return store.Customer{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return store.Customer{}, store.ErrNotFound
	}
	return c, nil
}

// ListCustomers returns every customer profile sorted by name.
func (s *Storage) ListCustomers(ctx context.Context) ([]store.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]store.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	sort.Slice(customers, func(i, j int) bool {
		return customers[i].Name < customers[j].Name
	})
	return customers, nil
}

// UpdateCustomer overwrites an existing customer profile.
func (s *Storage) UpdateCustomer(ctx context.Context, c store.Customer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[c.ID]; !ok {
		return store.ErrNotFound
	}
	s.customers[c.ID] = c
	return nil
}

// DeleteCustomer removes the profile, credentials and metric records.
func (s *Storage) DeleteCustomer(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.customers, id)
	delete(s.creds, id)
	for k := range s.metrics {
		if k.customerID == id {
			delete(s.metrics, k)
		}
	}
	return nil
}

// SetCredentials merges key/value pairs into one platform's credentials.
func (s *Storage) SetCredentials(ctx context.Context, customerID, platform string, creds map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byPlatform, ok := s.creds[customerID]
	if !ok {
		byPlatform = make(map[string]map[string]string)
		s.creds[customerID] = byPlatform
	}
	merged, ok := byPlatform[platform]
	if !ok {
		merged = make(map[string]string)
		byPlatform[platform] = merged
	}
	for k, v := range creds {
		merged[k] = v
	}
	return nil
}

// GetCredentials returns one platform's credential map, empty when none
// are stored.
func (s *Storage) GetCredentials(ctx context.Context, customerID, platform string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string)
	for k, v := range s.creds[customerID][platform] {
		out[k] = v
	}
	return out, nil
}

// AllCredentials returns every platform's credential map for a customer.
func (s *Storage) AllCredentials(ctx context.Context, customerID string) (map[string]map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make(map[string]map[string]string)
	for platform, creds := range s.creds[customerID] {
		out := make(map[string]string, len(creds))
		for k, v := range creds {
			out[k] = v
		}
		all[platform] = out
	}
	return all, nil
}
