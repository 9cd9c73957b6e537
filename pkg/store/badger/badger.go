// Package badger persists the metric store in BadgerDB (LSM tree) using
// hierarchical string keys, so customer-, channel- and stage-scoped reads
// and the customer cascade delete are all prefix scans.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/nicktill/journeyboard/pkg/bucket"
	"github.com/nicktill/journeyboard/pkg/journey"
	"github.com/nicktill/journeyboard/pkg/store"
)

// Key layout:
//
//	c/<customerID>                                         -> Customer
//	k/<customerID>/<platform>                              -> credential map
//	m/<customerID>/<channel>/<stage>/<kpiHash>/<YYYY>/<MM> -> Record
//
// kpiHash is a fixed-width xxhash of the KPI display name: KPI names carry
// spaces and arbitrary punctuation, so hashing keeps the key segment
// separator-safe while the full name lives in the record value.

// Storage implements store.Store using BadgerDB.
type Storage struct {
	db *badger.DB
}

// Config holds BadgerDB configuration.
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = defaults)
	MaxMemoryMB int64
}

// New opens a BadgerDB-backed store.
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// Monthly KPI records are tiny and low-volume; bias every knob
	// toward a small steady-state footprint over ingest throughput.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumCompactors(1).
		WithValueThreshold(1024).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close shuts down BadgerDB cleanly.
func (s *Storage) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection.
// discardRatio: run GC if this fraction of a file can be discarded.
func (s *Storage) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

func customerKey(id string) []byte {
	return []byte("c/" + id)
}

func credentialKey(customerID, platform string) []byte {
	return []byte("k/" + customerID + "/" + platform)
}

func metricKey(customerID string, channel journey.Channel, stage journey.Stage, kpi string, key bucket.MonthKey) []byte {
	return []byte(fmt.Sprintf("m/%s/%s/%s/%s/%04d/%02d",
		customerID, channel, stage, kpiHash(kpi), key.Year, key.Month))
}

func stagePrefix(customerID string, channel journey.Channel, stage journey.Stage) []byte {
	return []byte(fmt.Sprintf("m/%s/%s/%s/", customerID, channel, stage))
}

func kpiHash(kpi string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.ToLower(kpi)))
}

// Put writes one record; same key overwrites.
func (s *Storage) Put(ctx context.Context, rec store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	key := metricKey(rec.CustomerID, rec.Channel, rec.Stage, rec.KPIName, rec.MonthKey())
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// History walks back month by month from the current month and collects the
// records that exist, returned oldest first.
func (s *Storage) History(ctx context.Context, customerID string, channel journey.Channel, stage journey.Stage, kpi string, months int) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := bucket.LastN(time.Now(), months)
	var results []store.Record

	err := s.db.View(func(txn *badger.Txn) error {
		for _, k := range keys {
			item, err := txn.Get(metricKey(customerID, channel, stage, kpi, k))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var rec store.Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("failed to decode record: %w", err)
			}
			results = append(results, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Latest scans the stage prefix and keeps the most recent record per KPI.
func (s *Storage) Latest(ctx context.Context, customerID string, channel journey.Channel, stage journey.Stage) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	newest := make(map[string]store.Record)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := stagePrefix(customerID, channel, stage)
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec store.Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("failed to decode record: %w", err)
			}
			prev, ok := newest[rec.KPIName]
			if !ok || prev.MonthKey().Before(rec.MonthKey()) {
				newest[rec.KPIName] = rec
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
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
	value, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(customerKey(c.ID), value)
	})
}

// GetCustomer fetches one customer profile.
func (s *Storage) GetCustomer(ctx context.Context, id string) (store.Customer, error) {
	if err := ctx.Err(); err != nil {
		return store.Customer{}, err
	}
	var c store.Customer
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(customerKey(id))
		if err == badger.ErrKeyNotFound {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &c)
		})
	})
	return c, err
}

// ListCustomers returns every customer profile sorted by name.
func (s *Storage) ListCustomers(ctx context.Context) ([]store.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var customers []store.Customer
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte("c/")
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var c store.Customer
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return err
			}
			customers = append(customers, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(customers, func(i, j int) bool {
		return customers[i].Name < customers[j].Name
	})
	return customers, nil
}

// UpdateCustomer overwrites an existing customer profile.
func (s *Storage) UpdateCustomer(ctx context.Context, c store.Customer) error {
	if _, err := s.GetCustomer(ctx, c.ID); err != nil {
		return err
	}
	return s.CreateCustomer(ctx, c)
}

// DeleteCustomer removes the profile and everything stored under the
// customer: credentials and all metric records.
func (s *Storage) DeleteCustomer(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(customerKey(id)); err != nil {
			return err
		}
		for _, prefix := range [][]byte{
			[]byte("k/" + id + "/"),
			[]byte("m/" + id + "/"),
		} {
			if err := deletePrefix(ctx, txn, prefix); err != nil {
				return err
			}
		}
		return nil
	})
}

// deletePrefix collects then deletes every key under prefix.
func deletePrefix(ctx context.Context, txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	var iterCount int
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		iterCount++
		if iterCount%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		keys = append(keys, it.Item().KeyCopy(nil))
	}

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// SetCredentials merges the given key/value pairs into the customer's
// stored credentials for one platform.
func (s *Storage) SetCredentials(ctx context.Context, customerID, platform string, creds map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		merged := make(map[string]string)
		item, err := txn.Get(credentialKey(customerID, platform))
		if err == nil {
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &merged)
			}); err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		for k, v := range creds {
			merged[k] = v
		}

		value, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		return txn.Set(credentialKey(customerID, platform), value)
	})
}

// GetCredentials returns the credential map for one platform, empty when
// none are stored.
func (s *Storage) GetCredentials(ctx context.Context, customerID, platform string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	creds := make(map[string]string)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(credentialKey(customerID, platform))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &creds)
		})
	})
	if err != nil {
		return nil, err
	}
	return creds, nil
}

// AllCredentials returns every platform's credential map for a customer.
func (s *Storage) AllCredentials(ctx context.Context, customerID string) (map[string]map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all := make(map[string]map[string]string)
	prefix := []byte("k/" + customerID + "/")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			platform := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			creds := make(map[string]string)
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &creds)
			}); err != nil {
				return err
			}
			all[platform] = creds
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}
