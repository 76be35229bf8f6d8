// Package badger persists bootstrap results in an embedded BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"sort"
	"time"

	"bootfit/internal"
	"bootfit/internal/errors"
	"bootfit/ports"

	"github.com/dgraph-io/badger/v4"
)

// Key layout: meta/<id> holds the JSON summary, blob/<id> the serialized result.
const (
	metaPrefix = "meta/"
	blobPrefix = "blob/"
)

// Config configures the store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path       string
	InMemory   bool
	SyncWrites bool
	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval     time.Duration
	GCDiscardRatio float64
	Logger         *internal.Logger
}

// DefaultConfig returns a durable on-disk configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration without disk persistence.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *internal.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Error(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warn(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.logger.Debug(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Trace(format, args...) }

// ResultStore implements ports.ResultStore on BadgerDB.
type ResultStore struct {
	db     *badger.DB
	logger *internal.Logger
	stopGC chan struct{}
	doneGC chan struct{}
}

var _ ports.ResultStore = (*ResultStore)(nil)

// Open opens or creates the database described by cfg.
func Open(cfg Config) (*ResultStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.ConfigInvalid("badger path is required for a persistent store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = internal.NopLogger()
	}
	logger = logger.With("Badger")

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, errors.Wrapf(err, "create database directory %s", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1).WithLogger(badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(errors.WithCode(errors.CodeDatabaseError, err), "open badger database")
	}
	s := &ResultStore{db: db, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

func (s *ResultStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite only means there was nothing to collect.
			if err := s.db.RunValueLogGC(ratio); err != nil && !stderrors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("value log GC: %v", err)
			}
		}
	}
}

// Close stops GC and closes the database.
func (s *ResultStore) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
	}
	return s.db.Close()
}

// Save writes the summary and blob in one transaction.
func (s *ResultStore) Save(ctx context.Context, result *ports.StoredResult) error {
	if result == nil || result.ID == "" {
		return errors.InvalidInput("result id is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	summary := *result
	summary.Blob = nil
	meta, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "encode result summary")
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(metaPrefix+result.ID), meta); err != nil {
			return err
		}
		return txn.Set([]byte(blobPrefix+result.ID), result.Blob)
	})
	if err != nil {
		return errors.Wrap(errors.WithCode(errors.CodeDatabaseError, err), "failed to save result "+result.ID)
	}
	return nil
}

// Load reads a result with its blob.
func (s *ResultStore) Load(ctx context.Context, id string) (*ports.StoredResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var stored ports.StoredResult
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + id))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &stored) }); err != nil {
			return err
		}
		item, err = txn.Get([]byte(blobPrefix + id))
		if err != nil {
			return err
		}
		stored.Blob, err = item.ValueCopy(nil)
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.NotFound("result " + id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.WithCode(errors.CodeDatabaseError, err), "failed to load result "+id)
	}
	return &stored, nil
}

// List returns summaries newest first. A non-positive limit returns all.
func (s *ResultStore) List(ctx context.Context, limit int) ([]*ports.StoredResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*ports.StoredResult
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var summary ports.StoredResult
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &summary) }); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, &summary)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.WithCode(errors.CodeDatabaseError, err), "failed to list results")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes a result.
func (s *ResultStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(metaPrefix + id)); err != nil {
			return err
		}
		if err := txn.Delete([]byte(metaPrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(blobPrefix + id))
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return errors.NotFound("result " + id)
	}
	if err != nil {
		return errors.Wrap(errors.WithCode(errors.CodeDatabaseError, err), "failed to delete result "+id)
	}
	return nil
}
