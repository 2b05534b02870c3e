package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/utils"
	"github.com/cockroachdb/pebble"
)

const (
	pebbleCounterPrefix = "counter/"
	pebbleHistoryPrefix = "history/"
	pebbleEntryPrefix   = "entry/"
)

// PebbleSequenceStore is an embedded single-process backend. History keys are
// history/<scope>/<ordering key>, so a prefix scan of one scope is already newest first.
// The mutex makes read-compare-write on a counter atomic.
type PebbleSequenceStore struct {
	db *pebble.DB
	mu sync.Mutex
}

// OpenPebbleSequenceStore opens (or creates) the store in dir
func OpenPebbleSequenceStore(dir string, opts *pebble.Options) (*PebbleSequenceStore, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", dir, err)
	}
	return &PebbleSequenceStore{db: db}, nil
}

func (s *PebbleSequenceStore) Close() error {
	return s.db.Close()
}

func (s *PebbleSequenceStore) ByScopeKey(_ context.Context, scopeKey string) (*models.SequenceCounter, error) {
	return s.readCounter(scopeKey)
}

func (s *PebbleSequenceStore) GetOrCreate(_ context.Context, code string, year int) (*models.SequenceCounter, bool, error) {
	scopeKey := models.ScopeKey(code, year)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readCounter(scopeKey)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}

	counter := models.NewSequenceCounter(code, year, utils.UTCNow())
	if err := s.writeJSON(pebbleCounterPrefix+scopeKey, counter); err != nil {
		return nil, false, fmt.Errorf("failed to create sequence counter %s: %w", scopeKey, err)
	}
	return counter, false, nil
}

func (s *PebbleSequenceStore) ConditionalUpdate(_ context.Context, counter *models.SequenceCounter, expectedVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readCounter(counter.ScopeKey)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrCounterNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}

	return s.replaceCounter(current, counter)
}

func (s *PebbleSequenceStore) Overwrite(_ context.Context, counter *models.SequenceCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readCounter(counter.ScopeKey)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrCounterNotFound
	}

	return s.replaceCounter(current, counter)
}

// replaceCounter writes counter's number over current with a fresh version. Caller holds mu.
func (s *PebbleSequenceStore) replaceCounter(current, counter *models.SequenceCounter) error {
	next := *current
	next.CurrentNumber = counter.CurrentNumber
	next.Version = models.NewConcurrencyToken()
	next.UpdatedAt = utils.UTCNow()
	if err := s.writeJSON(pebbleCounterPrefix+next.ScopeKey, &next); err != nil {
		return fmt.Errorf("failed to update sequence counter %s: %w", next.ScopeKey, err)
	}

	counter.Version = next.Version
	counter.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *PebbleSequenceStore) List(_ context.Context) ([]*models.SequenceCounter, error) {
	counters := []*models.SequenceCounter{}
	err := s.scanPrefix(pebbleCounterPrefix, func(_, value []byte) (bool, error) {
		counter, err := decodeCounter(value)
		if err != nil {
			return false, err
		}
		counters = append(counters, counter)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sequence counters: %w", err)
	}
	return counters, nil
}

func (s *PebbleSequenceStore) Append(_ context.Context, entry *models.NumberLog) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid number log entry: %w", err)
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode number log: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(historyKey(entry.ScopeKey, entry.ID), payload, nil); err != nil {
		return fmt.Errorf("failed to stage number log: %w", err)
	}
	if err := batch.Set([]byte(pebbleEntryPrefix+entry.ID), []byte(entry.ScopeKey), nil); err != nil {
		return fmt.Errorf("failed to stage number log index: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to append number log: %w", err)
	}
	return nil
}

func (s *PebbleSequenceStore) ByID(_ context.Context, id string) (*models.NumberLog, error) {
	scope, closer, err := s.db.Get([]byte(pebbleEntryPrefix + id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read number log index %s: %w", id, err)
	}
	scopeKey := string(scope)
	closer.Close()

	value, closer, err := s.db.Get(historyKey(scopeKey, id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read number log %s: %w", id, err)
	}
	defer closer.Close()

	var entry models.NumberLog
	if err := json.Unmarshal(value, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode number log %s: %w", id, err)
	}
	return &entry, nil
}

func (s *PebbleSequenceStore) ByFilter(_ context.Context, filter models.NumberLogFilter, limit, offset int) ([]*models.NumberLog, error) {
	if scopeKey, ok := filter.Scope(); ok {
		// One scope: key order is newest first, page while scanning.
		entries := []*models.NumberLog{}
		skipped := 0
		err := s.scanPrefix(pebbleHistoryPrefix+scopeKey+"/", func(_, value []byte) (bool, error) {
			entry, err := decodeEntry(value)
			if err != nil {
				return false, err
			}
			if !filter.Matches(entry) {
				return true, nil
			}
			if skipped < offset {
				skipped++
				return true, nil
			}
			entries = append(entries, entry)
			return limit <= 0 || len(entries) < limit, nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan history of %s: %w", scopeKey, err)
		}
		return entries, nil
	}

	entries, err := s.scanHistory()
	if err != nil {
		return nil, err
	}
	return SelectEntries(entries, filter, limit, offset), nil
}

func (s *PebbleSequenceStore) Count(ctx context.Context, filter models.NumberLogFilter) (int64, error) {
	entries, err := s.ByFilter(ctx, filter, 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}

func (s *PebbleSequenceStore) Statistics(_ context.Context, filter models.NumberLogFilter) (*models.NumberLogStatistics, error) {
	entries, err := s.scanHistory()
	if err != nil {
		return nil, err
	}
	return AccumulateStatistics(entries, filter), nil
}

func (s *PebbleSequenceStore) scanHistory() ([]*models.NumberLog, error) {
	var entries []*models.NumberLog
	err := s.scanPrefix(pebbleHistoryPrefix, func(_, value []byte) (bool, error) {
		entry, err := decodeEntry(value)
		if err != nil {
			return false, err
		}
		entries = append(entries, entry)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}
	return entries, nil
}

// scanPrefix visits keys with the prefix in order until fn returns false
func (s *PebbleSequenceStore) scanPrefix(prefix string, fn func(key, value []byte) (bool, error)) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		more, err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

func (s *PebbleSequenceStore) readCounter(scopeKey string) (*models.SequenceCounter, error) {
	value, closer, err := s.db.Get([]byte(pebbleCounterPrefix + scopeKey))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence counter %s: %w", scopeKey, err)
	}
	defer closer.Close()
	return decodeCounter(value)
}

func (s *PebbleSequenceStore) writeJSON(key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Set([]byte(key), payload, pebble.Sync)
}

func historyKey(scopeKey, id string) []byte {
	return []byte(pebbleHistoryPrefix + scopeKey + "/" + id)
}

// prefixUpperBound returns the smallest key greater than every key with the prefix
func prefixUpperBound(prefix string) []byte {
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func decodeEntry(value []byte) (*models.NumberLog, error) {
	var entry models.NumberLog
	if err := json.Unmarshal(value, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode number log: %w", err)
	}
	return &entry, nil
}
