package testing

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/repository"
	"github.com/amirphl/docnum/utils"
)

// MemorySequenceStore is an in-process SequenceStore with fault injection hooks
type MemorySequenceStore struct {
	mu       sync.Mutex
	counters map[string]*models.SequenceCounter
	entries  map[string]*models.NumberLog

	pendingConflicts int
	beforeUpdate     func(scopeKey string)
	appendErr        error
	storeErr         error
	updateCalls      int
}

var _ repository.SequenceStore = (*MemorySequenceStore)(nil)

// NewMemorySequenceStore creates an empty store
func NewMemorySequenceStore() *MemorySequenceStore {
	return &MemorySequenceStore{
		counters: make(map[string]*models.SequenceCounter),
		entries:  make(map[string]*models.NumberLog),
	}
}

// InjectConflicts makes the next n conditional updates report a version conflict
func (m *MemorySequenceStore) InjectConflicts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingConflicts = n
}

// OnConditionalUpdate registers a hook run before every conditional update, outside the lock,
// so it can write to the store the way a competing process would.
func (m *MemorySequenceStore) OnConditionalUpdate(fn func(scopeKey string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beforeUpdate = fn
}

// FailAppends makes every history append return err (nil restores normal behaviour)
func (m *MemorySequenceStore) FailAppends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
}

// FailCounters makes every counter operation return err (nil restores normal behaviour)
func (m *MemorySequenceStore) FailCounters(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeErr = err
}

// ConditionalUpdateCalls returns how many conditional updates were attempted
func (m *MemorySequenceStore) ConditionalUpdateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateCalls
}

// Entries returns every history entry newest first
func (m *MemorySequenceStore) Entries() []*models.NumberLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

func (m *MemorySequenceStore) ByScopeKey(_ context.Context, scopeKey string) (*models.SequenceCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	counter, ok := m.counters[scopeKey]
	if !ok {
		return nil, nil
	}
	clone := *counter
	return &clone, nil
}

func (m *MemorySequenceStore) GetOrCreate(_ context.Context, code string, year int) (*models.SequenceCounter, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return nil, false, m.storeErr
	}

	scopeKey := models.ScopeKey(code, year)
	if counter, ok := m.counters[scopeKey]; ok {
		clone := *counter
		return &clone, true, nil
	}
	counter := models.NewSequenceCounter(code, year, utils.UTCNow())
	m.counters[scopeKey] = counter
	clone := *counter
	return &clone, false, nil
}

func (m *MemorySequenceStore) ConditionalUpdate(_ context.Context, counter *models.SequenceCounter, expectedVersion string) error {
	m.mu.Lock()
	hook := m.beforeUpdate
	m.mu.Unlock()
	if hook != nil {
		hook(counter.ScopeKey)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.storeErr != nil {
		return m.storeErr
	}
	if m.pendingConflicts > 0 {
		m.pendingConflicts--
		return repository.ErrVersionConflict
	}

	stored, ok := m.counters[counter.ScopeKey]
	if !ok {
		return repository.ErrCounterNotFound
	}
	if stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	m.replace(stored, counter)
	return nil
}

func (m *MemorySequenceStore) Overwrite(_ context.Context, counter *models.SequenceCounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	stored, ok := m.counters[counter.ScopeKey]
	if !ok {
		return repository.ErrCounterNotFound
	}
	m.replace(stored, counter)
	return nil
}

func (m *MemorySequenceStore) replace(stored, counter *models.SequenceCounter) {
	stored.CurrentNumber = counter.CurrentNumber
	stored.Version = models.NewConcurrencyToken()
	stored.UpdatedAt = utils.UTCNow()
	counter.Version = stored.Version
	counter.UpdatedAt = stored.UpdatedAt
}

func (m *MemorySequenceStore) List(_ context.Context) ([]*models.SequenceCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	counters := make([]*models.SequenceCounter, 0, len(m.counters))
	for _, counter := range m.counters {
		clone := *counter
		counters = append(counters, &clone)
	}
	sortCounters(counters)
	return counters, nil
}

func (m *MemorySequenceStore) Append(_ context.Context, entry *models.NumberLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	clone := *entry
	m.entries[entry.ID] = &clone
	return nil
}

func (m *MemorySequenceStore) ByID(_ context.Context, id string) (*models.NumberLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	clone := *entry
	return &clone, nil
}

func (m *MemorySequenceStore) ByFilter(_ context.Context, filter models.NumberLogFilter, limit, offset int) ([]*models.NumberLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return repository.SelectEntries(m.snapshot(), filter, limit, offset), nil
}

func (m *MemorySequenceStore) Count(_ context.Context, filter models.NumberLogFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(repository.SelectEntries(m.snapshot(), filter, 0, 0))), nil
}

func (m *MemorySequenceStore) Statistics(_ context.Context, filter models.NumberLogFilter) (*models.NumberLogStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return repository.AccumulateStatistics(m.snapshot(), filter), nil
}

// snapshot copies the entries newest first. Caller holds mu.
func (m *MemorySequenceStore) snapshot() []*models.NumberLog {
	entries := make([]*models.NumberLog, 0, len(m.entries))
	for _, entry := range m.entries {
		clone := *entry
		entries = append(entries, &clone)
	}
	repository.SortNewestFirst(entries)
	return entries
}

func sortCounters(counters []*models.SequenceCounter) {
	slices.SortFunc(counters, func(a, b *models.SequenceCounter) int {
		return strings.Compare(a.ScopeKey, b.ScopeKey)
	})
}
