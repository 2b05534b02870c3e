package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/utils"
	"github.com/redis/go-redis/v9"
)

// RedisSequenceStore keeps counters as JSON strings guarded by WATCH/MULTI and the
// history as one lexicographically ordered sorted set per scope.
type RedisSequenceStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSequenceStore creates a redis backed counter and history store
func NewRedisSequenceStore(client *redis.Client, prefix string) *RedisSequenceStore {
	return &RedisSequenceStore{client: client, prefix: prefix}
}

func (s *RedisSequenceStore) counterKey(scopeKey string) string {
	return s.prefix + "seq:counter:" + scopeKey
}

func (s *RedisSequenceStore) historyKey(scopeKey string) string {
	return s.prefix + "seq:history:" + scopeKey
}

func (s *RedisSequenceStore) scopesKey() string {
	return s.prefix + "seq:scopes"
}

func (s *RedisSequenceStore) entriesKey() string {
	return s.prefix + "seq:entries"
}

func (s *RedisSequenceStore) ByScopeKey(ctx context.Context, scopeKey string) (*models.SequenceCounter, error) {
	raw, err := s.client.Get(ctx, s.counterKey(scopeKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence counter %s: %w", scopeKey, err)
	}
	return decodeCounter(raw)
}

func (s *RedisSequenceStore) GetOrCreate(ctx context.Context, code string, year int) (*models.SequenceCounter, bool, error) {
	scopeKey := models.ScopeKey(code, year)

	existing, err := s.ByScopeKey(ctx, scopeKey)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}

	counter := models.NewSequenceCounter(code, year, utils.UTCNow())
	payload, err := json.Marshal(counter)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode sequence counter: %w", err)
	}

	var created *redis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, s.counterKey(scopeKey), payload, 0)
		pipe.SAdd(ctx, s.scopesKey(), scopeKey)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create sequence counter %s: %w", scopeKey, err)
	}
	if created.Val() {
		return counter, false, nil
	}

	winner, err := s.ByScopeKey(ctx, scopeKey)
	if err != nil {
		return nil, false, err
	}
	if winner == nil {
		return nil, false, fmt.Errorf("sequence counter %s vanished after create: %w", scopeKey, ErrCounterNotFound)
	}
	return winner, true, nil
}

func (s *RedisSequenceStore) ConditionalUpdate(ctx context.Context, counter *models.SequenceCounter, expectedVersion string) error {
	key := s.counterKey(counter.ScopeKey)
	newVersion := models.NewConcurrencyToken()
	now := utils.UTCNow()

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrCounterNotFound
		}
		if err != nil {
			return err
		}
		current, err := decodeCounter(raw)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return ErrVersionConflict
		}

		next := *current
		next.CurrentNumber = counter.CurrentNumber
		next.Version = newVersion
		next.UpdatedAt = now
		payload, err := json.Marshal(&next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		counter.Version = newVersion
		counter.UpdatedAt = now
		return nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, ErrVersionConflict):
		return ErrVersionConflict
	case errors.Is(err, ErrCounterNotFound):
		return ErrCounterNotFound
	default:
		return fmt.Errorf("failed to update sequence counter %s: %w", counter.ScopeKey, err)
	}
}

func (s *RedisSequenceStore) Overwrite(ctx context.Context, counter *models.SequenceCounter) error {
	next := *counter
	next.Version = models.NewConcurrencyToken()
	next.UpdatedAt = utils.UTCNow()
	payload, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode sequence counter: %w", err)
	}

	ok, err := s.client.SetXX(ctx, s.counterKey(counter.ScopeKey), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to overwrite sequence counter %s: %w", counter.ScopeKey, err)
	}
	if !ok {
		return ErrCounterNotFound
	}

	counter.Version = next.Version
	counter.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *RedisSequenceStore) List(ctx context.Context) ([]*models.SequenceCounter, error) {
	scopes, err := s.client.SMembers(ctx, s.scopesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sequence scopes: %w", err)
	}
	if len(scopes) == 0 {
		return []*models.SequenceCounter{}, nil
	}
	slices.Sort(scopes)

	keys := make([]string, len(scopes))
	for i, scope := range scopes {
		keys[i] = s.counterKey(scope)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence counters: %w", err)
	}

	counters := make([]*models.SequenceCounter, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		counter, err := decodeCounter([]byte(raw))
		if err != nil {
			return nil, err
		}
		counters = append(counters, counter)
	}
	return counters, nil
}

func (s *RedisSequenceStore) Append(ctx context.Context, entry *models.NumberLog) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid number log entry: %w", err)
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode number log: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.entriesKey(), entry.ID, payload)
		pipe.ZAdd(ctx, s.historyKey(entry.ScopeKey), redis.Z{Score: 0, Member: entry.ID})
		pipe.SAdd(ctx, s.scopesKey(), entry.ScopeKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append number log: %w", err)
	}
	return nil
}

func (s *RedisSequenceStore) ByID(ctx context.Context, id string) (*models.NumberLog, error) {
	raw, err := s.client.HGet(ctx, s.entriesKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read number log %s: %w", id, err)
	}
	var entry models.NumberLog
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode number log %s: %w", id, err)
	}
	return &entry, nil
}

func (s *RedisSequenceStore) ByFilter(ctx context.Context, filter models.NumberLogFilter, limit, offset int) ([]*models.NumberLog, error) {
	if scopeKey, ok := scopeOnly(filter); ok {
		args := redis.ZRangeArgs{
			Key:   s.historyKey(scopeKey),
			Start: "-",
			Stop:  "+",
			ByLex: true,
		}
		if limit > 0 || offset > 0 {
			args.Offset = int64(offset)
			args.Count = int64(limit)
			if limit <= 0 {
				args.Count = -1
			}
		}
		ids, err := s.client.ZRangeArgs(ctx, args).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to range history of %s: %w", scopeKey, err)
		}
		return s.loadEntries(ctx, ids)
	}

	entries, err := s.scan(ctx, filter)
	if err != nil {
		return nil, err
	}
	return SelectEntries(entries, filter, limit, offset), nil
}

func (s *RedisSequenceStore) Count(ctx context.Context, filter models.NumberLogFilter) (int64, error) {
	if scopeKey, ok := scopeOnly(filter); ok {
		count, err := s.client.ZCard(ctx, s.historyKey(scopeKey)).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to count history of %s: %w", scopeKey, err)
		}
		return count, nil
	}

	entries, err := s.scan(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(SelectEntries(entries, filter, 0, 0))), nil
}

func (s *RedisSequenceStore) Statistics(ctx context.Context, filter models.NumberLogFilter) (*models.NumberLogStatistics, error) {
	entries, err := s.scan(ctx, filter)
	if err != nil {
		return nil, err
	}
	return AccumulateStatistics(entries, filter), nil
}

// scan loads every entry of the scopes the filter can touch
func (s *RedisSequenceStore) scan(ctx context.Context, filter models.NumberLogFilter) ([]*models.NumberLog, error) {
	var scopes []string
	if scopeKey, ok := filter.Scope(); ok {
		scopes = []string{scopeKey}
	} else {
		var err error
		scopes, err = s.client.SMembers(ctx, s.scopesKey()).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list sequence scopes: %w", err)
		}
	}

	var entries []*models.NumberLog
	for _, scope := range scopes {
		ids, err := s.client.ZRange(ctx, s.historyKey(scope), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to range history of %s: %w", scope, err)
		}
		loaded, err := s.loadEntries(ctx, ids)
		if err != nil {
			return nil, err
		}
		entries = append(entries, loaded...)
	}
	return entries, nil
}

func (s *RedisSequenceStore) loadEntries(ctx context.Context, ids []string) ([]*models.NumberLog, error) {
	if len(ids) == 0 {
		return []*models.NumberLog{}, nil
	}
	values, err := s.client.HMGet(ctx, s.entriesKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read number logs: %w", err)
	}

	entries := make([]*models.NumberLog, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var entry models.NumberLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode number log %s: %w", ids[i], err)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// scopeOnly reports whether the filter is answered by a single ordered range
func scopeOnly(filter models.NumberLogFilter) (string, bool) {
	scopeKey, ok := filter.Scope()
	if !ok || filter.ActorID != nil || filter.Action != nil {
		return "", false
	}
	return scopeKey, true
}

func decodeCounter(raw []byte) (*models.SequenceCounter, error) {
	var counter models.SequenceCounter
	if err := json.Unmarshal(raw, &counter); err != nil {
		return nil, fmt.Errorf("failed to decode sequence counter: %w", err)
	}
	return &counter, nil
}
