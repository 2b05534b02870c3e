package repository_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/repository"
	testingutil "github.com/amirphl/docnum/testing"
	"github.com/amirphl/docnum/utils"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) repository.SequenceStore

func sqlStore(t *testing.T) repository.SequenceStore {
	testDB, err := testingutil.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = testDB.TeardownTestDB() })
	return repository.NewSQLSequenceStore(testDB.DB)
}

func pebbleStore(t *testing.T) repository.SequenceStore {
	store, err := repository.OpenPebbleSequenceStore("/sequences", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func redisStore(t *testing.T) repository.SequenceStore {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })

	prefix := "test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, err := client.Keys(ctx, prefix+"*").Result()
		if err == nil && len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})
	return repository.NewRedisSequenceStore(client, prefix)
}

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"SQL":    sqlStore,
		"Pebble": pebbleStore,
		"Redis":  redisStore,
	}
}

func TestSequenceStore_Counters(t *testing.T) {
	ctx := context.Background()

	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Run("GetOrCreateStartsAtZero", func(t *testing.T) {
				store := newStore(t)

				counter, found, err := store.GetOrCreate(ctx, "OF", 2025)
				require.NoError(t, err)
				assert.False(t, found)
				assert.Equal(t, "OF_2025", counter.ScopeKey)
				assert.Equal(t, int64(0), counter.CurrentNumber)
				assert.NotEmpty(t, counter.Version)

				again, found, err := store.GetOrCreate(ctx, "OF", 2025)
				require.NoError(t, err)
				assert.True(t, found)
				assert.Equal(t, counter.Version, again.Version)
			})

			t.Run("ConditionalUpdate", func(t *testing.T) {
				store := newStore(t)

				counter, _, err := store.GetOrCreate(ctx, "OF", 2025)
				require.NoError(t, err)
				staleVersion := counter.Version

				counter.CurrentNumber = 1
				require.NoError(t, store.ConditionalUpdate(ctx, counter, staleVersion))
				assert.NotEqual(t, staleVersion, counter.Version)

				stored, err := store.ByScopeKey(ctx, "OF_2025")
				require.NoError(t, err)
				assert.Equal(t, int64(1), stored.CurrentNumber)
				assert.Equal(t, counter.Version, stored.Version)

				// a writer holding the old version loses
				loser := *stored
				loser.CurrentNumber = 2
				err = store.ConditionalUpdate(ctx, &loser, staleVersion)
				assert.ErrorIs(t, err, repository.ErrVersionConflict)

				stored, err = store.ByScopeKey(ctx, "OF_2025")
				require.NoError(t, err)
				assert.Equal(t, int64(1), stored.CurrentNumber)
			})

			t.Run("ConditionalUpdateMissingScope", func(t *testing.T) {
				store := newStore(t)

				ghost := models.NewSequenceCounter("MEM", 2030, utils.UTCNow())
				err := store.ConditionalUpdate(ctx, ghost, ghost.Version)
				assert.ErrorIs(t, err, repository.ErrCounterNotFound)
			})

			t.Run("OverwriteRotatesVersion", func(t *testing.T) {
				store := newStore(t)

				counter, _, err := store.GetOrCreate(ctx, "OF", 2025)
				require.NoError(t, err)
				before := counter.Version

				counter.CurrentNumber = 500
				require.NoError(t, store.Overwrite(ctx, counter))
				assert.NotEqual(t, before, counter.Version)

				err = store.ConditionalUpdate(ctx, counter, before)
				assert.ErrorIs(t, err, repository.ErrVersionConflict)

				ghost := models.NewSequenceCounter("MEM", 2030, utils.UTCNow())
				assert.ErrorIs(t, store.Overwrite(ctx, ghost), repository.ErrCounterNotFound)
			})

			t.Run("ExactlyOneWinnerPerVersion", func(t *testing.T) {
				store := newStore(t)

				counter, _, err := store.GetOrCreate(ctx, "OF", 2025)
				require.NoError(t, err)

				const writers = 8
				var wg sync.WaitGroup
				results := make(chan error, writers)
				for i := 0; i < writers; i++ {
					wg.Add(1)
					go func(n int64) {
						defer wg.Done()
						attempt := *counter
						attempt.CurrentNumber = n
						results <- store.ConditionalUpdate(ctx, &attempt, counter.Version)
					}(int64(i + 1))
				}
				wg.Wait()
				close(results)

				wins := 0
				for err := range results {
					if err == nil {
						wins++
						continue
					}
					assert.ErrorIs(t, err, repository.ErrVersionConflict)
				}
				assert.Equal(t, 1, wins)
			})

			t.Run("ListOrderedByScope", func(t *testing.T) {
				store := newStore(t)

				for _, scope := range []struct {
					code string
					year int
				}{{"OF", 2025}, {"MEM", 2025}, {"OF", 2024}} {
					_, _, err := store.GetOrCreate(ctx, scope.code, scope.year)
					require.NoError(t, err)
				}

				counters, err := store.List(ctx)
				require.NoError(t, err)
				require.Len(t, counters, 3)
				assert.Equal(t, "MEM_2025", counters[0].ScopeKey)
				assert.Equal(t, "OF_2024", counters[1].ScopeKey)
				assert.Equal(t, "OF_2025", counters[2].ScopeKey)
			})
		})
	}
}

func TestSequenceStore_History(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)

			entries := []*models.NumberLog{
				testingutil.NewLogAt("OF", 2025, 1, "u1", base),
				testingutil.NewLogAt("OF", 2025, 2, "u2", base.Add(time.Second)),
				testingutil.NewLogAt("MEM", 2025, 1, "u1", base.Add(2*time.Second)),
				testingutil.NewLogAt("OF", 2025, 3, "u1", base.Add(3*time.Second)),
				testingutil.NewLogAt("OF", 2024, 9, "u2", base.Add(-time.Hour)),
			}
			for _, entry := range entries {
				require.NoError(t, store.Append(ctx, entry))
			}

			t.Run("ScopeNewestFirst", func(t *testing.T) {
				filter := models.NumberLogFilter{DocumentTypeCode: utils.ToPtr("OF"), Year: utils.ToPtr(2025)}
				got, err := store.ByFilter(ctx, filter, 0, 0)
				require.NoError(t, err)
				require.Len(t, got, 3)
				assert.Equal(t, []int64{3, 2, 1}, numbers(got))

				page, err := store.ByFilter(ctx, filter, 1, 1)
				require.NoError(t, err)
				assert.Equal(t, []int64{2}, numbers(page))

				count, err := store.Count(ctx, filter)
				require.NoError(t, err)
				assert.Equal(t, int64(3), count)
			})

			t.Run("AcrossScopesNewestFirst", func(t *testing.T) {
				got, err := store.ByFilter(ctx, models.NumberLogFilter{}, 0, 0)
				require.NoError(t, err)
				require.Len(t, got, 5)
				assert.Equal(t, entries[3].ID, got[0].ID)
				assert.Equal(t, entries[2].ID, got[1].ID)
				assert.Equal(t, entries[4].ID, got[4].ID)
			})

			t.Run("FilterByActorAndAction", func(t *testing.T) {
				got, err := store.ByFilter(ctx, models.NumberLogFilter{ActorID: utils.ToPtr("u2")}, 0, 0)
				require.NoError(t, err)
				assert.Equal(t, []int64{2, 9}, numbers(got))

				count, err := store.Count(ctx, models.NumberLogFilter{Action: utils.ToPtr(models.NumberActionCorrected)})
				require.NoError(t, err)
				assert.Zero(t, count)
			})

			t.Run("YearWithoutCode", func(t *testing.T) {
				count, err := store.Count(ctx, models.NumberLogFilter{Year: utils.ToPtr(2024)})
				require.NoError(t, err)
				assert.Equal(t, int64(1), count)
			})

			t.Run("ByID", func(t *testing.T) {
				got, err := store.ByID(ctx, entries[1].ID)
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, int64(2), got.Number)
				assert.Equal(t, "u2", got.ActorID)

				missing, err := store.ByID(ctx, "missing")
				require.NoError(t, err)
				assert.Nil(t, missing)
			})

			t.Run("Statistics", func(t *testing.T) {
				stats, err := store.Statistics(ctx, models.NumberLogFilter{Year: utils.ToPtr(2025)})
				require.NoError(t, err)
				assert.Equal(t, int64(4), stats.Total)
				assert.Equal(t, int64(4), stats.Generated)
				assert.Equal(t, int64(3), stats.ByDocumentType["OF"])
				assert.Equal(t, int64(1), stats.ByDocumentType["MEM"])
				assert.Equal(t, int64(3), stats.ByActor["User u1"])
			})

			t.Run("RejectsInvalidEntry", func(t *testing.T) {
				bad := testingutil.NewLogAt("OF", 2025, 4, "", base)
				assert.Error(t, store.Append(ctx, bad))
			})
		})
	}
}

func numbers(entries []*models.NumberLog) []int64 {
	out := make([]int64, len(entries))
	for i, entry := range entries {
		out[i] = entry.Number
	}
	return out
}

func TestSQLSequenceStore_ExistingRows(t *testing.T) {
	ctx := context.Background()
	testDB := setupSQL(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	store := repository.NewSQLSequenceStore(testDB.DB)

	seeded, err := fixtures.CreateCounter("OF", 2025, 41)
	require.NoError(t, err)

	counter, found, err := store.GetOrCreate(ctx, "OF", 2025)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(41), counter.CurrentNumber)
	assert.Equal(t, seeded.Version, counter.Version)

	require.NoError(t, testDB.ClearAllTables())

	counters, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, counters)
}
