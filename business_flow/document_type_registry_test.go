package businessflow

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/repository"
	testingutil "github.com/amirphl/docnum/testing"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentTypeRegistry(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := context.Background()
		require.NoError(t, testDB.DB.Create(testingutil.DefaultDocumentTypes()).Error)

		repo := repository.NewDocumentTypeRepository(testDB.DB)
		registry := NewDocumentTypeRegistry(repo, DocumentTypeRegistryOptions{})

		t.Run("ResolveNormalizesCode", func(t *testing.T) {
			documentType, err := registry.Resolve(ctx, "  mem ")
			require.NoError(t, err)
			assert.Equal(t, "MEM", documentType.Code)
			assert.Equal(t, "Memorando", documentType.Name)
		})

		t.Run("ResolveRejectsInactive", func(t *testing.T) {
			_, err := registry.Resolve(ctx, "OLD")
			assert.True(t, IsDocumentTypeInactive(err))
			assert.True(t, IsNotFound(err))

			documentType, err := registry.Lookup(ctx, "OLD")
			require.NoError(t, err)
			assert.False(t, documentType.Active())
		})

		t.Run("ResolveUnknown", func(t *testing.T) {
			_, err := registry.Resolve(ctx, "ZZ")
			assert.True(t, IsDocumentTypeNotFound(err))
		})

		t.Run("ResolveMalformedIsNotFound", func(t *testing.T) {
			for _, code := range []string{"OF-1", "TOOLONGCODE1", ""} {
				_, err := registry.Resolve(ctx, code)
				assert.True(t, IsDocumentTypeNotFound(err), code)
				assert.False(t, IsValidation(err), code)
			}
		})

		t.Run("ListActiveSortedByCode", func(t *testing.T) {
			result, err := registry.ListActive(ctx)
			require.NoError(t, err)
			require.Len(t, result.DocumentTypes, 2)
			assert.Equal(t, "MEM", result.DocumentTypes[0].Code)
			assert.Equal(t, "OF", result.DocumentTypes[1].Code)
			assert.True(t, result.DocumentTypes[1].IsActive)
		})

		t.Run("SetActive", func(t *testing.T) {
			updated, err := registry.SetActive(ctx, " old ", true)
			require.NoError(t, err)
			assert.Equal(t, "OLD", updated.Code)
			assert.True(t, updated.IsActive)

			_, err = registry.Resolve(ctx, "OLD")
			require.NoError(t, err)

			updated, err = registry.SetActive(ctx, "OLD", false)
			require.NoError(t, err)
			assert.False(t, updated.IsActive)
			_, err = registry.Resolve(ctx, "OLD")
			assert.True(t, IsDocumentTypeInactive(err))
		})

		t.Run("SetActiveUnknown", func(t *testing.T) {
			_, err := registry.SetActive(ctx, "ZZ", true)
			assert.True(t, IsDocumentTypeNotFound(err))
			_, err = registry.SetActive(ctx, "OF-1", true)
			assert.True(t, IsDocumentTypeNotFound(err))
		})
		return nil
	})
	require.NoError(t, err)
}

func TestDocumentTypeRegistryCache(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	defer client.Close()

	err = testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := context.Background()
		require.NoError(t, testDB.DB.Create(testingutil.DefaultDocumentTypes()).Error)
		repo := repository.NewDocumentTypeRepository(testDB.DB)

		prefix := "docnum-test-" + time.Now().Format("150405.000000")
		registry := NewDocumentTypeRegistry(repo, DocumentTypeRegistryOptions{Cache: client, CachePrefix: prefix, CacheTTL: time.Minute})
		defer client.Del(ctx, prefix+":document_type:OF")

		_, err := registry.Resolve(ctx, "OF")
		require.NoError(t, err)
		exists, err := client.Exists(ctx, prefix+":document_type:OF").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)

		// a write behind the registry's back is masked by the cached copy
		require.NoError(t, repo.SetActive(ctx, "OF", false))
		_, err = registry.Resolve(ctx, "OF")
		require.NoError(t, err)

		// SetActive through the registry drops the cached copy
		_, err = registry.SetActive(ctx, "of", false)
		require.NoError(t, err)
		_, err = registry.Resolve(ctx, "OF")
		assert.True(t, IsDocumentTypeInactive(err))

		_, err = registry.SetActive(ctx, "OF", true)
		require.NoError(t, err)
		_, err = registry.Resolve(ctx, "OF")
		assert.NoError(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestParseDocumentTypeSeeds(t *testing.T) {
	seeds, err := ParseDocumentTypeSeeds(" of=Ofício ; MEM=Memorando;; ")
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	assert.Equal(t, "OF", seeds[0].Code)
	assert.Equal(t, "Ofício", seeds[0].Name)
	assert.True(t, seeds[0].Active())

	empty, err := ParseDocumentTypeSeeds("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseDocumentTypeSeeds("OF")
	assert.True(t, IsValidation(err))

	_, err = ParseDocumentTypeSeeds("O-F=Broken")
	assert.True(t, IsValidation(err))
}

func TestSeedDocumentTypes(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := context.Background()
		repo := repository.NewDocumentTypeRepository(testDB.DB)

		seeds, err := ParseDocumentTypeSeeds("OF=Ofício;MEM=Memorando")
		require.NoError(t, err)

		created, err := SeedDocumentTypes(ctx, testDB.DB, repo, seeds, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, created)

		again, err := ParseDocumentTypeSeeds("OF=Renamed;PORT=Portaria")
		require.NoError(t, err)
		created, err = SeedDocumentTypes(ctx, testDB.DB, repo, again, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, created)

		of, err := repo.ByCode(ctx, "OF")
		require.NoError(t, err)
		assert.Equal(t, "Ofício", of.Name)

		port, err := repo.ByCode(ctx, "PORT")
		require.NoError(t, err)
		require.NotNil(t, port)
		assert.True(t, port.Active())
		assert.False(t, port.CreatedAt.IsZero())

		created, err = SeedDocumentTypes(ctx, testDB.DB, repo, again, nil)
		require.NoError(t, err)
		assert.Zero(t, created)
		return nil
	})
	require.NoError(t, err)
}

func TestSeedDocumentTypesIsAtomic(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := context.Background()
		repo := repository.NewDocumentTypeRepository(testDB.DB)

		// the repeated code fails the batch on the primary key
		seeds, err := ParseDocumentTypeSeeds("NEW=Novo;DUP=Primeiro;DUP=Segundo")
		require.NoError(t, err)

		created, err := SeedDocumentTypes(ctx, testDB.DB, repo, seeds, nil)
		require.Error(t, err)
		assert.True(t, IsInfrastructure(err))
		assert.Zero(t, created)

		count, err := repo.Count(ctx, models.DocumentTypeFilter{})
		require.NoError(t, err)
		assert.Zero(t, count)
		return nil
	})
	require.NoError(t, err)
}
