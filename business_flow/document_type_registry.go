package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/amirphl/docnum/app/dto"
	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/repository"
	"github.com/amirphl/docnum/utils"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// DocumentTypeRegistry resolves document type codes for allocation and browsing
type DocumentTypeRegistry interface {
	// Resolve returns the active type for a code as typed by a user
	Resolve(ctx context.Context, code string) (*models.DocumentType, error)
	// Lookup is Resolve without the active check
	Lookup(ctx context.Context, code string) (*models.DocumentType, error)
	ListActive(ctx context.Context) (*dto.ListDocumentTypesResponse, error)
	// SetActive flips the active flag and drops the cached copy of the type
	SetActive(ctx context.Context, code string, active bool) (*dto.DocumentTypeDTO, error)
}

// DocumentTypeRegistryOptions configures the optional redis cache
type DocumentTypeRegistryOptions struct {
	Cache       *redis.Client
	CachePrefix string
	CacheTTL    time.Duration
	Logger      hclog.Logger
}

type DocumentTypeRegistryImpl struct {
	repo   repository.DocumentTypeRepository
	cache  *redis.Client
	prefix string
	ttl    time.Duration
	logger hclog.Logger
}

func NewDocumentTypeRegistry(repo repository.DocumentTypeRepository, opts DocumentTypeRegistryOptions) DocumentTypeRegistry {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	prefix := opts.CachePrefix
	if prefix == "" {
		prefix = "docnum"
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DocumentTypeRegistryImpl{
		repo:   repo,
		cache:  opts.Cache,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.Named("document-types"),
	}
}

func (r *DocumentTypeRegistryImpl) Resolve(ctx context.Context, code string) (*models.DocumentType, error) {
	documentType, err := r.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if !documentType.Active() {
		return nil, ErrDocumentTypeInactive
	}
	return documentType, nil
}

func (r *DocumentTypeRegistryImpl) Lookup(ctx context.Context, code string) (*models.DocumentType, error) {
	code = NormalizeDocumentTypeCode(code)
	if !models.IsValidDocumentTypeCode(code) {
		return nil, ErrDocumentTypeNotFound
	}

	documentType := r.cached(ctx, code)
	if documentType == nil {
		var err error
		documentType, err = r.repo.ByCode(ctx, code)
		if err != nil {
			return nil, newInfrastructureError("DOCUMENT_TYPE_LOOKUP_FAILED", "Failed to look up document type", err)
		}
		if documentType == nil {
			return nil, ErrDocumentTypeNotFound
		}
		r.store(ctx, documentType)
	}
	return documentType, nil
}

func (r *DocumentTypeRegistryImpl) ListActive(ctx context.Context) (*dto.ListDocumentTypesResponse, error) {
	types, err := r.repo.ListActive(ctx)
	if err != nil {
		return nil, newInfrastructureError("DOCUMENT_TYPE_LIST_FAILED", "Failed to list document types", err)
	}
	items := make([]dto.DocumentTypeDTO, 0, len(types))
	for _, documentType := range types {
		items = append(items, ToDocumentTypeDTO(documentType))
	}
	return &dto.ListDocumentTypesResponse{DocumentTypes: items}, nil
}

func (r *DocumentTypeRegistryImpl) SetActive(ctx context.Context, code string, active bool) (*dto.DocumentTypeDTO, error) {
	code = NormalizeDocumentTypeCode(code)
	if !models.IsValidDocumentTypeCode(code) {
		return nil, ErrDocumentTypeNotFound
	}

	if err := r.repo.SetActive(ctx, code, active); err != nil {
		if errors.Is(err, repository.ErrDocumentTypeNotFound) {
			return nil, ErrDocumentTypeNotFound
		}
		return nil, newInfrastructureError("DOCUMENT_TYPE_UPDATE_FAILED", "Failed to update document type", err)
	}
	r.invalidate(ctx, code)

	documentType, err := r.repo.ByCode(ctx, code)
	if err != nil {
		return nil, newInfrastructureError("DOCUMENT_TYPE_LOOKUP_FAILED", "Failed to look up document type", err)
	}
	if documentType == nil {
		return nil, ErrDocumentTypeNotFound
	}
	r.logger.Info("document type active flag changed", "code", code, "active", active)

	result := ToDocumentTypeDTO(documentType)
	return &result, nil
}

func (r *DocumentTypeRegistryImpl) invalidate(ctx context.Context, code string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, r.cacheKey(code)).Err(); err != nil {
		r.logger.Warn("failed to invalidate cached document type", "code", code, "error", err)
	}
}

func (r *DocumentTypeRegistryImpl) cacheKey(code string) string {
	return r.prefix + ":document_type:" + code
}

func (r *DocumentTypeRegistryImpl) cached(ctx context.Context, code string) *models.DocumentType {
	if r.cache == nil {
		return nil
	}
	bs, err := r.cache.Get(ctx, r.cacheKey(code)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("document type cache read failed", "code", code, "error", err)
		}
		return nil
	}
	var documentType models.DocumentType
	if err := json.Unmarshal(bs, &documentType); err != nil {
		r.logger.Warn("discarding malformed cached document type", "code", code, "error", err)
		return nil
	}
	return &documentType
}

func (r *DocumentTypeRegistryImpl) store(ctx context.Context, documentType *models.DocumentType) {
	if r.cache == nil {
		return
	}
	bs, err := json.Marshal(documentType)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, r.cacheKey(documentType.Code), bs, r.ttl).Err(); err != nil {
		r.logger.Warn("document type cache write failed", "code", documentType.Code, "error", err)
	}
}

// ParseDocumentTypeSeeds parses "CODE=Name;CODE=Name". Blank items are skipped.
func ParseDocumentTypeSeeds(raw string) ([]*models.DocumentType, error) {
	var seeds []*models.DocumentType
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		code, name, ok := strings.Cut(item, "=")
		if !ok {
			return nil, NewBusinessErrorf("INVALID_DOCUMENT_TYPE_SEED", "document type seed %q must look like CODE=Name", ErrValidation, item)
		}
		documentType := &models.DocumentType{
			Code:     NormalizeDocumentTypeCode(code),
			Name:     strings.TrimSpace(name),
			IsActive: utils.ToPtr(true),
		}
		if err := documentType.Validate(); err != nil {
			return nil, NewBusinessErrorf("INVALID_DOCUMENT_TYPE_SEED", "document type seed %q is invalid", errors.Join(ErrValidation, err), item)
		}
		seeds = append(seeds, documentType)
	}
	return seeds, nil
}

// SeedDocumentTypes inserts the seeds that do not exist yet in one transaction.
// Existing rows are left untouched. A concurrent seeder inserting the same code
// makes the batch fail on the unique index; the second pass then finds the row.
func SeedDocumentTypes(ctx context.Context, db *gorm.DB, repo repository.DocumentTypeRepository, seeds []*models.DocumentType, logger hclog.Logger) (int, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	var missing []*models.DocumentType
	seed := func(txCtx context.Context) error {
		missing = missing[:0]
		for _, documentType := range seeds {
			existing, err := repo.ByCode(txCtx, documentType.Code)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			now := utils.UTCNow()
			documentType.CreatedAt = now
			documentType.UpdatedAt = now
			if documentType.IsActive == nil {
				documentType.IsActive = utils.ToPtr(true)
			}
			missing = append(missing, documentType)
		}
		return repo.SaveBatch(txCtx, missing)
	}

	err := repository.WithTransaction(ctx, db, seed)
	if err != nil && repository.IsDuplicateKey(err) {
		logger.Warn("document type seeding raced with another instance, retrying", "error", err)
		err = repository.WithTransaction(ctx, db, seed)
	}
	if err != nil {
		return 0, newInfrastructureError("DOCUMENT_TYPE_SEED_FAILED", "Failed to seed document types", err)
	}

	for _, documentType := range missing {
		logger.Info("seeded document type", "code", documentType.Code, "name", documentType.Name)
	}
	return len(missing), nil
}
