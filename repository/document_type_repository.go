package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/utils"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations
const pgUniqueViolation = "23505"

// DocumentTypeRepositoryImpl implements DocumentTypeRepository interface
type DocumentTypeRepositoryImpl struct {
	*BaseRepository[models.DocumentType, models.DocumentTypeFilter]
}

// NewDocumentTypeRepository creates a new document type repository
func NewDocumentTypeRepository(db *gorm.DB) DocumentTypeRepository {
	return &DocumentTypeRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DocumentType, models.DocumentTypeFilter](db),
	}
}

// ByCode retrieves a document type regardless of its active flag
func (r *DocumentTypeRepositoryImpl) ByCode(ctx context.Context, code string) (*models.DocumentType, error) {
	return r.byColumn(ctx, "code", code)
}

// ListActive retrieves active document types ordered by code
func (r *DocumentTypeRepositoryImpl) ListActive(ctx context.Context) ([]*models.DocumentType, error) {
	return r.ByFilter(ctx, models.DocumentTypeFilter{IsActive: utils.ToPtr(true)}, "code ASC", 0, 0)
}

// SetActive updates the active flag; an unknown code yields ErrDocumentTypeNotFound
func (r *DocumentTypeRepositoryImpl) SetActive(ctx context.Context, code string, active bool) error {
	res := r.getDB(ctx).Model(&models.DocumentType{}).
		Where("code = ?", code).
		Updates(map[string]any{"is_active": active, "updated_at": utils.UTCNow()})
	if res.Error != nil {
		return fmt.Errorf("failed to update document type %s: %w", code, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document type %s: %w", code, ErrDocumentTypeNotFound)
	}
	return nil
}

func (r *DocumentTypeRepositoryImpl) ByFilter(ctx context.Context, filter models.DocumentTypeFilter, orderBy string, limit, offset int) ([]*models.DocumentType, error) {
	db := r.applyFilter(r.getDB(ctx), filter)
	if orderBy == "" {
		orderBy = "code ASC"
	}
	db = db.Order(orderBy)
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}

	var types []*models.DocumentType
	if err := db.Find(&types).Error; err != nil {
		return nil, fmt.Errorf("failed to list document types: %w", err)
	}
	return types, nil
}

func (r *DocumentTypeRepositoryImpl) Count(ctx context.Context, filter models.DocumentTypeFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.getDB(ctx).Model(&models.DocumentType{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count document types: %w", err)
	}
	return count, nil
}

func (r *DocumentTypeRepositoryImpl) applyFilter(db *gorm.DB, filter models.DocumentTypeFilter) *gorm.DB {
	if filter.Code != nil {
		db = db.Where("code = ?", *filter.Code)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}
	return db
}

// IsDuplicateKey recognises unique violations whether or not gorm error translation is enabled
func IsDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
