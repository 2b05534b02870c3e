package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SequenceCounterRepositoryImpl implements SequenceCounterRepository on SQL.
// The conditional write is a single UPDATE guarded by the expected version.
type SequenceCounterRepositoryImpl struct {
	*BaseRepository[models.SequenceCounter, models.SequenceCounterFilter]
}

// NewSequenceCounterRepository creates a new SQL counter repository
func NewSequenceCounterRepository(db *gorm.DB) SequenceCounterRepository {
	return &SequenceCounterRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SequenceCounter, models.SequenceCounterFilter](db),
	}
}

func (r *SequenceCounterRepositoryImpl) ByScopeKey(ctx context.Context, scopeKey string) (*models.SequenceCounter, error) {
	return r.byColumn(ctx, "scope_key", scopeKey)
}

func (r *SequenceCounterRepositoryImpl) GetOrCreate(ctx context.Context, code string, year int) (*models.SequenceCounter, bool, error) {
	scopeKey := models.ScopeKey(code, year)

	existing, err := r.ByScopeKey(ctx, scopeKey)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}

	counter := models.NewSequenceCounter(code, year, utils.UTCNow())
	res := r.getDB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "scope_key"}}, DoNothing: true}).
		Create(counter)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create sequence counter %s: %w", scopeKey, res.Error)
	}
	if res.RowsAffected == 1 {
		return counter, false, nil
	}

	// Another writer created the scope first; use its record.
	winner, err := r.ByScopeKey(ctx, scopeKey)
	if err != nil {
		return nil, false, err
	}
	if winner == nil {
		return nil, false, fmt.Errorf("sequence counter %s vanished after create: %w", scopeKey, ErrCounterNotFound)
	}
	return winner, true, nil
}

func (r *SequenceCounterRepositoryImpl) ConditionalUpdate(ctx context.Context, counter *models.SequenceCounter, expectedVersion string) error {
	db := r.getDB(ctx)

	newVersion := models.NewConcurrencyToken()
	now := utils.UTCNow()
	res := db.Model(&models.SequenceCounter{}).
		Where("scope_key = ? AND version = ?", counter.ScopeKey, expectedVersion).
		Updates(map[string]any{
			"current_number": counter.CurrentNumber,
			"version":        newVersion,
			"updated_at":     now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update sequence counter %s: %w", counter.ScopeKey, res.Error)
	}

	if res.RowsAffected == 0 {
		var count int64
		if err := db.Model(&models.SequenceCounter{}).Where("scope_key = ?", counter.ScopeKey).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check sequence counter %s: %w", counter.ScopeKey, err)
		}
		if count == 0 {
			return ErrCounterNotFound
		}
		return ErrVersionConflict
	}

	counter.Version = newVersion
	counter.UpdatedAt = now
	return nil
}

func (r *SequenceCounterRepositoryImpl) Overwrite(ctx context.Context, counter *models.SequenceCounter) error {
	db := r.getDB(ctx)

	newVersion := models.NewConcurrencyToken()
	now := utils.UTCNow()
	res := db.Model(&models.SequenceCounter{}).
		Where("scope_key = ?", counter.ScopeKey).
		Updates(map[string]any{
			"current_number": counter.CurrentNumber,
			"version":        newVersion,
			"updated_at":     now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to overwrite sequence counter %s: %w", counter.ScopeKey, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCounterNotFound
	}

	counter.Version = newVersion
	counter.UpdatedAt = now
	return nil
}

func (r *SequenceCounterRepositoryImpl) List(ctx context.Context) ([]*models.SequenceCounter, error) {
	return r.ByFilter(ctx, models.SequenceCounterFilter{}, "scope_key ASC", 0, 0)
}

func (r *SequenceCounterRepositoryImpl) ByFilter(ctx context.Context, filter models.SequenceCounterFilter, orderBy string, limit, offset int) ([]*models.SequenceCounter, error) {
	db := r.applyFilter(r.getDB(ctx), filter)
	if orderBy == "" {
		orderBy = "scope_key ASC"
	}
	db = db.Order(orderBy)
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}

	var counters []*models.SequenceCounter
	if err := db.Find(&counters).Error; err != nil {
		return nil, fmt.Errorf("failed to list sequence counters: %w", err)
	}
	return counters, nil
}

func (r *SequenceCounterRepositoryImpl) applyFilter(db *gorm.DB, filter models.SequenceCounterFilter) *gorm.DB {
	if filter.DocumentTypeCode != nil {
		db = db.Where("document_type_code = ?", *filter.DocumentTypeCode)
	}
	if filter.Year != nil {
		db = db.Where("year = ?", *filter.Year)
	}
	return db
}
