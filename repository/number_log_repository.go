package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/docnum/models"
	"gorm.io/gorm"
)

// NumberLogRepositoryImpl implements NumberLogRepository on SQL.
// Newest-first order is the primary key order, so no timestamp sort is needed.
type NumberLogRepositoryImpl struct {
	*BaseRepository[models.NumberLog, models.NumberLogFilter]
}

// NewNumberLogRepository creates a new SQL history repository
func NewNumberLogRepository(db *gorm.DB) NumberLogRepository {
	return &NumberLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.NumberLog, models.NumberLogFilter](db),
	}
}

func (r *NumberLogRepositoryImpl) Append(ctx context.Context, entry *models.NumberLog) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid number log entry: %w", err)
	}
	return r.Save(ctx, entry)
}

func (r *NumberLogRepositoryImpl) ByID(ctx context.Context, id string) (*models.NumberLog, error) {
	return r.byColumn(ctx, "id", id)
}

func (r *NumberLogRepositoryImpl) ByFilter(ctx context.Context, filter models.NumberLogFilter, limit, offset int) ([]*models.NumberLog, error) {
	db := r.applyFilter(r.getDB(ctx), filter).Order("id ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}

	var entries []*models.NumberLog
	if err := db.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list number logs: %w", err)
	}
	return entries, nil
}

func (r *NumberLogRepositoryImpl) Count(ctx context.Context, filter models.NumberLogFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.getDB(ctx).Model(&models.NumberLog{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count number logs: %w", err)
	}
	return count, nil
}

type groupCount struct {
	Label string
	Total int64
}

func (r *NumberLogRepositoryImpl) Statistics(ctx context.Context, filter models.NumberLogFilter) (*models.NumberLogStatistics, error) {
	stats := models.NewNumberLogStatistics()

	group := func(column string) ([]groupCount, error) {
		var rows []groupCount
		err := r.applyFilter(r.getDB(ctx).Model(&models.NumberLog{}), filter).
			Select(column + " AS label, COUNT(*) AS total").
			Group(column).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to group number logs by %s: %w", column, err)
		}
		return rows, nil
	}

	byAction, err := group("action")
	if err != nil {
		return nil, err
	}
	for _, row := range byAction {
		stats.Total += row.Total
		switch row.Label {
		case models.NumberActionGenerated:
			stats.Generated = row.Total
		case models.NumberActionCorrected:
			stats.Corrected = row.Total
		}
	}

	byType, err := group("document_type_code")
	if err != nil {
		return nil, err
	}
	for _, row := range byType {
		stats.ByDocumentType[row.Label] = row.Total
	}

	byActor, err := group("CASE WHEN actor_name <> '' THEN actor_name ELSE actor_id END")
	if err != nil {
		return nil, err
	}
	for _, row := range byActor {
		stats.ByActor[row.Label] = row.Total
	}

	return stats, nil
}

// applyFilter narrows to one scope when both code and year are given
func (r *NumberLogRepositoryImpl) applyFilter(db *gorm.DB, filter models.NumberLogFilter) *gorm.DB {
	if scopeKey, ok := filter.Scope(); ok {
		db = db.Where("scope_key = ?", scopeKey)
	} else {
		if filter.DocumentTypeCode != nil {
			db = db.Where("document_type_code = ?", *filter.DocumentTypeCode)
		}
		if filter.Year != nil {
			db = db.Where("year = ?", *filter.Year)
		}
	}
	if filter.ActorID != nil {
		db = db.Where("actor_id = ?", *filter.ActorID)
	}
	if filter.Action != nil {
		db = db.Where("action = ?", *filter.Action)
	}
	return db
}
