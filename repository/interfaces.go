// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"

	"github.com/amirphl/docnum/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

var (
	// ErrVersionConflict is returned by a conditional write whose expected version is stale
	ErrVersionConflict = errors.New("version conflict")
	// ErrCounterNotFound is returned when a write targets a counter that does not exist
	ErrCounterNotFound = errors.New("sequence counter not found")
	// ErrDocumentTypeNotFound is returned when an update targets an unknown document type
	ErrDocumentTypeNotFound = errors.New("document type not found")
)

type Repository[T any, F any] interface {
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// SequenceCounterRepository is the scoped counter store. Implementations must make
// ConditionalUpdate atomic: of several writers presenting the same version exactly one succeeds.
type SequenceCounterRepository interface {
	// GetOrCreate returns the scope's counter, creating it at zero when absent.
	// found reports whether the record already existed.
	GetOrCreate(ctx context.Context, code string, year int) (counter *models.SequenceCounter, found bool, err error)
	// ConditionalUpdate persists counter.CurrentNumber if the stored version still equals
	// expectedVersion. On success counter.Version and counter.UpdatedAt hold the new values.
	ConditionalUpdate(ctx context.Context, counter *models.SequenceCounter, expectedVersion string) error
	// Overwrite persists counter.CurrentNumber unconditionally and rotates the version.
	Overwrite(ctx context.Context, counter *models.SequenceCounter) error
	ByScopeKey(ctx context.Context, scopeKey string) (*models.SequenceCounter, error)
	List(ctx context.Context) ([]*models.SequenceCounter, error)
}

// NumberLogRepository is the append-only history store. ByFilter returns entries newest first.
type NumberLogRepository interface {
	Append(ctx context.Context, entry *models.NumberLog) error
	ByID(ctx context.Context, id string) (*models.NumberLog, error)
	// ByFilter returns a page of matching entries; limit <= 0 means no limit.
	ByFilter(ctx context.Context, filter models.NumberLogFilter, limit, offset int) ([]*models.NumberLog, error)
	Count(ctx context.Context, filter models.NumberLogFilter) (int64, error)
	Statistics(ctx context.Context, filter models.NumberLogFilter) (*models.NumberLogStatistics, error)
}

// SequenceStore bundles both stores of one backend
type SequenceStore interface {
	SequenceCounterRepository
	NumberLogRepository
}

// DocumentTypeRepository defines operations for document types
type DocumentTypeRepository interface {
	Repository[models.DocumentType, models.DocumentTypeFilter]
	ByCode(ctx context.Context, code string) (*models.DocumentType, error)
	ListActive(ctx context.Context) ([]*models.DocumentType, error)
	SetActive(ctx context.Context, code string, active bool) error
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ByID(ctx context.Context, id uint) (*models.AuditLog, error)
}
