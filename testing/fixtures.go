package testing

import (
	"fmt"
	"time"

	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateDocumentType inserts a document type
func (tf *TestFixtures) CreateDocumentType(code, name string, active bool) (*models.DocumentType, error) {
	documentType := NewDocumentType(code, name, active)
	if err := tf.DB.DB.Create(documentType).Error; err != nil {
		return nil, fmt.Errorf("failed to insert document type %s: %w", code, err)
	}
	return documentType, nil
}

// CreateCounter inserts a counter already positioned at current
func (tf *TestFixtures) CreateCounter(code string, year int, current int64) (*models.SequenceCounter, error) {
	counter := models.NewSequenceCounter(code, year, utils.UTCNow())
	counter.CurrentNumber = current
	if err := tf.DB.DB.Create(counter).Error; err != nil {
		return nil, fmt.Errorf("failed to insert counter %s: %w", counter.ScopeKey, err)
	}
	return counter, nil
}

// NewDocumentType builds an unsaved document type
func NewDocumentType(code, name string, active bool) *models.DocumentType {
	now := utils.UTCNow()
	return &models.DocumentType{
		Code:      code,
		Name:      name,
		IsActive:  utils.ToPtr(active),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewLogAt builds a generated entry for code/year stamped at t
func NewLogAt(code string, year int, number int64, actorID string, t time.Time) *models.NumberLog {
	counter := models.NewSequenceCounter(code, year, t)
	counter.CurrentNumber = number
	return models.NewGeneratedLog(counter, actorID, "User "+actorID, t)
}

// DefaultDocumentTypes is the catalogue used by most tests
func DefaultDocumentTypes() []*models.DocumentType {
	return []*models.DocumentType{
		NewDocumentType("OF", "Ofício", true),
		NewDocumentType("MEM", "Memorando", true),
		NewDocumentType("OLD", "Tipo Descontinuado", false),
	}
}
