package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SequenceCounter holds the last number handed out for one (document type, year) scope.
// Version is an opaque concurrency token replaced on every successful write.
type SequenceCounter struct {
	ScopeKey         string    `gorm:"primaryKey;size:32" json:"scope_key"`
	DocumentTypeCode string    `gorm:"size:10;not null;index:idx_sequence_counters_type_year,priority:1" json:"document_type_code"`
	Year             int       `gorm:"not null;index:idx_sequence_counters_type_year,priority:2" json:"year"`
	CurrentNumber    int64     `gorm:"not null;default:0" json:"current_number"`
	Version          string    `gorm:"size:36;not null" json:"version"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null" json:"updated_at"`
}

func (SequenceCounter) TableName() string { return "sequence_counters" }

// SequenceCounterFilter represents filter criteria for counter queries
type SequenceCounterFilter struct {
	DocumentTypeCode *string
	Year             *int
}

// NewSequenceCounter returns a fresh counter for a scope that has never been used
func NewSequenceCounter(code string, year int, now time.Time) *SequenceCounter {
	return &SequenceCounter{
		ScopeKey:         ScopeKey(code, year),
		DocumentTypeCode: code,
		Year:             year,
		CurrentNumber:    0,
		Version:          NewConcurrencyToken(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ScopeKey identifies the counter of a document type within a year, e.g. "OF_2025"
func ScopeKey(code string, year int) string {
	return code + "_" + strconv.Itoa(year)
}

// NewConcurrencyToken returns a fresh opaque version token
func NewConcurrencyToken() string {
	return uuid.NewString()
}

// FormatDocumentNumber renders the human readable number, e.g. "OF 0042/2025".
// Numbers wider than four digits are not truncated.
func FormatDocumentNumber(code string, number int64, year int) string {
	return fmt.Sprintf("%s %04d/%d", code, number, year)
}

// Formatted returns the document number for the counter's current value
func (c *SequenceCounter) Formatted() string {
	return FormatDocumentNumber(c.DocumentTypeCode, c.CurrentNumber, c.Year)
}
