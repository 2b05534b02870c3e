package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// Number log actions
const (
	NumberActionGenerated = "generated"
	NumberActionCorrected = "corrected"
)

// orderingKeyCeiling is subtracted from the unix time so that ascending keys list newest first
const orderingKeyCeiling int64 = 9999999999

// NumberLog is an immutable record of one allocation or correction.
// ID is the ordering key: ascending ID order within a scope is newest first.
type NumberLog struct {
	ID               string    `gorm:"primaryKey;size:64" json:"id"`
	ScopeKey         string    `gorm:"size:32;not null;index:idx_number_logs_scope_id,priority:1" json:"scope_key"`
	DocumentTypeCode string    `gorm:"size:10;not null;index:idx_number_logs_type_year,priority:1" json:"document_type_code"`
	Year             int       `gorm:"not null;index:idx_number_logs_type_year,priority:2" json:"year"`
	Number           int64     `gorm:"not null" json:"number"`
	Action           string    `gorm:"size:16;not null;index:idx_number_logs_action" json:"action"`
	ActorID          string    `gorm:"size:64;not null;index:idx_number_logs_actor_id" json:"actor_id"`
	ActorName        string    `gorm:"size:255" json:"actor_name"`
	PreviousNumber   *int64    `json:"previous_number,omitempty"`
	Notes            *string   `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
}

func (NumberLog) TableName() string { return "number_logs" }

// NumberLogFilter represents filter criteria for history queries. All fields are exact match.
type NumberLogFilter struct {
	DocumentTypeCode *string
	Year             *int
	ActorID          *string
	Action           *string
}

// Scope returns the scope key when the filter targets exactly one scope
func (f NumberLogFilter) Scope() (string, bool) {
	if f.DocumentTypeCode == nil || f.Year == nil {
		return "", false
	}
	return ScopeKey(*f.DocumentTypeCode, *f.Year), true
}

// Matches reports whether the entry satisfies every set field of the filter
func (f NumberLogFilter) Matches(entry *NumberLog) bool {
	if f.DocumentTypeCode != nil && entry.DocumentTypeCode != *f.DocumentTypeCode {
		return false
	}
	if f.Year != nil && entry.Year != *f.Year {
		return false
	}
	if f.ActorID != nil && entry.ActorID != *f.ActorID {
		return false
	}
	if f.Action != nil && entry.Action != *f.Action {
		return false
	}
	return true
}

// NewOrderingKey builds a key whose ascending order is reverse chronological.
// The first ten digits are the reversed unix seconds; the reversed nanoseconds keep
// same-second entries newest first and the uuid makes the key unique.
func NewOrderingKey(t time.Time) string {
	return fmt.Sprintf("%010d_%09d_%s",
		orderingKeyCeiling-t.Unix(),
		999999999-int64(t.Nanosecond()),
		uuid.NewString(),
	)
}

// NewGeneratedLog builds the history entry for a successful allocation
func NewGeneratedLog(counter *SequenceCounter, actorID, actorName string, now time.Time) *NumberLog {
	return &NumberLog{
		ID:               NewOrderingKey(now),
		ScopeKey:         counter.ScopeKey,
		DocumentTypeCode: counter.DocumentTypeCode,
		Year:             counter.Year,
		Number:           counter.CurrentNumber,
		Action:           NumberActionGenerated,
		ActorID:          actorID,
		ActorName:        actorName,
		CreatedAt:        now,
	}
}

// NewCorrectedLog builds the history entry for a manual correction
func NewCorrectedLog(counter *SequenceCounter, previous int64, notes, actorID, actorName string, now time.Time) *NumberLog {
	return &NumberLog{
		ID:               NewOrderingKey(now),
		ScopeKey:         counter.ScopeKey,
		DocumentTypeCode: counter.DocumentTypeCode,
		Year:             counter.Year,
		Number:           counter.CurrentNumber,
		Action:           NumberActionCorrected,
		ActorID:          actorID,
		ActorName:        actorName,
		PreviousNumber:   &previous,
		Notes:            &notes,
		CreatedAt:        now,
	}
}

// Validate checks the structural invariants of an entry before it is written
func (l *NumberLog) Validate() error {
	corrected := l.Action == NumberActionCorrected
	return validation.ValidateStruct(l,
		validation.Field(&l.ID, validation.Required),
		validation.Field(&l.ScopeKey, validation.Required),
		validation.Field(&l.DocumentTypeCode, validation.Required),
		validation.Field(&l.Year, validation.Required),
		validation.Field(&l.Number, validation.Min(int64(0))),
		validation.Field(&l.Action, validation.Required, validation.In(NumberActionGenerated, NumberActionCorrected)),
		validation.Field(&l.ActorID, validation.Required),
		validation.Field(&l.PreviousNumber, validation.When(corrected, validation.NotNil).Else(validation.Nil)),
		validation.Field(&l.Notes, validation.When(corrected, validation.NotNil).Else(validation.Nil)),
	)
}

// IsCorrection reports whether the entry records a manual correction
func (l *NumberLog) IsCorrection() bool {
	return l.Action == NumberActionCorrected
}

// NumberLogStatistics summarises a set of history entries
type NumberLogStatistics struct {
	Total          int64
	Generated      int64
	Corrected      int64
	ByDocumentType map[string]int64
	ByActor        map[string]int64
}

// NewNumberLogStatistics returns empty statistics with initialised maps
func NewNumberLogStatistics() *NumberLogStatistics {
	return &NumberLogStatistics{
		ByDocumentType: make(map[string]int64),
		ByActor:        make(map[string]int64),
	}
}

// Add accounts for one entry
func (s *NumberLogStatistics) Add(entry *NumberLog) {
	s.Total++
	switch entry.Action {
	case NumberActionGenerated:
		s.Generated++
	case NumberActionCorrected:
		s.Corrected++
	}
	s.ByDocumentType[entry.DocumentTypeCode]++
	s.ByActor[entry.ActorLabel()]++
}

// ActorLabel is the name used to group entries per actor
func (l *NumberLog) ActorLabel() string {
	if l.ActorName != "" {
		return l.ActorName
	}
	return l.ActorID
}
