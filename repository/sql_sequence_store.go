package repository

import (
	"gorm.io/gorm"
)

type sqlSequenceStore struct {
	SequenceCounterRepository
	NumberLogRepository
}

// NewSQLSequenceStore returns the counter and history stores backed by the relational database
func NewSQLSequenceStore(db *gorm.DB) SequenceStore {
	return &sqlSequenceStore{
		SequenceCounterRepository: NewSequenceCounterRepository(db),
		NumberLogRepository:       NewNumberLogRepository(db),
	}
}
