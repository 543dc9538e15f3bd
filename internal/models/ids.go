package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UUID primary keys are assigned application-side so the same models
// run against postgres in production and sqlite in tests.

// BeforeCreate assigns the member id.
func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// BeforeCreate assigns the batch id.
func (b *Batch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// BeforeCreate assigns the batch result id.
func (r *BatchResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// BeforeCreate assigns the scan log id.
func (s *ScanLog) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// BeforeCreate assigns the user id.
func (u *UserAuth) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
