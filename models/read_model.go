package models

import (
	"time"

	"github.com/google/uuid"
)

// ReadModel is the core every entity row shares. ID doubles as the legacy
// identity; AggregateUUID stays NULL until the row is linked to a stream.
type ReadModel struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	AggregateUUID *string   `gorm:"uniqueIndex" json:"aggregate_uuid"`
	Status        string    `gorm:"index" json:"status"`
	Sequence      int       `json:"sequence"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LegacyRow is implemented by every entity row
type LegacyRow interface {
	LegacyID() int64
	StoredAggregateID() uuid.UUID
	CurrentStatus() string
	ProjectedSequence() int
}

// LegacyID returns the integer identity
func (m ReadModel) LegacyID() int64 {
	return int64(m.ID)
}

// StoredAggregateID returns the linked aggregate id, uuid.Nil when unset or unparseable.
func (m ReadModel) StoredAggregateID() uuid.UUID {
	if m.AggregateUUID == nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(*m.AggregateUUID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// CurrentStatus returns the projected status
func (m ReadModel) CurrentStatus() string {
	return m.Status
}

// ProjectedSequence returns the sequence of the last projected event
func (m ReadModel) ProjectedSequence() int {
	return m.Sequence
}

// UUIDRef formats an aggregate id for a nullable uuid column
func UUIDRef(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	s := id.String()
	return &s
}
