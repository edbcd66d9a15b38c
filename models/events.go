package models

import (
	"time"
)

// Event represents a stored domain event. Everything but the delivery
// bookkeeping columns is immutable once written.
type Event struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	EventID       string     `gorm:"uniqueIndex" json:"event_id"`
	AggregateID   string     `gorm:"uniqueIndex:idx_events_aggregate_sequence,priority:1;not null" json:"aggregate_id"`
	Sequence      int        `gorm:"uniqueIndex:idx_events_aggregate_sequence,priority:2;not null" json:"sequence"`
	AggregateType string     `gorm:"index" json:"aggregate_type"`
	EventType     string     `json:"event_type"`
	Data          []byte     `json:"data"`
	Actor         string     `json:"actor"`
	Timestamp     time.Time  `json:"timestamp"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Processed     bool       `gorm:"index" json:"processed"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `gorm:"index" json:"next_attempt_at"`
	Error         *string    `json:"error"`
}

// ProjectionCheckpoint records the last sequence projected per aggregate
type ProjectionCheckpoint struct {
	AggregateID   string    `gorm:"primaryKey" json:"aggregate_id"`
	AggregateType string    `json:"aggregate_type"`
	LastSequence  int       `gorm:"not null" json:"last_sequence"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StatusHistory is one row per status-changed event of any family
type StatusHistory struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	AggregateID   string    `gorm:"uniqueIndex:idx_status_history_aggregate_sequence,priority:1;not null" json:"aggregate_id"`
	Sequence      int       `gorm:"uniqueIndex:idx_status_history_aggregate_sequence,priority:2;not null" json:"sequence"`
	AggregateType string    `gorm:"index" json:"aggregate_type"`
	FromStatus    string    `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	Reason        string    `json:"reason"`
	Notes         string    `json:"notes"`
	Actor         string    `json:"actor"`
	ChangedAt     time.Time `json:"changed_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName keeps the singular table name
func (StatusHistory) TableName() string {
	return "status_history"
}
