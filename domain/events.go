package domain

import (
	"time"

	"github.com/google/uuid"

	"example.com/backstage/services/clinops/lifecycle"
)

// EventType constants
const (
	// Study events
	StudyCreated        = "V1_STUDY_CREATED"
	StudyDetailsUpdated = "V1_STUDY_DETAILS_UPDATED"
	StudyStatusChanged  = "V1_STUDY_STATUS_CHANGED"

	// Patient events
	PatientRegistered     = "V1_PATIENT_REGISTERED"
	PatientDetailsUpdated = "V1_PATIENT_DETAILS_UPDATED"
	PatientStatusChanged  = "V1_PATIENT_STATUS_CHANGED"

	// Protocol version events
	ProtocolVersionCreated       = "V1_PROTOCOL_VERSION_CREATED"
	ProtocolVersionUpdated       = "V1_PROTOCOL_VERSION_UPDATED"
	ProtocolVersionStatusChanged = "V1_PROTOCOL_VERSION_STATUS_CHANGED"

	// Visit events
	VisitScheduled     = "V1_VISIT_SCHEDULED"
	VisitRescheduled   = "V1_VISIT_RESCHEDULED"
	VisitStatusChanged = "V1_VISIT_STATUS_CHANGED"
)

// Event is one immutable fact in an aggregate's stream
type Event struct {
	ID            string               `json:"id"`
	AggregateID   uuid.UUID            `json:"aggregate_id"`
	AggregateType lifecycle.EntityType `json:"aggregate_type"`
	Type          string               `json:"type"`
	Sequence      int                  `json:"sequence"`
	Timestamp     time.Time            `json:"timestamp"`
	Actor         string               `json:"actor"`
	Data          EventData            `json:"data"`
}

// EventData is the closed set of event payloads. The unexported method keeps
// the set closed to this package.
type EventData interface {
	EventType() string
	isEventData()
}

// StatusChange is implemented by every status-changed payload
type StatusChange interface {
	EventData
	Transition() (from, to lifecycle.Status, reason string)
}

// Study events

// StudyCreatedEvent starts a study stream. LegacyID is set when the stream
// was synthesised from a pre-existing row.
type StudyCreatedEvent struct {
	Name           string           `json:"name"`
	ProtocolNumber string           `json:"protocol_number"`
	Sponsor        string           `json:"sponsor"`
	Phase          string           `json:"phase"`
	StudyType      string           `json:"study_type"`
	Description    string           `json:"description"`
	Status         lifecycle.Status `json:"status"`
	LegacyID       *int64           `json:"legacy_id,omitempty"`
}

type StudyDetailsUpdatedEvent struct {
	Name        string `json:"name"`
	Sponsor     string `json:"sponsor"`
	Phase       string `json:"phase"`
	Description string `json:"description"`
}

type StudyStatusChangedEvent struct {
	From   lifecycle.Status `json:"from"`
	To     lifecycle.Status `json:"to"`
	Reason string           `json:"reason"`
}

// Patient events

type PatientRegisteredEvent struct {
	StudyID       uuid.UUID        `json:"study_id"`
	PatientNumber string           `json:"patient_number"`
	FirstName     string           `json:"first_name"`
	LastName      string           `json:"last_name"`
	DateOfBirth   string           `json:"date_of_birth"`
	Gender        string           `json:"gender"`
	Email         string           `json:"email"`
	Status        lifecycle.Status `json:"status"`
	LegacyID      *int64           `json:"legacy_id,omitempty"`
}

type PatientDetailsUpdatedEvent struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	Email       string `json:"email"`
}

type PatientStatusChangedEvent struct {
	From   lifecycle.Status `json:"from"`
	To     lifecycle.Status `json:"to"`
	Reason string           `json:"reason"`
	Notes  string           `json:"notes"`
}

// Protocol version events

type ProtocolVersionCreatedEvent struct {
	StudyID                    uuid.UUID        `json:"study_id"`
	VersionNumber              string           `json:"version_number"`
	AmendmentType              string           `json:"amendment_type"`
	Description                string           `json:"description"`
	ChangesSummary             string           `json:"changes_summary"`
	RequiresRegulatoryApproval bool             `json:"requires_regulatory_approval"`
	Status                     lifecycle.Status `json:"status"`
	LegacyID                   *int64           `json:"legacy_id,omitempty"`
}

type ProtocolVersionUpdatedEvent struct {
	Description    string `json:"description"`
	ChangesSummary string `json:"changes_summary"`
}

type ProtocolVersionStatusChangedEvent struct {
	From   lifecycle.Status `json:"from"`
	To     lifecycle.Status `json:"to"`
	Reason string           `json:"reason"`
}

// Visit events

type VisitScheduledEvent struct {
	PatientID     uuid.UUID        `json:"patient_id"`
	StudyID       uuid.UUID        `json:"study_id"`
	VisitName     string           `json:"visit_name"`
	ScheduledDate string           `json:"scheduled_date"`
	Status        lifecycle.Status `json:"status"`
	LegacyID      *int64           `json:"legacy_id,omitempty"`
}

type VisitRescheduledEvent struct {
	ScheduledDate string `json:"scheduled_date"`
}

type VisitStatusChangedEvent struct {
	From   lifecycle.Status `json:"from"`
	To     lifecycle.Status `json:"to"`
	Reason string           `json:"reason"`
}

func (StudyCreatedEvent) EventType() string                 { return StudyCreated }
func (StudyDetailsUpdatedEvent) EventType() string          { return StudyDetailsUpdated }
func (StudyStatusChangedEvent) EventType() string           { return StudyStatusChanged }
func (PatientRegisteredEvent) EventType() string            { return PatientRegistered }
func (PatientDetailsUpdatedEvent) EventType() string        { return PatientDetailsUpdated }
func (PatientStatusChangedEvent) EventType() string         { return PatientStatusChanged }
func (ProtocolVersionCreatedEvent) EventType() string       { return ProtocolVersionCreated }
func (ProtocolVersionUpdatedEvent) EventType() string       { return ProtocolVersionUpdated }
func (ProtocolVersionStatusChangedEvent) EventType() string { return ProtocolVersionStatusChanged }
func (VisitScheduledEvent) EventType() string               { return VisitScheduled }
func (VisitRescheduledEvent) EventType() string             { return VisitRescheduled }
func (VisitStatusChangedEvent) EventType() string           { return VisitStatusChanged }

func (StudyCreatedEvent) isEventData()                 {}
func (StudyDetailsUpdatedEvent) isEventData()          {}
func (StudyStatusChangedEvent) isEventData()           {}
func (PatientRegisteredEvent) isEventData()            {}
func (PatientDetailsUpdatedEvent) isEventData()        {}
func (PatientStatusChangedEvent) isEventData()         {}
func (ProtocolVersionCreatedEvent) isEventData()       {}
func (ProtocolVersionUpdatedEvent) isEventData()       {}
func (ProtocolVersionStatusChangedEvent) isEventData() {}
func (VisitScheduledEvent) isEventData()               {}
func (VisitRescheduledEvent) isEventData()             {}
func (VisitStatusChangedEvent) isEventData()           {}

func (e StudyStatusChangedEvent) Transition() (lifecycle.Status, lifecycle.Status, string) {
	return e.From, e.To, e.Reason
}

func (e PatientStatusChangedEvent) Transition() (lifecycle.Status, lifecycle.Status, string) {
	return e.From, e.To, e.Reason
}

func (e ProtocolVersionStatusChangedEvent) Transition() (lifecycle.Status, lifecycle.Status, string) {
	return e.From, e.To, e.Reason
}

func (e VisitStatusChangedEvent) Transition() (lifecycle.Status, lifecycle.Status, string) {
	return e.From, e.To, e.Reason
}
