package domain

import (
	"github.com/google/uuid"

	"example.com/backstage/services/clinops/lifecycle"
)

// Command is the closed set of intents the dispatcher accepts
type Command interface {
	AggregateID() uuid.UUID
	EntityType() lifecycle.EntityType
	CommandType() string
	ActorRef() string
	isCommand()
}

// CreateCommand starts a new stream. A migration create carries the legacy
// row id and may carry the row's current status.
type CreateCommand interface {
	Command
	Legacy() (legacyID *int64, initial lifecycle.Status)
}

// StatusCommand requests a lifecycle transition
type StatusCommand interface {
	Command
	RequestedStatus() lifecycle.Status
}

// Study commands

type CreateStudyCommand struct {
	StudyID        uuid.UUID        `json:"study_id" validate:"required"`
	Name           string           `json:"name" validate:"required,max=255"`
	ProtocolNumber string           `json:"protocol_number" validate:"omitempty,max=100"`
	Sponsor        string           `json:"sponsor" validate:"required,max=255"`
	Phase          string           `json:"phase" validate:"omitempty,oneof=PHASE_I PHASE_II PHASE_III PHASE_IV NOT_APPLICABLE"`
	StudyType      string           `json:"study_type" validate:"required,oneof=INTERVENTIONAL OBSERVATIONAL EXPANDED_ACCESS"`
	Description    string           `json:"description" validate:"max=4000"`
	InitialStatus  lifecycle.Status `json:"initial_status,omitempty"`
	LegacyID       *int64           `json:"legacy_id,omitempty" validate:"omitempty,gt=0"`
	Actor          string           `json:"actor" validate:"required"`
}

type UpdateStudyDetailsCommand struct {
	StudyID     uuid.UUID `json:"study_id" validate:"required"`
	Name        string    `json:"name" validate:"required,max=255"`
	Sponsor     string    `json:"sponsor" validate:"required,max=255"`
	Phase       string    `json:"phase" validate:"omitempty,oneof=PHASE_I PHASE_II PHASE_III PHASE_IV NOT_APPLICABLE"`
	Description string    `json:"description" validate:"max=4000"`
	Actor       string    `json:"actor" validate:"required"`
}

type ChangeStudyStatusCommand struct {
	StudyID   uuid.UUID        `json:"study_id" validate:"required"`
	NewStatus lifecycle.Status `json:"new_status" validate:"required,status_code"`
	Reason    string           `json:"reason" validate:"max=1000"`
	Actor     string           `json:"actor" validate:"required"`
}

// Patient commands

type RegisterPatientCommand struct {
	PatientID     uuid.UUID        `json:"patient_id" validate:"required"`
	StudyID       uuid.UUID        `json:"study_id" validate:"required"`
	PatientNumber string           `json:"patient_number" validate:"required,max=50"`
	FirstName     string           `json:"first_name" validate:"required,max=100"`
	LastName      string           `json:"last_name" validate:"required,max=100"`
	DateOfBirth   string           `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Gender        string           `json:"gender" validate:"omitempty,oneof=MALE FEMALE OTHER UNKNOWN"`
	Email         string           `json:"email" validate:"omitempty,email"`
	InitialStatus lifecycle.Status `json:"initial_status,omitempty"`
	LegacyID      *int64           `json:"legacy_id,omitempty" validate:"omitempty,gt=0"`
	Actor         string           `json:"actor" validate:"required"`
}

type UpdatePatientDetailsCommand struct {
	PatientID   uuid.UUID `json:"patient_id" validate:"required"`
	FirstName   string    `json:"first_name" validate:"required,max=100"`
	LastName    string    `json:"last_name" validate:"required,max=100"`
	DateOfBirth string    `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Gender      string    `json:"gender" validate:"omitempty,oneof=MALE FEMALE OTHER UNKNOWN"`
	Email       string    `json:"email" validate:"omitempty,email"`
	Actor       string    `json:"actor" validate:"required"`
}

type ChangePatientStatusCommand struct {
	PatientID uuid.UUID        `json:"patient_id" validate:"required"`
	NewStatus lifecycle.Status `json:"new_status" validate:"required,status_code"`
	Reason    string           `json:"reason" validate:"required,max=1000"`
	Notes     string           `json:"notes" validate:"max=4000"`
	Actor     string           `json:"actor" validate:"required"`
}

// Protocol version commands

type CreateProtocolVersionCommand struct {
	VersionID                  uuid.UUID        `json:"version_id" validate:"required"`
	StudyID                    uuid.UUID        `json:"study_id" validate:"required"`
	VersionNumber              string           `json:"version_number" validate:"required,max=20"`
	AmendmentType              string           `json:"amendment_type" validate:"omitempty,oneof=MAJOR MINOR SAFETY ADMINISTRATIVE"`
	Description                string           `json:"description" validate:"max=4000"`
	ChangesSummary             string           `json:"changes_summary" validate:"max=4000"`
	RequiresRegulatoryApproval bool             `json:"requires_regulatory_approval"`
	InitialStatus              lifecycle.Status `json:"initial_status,omitempty"`
	LegacyID                   *int64           `json:"legacy_id,omitempty" validate:"omitempty,gt=0"`
	Actor                      string           `json:"actor" validate:"required"`
}

type UpdateProtocolVersionCommand struct {
	VersionID      uuid.UUID `json:"version_id" validate:"required"`
	Description    string    `json:"description" validate:"max=4000"`
	ChangesSummary string    `json:"changes_summary" validate:"max=4000"`
	Actor          string    `json:"actor" validate:"required"`
}

type ChangeProtocolVersionStatusCommand struct {
	VersionID uuid.UUID        `json:"version_id" validate:"required"`
	NewStatus lifecycle.Status `json:"new_status" validate:"required,status_code"`
	Reason    string           `json:"reason" validate:"required,max=1000"`
	Actor     string           `json:"actor" validate:"required"`
}

// Visit commands

type ScheduleVisitCommand struct {
	VisitID       uuid.UUID        `json:"visit_id" validate:"required"`
	PatientID     uuid.UUID        `json:"patient_id" validate:"required"`
	StudyID       uuid.UUID        `json:"study_id" validate:"required"`
	VisitName     string           `json:"visit_name" validate:"required,max=100"`
	ScheduledDate string           `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	InitialStatus lifecycle.Status `json:"initial_status,omitempty"`
	LegacyID      *int64           `json:"legacy_id,omitempty" validate:"omitempty,gt=0"`
	Actor         string           `json:"actor" validate:"required"`
}

type RescheduleVisitCommand struct {
	VisitID       uuid.UUID `json:"visit_id" validate:"required"`
	ScheduledDate string    `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	Actor         string    `json:"actor" validate:"required"`
}

type ChangeVisitStatusCommand struct {
	VisitID   uuid.UUID        `json:"visit_id" validate:"required"`
	NewStatus lifecycle.Status `json:"new_status" validate:"required,status_code"`
	Reason    string           `json:"reason" validate:"max=1000"`
	Actor     string           `json:"actor" validate:"required"`
}

func (c CreateStudyCommand) AggregateID() uuid.UUID                 { return c.StudyID }
func (c UpdateStudyDetailsCommand) AggregateID() uuid.UUID          { return c.StudyID }
func (c ChangeStudyStatusCommand) AggregateID() uuid.UUID           { return c.StudyID }
func (c RegisterPatientCommand) AggregateID() uuid.UUID             { return c.PatientID }
func (c UpdatePatientDetailsCommand) AggregateID() uuid.UUID        { return c.PatientID }
func (c ChangePatientStatusCommand) AggregateID() uuid.UUID         { return c.PatientID }
func (c CreateProtocolVersionCommand) AggregateID() uuid.UUID       { return c.VersionID }
func (c UpdateProtocolVersionCommand) AggregateID() uuid.UUID       { return c.VersionID }
func (c ChangeProtocolVersionStatusCommand) AggregateID() uuid.UUID { return c.VersionID }
func (c ScheduleVisitCommand) AggregateID() uuid.UUID               { return c.VisitID }
func (c RescheduleVisitCommand) AggregateID() uuid.UUID             { return c.VisitID }
func (c ChangeVisitStatusCommand) AggregateID() uuid.UUID           { return c.VisitID }

func (CreateStudyCommand) EntityType() lifecycle.EntityType          { return lifecycle.EntityStudy }
func (UpdateStudyDetailsCommand) EntityType() lifecycle.EntityType   { return lifecycle.EntityStudy }
func (ChangeStudyStatusCommand) EntityType() lifecycle.EntityType    { return lifecycle.EntityStudy }
func (RegisterPatientCommand) EntityType() lifecycle.EntityType      { return lifecycle.EntityPatient }
func (UpdatePatientDetailsCommand) EntityType() lifecycle.EntityType { return lifecycle.EntityPatient }
func (ChangePatientStatusCommand) EntityType() lifecycle.EntityType  { return lifecycle.EntityPatient }
func (CreateProtocolVersionCommand) EntityType() lifecycle.EntityType {
	return lifecycle.EntityProtocolVersion
}
func (UpdateProtocolVersionCommand) EntityType() lifecycle.EntityType {
	return lifecycle.EntityProtocolVersion
}
func (ChangeProtocolVersionStatusCommand) EntityType() lifecycle.EntityType {
	return lifecycle.EntityProtocolVersion
}
func (ScheduleVisitCommand) EntityType() lifecycle.EntityType     { return lifecycle.EntityVisit }
func (RescheduleVisitCommand) EntityType() lifecycle.EntityType   { return lifecycle.EntityVisit }
func (ChangeVisitStatusCommand) EntityType() lifecycle.EntityType { return lifecycle.EntityVisit }

func (CreateStudyCommand) CommandType() string                 { return "CreateStudy" }
func (UpdateStudyDetailsCommand) CommandType() string          { return "UpdateStudyDetails" }
func (ChangeStudyStatusCommand) CommandType() string           { return "ChangeStudyStatus" }
func (RegisterPatientCommand) CommandType() string             { return "RegisterPatient" }
func (UpdatePatientDetailsCommand) CommandType() string        { return "UpdatePatientDetails" }
func (ChangePatientStatusCommand) CommandType() string         { return "ChangePatientStatus" }
func (CreateProtocolVersionCommand) CommandType() string       { return "CreateProtocolVersion" }
func (UpdateProtocolVersionCommand) CommandType() string       { return "UpdateProtocolVersion" }
func (ChangeProtocolVersionStatusCommand) CommandType() string { return "ChangeProtocolVersionStatus" }
func (ScheduleVisitCommand) CommandType() string               { return "ScheduleVisit" }
func (RescheduleVisitCommand) CommandType() string             { return "RescheduleVisit" }
func (ChangeVisitStatusCommand) CommandType() string           { return "ChangeVisitStatus" }

func (c CreateStudyCommand) ActorRef() string                 { return c.Actor }
func (c UpdateStudyDetailsCommand) ActorRef() string          { return c.Actor }
func (c ChangeStudyStatusCommand) ActorRef() string           { return c.Actor }
func (c RegisterPatientCommand) ActorRef() string             { return c.Actor }
func (c UpdatePatientDetailsCommand) ActorRef() string        { return c.Actor }
func (c ChangePatientStatusCommand) ActorRef() string         { return c.Actor }
func (c CreateProtocolVersionCommand) ActorRef() string       { return c.Actor }
func (c UpdateProtocolVersionCommand) ActorRef() string       { return c.Actor }
func (c ChangeProtocolVersionStatusCommand) ActorRef() string { return c.Actor }
func (c ScheduleVisitCommand) ActorRef() string               { return c.Actor }
func (c RescheduleVisitCommand) ActorRef() string             { return c.Actor }
func (c ChangeVisitStatusCommand) ActorRef() string           { return c.Actor }

func (CreateStudyCommand) isCommand()                 {}
func (UpdateStudyDetailsCommand) isCommand()          {}
func (ChangeStudyStatusCommand) isCommand()           {}
func (RegisterPatientCommand) isCommand()             {}
func (UpdatePatientDetailsCommand) isCommand()        {}
func (ChangePatientStatusCommand) isCommand()         {}
func (CreateProtocolVersionCommand) isCommand()       {}
func (UpdateProtocolVersionCommand) isCommand()       {}
func (ChangeProtocolVersionStatusCommand) isCommand() {}
func (ScheduleVisitCommand) isCommand()               {}
func (RescheduleVisitCommand) isCommand()             {}
func (ChangeVisitStatusCommand) isCommand()           {}

func (c CreateStudyCommand) Legacy() (*int64, lifecycle.Status)           { return c.LegacyID, c.InitialStatus }
func (c RegisterPatientCommand) Legacy() (*int64, lifecycle.Status)       { return c.LegacyID, c.InitialStatus }
func (c CreateProtocolVersionCommand) Legacy() (*int64, lifecycle.Status) { return c.LegacyID, c.InitialStatus }
func (c ScheduleVisitCommand) Legacy() (*int64, lifecycle.Status)         { return c.LegacyID, c.InitialStatus }

func (c ChangeStudyStatusCommand) RequestedStatus() lifecycle.Status           { return c.NewStatus }
func (c ChangePatientStatusCommand) RequestedStatus() lifecycle.Status         { return c.NewStatus }
func (c ChangeProtocolVersionStatusCommand) RequestedStatus() lifecycle.Status { return c.NewStatus }
func (c ChangeVisitStatusCommand) RequestedStatus() lifecycle.Status           { return c.NewStatus }
