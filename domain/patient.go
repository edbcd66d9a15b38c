package domain

import (
	"fmt"

	"github.com/google/uuid"

	"example.com/backstage/services/clinops/lifecycle"
)

// PatientState represents the state of a patient
type PatientState struct {
	StudyID       uuid.UUID
	PatientNumber string
	FirstName     string
	LastName      string
	DateOfBirth   string
	Gender        string
	Email         string
	Status        lifecycle.Status
	LegacyID      *int64
}

// PatientAggregate is the aggregate for a patient
type PatientAggregate struct {
	*AggregateBase
	State   PatientState
	machine *lifecycle.Machine
}

// NewPatientAggregate creates a new patient aggregate
func NewPatientAggregate(id uuid.UUID, machine *lifecycle.Machine) *PatientAggregate {
	aggregate := &PatientAggregate{machine: machine}
	aggregate.AggregateBase = NewAggregateBase(id, lifecycle.EntityPatient, aggregate.applyEvent)
	return aggregate
}

// Status returns the current lifecycle status
func (a *PatientAggregate) Status() lifecycle.Status {
	return a.State.Status
}

// Handle decides the events a command produces
func (a *PatientAggregate) Handle(cmd Command) error {
	switch c := cmd.(type) {
	case RegisterPatientCommand:
		if a.Exists() {
			return a.alreadyExists()
		}
		status, legacyID, err := initialStatus(a.machine, c)
		if err != nil {
			return err
		}
		a.Raise(PatientRegisteredEvent{
			StudyID:       c.StudyID,
			PatientNumber: c.PatientNumber,
			FirstName:     c.FirstName,
			LastName:      c.LastName,
			DateOfBirth:   c.DateOfBirth,
			Gender:        c.Gender,
			Email:         c.Email,
			Status:        status,
			LegacyID:      legacyID,
		}, c.Actor)

	case UpdatePatientDetailsCommand:
		if !a.Exists() {
			return a.notFound()
		}
		if a.machine.IsTerminal(a.State.Status) {
			return a.terminal(a.State.Status)
		}
		s := a.State
		if c.FirstName == s.FirstName && c.LastName == s.LastName && c.DateOfBirth == s.DateOfBirth &&
			c.Gender == s.Gender && c.Email == s.Email {
			return nil
		}
		a.Raise(PatientDetailsUpdatedEvent{
			FirstName:   c.FirstName,
			LastName:    c.LastName,
			DateOfBirth: c.DateOfBirth,
			Gender:      c.Gender,
			Email:       c.Email,
		}, c.Actor)

	case ChangePatientStatusCommand:
		if !a.Exists() {
			return a.notFound()
		}
		if err := a.machine.Validate(a.State.Status, c.NewStatus); err != nil {
			return err
		}
		a.Raise(PatientStatusChangedEvent{
			From:   a.State.Status,
			To:     c.NewStatus,
			Reason: c.Reason,
			Notes:  c.Notes,
		}, c.Actor)

	default:
		return fmt.Errorf("patient aggregate cannot handle %s", cmd.CommandType())
	}
	return nil
}

func (a *PatientAggregate) applyEvent(event EventData) {
	switch e := event.(type) {
	case PatientRegisteredEvent:
		a.State = PatientState{
			StudyID:       e.StudyID,
			PatientNumber: e.PatientNumber,
			FirstName:     e.FirstName,
			LastName:      e.LastName,
			DateOfBirth:   e.DateOfBirth,
			Gender:        e.Gender,
			Email:         e.Email,
			Status:        e.Status,
			LegacyID:      e.LegacyID,
		}

	case PatientDetailsUpdatedEvent:
		a.State.FirstName = e.FirstName
		a.State.LastName = e.LastName
		a.State.DateOfBirth = e.DateOfBirth
		a.State.Gender = e.Gender
		a.State.Email = e.Email

	case PatientStatusChangedEvent:
		a.State.Status = e.To
	}
}
