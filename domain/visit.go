package domain

import (
	"fmt"

	"github.com/google/uuid"

	"example.com/backstage/services/clinops/lifecycle"
)

// VisitState represents the state of a visit
type VisitState struct {
	PatientID     uuid.UUID
	StudyID       uuid.UUID
	VisitName     string
	ScheduledDate string
	Status        lifecycle.Status
	LegacyID      *int64
}

// VisitAggregate is the aggregate for a visit
type VisitAggregate struct {
	*AggregateBase
	State   VisitState
	machine *lifecycle.Machine
}

// NewVisitAggregate creates a new visit aggregate
func NewVisitAggregate(id uuid.UUID, machine *lifecycle.Machine) *VisitAggregate {
	aggregate := &VisitAggregate{machine: machine}
	aggregate.AggregateBase = NewAggregateBase(id, lifecycle.EntityVisit, aggregate.applyEvent)
	return aggregate
}

// Status returns the current lifecycle status
func (a *VisitAggregate) Status() lifecycle.Status {
	return a.State.Status
}

// Handle decides the events a command produces
func (a *VisitAggregate) Handle(cmd Command) error {
	switch c := cmd.(type) {
	case ScheduleVisitCommand:
		if a.Exists() {
			return a.alreadyExists()
		}
		status, legacyID, err := initialStatus(a.machine, c)
		if err != nil {
			return err
		}
		a.Raise(VisitScheduledEvent{
			PatientID:     c.PatientID,
			StudyID:       c.StudyID,
			VisitName:     c.VisitName,
			ScheduledDate: c.ScheduledDate,
			Status:        status,
			LegacyID:      legacyID,
		}, c.Actor)

	case RescheduleVisitCommand:
		if !a.Exists() {
			return a.notFound()
		}
		if a.machine.IsTerminal(a.State.Status) {
			return a.terminal(a.State.Status)
		}
		if c.ScheduledDate == a.State.ScheduledDate {
			return nil
		}
		a.Raise(VisitRescheduledEvent{ScheduledDate: c.ScheduledDate}, c.Actor)

	case ChangeVisitStatusCommand:
		if !a.Exists() {
			return a.notFound()
		}
		if err := a.machine.Validate(a.State.Status, c.NewStatus); err != nil {
			return err
		}
		a.Raise(VisitStatusChangedEvent{From: a.State.Status, To: c.NewStatus, Reason: c.Reason}, c.Actor)

	default:
		return fmt.Errorf("visit aggregate cannot handle %s", cmd.CommandType())
	}
	return nil
}

func (a *VisitAggregate) applyEvent(event EventData) {
	switch e := event.(type) {
	case VisitScheduledEvent:
		a.State = VisitState{
			PatientID:     e.PatientID,
			StudyID:       e.StudyID,
			VisitName:     e.VisitName,
			ScheduledDate: e.ScheduledDate,
			Status:        e.Status,
			LegacyID:      e.LegacyID,
		}

	case VisitRescheduledEvent:
		a.State.ScheduledDate = e.ScheduledDate

	case VisitStatusChangedEvent:
		a.State.Status = e.To
	}
}
