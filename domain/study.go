package domain

import (
	"fmt"

	"github.com/google/uuid"

	"example.com/backstage/services/clinops/lifecycle"
)

// StudyState represents the state of a study
type StudyState struct {
	Name           string
	ProtocolNumber string
	Sponsor        string
	Phase          string
	StudyType      string
	Description    string
	Status         lifecycle.Status
	LegacyID       *int64
}

// StudyAggregate is the aggregate for a study
type StudyAggregate struct {
	*AggregateBase
	State   StudyState
	machine *lifecycle.Machine
}

// NewStudyAggregate creates a new study aggregate
func NewStudyAggregate(id uuid.UUID, machine *lifecycle.Machine) *StudyAggregate {
	aggregate := &StudyAggregate{machine: machine}
	aggregate.AggregateBase = NewAggregateBase(id, lifecycle.EntityStudy, aggregate.applyEvent)
	return aggregate
}

// Status returns the current lifecycle status
func (a *StudyAggregate) Status() lifecycle.Status {
	return a.State.Status
}

// Handle decides the events a command produces
func (a *StudyAggregate) Handle(cmd Command) error {
	switch c := cmd.(type) {
	case CreateStudyCommand:
		if a.Exists() {
			return a.alreadyExists()
		}
		status, legacyID, err := initialStatus(a.machine, c)
		if err != nil {
			return err
		}
		a.Raise(StudyCreatedEvent{
			Name:           c.Name,
			ProtocolNumber: c.ProtocolNumber,
			Sponsor:        c.Sponsor,
			Phase:          c.Phase,
			StudyType:      c.StudyType,
			Description:    c.Description,
			Status:         status,
			LegacyID:       legacyID,
		}, c.Actor)

	case UpdateStudyDetailsCommand:
		if !a.Exists() {
			return a.notFound()
		}
		if a.machine.IsTerminal(a.State.Status) {
			return a.terminal(a.State.Status)
		}
		if c.Name == a.State.Name && c.Sponsor == a.State.Sponsor &&
			c.Phase == a.State.Phase && c.Description == a.State.Description {
			return nil
		}
		a.Raise(StudyDetailsUpdatedEvent{
			Name:        c.Name,
			Sponsor:     c.Sponsor,
			Phase:       c.Phase,
			Description: c.Description,
		}, c.Actor)

	case ChangeStudyStatusCommand:
		if !a.Exists() {
			return a.notFound()
		}
		if err := a.machine.Validate(a.State.Status, c.NewStatus); err != nil {
			return err
		}
		a.Raise(StudyStatusChangedEvent{From: a.State.Status, To: c.NewStatus, Reason: c.Reason}, c.Actor)

	default:
		return fmt.Errorf("study aggregate cannot handle %s", cmd.CommandType())
	}
	return nil
}

func (a *StudyAggregate) applyEvent(event EventData) {
	switch e := event.(type) {
	case StudyCreatedEvent:
		a.State = StudyState{
			Name:           e.Name,
			ProtocolNumber: e.ProtocolNumber,
			Sponsor:        e.Sponsor,
			Phase:          e.Phase,
			StudyType:      e.StudyType,
			Description:    e.Description,
			Status:         e.Status,
			LegacyID:       e.LegacyID,
		}

	case StudyDetailsUpdatedEvent:
		a.State.Name = e.Name
		a.State.Sponsor = e.Sponsor
		a.State.Phase = e.Phase
		a.State.Description = e.Description

	case StudyStatusChangedEvent:
		a.State.Status = e.To
	}
}
