package domain

import (
	"fmt"

	"github.com/google/uuid"

	"example.com/backstage/services/clinops/lifecycle"
)

// ProtocolVersionState represents the state of a protocol version
type ProtocolVersionState struct {
	StudyID                    uuid.UUID
	VersionNumber              string
	AmendmentType              string
	Description                string
	ChangesSummary             string
	RequiresRegulatoryApproval bool
	Status                     lifecycle.Status
	LegacyID                   *int64
}

// IsAmendment reports whether the version amends an earlier protocol
func (s ProtocolVersionState) IsAmendment() bool {
	return s.AmendmentType != ""
}

// ProtocolVersionAggregate is the aggregate for a protocol version
type ProtocolVersionAggregate struct {
	*AggregateBase
	State   ProtocolVersionState
	machine *lifecycle.Machine
}

// NewProtocolVersionAggregate creates a new protocol version aggregate
func NewProtocolVersionAggregate(id uuid.UUID, machine *lifecycle.Machine) *ProtocolVersionAggregate {
	aggregate := &ProtocolVersionAggregate{machine: machine}
	aggregate.AggregateBase = NewAggregateBase(id, lifecycle.EntityProtocolVersion, aggregate.applyEvent)
	return aggregate
}

// Status returns the current lifecycle status
func (a *ProtocolVersionAggregate) Status() lifecycle.Status {
	return a.State.Status
}

// Handle decides the events a command produces
func (a *ProtocolVersionAggregate) Handle(cmd Command) error {
	switch c := cmd.(type) {
	case CreateProtocolVersionCommand:
		if a.Exists() {
			return a.alreadyExists()
		}
		status, legacyID, err := initialStatus(a.machine, c)
		if err != nil {
			return err
		}
		a.Raise(ProtocolVersionCreatedEvent{
			StudyID:                    c.StudyID,
			VersionNumber:              c.VersionNumber,
			AmendmentType:              c.AmendmentType,
			Description:                c.Description,
			ChangesSummary:             c.ChangesSummary,
			RequiresRegulatoryApproval: c.RequiresRegulatoryApproval,
			Status:                     status,
			LegacyID:                   legacyID,
		}, c.Actor)

	case UpdateProtocolVersionCommand:
		if !a.Exists() {
			return a.notFound()
		}
		if a.machine.IsTerminal(a.State.Status) {
			return a.terminal(a.State.Status)
		}
		if c.Description == a.State.Description && c.ChangesSummary == a.State.ChangesSummary {
			return nil
		}
		a.Raise(ProtocolVersionUpdatedEvent{
			Description:    c.Description,
			ChangesSummary: c.ChangesSummary,
		}, c.Actor)

	case ChangeProtocolVersionStatusCommand:
		if !a.Exists() {
			return a.notFound()
		}
		if err := a.machine.Validate(a.State.Status, c.NewStatus); err != nil {
			return err
		}
		a.Raise(ProtocolVersionStatusChangedEvent{
			From:   a.State.Status,
			To:     c.NewStatus,
			Reason: c.Reason,
		}, c.Actor)

	default:
		return fmt.Errorf("protocol version aggregate cannot handle %s", cmd.CommandType())
	}
	return nil
}

func (a *ProtocolVersionAggregate) applyEvent(event EventData) {
	switch e := event.(type) {
	case ProtocolVersionCreatedEvent:
		a.State = ProtocolVersionState{
			StudyID:                    e.StudyID,
			VersionNumber:              e.VersionNumber,
			AmendmentType:              e.AmendmentType,
			Description:                e.Description,
			ChangesSummary:             e.ChangesSummary,
			RequiresRegulatoryApproval: e.RequiresRegulatoryApproval,
			Status:                     e.Status,
			LegacyID:                   e.LegacyID,
		}

	case ProtocolVersionUpdatedEvent:
		a.State.Description = e.Description
		a.State.ChangesSummary = e.ChangesSummary

	case ProtocolVersionStatusChangedEvent:
		a.State.Status = e.To
	}
}
