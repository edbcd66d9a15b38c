package domain

import (
	"fmt"

	"github.com/google/uuid"

	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/lifecycle"
	"example.com/backstage/services/clinops/utils"
)

// legacyPayload lists the descriptive create fields a migration copies from
// the legacy row as they are stored. Their format rules apply to new data only.
var legacyPayload = []string{
	"Name", "ProtocolNumber", "Sponsor", "Phase", "StudyType", "Description",
	"PatientNumber", "FirstName", "LastName", "DateOfBirth", "Gender", "Email",
	"VersionNumber", "AmendmentType", "ChangesSummary",
	"VisitName", "ScheduledDate",
}

// ValidateCommand checks a command's shape without touching any store.
func ValidateCommand(cmd Command, registry *lifecycle.Registry) error {
	if cmd == nil {
		return errs.NewValidationError("command is required")
	}
	if err := validateShape(cmd); err != nil {
		return err
	}
	if cmd.AggregateID() == uuid.Nil {
		return &errs.ValidationError{
			Message: fmt.Sprintf("invalid %s command", cmd.CommandType()),
			Fields:  map[string]string{"id": "must not be the nil UUID"},
		}
	}

	m, err := registry.Machine(cmd.EntityType())
	if err != nil {
		return err
	}

	switch c := cmd.(type) {
	case StatusCommand:
		if _, err := m.Parse(string(c.RequestedStatus())); err != nil {
			return err
		}
	case CreateCommand:
		legacyID, initial := c.Legacy()
		if initial == "" {
			return nil
		}
		if legacyID == nil {
			return &errs.ValidationError{
				Message: "initial status is only accepted when migrating a legacy row",
				Fields:  map[string]string{"initial_status": "requires legacy_id"},
			}
		}
		if _, err := m.Parse(string(initial)); err != nil {
			return err
		}
	}
	return nil
}

func validateShape(cmd Command) error {
	if c, ok := cmd.(CreateCommand); ok {
		if legacyID, _ := c.Legacy(); legacyID != nil {
			return utils.ValidateStructExcept(cmd, legacyPayload...)
		}
	}
	return utils.ValidateStruct(cmd)
}
