package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/clinops/errs"
)

// StatusLookup reads other entities' current status from the read store.
type StatusLookup interface {
	StudyStatus(ctx context.Context, studyID uuid.UUID) (Status, error)
	ProtocolVersionStatuses(ctx context.Context, studyID uuid.UUID) ([]Status, error)
	PatientStatus(ctx context.Context, patientID uuid.UUID) (Status, error)
}

// PreconditionResult collects the outcome of a cross-entity check
type PreconditionResult struct {
	Valid    bool                   `json:"valid"`
	Errors   []string               `json:"errors"`
	Warnings []string               `json:"warnings"`
	Details  map[string]interface{} `json:"details"`
}

func newResult() *PreconditionResult {
	return &PreconditionResult{Valid: true, Details: map[string]interface{}{}}
}

func (r *PreconditionResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *PreconditionResult) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Err converts a failed result into a ConflictError naming the subject.
func (r *PreconditionResult) Err(subject string) error {
	if r.Valid {
		return nil
	}
	return &errs.ConflictError{
		AggregateID: subject,
		Reason:      "cross-entity precondition failed",
		Details:     append([]string(nil), r.Errors...),
	}
}

// Editable study phases for design modifications
var designEditable = map[Status]struct{}{
	StudyPlanning:       {},
	StudyProtocolReview: {},
}

// PreconditionChecker runs extrinsic checks before a command is dispatched.
// Aggregates never call it.
type PreconditionChecker struct {
	machines *Registry
	lookup   StatusLookup
}

// NewPreconditionChecker creates a checker
func NewPreconditionChecker(machines *Registry, lookup StatusLookup) *PreconditionChecker {
	return &PreconditionChecker{machines: machines, lookup: lookup}
}

// ValidateCrossEntityPrecondition checks that moving an entity of the given
// type to requested is compatible with the state of parentID. For a study the
// parent is the study itself (its protocol versions are inspected); for a
// patient it is the study; for a visit it is the patient.
func (c *PreconditionChecker) ValidateCrossEntityPrecondition(ctx context.Context, entity EntityType, parentID uuid.UUID, requested Status) (*PreconditionResult, error) {
	result := newResult()
	result.Details["entity"] = string(entity)
	result.Details["parent_id"] = parentID.String()
	result.Details["requested_status"] = string(requested)

	var err error
	switch entity {
	case EntityStudy:
		err = c.studyRules(ctx, parentID, requested, result)
	case EntityPatient:
		err = c.patientRules(ctx, parentID, requested, result)
	case EntityVisit:
		err = c.visitRules(ctx, parentID, requested, result)
	case EntityProtocolVersion:
		// Version lifecycle is independent of the study lifecycle
	default:
		return nil, errs.NewValidationError("unknown entity type %q", entity)
	}
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("entity", string(entity)).
		Str("parentID", parentID.String()).
		Str("requested", string(requested)).
		Bool("valid", result.Valid).
		Int("errors", len(result.Errors)).
		Int("warnings", len(result.Warnings)).
		Msg("Cross-entity precondition evaluated")

	return result, nil
}

func (c *PreconditionChecker) studyRules(ctx context.Context, studyID uuid.UUID, requested Status, result *PreconditionResult) error {
	versions, err := c.lookup.ProtocolVersionStatuses(ctx, studyID)
	if err != nil {
		return err
	}

	counts := make(map[Status]int)
	for _, s := range versions {
		counts[s]++
	}
	result.Details["protocol_versions"] = len(versions)
	result.Details["active_versions"] = counts[VersionActive]
	result.Details["approved_versions"] = counts[VersionApproved]

	switch requested {
	case StudyProtocolReview:
		if len(versions) == 0 {
			result.fail("study must have at least one protocol version before review")
		} else if counts[VersionDraft]+counts[VersionUnderReview] == 0 {
			result.warn("no protocol versions are in a reviewable status (DRAFT or UNDER_REVIEW)")
		}
	case StudyApproved:
		if counts[VersionApproved]+counts[VersionActive] == 0 {
			result.fail("study must have at least one approved protocol version")
		}
	case StudyActive:
		switch n := counts[VersionActive]; {
		case n == 0:
			result.fail("active study must have exactly one active protocol version")
		case n > 1:
			result.fail("study has %d active protocol versions - only one is allowed", n)
		}
	case StudySuspended:
		if counts[VersionActive] == 0 {
			result.warn("suspended study has no active protocol version")
		}
	case StudyWithdrawn:
		if counts[VersionActive] > 0 {
			result.fail("withdrawn study cannot have active protocol versions")
		}
	}
	return nil
}

func (c *PreconditionChecker) patientRules(ctx context.Context, studyID uuid.UUID, requested Status, result *PreconditionResult) error {
	status, err := c.lookup.StudyStatus(ctx, studyID)
	if err != nil {
		return err
	}
	result.Details["study_status"] = string(status)

	switch requested {
	case PatientScreening, PatientEnrolled, PatientActive:
		if status != StudyActive {
			result.fail("patients can only move to %s while the study is ACTIVE (study is %s)", requested, status)
		}
	case PatientRegistered:
		if c.isTerminal(EntityStudy, status) {
			result.fail("cannot register patients in a study with terminal status %s", status)
		}
	}
	return nil
}

func (c *PreconditionChecker) visitRules(ctx context.Context, patientID uuid.UUID, requested Status, result *PreconditionResult) error {
	status, err := c.lookup.PatientStatus(ctx, patientID)
	if err != nil {
		return err
	}
	result.Details["patient_status"] = string(status)

	switch requested {
	case VisitScheduled:
		if c.isTerminal(EntityPatient, status) {
			result.fail("cannot schedule visits for a patient with terminal status %s", status)
		}
	case VisitInProgress, VisitCompleted:
		if status != PatientEnrolled && status != PatientActive {
			result.fail("visit cannot move to %s while the patient is %s", requested, status)
		}
	}
	return nil
}

// ValidateDesignModification rejects structural edits (protocol version
// creation and edits) once the study has left its editable phase. Amendments
// only need a study that is not terminal.
func (c *PreconditionChecker) ValidateDesignModification(ctx context.Context, studyID uuid.UUID, amendment bool) error {
	status, err := c.lookup.StudyStatus(ctx, studyID)
	if err != nil {
		return err
	}

	if amendment {
		if c.isTerminal(EntityStudy, status) {
			return &errs.ConflictError{
				AggregateID: studyID.String(),
				Reason:      fmt.Sprintf("cannot amend the protocol of a study in terminal status %s", status),
			}
		}
		return nil
	}

	if _, ok := designEditable[status]; !ok {
		return &errs.ConflictError{
			AggregateID: studyID.String(),
			Reason: fmt.Sprintf("cannot modify study design: study is in status %s. "+
				"Design modifications only allowed in PLANNING or PROTOCOL_REVIEW status", status),
		}
	}
	return nil
}

func (c *PreconditionChecker) isTerminal(entity EntityType, s Status) bool {
	m, err := c.machines.Machine(entity)
	if err != nil {
		return false
	}
	return m.IsTerminal(s)
}
