package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/clinops/errs"
)

func defaultRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := DefaultRegistry()
	require.NoError(t, err)
	return r
}

func TestTerminalStatusesRejectEverything(t *testing.T) {
	r := defaultRegistry(t)

	for _, entity := range r.EntityTypes() {
		m, err := r.Machine(entity)
		require.NoError(t, err)

		for _, from := range m.Statuses() {
			if !m.IsTerminal(from) {
				continue
			}
			for _, to := range m.Statuses() {
				err := r.ValidateTransition(entity, from, to)
				require.Error(t, err, "%s %s -> %s", entity, from, to)

				var illegal *errs.IllegalTransitionError
				require.True(t, errors.As(err, &illegal))
				assert.True(t, illegal.Terminal)
				assert.Empty(t, illegal.Allowed)
			}
		}
	}
}

func TestValidateMatchesDeclaredTable(t *testing.T) {
	defs := []Definition{StudyDefinition(), PatientDefinition(), ProtocolVersionDefinition(), VisitDefinition()}

	for _, def := range defs {
		m, err := NewMachine(def)
		require.NoError(t, err)

		terminal := map[Status]bool{}
		for _, s := range def.Terminal {
			terminal[s] = true
		}

		for _, from := range def.Statuses {
			declared := map[Status]bool{}
			for _, to := range def.Transitions[from] {
				declared[to] = true
			}
			for _, to := range def.Statuses {
				want := !terminal[from] && from != to && (declared[to] || (def.Escape != "" && to == def.Escape))
				err := m.Validate(from, to)
				if want {
					assert.NoError(t, err, "%s %s -> %s", def.Entity, from, to)
				} else {
					assert.ErrorIs(t, err, errs.ErrIllegalTransition, "%s %s -> %s", def.Entity, from, to)
				}
			}
		}
	}
}

func TestEnrolledPatientCannotGoBackToScreening(t *testing.T) {
	r := defaultRegistry(t)

	err := r.ValidateTransition(EntityPatient, PatientEnrolled, PatientScreening)
	require.Error(t, err)

	var illegal *errs.IllegalTransitionError
	require.True(t, errors.As(err, &illegal))
	assert.Equal(t, "ENROLLED", illegal.From)
	assert.Equal(t, "SCREENING", illegal.To)
	assert.Equal(t, []string{"ACTIVE", "WITHDRAWN"}, illegal.Allowed)
}

func TestWithdrawnPatientIsFinal(t *testing.T) {
	r := defaultRegistry(t)
	m, err := r.Machine(EntityPatient)
	require.NoError(t, err)

	for _, to := range m.Statuses() {
		assert.Error(t, m.Validate(PatientWithdrawn, to))
	}
}

func TestSameStatusIsIllegal(t *testing.T) {
	r := defaultRegistry(t)

	err := r.ValidateTransition(EntityStudy, StudyActive, StudyActive)
	assert.ErrorIs(t, err, errs.ErrIllegalTransition)
	assert.Contains(t, err.Error(), "already in ACTIVE status")
}

func TestUnknownTargetIsValidationError(t *testing.T) {
	r := defaultRegistry(t)

	err := r.ValidateTransition(EntityVisit, VisitScheduled, "DONE")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestParseNormalisesAndListsValidStatuses(t *testing.T) {
	m, err := NewMachine(StudyDefinition())
	require.NoError(t, err)

	s, err := m.Parse(" protocol_review ")
	require.NoError(t, err)
	assert.Equal(t, StudyProtocolReview, s)

	_, err = m.Parse("archived")
	var verr *errs.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields["status"], "PLANNING")
}

func TestNewMachineRejectsInconsistentDefinitions(t *testing.T) {
	_, err := NewMachine(Definition{
		Entity:      "widget",
		Initial:     "NEW",
		Statuses:    []Status{"NEW", "DONE"},
		Transitions: map[Status][]Status{"DONE": {"NEW"}},
		Terminal:    []Status{"DONE"},
	})
	assert.Error(t, err)

	_, err = NewMachine(Definition{
		Entity:   "widget",
		Initial:  "MISSING",
		Statuses: []Status{"NEW"},
	})
	assert.Error(t, err)

	_, err = NewMachine(Definition{
		Entity:   "widget",
		Initial:  "NEW",
		Statuses: []Status{"NEW", "GONE"},
		Escape:   "GONE",
	})
	assert.Error(t, err, "escape must be terminal")
}

func TestAllowedFollowsDeclarationOrder(t *testing.T) {
	m, err := NewMachine(ProtocolVersionDefinition())
	require.NoError(t, err)

	assert.Equal(t, []Status{VersionDraft, VersionSubmitted, VersionApproved, VersionWithdrawn}, m.Allowed(VersionUnderReview))
	assert.Nil(t, m.Allowed(VersionSuperseded))
}
