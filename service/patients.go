package service

import (
	"context"

	"github.com/google/uuid"

	"example.com/backstage/services/clinops/domain"
	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/handlers"
	"example.com/backstage/services/clinops/lifecycle"
	"example.com/backstage/services/clinops/models"
	"example.com/backstage/services/clinops/utils"
	"example.com/backstage/services/clinops/waiter"
)

// RegisterPatient enrols a new patient into a study that is not terminal
func (s *Service) RegisterPatient(ctx context.Context, req RegisterPatientRequest) (View, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return View{}, err
	}
	studyID, err := s.bridge.EnsureAggregateExists(ctx, lifecycle.EntityStudy, req.StudyID)
	if err != nil {
		return View{}, err
	}

	id := uuid.New()
	if err := s.visible(ctx, lifecycle.EntityStudy, studyID); err != nil {
		return View{}, err
	}
	result, err := s.precondition(ctx, lifecycle.EntityPatient, id, studyID, lifecycle.PatientRegistered)
	if err != nil {
		return View{}, err
	}

	cmd := domain.RegisterPatientCommand{
		PatientID:     id,
		StudyID:       studyID,
		PatientNumber: req.PatientNumber,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		DateOfBirth:   req.DateOfBirth,
		Gender:        req.Gender,
		Email:         req.Email,
		Actor:         req.Actor,
	}
	return s.execute(ctx, cmd, atSequence(s.reads, lifecycle.EntityPatient, id), result.Warnings)
}

// UpdatePatient edits a patient's demographics
func (s *Service) UpdatePatient(ctx context.Context, raw string, req UpdatePatientRequest) (View, error) {
	id, err := s.bridge.EnsureAggregateExists(ctx, lifecycle.EntityPatient, raw)
	if err != nil {
		return View{}, err
	}

	cmd := domain.UpdatePatientDetailsCommand{
		PatientID:   id,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		Gender:      req.Gender,
		Email:       req.Email,
		Actor:       req.Actor,
	}
	return s.execute(ctx, cmd, atSequence(s.reads, lifecycle.EntityPatient, id), nil)
}

// ChangePatientStatus moves a patient through enrolment. The study must be
// ACTIVE for screening, enrolment and activation.
func (s *Service) ChangePatientStatus(ctx context.Context, raw string, req StatusRequest) (View, error) {
	id, err := s.bridge.EnsureAggregateExists(ctx, lifecycle.EntityPatient, raw)
	if err != nil {
		return View{}, err
	}
	status, err := s.parseStatus(lifecycle.EntityPatient, req.Status)
	if err != nil {
		return View{}, err
	}

	created, err := s.transition(ctx, lifecycle.EntityPatient, id, status)
	if err != nil {
		return View{}, err
	}
	registered, ok := created.(domain.PatientRegisteredEvent)
	if !ok {
		return View{}, &errs.ConflictError{AggregateID: id.String(), Reason: "stream does not start with a patient registration"}
	}

	if err := s.visible(ctx, lifecycle.EntityStudy, registered.StudyID); err != nil {
		return View{}, err
	}
	result, err := s.precondition(ctx, lifecycle.EntityPatient, id, registered.StudyID, status)
	if err != nil {
		return View{}, err
	}

	cmd := domain.ChangePatientStatusCommand{
		PatientID: id,
		NewStatus: status,
		Reason:    req.Reason,
		Notes:     req.Notes,
		Actor:     req.Actor,
	}
	return s.execute(ctx, cmd, s.historyRecorded(id), result.Warnings)
}

// historyRecorded waits for the patient's previous -> new history row
func (s *Service) historyRecorded(id uuid.UUID) func(handlers.Outcome) waiter.Check {
	return func(o handlers.Outcome) waiter.Check {
		for _, e := range o.Events {
			if change, ok := e.Data.(domain.StatusChange); ok {
				from, to, _ := change.Transition()
				return waiter.HistoryRecorded(s.reads, id, from, to)
			}
		}
		return waiter.AtSequence(s.reads, lifecycle.EntityPatient, id, o.Sequence)
	}
}

// GetPatient loads a patient by aggregate id or legacy id
func (s *Service) GetPatient(ctx context.Context, raw string) (View, error) {
	return s.Get(ctx, lifecycle.EntityPatient, raw)
}

// PatientHistory lists a patient's status changes
func (s *Service) PatientHistory(ctx context.Context, raw string) ([]models.StatusHistory, error) {
	return s.History(ctx, lifecycle.EntityPatient, raw)
}
