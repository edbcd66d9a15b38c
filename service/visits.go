package service

import (
	"context"

	"github.com/google/uuid"

	"example.com/backstage/services/clinops/domain"
	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/lifecycle"
	"example.com/backstage/services/clinops/models"
	"example.com/backstage/services/clinops/utils"
)

// ScheduleVisit books a visit for a patient that is not terminal
func (s *Service) ScheduleVisit(ctx context.Context, req ScheduleVisitRequest) (View, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return View{}, err
	}
	patientID, err := s.bridge.EnsureAggregateExists(ctx, lifecycle.EntityPatient, req.PatientID)
	if err != nil {
		return View{}, err
	}
	patient, err := s.patientCreation(ctx, patientID)
	if err != nil {
		return View{}, err
	}

	id := uuid.New()
	if err := s.visible(ctx, lifecycle.EntityPatient, patientID); err != nil {
		return View{}, err
	}
	result, err := s.precondition(ctx, lifecycle.EntityVisit, id, patientID, lifecycle.VisitScheduled)
	if err != nil {
		return View{}, err
	}

	cmd := domain.ScheduleVisitCommand{
		VisitID:       id,
		PatientID:     patientID,
		StudyID:       patient.StudyID,
		VisitName:     req.VisitName,
		ScheduledDate: req.ScheduledDate,
		Actor:         req.Actor,
	}
	return s.execute(ctx, cmd, atSequence(s.reads, lifecycle.EntityVisit, id), result.Warnings)
}

// RescheduleVisit moves a visit to another date
func (s *Service) RescheduleVisit(ctx context.Context, raw string, req RescheduleVisitRequest) (View, error) {
	id, err := s.bridge.EnsureAggregateExists(ctx, lifecycle.EntityVisit, raw)
	if err != nil {
		return View{}, err
	}

	cmd := domain.RescheduleVisitCommand{
		VisitID:       id,
		ScheduledDate: req.ScheduledDate,
		Actor:         req.Actor,
	}
	return s.execute(ctx, cmd, atSequence(s.reads, lifecycle.EntityVisit, id), nil)
}

// ChangeVisitStatus records visit progress. Starting or completing a visit
// needs an ENROLLED or ACTIVE patient.
func (s *Service) ChangeVisitStatus(ctx context.Context, raw string, req StatusRequest) (View, error) {
	id, err := s.bridge.EnsureAggregateExists(ctx, lifecycle.EntityVisit, raw)
	if err != nil {
		return View{}, err
	}
	status, err := s.parseStatus(lifecycle.EntityVisit, req.Status)
	if err != nil {
		return View{}, err
	}

	created, err := s.transition(ctx, lifecycle.EntityVisit, id, status)
	if err != nil {
		return View{}, err
	}
	scheduled, ok := created.(domain.VisitScheduledEvent)
	if !ok {
		return View{}, &errs.ConflictError{AggregateID: id.String(), Reason: "stream does not start with a visit schedule"}
	}

	if err := s.visible(ctx, lifecycle.EntityPatient, scheduled.PatientID); err != nil {
		return View{}, err
	}
	result, err := s.precondition(ctx, lifecycle.EntityVisit, id, scheduled.PatientID, status)
	if err != nil {
		return View{}, err
	}

	cmd := domain.ChangeVisitStatusCommand{
		VisitID:   id,
		NewStatus: status,
		Reason:    req.Reason,
		Actor:     req.Actor,
	}
	return s.execute(ctx, cmd, statusAt(s.reads, lifecycle.EntityVisit, id, status), result.Warnings)
}

func (s *Service) patientCreation(ctx context.Context, id uuid.UUID) (domain.PatientRegisteredEvent, error) {
	created, err := s.creation(ctx, lifecycle.EntityPatient, id)
	if err != nil {
		return domain.PatientRegisteredEvent{}, err
	}
	patient, ok := created.(domain.PatientRegisteredEvent)
	if !ok {
		return domain.PatientRegisteredEvent{}, &errs.ConflictError{AggregateID: id.String(), Reason: "stream does not start with a patient registration"}
	}
	return patient, nil
}

// GetVisit loads a visit by aggregate id or legacy id
func (s *Service) GetVisit(ctx context.Context, raw string) (View, error) {
	return s.Get(ctx, lifecycle.EntityVisit, raw)
}

// VisitHistory lists a visit's status changes
func (s *Service) VisitHistory(ctx context.Context, raw string) ([]models.StatusHistory, error) {
	return s.History(ctx, lifecycle.EntityVisit, raw)
}
