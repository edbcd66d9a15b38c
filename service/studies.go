package service

import (
	"context"

	"github.com/google/uuid"

	"example.com/backstage/services/clinops/domain"
	"example.com/backstage/services/clinops/lifecycle"
	"example.com/backstage/services/clinops/models"
)

// CreateStudy starts a new study in PLANNING
func (s *Service) CreateStudy(ctx context.Context, req CreateStudyRequest) (View, error) {
	id := uuid.New()
	cmd := domain.CreateStudyCommand{
		StudyID:        id,
		Name:           req.Name,
		ProtocolNumber: req.ProtocolNumber,
		Sponsor:        req.Sponsor,
		Phase:          req.Phase,
		StudyType:      req.StudyType,
		Description:    req.Description,
		Actor:          req.Actor,
	}
	return s.execute(ctx, cmd, atSequence(s.reads, lifecycle.EntityStudy, id), nil)
}

// UpdateStudy edits a study's details
func (s *Service) UpdateStudy(ctx context.Context, raw string, req UpdateStudyRequest) (View, error) {
	id, err := s.bridge.EnsureAggregateExists(ctx, lifecycle.EntityStudy, raw)
	if err != nil {
		return View{}, err
	}

	cmd := domain.UpdateStudyDetailsCommand{
		StudyID:     id,
		Name:        req.Name,
		Sponsor:     req.Sponsor,
		Phase:       req.Phase,
		Description: req.Description,
		Actor:       req.Actor,
	}
	return s.execute(ctx, cmd, atSequence(s.reads, lifecycle.EntityStudy, id), nil)
}

// ChangeStudyStatus moves a study through its lifecycle. The study's protocol
// versions must allow the target status.
func (s *Service) ChangeStudyStatus(ctx context.Context, raw string, req StatusRequest) (View, error) {
	id, err := s.bridge.EnsureAggregateExists(ctx, lifecycle.EntityStudy, raw)
	if err != nil {
		return View{}, err
	}
	status, err := s.parseStatus(lifecycle.EntityStudy, req.Status)
	if err != nil {
		return View{}, err
	}

	if _, err := s.transition(ctx, lifecycle.EntityStudy, id, status); err != nil {
		return View{}, err
	}
	result, err := s.precondition(ctx, lifecycle.EntityStudy, id, id, status)
	if err != nil {
		return View{}, err
	}

	cmd := domain.ChangeStudyStatusCommand{
		StudyID:   id,
		NewStatus: status,
		Reason:    req.Reason,
		Actor:     req.Actor,
	}
	return s.execute(ctx, cmd, statusAt(s.reads, lifecycle.EntityStudy, id, status), result.Warnings)
}

// GetStudy loads a study by aggregate id or legacy id
func (s *Service) GetStudy(ctx context.Context, raw string) (View, error) {
	return s.Get(ctx, lifecycle.EntityStudy, raw)
}

// StudyHistory lists a study's status changes
func (s *Service) StudyHistory(ctx context.Context, raw string) ([]models.StatusHistory, error) {
	return s.History(ctx, lifecycle.EntityStudy, raw)
}

// ListProtocolVersions lists the protocol versions of a study
func (s *Service) ListProtocolVersions(ctx context.Context, rawStudy string) ([]models.ProtocolVersion, error) {
	studyID, _, err := s.bridge.Resolve(ctx, lifecycle.EntityStudy, rawStudy)
	if err != nil {
		return nil, err
	}
	return s.reads.ListProtocolVersions(ctx, studyID)
}
