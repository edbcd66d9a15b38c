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

// CreateProtocolVersion drafts a new protocol version. Originals need a study
// still in design; amendments only need a study that is not terminal.
func (s *Service) CreateProtocolVersion(ctx context.Context, req CreateProtocolVersionRequest) (View, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return View{}, err
	}
	studyID, err := s.bridge.EnsureAggregateExists(ctx, lifecycle.EntityStudy, req.StudyID)
	if err != nil {
		return View{}, err
	}
	if err := s.visible(ctx, lifecycle.EntityStudy, studyID); err != nil {
		return View{}, err
	}
	if err := s.checker.ValidateDesignModification(ctx, studyID, req.AmendmentType != ""); err != nil {
		return View{}, err
	}

	id := uuid.New()
	cmd := domain.CreateProtocolVersionCommand{
		VersionID:                  id,
		StudyID:                    studyID,
		VersionNumber:              req.VersionNumber,
		AmendmentType:              req.AmendmentType,
		Description:                req.Description,
		ChangesSummary:             req.ChangesSummary,
		RequiresRegulatoryApproval: req.RequiresRegulatoryApproval,
		Actor:                      req.Actor,
	}
	return s.execute(ctx, cmd, atSequence(s.reads, lifecycle.EntityProtocolVersion, id), nil)
}

// UpdateProtocolVersion edits a version's description, under the same study
// rules as creating it.
func (s *Service) UpdateProtocolVersion(ctx context.Context, raw string, req UpdateProtocolVersionRequest) (View, error) {
	id, err := s.bridge.EnsureAggregateExists(ctx, lifecycle.EntityProtocolVersion, raw)
	if err != nil {
		return View{}, err
	}

	created, err := s.versionCreation(ctx, id)
	if err != nil {
		return View{}, err
	}
	if err := s.visible(ctx, lifecycle.EntityStudy, created.StudyID); err != nil {
		return View{}, err
	}
	if err := s.checker.ValidateDesignModification(ctx, created.StudyID, created.AmendmentType != ""); err != nil {
		return View{}, err
	}

	cmd := domain.UpdateProtocolVersionCommand{
		VersionID:      id,
		Description:    req.Description,
		ChangesSummary: req.ChangesSummary,
		Actor:          req.Actor,
	}
	return s.execute(ctx, cmd, atSequence(s.reads, lifecycle.EntityProtocolVersion, id), nil)
}

// ChangeProtocolVersionStatus moves a version through review and activation
func (s *Service) ChangeProtocolVersionStatus(ctx context.Context, raw string, req StatusRequest) (View, error) {
	id, err := s.bridge.EnsureAggregateExists(ctx, lifecycle.EntityProtocolVersion, raw)
	if err != nil {
		return View{}, err
	}
	status, err := s.parseStatus(lifecycle.EntityProtocolVersion, req.Status)
	if err != nil {
		return View{}, err
	}

	data, err := s.transition(ctx, lifecycle.EntityProtocolVersion, id, status)
	if err != nil {
		return View{}, err
	}
	created, err := versionCreated(id, data)
	if err != nil {
		return View{}, err
	}
	result, err := s.precondition(ctx, lifecycle.EntityProtocolVersion, id, created.StudyID, status)
	if err != nil {
		return View{}, err
	}

	cmd := domain.ChangeProtocolVersionStatusCommand{
		VersionID: id,
		NewStatus: status,
		Reason:    req.Reason,
		Actor:     req.Actor,
	}
	return s.execute(ctx, cmd, statusAt(s.reads, lifecycle.EntityProtocolVersion, id, status), result.Warnings)
}

func (s *Service) versionCreation(ctx context.Context, id uuid.UUID) (domain.ProtocolVersionCreatedEvent, error) {
	created, err := s.creation(ctx, lifecycle.EntityProtocolVersion, id)
	if err != nil {
		return domain.ProtocolVersionCreatedEvent{}, err
	}
	return versionCreated(id, created)
}

func versionCreated(id uuid.UUID, created domain.EventData) (domain.ProtocolVersionCreatedEvent, error) {
	version, ok := created.(domain.ProtocolVersionCreatedEvent)
	if !ok {
		return domain.ProtocolVersionCreatedEvent{}, &errs.ConflictError{AggregateID: id.String(), Reason: "stream does not start with a protocol version"}
	}
	return version, nil
}

// GetProtocolVersion loads a version by aggregate id or legacy id
func (s *Service) GetProtocolVersion(ctx context.Context, raw string) (View, error) {
	return s.Get(ctx, lifecycle.EntityProtocolVersion, raw)
}

// ProtocolVersionHistory lists a version's status changes
func (s *Service) ProtocolVersionHistory(ctx context.Context, raw string) ([]models.StatusHistory, error) {
	return s.History(ctx, lifecycle.EntityProtocolVersion, raw)
}
