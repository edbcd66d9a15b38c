package messaging

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/service"
)

// Command types accepted on the queue
const (
	CreateStudy                 = "CreateStudy"
	UpdateStudy                 = "UpdateStudy"
	ChangeStudyStatus           = "ChangeStudyStatus"
	RegisterPatient             = "RegisterPatient"
	UpdatePatient               = "UpdatePatient"
	ChangePatientStatus         = "ChangePatientStatus"
	CreateProtocolVersion       = "CreateProtocolVersion"
	UpdateProtocolVersion       = "UpdateProtocolVersion"
	ChangeProtocolVersionStatus = "ChangeProtocolVersionStatus"
	ScheduleVisit               = "ScheduleVisit"
	RescheduleVisit             = "RescheduleVisit"
	ChangeVisitStatus           = "ChangeVisitStatus"
)

// CommandMessage is the queue envelope. Commands on an existing entity carry
// its uuid or legacy id as "id" inside data.
type CommandMessage struct {
	CommandType string          `json:"commandType"`
	Data        json.RawMessage `json:"data"`
}

type target struct {
	ID string `json:"id"`
}

// CommandService is the write side the processor routes to
type CommandService interface {
	CreateStudy(ctx context.Context, req service.CreateStudyRequest) (service.View, error)
	UpdateStudy(ctx context.Context, id string, req service.UpdateStudyRequest) (service.View, error)
	ChangeStudyStatus(ctx context.Context, id string, req service.StatusRequest) (service.View, error)
	RegisterPatient(ctx context.Context, req service.RegisterPatientRequest) (service.View, error)
	UpdatePatient(ctx context.Context, id string, req service.UpdatePatientRequest) (service.View, error)
	ChangePatientStatus(ctx context.Context, id string, req service.StatusRequest) (service.View, error)
	CreateProtocolVersion(ctx context.Context, req service.CreateProtocolVersionRequest) (service.View, error)
	UpdateProtocolVersion(ctx context.Context, id string, req service.UpdateProtocolVersionRequest) (service.View, error)
	ChangeProtocolVersionStatus(ctx context.Context, id string, req service.StatusRequest) (service.View, error)
	ScheduleVisit(ctx context.Context, req service.ScheduleVisitRequest) (service.View, error)
	RescheduleVisit(ctx context.Context, id string, req service.RescheduleVisitRequest) (service.View, error)
	ChangeVisitStatus(ctx context.Context, id string, req service.StatusRequest) (service.View, error)
}

type MessageProcessor interface {
	ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error
}

type Processor struct {
	svc CommandService
}

func NewProcessor(svc CommandService) *Processor {
	return &Processor{svc: svc}
}

// ProcessMessage decodes one queue message and runs its command
func (p *Processor) ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	var msg CommandMessage
	if err := json.Unmarshal(message.Body, &msg); err != nil {
		return errs.NewValidationError("malformed message: %v", err)
	}

	log.Info().
		Str("messageID", message.MessageID).
		Str("commandType", msg.CommandType).
		Msg("Processing message")

	view, err := p.route(ctx, msg)
	if err != nil {
		return err
	}

	log.Info().
		Str("messageID", message.MessageID).
		Str("aggregateID", view.ID.String()).
		Str("state", view.State).
		Msg("Command accepted")
	return nil
}

func (p *Processor) route(ctx context.Context, msg CommandMessage) (service.View, error) {
	switch msg.CommandType {
	// Study commands
	case CreateStudy:
		var req service.CreateStudyRequest
		if err := decode(msg, &req); err != nil {
			return service.View{}, err
		}
		return p.svc.CreateStudy(ctx, req)

	case UpdateStudy:
		var req struct {
			target
			service.UpdateStudyRequest
		}
		if err := decode(msg, &req); err != nil {
			return service.View{}, err
		}
		return p.svc.UpdateStudy(ctx, req.ID, req.UpdateStudyRequest)

	case ChangeStudyStatus:
		id, req, err := decodeStatus(msg)
		if err != nil {
			return service.View{}, err
		}
		return p.svc.ChangeStudyStatus(ctx, id, req)

	// Patient commands
	case RegisterPatient:
		var req service.RegisterPatientRequest
		if err := decode(msg, &req); err != nil {
			return service.View{}, err
		}
		return p.svc.RegisterPatient(ctx, req)

	case UpdatePatient:
		var req struct {
			target
			service.UpdatePatientRequest
		}
		if err := decode(msg, &req); err != nil {
			return service.View{}, err
		}
		return p.svc.UpdatePatient(ctx, req.ID, req.UpdatePatientRequest)

	case ChangePatientStatus:
		id, req, err := decodeStatus(msg)
		if err != nil {
			return service.View{}, err
		}
		return p.svc.ChangePatientStatus(ctx, id, req)

	// Protocol version commands
	case CreateProtocolVersion:
		var req service.CreateProtocolVersionRequest
		if err := decode(msg, &req); err != nil {
			return service.View{}, err
		}
		return p.svc.CreateProtocolVersion(ctx, req)

	case UpdateProtocolVersion:
		var req struct {
			target
			service.UpdateProtocolVersionRequest
		}
		if err := decode(msg, &req); err != nil {
			return service.View{}, err
		}
		return p.svc.UpdateProtocolVersion(ctx, req.ID, req.UpdateProtocolVersionRequest)

	case ChangeProtocolVersionStatus:
		id, req, err := decodeStatus(msg)
		if err != nil {
			return service.View{}, err
		}
		return p.svc.ChangeProtocolVersionStatus(ctx, id, req)

	// Visit commands
	case ScheduleVisit:
		var req service.ScheduleVisitRequest
		if err := decode(msg, &req); err != nil {
			return service.View{}, err
		}
		return p.svc.ScheduleVisit(ctx, req)

	case RescheduleVisit:
		var req struct {
			target
			service.RescheduleVisitRequest
		}
		if err := decode(msg, &req); err != nil {
			return service.View{}, err
		}
		return p.svc.RescheduleVisit(ctx, req.ID, req.RescheduleVisitRequest)

	case ChangeVisitStatus:
		id, req, err := decodeStatus(msg)
		if err != nil {
			return service.View{}, err
		}
		return p.svc.ChangeVisitStatus(ctx, id, req)

	default:
		return service.View{}, errs.NewValidationError("unsupported command type %q", msg.CommandType)
	}
}

func decode(msg CommandMessage, v interface{}) error {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return errs.NewValidationError("malformed %s data: %v", msg.CommandType, err)
	}
	return nil
}

func decodeStatus(msg CommandMessage) (string, service.StatusRequest, error) {
	var req struct {
		target
		service.StatusRequest
	}
	if err := decode(msg, &req); err != nil {
		return "", service.StatusRequest{}, err
	}
	return req.ID, req.StatusRequest, nil
}

// Permanent reports whether redelivering the message could never succeed
func Permanent(err error) bool {
	switch errs.Code(err) {
	case "VALIDATION", "ILLEGAL_TRANSITION", "CONFLICT", "ALREADY_EXISTS", "NOT_FOUND":
		return true
	default:
		return false
	}
}
