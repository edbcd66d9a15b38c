package domain

import (
	"encoding/json"
	"fmt"
)

// DecodeEventData turns a stored payload back into its typed variant.
func DecodeEventData(eventType string, raw []byte) (EventData, error) {
	var data EventData

	switch eventType {
	// Study events
	case StudyCreated:
		data = &StudyCreatedEvent{}
	case StudyDetailsUpdated:
		data = &StudyDetailsUpdatedEvent{}
	case StudyStatusChanged:
		data = &StudyStatusChangedEvent{}

	// Patient events
	case PatientRegistered:
		data = &PatientRegisteredEvent{}
	case PatientDetailsUpdated:
		data = &PatientDetailsUpdatedEvent{}
	case PatientStatusChanged:
		data = &PatientStatusChangedEvent{}

	// Protocol version events
	case ProtocolVersionCreated:
		data = &ProtocolVersionCreatedEvent{}
	case ProtocolVersionUpdated:
		data = &ProtocolVersionUpdatedEvent{}
	case ProtocolVersionStatusChanged:
		data = &ProtocolVersionStatusChangedEvent{}

	// Visit events
	case VisitScheduled:
		data = &VisitScheduledEvent{}
	case VisitRescheduled:
		data = &VisitRescheduledEvent{}
	case VisitStatusChanged:
		data = &VisitStatusChangedEvent{}

	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event data: %w", eventType, err)
	}

	return deref(data), nil
}

// deref hands out value payloads so type switches only need value cases.
func deref(data EventData) EventData {
	switch e := data.(type) {
	case *StudyCreatedEvent:
		return *e
	case *StudyDetailsUpdatedEvent:
		return *e
	case *StudyStatusChangedEvent:
		return *e
	case *PatientRegisteredEvent:
		return *e
	case *PatientDetailsUpdatedEvent:
		return *e
	case *PatientStatusChangedEvent:
		return *e
	case *ProtocolVersionCreatedEvent:
		return *e
	case *ProtocolVersionUpdatedEvent:
		return *e
	case *ProtocolVersionStatusChangedEvent:
		return *e
	case *VisitScheduledEvent:
		return *e
	case *VisitRescheduledEvent:
		return *e
	case *VisitStatusChangedEvent:
		return *e
	}
	return data
}
