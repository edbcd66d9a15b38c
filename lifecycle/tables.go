package lifecycle

// Study statuses
const (
	StudyPlanning       Status = "PLANNING"
	StudyProtocolReview Status = "PROTOCOL_REVIEW"
	StudyApproved       Status = "APPROVED"
	StudyActive         Status = "ACTIVE"
	StudySuspended      Status = "SUSPENDED"
	StudyCompleted      Status = "COMPLETED"
	StudyTerminated     Status = "TERMINATED"
	StudyWithdrawn      Status = "WITHDRAWN"
)

// Patient statuses
const (
	PatientRegistered Status = "REGISTERED"
	PatientScreening  Status = "SCREENING"
	PatientEnrolled   Status = "ENROLLED"
	PatientActive     Status = "ACTIVE"
	PatientCompleted  Status = "COMPLETED"
	PatientWithdrawn  Status = "WITHDRAWN"
)

// Protocol version statuses
const (
	VersionDraft           Status = "DRAFT"
	VersionUnderReview     Status = "UNDER_REVIEW"
	VersionSubmitted       Status = "SUBMITTED"
	VersionAmendmentReview Status = "AMENDMENT_REVIEW"
	VersionApproved        Status = "APPROVED"
	VersionActive          Status = "ACTIVE"
	VersionSuperseded      Status = "SUPERSEDED"
	VersionWithdrawn       Status = "WITHDRAWN"
)

// Visit statuses
const (
	VisitScheduled  Status = "SCHEDULED"
	VisitInProgress Status = "IN_PROGRESS"
	VisitMissed     Status = "MISSED"
	VisitCompleted  Status = "COMPLETED"
	VisitCancelled  Status = "CANCELLED"
)

// StudyDefinition has no universal escape: WITHDRAWN is only reachable before
// the study goes live, TERMINATED only afterwards.
func StudyDefinition() Definition {
	return Definition{
		Entity:  EntityStudy,
		Initial: StudyPlanning,
		Statuses: []Status{
			StudyPlanning, StudyProtocolReview, StudyApproved, StudyActive,
			StudySuspended, StudyCompleted, StudyTerminated, StudyWithdrawn,
		},
		Transitions: map[Status][]Status{
			StudyPlanning:       {StudyProtocolReview, StudyWithdrawn},
			StudyProtocolReview: {StudyPlanning, StudyApproved, StudyWithdrawn},
			StudyApproved:       {StudyActive, StudyWithdrawn},
			StudyActive:         {StudySuspended, StudyCompleted, StudyTerminated},
			StudySuspended:      {StudyActive, StudyTerminated},
		},
		Terminal: []Status{StudyCompleted, StudyTerminated, StudyWithdrawn},
	}
}

func PatientDefinition() Definition {
	return Definition{
		Entity:  EntityPatient,
		Initial: PatientRegistered,
		Statuses: []Status{
			PatientRegistered, PatientScreening, PatientEnrolled,
			PatientActive, PatientCompleted, PatientWithdrawn,
		},
		Transitions: map[Status][]Status{
			PatientRegistered: {PatientScreening},
			PatientScreening:  {PatientEnrolled},
			PatientEnrolled:   {PatientActive},
			PatientActive:     {PatientCompleted},
		},
		Terminal: []Status{PatientCompleted, PatientWithdrawn},
		Escape:   PatientWithdrawn,
	}
}

func ProtocolVersionDefinition() Definition {
	return Definition{
		Entity:  EntityProtocolVersion,
		Initial: VersionDraft,
		Statuses: []Status{
			VersionDraft, VersionUnderReview, VersionSubmitted, VersionAmendmentReview,
			VersionApproved, VersionActive, VersionSuperseded, VersionWithdrawn,
		},
		Transitions: map[Status][]Status{
			VersionDraft:           {VersionUnderReview, VersionAmendmentReview},
			VersionUnderReview:     {VersionDraft, VersionSubmitted, VersionApproved},
			VersionSubmitted:       {VersionUnderReview, VersionApproved},
			VersionAmendmentReview: {VersionDraft, VersionApproved},
			VersionApproved:        {VersionActive},
			VersionActive:          {VersionSuperseded},
		},
		Terminal: []Status{VersionSuperseded, VersionWithdrawn},
		Escape:   VersionWithdrawn,
	}
}

func VisitDefinition() Definition {
	return Definition{
		Entity:  EntityVisit,
		Initial: VisitScheduled,
		Statuses: []Status{
			VisitScheduled, VisitInProgress, VisitMissed, VisitCompleted, VisitCancelled,
		},
		Transitions: map[Status][]Status{
			VisitScheduled:  {VisitInProgress, VisitMissed},
			VisitInProgress: {VisitCompleted},
			VisitMissed:     {VisitScheduled},
		},
		Terminal: []Status{VisitCompleted, VisitCancelled},
		Escape:   VisitCancelled,
	}
}

// DefaultRegistry builds the registry for all four entity families. Build it
// once at start-up and pass it to whoever needs it.
func DefaultRegistry() (*Registry, error) {
	var machines []*Machine
	for _, def := range []Definition{
		StudyDefinition(),
		PatientDefinition(),
		ProtocolVersionDefinition(),
		VisitDefinition(),
	} {
		m, err := NewMachine(def)
		if err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	return NewRegistry(machines...)
}
