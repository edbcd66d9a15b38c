package service

// Study requests

type CreateStudyRequest struct {
	Name           string `json:"name"`
	ProtocolNumber string `json:"protocol_number"`
	Sponsor        string `json:"sponsor"`
	Phase          string `json:"phase"`
	StudyType      string `json:"study_type"`
	Description    string `json:"description"`
	Actor          string `json:"actor"`
}

type UpdateStudyRequest struct {
	Name        string `json:"name"`
	Sponsor     string `json:"sponsor"`
	Phase       string `json:"phase"`
	Description string `json:"description"`
	Actor       string `json:"actor"`
}

// StatusRequest asks for a lifecycle transition of any family. Notes are
// only kept for patients.
type StatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
	Actor  string `json:"actor"`
}

// Patient requests

type RegisterPatientRequest struct {
	StudyID       string `json:"study_id" validate:"identity"`
	PatientNumber string `json:"patient_number"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	DateOfBirth   string `json:"date_of_birth"`
	Gender        string `json:"gender"`
	Email         string `json:"email"`
	Actor         string `json:"actor"`
}

type UpdatePatientRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	Email       string `json:"email"`
	Actor       string `json:"actor"`
}

// Protocol version requests

type CreateProtocolVersionRequest struct {
	StudyID                    string `json:"study_id" validate:"identity"`
	VersionNumber              string `json:"version_number"`
	AmendmentType              string `json:"amendment_type"`
	Description                string `json:"description"`
	ChangesSummary             string `json:"changes_summary"`
	RequiresRegulatoryApproval bool   `json:"requires_regulatory_approval"`
	Actor                      string `json:"actor"`
}

type UpdateProtocolVersionRequest struct {
	Description    string `json:"description"`
	ChangesSummary string `json:"changes_summary"`
	Actor          string `json:"actor"`
}

// Visit requests

type ScheduleVisitRequest struct {
	PatientID     string `json:"patient_id" validate:"identity"`
	VisitName     string `json:"visit_name"`
	ScheduledDate string `json:"scheduled_date"`
	Actor         string `json:"actor"`
}

type RescheduleVisitRequest struct {
	ScheduledDate string `json:"scheduled_date"`
	Actor         string `json:"actor"`
}
