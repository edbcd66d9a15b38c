package models

// Patient represents a patient row
type Patient struct {
	ReadModel
	StudyID       uint    `gorm:"index" json:"study_id"`
	StudyUUID     *string `gorm:"index" json:"study_uuid"`
	PatientNumber string  `gorm:"index" json:"patient_number"`
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	DateOfBirth   string  `json:"date_of_birth"`
	Gender        string  `json:"gender"`
	Email         string  `json:"email"`
}

// Visit represents a visit row
type Visit struct {
	ReadModel
	PatientID     uint    `gorm:"index" json:"patient_id"`
	PatientUUID   *string `gorm:"index" json:"patient_uuid"`
	StudyID       uint    `gorm:"index" json:"study_id"`
	StudyUUID     *string `gorm:"index" json:"study_uuid"`
	VisitName     string  `json:"visit_name"`
	ScheduledDate string  `json:"scheduled_date"`
}
