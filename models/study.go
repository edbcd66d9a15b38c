package models

// Study represents a study row
type Study struct {
	ReadModel
	Name           string `json:"name"`
	ProtocolNumber string `gorm:"index" json:"protocol_number"`
	Sponsor        string `json:"sponsor"`
	Phase          string `json:"phase"`
	StudyType      string `json:"study_type"`
	Description    string `json:"description"`
}

// ProtocolVersion represents a protocol version row
type ProtocolVersion struct {
	ReadModel
	StudyID                    uint    `gorm:"index" json:"study_id"`
	StudyUUID                  *string `gorm:"index" json:"study_uuid"`
	VersionNumber              string  `json:"version_number"`
	AmendmentType              string  `json:"amendment_type"`
	Description                string  `json:"description"`
	ChangesSummary             string  `json:"changes_summary"`
	RequiresRegulatoryApproval bool    `json:"requires_regulatory_approval"`
}
