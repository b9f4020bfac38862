package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ResourceStatusUploaded   = "uploaded"
	ResourceStatusProcessing = "processing"
	ResourceStatusProcessed  = "processed"
	ResourceStatusFailed     = "failed"
)

// SourceResource is a unit of uploaded course material. It is created and
// scored by the upload/ingestion subsystem; the generation pipeline only
// reads it.
type SourceResource struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_id"`
	OriginalName  string         `gorm:"column:original_name" json:"original_name"`
	ExtractedText string         `gorm:"column:extracted_text" json:"extracted_text"`
	QualityScore  int            `gorm:"column:quality_score;not null;default:0" json:"quality_score"`
	QualityReport datatypes.JSON `gorm:"type:jsonb;column:quality_report" json:"quality_report"`
	Status        string         `gorm:"column:status;not null;index" json:"status"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SourceResource) TableName() string { return "source_resource" }

type QualityReport struct {
	WordCount        int      `json:"word_count"`
	ReadabilityScore float64  `json:"readability_score"`
	ReadabilityLevel string   `json:"readability_level"`
	KeyPhrases       []string `json:"key_phrases"`
	Errors           []string `json:"errors"`
}

func (r *SourceResource) Report() QualityReport {
	var rep QualityReport
	if len(r.QualityReport) > 0 {
		_ = json.Unmarshal(r.QualityReport, &rep)
	}
	return rep
}
