package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AssessmentKindQuiz       = "quiz"
	AssessmentKindAssignment = "assignment"
	AssessmentKindFinalExam  = "final_exam"
)

// Assessment rows are upserted keyed on (course_id, kind, position) for the
// same redelivery reason as CourseSession.
type Assessment struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_assessment_course_kind_position" json:"course_id"`
	Kind        string         `gorm:"column:kind;not null;uniqueIndex:idx_assessment_course_kind_position" json:"kind"`
	Position    int            `gorm:"column:position;not null;uniqueIndex:idx_assessment_course_kind_position" json:"position"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Description string         `gorm:"column:description" json:"description"`
	Payload     datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Assessment) TableName() string { return "assessment" }
