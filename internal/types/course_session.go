package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CourseSession is one generated session of a course. Rows are upserted keyed
// on (course_id, position) so a redelivered job never duplicates sessions.
type CourseSession struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_course_session_position" json:"course_id"`
	Position        int            `gorm:"column:position;not null;uniqueIndex:idx_course_session_position" json:"position"`
	Title           string         `gorm:"column:title;not null" json:"title"`
	Topics          datatypes.JSON `gorm:"type:jsonb;column:topics" json:"topics"`
	Objectives      datatypes.JSON `gorm:"type:jsonb;column:objectives" json:"objectives"`
	DurationMinutes int            `gorm:"column:duration_minutes;not null;default:0" json:"duration_minutes"`
	Overview        string         `gorm:"column:overview" json:"overview"`
	Activities      datatypes.JSON `gorm:"type:jsonb;column:activities" json:"activities"`
	Materials       datatypes.JSON `gorm:"type:jsonb;column:materials" json:"materials"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CourseSession) TableName() string { return "course_session" }
