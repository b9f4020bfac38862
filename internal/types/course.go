package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CourseStatusDraft      = "draft"
	CourseStatusGenerating = "generating"
	CourseStatusPublished  = "published"
)

type Course struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Title          string         `gorm:"column:title;not null" json:"title"`
	Description    string         `gorm:"column:description" json:"description"`
	Level          string         `gorm:"column:level" json:"level"`
	TargetAudience string         `gorm:"column:target_audience" json:"target_audience"`
	Duration       string         `gorm:"column:duration" json:"duration"`
	Objectives     datatypes.JSON `gorm:"type:jsonb;column:objectives" json:"objectives"`
	Prerequisites  datatypes.JSON `gorm:"type:jsonb;column:prerequisites" json:"prerequisites"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Course) TableName() string { return "course" }

// CourseConfig is the flattened configuration snapshot the generation pipeline
// reads. Objectives/prerequisites are decoded out of their JSONB columns.
type CourseConfig struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Level          string   `json:"level"`
	TargetAudience string   `json:"target_audience"`
	Duration       string   `json:"duration"`
	Objectives     []string `json:"objectives"`
	Prerequisites  []string `json:"prerequisites"`
}

func (c *Course) Config() CourseConfig {
	cfg := CourseConfig{
		Title:          c.Title,
		Description:    c.Description,
		Level:          c.Level,
		TargetAudience: c.TargetAudience,
		Duration:       c.Duration,
	}
	if len(c.Objectives) > 0 {
		_ = json.Unmarshal(c.Objectives, &cfg.Objectives)
	}
	if len(c.Prerequisites) > 0 {
		_ = json.Unmarshal(c.Prerequisites, &cfg.Prerequisites)
	}
	return cfg
}
