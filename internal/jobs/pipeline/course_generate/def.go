package course_generate

import (
	"time"

	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/clients/llm"
	"github.com/courseforge/courseforge-backend/internal/generation/assemble"
	"github.com/courseforge/courseforge-backend/internal/generation/prompts"
	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/repos"
)

// Tuning bounds the pipeline's fan-out and quality gates.
type Tuning struct {
	// MinQualityScore gates source resources before any completion call.
	MinQualityScore int
	// SessionFanout is the number of session-detail calls in flight at once.
	SessionFanout int
	// InterBatchDelay spaces consecutive session-detail batches.
	InterBatchDelay time.Duration

	MaxOutlineTokens    int
	MaxSessionTokens    int
	MaxAssessmentTokens int
	Temperature         float64
}

func (t Tuning) withDefaults() Tuning {
	if t.MinQualityScore <= 0 {
		t.MinQualityScore = 70
	}
	if t.SessionFanout <= 0 {
		t.SessionFanout = 3
	}
	if t.InterBatchDelay < 0 {
		t.InterBatchDelay = 0
	}
	if t.MaxOutlineTokens <= 0 {
		t.MaxOutlineTokens = 2000
	}
	if t.MaxSessionTokens <= 0 {
		t.MaxSessionTokens = 1500
	}
	if t.MaxAssessmentTokens <= 0 {
		t.MaxAssessmentTokens = 2500
	}
	if t.Temperature <= 0 {
		t.Temperature = 0.7
	}
	return t
}

type Pipeline struct {
	db             *gorm.DB
	log            *logger.Logger
	courseRepo     repos.CourseRepo
	sessionRepo    repos.CourseSessionRepo
	assessmentRepo repos.AssessmentRepo
	resourceRepo   repos.SourceResourceRepo
	ai             llm.Client
	prompts        *prompts.Registry
	assembler      *assemble.Assembler
	tuning         Tuning
}

func NewPipeline(
	db *gorm.DB,
	baseLog *logger.Logger,
	courseRepo repos.CourseRepo,
	sessionRepo repos.CourseSessionRepo,
	assessmentRepo repos.AssessmentRepo,
	resourceRepo repos.SourceResourceRepo,
	ai llm.Client,
	registry *prompts.Registry,
	assembler *assemble.Assembler,
	tuning Tuning,
) *Pipeline {
	return &Pipeline{
		db:             db,
		log:            baseLog.With("job", "course_generate"),
		courseRepo:     courseRepo,
		sessionRepo:    sessionRepo,
		assessmentRepo: assessmentRepo,
		resourceRepo:   resourceRepo,
		ai:             ai,
		prompts:        registry,
		assembler:      assembler,
		tuning:         tuning.withDefaults(),
	}
}

// Regenerate runs the same stages over a course that already has generated
// content; the upsert-by-position writes overwrite in place.
type Regenerate struct {
	*Pipeline
}

func (Regenerate) Type() string { return "course_regenerate" }
