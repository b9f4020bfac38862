// Package content_analyze is the handler behind the content_analyze job
// type: it scores a course's source resources and reports the quality
// distribution without making any completion calls.
package content_analyze

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/generation/quality"
	"github.com/courseforge/courseforge-backend/internal/jobs/runtime"
	"github.com/courseforge/courseforge-backend/internal/pkg/dbctx"
	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/repos"
	"github.com/courseforge/courseforge-backend/internal/types"
)

type Pipeline struct {
	log          *logger.Logger
	resourceRepo repos.SourceResourceRepo
	minScore     int
}

func NewPipeline(baseLog *logger.Logger, resourceRepo repos.SourceResourceRepo, minScore int) *Pipeline {
	return &Pipeline{
		log:          baseLog.With("job", "content_analyze"),
		resourceRepo: resourceRepo,
		minScore:     minScore,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeContentAnalyze }

func (p *Pipeline) Run(jobContext *runtime.Context) error {
	if jobContext == nil || jobContext.Job == nil {
		return nil
	}
	courseID := jobContext.Job.CourseID
	if courseID == uuid.Nil {
		if id, ok := jobContext.PayloadUUID("course_id"); ok {
			courseID = id
		}
	}
	if courseID == uuid.Nil {
		jobContext.Fail("validate", fmt.Errorf("missing course_id"))
		return nil
	}

	jobContext.Progress("analyze", 50, "Scoring source resources")

	resources, err := p.resourceRepo.GetByCourseID(dbctx.Context{Ctx: jobContext.Ctx}, courseID)
	if err != nil {
		jobContext.Fail("analyze", fmt.Errorf("load resources: %w", err))
		return nil
	}

	// Insufficient content is a finding here, not a failure: the job's whole
	// purpose is to tell the caller whether generation would be viable.
	dist := quality.Distribute(resources)
	eligible, filterErr := quality.FilterEligible(resources, p.minScore)
	p.log.Info("Content analysis finished",
		"course_id", courseID,
		"total", dist.Total,
		"eligible", len(eligible),
	)
	jobContext.Succeed("done", map[string]any{
		"course_id":         courseID,
		"distribution":      dist,
		"eligible":          len(eligible),
		"min_quality_score": p.minScore,
		"sufficient":        filterErr == nil,
	})
	return nil
}
