// Package course_generate is the multi-stage generation pipeline behind the
// course_generate job type: quality gate, outline, per-session detail,
// assessments, coherence validation, publish.
package course_generate

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/generation/assemble"
	"github.com/courseforge/courseforge-backend/internal/generation/parse"
	"github.com/courseforge/courseforge-backend/internal/jobs/runtime"
	"github.com/courseforge/courseforge-backend/internal/pkg/dbctx"
	"github.com/courseforge/courseforge-backend/internal/types"
)

type runState struct {
	jobCtx   *runtime.Context
	ctx      context.Context
	userID   uuid.UUID
	courseID uuid.UUID
	course   *types.Course
	config   types.CourseConfig
	eligible []*types.SourceResource
	baseCtx  *assemble.GenerationContext
	outline  *parse.Outline
	details  []*parse.SessionDetail
	set      *parse.AssessmentSet
	warnings []string

	// progress must never move backward; the UI bar depends on it.
	lastProgress int
}

func (p *Pipeline) Type() string { return types.JobTypeCourseGenerate }

func (p *Pipeline) Run(jobContext *runtime.Context) error {
	if jobContext == nil || jobContext.Job == nil {
		return nil
	}
	st := &runState{
		jobCtx:   jobContext,
		ctx:      jobContext.Ctx,
		userID:   jobContext.Job.UserID,
		courseID: jobContext.Job.CourseID,
	}
	if st.courseID == uuid.Nil {
		if id, ok := jobContext.PayloadUUID("course_id"); ok {
			st.courseID = id
		}
	}
	if st.courseID == uuid.Nil {
		p.fail(st, "validate", fmt.Errorf("missing course_id"))
		return nil
	}

	// Quality gate runs before any completion call; a course with no usable
	// source material must not spend tokens.
	if err := p.stageAnalyze(st); err != nil {
		p.fail(st, "analyze", err)
		return nil
	}

	if err := p.stageLoadCourse(st); err != nil {
		p.fail(st, "load", err)
		return nil
	}

	if err := p.stageAssemble(st); err != nil {
		p.fail(st, "context", err)
		return nil
	}

	if err := p.stageOutline(st); err != nil {
		p.fail(st, "outline", err)
		return nil
	}

	if err := p.stageSessions(st); err != nil {
		p.fail(st, "sessions", err)
		return nil
	}

	if err := p.stageAssessments(st); err != nil {
		p.fail(st, "assessments", err)
		return nil
	}

	if err := p.stageValidate(st); err != nil {
		p.fail(st, "validate", err)
		return nil
	}

	if err := p.stagePublish(st); err != nil {
		p.fail(st, "publish", err)
		return nil
	}

	usage := p.ai.Usage()
	jobContext.Succeed("done", map[string]any{
		"course_id":   st.courseID.String(),
		"sessions":    len(st.details),
		"quizzes":     len(st.set.Quizzes),
		"assignments": len(st.set.Assignments),
		"warnings":    st.warnings,
		"usage": map[string]any{
			"calls":             usage.Calls,
			"cache_hits":        usage.CacheHits,
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"estimated_cost":    usage.EstimatedCostUSD,
		},
	})
	return nil
}

func (p *Pipeline) progress(st *runState, stage string, pct int, msg string) {
	if st == nil || st.jobCtx == nil {
		return
	}
	if pct < st.lastProgress {
		pct = st.lastProgress
	} else {
		st.lastProgress = pct
	}
	st.jobCtx.Progress(stage, pct, msg)
}

func (p *Pipeline) fail(st *runState, stage string, err error) {
	if st == nil || st.jobCtx == nil {
		return
	}
	p.log.Error("Course generation failed", "course_id", st.courseID, "stage", stage, "error", err)
	st.jobCtx.Fail(stage, err)
}

func (p *Pipeline) dbc(st *runState) dbctx.Context {
	return dbctx.Context{Ctx: st.ctx}
}
