package course_generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/clients/llm"
	"github.com/courseforge/courseforge-backend/internal/generation/parse"
	"github.com/courseforge/courseforge-backend/internal/generation/quality"
	"github.com/courseforge/courseforge-backend/internal/types"
)

func (p *Pipeline) stageAnalyze(st *runState) error {
	p.progress(st, "analyze", 5, "Analyzing source material")

	resources, err := p.resourceRepo.GetByCourseID(p.dbc(st), st.courseID)
	if err != nil {
		return fmt.Errorf("load source resources: %w", err)
	}
	eligible, err := quality.FilterEligible(resources, p.tuning.MinQualityScore)
	if err != nil {
		return err
	}
	st.eligible = eligible
	return nil
}

func (p *Pipeline) stageLoadCourse(st *runState) error {
	courses, err := p.courseRepo.GetByIDs(p.dbc(st), []uuid.UUID{st.courseID})
	if err != nil {
		return fmt.Errorf("load course: %w", err)
	}
	if len(courses) == 0 {
		return fmt.Errorf("course %s not found", st.courseID)
	}
	st.course = courses[0]
	st.config = st.course.Config()

	if err := p.courseRepo.UpdateFields(p.dbc(st), st.courseID, map[string]interface{}{
		"status": types.CourseStatusGenerating,
	}); err != nil {
		return fmt.Errorf("mark course generating: %w", err)
	}
	return nil
}

func (p *Pipeline) stageAssemble(st *runState) error {
	p.progress(st, "context", 15, "Assembling generation context")
	st.baseCtx = p.assembler.BuildCourseContext(st.ctx, st.config, st.eligible)
	return nil
}

// completeStage renders the stage's templates, calls the completion service
// and parses the result. An unparseable response gets exactly one whole-stage
// retry with a corrective note appended to the user prompt; the changed prompt
// also keeps the retry from replaying the cached bad response.
func (p *Pipeline) completeStage(ctx context.Context, st *runState, stage string, vars map[string]string, maxTokens int) (map[string]any, error) {
	system, user, err := p.prompts.Render(stage, vars)
	if err != nil {
		return nil, err
	}
	obj, parseErr := p.completeOnce(ctx, stage, system, user, maxTokens)
	if parseErr == nil {
		return obj, nil
	}
	if !errors.Is(parseErr, parse.ErrUnparseableResponse) {
		return nil, parseErr
	}

	p.log.Warn("Unparseable stage output; retrying once", "stage", stage, "course_id", st.courseID)
	retryUser := user + "\n\nYour previous response was not valid JSON. Respond with a single valid JSON object and nothing else."
	obj, err = p.completeOnce(ctx, stage, system, retryUser, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("stage %s failed after retry: %w", stage, err)
	}
	return obj, nil
}

func (p *Pipeline) completeOnce(ctx context.Context, stage, system, user string, maxTokens int) (map[string]any, error) {
	raw, err := p.ai.Complete(ctx, llm.CompletionRequest{
		Stage:       stage,
		System:      system,
		User:        user,
		MaxTokens:   maxTokens,
		Temperature: p.tuning.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return parse.Parse(raw)
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "(none provided)"
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
