package course_generate

import (
	"fmt"
	"strings"

	"github.com/courseforge/courseforge-backend/internal/generation/parse"
	"github.com/courseforge/courseforge-backend/internal/generation/prompts"
)

func (p *Pipeline) stageOutline(st *runState) error {
	p.progress(st, "outline", 25, "Designing course outline")

	vars := map[string]string{
		"title":           st.config.Title,
		"description":     st.config.Description,
		"level":           st.config.Level,
		"target_audience": st.config.TargetAudience,
		"duration":        st.config.Duration,
		"objectives":      bulletList(st.config.Objectives),
		"quality_summary": p.qualitySummary(st),
		"excerpts":        st.baseCtx.SnippetDigest(0),
	}

	obj, err := p.completeStage(st.ctx, st, prompts.StageOutline, vars, p.tuning.MaxOutlineTokens)
	if err != nil {
		return err
	}
	outline, err := parse.DecodeOutline(obj)
	if err != nil {
		return err
	}
	if len(outline.Sessions) == 0 {
		return fmt.Errorf("outline contained no sessions")
	}
	st.outline = outline
	return nil
}

func (p *Pipeline) qualitySummary(st *runState) string {
	d := st.baseCtx.Quality
	return strings.TrimSpace(fmt.Sprintf(
		"%d resources (avg score %.0f): %d premium, %d recommended, %d acceptable",
		d.Total, d.AverageScore, d.Premium, d.Recommended, d.Acceptable,
	))
}
