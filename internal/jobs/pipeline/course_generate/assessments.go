package course_generate

import (
	"fmt"
	"strings"

	"github.com/courseforge/courseforge-backend/internal/generation/parse"
	"github.com/courseforge/courseforge-backend/internal/generation/prompts"
	"github.com/courseforge/courseforge-backend/internal/types"
)

func (p *Pipeline) stageAssessments(st *runState) error {
	p.progress(st, "assessments", 70, "Designing assessments")

	vars := map[string]string{
		"title":             st.config.Title,
		"level":             st.config.Level,
		"objectives":        bulletList(st.config.Objectives),
		"session_summaries": p.sessionSummaries(st),
	}

	obj, err := p.completeStage(st.ctx, st, prompts.StageAssessments, vars, p.tuning.MaxAssessmentTokens)
	if err != nil {
		return err
	}
	set, err := parse.DecodeAssessmentSet(obj)
	if err != nil {
		return err
	}
	st.set = set
	return p.persistAssessments(st)
}

func (p *Pipeline) sessionSummaries(st *runState) string {
	var b strings.Builder
	for i, detail := range st.details {
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, detail.Title, strings.Join(detail.Topics, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// persistAssessments writes one row per (kind, position). Quiz positions
// follow their order in the response; redelivery overwrites in place.
func (p *Pipeline) persistAssessments(st *runState) error {
	rows := make([]*types.Assessment, 0, len(st.set.Quizzes)+len(st.set.Assignments)+1)

	for i, quiz := range st.set.Quizzes {
		rows = append(rows, &types.Assessment{
			CourseID: st.courseID,
			Kind:     types.AssessmentKindQuiz,
			Position: i + 1,
			Title:    quiz.Title,
			Payload:  mustJSON(quiz),
		})
	}
	for i, a := range st.set.Assignments {
		rows = append(rows, &types.Assessment{
			CourseID:    st.courseID,
			Kind:        types.AssessmentKindAssignment,
			Position:    i + 1,
			Title:       a.Title,
			Description: a.Description,
			Payload:     mustJSON(a),
		})
	}
	if st.set.FinalExam != nil {
		rows = append(rows, &types.Assessment{
			CourseID:    st.courseID,
			Kind:        types.AssessmentKindFinalExam,
			Position:    1,
			Title:       st.set.FinalExam.Title,
			Description: st.set.FinalExam.Description,
			Payload:     mustJSON(st.set.FinalExam),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := p.assessmentRepo.UpsertByKindPosition(p.dbc(st), rows); err != nil {
		return fmt.Errorf("persist assessments: %w", err)
	}
	return nil
}
