package course_generate

import (
	"fmt"
	"strings"

	"github.com/courseforge/courseforge-backend/internal/types"
)

// stageValidate runs the coherence checks over the generated content. The
// structural check (every outline stub has a persisted detail) is fatal;
// everything else records a warning on the job result so a reviewer can
// decide whether the course needs another pass.
func (p *Pipeline) stageValidate(st *runState) error {
	p.progress(st, "validate", 85, "Validating course coherence")

	if len(st.details) != len(st.outline.Sessions) {
		return fmt.Errorf("structural mismatch: %d outline sessions but %d details", len(st.outline.Sessions), len(st.details))
	}

	if covered, total := p.objectiveCoverage(st); total > 0 {
		if covered*100 < total*70 {
			st.warn("only %d of %d course objectives are covered by session content", covered, total)
		}
	}

	if len(st.details) < 3 {
		st.warn("course has only %d sessions", len(st.details))
	}

	for i, detail := range st.details {
		if len(detail.Activities) == 0 {
			st.warn("session %d has no activities", i+1)
		}
		if len(detail.Objectives) == 0 {
			st.warn("session %d has no objectives", i+1)
		}
	}

	if len(st.set.Quizzes) == 0 {
		st.warn("no quizzes were generated")
	}
	if st.set.FinalExam == nil {
		st.warn("no final exam was generated")
	}

	for _, w := range st.warnings {
		p.log.Warn("Coherence warning", "course_id", st.courseID, "warning", w)
	}
	return nil
}

// objectiveCoverage counts course objectives mentioned by at least one
// session's objectives or topics. Matching is case-insensitive substring in
// both directions; good enough to flag a session plan that plainly ignores
// the stated goals.
func (p *Pipeline) objectiveCoverage(st *runState) (covered, total int) {
	total = len(st.config.Objectives)
	for _, obj := range st.config.Objectives {
		needle := strings.ToLower(strings.TrimSpace(obj))
		if needle == "" {
			total--
			continue
		}
		if p.mentioned(st, needle) {
			covered++
		}
	}
	return covered, total
}

func (p *Pipeline) mentioned(st *runState, needle string) bool {
	for _, detail := range st.details {
		for _, s := range detail.Objectives {
			if overlaps(strings.ToLower(s), needle) {
				return true
			}
		}
		for _, s := range detail.Topics {
			if overlaps(strings.ToLower(s), needle) {
				return true
			}
		}
	}
	return false
}

func overlaps(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func (st *runState) warn(format string, args ...any) {
	st.warnings = append(st.warnings, fmt.Sprintf(format, args...))
}

func (p *Pipeline) stagePublish(st *runState) error {
	if err := p.courseRepo.UpdateFields(p.dbc(st), st.courseID, map[string]interface{}{
		"status": types.CourseStatusPublished,
	}); err != nil {
		return fmt.Errorf("publish course: %w", err)
	}
	return nil
}
