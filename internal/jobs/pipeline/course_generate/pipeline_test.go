package course_generate

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/courseforge/courseforge-backend/internal/clients/llm"
	"github.com/courseforge/courseforge-backend/internal/generation/assemble"
	"github.com/courseforge/courseforge-backend/internal/generation/prompts"
	"github.com/courseforge/courseforge-backend/internal/jobs/runtime"
	"github.com/courseforge/courseforge-backend/internal/pkg/dbctx"
	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/types"
)

// ---- fakes ----

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*types.GenerationJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[uuid.UUID]*types.GenerationJob{}}
}

func (r *fakeJobRepo) track(job *types.GenerationJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
}

func (r *fakeJobRepo) Create(_ dbctx.Context, jobs []*types.GenerationJob) ([]*types.GenerationJob, error) {
	for _, j := range jobs {
		r.track(j)
	}
	return jobs, nil
}

func (r *fakeJobRepo) GetByIDs(dbctx.Context, []uuid.UUID) ([]*types.GenerationJob, error) {
	return nil, nil
}

func (r *fakeJobRepo) GetLatestByCourse(dbctx.Context, uuid.UUID, string) (*types.GenerationJob, error) {
	return nil, nil
}

func (r *fakeJobRepo) ClaimNextRunnable(dbctx.Context, time.Duration) (*types.GenerationJob, error) {
	return nil, nil
}

func (r *fakeJobRepo) UpdateFields(dbctx.Context, uuid.UUID, map[string]interface{}) error {
	return nil
}

func (r *fakeJobRepo) UpdateFieldsUnlessStatus(_ dbctx.Context, id uuid.UUID, disallowed []string, _ map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false, nil
	}
	for _, s := range disallowed {
		if job.Status == s {
			return false, nil
		}
	}
	return true, nil
}

func (r *fakeJobRepo) Heartbeat(dbctx.Context, uuid.UUID) error { return nil }

type fakeCourseRepo struct {
	mu     sync.Mutex
	course *types.Course
}

func (r *fakeCourseRepo) Create(_ dbctx.Context, c []*types.Course) ([]*types.Course, error) {
	return c, nil
}

func (r *fakeCourseRepo) GetByIDs(_ dbctx.Context, ids []uuid.UUID) ([]*types.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.course == nil {
		return nil, nil
	}
	for _, id := range ids {
		if id == r.course.ID {
			return []*types.Course{r.course}, nil
		}
	}
	return nil, nil
}

func (r *fakeCourseRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.course != nil && r.course.ID == id {
		if s, ok := updates["status"].(string); ok {
			r.course.Status = s
		}
	}
	return nil
}

type fakeSessionRepo struct {
	mu   sync.Mutex
	rows map[int]*types.CourseSession
	// upserts counts individual row writes across calls.
	upserts int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{rows: map[int]*types.CourseSession{}}
}

func (r *fakeSessionRepo) UpsertByPosition(_ dbctx.Context, sessions []*types.CourseSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range sessions {
		r.rows[s.Position] = s
		r.upserts++
	}
	return nil
}

func (r *fakeSessionRepo) GetByCourseID(dbctx.Context, uuid.UUID) ([]*types.CourseSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.CourseSession, 0, len(r.rows))
	for _, s := range r.rows {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *fakeSessionRepo) DeleteBeyondPosition(_ dbctx.Context, _ uuid.UUID, maxPosition int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for pos := range r.rows {
		if pos > maxPosition {
			delete(r.rows, pos)
		}
	}
	return nil
}

type fakeAssessmentRepo struct {
	mu   sync.Mutex
	rows map[string]*types.Assessment
}

func newFakeAssessmentRepo() *fakeAssessmentRepo {
	return &fakeAssessmentRepo{rows: map[string]*types.Assessment{}}
}

func (r *fakeAssessmentRepo) UpsertByKindPosition(_ dbctx.Context, assessments []*types.Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range assessments {
		r.rows[a.Kind+"/"+string(rune('0'+a.Position))] = a
	}
	return nil
}

func (r *fakeAssessmentRepo) GetByCourseID(dbctx.Context, uuid.UUID) ([]*types.Assessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Assessment, 0, len(r.rows))
	for _, a := range r.rows {
		out = append(out, a)
	}
	return out, nil
}

type fakeResourceRepo struct {
	resources []*types.SourceResource
}

func (r *fakeResourceRepo) Create(_ dbctx.Context, rs []*types.SourceResource) ([]*types.SourceResource, error) {
	return rs, nil
}

func (r *fakeResourceRepo) GetByCourseID(dbctx.Context, uuid.UUID) ([]*types.SourceResource, error) {
	return r.resources, nil
}

func (r *fakeResourceRepo) GetProcessedByCourseID(dbctx.Context, uuid.UUID) ([]*types.SourceResource, error) {
	return r.resources, nil
}

// fakeLLM serves scripted responses per stage, FIFO. Errors are served
// before responses.
type fakeLLM struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string][]error
	calls     []string
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		responses: map[string][]string{},
		errs:      map[string][]error{},
	}
}

func (f *fakeLLM) script(stage, response string) {
	f.responses[stage] = append(f.responses[stage], response)
}

func (f *fakeLLM) scriptErr(stage string, err error) {
	f.errs[stage] = append(f.errs[stage], err)
}

func (f *fakeLLM) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Stage)
	if errs := f.errs[req.Stage]; len(errs) > 0 {
		f.errs[req.Stage] = errs[1:]
		return "", errs[0]
	}
	queue := f.responses[req.Stage]
	if len(queue) == 0 {
		return "", errors.New("no scripted response for stage " + req.Stage)
	}
	f.responses[req.Stage] = queue[1:]
	return queue[0], nil
}

func (f *fakeLLM) Usage() llm.Usage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return llm.Usage{Calls: len(f.calls)}
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type progressEvent struct {
	stage string
	pct   int
}

type fakeNotifier struct {
	mu       sync.Mutex
	progress []progressEvent
	failed   bool
	done     bool
}

func (n *fakeNotifier) JobCreated(uuid.UUID, *types.GenerationJob) {}

func (n *fakeNotifier) JobProgress(_ uuid.UUID, _ *types.GenerationJob, stage string, pct int, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, progressEvent{stage: stage, pct: pct})
}

func (n *fakeNotifier) JobFailed(uuid.UUID, *types.GenerationJob, string, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = true
}

func (n *fakeNotifier) JobDone(uuid.UUID, *types.GenerationJob) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.done = true
}

// ---- fixtures ----

const outlineJSON = `{
  "title": "Intro to Databases",
  "description": "Relational fundamentals",
  "sessions": [
    {"title": "Relational Model", "topics": ["tables", "keys"], "objectives": ["understand normalization"], "duration_minutes": 60},
    {"title": "Indexing", "topics": ["b-trees"], "objectives": ["apply indexing"], "duration_minutes": 60},
    {"title": "Transactions", "topics": ["acid"], "objectives": ["reason about transactions"], "duration_minutes": 90}
  ]
}`

func detailJSON(title string) string {
	b, _ := json.Marshal(map[string]any{
		"title":            title,
		"overview":         "Deep dive into " + title,
		"topics":           []string{"core concepts"},
		"objectives":       []string{"master " + title},
		"duration_minutes": 60,
		"activities": []map[string]any{
			{"kind": "exercise", "title": title + " lab", "description": "hands-on", "duration_minutes": 20},
		},
		"materials": []string{"slides"},
	})
	return string(b)
}

const assessmentsJSON = `{
  "quizzes": [
    {"session_position": 1, "title": "Quiz 1", "questions": [{"prompt": "What is a key?", "options": ["a", "b"], "answer_index": 1, "explanation": ""}]}
  ],
  "assignments": [
    {"title": "Schema design", "description": "Design a schema", "deliverables": ["er diagram"]}
  ],
  "final_exam": {"title": "Final", "description": "Everything", "duration_minutes": 90, "passing_score": 70}
}`

type harness struct {
	pipe     *Pipeline
	jobRepo  *fakeJobRepo
	courses  *fakeCourseRepo
	sessions *fakeSessionRepo
	assess   *fakeAssessmentRepo
	ai       *fakeLLM
	notify   *fakeNotifier
	job      *types.GenerationJob
	course   *types.Course
}

func newHarness(t *testing.T, scores ...int) *harness {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	courseID := uuid.New()
	userID := uuid.New()
	objectives, _ := json.Marshal([]string{"understand normalization", "apply indexing", "reason about transactions"})
	course := &types.Course{
		ID:         courseID,
		UserID:     userID,
		Title:      "Intro to Databases",
		Level:      "beginner",
		Objectives: datatypes.JSON(objectives),
		Status:     types.CourseStatusDraft,
	}

	resources := make([]*types.SourceResource, 0, len(scores))
	for _, s := range scores {
		resources = append(resources, &types.SourceResource{
			ID:           uuid.New(),
			CourseID:     courseID,
			Status:       types.ResourceStatusProcessed,
			QualityScore: s,
		})
	}

	h := &harness{
		jobRepo:  newFakeJobRepo(),
		courses:  &fakeCourseRepo{course: course},
		sessions: newFakeSessionRepo(),
		assess:   newFakeAssessmentRepo(),
		ai:       newFakeLLM(),
		notify:   &fakeNotifier{},
		course:   course,
	}

	registry, err := prompts.NewRegistry("")
	if err != nil {
		t.Fatalf("prompts: %v", err)
	}
	assembler := assemble.New(log, nil, assemble.Options{})

	h.pipe = NewPipeline(
		nil, log,
		h.courses, h.sessions, h.assess,
		&fakeResourceRepo{resources: resources},
		h.ai, registry, assembler,
		Tuning{MinQualityScore: 70, SessionFanout: 3},
	)

	h.job = &types.GenerationJob{
		ID:       uuid.New(),
		UserID:   userID,
		CourseID: courseID,
		JobType:  types.JobTypeCourseGenerate,
		Status:   types.JobStatusProcessing,
	}
	h.jobRepo.track(h.job)
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	jc := runtime.NewContext(context.Background(), nil, h.job, h.jobRepo, h.notify)
	if err := h.pipe.Run(jc); err != nil {
		t.Fatalf("pipeline returned error: %v", err)
	}
}

func (h *harness) scriptHappyPath() {
	h.ai.script(prompts.StageOutline, outlineJSON)
	h.ai.script(prompts.StageSessionDetail, detailJSON("Relational Model"))
	h.ai.script(prompts.StageSessionDetail, detailJSON("Indexing"))
	h.ai.script(prompts.StageSessionDetail, detailJSON("Transactions"))
	h.ai.script(prompts.StageAssessments, assessmentsJSON)
}

// ---- tests ----

func TestInsufficientContentFailsBeforeAnyCompletionCall(t *testing.T) {
	h := newHarness(t, 40, 55, 60, 65, 69)
	h.run(t)

	if h.job.Status != types.JobStatusFailed {
		t.Fatalf("expected failed, got %s", h.job.Status)
	}
	if h.job.Stage != "analyze" {
		t.Fatalf("expected failure at analyze, got %s", h.job.Stage)
	}
	if h.ai.callCount() != 0 {
		t.Fatalf("expected zero completion calls, got %d", h.ai.callCount())
	}
	if h.job.Error == "" {
		t.Fatalf("expected persisted error message")
	}
}

func TestHappyPathPublishesCourse(t *testing.T) {
	h := newHarness(t, 90, 75, 80)
	h.scriptHappyPath()
	h.run(t)

	if h.job.Status != types.JobStatusCompleted {
		t.Fatalf("expected completed, got %s (error=%s)", h.job.Status, h.job.Error)
	}
	if h.job.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", h.job.Progress)
	}
	if h.course.Status != types.CourseStatusPublished {
		t.Fatalf("expected published course, got %s", h.course.Status)
	}

	rows, _ := h.sessions.GetByCourseID(dbctx.Context{}, h.course.ID)
	if len(rows) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(rows))
	}
	for i, row := range rows {
		if row.Position != i+1 {
			t.Fatalf("positions not contiguous: %v", row.Position)
		}
	}

	assessments, _ := h.assess.GetByCourseID(dbctx.Context{}, h.course.ID)
	kinds := map[string]int{}
	for _, a := range assessments {
		kinds[a.Kind]++
	}
	if kinds[types.AssessmentKindQuiz] != 1 || kinds[types.AssessmentKindFinalExam] != 1 {
		t.Fatalf("unexpected assessment kinds: %v", kinds)
	}
	for _, a := range assessments {
		if a.Kind != types.AssessmentKindQuiz {
			continue
		}
		var quiz struct {
			Questions []struct {
				AnswerIndex int `json:"answer_index"`
			} `json:"questions"`
		}
		if err := json.Unmarshal(a.Payload, &quiz); err != nil {
			t.Fatalf("quiz payload not JSON: %v", err)
		}
		if len(quiz.Questions) != 1 || quiz.Questions[0].AnswerIndex != 1 {
			t.Fatalf("correct answer lost in persisted quiz: %+v", quiz)
		}
	}

	var result map[string]any
	if err := json.Unmarshal(h.job.Result, &result); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if result["sessions"].(float64) != 3 {
		t.Fatalf("result sessions = %v", result["sessions"])
	}
}

func TestProgressCheckpointsAreMonotonic(t *testing.T) {
	h := newHarness(t, 90)
	h.scriptHappyPath()
	h.run(t)

	last := -1
	seen := map[int]bool{}
	for _, evt := range h.notify.progress {
		if evt.pct < last {
			t.Fatalf("progress moved backward: %d after %d", evt.pct, last)
		}
		last = evt.pct
		seen[evt.pct] = true
	}
	for _, pct := range []int{5, 15, 25, 40, 70, 85} {
		if !seen[pct] {
			t.Fatalf("missing checkpoint %d in %v", pct, h.notify.progress)
		}
	}
	if !h.notify.done {
		t.Fatalf("expected done notification")
	}
}

func TestPermanentCompletionErrorFailsWithoutStageRetry(t *testing.T) {
	h := newHarness(t, 90)
	authErr := errors.New("completion http 401: invalid api key")
	h.ai.scriptErr(prompts.StageOutline, authErr)
	h.run(t)

	if h.job.Status != types.JobStatusFailed {
		t.Fatalf("expected failed, got %s", h.job.Status)
	}
	if h.ai.callCount() != 1 {
		t.Fatalf("expected exactly 1 call, got %d", h.ai.callCount())
	}
	if h.job.Error != "completion http 401: invalid api key" {
		t.Fatalf("error not persisted verbatim: %q", h.job.Error)
	}
}

func TestUnparseableOutlineRetriedOnceWholeStage(t *testing.T) {
	h := newHarness(t, 90)
	h.ai.script(prompts.StageOutline, "I'd be happy to help! Here are some thoughts with no JSON at all.")
	h.ai.script(prompts.StageOutline, outlineJSON)
	h.ai.script(prompts.StageSessionDetail, detailJSON("Relational Model"))
	h.ai.script(prompts.StageSessionDetail, detailJSON("Indexing"))
	h.ai.script(prompts.StageSessionDetail, detailJSON("Transactions"))
	h.ai.script(prompts.StageAssessments, assessmentsJSON)
	h.run(t)

	if h.job.Status != types.JobStatusCompleted {
		t.Fatalf("expected completed after retry, got %s (error=%s)", h.job.Status, h.job.Error)
	}
	outlineCalls := 0
	for _, stage := range h.ai.calls {
		if stage == prompts.StageOutline {
			outlineCalls++
		}
	}
	if outlineCalls != 2 {
		t.Fatalf("expected 2 outline calls, got %d", outlineCalls)
	}
}

func TestUnparseableTwiceFailsStage(t *testing.T) {
	h := newHarness(t, 90)
	h.ai.script(prompts.StageOutline, "not json")
	h.ai.script(prompts.StageOutline, "still not json")
	h.run(t)

	if h.job.Status != types.JobStatusFailed {
		t.Fatalf("expected failed, got %s", h.job.Status)
	}
	if h.job.Stage != "outline" {
		t.Fatalf("expected failure at outline, got %s", h.job.Stage)
	}
}

func TestRedeliveryOverwritesInPlace(t *testing.T) {
	h := newHarness(t, 90)
	h.scriptHappyPath()
	h.run(t)

	// A second delivery of the same job reruns every stage; session and
	// assessment rows are keyed upserts, so counts stay stable.
	h.job.Status = types.JobStatusProcessing
	h.scriptHappyPath()
	h.run(t)

	rows, _ := h.sessions.GetByCourseID(dbctx.Context{}, h.course.ID)
	if len(rows) != 3 {
		t.Fatalf("expected 3 sessions after redelivery, got %d", len(rows))
	}
	if h.sessions.upserts != 6 {
		t.Fatalf("expected 6 row writes total, got %d", h.sessions.upserts)
	}
	assessments, _ := h.assess.GetByCourseID(dbctx.Context{}, h.course.ID)
	if len(assessments) != 3 {
		t.Fatalf("expected 3 assessments after redelivery, got %d", len(assessments))
	}
}

func TestShrinkingOutlineTrimsStaleSessions(t *testing.T) {
	h := newHarness(t, 90)
	h.scriptHappyPath()
	h.run(t)

	shrunk := `{"title": "Intro to Databases", "sessions": [
    {"title": "Everything At Once", "topics": ["all"], "objectives": ["understand normalization"], "duration_minutes": 120}
  ]}`
	h.job.Status = types.JobStatusProcessing
	h.ai.script(prompts.StageOutline, shrunk)
	h.ai.script(prompts.StageSessionDetail, detailJSON("Everything At Once"))
	h.ai.script(prompts.StageAssessments, assessmentsJSON)
	h.run(t)

	rows, _ := h.sessions.GetByCourseID(dbctx.Context{}, h.course.ID)
	if len(rows) != 1 {
		t.Fatalf("expected 1 session after shrink, got %d", len(rows))
	}
}
