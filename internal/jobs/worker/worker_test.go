package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/jobs/runtime"
	"github.com/courseforge/courseforge-backend/internal/pkg/dbctx"
	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/types"
)

type fakeJobRepo struct {
	mu      sync.Mutex
	claims  []*types.GenerationJob
	updates []map[string]interface{}
	failed  chan struct{}
}

func newFakeJobRepo(claims ...*types.GenerationJob) *fakeJobRepo {
	return &fakeJobRepo{claims: claims, failed: make(chan struct{}, 1)}
}

func (r *fakeJobRepo) Create(_ dbctx.Context, jobs []*types.GenerationJob) ([]*types.GenerationJob, error) {
	return jobs, nil
}

func (r *fakeJobRepo) GetByIDs(dbctx.Context, []uuid.UUID) ([]*types.GenerationJob, error) {
	return nil, nil
}

func (r *fakeJobRepo) GetLatestByCourse(dbctx.Context, uuid.UUID, string) (*types.GenerationJob, error) {
	return nil, nil
}

func (r *fakeJobRepo) ClaimNextRunnable(dbctx.Context, time.Duration) (*types.GenerationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.claims) == 0 {
		return nil, nil
	}
	job := r.claims[0]
	r.claims = r.claims[1:]
	return job, nil
}

func (r *fakeJobRepo) UpdateFields(dbctx.Context, uuid.UUID, map[string]interface{}) error {
	return nil
}

func (r *fakeJobRepo) UpdateFieldsUnlessStatus(_ dbctx.Context, _ uuid.UUID, _ []string, updates map[string]interface{}) (bool, error) {
	r.mu.Lock()
	r.updates = append(r.updates, updates)
	r.mu.Unlock()
	if updates["status"] == types.JobStatusFailed {
		select {
		case r.failed <- struct{}{}:
		default:
		}
	}
	return true, nil
}

func (r *fakeJobRepo) Heartbeat(dbctx.Context, uuid.UUID) error { return nil }

func (r *fakeJobRepo) lastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.updates) - 1; i >= 0; i-- {
		if msg, ok := r.updates[i]["error"].(string); ok && msg != "" {
			return msg
		}
	}
	return ""
}

type recordingHandler struct {
	jobType string
	run     func(*runtime.Context) error
	mu      sync.Mutex
	calls   int
}

func (h *recordingHandler) Type() string { return h.jobType }

func (h *recordingHandler) Run(jc *runtime.Context) error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if h.run != nil {
		return h.run(jc)
	}
	return nil
}

func (h *recordingHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func testWorker(t *testing.T, repo *fakeJobRepo, h *recordingHandler, policy Policy) *Worker {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	registry := runtime.NewRegistry()
	if h != nil {
		if err := registry.Register(h); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	return NewWorker(nil, log, repo, registry, nil, policy)
}

func processingJob(attempts int) *types.GenerationJob {
	return &types.GenerationJob{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		CourseID: uuid.New(),
		JobType:  types.JobTypeCourseGenerate,
		Status:   types.JobStatusProcessing,
		Attempts: attempts,
	}
}

func waitFailed(t *testing.T, repo *fakeJobRepo) {
	t.Helper()
	select {
	case <-repo.failed:
	case <-time.After(2 * time.Second):
		t.Fatalf("job was not failed")
	}
}

func TestExhaustedAttemptsFailWithoutRunningHandler(t *testing.T) {
	job := processingJob(4)
	repo := newFakeJobRepo(job)
	h := &recordingHandler{jobType: types.JobTypeCourseGenerate}
	w := testWorker(t, repo, h, Policy{Concurrency: 1, PollInterval: 5 * time.Millisecond, MaxAttempts: 3})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	waitFailed(t, repo)
	if h.callCount() != 0 {
		t.Fatalf("handler ran %d times for an exhausted job", h.callCount())
	}
	if msg := repo.lastError(); !strings.Contains(msg, "attempt budget exhausted") {
		t.Fatalf("persisted error = %q", msg)
	}
}

func TestHandlerWithinBudgetRunsOnce(t *testing.T) {
	job := processingJob(1)
	repo := newFakeJobRepo(job)
	done := make(chan struct{})
	h := &recordingHandler{
		jobType: types.JobTypeCourseGenerate,
		run: func(jc *runtime.Context) error {
			defer close(done)
			jc.Succeed("done", nil)
			return nil
		},
	}
	w := testWorker(t, repo, h, Policy{Concurrency: 1, PollInterval: 5 * time.Millisecond, MaxAttempts: 3})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never ran")
	}
	if h.callCount() != 1 {
		t.Fatalf("handler ran %d times", h.callCount())
	}
}

func TestHandlerErrorFailsJob(t *testing.T) {
	job := processingJob(1)
	repo := newFakeJobRepo(job)
	h := &recordingHandler{
		jobType: types.JobTypeCourseGenerate,
		run: func(*runtime.Context) error {
			return errors.New("stage blew up")
		},
	}
	w := testWorker(t, repo, h, Policy{Concurrency: 1, PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	waitFailed(t, repo)
	if msg := repo.lastError(); !strings.Contains(msg, "stage blew up") {
		t.Fatalf("persisted error = %q", msg)
	}
}

func TestPanicMessageCarriesValue(t *testing.T) {
	job := processingJob(1)
	repo := newFakeJobRepo(job)
	h := &recordingHandler{
		jobType: types.JobTypeCourseGenerate,
		run: func(*runtime.Context) error {
			panic("index out of range in outline expansion")
		},
	}
	w := testWorker(t, repo, h, Policy{Concurrency: 1, PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	waitFailed(t, repo)
	msg := repo.lastError()
	if !strings.Contains(msg, "index out of range in outline expansion") {
		t.Fatalf("panic value lost from persisted error: %q", msg)
	}
}

func TestMissingHandlerFailsAtDispatch(t *testing.T) {
	job := processingJob(1)
	job.JobType = "unknown_type"
	repo := newFakeJobRepo(job)
	w := testWorker(t, repo, nil, Policy{Concurrency: 1, PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	waitFailed(t, repo)
	if msg := repo.lastError(); !strings.Contains(msg, "no handler registered") {
		t.Fatalf("persisted error = %q", msg)
	}
}
