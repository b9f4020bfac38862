package repos_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/pkg/dbctx"
	"github.com/courseforge/courseforge-backend/internal/repos"
	"github.com/courseforge/courseforge-backend/internal/repos/testutil"
	"github.com/courseforge/courseforge-backend/internal/types"
)

func newJob(courseID uuid.UUID, status string) *types.GenerationJob {
	return &types.GenerationJob{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		CourseID: courseID,
		JobType:  types.JobTypeCourseGenerate,
		Status:   status,
	}
}

func TestClaimNextRunnablePicksPendingOldestFirst(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := repos.NewGenerationJobRepo(db, log)
	dbc := dbctx.Context{Ctx: context.Background()}
	courseID := uuid.New()

	first := newJob(courseID, types.JobStatusPending)
	if _, err := repo.Create(dbc, []*types.GenerationJob{first}); err != nil {
		t.Fatalf("create: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	second := newJob(courseID, types.JobStatusPending)
	if _, err := repo.Create(dbc, []*types.GenerationJob{second}); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(dbc, time.Hour)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest pending job claimed")
	}
	if claimed.Status != types.JobStatusProcessing {
		t.Fatalf("claimed status = %s", claimed.Status)
	}
	if claimed.Attempts != 1 {
		t.Fatalf("claimed attempts = %d", claimed.Attempts)
	}
}

func TestClaimNextRunnableNeverReclaimsFailed(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := repos.NewGenerationJobRepo(db, log)
	dbc := dbctx.Context{Ctx: context.Background()}

	// A job that failed on its first attempt, well past any delay a retry
	// policy could impose. Failed is absorbing: it must stay failed.
	job := newJob(uuid.New(), types.JobStatusFailed)
	job.Attempts = 1
	errAt := time.Now().Add(-time.Hour)
	job.LastErrorAt = &errAt
	if _, err := repo.Create(dbc, []*types.GenerationJob{job}); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(dbc, time.Hour)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("failed job reclaimed: %+v", claimed)
	}

	got, err := repo.GetByIDs(dbc, []uuid.UUID{job.ID})
	if err != nil || len(got) != 1 {
		t.Fatalf("reload: %v", err)
	}
	if got[0].Status != types.JobStatusFailed || got[0].Attempts != 1 {
		t.Fatalf("failed job mutated: status=%s attempts=%d", got[0].Status, got[0].Attempts)
	}
}

func TestClaimNextRunnableReclaimsStaleProcessing(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := repos.NewGenerationJobRepo(db, log)
	dbc := dbctx.Context{Ctx: context.Background()}

	job := newJob(uuid.New(), types.JobStatusProcessing)
	stale := time.Now().Add(-2 * time.Hour)
	job.HeartbeatAt = &stale
	job.LockedAt = &stale
	if _, err := repo.Create(dbc, []*types.GenerationJob{job}); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(dbc, time.Hour)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("stale processing job should be reclaimed")
	}
}

func TestUpdateFieldsUnlessStatusGuardsTerminal(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := repos.NewGenerationJobRepo(db, log)
	dbc := dbctx.Context{Ctx: context.Background()}

	job := newJob(uuid.New(), types.JobStatusCompleted)
	if _, err := repo.Create(dbc, []*types.GenerationJob{job}); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, job.ID,
		[]string{types.JobStatusCompleted, types.JobStatusFailed},
		map[string]interface{}{"progress": 50})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if ok {
		t.Fatalf("terminal job must reject late writes")
	}

	got, err := repo.GetByIDs(dbc, []uuid.UUID{job.ID})
	if err != nil || len(got) != 1 {
		t.Fatalf("reload: %v", err)
	}
	if got[0].Progress != 0 {
		t.Fatalf("progress overwritten on terminal job: %d", got[0].Progress)
	}
}

func TestHeartbeatOnlyWhileProcessing(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := repos.NewGenerationJobRepo(db, log)
	dbc := dbctx.Context{Ctx: context.Background()}

	job := newJob(uuid.New(), types.JobStatusPending)
	if _, err := repo.Create(dbc, []*types.GenerationJob{job}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Heartbeat(dbc, job.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	got, _ := repo.GetByIDs(dbc, []uuid.UUID{job.ID})
	if got[0].HeartbeatAt != nil {
		t.Fatalf("heartbeat must not touch non-processing jobs")
	}
}
