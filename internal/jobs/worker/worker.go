package worker

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/jobs/runtime"
	"github.com/courseforge/courseforge-backend/internal/pkg/dbctx"
	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/repos"
	"github.com/courseforge/courseforge-backend/internal/services"
)

// Policy controls claim eligibility and pacing for the worker pool.
// MaxAttempts caps stale-heartbeat redeliveries: a reclaimed job whose
// attempt budget is spent is failed instead of re-run.
type Policy struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	StaleRunning time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.Concurrency < 1 {
		p.Concurrency = 4
	}
	if p.PollInterval <= 0 {
		p.PollInterval = 1 * time.Second
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 3
	}
	if p.StaleRunning <= 0 {
		p.StaleRunning = 30 * time.Minute
	}
	return p
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.GenerationJobRepo
	registry *runtime.Registry
	notify   services.JobNotifier
	policy   Policy
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.GenerationJobRepo, registry *runtime.Registry, notify services.JobNotifier, policy Policy) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		policy:   policy.withDefaults(),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.policy.Concurrency)
	for i := 0; i < w.policy.Concurrency; i++ {
		go w.runLoop(ctx, i+1)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.policy.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.policy.StaleRunning)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}

			jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)

			if job.Attempts > w.policy.MaxAttempts {
				w.log.Warn("Attempt budget exhausted",
					"worker_id", workerID,
					"job_id", job.ID,
					"attempts", job.Attempts,
				)
				jc.Fail("attempts", &attemptsExhaustedError{Attempts: job.Attempts, Max: w.policy.MaxAttempts})
				continue
			}

			h, ok := w.registry.Get(job.JobType)
			if !ok {
				w.log.Warn("No handler registered for job_type",
					"worker_id", workerID,
					"job_type", job.JobType,
					"job_id", job.ID,
				)
				jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
				continue
			}

			func() {
				defer func() {
					if r := recover(); r != nil {
						w.log.Error("Job handler panic",
							"worker_id", workerID,
							"job_id", job.ID,
							"job_type", job.JobType,
							"panic", r,
						)
						jc.Fail("panic", errFromRecover(r))
					}
				}()

				if runErr := h.Run(jc); runErr != nil {
					// Pipelines normally call jc.Fail themselves; safety net.
					jc.Fail("run", runErr)
				}
			}()
		}
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string {
	return "no handler registered for job_type=" + e.JobType
}

type attemptsExhaustedError struct {
	Attempts int
	Max      int
}

func (e *attemptsExhaustedError) Error() string {
	return fmt.Sprintf("attempt budget exhausted: attempt %d exceeds max %d", e.Attempts, e.Max)
}

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
