package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/pkg/dbctx"
	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/repos"
	"github.com/courseforge/courseforge-backend/internal/types"
)

var (
	ErrCourseNotFound = errors.New("course not found")
	ErrJobNotFound    = errors.New("generation job not found")
	// ErrResultNotReady means the latest generation job for the course has not
	// completed; callers get the job status instead of partial content.
	ErrResultNotReady = errors.New("generation result not ready")
)

// GenerationResult is the finished course bundle returned once the latest job
// completed.
type GenerationResult struct {
	Course      *types.Course          `json:"course"`
	Sessions    []*types.CourseSession `json:"sessions"`
	Assessments []*types.Assessment    `json:"assessments"`
	Job         *types.GenerationJob   `json:"job"`
}

type CourseGenerationService interface {
	// Enqueue records a pending course_generate job and returns immediately;
	// a worker picks it up on its next tick. If the course already has a
	// pending or processing job, that job is returned instead of a duplicate.
	Enqueue(ctx context.Context, userID, courseID uuid.UUID) (*types.GenerationJob, error)
	// Regenerate enqueues a course_regenerate job over an existing course.
	Regenerate(ctx context.Context, userID, courseID uuid.UUID) (*types.GenerationJob, error)
	// Analyze enqueues a content_analyze job that only scores the course's
	// source resources; no completion calls are made.
	Analyze(ctx context.Context, userID, courseID uuid.UUID) (*types.GenerationJob, error)
	GetJob(ctx context.Context, userID, jobID uuid.UUID) (*types.GenerationJob, error)
	GetResult(ctx context.Context, userID, courseID uuid.UUID) (*GenerationResult, error)
}

type courseGenerationService struct {
	db  *gorm.DB
	log *logger.Logger

	courseRepo     repos.CourseRepo
	sessionRepo    repos.CourseSessionRepo
	assessmentRepo repos.AssessmentRepo
	jobRepo        repos.GenerationJobRepo

	notify JobNotifier
}

func NewCourseGenerationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courseRepo repos.CourseRepo,
	sessionRepo repos.CourseSessionRepo,
	assessmentRepo repos.AssessmentRepo,
	jobRepo repos.GenerationJobRepo,
	notify JobNotifier,
) CourseGenerationService {
	return &courseGenerationService{
		db:             db,
		log:            baseLog.With("service", "CourseGenerationService"),
		courseRepo:     courseRepo,
		sessionRepo:    sessionRepo,
		assessmentRepo: assessmentRepo,
		jobRepo:        jobRepo,
		notify:         notify,
	}
}

func (s *courseGenerationService) Enqueue(ctx context.Context, userID, courseID uuid.UUID) (*types.GenerationJob, error) {
	return s.enqueue(ctx, userID, courseID, types.JobTypeCourseGenerate)
}

func (s *courseGenerationService) Regenerate(ctx context.Context, userID, courseID uuid.UUID) (*types.GenerationJob, error) {
	return s.enqueue(ctx, userID, courseID, types.JobTypeCourseRegenerate)
}

func (s *courseGenerationService) Analyze(ctx context.Context, userID, courseID uuid.UUID) (*types.GenerationJob, error) {
	return s.enqueue(ctx, userID, courseID, types.JobTypeContentAnalyze)
}

func (s *courseGenerationService) enqueue(ctx context.Context, userID, courseID uuid.UUID, jobType string) (*types.GenerationJob, error) {
	course, err := s.loadOwnedCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	var job *types.GenerationJob
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		existing, err := s.jobRepo.GetLatestByCourse(dbc, courseID, jobType)
		if err != nil {
			return fmt.Errorf("check existing job: %w", err)
		}
		if existing != nil && !types.IsTerminalJobStatus(existing.Status) {
			job = existing
			return nil
		}

		now := time.Now()
		job = &types.GenerationJob{
			ID:        uuid.New(),
			UserID:    userID,
			CourseID:  course.ID,
			JobType:   jobType,
			Status:    types.JobStatusPending,
			Metadata:  datatypes.JSON(fmt.Sprintf(`{"course_id":"%s"}`, course.ID)),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := s.jobRepo.Create(dbc, []*types.GenerationJob{job}); err != nil {
			return fmt.Errorf("create generation job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notify != nil {
		s.notify.JobCreated(userID, job)
	}
	s.log.Info("Generation job enqueued", "job_id", job.ID, "course_id", courseID, "job_type", jobType)
	return job, nil
}

func (s *courseGenerationService) GetJob(ctx context.Context, userID, jobID uuid.UUID) (*types.GenerationJob, error) {
	if jobID == uuid.Nil {
		return nil, ErrJobNotFound
	}
	jobs, err := s.jobRepo.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{jobID})
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 || jobs[0] == nil || jobs[0].UserID != userID {
		return nil, ErrJobNotFound
	}
	return jobs[0], nil
}

func (s *courseGenerationService) GetResult(ctx context.Context, userID, courseID uuid.UUID) (*GenerationResult, error) {
	course, err := s.loadOwnedCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	dbc := dbctx.Context{Ctx: ctx}
	job, err := s.jobRepo.GetLatestByCourse(dbc, courseID, "")
	if err != nil {
		return nil, err
	}
	if job == nil || job.Status != types.JobStatusCompleted {
		return nil, ErrResultNotReady
	}

	sessions, err := s.sessionRepo.GetByCourseID(dbc, courseID)
	if err != nil {
		return nil, err
	}
	assessments, err := s.assessmentRepo.GetByCourseID(dbc, courseID)
	if err != nil {
		return nil, err
	}
	return &GenerationResult{
		Course:      course,
		Sessions:    sessions,
		Assessments: assessments,
		Job:         job,
	}, nil
}

func (s *courseGenerationService) loadOwnedCourse(ctx context.Context, userID, courseID uuid.UUID) (*types.Course, error) {
	if courseID == uuid.Nil {
		return nil, ErrCourseNotFound
	}
	courses, err := s.courseRepo.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{courseID})
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 || courses[0] == nil || courses[0].UserID != userID {
		return nil, ErrCourseNotFound
	}
	return courses[0], nil
}
