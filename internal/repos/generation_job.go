package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/courseforge/courseforge-backend/internal/pkg/dbctx"
	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/types"
)

type GenerationJobRepo interface {
	Create(dbc dbctx.Context, jobs []*types.GenerationJob) ([]*types.GenerationJob, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.GenerationJob, error)
	GetLatestByCourse(dbc dbctx.Context, courseID uuid.UUID, jobType string) (*types.GenerationJob, error)
	ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*types.GenerationJob, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
}

type generationJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGenerationJobRepo(db *gorm.DB, baseLog *logger.Logger) GenerationJobRepo {
	return &generationJobRepo{
		db:  db,
		log: baseLog.With("repo", "GenerationJobRepo"),
	}
}

func (r *generationJobRepo) Create(dbc dbctx.Context, jobs []*types.GenerationJob) ([]*types.GenerationJob, error) {
	if len(jobs) == 0 {
		return []*types.GenerationJob{}, nil
	}
	if err := dbc.Conn(r.db).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *generationJobRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.GenerationJob, error) {
	var out []*types.GenerationJob
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *generationJobRepo) GetLatestByCourse(dbc dbctx.Context, courseID uuid.UUID, jobType string) (*types.GenerationJob, error) {
	if courseID == uuid.Nil {
		return nil, nil
	}
	q := dbc.Conn(r.db).Where("course_id = ?", courseID)
	if jobType != "" {
		q = q.Where("job_type = ?", jobType)
	}
	var job types.GenerationJob
	err := q.Order("created_at DESC").Limit(1).Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

// ClaimNextRunnable picks the oldest runnable job and marks it processing in
// one transaction, using SKIP LOCKED so concurrent workers never claim the
// same row. Runnable means: pending, or processing with a heartbeat older
// than staleRunning (a worker died mid-run). Completed and failed rows are
// never touched; those statuses are absorbing.
func (r *generationJobRepo) ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*types.GenerationJob, error) {
	now := time.Now()
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.GenerationJob
	err := dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		var job types.GenerationJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          status = ?
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, types.JobStatusPending, types.JobStatusProcessing, staleCutoff).
			Order("created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.GenerationJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.JobStatusProcessing,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = types.JobStatusProcessing
		job.Attempts++
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *generationJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now()
	return dbc.Conn(r.db).
		Model(&types.GenerationJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateFieldsUnlessStatus applies updates only when the row's current status
// is not in disallowedStatuses. Returns false when the guard rejected the
// write, which is how terminal statuses stay absorbing.
func (r *generationJobRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now()
	q := dbc.Conn(r.db).
		Model(&types.GenerationJob{}).
		Where("id = ?", id)
	if len(disallowedStatuses) > 0 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *generationJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return dbc.Conn(r.db).
		Model(&types.GenerationJob{}).
		Where("id = ? AND status = ?", id, types.JobStatusProcessing).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}
