package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/courseforge/courseforge-backend/internal/pkg/dbctx"
	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/types"
)

type AssessmentRepo interface {
	UpsertByKindPosition(dbc dbctx.Context, assessments []*types.Assessment) error
	GetByCourseID(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Assessment, error)
}

type assessmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssessmentRepo(db *gorm.DB, baseLog *logger.Logger) AssessmentRepo {
	return &assessmentRepo{
		db:  db,
		log: baseLog.With("repo", "AssessmentRepo"),
	}
}

func (r *assessmentRepo) UpsertByKindPosition(dbc dbctx.Context, assessments []*types.Assessment) error {
	if len(assessments) == 0 {
		return nil
	}
	now := time.Now()
	for _, a := range assessments {
		if a == nil {
			continue
		}
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		a.UpdatedAt = now
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "course_id"}, {Name: "kind"}, {Name: "position"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "description", "payload", "updated_at",
			}),
		}).
		Create(&assessments).Error
}

func (r *assessmentRepo) GetByCourseID(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Assessment, error) {
	var out []*types.Assessment
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("course_id = ?", courseID).
		Order("kind ASC, position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
