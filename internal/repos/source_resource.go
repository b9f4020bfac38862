package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/pkg/dbctx"
	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/types"
)

type SourceResourceRepo interface {
	Create(dbc dbctx.Context, resources []*types.SourceResource) ([]*types.SourceResource, error)
	GetByCourseID(dbc dbctx.Context, courseID uuid.UUID) ([]*types.SourceResource, error)
	GetProcessedByCourseID(dbc dbctx.Context, courseID uuid.UUID) ([]*types.SourceResource, error)
}

type sourceResourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceResourceRepo(db *gorm.DB, baseLog *logger.Logger) SourceResourceRepo {
	return &sourceResourceRepo{
		db:  db,
		log: baseLog.With("repo", "SourceResourceRepo"),
	}
}

func (r *sourceResourceRepo) Create(dbc dbctx.Context, resources []*types.SourceResource) ([]*types.SourceResource, error) {
	if len(resources) == 0 {
		return []*types.SourceResource{}, nil
	}
	if err := dbc.Conn(r.db).Create(&resources).Error; err != nil {
		return nil, err
	}
	return resources, nil
}

func (r *sourceResourceRepo) GetByCourseID(dbc dbctx.Context, courseID uuid.UUID) ([]*types.SourceResource, error) {
	var out []*types.SourceResource
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("course_id = ?", courseID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sourceResourceRepo) GetProcessedByCourseID(dbc dbctx.Context, courseID uuid.UUID) ([]*types.SourceResource, error) {
	var out []*types.SourceResource
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("course_id = ? AND status = ?", courseID, types.ResourceStatusProcessed).
		Order("quality_score DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
