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

type CourseSessionRepo interface {
	UpsertByPosition(dbc dbctx.Context, sessions []*types.CourseSession) error
	GetByCourseID(dbc dbctx.Context, courseID uuid.UUID) ([]*types.CourseSession, error)
	DeleteBeyondPosition(dbc dbctx.Context, courseID uuid.UUID, maxPosition int) error
}

type courseSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseSessionRepo(db *gorm.DB, baseLog *logger.Logger) CourseSessionRepo {
	return &courseSessionRepo{
		db:  db,
		log: baseLog.With("repo", "CourseSessionRepo"),
	}
}

// UpsertByPosition writes sessions keyed on (course_id, position). A rerun of
// the session stage overwrites the same rows instead of inserting duplicates.
func (r *courseSessionRepo) UpsertByPosition(dbc dbctx.Context, sessions []*types.CourseSession) error {
	if len(sessions) == 0 {
		return nil
	}
	now := time.Now()
	for _, s := range sessions {
		if s == nil {
			continue
		}
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		s.UpdatedAt = now
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "course_id"}, {Name: "position"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "topics", "objectives", "duration_minutes",
				"overview", "activities", "materials", "updated_at",
			}),
		}).
		Create(&sessions).Error
}

func (r *courseSessionRepo) GetByCourseID(dbc dbctx.Context, courseID uuid.UUID) ([]*types.CourseSession, error) {
	var out []*types.CourseSession
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("course_id = ?", courseID).
		Order("position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteBeyondPosition removes stale rows when a regeneration produced a
// shorter outline than a previous run.
func (r *courseSessionRepo) DeleteBeyondPosition(dbc dbctx.Context, courseID uuid.UUID, maxPosition int) error {
	if courseID == uuid.Nil {
		return nil
	}
	return dbc.Conn(r.db).
		Where("course_id = ? AND position > ?", courseID, maxPosition).
		Delete(&types.CourseSession{}).Error
}
