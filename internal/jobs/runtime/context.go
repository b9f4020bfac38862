package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/pkg/ctxutil"
	"github.com/courseforge/courseforge-backend/internal/pkg/dbctx"
	"github.com/courseforge/courseforge-backend/internal/repos"
	"github.com/courseforge/courseforge-backend/internal/services"
	"github.com/courseforge/courseforge-backend/internal/types"
)

// Context is the execution handle for a single claimed job. It owns the only
// sanctioned ways to report progress or terminate the run; pipelines never
// write generation_job rows directly. Terminal statuses are absorbing: every
// write goes through UpdateFieldsUnlessStatus so a job that has already
// completed or failed is never overwritten by a late writer.
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *types.GenerationJob
	Repo    repos.GenerationJobRepo
	Notify  services.JobNotifier
	payload map[string]any
}

// NewContext builds the execution handle for a claimed job. The payload JSON
// is decoded eagerly; a malformed payload yields an empty map and handlers
// fail on their own required-field checks.
func NewContext(ctx context.Context, db *gorm.DB, job *types.GenerationJob, repo repos.GenerationJobRepo, notify services.JobNotifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Metadata) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Metadata, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadUUID reads a payload field and parses it as a UUID; (uuid.Nil, false)
// when missing or malformed.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

var terminalStatuses = []string{types.JobStatusCompleted, types.JobStatusFailed}

// Progress persists a non-terminal checkpoint (stage, percent, message) plus a
// heartbeat, then emits a progress event. Rejected silently if the job has
// already reached a terminal status.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	ctx := ctxutil.Default(c.Ctx)
	now := time.Now()

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, terminalStatuses, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"message":      msg,
			"heartbeat_at": now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job.UserID, c.Job, stage, pct, msg)
	}
}

// Heartbeat refreshes heartbeat_at without touching stage or progress. Used by
// long stages so the stale-claim reclaimer leaves the job alone.
func (c *Context) Heartbeat() {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	_ = c.Repo.Heartbeat(dbctx.Context{Ctx: ctxutil.Default(c.Ctx)}, c.Job.ID)
}

// Fail marks the run terminally failed at the given stage and clears the
// claim lock. Failed is absorbing: the queue never reclaims the row, and a
// job already in a terminal status is left untouched with no event emitted.
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	ctx := ctxutil.Default(c.Ctx)
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, terminalStatuses, map[string]interface{}{
			"status":        types.JobStatusFailed,
			"stage":         stage,
			"message":       "",
			"error":         msg,
			"last_error_at": now,
			"failed_at":     now,
			"locked_at":     nil,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = types.JobStatusFailed
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.FailedAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job.UserID, c.Job, stage, msg)
	}
}

// Succeed marks the run completed at progress 100 and stores the serialized
// result payload.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	ctx := ctxutil.Default(c.Ctx)
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, terminalStatuses, map[string]interface{}{
			"status":       types.JobStatusCompleted,
			"stage":        finalStage,
			"progress":     100,
			"message":      "",
			"error":        "",
			"result":       res,
			"completed_at": now,
			"locked_at":    nil,
			"heartbeat_at": now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = types.JobStatusCompleted
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Message = ""
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.CompletedAt = &now
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.Job.UserID, c.Job)
	}
}
