package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/clients/redis"
	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/types"
)

const (
	EventJobCreated  = "job.created"
	EventJobProgress = "job.progress"
	EventJobFailed   = "job.failed"
	EventJobDone     = "job.done"
)

// JobNotifier fans job lifecycle events out to subscribed clients. Delivery is
// best-effort; a lost event never affects the job itself.
type JobNotifier interface {
	JobCreated(userID uuid.UUID, job *types.GenerationJob)
	JobProgress(userID uuid.UUID, job *types.GenerationJob, stage string, progress int, message string)
	JobFailed(userID uuid.UUID, job *types.GenerationJob, stage string, errorMessage string)
	JobDone(userID uuid.UUID, job *types.GenerationJob)
}

type jobNotifier struct {
	log *logger.Logger
	bus redis.EventBus
}

func NewJobNotifier(baseLog *logger.Logger, bus redis.EventBus) JobNotifier {
	return &jobNotifier{
		log: baseLog.With("service", "JobNotifier"),
		bus: bus,
	}
}

func (n *jobNotifier) publish(userID uuid.UUID, event string, data map[string]any) {
	if n.bus == nil {
		return
	}
	err := n.bus.Publish(context.Background(), redis.JobEvent{
		Channel: userID.String(),
		Event:   event,
		Data:    data,
	})
	if err != nil {
		n.log.Warn("Failed to publish job event", "event", event, "error", err)
	}
}

func (n *jobNotifier) JobCreated(userID uuid.UUID, job *types.GenerationJob) {
	n.publish(userID, EventJobCreated, map[string]any{"job": job})
}

func (n *jobNotifier) JobProgress(userID uuid.UUID, job *types.GenerationJob, stage string, progress int, message string) {
	n.publish(userID, EventJobProgress, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *jobNotifier) JobFailed(userID uuid.UUID, job *types.GenerationJob, stage string, errorMessage string) {
	n.publish(userID, EventJobFailed, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"stage":    stage,
		"error":    errorMessage,
	})
}

func (n *jobNotifier) JobDone(userID uuid.UUID, job *types.GenerationJob) {
	n.publish(userID, EventJobDone, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"job":      job,
	})
}
