package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/internal/services"
)

type CourseGenHandler struct {
	svc services.CourseGenerationService
}

func NewCourseGenHandler(svc services.CourseGenerationService) *CourseGenHandler {
	return &CourseGenHandler{svc: svc}
}

// requestUserID reads the authenticated user set by the auth middleware.
func requestUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// POST /api/courses/:id/generate
func (h *CourseGenHandler) Generate(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthenticated", errors.New("missing user"))
		return
	}
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", errors.New("invalid course id"))
		return
	}

	job, err := h.svc.Enqueue(c.Request.Context(), userID, courseID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// POST /api/courses/:id/regenerate
func (h *CourseGenHandler) Regenerate(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthenticated", errors.New("missing user"))
		return
	}
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", errors.New("invalid course id"))
		return
	}

	job, err := h.svc.Regenerate(c.Request.Context(), userID, courseID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// POST /api/courses/:id/analyze
func (h *CourseGenHandler) Analyze(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthenticated", errors.New("missing user"))
		return
	}
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", errors.New("invalid course id"))
		return
	}

	job, err := h.svc.Analyze(c.Request.Context(), userID, courseID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// GET /api/generation-jobs/:id
func (h *CourseGenHandler) GetJob(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthenticated", errors.New("missing user"))
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", errors.New("invalid job id"))
		return
	}

	job, err := h.svc.GetJob(c.Request.Context(), userID, jobID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// GET /api/courses/:id/generation/result
func (h *CourseGenHandler) GetResult(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthenticated", errors.New("missing user"))
		return
	}
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", errors.New("invalid course id"))
		return
	}

	result, err := h.svc.GetResult(c.Request.Context(), userID, courseID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

func (h *CourseGenHandler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrCourseNotFound), errors.Is(err, services.ErrJobNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, services.ErrResultNotReady):
		RespondError(c, http.StatusConflict, "result_not_ready", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
