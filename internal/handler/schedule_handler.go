package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lunexops/internal/service/pipeline"
)

type ScheduleHandler struct {
	pipeline *pipeline.Service
	logger   *zap.Logger
	now      func() time.Time
}

func NewScheduleHandler(svc *pipeline.Service, logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		pipeline: svc,
		logger:   logger,
		now:      time.Now,
	}
}

// ListMilestones handles GET /api/projects/:id/milestones
func (h *ScheduleHandler) ListMilestones(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"milestones": h.pipeline.ProjectMilestones(c.Param("id"))})
}

// CreateMilestone handles POST /api/projects/:id/milestones
func (h *ScheduleHandler) CreateMilestone(c *gin.Context) {
	var in pipeline.MilestoneInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.pipeline.CreateMilestone(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// UpdateMilestone handles PUT /api/milestones/:id
func (h *ScheduleHandler) UpdateMilestone(c *gin.Context) {
	var in pipeline.MilestoneInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.pipeline.UpdateMilestone(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// ToggleMilestone handles POST /api/milestones/:id/toggle
func (h *ScheduleHandler) ToggleMilestone(c *gin.Context) {
	m, err := h.pipeline.ToggleMilestone(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeleteMilestone handles DELETE /api/milestones/:id
func (h *ScheduleHandler) DeleteMilestone(c *gin.Context) {
	if err := h.pipeline.DeleteMilestone(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Calendar handles GET /api/calendar?date=2006-01-02
func (h *ScheduleHandler) Calendar(c *gin.Context) {
	now := h.now()
	if d := c.Query("date"); d != "" {
		day, err := time.Parse(time.DateOnly, d)
		if err != nil {
			badRequest(c, err)
			return
		}
		now = day
	}
	c.JSON(http.StatusOK, h.pipeline.Calendar(now))
}
