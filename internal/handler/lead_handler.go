package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lunexops/internal/model"
	"lunexops/internal/queue"
	"lunexops/internal/service/pipeline"
	"lunexops/internal/status"
)

type LeadHandler struct {
	pipeline *pipeline.Service
	logger   *zap.Logger
}

func NewLeadHandler(svc *pipeline.Service, logger *zap.Logger) *LeadHandler {
	return &LeadHandler{
		pipeline: svc,
		logger:   logger,
	}
}

// Intake handles POST /api/leads/intake (public contact and location forms)
func (h *LeadHandler) Intake(c *gin.Context) {
	var in pipeline.LeadInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	// 公开入口不能冒充手工录入
	if in.Source == model.SourceManual {
		in.Source = model.SourceContactForm
	}

	l, err := h.pipeline.CreateLead(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": l.ID, "status": "received"})
}

// Create handles POST /api/leads (manual entry by staff)
func (h *LeadHandler) Create(c *gin.Context) {
	var in pipeline.LeadInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	in.Source = model.SourceManual

	l, err := h.pipeline.CreateLead(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

// List handles GET /api/leads?view=queue&search=&status=&priority=
func (h *LeadHandler) List(c *gin.Context) {
	mode := queue.ParseViewMode(c.DefaultQuery("view", string(queue.ViewAll)))
	f := queue.Filter{
		Search:   c.Query("search"),
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
	}
	items := h.pipeline.FilteredView(mode, f)
	c.JSON(http.StatusOK, gin.H{"view": mode, "count": len(items), "leads": items})
}

// Get handles GET /api/leads/:id
func (h *LeadHandler) Get(c *gin.Context) {
	l, err := h.pipeline.GetLead(c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lead": l, "actions": status.ActionsFrom(l.Status)})
}

// Update handles PATCH /api/leads/:id
func (h *LeadHandler) Update(c *gin.Context) {
	var p pipeline.LeadPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	l, err := h.pipeline.UpdateLeadDetails(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// Delete handles DELETE /api/leads/:id
func (h *LeadHandler) Delete(c *gin.Context) {
	if err := h.pipeline.DeleteLead(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Action handles POST /api/leads/:id/actions/:action
func (h *LeadHandler) Action(c *gin.Context) {
	l, err := h.pipeline.ApplyLeadAction(c.Request.Context(), c.Param("id"), c.Param("action"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// SetStatus handles PUT /api/leads/:id/status
func (h *LeadHandler) SetStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.pipeline.UpdateStatus(c.Request.Context(), pipeline.TargetLead, c.Param("id"), req.Status); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
}

// ForceStatus handles POST /api/leads/:id/force-status (admin)
func (h *LeadHandler) ForceStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	l, err := h.pipeline.ForceSetLeadStatus(c.Request.Context(), c.Param("id"), status.LeadStatus(req.Status), req.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// History handles GET /api/leads/:id/history
func (h *LeadHandler) History(c *gin.Context) {
	hist, err := h.pipeline.LeadHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": hist})
}

// Communications handles GET /api/leads/:id/communications
func (h *LeadHandler) Communications(c *gin.Context) {
	comms, err := h.pipeline.Communications(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"communications": comms})
}

// LogCommunication handles POST /api/leads/:id/communications
func (h *LeadHandler) LogCommunication(c *gin.Context) {
	var req model.Communication
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.LeadID = c.Param("id")

	comm, err := h.pipeline.LogCommunication(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, comm)
}

// Promote handles POST /api/leads/:id/promote
func (h *LeadHandler) Promote(c *gin.Context) {
	p, created, err := h.pipeline.PromoteLead(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	c.JSON(code, gin.H{"project": p, "created": created})
}
