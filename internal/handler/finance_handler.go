package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lunexops/internal/service/pipeline"
)

type FinanceHandler struct {
	pipeline *pipeline.Service
	logger   *zap.Logger
	now      func() time.Time
}

func NewFinanceHandler(svc *pipeline.Service, logger *zap.Logger) *FinanceHandler {
	return &FinanceHandler{
		pipeline: svc,
		logger:   logger,
		now:      time.Now,
	}
}

// Summary handles GET /api/finance/summary
func (h *FinanceHandler) Summary(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipeline.Financials(h.now()))
}

// Monthly handles GET /api/finance/monthly
func (h *FinanceHandler) Monthly(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"records": h.pipeline.MonthlyRevenue()})
}

// Recompute handles POST /api/finance/recompute
func (h *FinanceHandler) Recompute(c *gin.Context) {
	rec, err := h.pipeline.RecomputeRevenue(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Dashboard handles GET /api/dashboard
func (h *FinanceHandler) Dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats":     h.pipeline.DashboardStats(),
		"finance":   h.pipeline.Financials(h.now()),
		"loaded_at": h.pipeline.LoadedAt(),
	})
}
