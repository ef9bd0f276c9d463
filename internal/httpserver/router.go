package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lunexops/internal/handler"
	"lunexops/internal/service/auth"
	"lunexops/pkg/otel"
	"lunexops/pkg/rbac"
)

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Handlers struct {
	Auth          *handler.AuthHandler
	Leads         *handler.LeadHandler
	Projects      *handler.ProjectHandler
	Schedule      *handler.ScheduleHandler
	Finance       *handler.FinanceHandler
	Notifications *handler.NotificationHandler
	Files         *handler.FileHandler
	Admin         *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, authService *auth.Service, checks map[string]ReadinessCheck, logger *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(), RequestLogger(logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// Public
	api.POST("/auth/login", h.Auth.Login)
	api.POST("/leads/intake", h.Leads.Intake)

	// Protected
	staff := api.Group("/")
	staff.Use(AuthMiddleware(authService))
	{
		staff.POST("/auth/renew", h.Auth.Renew)
		staff.GET("/auth/me", h.Auth.Me)

		staff.GET("/leads", h.Leads.List)
		staff.POST("/leads", h.Leads.Create)
		staff.GET("/leads/:id", h.Leads.Get)
		staff.PATCH("/leads/:id", h.Leads.Update)
		staff.DELETE("/leads/:id", h.Leads.Delete)
		staff.POST("/leads/:id/actions/:action", h.Leads.Action)
		staff.PUT("/leads/:id/status", h.Leads.SetStatus)
		staff.POST("/leads/:id/force-status", h.Leads.ForceStatus)
		staff.GET("/leads/:id/history", h.Leads.History)
		staff.GET("/leads/:id/communications", h.Leads.Communications)
		staff.POST("/leads/:id/communications", h.Leads.LogCommunication)
		staff.POST("/leads/:id/promote", h.Leads.Promote)

		staff.GET("/projects", h.Projects.List)
		staff.POST("/projects", h.Projects.Create)
		staff.GET("/projects/:id", h.Projects.Get)
		staff.PUT("/projects/:id", h.Projects.Update)
		staff.PUT("/projects/:id/status", h.Projects.SetStatus)
		staff.DELETE("/projects/:id", h.Projects.Delete)
		staff.POST("/projects/:id/files", h.Projects.UploadFiles)
		staff.GET("/files/*key", h.Files.Download)
		staff.GET("/projects/:id/milestones", h.Schedule.ListMilestones)
		staff.POST("/projects/:id/milestones", h.Schedule.CreateMilestone)

		staff.PUT("/milestones/:id", h.Schedule.UpdateMilestone)
		staff.POST("/milestones/:id/toggle", h.Schedule.ToggleMilestone)
		staff.DELETE("/milestones/:id", h.Schedule.DeleteMilestone)
		staff.GET("/calendar", h.Schedule.Calendar)

		staff.GET("/board", h.Projects.Board)
		staff.POST("/board/moves", h.Projects.Move)

		staff.GET("/dashboard", h.Finance.Dashboard)
		staff.GET("/finance/summary", h.Finance.Summary)
		staff.GET("/finance/monthly", h.Finance.Monthly)
		staff.POST("/finance/recompute", h.Finance.Recompute)

		staff.GET("/notifications", h.Notifications.List)
		staff.POST("/notifications/read-all", h.Notifications.MarkAllRead)
		staff.POST("/notifications/:id/read", h.Notifications.MarkRead)
		staff.POST("/notifications/reminders", h.Notifications.CreateReminder)
		staff.GET("/notices", h.Notifications.Notices)
	}

	admin := staff.Group("/admin")
	admin.Use(RequirePermission(rbac.PermissionReplayOutbox))
	{
		admin.GET("/outbox/failed", h.Admin.ListFailed)
		admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}

// Server 带优雅关闭的 HTTP 服务
func (r *Router) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
