package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lunexops/internal/notify"
	"lunexops/internal/service/pipeline"
)

type NotificationHandler struct {
	pipeline *pipeline.Service
	feed     *notify.Feed
	logger   *zap.Logger
}

func NewNotificationHandler(svc *pipeline.Service, feed *notify.Feed, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		pipeline: svc,
		feed:     feed,
		logger:   logger,
	}
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"notifications": h.pipeline.Notifications(),
		"unread":        h.pipeline.UnreadCount(),
	})
}

// MarkRead handles POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.pipeline.MarkNotificationRead(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.pipeline.MarkAllNotificationsRead(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// CreateReminder handles POST /api/notifications/reminders
func (h *NotificationHandler) CreateReminder(c *gin.Context) {
	var in pipeline.ReminderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	n, err := h.pipeline.CreateReminder(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

// Notices handles GET /api/notices (recent success/failure notices)
func (h *NotificationHandler) Notices(c *gin.Context) {
	var notices []notify.Event
	if h.feed != nil {
		notices = h.feed.Recent()
	}
	c.JSON(http.StatusOK, gin.H{"notices": notices})
}
