package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lunexops/internal/apperr"
	"lunexops/internal/service/auth"
	"lunexops/internal/session"
)

type AuthHandler struct {
	auth   *auth.Service
	logger *zap.Logger
}

func NewAuthHandler(authService *auth.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   authService,
		logger: logger,
	}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	token, sess, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "session": sess})
}

// Renew handles POST /api/auth/renew
func (h *AuthHandler) Renew(c *gin.Context) {
	sess, ok := session.FromContext(c.Request.Context())
	if !ok {
		writeError(c, h.logger, apperr.New(apperr.CodeUnauthenticated, "authentication required"))
		return
	}
	token, renewed, err := h.auth.Renew(c.Request.Context(), sess)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "session": renewed})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	sess, _ := session.FromContext(c.Request.Context())
	c.JSON(http.StatusOK, sess)
}
