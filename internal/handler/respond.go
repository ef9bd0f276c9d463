package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lunexops/internal/apperr"
	"lunexops/pkg/logger"
)

// writeError maps err to a JSON error response. Domain errors carry their
// own status; anything else is a 500 and is logged.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		logger.WithTrace(c.Request.Context(), log).Error("Unhandled error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": apperr.CodeUnknown})
		return
	}

	status := ae.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.WithTrace(c.Request.Context(), log).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", string(ae.Code)),
			zap.Error(err),
		)
	}
	body := gin.H{"error": ae.Message, "code": ae.Code}
	if len(ae.Metadata) > 0 {
		body["details"] = ae.Metadata
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid request",
		"code":    apperr.CodeInvalidInput,
		"details": gin.H{"reason": err.Error()},
	})
}
