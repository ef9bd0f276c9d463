package handler

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lunexops/internal/apperr"
)

// FileOpener 由 blob.LocalStore 实现
type FileOpener interface {
	Open(key string) (*os.File, error)
}

type FileHandler struct {
	files  FileOpener
	logger *zap.Logger
}

func NewFileHandler(files FileOpener, logger *zap.Logger) *FileHandler {
	return &FileHandler{files: files, logger: logger}
}

// Download handles GET /api/files/*key, key being ProjectFile.Path.
func (h *FileHandler) Download(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	f, err := h.files.Open(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(c, h.logger, apperr.NotFound("file", key))
			return
		}
		writeError(c, h.logger, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(c, h.logger, apperr.NotFound("file", key))
		return
	}
	http.ServeContent(c.Writer, c.Request, path.Base(key), info.ModTime(), f)
}
