package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lunexops/internal/board"
	"lunexops/internal/service/pipeline"
)

type ProjectHandler struct {
	pipeline *pipeline.Service
	logger   *zap.Logger
}

func NewProjectHandler(svc *pipeline.Service, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{
		pipeline: svc,
		logger:   logger,
	}
}

// List handles GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	projects := h.pipeline.Projects()
	c.JSON(http.StatusOK, gin.H{"count": len(projects), "projects": projects})
}

// Get handles GET /api/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	id := c.Param("id")
	p, err := h.pipeline.GetProject(id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"project":    p,
		"milestones": h.pipeline.ProjectMilestones(id),
		"tentative":  h.pipeline.IsTentative(id),
	})
}

// Create handles POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var in pipeline.ProjectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.pipeline.CreateProject(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Update handles PUT /api/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	var in pipeline.ProjectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.pipeline.UpdateProject(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// SetStatus handles PUT /api/projects/:id/status
func (h *ProjectHandler) SetStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.pipeline.UpdateStatus(c.Request.Context(), pipeline.TargetProject, c.Param("id"), req.Status); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
}

// Delete handles DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.pipeline.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadFiles handles POST /api/projects/:id/files (multipart, field "files").
// Any failed file turns the response into 207 with one entry per failure.
func (h *ProjectHandler) UploadFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, err)
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files in request"})
		return
	}

	uploads := make([]pipeline.Upload, 0, len(headers))
	var openFailed []pipeline.FileError
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			openFailed = append(openFailed, pipeline.FileError{Name: fh.Filename, Error: err.Error()})
			continue
		}
		defer f.Close()
		uploads = append(uploads, pipeline.Upload{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Body:     f,
		})
	}

	stored, failed, err := h.pipeline.AttachFiles(c.Request.Context(), c.Param("id"), uploads)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	failed = append(openFailed, failed...)

	code := http.StatusOK
	if len(failed) > 0 {
		code = http.StatusMultiStatus
	}
	c.JSON(code, gin.H{"files": stored, "errors": failed})
}

// Board handles GET /api/board
func (h *ProjectHandler) Board(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"columns": h.pipeline.Board()})
}

// Move handles POST /api/board/moves
func (h *ProjectHandler) Move(c *gin.Context) {
	var m board.Move
	if err := c.ShouldBindJSON(&m); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.pipeline.MoveCard(c.Request.Context(), m)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
