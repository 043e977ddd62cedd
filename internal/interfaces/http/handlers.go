package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/closeflow/internal/application/service"
	"github.com/garyjia/closeflow/internal/domain/apperr"
	"github.com/garyjia/closeflow/internal/ingest"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{services: services, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// IngestForm is the multipart form of POST /api/v1/ingest; the extract is the "file" part
type IngestForm struct {
	Entity string `form:"entity" binding:"required"`
	Period string `form:"period" binding:"required"`
	DryRun bool   `form:"dry_run"`
}

// BatchRequest is the body of POST /api/v1/ingest/batch. Job paths are read through file storage.
type BatchRequest struct {
	Jobs          []service.BatchJob `json:"jobs" binding:"required,min=1,dive"`
	MaxConcurrent int                `json:"max_concurrent"`
	MaxRetries    *int               `json:"max_retries"`
	DryRun        bool               `json:"dry_run"`
	SkipCompleted bool               `json:"skip_completed"`
}

// AssignRequest is the body of POST /api/v1/assign
type AssignRequest struct {
	Entity          string `json:"entity" binding:"required"`
	Period          string `json:"period" binding:"required"`
	SkipZeroBalance bool   `json:"skip_zero_balance"`
}

// UnitQuery selects an (entity, period) in list endpoints
type UnitQuery struct {
	Entity string `form:"entity" binding:"required"`
	Period string `form:"period" binding:"required"`
	Limit  int    `form:"limit"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// Ingest handles POST /api/v1/ingest
func (h *Handlers) Ingest(c *gin.Context) {
	var form IngestForm
	if err := c.ShouldBind(&form); err != nil {
		h.badRequest(c, "entity and period are required", err)
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, "file is required", err)
		return
	}
	f, err := header.Open()
	if err != nil {
		h.badRequest(c, "cannot open upload", err)
		return
	}
	content, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		h.badRequest(c, "cannot read upload", err)
		return
	}

	ctx := c.Request.Context()
	period := ingest.NormalizePeriod(form.Period)
	path := h.services.Uploads.PathFor(form.Entity, period, header.Filename)
	if err := h.services.Storage.Save(ctx, path, content); err != nil {
		h.logger.Error("Failed to stage upload", "path", path, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to store upload"})
		return
	}

	result, err := h.services.Ingestion.Ingest(ctx, service.IngestRequest{
		Name:   header.Filename,
		Path:   path,
		Entity: form.Entity,
		Period: period,
		DryRun: form.DryRun,
	})
	if err != nil {
		h.fail(c, "ingestion failed", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// IngestBatch handles POST /api/v1/ingest/batch
func (h *Handlers) IngestBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid batch request", err)
		return
	}

	opts := service.BatchOptions{
		MaxConcurrent: req.MaxConcurrent,
		MaxRetries:    service.DefaultMaxRetries,
		DryRun:        req.DryRun,
		SkipCompleted: req.SkipCompleted,
	}
	if req.MaxRetries != nil {
		opts.MaxRetries = *req.MaxRetries
	}

	summary, err := h.services.Batch.IngestBatch(c.Request.Context(), req.Jobs, opts)
	if err != nil {
		h.fail(c, "batch failed to start", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: summary.AllCompleted(), Data: summary})
}

// Validate handles POST /api/v1/validate
func (h *Handlers) Validate(c *gin.Context) {
	var req service.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "entity and period are required", err)
		return
	}

	result, err := h.services.Validation.Validate(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "validation failed", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// ListValidations handles GET /api/v1/validations
func (h *Handlers) ListValidations(c *gin.Context) {
	var q UnitQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "entity and period are required", err)
		return
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}

	runs, err := h.services.Validation.History(c.Request.Context(), q.Entity, q.Period, q.Limit)
	if err != nil {
		h.fail(c, "failed to retrieve validation runs", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: runs})
}

// Assign handles POST /api/v1/assign
func (h *Handlers) Assign(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "entity and period are required", err)
		return
	}

	results, err := h.services.Assignment.AssignAccounts(c.Request.Context(), req.Entity, req.Period, req.SkipZeroBalance)
	if err != nil {
		h.fail(c, "assignment failed", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: results})
}

// ListAssignments handles GET /api/v1/assignments
func (h *Handlers) ListAssignments(c *gin.Context) {
	var q UnitQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "entity and period are required", err)
		return
	}

	items, err := h.services.Assignment.ListAssignments(c.Request.Context(), q.Entity, q.Period)
	if err != nil {
		h.fail(c, "failed to retrieve assignments", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: items})
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Error("Invalid request", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	h.logger.Error(msg, "path", c.FullPath(), "status", status, "error", err)
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case apperr.IsKind(err, apperr.KindSchema):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case apperr.IsKind(err, apperr.KindRetryableIO):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
