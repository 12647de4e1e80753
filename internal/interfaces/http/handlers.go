package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/claim-intake/internal/application/port"
	"github.com/garyjia/claim-intake/internal/application/service"
	"github.com/garyjia/claim-intake/internal/domain/entity"
	"github.com/garyjia/claim-intake/internal/infrastructure/worker"
)

// Version is reported by the health endpoint
var Version = "dev"

// HealthFunc reports component health; ok false turns the check into a 503
type HealthFunc func(ctx context.Context) (ok bool, components interface{})

// Handlers contains all HTTP request handlers
type Handlers struct {
	claims        service.ClaimService
	health        HealthFunc
	maxUploadSize int64
	logger        *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(claims service.ClaimService, health HealthFunc, maxUploadSize int64, logger *zap.Logger) *Handlers {
	return &Handlers{
		claims:        claims,
		health:        health,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Version    string      `json:"version"`
	Components interface{} `json:"components,omitempty"`
}

// QueuedResponse is returned for an accepted asynchronous submission
type QueuedResponse struct {
	DocumentID string `json:"document_id"`
	Digest     string `json:"digest"`
	Status     string `json:"status"`
}

// ListResponse wraps a page of outcomes
type ListResponse struct {
	Outcomes []*entity.ClaimOutcome `json:"outcomes"`
	Count    int                    `json:"count"`
	Limit    int                    `json:"limit"`
	Offset   int                    `json:"offset"`
}

type submitForm struct {
	// Unknown categories are recorded as "other".
	Category  string `form:"category" binding:"omitempty,max=64"`
	MediaType string `form:"media_type" binding:"omitempty,max=255"`
}

type submitQuery struct {
	Async bool `form:"async"`
}

type listQuery struct {
	State      string `form:"state" binding:"omitempty,oneof=ROUTED FAILED"`
	Action     string `form:"action" binding:"omitempty,oneof=AUTO_APPROVE MANUAL_REVIEW ESCALATE REJECT"`
	DocumentID string `form:"document_id" binding:"omitempty,uuid"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset     int    `form:"offset" binding:"omitempty,min=0"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}
	status := http.StatusOK

	if h.health != nil {
		ok, components := h.health(c.Request.Context())
		resp.Components = components
		if !ok {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// SubmitClaim handles POST /api/v1/claims. The multipart "file" part is the
// document; async=true queues it and answers 202 with the document id.
func (h *Handlers) SubmitClaim(c *gin.Context) {
	if h.maxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)
	}

	var q submitQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.respondError(c, http.StatusBadRequest, err)
		return
	}

	var form submitForm
	if err := c.ShouldBind(&form); err != nil {
		h.respondUploadError(c, err)
		return
	}

	doc, err := h.readDocument(c, form)
	if err != nil {
		h.respondUploadError(c, err)
		return
	}

	ctx := c.Request.Context()

	if q.Async {
		if err := h.claims.Enqueue(ctx, doc); err != nil {
			switch {
			case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrNotRunning):
				h.respondError(c, http.StatusServiceUnavailable, err)
			case errors.Is(err, service.ErrAsyncUnavailable):
				h.respondError(c, http.StatusNotImplemented, err)
			default:
				h.respondError(c, http.StatusInternalServerError, err)
			}
			return
		}
		c.JSON(http.StatusAccepted, Response{
			Success: true,
			Data: QueuedResponse{
				DocumentID: doc.ID,
				Digest:     doc.Digest,
				Status:     "queued",
			},
		})
		return
	}

	outcome := h.claims.Submit(ctx, doc)
	c.JSON(http.StatusOK, Response{Success: true, Data: outcome})
}

func (h *Handlers) readDocument(c *gin.Context, form submitForm) (*entity.ClaimDocument, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, err
	}

	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	mediaType := form.MediaType
	if mediaType == "" {
		mediaType = header.Header.Get("Content-Type")
	}

	return entity.NewClaimDocument(header.Filename, mediaType, entity.ParseDocumentCategory(form.Category), content), nil
}

func (h *Handlers) respondUploadError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.respondError(c, http.StatusRequestEntityTooLarge,
			fmt.Errorf("document exceeds %d bytes", tooLarge.Limit))
		return
	}
	h.respondError(c, http.StatusBadRequest, err)
}

// GetClaim handles GET /api/v1/claims/:id where id is a run id
func (h *Handlers) GetClaim(c *gin.Context) {
	outcome, err := h.claims.GetOutcome(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: outcome})
}

// ListClaims handles GET /api/v1/claims
func (h *Handlers) ListClaims(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.respondError(c, http.StatusBadRequest, err)
		return
	}

	outcomes, err := h.claims.ListOutcomes(c.Request.Context(), port.OutcomeFilter{
		State:      q.State,
		Action:     entity.RoutingAction(q.Action),
		DocumentID: q.DocumentID,
		Limit:      q.Limit,
		Offset:     q.Offset,
	})
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	if outcomes == nil {
		outcomes = []*entity.ClaimOutcome{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: ListResponse{
			Outcomes: outcomes,
			Count:    len(outcomes),
			Limit:    q.Limit,
			Offset:   q.Offset,
		},
	})
}

// Summary handles GET /api/v1/claims/summary
func (h *Handlers) Summary(c *gin.Context) {
	counts, err := h.claims.CountByAction(c.Request.Context())
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: counts})
}

func (h *Handlers) respondQueryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, port.ErrOutcomeNotFound):
		h.respondError(c, http.StatusNotFound, err)
	case errors.Is(err, service.ErrRecorderUnavailable):
		h.respondError(c, http.StatusNotImplemented, err)
	default:
		h.respondError(c, http.StatusInternalServerError, err)
	}
}

func (h *Handlers) respondError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}
