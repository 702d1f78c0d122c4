package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/season-scheduler/internal/dto"
	"github.com/noah-isme/season-scheduler/internal/models"
	"github.com/noah-isme/season-scheduler/internal/service"
	appErrors "github.com/noah-isme/season-scheduler/pkg/errors"
	"github.com/noah-isme/season-scheduler/pkg/response"
)

const sseHeartbeat = 15 * time.Second

type seasonScheduler interface {
	Submit(ctx context.Context, req dto.SeasonScheduleRequest) (*dto.SeasonJobResponse, error)
	Status(ctx context.Context, id string) (*dto.SeasonJobStatusResponse, error)
	List() []dto.SeasonJobStatusResponse
	History(ctx context.Context, filter models.ScheduleRunFilter) ([]models.ScheduleRun, *models.Pagination, error)
	Result(ctx context.Context, id string) (*dto.SeasonScheduleResult, error)
	Command(ctx context.Context, id string, req dto.SeasonJobCommandRequest) (*dto.SeasonJobStatusResponse, error)
	Subscribe(ctx context.Context, id string) (<-chan models.ProgressEvent, func(), error)
	Export(ctx context.Context, id string, format models.ExportFormat) ([]byte, error)
	PublishExport(ctx context.Context, id string, format models.ExportFormat) (*service.ExportResult, error)
	OpenExport(token string) (*os.File, string, error)
}

// SeasonScheduleHandler exposes the season optimization endpoints.
type SeasonScheduleHandler struct {
	service   seasonScheduler
	heartbeat time.Duration
}

// NewSeasonScheduleHandler constructs the handler.
func NewSeasonScheduleHandler(svc *service.SeasonScheduleService) *SeasonScheduleHandler {
	return &SeasonScheduleHandler{service: svc, heartbeat: sseHeartbeat}
}

// Register mounts the routes on group.
func (h *SeasonScheduleHandler) Register(group *gin.RouterGroup) {
	schedules := group.Group("/season-schedules")
	schedules.POST("/runs", h.Submit)
	schedules.GET("/runs", h.List)
	schedules.GET("/runs/:id", h.Status)
	schedules.GET("/runs/:id/result", h.Result)
	schedules.POST("/runs/:id/commands", h.Command)
	schedules.GET("/runs/:id/events", h.Events)
	schedules.GET("/runs/:id/export", h.Export)
	schedules.GET("/history", h.History)
	schedules.GET("/exports/:token", h.Download)
}

func respondError(c *gin.Context, err error) {
	response.Error(c, service.ToAppError(err))
}

// Submit godoc
// @Summary Submit a season configuration for optimization
// @Description Validates the configuration synchronously and queues an optimization job.
// @Tags Season Schedules
// @Accept json
// @Produce json
// @Param payload body dto.SeasonScheduleRequest true "Season configuration"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /season-schedules/runs [post]
func (h *SeasonScheduleHandler) Submit(c *gin.Context) {
	var req dto.SeasonScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid season configuration payload"))
		return
	}
	result, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("%s/%s", strings.TrimRight(c.Request.URL.Path, "/"), result.ID))
	response.JSON(c, http.StatusAccepted, result, nil)
}

// List godoc
// @Summary List optimization jobs held by this instance
// @Tags Season Schedules
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /season-schedules/runs [get]
func (h *SeasonScheduleHandler) List(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.List(), nil)
}

// Status godoc
// @Summary Get optimization job status
// @Tags Season Schedules
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /season-schedules/runs/{id} [get]
func (h *SeasonScheduleHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Result godoc
// @Summary Get the best schedule of a finished job
// @Tags Season Schedules
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /season-schedules/runs/{id}/result [get]
func (h *SeasonScheduleHandler) Result(c *gin.Context) {
	result, err := h.service.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var meta map[string]interface{}
	if result.HardViolations > 0 {
		meta = map[string]interface{}{
			"warning": appErrors.ErrConstraintsUnsatisfied.Code,
			"message": result.Warning,
		}
	}
	response.JSON(c, http.StatusOK, result, nil, meta)
}

// Command godoc
// @Summary Pause, resume, abort or retune a running job
// @Tags Season Schedules
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param payload body dto.SeasonJobCommandRequest true "Command"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /season-schedules/runs/{id}/commands [post]
func (h *SeasonScheduleHandler) Command(c *gin.Context) {
	var req dto.SeasonJobCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid command payload"))
		return
	}
	status, err := h.service.Command(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Events godoc
// @Summary Stream job progress as server-sent events
// @Tags Season Schedules
// @Produce text/event-stream
// @Param id path string true "Job ID"
// @Success 200 {string} string "event stream"
// @Router /season-schedules/runs/{id}/events [get]
func (h *SeasonScheduleHandler) Events(c *gin.Context) {
	events, unsubscribe, err := h.service.Subscribe(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer unsubscribe()

	heartbeat := h.heartbeat
	if heartbeat <= 0 {
		heartbeat = sseHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case event, ok := <-events:
			if !ok {
				c.SSEvent("end", gin.H{"id": c.Param("id")})
				return false
			}
			c.SSEvent(event.Stage, event)
			return true
		case <-ticker.C:
			_, _ = io.WriteString(w, ": heartbeat\n\n")
			return true
		}
	})
}

// Export godoc
// @Summary Export the best schedule as CSV or PDF
// @Description With store=true the file is kept server-side and a signed download link is returned.
// @Tags Season Schedules
// @Produce text/csv
// @Produce application/pdf
// @Produce json
// @Param id path string true "Job ID"
// @Param format query string false "csv or pdf" default(csv)
// @Param store query bool false "store and return a signed link"
// @Success 200 {file} file
// @Router /season-schedules/runs/{id}/export [get]
func (h *SeasonScheduleHandler) Export(c *gin.Context) {
	var query dto.SeasonExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	format := models.ExportFormat(strings.ToLower(query.Format))
	if format == "" {
		format = models.ExportFormatCSV
	}
	if !format.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", query.Format)))
		return
	}
	id := c.Param("id")
	if query.Store {
		result, err := h.service.PublishExport(c.Request.Context(), id, format)
		if err != nil {
			respondError(c, err)
			return
		}
		response.Created(c, result)
		return
	}
	payload, err := h.service.Export(c.Request.Context(), id, format)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Attachment(c, fmt.Sprintf("season-%s.%s", id, format), format.ContentType(), payload)
}

// Download godoc
// @Summary Download a stored export through its signed token
// @Tags Season Schedules
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 410 {object} response.Envelope
// @Router /season-schedules/exports/{token} [get]
func (h *SeasonScheduleHandler) Download(c *gin.Context) {
	file, name, err := h.service.OpenExport(c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close() //nolint:errcheck
	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	contentType := models.ExportFormatCSV.ContentType()
	if strings.HasSuffix(name, ".pdf") {
		contentType = models.ExportFormatPDF.ContentType()
	}
	response.AttachmentReader(c, name, contentType, info.Size(), file)
}

// History godoc
// @Summary List persisted optimization runs
// @Tags Season Schedules
// @Produce json
// @Param status query string false "Job status"
// @Param sport query string false "Sport"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /season-schedules/history [get]
func (h *SeasonScheduleHandler) History(c *gin.Context) {
	filter := models.ScheduleRunFilter{
		Status: models.JobStatus(strings.ToUpper(c.Query("status"))),
		Sport:  c.Query("sport"),
	}
	var err error
	if filter.Page, err = intQuery(c, "page"); err == nil {
		filter.PageSize, err = intQuery(c, "pageSize")
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	runs, pagination, err := h.service.History(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		if err == nil {
			err = errors.New("must not be negative")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, fmt.Sprintf("invalid %s", key))
	}
	return value, nil
}
