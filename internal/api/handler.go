package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/disaster-reports/internal/intake"
	"github.com/mr1hm/disaster-reports/internal/models"
	"github.com/mr1hm/disaster-reports/internal/observability"
	"github.com/mr1hm/disaster-reports/internal/repository"
	"github.com/mr1hm/disaster-reports/internal/stream"
	"github.com/mr1hm/disaster-reports/internal/uploads"
)

type Submitter interface {
	Submit(ctx context.Context, sub intake.Submission) (*models.Report, error)
}

type FileOpener interface {
	Open(ref string) (*os.File, error)
}

type Deps struct {
	Repo           repository.ReportRepository
	Intake         Submitter
	Files          FileOpener
	Broadcaster    *stream.Broadcaster // optional, enables /api/alerts/stream
	Metrics        *observability.Metrics
	MaxUploadBytes int64
}

type Handler struct {
	repo           repository.ReportRepository
	intake         Submitter
	files          FileOpener
	broadcaster    *stream.Broadcaster
	metrics        *observability.Metrics
	maxUploadBytes int64
}

func NewHandler(d Deps) *Handler {
	if d.Metrics == nil {
		d.Metrics = observability.NewMetrics(nil)
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 32 << 20
	}
	return &Handler{
		repo:           d.Repo,
		intake:         d.Intake,
		files:          d.Files,
		broadcaster:    d.Broadcaster,
		metrics:        d.Metrics,
		maxUploadBytes: d.MaxUploadBytes,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.root)
	r.GET("/health", h.health)

	api := r.Group("/api")
	api.POST("/reports", h.createReport)
	api.GET("/reports", h.getReports)
	api.GET("/reports/:id", h.getReport)
	api.GET("/alerts", h.getAlerts)
	api.GET("/alerts/stream", h.streamAlerts)
	api.GET("/uploads/:filename", h.getUpload)
	api.GET("/stats", h.getStats)
}

type createReportForm struct {
	Title        string `form:"title" binding:"required"`
	Description  string `form:"description" binding:"required"`
	Location     string `form:"location" binding:"required"`
	Severity     string `form:"severity" binding:"required"`
	ReporterName string `form:"reporter_name" binding:"required"`
}

func (h *Handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Disaster Response Agent API",
		"status":  "running",
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) createReport(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	var form createReportForm
	if err := c.ShouldBind(&form); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := intake.Submission{
		Title:        form.Title,
		Description:  form.Description,
		Location:     form.Location,
		Severity:     models.Severity(form.Severity),
		ReporterName: form.ReporterName,
	}

	fh, err := c.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		f, err := fh.Open()
		if err != nil {
			slog.Error("failed to open multipart file", "filename", fh.Filename, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read uploaded file"})
			return
		}
		defer f.Close()
		sub.File = &intake.Attachment{Filename: fh.Filename, Content: f}
	}

	report, err := h.intake.Submit(c.Request.Context(), sub)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidInput) || errors.Is(err, uploads.ErrInvalidFilename) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("failed to submit report", "title", sub.Title, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit report"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Report submitted successfully",
		"report_id": report.ID,
		"data":      report,
	})
}

func (h *Handler) getReports(c *gin.Context) {
	reports, err := h.repo.List(c.Request.Context())
	if err != nil {
		slog.Error("failed to list reports", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch reports"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(reports),
		"reports": reports,
	})
}

func (h *Handler) getReport(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}

	report, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Report not found"})
			return
		}
		slog.Error("failed to get report", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch report"})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) getAlerts(c *gin.Context) {
	alerts, err := h.repo.ListAlerts(c.Request.Context())
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// streamAlerts pushes each new Critical/High report as an SSE "alert" event.
func (h *Handler) streamAlerts(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert stream disabled"})
		return
	}

	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)
	h.metrics.StreamClients.Inc()
	defer h.metrics.StreamClients.Dec()

	slog.Info("client subscribed to alert stream", "subscriber_id", id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case a, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("alert", a)
			return true
		}
	})

	slog.Info("client left alert stream", "subscriber_id", id)
}

func (h *Handler) getUpload(c *gin.Context) {
	f, err := h.files.Open(c.Param("filename"))
	if err != nil {
		if errors.Is(err, uploads.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "File not found"})
			return
		}
		slog.Error("failed to open upload", "filename", c.Param("filename"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		slog.Error("failed to stat upload", "filename", c.Param("filename"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}

	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}

func (h *Handler) getStats(c *gin.Context) {
	stats, err := h.repo.Statistics(c.Request.Context())
	if err != nil {
		slog.Error("failed to compute statistics", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
