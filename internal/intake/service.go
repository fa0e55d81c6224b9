package intake

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mr1hm/disaster-reports/internal/config"
	"github.com/mr1hm/disaster-reports/internal/models"
	"github.com/mr1hm/disaster-reports/internal/observability"
	"github.com/mr1hm/disaster-reports/internal/repository"
	"github.com/mr1hm/disaster-reports/internal/stream"
	"github.com/mr1hm/disaster-reports/internal/uploads"
	"github.com/mr1hm/disaster-reports/internal/worker"
)

// FileStore is the part of uploads.Manager the service needs.
type FileStore interface {
	Store(ctx context.Context, filename string, r io.Reader) (*uploads.StoredFile, error)
}

type Attachment struct {
	Filename string
	Content  io.Reader
}

type Submission struct {
	Title        string
	Description  string
	Location     string
	Severity     models.Severity
	ReporterName string
	File         *Attachment // nil when no file was attached
}

// Service runs the submit flow: store the attachment, persist the report,
// then hand the report to the notification pool.
type Service struct {
	cfg         *config.Config
	repo        repository.ReportRepository
	files       FileStore
	broadcaster *stream.Broadcaster
	metrics     *observability.Metrics
	pool        *worker.Pool[models.Report]
}

func NewService(cfg *config.Config, repo repository.ReportRepository, files FileStore, broadcaster *stream.Broadcaster, metrics *observability.Metrics) *Service {
	if metrics == nil {
		metrics = observability.NewMetrics(nil)
	}
	return &Service{
		cfg:         cfg,
		repo:        repo,
		files:       files,
		broadcaster: broadcaster,
		metrics:     metrics,
	}
}

func (s *Service) Start(ctx context.Context) {
	s.pool = worker.NewPool("notify", s.cfg.Worker.Count, s.cfg.Worker.BufferSize, s.notify)
	s.pool.Start(ctx)
}

func (s *Service) Stop() {
	if s.pool != nil {
		s.pool.Stop()
	}
	slog.Info("intake service stopped")
}

// Submit persists one report. Field validation happens before anything is
// written. If the insert fails after the attachment was stored, the file is
// left in place.
func (s *Service) Submit(ctx context.Context, sub Submission) (*models.Report, error) {
	report := &models.Report{
		Title:        sub.Title,
		Description:  sub.Description,
		Location:     sub.Location,
		Severity:     sub.Severity,
		ReporterName: sub.ReporterName,
	}
	if err := repository.Validate(report); err != nil {
		s.metrics.SubmitFailures.WithLabelValues("invalid_input").Inc()
		return nil, err
	}

	var stored *uploads.StoredFile
	if sub.File != nil && strings.TrimSpace(sub.File.Filename) != "" {
		var err error
		stored, err = s.files.Store(ctx, sub.File.Filename, sub.File.Content)
		if err != nil {
			s.metrics.SubmitFailures.WithLabelValues("upload").Inc()
			return nil, fmt.Errorf("error storing attachment: %w", err)
		}
		s.metrics.UploadsStored.Inc()
		s.metrics.UploadBytes.Add(float64(stored.Size))
		report.FilePath = &stored.Reference
	}

	if _, err := s.repo.Add(ctx, report); err != nil {
		s.metrics.SubmitFailures.WithLabelValues("storage").Inc()
		if stored != nil {
			s.metrics.OrphanedUploads.Inc()
			slog.Warn("upload left without report", "file", stored.Reference, "error", err)
		}
		return nil, fmt.Errorf("error adding report: %w", err)
	}

	s.metrics.ReportsSubmitted.WithLabelValues(severityLabel(report.Severity)).Inc()

	if s.pool != nil && !s.pool.TrySubmit(*report) {
		slog.Warn("notification queue full, skipping", "id", report.ID)
	}

	return report, nil
}

func (s *Service) notify(ctx context.Context, r models.Report) error {
	slog.Info("new disaster report submitted",
		"id", r.ID,
		"title", r.Title,
		"location", r.Location,
		"severity", r.Severity,
	)

	if s.broadcaster != nil && r.Severity.IsAlert() {
		n := s.broadcaster.Broadcast(r.Summary())
		s.metrics.AlertsBroadcast.Inc()
		slog.Debug("alert broadcast", "id", r.ID, "subscribers", n)
	}
	return nil
}

// severityLabel folds unknown severities into one series so client input
// cannot grow the label set.
func severityLabel(s models.Severity) string {
	if s.Valid() {
		return string(s)
	}
	return "other"
}
