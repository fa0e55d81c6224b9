package repository

import (
	"context"
	"errors"

	"github.com/mr1hm/disaster-reports/internal/models"
)

// AlertLimit caps the number of reports returned by ListAlerts.
const AlertLimit = 10

var (
	ErrNotFound           = errors.New("report not found")
	ErrInvalidInput       = errors.New("invalid report")
	ErrStorageUnavailable = errors.New("report storage unavailable")
)

type ReportRepository interface {
	// Add persists r and returns its generated id. r.ID and r.CreatedAt are
	// filled in on success.
	Add(ctx context.Context, r *models.Report) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Report, error)
	List(ctx context.Context) ([]models.Report, error)
	ListAlerts(ctx context.Context) ([]models.AlertSummary, error)
	Statistics(ctx context.Context) (*models.Statistics, error)
}
