package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/mr1hm/disaster-reports/internal/models"
)

// TimeLayout is the created_at text format. Fixed width and UTC, so ordering
// the column as text orders it by time.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

const reportColumns = `id, title, description, location, severity, reporter_name, file_path, created_at`

type SQLiteDB struct {
	db    *sql.DB
	clock clockwork.Clock
}

type Option func(*SQLiteDB)

// WithClock sets the clock used to stamp created_at.
func WithClock(c clockwork.Clock) Option {
	return func(s *SQLiteDB) {
		s.clock = c
	}
}

func NewSQLiteDB(path string, opts ...Option) (*SQLiteDB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w: %w", ErrStorageUnavailable, err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w: %w", ErrStorageUnavailable, err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w: %w", ErrStorageUnavailable, err)
	}

	s := &SQLiteDB{
		db:    db,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating database: %w: %w", ErrStorageUnavailable, err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			location TEXT NOT NULL,
			severity TEXT NOT NULL,
			reporter_name TEXT NOT NULL,
			file_path TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
		CREATE INDEX IF NOT EXISTS idx_reports_severity ON reports(severity);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Add(ctx context.Context, r *models.Report) (int64, error) {
	if err := Validate(r); err != nil {
		return 0, err
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}
	createdAt = createdAt.UTC().Truncate(time.Microsecond)

	var filePath sql.NullString
	if r.HasFile() {
		filePath = sql.NullString{String: *r.FilePath, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (title, description, location, severity, reporter_name, file_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Title,
		r.Description,
		r.Location,
		string(r.Severity),
		r.ReporterName,
		filePath,
		createdAt.Format(TimeLayout),
	)
	if err != nil {
		return 0, storageErr(ctx, "error inserting report", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr(ctx, "error reading report id", err)
	}

	r.ID = id
	r.CreatedAt = createdAt
	if !filePath.Valid {
		r.FilePath = nil
	}
	return id, nil
}

func (s *SQLiteDB) GetByID(ctx context.Context, id int64) (*models.Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)

	r, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("report %d: %w", id, ErrNotFound)
		}
		return nil, storageErr(ctx, "error getting report", err)
	}
	return r, nil
}

func (s *SQLiteDB) List(ctx context.Context) ([]models.Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM reports ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, storageErr(ctx, "error listing reports", err)
	}
	defer rows.Close()

	reports := make([]models.Report, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, storageErr(ctx, "error scanning report", err)
		}
		reports = append(reports, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(ctx, "error iterating reports", err)
	}

	return reports, nil
}

func (s *SQLiteDB) ListAlerts(ctx context.Context) ([]models.AlertSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, location, severity, created_at
		FROM reports
		WHERE severity IN (?, ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		string(models.SeverityCritical),
		string(models.SeverityHigh),
		AlertLimit,
	)
	if err != nil {
		return nil, storageErr(ctx, "error listing alerts", err)
	}
	defer rows.Close()

	alerts := make([]models.AlertSummary, 0, AlertLimit)
	for rows.Next() {
		var (
			a         models.AlertSummary
			severity  string
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.Location, &severity, &createdAt); err != nil {
			return nil, storageErr(ctx, "error scanning alert", err)
		}
		a.Severity = models.Severity(severity)
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, storageErr(ctx, "error parsing alert created_at", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(ctx, "error iterating alerts", err)
	}

	return alerts, nil
}

func (s *SQLiteDB) Statistics(ctx context.Context) (*models.Statistics, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT severity, COUNT(*) FROM reports GROUP BY severity`)
	if err != nil {
		return nil, storageErr(ctx, "error counting reports", err)
	}
	defer rows.Close()

	stats := &models.Statistics{}
	for rows.Next() {
		var (
			severity string
			count    int
		)
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, storageErr(ctx, "error scanning severity count", err)
		}
		stats.TotalReports += count
		stats.SeverityBreakdown.Add(models.Severity(severity), count)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(ctx, "error iterating severity counts", err)
	}

	return stats, nil
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr(ctx, "error while pinging database", err)
	}
	return nil
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (*models.Report, error) {
	var (
		r         models.Report
		severity  string
		filePath  sql.NullString
		createdAt string
	)
	if err := sc.Scan(&r.ID, &r.Title, &r.Description, &r.Location, &severity, &r.ReporterName, &filePath, &createdAt); err != nil {
		return nil, err
	}

	r.Severity = models.Severity(severity)
	if filePath.Valid {
		r.FilePath = &filePath.String
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = t

	return &r, nil
}

// parseTime only accepts TimeLayout. Any other text would not sort by time
// under ORDER BY created_at.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised created_at %q: %w", s, err)
	}
	return t, nil
}

// Validate checks that every required report field is non-blank. Severity
// is only required, not checked against the known levels.
func Validate(r *models.Report) error {
	if r == nil {
		return fmt.Errorf("%w: report is nil", ErrInvalidInput)
	}

	required := []struct {
		name, value string
	}{
		{"title", r.Title},
		{"description", r.Description},
		{"location", r.Location},
		{"severity", string(r.Severity)},
		{"reporter_name", r.ReporterName},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidInput, f.name)
		}
	}
	return nil
}

// storageErr wraps a driver error as ErrStorageUnavailable unless the caller
// gave up first, in which case the context error is returned as is.
func storageErr(ctx context.Context, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", msg, ctxErr)
	}
	return fmt.Errorf("%s: %w: %w", msg, ErrStorageUnavailable, err)
}
