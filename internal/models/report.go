package models

import "time"

type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Valid reports whether s is one of the four known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// IsAlert reports whether reports of this severity show up as alerts.
func (s Severity) IsAlert() bool {
	return s == SeverityCritical || s == SeverityHigh
}

type Report struct {
	ID           int64     `json:"id"` // assigned by the store
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	Severity     Severity  `json:"severity"`
	ReporterName string    `json:"reporter_name"`
	FilePath     *string   `json:"file_path"` // "uploads/<stored name>", nil when no file was attached
	CreatedAt    time.Time `json:"created_at"`
}

func (r *Report) HasFile() bool {
	return r.FilePath != nil && *r.FilePath != ""
}

// Summary returns the abbreviated alert view of the report.
func (r *Report) Summary() AlertSummary {
	return AlertSummary{
		ID:        r.ID,
		Title:     r.Title,
		Location:  r.Location,
		Severity:  r.Severity,
		CreatedAt: r.CreatedAt,
	}
}
