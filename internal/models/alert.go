package models

import "time"

// AlertSummary is the trimmed view of a Critical or High report.
type AlertSummary struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Location  string    `json:"location"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

type SeverityBreakdown struct {
	Critical int `json:"Critical"`
	High     int `json:"High"`
	Medium   int `json:"Medium"`
	Low      int `json:"Low"`
}

// Add counts n reports of severity s. Unknown severities are ignored.
func (b *SeverityBreakdown) Add(s Severity, n int) {
	switch s {
	case SeverityCritical:
		b.Critical += n
	case SeverityHigh:
		b.High += n
	case SeverityMedium:
		b.Medium += n
	case SeverityLow:
		b.Low += n
	}
}

type Statistics struct {
	TotalReports      int               `json:"total_reports"`
	SeverityBreakdown SeverityBreakdown `json:"severity_breakdown"`
}
