package models

import (
	"strings"
	"time"
)

// Severity is the shared low/medium/high/critical scale.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Score maps the label to 1..4. Unknown labels score as medium.
func (s Severity) Score() int {
	switch Severity(strings.ToLower(string(s))) {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 2
	}
}

// Valid reports whether s is one of the four known labels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SeverityFromScore maps 1..4 back to a label, clamping out-of-range input.
func SeverityFromScore(score int) Severity {
	switch {
	case score <= 1:
		return SeverityLow
	case score == 2:
		return SeverityMedium
	case score == 3:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// ParseSeverity lower-cases s and falls back to medium for unknown labels.
func ParseSeverity(s string) Severity {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Valid() {
		return sev
	}
	return SeverityMedium
}

// MetricSample is one snapshot of host telemetry.
type MetricSample struct {
	Timestamp     time.Time `json:"timestamp"`
	Host          string    `json:"host"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsed    uint64    `json:"memory_used"`
	MemoryTotal   uint64    `json:"memory_total"`
	NetBytesSent  uint64    `json:"net_bytes_sent"`
	NetBytesRecv  uint64    `json:"net_bytes_recv"`
	LoginCount    float64   `json:"login_count"`
}

// AuditEntry is an append-only record of an operator or system action.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	UserSub   string    `json:"user_sub"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Details   string    `json:"details"`
}

// IncidentStatus tracks case handling.
type IncidentStatus string

const (
	IncidentOpen       IncidentStatus = "open"
	IncidentInProgress IncidentStatus = "in_progress"
	IncidentClosed     IncidentStatus = "closed"
)

// IncidentRecord is a case in the incident store.
type IncidentRecord struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	Status      IncidentStatus `json:"status"`
	Tags        string         `json:"tags"`
	// AlertID is set for incidents opened from an alert and keys redelivery.
	AlertID string `json:"alert_id,omitempty"`
	// Escalated is set once an automated response raised the severity.
	Escalated bool      `json:"escalated"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TagMap parses "key:value" pairs out of the comma separated tag string.
// Entries without a colon are ignored.
func (r IncidentRecord) TagMap() map[string]string {
	out := make(map[string]string)
	for _, tag := range strings.Split(r.Tags, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(tag), ":")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// AnomalyRecord is the persisted form of a flagged AnomalyScore.
type AnomalyRecord struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	Category     AnomalyCategory `json:"type"`
	Severity     Severity        `json:"severity"`
	Score        float64         `json:"score"`
	IsAnomaly    bool            `json:"is_anomaly"`
	Description  string          `json:"description"`
	Details      string          `json:"details"`
	Source       string          `json:"source"`
	Acknowledged bool            `json:"acknowledged"`
}
