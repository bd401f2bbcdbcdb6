package repository

import (
	"context"
	"errors"
	"time"

	"SOCPulse/internal/domain/models"
)

// ErrNotFound is returned by stores when a keyed lookup misses.
var ErrNotFound = errors.New("not found")

// IncidentStore holds incident cases and their analyses.
type IncidentStore interface {
	RecentIncidents(ctx context.Context, limit int) ([]models.IncidentRecord, error)
	GetIncident(ctx context.Context, id int64) (models.IncidentRecord, error)
	InsertIncident(ctx context.Context, rec models.IncidentRecord) (int64, error)
	// UpsertAlertIncident returns the incident keyed on rec.AlertID,
	// inserting rec when no earlier delivery created one. created reports
	// whether the row is new.
	UpsertAlertIncident(ctx context.Context, rec models.IncidentRecord) (inc models.IncidentRecord, created bool, err error)
	UpdateSeverity(ctx context.Context, id int64, severity models.Severity) error
	// EscalateSeverity sets severity and marks the incident escalated. It
	// reports false when the incident was already escalated.
	EscalateSeverity(ctx context.Context, id int64, severity models.Severity) (bool, error)
	UpdateStatus(ctx context.Context, id int64, status models.IncidentStatus) error
	SaveAnalysis(ctx context.Context, a models.IncidentAnalysis) (int64, error)
	LatestAnalysis(ctx context.Context, incidentID int64) (models.IncidentAnalysis, error)
}

// AuditStore is the append-only audit trail.
type AuditStore interface {
	RecentAudits(ctx context.Context, limit int) ([]models.AuditEntry, error)
	AuditsSince(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error)
	InsertAudit(ctx context.Context, e models.AuditEntry) error
}

// TelemetryStore holds metric samples and flagged anomalies.
type TelemetryStore interface {
	RecentMetrics(ctx context.Context, limit int) ([]models.MetricSample, error)
	MetricsSince(ctx context.Context, since time.Time, limit int) ([]models.MetricSample, error)
	InsertMetric(ctx context.Context, m models.MetricSample) error
	RecentAnomalies(ctx context.Context, limit int) ([]models.AnomalyRecord, error)
	InsertAnomaly(ctx context.Context, r models.AnomalyRecord) (string, error)
}

// ModelStore keeps opaque model artifacts keyed by name.
type ModelStore interface {
	Save(ctx context.Context, key string, blob []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Broadcaster pushes envelopes to real-time subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, env models.Envelope) error
}

type Metrics interface {
	RecordAnomaly(category, severity string)
	RecordClassification(predictedType string, fallback bool)
	RecordPlaybookRun(tier string)
	RecordPlaybookAction(tier, action, status string)
	RecordTraining(task, outcome string, seconds float64)
	SetModelLoaded(task string, loaded bool)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordAnomaly(string, string) {}
func (NopMetrics) RecordClassification(string, bool) {}
func (NopMetrics) RecordPlaybookRun(string) {}
func (NopMetrics) RecordPlaybookAction(string, string, string) {}
func (NopMetrics) RecordTraining(string, string, float64) {}
func (NopMetrics) SetModelLoaded(string, bool) {}
func (NopMetrics) RecordError(string) {}
func (NopMetrics) RecordLatency(string, float64) {}
