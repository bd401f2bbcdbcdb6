package service

import (
	"context"

	"SOCPulse/internal/domain/models"
)

// HashReport is a threat-intel verdict for one file hash.
type HashReport struct {
	Hash       string                 `json:"hash"`
	Found      bool                   `json:"found"`
	Malicious  int                    `json:"malicious"`
	Suspicious int                    `json:"suspicious"`
	Harmless   int                    `json:"harmless"`
	Undetected int                    `json:"undetected"`
	Provider   string                 `json:"provider"`
	Raw        map[string]interface{} `json:"raw,omitempty"`
}

// ThreatIntel enriches indicators.
type ThreatIntel interface {
	LookupHash(ctx context.Context, hash string) (HashReport, error)
}

// ContainmentResult describes what an endpoint manager did.
type ContainmentResult struct {
	Target string `json:"target"`
	Action string `json:"action"`
	Method string `json:"method"`
	Status string `json:"status"`
}

// Containment performs blocking and isolation on managed endpoints.
type Containment interface {
	BlockHash(ctx context.Context, hash string) (ContainmentResult, error)
	BlockIP(ctx context.Context, ip string) (ContainmentResult, error)
	IsolateHost(ctx context.Context, host string) (ContainmentResult, error)
	ThrottleSource(ctx context.Context, ip string) (ContainmentResult, error)
	QuarantineMessage(ctx context.Context, messageID string) (ContainmentResult, error)
	RevokeAccess(ctx context.Context, user string, mode string) (ContainmentResult, error)
}

// Notification is a message for the SOC channel or on-call rotation.
type Notification struct {
	IncidentID int64           `json:"incident_id"`
	AlertID    string          `json:"alert_id,omitempty"`
	Title      string          `json:"title"`
	Severity   models.Severity `json:"severity"`
	Tier       string          `json:"tier"`
	Summary    string          `json:"summary"`
}

// Notifier reaches humans.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Escalate(ctx context.Context, n Notification) error
}

// CaseManager opens tracked cases for incidents.
type CaseManager interface {
	OpenCase(ctx context.Context, incident models.IncidentRecord, summary string) (string, error)
}

// Deployment is returned by a ModelDeployer.
type Deployment struct {
	Provider    string `json:"provider"`
	EndpointURL string `json:"endpoint_url"`
	ModelID     string `json:"model_id"`
	Location    string `json:"location,omitempty"`
	Status      string `json:"status"`
}

// ModelDeployer ships a classifier artifact to a cloud inference service.
type ModelDeployer interface {
	Provider() string
	Deploy(ctx context.Context, modelKey string, artifact []byte) (Deployment, error)
}

// MetricsSource samples live host telemetry.
type MetricsSource interface {
	Sample(ctx context.Context) (models.MetricSample, error)
}
