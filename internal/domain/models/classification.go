package models

import "time"

// TypeProbability is one entry of the ranked class distribution.
type TypeProbability struct {
	Type        IncidentType `json:"type"`
	Probability float64      `json:"probability"`
}

// ClassificationResult is produced once per classification call.
type ClassificationResult struct {
	PredictedType      IncidentType      `json:"predicted_type"`
	Confidence         float64           `json:"confidence"`
	AlternativeTypes   []IncidentType    `json:"alternative_types"`
	Probabilities      []TypeProbability `json:"probabilities,omitempty"`
	SeverityAssessment Severity          `json:"severity_assessment"`
	RecommendedActions []string          `json:"recommended_actions"`
	RiskScore          float64           `json:"risk_score"`
	AnalysisTimestamp  time.Time         `json:"analysis_timestamp"`
	Fallback           bool              `json:"fallback"`
	Note               string            `json:"note,omitempty"`
}

// IncidentContext is the inference-time view of an incident: the stored
// record plus counters parsed from tags and related telemetry.
type IncidentContext struct {
	IncidentID       int64     `json:"incident_id,omitempty"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Severity         Severity  `json:"severity"`
	Tags             string    `json:"tags"`
	AlertCount       int       `json:"alert_count"`
	SourceIPs        int       `json:"source_ips"`
	AffectedSystems  int       `json:"affected_systems"`
	LoginFailures    int       `json:"login_failures"`
	PrivilegeChanges int       `json:"privilege_changes"`
	BusinessCritical bool      `json:"is_business_critical"`
	ObservedAt       time.Time `json:"observed_at"`

	RecentLogins     int      `json:"recent_logins"`
	FailedAuth       int      `json:"failed_auth"`
	AdminActions     int      `json:"admin_actions"`
	DataAccess       int      `json:"data_access"`
	AvgCPUPercent    *float64 `json:"avg_cpu_percent,omitempty"`
	AvgMemoryPercent *float64 `json:"avg_memory_percent,omitempty"`
}

// IncidentAnalysis is a stored classification of one incident.
type IncidentAnalysis struct {
	ID              int64                `json:"id"`
	IncidentID      int64                `json:"incident_id"`
	Result          ClassificationResult `json:"analysis"`
	SeverityUpdated bool                 `json:"severity_updated"`
	CreatedAt       time.Time            `json:"created_at"`
}
