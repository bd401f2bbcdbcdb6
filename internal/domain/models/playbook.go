package models

import "time"

// ActionStatus is the outcome of one playbook action.
type ActionStatus string

const (
	ActionSuccess ActionStatus = "success"
	ActionFailed  ActionStatus = "failed"
	ActionSkipped ActionStatus = "skipped"
)

// ActionResult is one entry of the playbook action log.
type ActionResult struct {
	Action     string       `json:"action"`
	Status     ActionStatus `json:"status"`
	Output     string       `json:"output,omitempty"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// DecisionInput is everything tier selection looks at.
type DecisionInput struct {
	PredictedType IncidentType `json:"predicted_type"`
	Confidence    float64      `json:"confidence"`
	RiskScore     float64      `json:"risk_score"`
	RuleLevel     int          `json:"rule_level"`
}

// PlaybookDecision is built fresh per invocation; only its audit trail is stored.
type PlaybookDecision struct {
	Input   DecisionInput  `json:"input"`
	Tier    string         `json:"tier"`
	Actions []string       `json:"actions"`
	Log     []ActionResult `json:"action_log"`
}

// Count returns how many log entries have the given status.
func (d PlaybookDecision) Count(status ActionStatus) int {
	n := 0
	for _, r := range d.Log {
		if r.Status == status {
			n++
		}
	}
	return n
}

// AutomatedResponse is returned by the automated response pipeline.
type AutomatedResponse struct {
	AlertID         string               `json:"alert_id"`
	IncidentID      int64                `json:"incident_id"`
	SelectedTier    string               `json:"selected_tier"`
	Decision        DecisionInput        `json:"decision"`
	ActionLog       []ActionResult       `json:"action_log"`
	Classification  ClassificationResult `json:"classification"`
	UpdatedSeverity *Severity            `json:"updated_severity,omitempty"`
	EscalationError string               `json:"escalation_error,omitempty"`
	Status          string               `json:"status"`
}
