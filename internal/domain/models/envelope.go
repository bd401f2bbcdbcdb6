package models

import "time"

// EventType names a broadcast envelope.
type EventType string

const (
	EventAnomalyDetected          EventType = "anomaly_detected"
	EventAnalysisComplete         EventType = "ai_analysis_complete"
	EventAutomatedResponse        EventType = "automated_response_executed"
	EventThreatIntelligenceUpdate EventType = "threat_intelligence_update"
	EventModelUpdated             EventType = "ai_model_updated"
	EventSOCNotification          EventType = "soc_notification"
	EventOnCallEscalation         EventType = "oncall_escalation"
)

// Envelope is the transport-agnostic push message.
type Envelope struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEnvelope stamps data with the current UTC time.
func NewEnvelope(t EventType, data interface{}) Envelope {
	return Envelope{Type: t, Data: data, Timestamp: time.Now().UTC()}
}
