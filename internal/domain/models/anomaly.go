package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// AnomalyCategory selects one per-category anomaly model.
type AnomalyCategory string

const (
	CategoryCPU              AnomalyCategory = "cpu"
	CategoryMemory           AnomalyCategory = "memory"
	CategoryLogin            AnomalyCategory = "login"
	CategoryNetworkTraffic   AnomalyCategory = "network_traffic"
	CategoryDataExfiltration AnomalyCategory = "data_exfiltration"
)

// AllCategories lists every anomaly category in training order.
var AllCategories = []AnomalyCategory{
	CategoryCPU,
	CategoryMemory,
	CategoryLogin,
	CategoryNetworkTraffic,
	CategoryDataExfiltration,
}

// ParseCategory validates a category name.
func ParseCategory(s string) (AnomalyCategory, error) {
	for _, c := range AllCategories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown anomaly category %q", s)
}

// AnomalyScore is the result of scoring one sample against one category model.
type AnomalyScore struct {
	Category    AnomalyCategory    `json:"type"`
	Score       float64            `json:"score"`
	Severity    Severity           `json:"severity"`
	IsAnomaly   bool               `json:"is_anomaly"`
	Description string             `json:"description"`
	Observed    map[string]float64 `json:"observed,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
	Note        string             `json:"note,omitempty"`
}

type anomalyDetails struct {
	Observed map[string]float64 `json:"observed,omitempty"`
	Note     string             `json:"note,omitempty"`
}

// Record converts the score to its persisted form. ID is left for the store;
// the timestamp is kept at millisecond precision in UTC, as stored.
func (s AnomalyScore) Record(source string) (AnomalyRecord, error) {
	details, err := json.Marshal(anomalyDetails{Observed: s.Observed, Note: s.Note})
	if err != nil {
		return AnomalyRecord{}, fmt.Errorf("marshal anomaly details: %w", err)
	}
	return AnomalyRecord{
		Timestamp:   s.Timestamp.UTC().Truncate(time.Millisecond),
		Category:    s.Category,
		Severity:    s.Severity,
		Score:       s.Score,
		IsAnomaly:   s.IsAnomaly,
		Description: s.Description,
		Details:     string(details),
		Source:      source,
	}, nil
}

// AnomalyScoreFromRecord is the inverse of AnomalyScore.Record.
func AnomalyScoreFromRecord(r AnomalyRecord) (AnomalyScore, error) {
	var d anomalyDetails
	if r.Details != "" {
		if err := json.Unmarshal([]byte(r.Details), &d); err != nil {
			return AnomalyScore{}, fmt.Errorf("unmarshal anomaly details: %w", err)
		}
	}
	return AnomalyScore{
		Category:    r.Category,
		Score:       r.Score,
		Severity:    r.Severity,
		IsAnomaly:   r.IsAnomaly,
		Description: r.Description,
		Observed:    d.Observed,
		Timestamp:   r.Timestamp,
		Note:        d.Note,
	}, nil
}
