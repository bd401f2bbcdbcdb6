package features

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"SOCPulse/internal/domain/models"
)

// ErrUnsupportedEvent is returned by Extract for unknown event types.
var ErrUnsupportedEvent = errors.New("unsupported event type")

// Extractor turns events into fixed-schema feature vectors. It is stateless
// and safe for concurrent use.
type Extractor struct {
	rules Rules
}

func NewExtractor(rules Rules) *Extractor {
	return &Extractor{rules: rules}
}

// Extract dispatches on the event type. Training sources come back labeled,
// an IncidentContext comes back unlabeled.
func (e *Extractor) Extract(event interface{}) (models.FeatureVector, error) {
	switch ev := event.(type) {
	case models.IncidentRecord:
		return e.Incident(ev), nil
	case *models.IncidentRecord:
		return e.Incident(*ev), nil
	case models.AnomalyRecord:
		return e.Anomaly(ev), nil
	case *models.AnomalyRecord:
		return e.Anomaly(*ev), nil
	case models.MetricSample:
		return e.Metric(ev), nil
	case *models.MetricSample:
		return e.Metric(*ev), nil
	case models.AuditEntry:
		return e.Audit(ev), nil
	case *models.AuditEntry:
		return e.Audit(*ev), nil
	case models.IncidentContext:
		return e.Context(ev), nil
	case *models.IncidentContext:
		return e.Context(*ev), nil
	default:
		return models.FeatureVector{}, fmt.Errorf("%w: %T", ErrUnsupportedEvent, event)
	}
}

// ClassifyIncidentType is the weak labeler used to build training data.
func (e *Extractor) ClassifyIncidentType(description, tags string) models.IncidentType {
	return e.rules.IncidentLabels.Label(description, tags)
}

// Incident extracts a labeled vector from a stored incident.
func (e *Extractor) Incident(rec models.IncidentRecord) models.FeatureVector {
	desc := strings.ToLower(rec.Description)
	tags := strings.ToLower(rec.Tags)

	vals := e.indicators(e.rules.Incident, desc)
	vals[SeverityScore] = float64(rec.Severity.Score())
	vals[AlertCount] = 1
	vals[SourceIPCount] = 1
	if tags != "" {
		parts := strings.Split(tags, ",")
		vals[AlertCount] = float64(len(parts))
		ips := 0
		for _, p := range parts {
			if strings.Contains(p, "ip") {
				ips++
			}
		}
		vals[SourceIPCount] = float64(ips)
	}
	vals[AffectedSystems] = 1
	setHour(vals, rec.CreatedAt)

	return build(vals, e.ClassifyIncidentType(desc, tags))
}

// Anomaly extracts a labeled vector from a stored anomaly.
func (e *Extractor) Anomaly(rec models.AnomalyRecord) models.FeatureVector {
	desc := strings.ToLower(rec.Description)

	vals := e.indicators(e.rules.Anomaly, desc)
	vals[AlertCount] = 1
	vals[SeverityScore] = float64(rec.Severity.Score())
	vals[SourceIPCount] = 1
	vals[AffectedSystems] = 1
	setHour(vals, rec.Timestamp)

	return build(vals, e.rules.AnomalyLabels.Label(string(rec.Category), desc))
}

// Metric extracts a baseline vector. Metric rows are always labeled normal.
func (e *Extractor) Metric(m models.MetricSample) models.FeatureVector {
	vals := map[string]float64{
		AlertCount:    0,
		SeverityScore: 1,
	}
	setHour(vals, m.Timestamp)
	return build(vals, models.TypeNormal)
}

// Audit extracts a labeled vector from an audit entry.
func (e *Extractor) Audit(a models.AuditEntry) models.FeatureVector {
	action := strings.ToLower(a.Action)
	resource := strings.ToLower(a.Resource)

	vals := e.indicators(e.rules.Audit, action)
	// the severity indicator is a flag: critical actions score 2, the rest 1
	vals[SeverityScore]++
	vals[SourceIPCount] = 1
	vals[AffectedSystems] = 1
	setHour(vals, a.Timestamp)

	return build(vals, e.rules.AuditLabels.Label(action, resource))
}

// Context extracts the unlabeled inference vector for an incident under analysis.
func (e *Extractor) Context(c models.IncidentContext) models.FeatureVector {
	desc := strings.ToLower(c.Description)

	vals := e.indicators(e.rules.Context, desc)
	vals[AlertCount] = float64(c.AlertCount)
	vals[SeverityScore] = float64(c.Severity.Score())
	vals[LoginFailureCount] = float64(c.LoginFailures)
	vals[PrivilegeChangeCount] = float64(c.PrivilegeChanges)
	vals[SourceIPCount] = float64(c.SourceIPs)
	vals[AffectedSystems] = float64(c.AffectedSystems)
	setHour(vals, c.ObservedAt)

	return build(vals, "")
}

func (e *Extractor) indicators(table map[string]Match, text string) map[string]float64 {
	vals := make(map[string]float64, len(Schema))
	for name, m := range table {
		if m.In(text) {
			vals[name] = 1
		} else {
			vals[name] = 0
		}
	}
	return vals
}

func setHour(vals map[string]float64, ts time.Time) {
	h := defaultHour
	if !ts.IsZero() {
		h = ts.Hour()
	}
	vals[HourOfDay] = float64(h)
	vals[IsBusinessHours] = isBusinessHour(h)
}

func build(vals map[string]float64, label models.IncidentType) models.FeatureVector {
	out := models.FeatureVector{
		Names:  append([]string(nil), Schema...),
		Values: make([]float64, len(Schema)),
		Label:  label,
	}
	for i, name := range Schema {
		v, ok := vals[name]
		if !ok {
			v = neutral(name)
		}
		out.Values[i] = v
	}
	return out
}
