package anomaly

import (
	"fmt"
	"time"

	"SOCPulse/internal/domain/models"
)

// Band maps scores strictly below Below to Severity.
type Band struct {
	Below    float64         `yaml:"below" json:"below"`
	Severity models.Severity `yaml:"severity" json:"severity"`
}

// CategorySpec describes how one category is trained and scored.
type CategorySpec struct {
	Category      models.AnomalyCategory
	Contamination float64
	// Bands are checked in order; the first band the score falls below wins,
	// otherwise the severity is low.
	Bands    []Band
	Features []string
	Vector   func(models.MetricSample) []float64
	Describe func(models.MetricSample) string
}

// Severity maps a decision score to a band.
func (s CategorySpec) Severity(score float64) models.Severity {
	for _, b := range s.Bands {
		if score < b.Below {
			return b.Severity
		}
	}
	return models.SeverityLow
}

// Auth-related categories get a four-band scale, resource categories three.
var (
	authBands = []Band{
		{Below: -0.6, Severity: models.SeverityCritical},
		{Below: -0.3, Severity: models.SeverityHigh},
		{Below: -0.1, Severity: models.SeverityMedium},
	}
	resourceBands = []Band{
		{Below: -0.5, Severity: models.SeverityHigh},
		{Below: -0.2, Severity: models.SeverityMedium},
	}
)

// weekday numbers Monday as 0.
func weekday(t time.Time) float64 {
	return float64((int(t.Weekday()) + 6) % 7)
}

func businessHours(t time.Time) float64 {
	if h := t.Hour(); h >= 8 && h < 18 {
		return 1
	}
	return 0
}

// DefaultSpecs returns the five stock categories keyed by name.
func DefaultSpecs() map[models.AnomalyCategory]CategorySpec {
	return map[models.AnomalyCategory]CategorySpec{
		models.CategoryCPU: {
			Category:      models.CategoryCPU,
			Contamination: 0.05,
			Bands:         resourceBands,
			Features:      []string{"cpu_percent", "memory_percent", "hour", "weekday"},
			Vector: func(m models.MetricSample) []float64 {
				return []float64{m.CPUPercent, m.MemoryPercent, float64(m.Timestamp.Hour()), weekday(m.Timestamp)}
			},
			Describe: func(m models.MetricSample) string {
				return fmt.Sprintf("CPU spike detected: %.1f%% usage", m.CPUPercent)
			},
		},
		models.CategoryMemory: {
			Category:      models.CategoryMemory,
			Contamination: 0.03,
			Bands:         resourceBands,
			Features:      []string{"memory_percent", "memory_used", "memory_total", "cpu_percent", "hour"},
			Vector: func(m models.MetricSample) []float64 {
				return []float64{m.MemoryPercent, float64(m.MemoryUsed), float64(m.MemoryTotal), m.CPUPercent, float64(m.Timestamp.Hour())}
			},
			Describe: func(m models.MetricSample) string {
				return fmt.Sprintf("Memory anomaly detected: %.1f%% usage", m.MemoryPercent)
			},
		},
		models.CategoryLogin: {
			Category:      models.CategoryLogin,
			Contamination: 0.02,
			Bands:         authBands,
			Features:      []string{"hour", "weekday", "login_count"},
			Vector: func(m models.MetricSample) []float64 {
				return []float64{float64(m.Timestamp.Hour()), weekday(m.Timestamp), m.LoginCount}
			},
			Describe: func(models.MetricSample) string {
				return "Unusual login pattern detected"
			},
		},
		models.CategoryNetworkTraffic: {
			Category:      models.CategoryNetworkTraffic,
			Contamination: 0.08,
			Bands:         resourceBands,
			Features:      []string{"net_bytes_sent", "net_bytes_recv", "hour"},
			Vector: func(m models.MetricSample) []float64 {
				return []float64{float64(m.NetBytesSent), float64(m.NetBytesRecv), float64(m.Timestamp.Hour())}
			},
			Describe: func(m models.MetricSample) string {
				return fmt.Sprintf("Network traffic anomaly detected: %d bytes sent", m.NetBytesSent)
			},
		},
		models.CategoryDataExfiltration: {
			Category:      models.CategoryDataExfiltration,
			Contamination: 0.01,
			Bands:         authBands,
			Features:      []string{"net_bytes_sent", "send_recv_ratio", "hour", "is_business_hours"},
			Vector: func(m models.MetricSample) []float64 {
				ratio := float64(m.NetBytesSent) / (float64(m.NetBytesRecv) + 1)
				return []float64{float64(m.NetBytesSent), ratio, float64(m.Timestamp.Hour()), businessHours(m.Timestamp)}
			},
			Describe: func(m models.MetricSample) string {
				return fmt.Sprintf("Possible data exfiltration: %d bytes sent", m.NetBytesSent)
			},
		},
	}
}

// SpecOverride carries configurable per-category tuning.
type SpecOverride struct {
	Contamination float64 `yaml:"contamination"`
	Bands         []Band  `yaml:"bands"`
}

// ApplyOverrides returns specs with contamination and bands replaced where set.
func ApplyOverrides(specs map[models.AnomalyCategory]CategorySpec, overrides map[string]SpecOverride) map[models.AnomalyCategory]CategorySpec {
	for name, o := range overrides {
		c := models.AnomalyCategory(name)
		spec, ok := specs[c]
		if !ok {
			continue
		}
		if o.Contamination > 0 && o.Contamination < 0.5 {
			spec.Contamination = o.Contamination
		}
		if len(o.Bands) > 0 {
			spec.Bands = o.Bands
		}
		specs[c] = spec
	}
	return specs
}
