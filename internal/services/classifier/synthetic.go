package classifier

import (
	"math"
	"math/rand"

	"SOCPulse/internal/domain/models"
	"SOCPulse/internal/services/features"
)

// SyntheticRows is the size of the generated fallback training set.
const SyntheticRows = 1000

var syntheticSeverities = []models.Severity{
	models.SeverityLow,
	models.SeverityMedium,
	models.SeverityHigh,
	models.SeverityCritical,
}

// Synthetic generates labeled rows that keep the pipeline runnable with
// no history. Indicator flags follow the label, counts are Poisson.
func Synthetic(n int, seed int64) []models.FeatureVector {
	rng := rand.New(rand.NewSource(seed))
	rows := make([]models.FeatureVector, n)
	for i := range rows {
		label := models.TrainingLabels[rng.Intn(len(models.TrainingLabels))]
		sev := syntheticSeverities[rng.Intn(len(syntheticSeverities))]
		hour := rng.Intn(24)
		vals := map[string]float64{
			features.AlertCount:                 poisson(rng, 5),
			features.SeverityScore:              float64(sev.Score()),
			features.HasMalwareHash:             flag(label == models.TypeMalware || label == models.TypePhishing),
			features.NetworkTrafficAnomaly:      float64(rng.Intn(2)),
			features.LoginFailureCount:          poisson(rng, 3),
			features.DataExfiltrationIndicators: flag(label == models.TypeDataLeak),
			features.PrivilegeChangeCount:       poisson(rng, 2),
			features.HourOfDay:                  float64(hour),
			features.IsBusinessHours:            flag(hour >= 8 && hour < 18),
			features.SourceIPCount:              poisson(rng, 10),
			features.AffectedSystems:            poisson(rng, 5),
			features.ThreatActorIndicators:      float64(rng.Intn(2)),
			features.KnownMalwareSignature:      flag(label == models.TypeMalware),
		}
		row := models.FeatureVector{
			Names:  append([]string(nil), features.Schema...),
			Values: make([]float64, len(features.Schema)),
			Label:  label,
		}
		for j, name := range features.Schema {
			row.Values[j] = vals[name]
		}
		rows[i] = row
	}
	return rows
}

// poisson draws with Knuth's method; lambda is small here.
func poisson(rng *rand.Rand, lambda float64) float64 {
	l := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return float64(k)
		}
		k++
	}
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
