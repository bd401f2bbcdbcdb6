package anomaly

import (
	"encoding/json"
	"fmt"
	"time"

	"SOCPulse/internal/domain/models"
	"SOCPulse/pkg/util"
)

// Model is the persisted scaler + forest pair for one category.
type Model struct {
	Category      models.AnomalyCategory `json:"category"`
	Features      []string               `json:"features"`
	Scaler        StandardScaler         `json:"scaler"`
	Forest        *IsolationForest       `json:"forest"`
	Contamination float64                `json:"contamination"`
	Offset        float64                `json:"offset"`
	Samples       int                    `json:"samples"`
	TrainedAt     time.Time              `json:"trained_at"`
}

// ModelKey is the artifact key for a category.
func ModelKey(c models.AnomalyCategory) string {
	return "anomaly/" + string(c)
}

func fitModel(spec CategorySpec, rows [][]float64, cfg ForestConfig) *Model {
	scaler := FitScaler(rows)
	scaled := scaler.TransformAll(rows)
	forest := FitForest(scaled, cfg)

	scores := make([]float64, len(scaled))
	for i, r := range scaled {
		scores[i] = forest.ScoreSample(r)
	}

	return &Model{
		Category:      spec.Category,
		Features:      append([]string(nil), spec.Features...),
		Scaler:        scaler,
		Forest:        forest,
		Contamination: spec.Contamination,
		Offset:        util.Quantile(scores, spec.Contamination),
		Samples:       len(rows),
		TrainedAt:     time.Now().UTC(),
	}
}

// Decision returns score_samples - offset; negative means outlier.
func (m *Model) Decision(row []float64) (float64, error) {
	if len(row) != len(m.Features) || len(m.Scaler.Mean) != len(m.Features) {
		return 0, fmt.Errorf("%w: %s model has %d features, got %d",
			models.ErrSchemaMismatch, m.Category, len(m.Features), len(row))
	}
	return m.Forest.ScoreSample(m.Scaler.Transform(row)) - m.Offset, nil
}

// Marshal encodes the model artifact.
func (m *Model) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalModel decodes an artifact and checks it against spec.
func UnmarshalModel(b []byte, spec CategorySpec) (*Model, error) {
	var m Model
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode %s model: %w", spec.Category, err)
	}
	if m.Forest == nil || m.Category != spec.Category {
		return nil, fmt.Errorf("%w: artifact is not a %s model", models.ErrSchemaMismatch, spec.Category)
	}
	if len(m.Features) != len(spec.Features) {
		return nil, fmt.Errorf("%w: %s artifact features %v, want %v", models.ErrSchemaMismatch, spec.Category, m.Features, spec.Features)
	}
	for i := range m.Features {
		if m.Features[i] != spec.Features[i] {
			return nil, fmt.Errorf("%w: %s artifact features %v, want %v", models.ErrSchemaMismatch, spec.Category, m.Features, spec.Features)
		}
	}
	return &m, nil
}
