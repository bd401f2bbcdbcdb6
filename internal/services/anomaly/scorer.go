package anomaly

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"SOCPulse/internal/domain/models"
	applogger "SOCPulse/pkg/logger"
)

// DefaultMinSamples is the smallest training set accepted per category.
const DefaultMinSamples = 50

const noteUnavailable = "anomaly model not available for category"

// Config tunes training.
type Config struct {
	Forest     ForestConfig
	MinSamples int
}

// Scorer trains and applies the per-category anomaly models.
type Scorer struct {
	specs    map[models.AnomalyCategory]CategorySpec
	registry *Registry
	cfg      Config
	logger   *applogger.Logger
}

func NewScorer(specs map[models.AnomalyCategory]CategorySpec, registry *Registry, cfg Config, logger *applogger.Logger) *Scorer {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.Forest.Trees <= 0 {
		cfg.Forest.Trees = 100
	}
	if cfg.Forest.MaxSamples <= 0 {
		cfg.Forest.MaxSamples = 256
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &Scorer{specs: specs, registry: registry, cfg: cfg, logger: logger}
}

// Registry exposes the active model set.
func (s *Scorer) Registry() *Registry { return s.registry }

// Spec returns the category spec.
func (s *Scorer) Spec(c models.AnomalyCategory) (CategorySpec, error) {
	spec, ok := s.specs[c]
	if !ok {
		return CategorySpec{}, fmt.Errorf("unknown anomaly category %q", c)
	}
	return spec, nil
}

// Fit builds a new model without activating it.
func (s *Scorer) Fit(c models.AnomalyCategory, samples []models.MetricSample) (*Model, error) {
	spec, err := s.Spec(c)
	if err != nil {
		return nil, err
	}
	if len(samples) < s.cfg.MinSamples {
		s.logger.Warn("anomaly training skipped: not enough samples",
			applogger.String("category", string(c)),
			applogger.Int("samples", len(samples)),
			applogger.Int("required", s.cfg.MinSamples),
		)
		return nil, fmt.Errorf("%w: %s has %d samples, need %d", models.ErrInsufficientData, c, len(samples), s.cfg.MinSamples)
	}

	rows := make([][]float64, len(samples))
	for i, m := range samples {
		rows[i] = spec.Vector(m)
	}
	return fitModel(spec, rows, s.cfg.Forest), nil
}

// Activate makes m the live model for its category.
func (s *Scorer) Activate(m *Model) {
	s.registry.Swap(m)
}

// Train fits and activates in one step. On error the active model is untouched.
func (s *Scorer) Train(c models.AnomalyCategory, samples []models.MetricSample) (*Model, error) {
	m, err := s.Fit(c, samples)
	if err != nil {
		return nil, err
	}
	s.Activate(m)
	return m, nil
}

// Load decodes a stored artifact and activates it.
func (s *Scorer) Load(c models.AnomalyCategory, blob []byte) error {
	spec, err := s.Spec(c)
	if err != nil {
		return err
	}
	m, err := UnmarshalModel(blob, spec)
	if err != nil {
		return err
	}
	s.Activate(m)
	return nil
}

// Score applies the category model to one sample. Without a model it
// returns a neutral, non-anomalous score together with ErrModelUnavailable.
func (s *Scorer) Score(c models.AnomalyCategory, sample models.MetricSample) (models.AnomalyScore, error) {
	spec, err := s.Spec(c)
	if err != nil {
		return models.AnomalyScore{}, err
	}
	res := models.AnomalyScore{
		Category:  c,
		Severity:  models.SeverityLow,
		Timestamp: sample.Timestamp,
	}

	m := s.registry.Get(c)
	if m == nil {
		res.Note = noteUnavailable
		return res, models.ErrModelUnavailable
	}

	row := spec.Vector(sample)
	score, err := m.Decision(row)
	if err != nil {
		return models.AnomalyScore{}, err
	}

	res.Score = score
	res.IsAnomaly = score < 0
	res.Severity = spec.Severity(score)
	res.Observed = make(map[string]float64, len(row))
	for i, name := range spec.Features {
		res.Observed[name] = row[i]
	}
	if res.IsAnomaly {
		res.Description = spec.Describe(sample)
	}
	return res, nil
}

// ScoreAll scores sample against every loaded category, in category order.
// Categories without a model are skipped.
func (s *Scorer) ScoreAll(sample models.MetricSample) ([]models.AnomalyScore, error) {
	var out []models.AnomalyScore
	for _, c := range s.categories() {
		res, err := s.Score(c, sample)
		if errors.Is(err, models.ErrModelUnavailable) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *Scorer) categories() []models.AnomalyCategory {
	out := make([]models.AnomalyCategory, 0, len(s.specs))
	for _, c := range models.AllCategories {
		if _, ok := s.specs[c]; ok {
			out = append(out, c)
		}
	}
	// custom categories after the stock ones
	var extra []string
	for c := range s.specs {
		known := false
		for _, k := range models.AllCategories {
			if k == c {
				known = true
				break
			}
		}
		if !known {
			extra = append(extra, string(c))
		}
	}
	sort.Strings(extra)
	for _, c := range extra {
		out = append(out, models.AnomalyCategory(c))
	}
	return out
}

// SyntheticLoginSamples builds a weekday/hour login cadence until real
// login telemetry exists: ten logins per hour in weekday office hours,
// three otherwise, with gaussian noise.
func SyntheticLoginSamples(seed int64) []models.MetricSample {
	rng := rand.New(rand.NewSource(seed))
	var out []models.MetricSample
	for hour := 0; hour < 24; hour++ {
		for wd := 0; wd < 7; wd++ {
			n := 3
			if wd < 5 && hour >= 8 && hour <= 18 {
				n = 10
			}
			// 2024-01-01 is a Monday
			ts := time.Date(2024, 1, 1+wd, hour, 0, 0, 0, time.UTC)
			for i := 0; i < n; i++ {
				out = append(out, models.MetricSample{
					Timestamp:  ts,
					LoginCount: float64(n) + rng.NormFloat64()*2,
				})
			}
		}
	}
	return out
}
