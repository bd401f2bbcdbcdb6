package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"SOCPulse/internal/domain/models"
	"SOCPulse/internal/services/features"
	"SOCPulse/internal/services/risk"
	applogger "SOCPulse/pkg/logger"
)

// ModelKey is the artifact key of the incident classifier.
const ModelKey = "classifier/incident"

// NoteFallback marks results produced without a trained model.
const NoteFallback = "model not available, using rule-based analysis"

const fallbackRisk = 50.0

// Source tells where a training set came from.
type Source string

const (
	SourceReal      Source = "real"
	SourceSynthetic Source = "synthetic"
)

// TrainingData is the outcome of training-set selection.
type TrainingData struct {
	Rows   []models.FeatureVector
	Source Source
	// Reason explains a synthetic selection.
	Reason string
}

// Config tunes training.
type Config struct {
	MinRealRows   int          `yaml:"min_real_rows" default:"100" validate:"gte=0"`
	SyntheticSeed int64        `yaml:"synthetic_seed" default:"42"`
	Primary       ForestConfig `yaml:"primary"`
	Fallback      ForestConfig `yaml:"fallback"`
}

// DefaultConfig returns the stock training setup.
func DefaultConfig() Config {
	return Config{
		MinRealRows:   100,
		SyntheticSeed: 42,
		Primary:       PrimaryForest(),
		Fallback:      FallbackForest(),
	}
}

// Model is the persisted classifier artifact. The normalizer fitted on the
// training rows travels with the forest and is applied at inference.
type Model struct {
	Features   []string            `json:"features"`
	Normalizer features.Normalizer `json:"normalizer"`
	Forest     *RandomForest       `json:"forest"`
	Source     Source              `json:"source"`
	Fallback   bool                `json:"fallback"`
	Samples    int                 `json:"samples"`
	TrainedAt  time.Time           `json:"trained_at"`
}

// Marshal encodes the artifact.
func (m *Model) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalModel decodes an artifact and checks its feature schema.
func UnmarshalModel(b []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode classifier model: %w", err)
	}
	if m.Forest == nil || len(m.Forest.Classes) == 0 {
		return nil, fmt.Errorf("%w: classifier artifact has no forest", models.ErrSchemaMismatch)
	}
	probe := models.FeatureVector{Names: m.Features, Values: make([]float64, len(m.Features))}
	if !probe.HasSchema(features.Schema) {
		return nil, fmt.Errorf("%w: classifier artifact features %v", models.ErrSchemaMismatch, m.Features)
	}
	return &m, nil
}

// Classifier holds the active incident model. Predictions read it through
// an atomic pointer; training publishes a new model with one swap.
type Classifier struct {
	model     atomic.Pointer[Model]
	extractor *features.Extractor
	assessor  *risk.Assessor
	cfg       Config
	logger    *applogger.Logger
	now       func() time.Time
}

func New(extractor *features.Extractor, assessor *risk.Assessor, cfg Config, logger *applogger.Logger) *Classifier {
	if cfg.Primary.Trees <= 0 {
		cfg.Primary = PrimaryForest()
	}
	if cfg.Fallback.Trees <= 0 {
		cfg.Fallback = FallbackForest()
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &Classifier{
		extractor: extractor,
		assessor:  assessor,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SelectTrainingData picks the real rows when they loaded and are plentiful
// enough, the synthetic set otherwise.
func (c *Classifier) SelectTrainingData(rows []models.FeatureVector, loadErr error) TrainingData {
	switch {
	case loadErr != nil:
		return c.synthetic(fmt.Sprintf("loading real data failed: %v", loadErr))
	case len(rows) < c.cfg.MinRealRows:
		return c.synthetic(fmt.Sprintf("only %d real rows, need %d", len(rows), c.cfg.MinRealRows))
	default:
		return TrainingData{Rows: rows, Source: SourceReal}
	}
}

func (c *Classifier) synthetic(reason string) TrainingData {
	return TrainingData{
		Rows:   Synthetic(SyntheticRows, c.cfg.SyntheticSeed),
		Source: SourceSynthetic,
		Reason: reason,
	}
}

// Fit builds a model without activating it. A failed primary fit falls
// back to the synthetic set with the fallback forest settings.
func (c *Classifier) Fit(data TrainingData) (*Model, error) {
	if data.Source == SourceSynthetic {
		c.logger.Warn("classifier: training on synthetic data", applogger.String("reason", data.Reason))
	}

	m, err := c.fit(data.Rows, data.Source, c.cfg.Primary)
	if err == nil {
		return m, nil
	}
	if errors.Is(err, models.ErrSchemaMismatch) || errors.Is(err, models.ErrInvalidInput) {
		return nil, err
	}

	c.logger.Warn("classifier: primary fit failed, retrying on synthetic data",
		applogger.Error(err),
		applogger.String("source", string(data.Source)),
		applogger.Int("rows", len(data.Rows)),
	)
	m, err = c.fit(Synthetic(SyntheticRows, c.cfg.SyntheticSeed), SourceSynthetic, c.cfg.Fallback)
	if err != nil {
		return nil, fmt.Errorf("fallback fit: %w", err)
	}
	m.Fallback = true
	return m, nil
}

func (c *Classifier) fit(rows []models.FeatureVector, source Source, cfg ForestConfig) (*Model, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no training rows", models.ErrInsufficientData)
	}
	for i, r := range rows {
		if !r.HasSchema(features.Schema) {
			return nil, fmt.Errorf("%w: training row %d has features %v", models.ErrSchemaMismatch, i, r.Names)
		}
		if r.Label == "" {
			return nil, fmt.Errorf("%w: training row %d is unlabeled", models.ErrInvalidInput, i)
		}
	}

	norm := features.FitNormalizer(rows, features.CountFeatures)
	X := make([][]float64, len(rows))
	y := make([]models.IncidentType, len(rows))
	for i, r := range norm.ApplyAll(rows) {
		X[i] = r.Values
		y[i] = r.Label
	}

	forest, err := FitForest(X, y, cfg)
	if err != nil {
		return nil, err
	}
	return &Model{
		Features:   append([]string(nil), features.Schema...),
		Normalizer: norm,
		Forest:     forest,
		Source:     source,
		Samples:    len(rows),
		TrainedAt:  c.now(),
	}, nil
}

// Train fits and activates. On error the active model is untouched.
func (c *Classifier) Train(data TrainingData) (*Model, error) {
	m, err := c.Fit(data)
	if err != nil {
		return nil, err
	}
	c.Activate(m)
	c.logger.Info("classifier: model trained",
		applogger.String("source", string(m.Source)),
		applogger.Int("samples", m.Samples),
		applogger.Int("classes", len(m.Forest.Classes)),
		applogger.Bool("fallback", m.Fallback),
	)
	return m, nil
}

// Activate makes m the live model.
func (c *Classifier) Activate(m *Model) {
	c.model.Store(m)
}

// Model returns the active model or nil.
func (c *Classifier) Model() *Model {
	return c.model.Load()
}

// Available reports whether a model is loaded.
func (c *Classifier) Available() bool {
	return c.model.Load() != nil
}

// Load decodes a stored artifact and activates it.
func (c *Classifier) Load(blob []byte) error {
	m, err := UnmarshalModel(blob)
	if err != nil {
		return err
	}
	c.Activate(m)
	return nil
}

// Predict returns the class distribution for v, sorted by probability.
func (c *Classifier) Predict(v models.FeatureVector) ([]models.TypeProbability, error) {
	m := c.model.Load()
	if m == nil {
		return nil, models.ErrModelUnavailable
	}
	if !v.HasSchema(m.Features) {
		return nil, fmt.Errorf("%w: got features %v", models.ErrSchemaMismatch, v.Names)
	}

	proba := m.Forest.PredictProba(m.Normalizer.Apply(v).Values)
	out := make([]models.TypeProbability, len(proba))
	for i, p := range proba {
		out[i] = models.TypeProbability{Type: m.Forest.Classes[i], Probability: p}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	return out, nil
}

// Classify runs the full analysis for one incident. Without a model it
// returns the fallback result; a schema mismatch is returned as an error.
func (c *Classifier) Classify(ic models.IncidentContext) (models.ClassificationResult, error) {
	ts := ic.ObservedAt
	if ts.IsZero() {
		ts = c.now()
	}

	ranked, err := c.Predict(c.extractor.Context(ic))
	if errors.Is(err, models.ErrModelUnavailable) {
		return c.Fallback(ic, ts), nil
	}
	if err != nil {
		return models.ClassificationResult{}, err
	}

	top := ranked[0]
	alternatives := []models.IncidentType{}
	for _, p := range ranked[1:] {
		if len(alternatives) == 2 {
			break
		}
		alternatives = append(alternatives, p.Type)
	}

	return models.ClassificationResult{
		PredictedType:      top.Type,
		Confidence:         top.Probability,
		AlternativeTypes:   alternatives,
		Probabilities:      ranked,
		SeverityAssessment: c.assessor.AssessSeverity(ic.Severity, top.Type),
		RecommendedActions: RecommendedActions(top.Type),
		RiskScore: c.assessor.RiskScore(risk.Factors{
			Severity:         ic.Severity,
			Confidence:       top.Probability,
			AffectedSystems:  ic.AffectedSystems,
			BusinessCritical: ic.BusinessCritical,
		}),
		AnalysisTimestamp: ts,
	}, nil
}

// Fallback is the fixed result used while no model is loaded.
func (c *Classifier) Fallback(ic models.IncidentContext, ts time.Time) models.ClassificationResult {
	sev := ic.Severity
	if !sev.Valid() {
		sev = models.SeverityMedium
	}
	return models.ClassificationResult{
		PredictedType:      models.TypeUnknown,
		Confidence:         0,
		AlternativeTypes:   []models.IncidentType{},
		SeverityAssessment: sev,
		RecommendedActions: append([]string(nil), fallbackActions...),
		RiskScore:          fallbackRisk,
		AnalysisTimestamp:  ts,
		Fallback:           true,
		Note:               NoteFallback,
	}
}
