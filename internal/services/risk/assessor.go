package risk

import (
	"SOCPulse/internal/domain/models"
	"SOCPulse/pkg/util"
)

// Weights are the risk factor weights. They should sum to 1; the score is
// clamped to [0,100] either way.
type Weights struct {
	Severity    float64 `yaml:"severity" default:"0.4" validate:"gte=0,lte=1"`
	Confidence  float64 `yaml:"confidence" default:"0.3" validate:"gte=0,lte=1"`
	Impact      float64 `yaml:"impact" default:"0.2" validate:"gte=0,lte=1"`
	Criticality float64 `yaml:"criticality" default:"0.1" validate:"gte=0,lte=1"`
}

// Config tunes the assessor.
type Config struct {
	Weights Weights `yaml:"weights"`
	// ImpactScale is the affected-system count that saturates the impact factor.
	ImpactScale float64 `yaml:"impact_scale" default:"10" validate:"gt=0"`
	// NonCritical is the criticality factor for assets not flagged business critical.
	NonCritical float64 `yaml:"non_critical" default:"0.5" validate:"gte=0,lte=1"`
	// Boosts raise the base severity score per predicted type.
	Boosts map[models.IncidentType]int `yaml:"boosts"`
}

// DefaultBoosts is the stock severity boost table.
func DefaultBoosts() map[models.IncidentType]int {
	return map[models.IncidentType]int{
		models.TypeDataLeak:            2,
		models.TypeIntrusion:           2,
		models.TypePrivilegeEscalation: 2,
		models.TypeDenialOfService:     1,
		models.TypeMalware:             1,
		models.TypePhishing:            1,
	}
}

// DefaultConfig returns the stock weights and boosts.
func DefaultConfig() Config {
	return Config{
		Weights:     Weights{Severity: 0.4, Confidence: 0.3, Impact: 0.2, Criticality: 0.1},
		ImpactScale: 10,
		NonCritical: 0.5,
		Boosts:      DefaultBoosts(),
	}
}

// Factors are the inputs of one risk computation.
type Factors struct {
	Severity         models.Severity
	Confidence       float64
	AffectedSystems  int
	BusinessCritical bool
}

// Assessor re-assesses severity and computes risk scores. Safe for concurrent use.
type Assessor struct {
	cfg Config
}

func NewAssessor(cfg Config) *Assessor {
	if cfg.ImpactScale <= 0 {
		cfg.ImpactScale = 10
	}
	if cfg.Boosts == nil {
		cfg.Boosts = DefaultBoosts()
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultConfig().Weights
	}
	return &Assessor{cfg: cfg}
}

// AssessSeverity boosts base by the predicted type, capped at critical.
// Negative boosts are ignored so the result never drops below base.
func (a *Assessor) AssessSeverity(base models.Severity, predicted models.IncidentType) models.Severity {
	boost := a.cfg.Boosts[predicted]
	if boost < 0 {
		boost = 0
	}
	score := base.Score() + boost
	if score > 4 {
		score = 4
	}
	return models.SeverityFromScore(score)
}

// RiskScore returns the weighted 0..100 risk, rounded to 2 decimals.
func (a *Assessor) RiskScore(f Factors) float64 {
	w := a.cfg.Weights
	criticality := a.cfg.NonCritical
	if f.BusinessCritical {
		criticality = 1
	}

	sum := util.Clamp(float64(f.Severity.Score())/4, 0, 1)*w.Severity +
		util.Clamp(f.Confidence, 0, 1)*w.Confidence +
		util.Clamp(float64(f.AffectedSystems)/a.cfg.ImpactScale, 0, 1)*w.Impact +
		util.Clamp(criticality, 0, 1)*w.Criticality

	return util.Round(util.Clamp(sum*100, 0, 100), 2)
}
