package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"SOCPulse/internal/domain/models"
	domrepo "SOCPulse/internal/domain/repository"
	"SOCPulse/internal/services/anomaly"
	applogger "SOCPulse/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// ErrTrainingInProgress is returned when another process holds the training lock.
var ErrTrainingInProgress = errors.New("training already in progress")

// SourceSystemMetrics tags anomalies found by the telemetry sampler.
const SourceSystemMetrics = "system_metrics"

// Locker is the cross-process lock used around training runs.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// AnomalyConfig tunes the anomaly usecases.
type AnomalyConfig struct {
	// TrainingWindow is how many recent metric samples feed a training run.
	TrainingWindow int
	LockTTL        time.Duration
	SyntheticSeed  int64
}

// TrainOutcome reports one category of a training run.
type TrainOutcome struct {
	Category models.AnomalyCategory `json:"category"`
	Samples  int                    `json:"samples"`
	Trained  bool                   `json:"trained"`
	Error    string                 `json:"error,omitempty"`
}

// AnomalyService trains the per-category models and scores live telemetry.
type AnomalyService struct {
	scorer    *anomaly.Scorer
	telemetry domrepo.TelemetryStore
	store     domrepo.ModelStore
	locker    Locker
	out       domrepo.Broadcaster
	metrics   domrepo.Metrics
	logger    *applogger.Logger
	cfg       AnomalyConfig
	sf        singleflight.Group
}

func NewAnomalyService(
	scorer *anomaly.Scorer,
	telemetry domrepo.TelemetryStore,
	store domrepo.ModelStore,
	locker Locker,
	out domrepo.Broadcaster,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
	cfg AnomalyConfig,
) *AnomalyService {
	if cfg.TrainingWindow <= 0 {
		cfg.TrainingWindow = 1000
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.SyntheticSeed == 0 {
		cfg.SyntheticSeed = 42
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &AnomalyService{
		scorer:    scorer,
		telemetry: telemetry,
		store:     store,
		locker:    locker,
		out:       out,
		metrics:   metrics,
		logger:    logger.Component("anomaly_service"),
		cfg:       cfg,
	}
}

// TrainAnomalyModels retrains one category, or every category when
// category is empty. A category without enough data keeps its previous
// model and is reported in the outcome; store failures abort the run. When
// no requested category had enough data the outcomes come back with an
// error wrapping models.ErrInsufficientData.
func (s *AnomalyService) TrainAnomalyModels(ctx context.Context, category string) ([]TrainOutcome, error) {
	cats := models.AllCategories
	if category != "" {
		c, err := models.ParseCategory(category)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
		}
		cats = []models.AnomalyCategory{c}
	}

	// metrics are loaded once and shared by every category in the run
	var samples []models.MetricSample
	var loaded bool
	var short []string
	out := make([]TrainOutcome, 0, len(cats))
	for _, c := range cats {
		if c != models.CategoryLogin && !loaded {
			rows, err := s.telemetry.RecentMetrics(ctx, s.cfg.TrainingWindow)
			if err != nil {
				s.metrics.RecordError("anomaly_load_metrics")
				return out, fmt.Errorf("load metrics: %w", err)
			}
			samples, loaded = rows, true
		}

		res, err, _ := s.sf.Do(string(c), func() (interface{}, error) {
			return s.trainCategory(ctx, c, samples)
		})
		if err != nil && !errors.Is(err, models.ErrInsufficientData) {
			return out, err
		}
		outcome := res.(TrainOutcome)
		if err != nil {
			outcome.Error = err.Error()
			short = append(short, string(c))
		}
		out = append(out, outcome)
	}
	if len(short) == len(cats) {
		return out, fmt.Errorf("%w: no category could be trained (%s)", models.ErrInsufficientData, strings.Join(short, ", "))
	}
	return out, nil
}

func (s *AnomalyService) trainCategory(ctx context.Context, c models.AnomalyCategory, samples []models.MetricSample) (TrainOutcome, error) {
	outcome := TrainOutcome{Category: c}
	lockKey := "lock:train:anomaly:" + string(c)
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, lockKey, s.cfg.LockTTL)
		if err != nil {
			return outcome, fmt.Errorf("acquire training lock: %w", err)
		}
		if !ok {
			return outcome, fmt.Errorf("%w: %s", ErrTrainingInProgress, c)
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
				s.logger.Warn("release training lock", applogger.String("key", lockKey), applogger.Error(err))
			}
		}()
	}

	if c == models.CategoryLogin {
		samples = anomaly.SyntheticLoginSamples(s.cfg.SyntheticSeed)
	}
	outcome.Samples = len(samples)

	start := time.Now()
	m, err := s.scorer.Fit(c, samples)
	if err != nil {
		s.metrics.RecordTraining("anomaly_"+string(c), "skipped", time.Since(start).Seconds())
		return outcome, err
	}
	blob, err := m.Marshal()
	if err != nil {
		s.metrics.RecordTraining("anomaly_"+string(c), "failed", time.Since(start).Seconds())
		return outcome, fmt.Errorf("encode %s model: %w", c, err)
	}
	if err := s.store.Save(ctx, anomaly.ModelKey(c), blob); err != nil {
		s.metrics.RecordTraining("anomaly_"+string(c), "failed", time.Since(start).Seconds())
		return outcome, fmt.Errorf("save %s model: %w", c, err)
	}
	s.scorer.Activate(m)

	outcome.Trained = true
	s.metrics.RecordTraining("anomaly_"+string(c), "ok", time.Since(start).Seconds())
	s.metrics.SetModelLoaded("anomaly_"+string(c), true)
	s.logger.Info("anomaly model trained",
		applogger.String("category", string(c)),
		applogger.Int("samples", len(samples)),
		applogger.Duration("took", time.Since(start)),
	)
	return outcome, nil
}

// LoadModels activates every stored category model. Missing artifacts are
// skipped; the loaded categories are returned.
func (s *AnomalyService) LoadModels(ctx context.Context) ([]models.AnomalyCategory, error) {
	var loaded []models.AnomalyCategory
	for _, c := range models.AllCategories {
		blob, err := s.store.Load(ctx, anomaly.ModelKey(c))
		if errors.Is(err, domrepo.ErrNotFound) {
			continue
		}
		if err != nil {
			return loaded, fmt.Errorf("load %s model: %w", c, err)
		}
		if err := s.scorer.Load(c, blob); err != nil {
			s.logger.Warn("discarding stored anomaly model", applogger.String("category", string(c)), applogger.Error(err))
			continue
		}
		s.metrics.SetModelLoaded("anomaly_"+string(c), true)
		loaded = append(loaded, c)
	}
	s.logger.Info("anomaly models loaded", applogger.Int("count", len(loaded)))
	return loaded, nil
}

// ScoreCurrentMetrics scores sample against every loaded category and
// returns all scores. Flagged ones are persisted and broadcast; a failure
// there is logged and does not drop the scores.
func (s *AnomalyService) ScoreCurrentMetrics(ctx context.Context, sample models.MetricSample) ([]models.AnomalyScore, error) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}
	start := time.Now()
	scores, err := s.scorer.ScoreAll(sample)
	s.metrics.RecordLatency("anomaly_score", time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordError("anomaly_score")
		return nil, err
	}

	for _, sc := range scores {
		if !sc.IsAnomaly {
			continue
		}
		s.metrics.RecordAnomaly(string(sc.Category), string(sc.Severity))
		rec, err := sc.Record(SourceSystemMetrics)
		if err != nil {
			s.logger.Warn("encode anomaly", applogger.Error(err))
			continue
		}
		id, err := s.telemetry.InsertAnomaly(ctx, rec)
		if err != nil {
			s.metrics.RecordError("anomaly_persist")
			s.logger.Error("persist anomaly", applogger.String("category", string(sc.Category)), applogger.Error(err))
			continue
		}
		rec.ID = id
		s.publish(ctx, models.NewEnvelope(models.EventAnomalyDetected, rec))
	}
	return scores, nil
}

// RecentAnomalies lists persisted anomalies, newest first.
func (s *AnomalyService) RecentAnomalies(ctx context.Context, limit int) ([]models.AnomalyRecord, error) {
	return s.telemetry.RecentAnomalies(ctx, limit)
}

// Loaded lists the categories with an active model.
func (s *AnomalyService) Loaded() []models.AnomalyCategory {
	return s.scorer.Registry().Loaded()
}

func (s *AnomalyService) publish(ctx context.Context, env models.Envelope) {
	if s.out == nil {
		return
	}
	if err := s.out.Publish(ctx, env); err != nil {
		s.metrics.RecordError("broadcast")
		s.logger.Warn("broadcast failed", applogger.String("type", string(env.Type)), applogger.Error(err))
	}
}
