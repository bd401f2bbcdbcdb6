package usecase

import (
	"context"
	"strings"
	"time"

	"SOCPulse/internal/domain/models"
	domrepo "SOCPulse/internal/domain/repository"
	domsvc "SOCPulse/internal/domain/service"
	applogger "SOCPulse/pkg/logger"
)

// Sampler periodically reads host telemetry, stores it and scores it.
type Sampler struct {
	source    domsvc.MetricsSource
	telemetry domrepo.TelemetryStore
	audits    domrepo.AuditStore
	anomalies *AnomalyService
	interval  time.Duration
	host      string
	logger    *applogger.Logger
	metrics   domrepo.Metrics
}

func NewSampler(
	source domsvc.MetricsSource,
	telemetry domrepo.TelemetryStore,
	audits domrepo.AuditStore,
	anomalies *AnomalyService,
	interval time.Duration,
	host string,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
) *Sampler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &Sampler{
		source:    source,
		telemetry: telemetry,
		audits:    audits,
		anomalies: anomalies,
		interval:  interval,
		host:      host,
		logger:    logger.Component("sampler"),
		metrics:   metrics,
	}
}

// Run samples every interval until ctx is done. A failed tick is logged
// and the loop carries on.
func (s *Sampler) Run(ctx context.Context) {
	s.logger.Info("sampler started", applogger.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sampler stopped")
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.metrics.RecordError("sampler")
				s.logger.Warn("sampler tick failed", applogger.Error(err))
			}
		}
	}
}

// Tick takes one sample, persists it and returns its anomaly scores.
func (s *Sampler) Tick(ctx context.Context) ([]models.AnomalyScore, error) {
	m, err := s.source.Sample(ctx)
	if err != nil {
		return nil, err
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if m.Host == "" {
		m.Host = s.host
	}
	m.LoginCount = s.logins(ctx, m.Timestamp)

	if err := s.telemetry.InsertMetric(ctx, m); err != nil {
		// scoring still runs on the live sample
		s.metrics.RecordError("sampler_store")
		s.logger.Warn("store metric sample", applogger.Error(err))
	}
	return s.anomalies.ScoreCurrentMetrics(ctx, m)
}

// logins counts login audit entries of the past hour, the cadence the login
// model is trained on.
func (s *Sampler) logins(ctx context.Context, now time.Time) float64 {
	if s.audits == nil {
		return 0
	}
	entries, err := s.audits.AuditsSince(ctx, now.Add(-time.Hour), 1000)
	if err != nil {
		s.logger.Debug("login count unavailable", applogger.Error(err))
		return 0
	}
	n := 0
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Action), "login") {
			n++
		}
	}
	return float64(n)
}
