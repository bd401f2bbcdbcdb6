package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	anomalies       *prometheus.CounterVec
	classifications *prometheus.CounterVec
	playbookActions *prometheus.CounterVec
	playbookRuns    *prometheus.CounterVec
	trainings       *prometheus.CounterVec
	trainDuration   *prometheus.HistogramVec
	modelLoaded     *prometheus.GaugeVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// New creates a recorder registered with the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		anomalies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socpulse_anomalies_detected_total",
				Help: "Anomalies flagged by the per-category isolation forests",
			},
			[]string{"category", "severity"},
		),
		classifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socpulse_classifications_total",
				Help: "Incident classifications by predicted type",
			},
			[]string{"type", "fallback"},
		),
		playbookActions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socpulse_playbook_actions_total",
				Help: "Playbook action outcomes",
			},
			[]string{"tier", "action", "status"},
		),
		playbookRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socpulse_playbook_runs_total",
				Help: "Playbook runs by selected tier",
			},
			[]string{"tier"},
		),
		trainings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socpulse_model_trainings_total",
				Help: "Model training runs by task and outcome",
			},
			[]string{"task", "outcome"},
		),
		trainDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "socpulse_model_training_duration_seconds",
				Help:    "Duration of model training runs",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"task"},
		),
		modelLoaded: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "socpulse_model_loaded",
				Help: "1 when a model is active for the task",
			},
			[]string{"task"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "socpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordAnomaly records a flagged anomaly.
func (r *Recorder) RecordAnomaly(category, severity string) {
	r.anomalies.WithLabelValues(category, severity).Inc()
}

// RecordClassification records a classification outcome.
func (r *Recorder) RecordClassification(predictedType string, fallback bool) {
	fb := "false"
	if fallback {
		fb = "true"
	}
	r.classifications.WithLabelValues(predictedType, fb).Inc()
}

// RecordPlaybookRun records a tier selection.
func (r *Recorder) RecordPlaybookRun(tier string) {
	r.playbookRuns.WithLabelValues(tier).Inc()
}

// RecordPlaybookAction records one executed action.
func (r *Recorder) RecordPlaybookAction(tier, action, status string) {
	r.playbookActions.WithLabelValues(tier, action, status).Inc()
}

// RecordTraining records a training run and its duration.
func (r *Recorder) RecordTraining(task, outcome string, seconds float64) {
	r.trainings.WithLabelValues(task, outcome).Inc()
	r.trainDuration.WithLabelValues(task).Observe(seconds)
}

// SetModelLoaded flips the model availability gauge.
func (r *Recorder) SetModelLoaded(task string, loaded bool) {
	v := 0.0
	if loaded {
		v = 1
	}
	r.modelLoaded.WithLabelValues(task).Set(v)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
