package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"SOCPulse/internal/domain/models"
	domrepo "SOCPulse/internal/domain/repository"
	domsvc "SOCPulse/internal/domain/service"
	"SOCPulse/internal/middleware"
	"SOCPulse/internal/services/playbook"
	applogger "SOCPulse/pkg/logger"
	"SOCPulse/pkg/queue"
)

// Response statuses.
const (
	StatusCompleted           = "completed"
	StatusCompletedWithErrors = "completed_with_errors"
)

// JobPlaybookRun is the queue message type of an alert awaiting response.
const JobPlaybookRun = "playbook.run"

// ResponseService maps alerts to incidents and runs the matching playbook.
type ResponseService struct {
	incidents    domrepo.IncidentStore
	audits       domrepo.AuditStore
	analysis     *IncidentService
	orchestrator *playbook.Orchestrator
	intel        domsvc.ThreatIntel
	containment  domsvc.Containment
	out          domrepo.Broadcaster
	metrics      domrepo.Metrics
	logger       *applogger.Logger
	timeout      time.Duration
}

// ResponseDeps groups the collaborators of ResponseService.
type ResponseDeps struct {
	Incidents    domrepo.IncidentStore
	Audits       domrepo.AuditStore
	Analysis     *IncidentService
	Orchestrator *playbook.Orchestrator
	Intel        domsvc.ThreatIntel
	Containment  domsvc.Containment
	Out          domrepo.Broadcaster
	Metrics      domrepo.Metrics
	Logger       *applogger.Logger
	// Timeout bounds one playbook run, 0 disables it.
	Timeout time.Duration
}

func NewResponseService(d ResponseDeps) *ResponseService {
	if d.Metrics == nil {
		d.Metrics = domrepo.NopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = applogger.NewNop()
	}
	return &ResponseService{
		incidents:    d.Incidents,
		audits:       d.Audits,
		analysis:     d.Analysis,
		orchestrator: d.Orchestrator,
		intel:        d.Intel,
		containment:  d.Containment,
		out:          d.Out,
		metrics:      d.Metrics,
		logger:       d.Logger.Component("response_service"),
		timeout:      d.Timeout,
	}
}

// RunAutomatedResponse opens an incident for the alert, classifies it and
// executes the selected tier. A redelivered alert reuses the incident the
// first delivery opened. Action and escalation failures end up in the
// response status; only a failure to record the incident or classify it is
// returned as an error.
func (s *ResponseService) RunAutomatedResponse(ctx context.Context, alert models.Alert) (models.AutomatedResponse, error) {
	if err := middleware.ValidateAlert(&alert); err != nil {
		return models.AutomatedResponse{}, err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()

	fresh := alert.Incident()
	fresh.CreatedAt = time.Now().UTC()
	incident, created, err := s.incidents.UpsertAlertIncident(ctx, fresh)
	if err != nil {
		s.metrics.RecordError("response_incident")
		return models.AutomatedResponse{}, fmt.Errorf("record incident for alert %s: %w", alert.ID, err)
	}
	id := incident.ID
	if !created {
		s.logger.Info("reusing incident for redelivered alert",
			applogger.String("alert_id", alert.ID), applogger.Int64("incident_id", id))
	}

	ic := ContextFromIncident(incident)
	ic.ObservedAt = incident.CreatedAt
	cls, err := s.analysis.Classify(ctx, ic)
	if err != nil {
		return models.AutomatedResponse{}, fmt.Errorf("classify alert %s: %w", alert.ID, err)
	}

	in := models.DecisionInput{
		PredictedType: cls.PredictedType,
		Confidence:    cls.Confidence,
		RiskScore:     cls.RiskScore,
		RuleLevel:     alert.RuleLevel(),
	}
	res := s.orchestrator.Run(ctx, playbook.Request{
		Decision: in,
		Target:   playbook.TargetFromAlert(alert, incident),
		Assessed: cls.SeverityAssessment,
	})

	resp := models.AutomatedResponse{
		AlertID:         alert.ID,
		IncidentID:      id,
		SelectedTier:    res.Decision.Tier,
		Decision:        in,
		ActionLog:       res.Decision.Log,
		Classification:  cls,
		UpdatedSeverity: res.UpdatedSeverity,
		Status:          StatusCompleted,
	}
	failed := res.Decision.Count(models.ActionFailed)
	if res.EscalationErr != nil {
		resp.EscalationError = res.EscalationErr.Error()
	}
	if failed > 0 || res.EscalationErr != nil {
		resp.Status = StatusCompletedWithErrors
	}

	details, _ := json.Marshal(map[string]interface{}{
		"incident_id":    id,
		"tier":           resp.SelectedTier,
		"predicted_type": cls.PredictedType,
		"confidence":     cls.Confidence,
		"actions":        len(resp.ActionLog),
		"failed":         failed,
		"reused":         !created,
	})
	writeAudit(ctx, s.audits, s.logger, SystemActor, "auto_incident_response", "alert:"+alert.ID, string(details))
	s.publish(ctx, models.NewEnvelope(models.EventAutomatedResponse, resp))
	s.metrics.RecordLatency("automated_response", time.Since(start).Seconds())
	return resp, nil
}

// HashEnrichment is the result of a manual threat-intel lookup.
type HashEnrichment struct {
	Hash   string            `json:"hash"`
	Report domsvc.HashReport `json:"virustotal_result"`
}

// EnrichHash looks a file hash up in threat intel and shares the verdict.
func (s *ResponseService) EnrichHash(ctx context.Context, hash, actor string) (HashEnrichment, error) {
	hash = strings.TrimSpace(hash)
	if !models.IsValidHash(hash) {
		return HashEnrichment{}, fmt.Errorf("%w: invalid hash %q", models.ErrInvalidInput, hash)
	}
	rep, err := s.intel.LookupHash(ctx, hash)
	if err != nil {
		s.metrics.RecordError("virustotal")
		return HashEnrichment{}, fmt.Errorf("virustotal lookup: %w", err)
	}

	out := HashEnrichment{Hash: hash, Report: rep}
	writeAudit(ctx, s.audits, s.logger, actor, "virustotal_enrichment", "hash:"+hash,
		fmt.Sprintf("found=%t malicious=%d suspicious=%d", rep.Found, rep.Malicious, rep.Suspicious))
	s.publish(ctx, models.NewEnvelope(models.EventThreatIntelligenceUpdate, out))
	return out, nil
}

// BlockHash blocks a file hash on managed endpoints.
func (s *ResponseService) BlockHash(ctx context.Context, hash, actor string) (domsvc.ContainmentResult, error) {
	hash = strings.TrimSpace(hash)
	if !models.IsValidHash(hash) {
		return domsvc.ContainmentResult{}, fmt.Errorf("%w: invalid hash %q", models.ErrInvalidInput, hash)
	}
	res, err := s.containment.BlockHash(ctx, hash)
	if err != nil {
		s.metrics.RecordError("fleetdm")
		return domsvc.ContainmentResult{}, fmt.Errorf("block hash: %w", err)
	}
	writeAudit(ctx, s.audits, s.logger, actor, "block_hash_fleetdm", "hash:"+hash,
		fmt.Sprintf("method=%s status=%s", res.Method, res.Status))
	return res, nil
}

// Process runs the response inline. It satisfies middleware.Proc for
// deployments without a job queue.
func (s *ResponseService) Process(ctx context.Context, a *models.Alert) error {
	if a == nil {
		return fmt.Errorf("%w: nil alert", models.ErrInvalidInput)
	}
	_, err := s.RunAutomatedResponse(ctx, *a)
	return err
}

func (s *ResponseService) publish(ctx context.Context, env models.Envelope) {
	if s.out == nil {
		return
	}
	if err := s.out.Publish(ctx, env); err != nil {
		s.metrics.RecordError("broadcast")
		s.logger.Warn("broadcast failed", applogger.String("type", string(env.Type)), applogger.Error(err))
	}
}

// QueueDispatcher hands accepted alerts to the job queue.
type QueueDispatcher struct {
	q queue.Publisher
}

func NewQueueDispatcher(q queue.Publisher) *QueueDispatcher {
	return &QueueDispatcher{q: q}
}

func (d *QueueDispatcher) Process(ctx context.Context, a *models.Alert) error {
	return d.q.PublishMessage(ctx, JobPlaybookRun, a)
}

// PlaybookJob runs queued alerts through the response pipeline.
type PlaybookJob struct {
	svc *ResponseService
}

func NewPlaybookJob(svc *ResponseService) *PlaybookJob {
	return &PlaybookJob{svc: svc}
}

func (j *PlaybookJob) Type() string { return JobPlaybookRun }

func (j *PlaybookJob) Handle(ctx context.Context, payload json.RawMessage) error {
	alert, err := queue.Decode[models.Alert](payload)
	if err != nil {
		return err
	}
	_, err = j.svc.RunAutomatedResponse(ctx, alert)
	return err
}

var (
	_ middleware.Proc = (*ResponseService)(nil)
	_ middleware.Proc = (*QueueDispatcher)(nil)
	_ queue.Job       = (*PlaybookJob)(nil)
)
