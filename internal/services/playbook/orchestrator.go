package playbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SOCPulse/internal/domain/models"
	"SOCPulse/internal/domain/repository"
	applogger "SOCPulse/pkg/logger"
)

// ErrSkipped marks an action that had nothing to act on.
var ErrSkipped = errors.New("skipped")

// EscalationConfidence is the confidence above which a re-assessed severity
// is written back to the incident.
const EscalationConfidence = 0.7

// Target is what a playbook acts on.
type Target struct {
	AlertID   string
	Incident  models.IncidentRecord
	Hashes    []string
	Host      string
	SourceIP  string
	User      string
	MessageID string
	Severity  models.Severity
	Summary   string
}

// TargetFromAlert collects the actionable fields of an alert.
func TargetFromAlert(a models.Alert, incident models.IncidentRecord) Target {
	host := a.Agent.Name
	if host == "" {
		host = a.Agent.IP
	}
	return Target{
		AlertID:   a.ID,
		Incident:  incident,
		Hashes:    a.Hashes(),
		Host:      host,
		SourceIP:  a.SourceIP(),
		User:      a.TargetUser(),
		MessageID: a.MessageID(),
		Severity:  incident.Severity,
		Summary:   incident.Title,
	}
}

// Action performs one step. It returns a short output line, ErrSkipped
// (possibly wrapped) when there is nothing to do, or an error.
type Action func(ctx context.Context, tier string, t Target) (string, error)

// Request is one playbook invocation.
type Request struct {
	Decision models.DecisionInput
	Target   Target
	// Assessed is the classifier's re-assessed severity.
	Assessed models.Severity
}

// Result is the outcome of Run.
type Result struct {
	Decision        models.PlaybookDecision
	UpdatedSeverity *models.Severity
	// EscalationErr is set when the severity write-back failed. The tier
	// still ran.
	EscalationErr error
}

// Orchestrator selects a tier and executes its actions in order. It keeps
// no state between runs.
type Orchestrator struct {
	actions   map[string]Action
	tiers     map[string][]string
	incidents repository.IncidentStore
	metrics   repository.Metrics
	logger    *applogger.Logger
	now       func() time.Time
}

// NewOrchestrator builds an orchestrator over tiers. Missing tiers fall
// back to DefaultTiers.
func NewOrchestrator(tiers map[string][]string, incidents repository.IncidentStore, metrics repository.Metrics, logger *applogger.Logger) *Orchestrator {
	merged := DefaultTiers()
	for name, actions := range tiers {
		if len(actions) > 0 {
			merged[name] = actions
		}
	}
	if metrics == nil {
		metrics = repository.NopMetrics{}
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &Orchestrator{
		actions:   make(map[string]Action),
		tiers:     merged,
		incidents: incidents,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register binds an action name. Call before the first Run.
func (o *Orchestrator) Register(name string, a Action) {
	o.actions[name] = a
}

// Decide resolves the tier and its action list without executing anything.
func (o *Orchestrator) Decide(in models.DecisionInput) models.PlaybookDecision {
	tier := SelectTier(in)
	return models.PlaybookDecision{
		Input:   in,
		Tier:    tier,
		Actions: append([]string(nil), o.tiers[tier]...),
	}
}

// Run escalates severity when warranted, then executes every action of the
// selected tier. A failing action or escalation is logged and the run goes on.
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	decision := o.Decide(req.Decision)
	target := req.Target
	log := o.logger.With(
		applogger.String("tier", decision.Tier),
		applogger.String("alert_id", target.AlertID),
		applogger.Int64("incident_id", target.Incident.ID),
	)

	updated, escErr := o.escalate(ctx, req)
	if escErr != nil {
		o.metrics.RecordError("playbook_escalate")
		log.Warn("severity escalation failed", applogger.Error(escErr))
	}
	if updated != nil {
		target.Severity = *updated
		target.Incident.Severity = *updated
		target.Incident.Escalated = true
	}

	o.metrics.RecordPlaybookRun(decision.Tier)

	for _, name := range decision.Actions {
		entry := o.execute(ctx, name, decision.Tier, target)
		decision.Log = append(decision.Log, entry)
		o.metrics.RecordPlaybookAction(decision.Tier, name, string(entry.Status))
		if entry.Status == models.ActionFailed {
			log.Warn("playbook action failed", applogger.String("action", name), applogger.String("error", entry.Error))
		}
	}

	log.Info("playbook executed",
		applogger.Int("actions", len(decision.Log)),
		applogger.Int("failed", decision.Count(models.ActionFailed)),
		applogger.Int("skipped", decision.Count(models.ActionSkipped)),
	)
	return Result{Decision: decision, UpdatedSeverity: updated, EscalationErr: escErr}
}

// escalate writes the assessed severity back once per incident. The
// escalated flag lives on the incident row, so a redelivered alert that
// reuses its incident does not write again.
func (o *Orchestrator) escalate(ctx context.Context, req Request) (*models.Severity, error) {
	inc := req.Target.Incident
	assessed := models.ParseSeverity(string(req.Assessed))
	current := models.ParseSeverity(string(inc.Severity))
	if req.Decision.Confidence <= EscalationConfidence || req.Assessed == "" || assessed == current {
		return nil, nil
	}
	if inc.ID == 0 || inc.Escalated || o.incidents == nil {
		return nil, nil
	}
	changed, err := o.incidents.EscalateSeverity(ctx, inc.ID, assessed)
	if err != nil {
		return nil, fmt.Errorf("escalate incident %d severity: %w", inc.ID, err)
	}
	if !changed {
		return nil, nil
	}
	o.logger.Info("incident severity escalated",
		applogger.Int64("incident_id", inc.ID),
		applogger.String("from", string(current)),
		applogger.String("to", string(assessed)),
	)
	return &assessed, nil
}

func (o *Orchestrator) execute(ctx context.Context, name, tier string, t Target) (entry models.ActionResult) {
	entry = models.ActionResult{Action: name, StartedAt: o.now()}
	defer func() {
		if r := recover(); r != nil {
			entry.Status = models.ActionFailed
			entry.Error = fmt.Sprintf("panic: %v", r)
		}
		entry.FinishedAt = o.now()
	}()

	if err := ctx.Err(); err != nil {
		entry.Status = models.ActionFailed
		entry.Error = err.Error()
		return entry
	}
	action, ok := o.actions[name]
	if !ok {
		entry.Status = models.ActionFailed
		entry.Error = "no handler registered"
		return entry
	}

	out, err := action(ctx, tier, t)
	entry.Output = out
	switch {
	case errors.Is(err, ErrSkipped):
		entry.Status = models.ActionSkipped
		entry.Output = err.Error()
	case err != nil:
		entry.Status = models.ActionFailed
		entry.Error = err.Error()
	default:
		entry.Status = models.ActionSuccess
	}
	return entry
}
