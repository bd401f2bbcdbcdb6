package playbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"SOCPulse/internal/domain/models"
	"SOCPulse/internal/domain/repository"
	"SOCPulse/internal/domain/service"
)

// Ports are the collaborators the stock actions call.
type Ports struct {
	Intel       service.ThreatIntel
	Containment service.Containment
	Notifier    service.Notifier
	Cases       service.CaseManager
	Audit       repository.AuditStore

	now func() time.Time
}

// RegisterDefaults binds every stock action to p. Audit entries take their
// timestamp from the orchestrator clock.
func RegisterDefaults(o *Orchestrator, p Ports) {
	p.now = func() time.Time { return o.now() }
	o.Register(ActionEnrichHashes, p.enrichHashes)
	o.Register(ActionBlockHashes, p.blockHashes)
	o.Register(ActionIsolateHost, p.isolateHost)
	o.Register(ActionEscalateOnCall, p.escalate)
	o.Register(ActionNotifySOC, p.notify)
	o.Register(ActionOpenCase, p.openCase)
	o.Register(ActionDocument, p.document)
	o.Register(ActionQuarantineEmail, p.quarantine)
	o.Register(ActionResetCredentials, p.revoke("reset_credentials"))
	o.Register(ActionRevokePrivileges, p.revoke("revoke_privileges"))
	o.Register(ActionBlockSourceIP, p.blockIP)
	o.Register(ActionRateLimitSource, p.throttle)
}

func skip(what string) error {
	return fmt.Errorf("%w: no %s", ErrSkipped, what)
}

// eachHash runs fn per hash. It fails only when every hash failed.
func eachHash(hashes []string, fn func(string) error) (string, error) {
	if len(hashes) == 0 {
		return "", skip("file hashes")
	}
	var errs []error
	for _, h := range hashes {
		if err := fn(h); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h, err))
		}
	}
	ok := len(hashes) - len(errs)
	out := fmt.Sprintf("%d/%d hashes", ok, len(hashes))
	if ok == 0 {
		return out, errors.Join(errs...)
	}
	if len(errs) > 0 {
		out += "; " + errors.Join(errs...).Error()
	}
	return out, nil
}

func (p Ports) enrichHashes(ctx context.Context, _ string, t Target) (string, error) {
	malicious := 0
	out, err := eachHash(t.Hashes, func(h string) error {
		rep, err := p.Intel.LookupHash(ctx, h)
		if err != nil {
			return err
		}
		if rep.Malicious > 0 {
			malicious++
		}
		return nil
	})
	if err != nil {
		return out, err
	}
	return fmt.Sprintf("enriched %s, %d flagged malicious", out, malicious), nil
}

func (p Ports) blockHashes(ctx context.Context, _ string, t Target) (string, error) {
	out, err := eachHash(t.Hashes, func(h string) error {
		_, err := p.Containment.BlockHash(ctx, h)
		return err
	})
	if err != nil {
		return out, err
	}
	return "blocked " + out, nil
}

func containment(res service.ContainmentResult, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s via %s: %s", res.Action, res.Target, res.Method, res.Status), nil
}

func (p Ports) isolateHost(ctx context.Context, _ string, t Target) (string, error) {
	if t.Host == "" {
		return "", skip("host")
	}
	return containment(p.Containment.IsolateHost(ctx, t.Host))
}

func (p Ports) blockIP(ctx context.Context, _ string, t Target) (string, error) {
	if t.SourceIP == "" {
		return "", skip("source ip")
	}
	return containment(p.Containment.BlockIP(ctx, t.SourceIP))
}

func (p Ports) throttle(ctx context.Context, _ string, t Target) (string, error) {
	if t.SourceIP == "" {
		return "", skip("source ip")
	}
	return containment(p.Containment.ThrottleSource(ctx, t.SourceIP))
}

func (p Ports) quarantine(ctx context.Context, _ string, t Target) (string, error) {
	if t.MessageID == "" {
		return "", skip("message id")
	}
	return containment(p.Containment.QuarantineMessage(ctx, t.MessageID))
}

func (p Ports) revoke(mode string) Action {
	return func(ctx context.Context, _ string, t Target) (string, error) {
		if t.User == "" {
			return "", skip("user")
		}
		return containment(p.Containment.RevokeAccess(ctx, t.User, mode))
	}
}

func notification(tier string, t Target) service.Notification {
	summary := t.Summary
	if summary == "" {
		summary = t.Incident.Title
	}
	return service.Notification{
		IncidentID: t.Incident.ID,
		AlertID:    t.AlertID,
		Title:      t.Incident.Title,
		Severity:   t.Severity,
		Tier:       tier,
		Summary:    summary,
	}
}

func (p Ports) notify(ctx context.Context, tier string, t Target) (string, error) {
	if err := p.Notifier.Notify(ctx, notification(tier, t)); err != nil {
		return "", err
	}
	return "soc notified", nil
}

func (p Ports) escalate(ctx context.Context, tier string, t Target) (string, error) {
	if err := p.Notifier.Escalate(ctx, notification(tier, t)); err != nil {
		return "", err
	}
	return "on-call paged", nil
}

func (p Ports) openCase(ctx context.Context, tier string, t Target) (string, error) {
	summary := fmt.Sprintf("[%s] %s", strings.ToUpper(tier), t.Summary)
	id, err := p.Cases.OpenCase(ctx, t.Incident, summary)
	if err != nil {
		return "", err
	}
	return "case " + id, nil
}

func (p Ports) document(ctx context.Context, tier string, t Target) (string, error) {
	details, err := json.Marshal(map[string]interface{}{
		"tier":     tier,
		"alert_id": t.AlertID,
		"severity": t.Severity,
		"hashes":   t.Hashes,
		"host":     t.Host,
	})
	if err != nil {
		return "", err
	}
	err = p.Audit.InsertAudit(ctx, models.AuditEntry{
		Timestamp: p.now(),
		UserSub:   "system",
		Action:    "playbook_documentation",
		Resource:  fmt.Sprintf("incident:%d", t.Incident.ID),
		Details:   string(details),
	})
	if err != nil {
		return "", err
	}
	return "documented", nil
}
