package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"SOCPulse/internal/domain/models"
	"SOCPulse/internal/middleware"
	"SOCPulse/internal/services/classifier"
	"SOCPulse/internal/services/features"
	"SOCPulse/internal/services/playbook"
	pkgkafka "SOCPulse/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type responseFixture struct {
	incident incidentFixture
	svc      *ResponseService
	ports    *ports
}

func newResponseFixture() responseFixture {
	f := responseFixture{incident: newIncidentFixture(), ports: &ports{fail: map[string]bool{}}}
	orch := playbook.NewOrchestrator(nil, f.incident.store, nil, nil)
	playbook.RegisterDefaults(orch, playbook.Ports{
		Intel:       f.ports,
		Containment: f.ports,
		Notifier:    f.ports,
		Cases:       f.ports,
		Audit:       f.incident.store,
	})
	f.svc = NewResponseService(ResponseDeps{
		Incidents:    f.incident.store,
		Audits:       f.incident.store,
		Analysis:     f.incident.svc,
		Orchestrator: orch,
		Intel:        f.ports,
		Containment:  f.ports,
		Out:          f.incident.out,
	})
	return f
}

func lvl(n int) *int { return &n }

const md5 = "44d88612fea8a8f36de82e1278abb02f"

func TestRunAutomatedResponseWithoutModel(t *testing.T) {
	f := newResponseFixture()
	ctx := context.Background()

	resp, err := f.svc.RunAutomatedResponse(ctx, models.Alert{
		ID:    "a-1",
		Rule:  models.AlertRule{Level: lvl(13), Description: "Malware detected"},
		Agent: models.AlertAgent{Name: "web-01"},
	})
	require.NoError(t, err)

	// fallback classification is unknown with zero confidence
	assert.Equal(t, playbook.TierDefault, resp.SelectedTier)
	assert.True(t, resp.Classification.Fallback)
	assert.Nil(t, resp.UpdatedSeverity)
	assert.Equal(t, StatusCompleted, resp.Status)
	require.Len(t, resp.ActionLog, 2)
	assert.Equal(t, playbook.ActionOpenCase, resp.ActionLog[0].Action)

	inc, err := f.incident.store.GetIncident(ctx, resp.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, "[ALERT] Malware detected", inc.Title)
	assert.Equal(t, models.SeverityCritical, inc.Severity)
	assert.Equal(t, "source:wazuh,alert_id:a-1", inc.Tags)

	actions := f.incident.store.actions()
	assert.Contains(t, actions, "auto_incident_response")
	assert.Contains(t, actions, "playbook_documentation")
	assert.Contains(t, f.incident.out.types(), models.EventAutomatedResponse)
}

func TestRunAutomatedResponseRejectsInvalidAlert(t *testing.T) {
	f := newResponseFixture()
	_, err := f.svc.RunAutomatedResponse(context.Background(), models.Alert{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Empty(t, f.incident.store.incidents)
}

func TestRunAutomatedResponseWithModel(t *testing.T) {
	f := newResponseFixture()
	ctx := context.Background()
	_, err := f.incident.svc.TrainIncidentModel(ctx, "")
	require.NoError(t, err)
	f.ports.fail["notify"] = true

	resp, err := f.svc.RunAutomatedResponse(ctx, models.Alert{
		ID:       "a-2",
		Rule:     models.AlertRule{Level: lvl(12), Description: "Malware trojan virus detected"},
		Agent:    models.AlertAgent{Name: "db-01"},
		Syscheck: map[string]interface{}{"md5": md5},
	})
	require.NoError(t, err)

	assert.Equal(t, len(resp.ActionLog), len(playbook.DefaultTiers()[resp.SelectedTier]))
	failed := 0
	for _, a := range resp.ActionLog {
		if a.Status == models.ActionFailed {
			failed++
			assert.Equal(t, playbook.ActionNotifySOC, a.Action)
		}
	}
	if failed > 0 {
		assert.Equal(t, StatusCompletedWithErrors, resp.Status)
	}
	assert.Equal(t, 12, resp.Decision.RuleLevel)
}

// loadCertainMalwareModel activates a single-leaf forest that predicts
// malware with confidence 1.
func loadCertainMalwareModel(t *testing.T, clf *classifier.Classifier) {
	t.Helper()
	blob, err := json.Marshal(map[string]interface{}{
		"features":   features.Schema,
		"normalizer": map[string]interface{}{"columns": []interface{}{}},
		"forest": map[string]interface{}{
			"classes": []string{string(models.TypeMalware)},
			"trees":   []interface{}{map[string]interface{}{"nodes": []interface{}{map[string]interface{}{"f": -1, "d": []float64{1}}}}},
		},
		"source": "real",
	})
	require.NoError(t, err)
	require.NoError(t, clf.Load(blob))
}

func countActions(actions []string, want string) int {
	n := 0
	for _, a := range actions {
		if a == want {
			n++
		}
	}
	return n
}

func TestRedeliveredAlertReusesIncident(t *testing.T) {
	f := newResponseFixture()
	ctx := context.Background()
	loadCertainMalwareModel(t, f.incident.clf)

	alert := models.Alert{
		ID:       "a-9",
		Rule:     models.AlertRule{Level: lvl(7), Description: "Trojan dropper"},
		Agent:    models.AlertAgent{Name: "web-02"},
		Syscheck: map[string]interface{}{"md5": md5},
	}
	raw, err := json.Marshal(alert)
	require.NoError(t, err)

	job := NewPlaybookJob(f.svc)
	for i := 0; i < 3; i++ {
		require.NoError(t, job.Handle(ctx, json.RawMessage(raw)))
	}
	require.Len(t, f.incident.store.incidents, 1)
	assert.Equal(t, 3, countActions(f.incident.store.actions(), "auto_incident_response"))

	var inc models.IncidentRecord
	for _, r := range f.incident.store.incidents {
		inc = r
	}
	assert.Equal(t, "a-9", inc.AlertID)
	assert.True(t, inc.Escalated)
	assert.Equal(t, models.SeverityHigh, inc.Severity)

	resp, err := f.svc.RunAutomatedResponse(ctx, alert)
	require.NoError(t, err)
	assert.Equal(t, inc.ID, resp.IncidentID)
	assert.Nil(t, resp.UpdatedSeverity, "severity is raised once per incident")
	assert.Len(t, resp.ActionLog, len(playbook.DefaultTiers()[resp.SelectedTier]))
	assert.Equal(t, StatusCompleted, resp.Status)
}

func TestFailedEscalationStillRunsTier(t *testing.T) {
	f := newResponseFixture()
	ctx := context.Background()
	loadCertainMalwareModel(t, f.incident.clf)
	f.incident.store.failEscalate = errors.New("db down")

	resp, err := f.svc.RunAutomatedResponse(ctx, models.Alert{
		ID:       "a-10",
		Rule:     models.AlertRule{Level: lvl(7), Description: "Trojan dropper"},
		Agent:    models.AlertAgent{Name: "web-02"},
		Syscheck: map[string]interface{}{"md5": md5},
	})
	require.NoError(t, err)

	assert.Equal(t, models.TypeMalware, resp.Classification.PredictedType)
	assert.Equal(t, 1.0, resp.Classification.Confidence)
	assert.Nil(t, resp.UpdatedSeverity)
	assert.Contains(t, resp.EscalationError, "db down")
	assert.Equal(t, StatusCompletedWithErrors, resp.Status)
	require.Len(t, resp.ActionLog, len(playbook.DefaultTiers()[resp.SelectedTier]))
	for _, a := range resp.ActionLog {
		assert.NotEqual(t, models.ActionFailed, a.Status, a.Action)
	}
	assert.NotEmpty(t, f.ports.calls)

	inc, err := f.incident.store.GetIncident(ctx, resp.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityMedium, inc.Severity)
	assert.False(t, inc.Escalated)
}

func TestEnrichAndBlockHash(t *testing.T) {
	f := newResponseFixture()
	ctx := context.Background()

	_, err := f.svc.EnrichHash(ctx, "nothex", "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	out, err := f.svc.EnrichHash(ctx, md5, "dave")
	require.NoError(t, err)
	assert.Equal(t, 3, out.Report.Malicious)
	assert.Contains(t, f.incident.out.types(), models.EventThreatIntelligenceUpdate)

	res, err := f.svc.BlockHash(ctx, md5, "dave")
	require.NoError(t, err)
	assert.Equal(t, "block_hash", res.Action)
	assert.Equal(t, []string{"virustotal_enrichment", "block_hash_fleetdm"}, f.incident.store.actions())

	f.ports.fail["block_hash"] = true
	_, err = f.svc.BlockHash(ctx, md5, "dave")
	assert.Error(t, err)
}

type recordingQueue struct {
	msgType string
	payload interface{}
}

func (q *recordingQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.msgType, q.payload = msgType, payload
	return nil
}

func TestQueueDispatcherAndJob(t *testing.T) {
	f := newResponseFixture()
	q := &recordingQueue{}
	d := NewQueueDispatcher(q)

	alert := &models.Alert{ID: "a-3", Rule: models.AlertRule{Level: lvl(3)}}
	require.NoError(t, d.Process(context.Background(), alert))
	assert.Equal(t, JobPlaybookRun, q.msgType)

	// the queue hands the job the decoded JSON of the stored message
	raw, err := json.Marshal(q.payload)
	require.NoError(t, err)
	job := NewPlaybookJob(f.svc)
	assert.Equal(t, JobPlaybookRun, job.Type())
	require.NoError(t, job.Handle(context.Background(), json.RawMessage(raw)))
	assert.Len(t, f.incident.store.incidents, 1)
}

func TestKafkaAlertsHandler(t *testing.T) {
	f := newResponseFixture()
	pipe, err := middleware.NewAlertPipeline(f.svc, nil, 100)
	require.NoError(t, err)
	h, err := NewKafkaAlertsHandler("soc.alerts", pipe, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "soc.alerts", h.Topic())
	ctx := context.Background()

	var perm *pkgkafka.PermanentError
	err = h.Handle(ctx, []byte(`{not json`))
	assert.True(t, errors.As(err, &perm))

	err = h.Handle(ctx, []byte(`{"id": "x", "rule": {"level": 40}}`))
	require.True(t, errors.As(err, &perm))
	assert.True(t, strings.Contains(err.Error(), "level"))

	err = h.Handle(ctx, []byte(`{"rule": {"level": 4}}`))
	assert.True(t, errors.As(err, &perm))

	body := []byte(`{"id": "k-1", "rule": {"level": 7, "description": "SSH brute force"}, "agent": {"name": "bastion"}, "data": {"srcip": "10.0.0.9"}}`)
	require.NoError(t, h.Handle(ctx, body))
	require.NoError(t, h.Handle(ctx, body), "duplicates are acknowledged")
	assert.Len(t, f.incident.store.incidents, 1)
}
