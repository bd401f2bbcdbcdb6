package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"SOCPulse/internal/domain/models"
	domrepo "SOCPulse/internal/domain/repository"
	domsvc "SOCPulse/internal/domain/service"
	"SOCPulse/internal/services/classifier"
	"SOCPulse/internal/services/features"
	"SOCPulse/internal/services/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type incidentFixture struct {
	svc    *IncidentService
	clf    *classifier.Classifier
	store  *memStore
	models *memModels
	out    *recordingBroadcaster
}

func newClassifier() *classifier.Classifier {
	cfg := classifier.DefaultConfig()
	cfg.Primary.Trees = 30
	cfg.Primary.MaxDepth = 10
	cfg.Fallback.Trees = 15
	return classifier.New(features.NewExtractor(features.DefaultRules()), risk.NewAssessor(risk.DefaultConfig()), cfg, nil)
}

func newIncidentFixture() incidentFixture {
	f := incidentFixture{
		clf:    newClassifier(),
		store:  newMemStore(),
		models: newMemModels(),
		out:    &recordingBroadcaster{},
	}
	f.svc = NewIncidentService(IncidentDeps{
		Extractor:  features.NewExtractor(features.DefaultRules()),
		Classifier: f.clf,
		Incidents:  f.store,
		Audits:     f.store,
		Telemetry:  f.store,
		Models:     f.models,
		Out:        f.out,
		Deployers:  []domsvc.ModelDeployer{fakeDeployer{provider: "aws"}, fakeDeployer{provider: "gcp"}},
		LoadedAnomalies: func() []models.AnomalyCategory {
			return []models.AnomalyCategory{models.CategoryCPU}
		},
	})
	return f
}

func TestTrainIncidentModelFallsBackToSynthetic(t *testing.T) {
	f := newIncidentFixture()
	ctx := context.Background()

	sum, err := f.svc.TrainIncidentModel(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, classifier.SourceSynthetic, sum.Source)
	assert.NotEmpty(t, sum.Reason)
	assert.True(t, f.clf.Available())

	ok, _ := f.models.Exists(ctx, classifier.ModelKey)
	assert.True(t, ok)
	assert.Equal(t, []models.EventType{models.EventModelUpdated}, f.out.types())
	require.Len(t, f.store.audits, 1)
	assert.Equal(t, "train_incident_model", f.store.audits[0].Action)
	assert.Equal(t, "alice", f.store.audits[0].UserSub)
}

func TestTrainIncidentModelSurvivesLoadFailure(t *testing.T) {
	f := newIncidentFixture()
	f.store.failLoad = errors.New("db down")

	sum, err := f.svc.TrainIncidentModel(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, classifier.SourceSynthetic, sum.Source)
	assert.Contains(t, sum.Reason, "db down")
}

func TestClassifyIncidentWithoutModel(t *testing.T) {
	f := newIncidentFixture()
	res, err := f.svc.ClassifyIncident(context.Background(), models.ClassifyRequest{
		Description: "ransomware detected",
		Severity:    "high",
	})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, models.TypeUnknown, res.PredictedType)
	assert.Equal(t, models.SeverityHigh, res.SeverityAssessment)

	_, err = f.svc.ClassifyIncident(context.Background(), models.ClassifyRequest{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestContextFromIncidentTags(t *testing.T) {
	created := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
	ic := ContextFromIncident(models.IncidentRecord{
		ID:        9,
		Severity:  models.SeverityLow,
		Tags:      "source:wazuh, alert_count:7,login_failures:3,affected_systems:x,business_critical:true,noise",
		CreatedAt: created,
	})
	assert.Equal(t, int64(9), ic.IncidentID)
	assert.Equal(t, 7, ic.AlertCount)
	assert.Equal(t, 1, ic.SourceIPs)
	assert.Equal(t, 1, ic.AffectedSystems)
	assert.Equal(t, 3, ic.LoginFailures)
	assert.Equal(t, 0, ic.PrivilegeChanges)
	assert.True(t, ic.BusinessCritical)
	assert.Equal(t, created, ic.ObservedAt)
}

func TestAnalyzeIncident(t *testing.T) {
	f := newIncidentFixture()
	ctx := context.Background()
	_, err := f.svc.TrainIncidentModel(ctx, "")
	require.NoError(t, err)

	created := time.Now().UTC().Add(-time.Hour)
	id, err := f.store.InsertIncident(ctx, models.IncidentRecord{
		Title:       "Malware on host",
		Description: "malware virus trojan dropped, hash matched",
		Severity:    models.SeverityLow,
		Tags:        "alert_count:5,source_ips:2,affected_systems:3",
		CreatedAt:   created,
	})
	require.NoError(t, err)

	f.store.audits = append(f.store.audits,
		models.AuditEntry{Timestamp: created.Add(time.Minute), Action: "user_login"},
		models.AuditEntry{Timestamp: created.Add(2 * time.Minute), Action: "auth_fail"},
		models.AuditEntry{Timestamp: created.Add(3 * time.Minute), Action: "data_export"},
		models.AuditEntry{Timestamp: created.Add(-time.Hour), Action: "admin_change"},
	)
	f.store.metrics = []models.MetricSample{
		{Timestamp: created.Add(time.Minute), CPUPercent: 40, MemoryPercent: 60},
		{Timestamp: created.Add(2 * time.Minute), CPUPercent: 60, MemoryPercent: 80},
	}

	rep, err := f.svc.AnalyzeIncident(ctx, id, "bob")
	require.NoError(t, err)
	assert.Equal(t, id, rep.IncidentID)
	assert.NotZero(t, rep.AnalysisID)
	assert.Equal(t, 1, rep.Context.RecentLogins)
	assert.Equal(t, 1, rep.Context.FailedAuth)
	assert.Equal(t, 1, rep.Context.DataAccess)
	assert.Equal(t, 0, rep.Context.AdminActions)
	require.NotNil(t, rep.Context.AvgCPUPercent)
	assert.InDelta(t, 50.0, *rep.Context.AvgCPUPercent, 1e-9)
	assert.InDelta(t, 70.0, *rep.Context.AvgMemoryPercent, 1e-9)

	stored, err := f.store.GetIncident(ctx, id)
	require.NoError(t, err)
	if rep.Analysis.Confidence > AnalysisConfidence && rep.Analysis.SeverityAssessment != models.SeverityLow {
		assert.True(t, rep.SeverityUpdated)
		assert.Equal(t, rep.Analysis.SeverityAssessment, stored.Severity)
	} else {
		assert.False(t, rep.SeverityUpdated)
		assert.Equal(t, models.SeverityLow, stored.Severity)
	}

	latest, err := f.svc.LatestAnalysis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rep.Analysis.PredictedType, latest.Result.PredictedType)
	assert.Contains(t, f.out.types(), models.EventAnalysisComplete)
	assert.Contains(t, f.store.actions(), "ai_incident_analysis")
}

func TestAnalyzeIncidentIgnoresSeverityCase(t *testing.T) {
	f := newIncidentFixture()
	ctx := context.Background()
	loadCertainMalwareModel(t, f.clf)

	id, err := f.store.InsertIncident(ctx, models.IncidentRecord{
		Title:    "Malware on host",
		Severity: models.Severity("CRITICAL"),
	})
	require.NoError(t, err)

	rep, err := f.svc.AnalyzeIncident(ctx, id, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rep.Analysis.Confidence)
	assert.Equal(t, models.SeverityCritical, rep.Analysis.SeverityAssessment)
	assert.Equal(t, models.SeverityCritical, rep.Context.Severity)
	assert.False(t, rep.SeverityUpdated)

	inc, err := f.store.GetIncident(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.Severity("CRITICAL"), inc.Severity)
}

func TestAnalyzeIncidentNotFound(t *testing.T) {
	f := newIncidentFixture()
	_, err := f.svc.AnalyzeIncident(context.Background(), 404, "")
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestStatusAndLoadModel(t *testing.T) {
	f := newIncidentFixture()
	ctx := context.Background()

	st := f.svc.Status(ctx)
	assert.False(t, st.ModelAvailable)
	assert.False(t, st.ModelExists)
	assert.Equal(t, []models.AnomalyCategory{models.CategoryCPU}, st.AnomalyModels)

	_, err := f.svc.TrainIncidentModel(ctx, "")
	require.NoError(t, err)

	other := newIncidentFixture()
	other.models = f.models
	other.svc.store = f.models
	ok, err := other.svc.LoadModel(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	st = other.svc.Status(ctx)
	assert.True(t, st.ModelAvailable)
	assert.True(t, st.ModelExists)
	assert.NotNil(t, st.TrainedAt)
}

func TestDeployModel(t *testing.T) {
	f := newIncidentFixture()
	ctx := context.Background()

	_, err := f.svc.DeployModel(ctx, "aws", "")
	assert.ErrorIs(t, err, ErrNoModel)

	_, err = f.svc.TrainIncidentModel(ctx, "")
	require.NoError(t, err)

	_, err = f.svc.DeployModel(ctx, "oracle", "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	res, err := f.svc.DeployModel(ctx, "GCP", "carol")
	require.NoError(t, err)
	assert.Equal(t, "gcp", res.Deployment.Provider)
	assert.Equal(t, "Model deployed to gcp successfully", res.Message)
	assert.Contains(t, f.store.actions(), "deploy_ai_model")
}
