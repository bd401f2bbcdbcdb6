package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SOCPulse/internal/domain/models"
	domrepo "SOCPulse/internal/domain/repository"
	domsvc "SOCPulse/internal/domain/service"
	"SOCPulse/internal/services/integrations"
	"SOCPulse/internal/usecase"
	xhttp "SOCPulse/pkg/http"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIncidents struct {
	actor    string
	provider string
	err      error
}

func (s *stubIncidents) AnalyzeIncident(_ context.Context, id int64, actor string) (usecase.AnalysisReport, error) {
	s.actor = actor
	if s.err != nil {
		return usecase.AnalysisReport{}, s.err
	}
	return usecase.AnalysisReport{IncidentID: id, AnalysisID: 1}, nil
}

func (s *stubIncidents) LatestAnalysis(_ context.Context, id int64) (models.IncidentAnalysis, error) {
	if s.err != nil {
		return models.IncidentAnalysis{}, s.err
	}
	return models.IncidentAnalysis{IncidentID: id}, nil
}

func (s *stubIncidents) ClassifyIncident(_ context.Context, req models.ClassifyRequest) (models.ClassificationResult, error) {
	return models.ClassificationResult{PredictedType: models.TypeUnknown, SeverityAssessment: models.Severity(req.Severity)}, s.err
}

func (s *stubIncidents) TrainIncidentModel(_ context.Context, actor string) (usecase.TrainSummary, error) {
	s.actor = actor
	return usecase.TrainSummary{}, s.err
}

func (s *stubIncidents) Status(context.Context) usecase.ModelStatus {
	return usecase.ModelStatus{ModelAvailable: true}
}

func (s *stubIncidents) DeployModel(_ context.Context, provider, actor string) (usecase.DeployResult, error) {
	s.provider, s.actor = provider, actor
	return usecase.DeployResult{Message: "Model deployed to " + provider + " successfully"}, s.err
}

type stubAnomalies struct {
	category string
	sample   models.MetricSample
	limit    int
	err      error
}

func (s *stubAnomalies) TrainAnomalyModels(_ context.Context, category string) ([]usecase.TrainOutcome, error) {
	s.category = category
	return []usecase.TrainOutcome{{Category: models.CategoryCPU, Trained: true}}, s.err
}

func (s *stubAnomalies) ScoreCurrentMetrics(_ context.Context, sample models.MetricSample) ([]models.AnomalyScore, error) {
	s.sample = sample
	return nil, s.err
}

func (s *stubAnomalies) RecentAnomalies(_ context.Context, limit int) ([]models.AnomalyRecord, error) {
	s.limit = limit
	return []models.AnomalyRecord{{ID: "an-1"}}, s.err
}

type stubResponse struct {
	alert models.Alert
	err   error
}

func (s *stubResponse) RunAutomatedResponse(_ context.Context, a models.Alert) (models.AutomatedResponse, error) {
	s.alert = a
	return models.AutomatedResponse{AlertID: a.ID}, s.err
}

func (s *stubResponse) EnrichHash(_ context.Context, hash, _ string) (usecase.HashEnrichment, error) {
	return usecase.HashEnrichment{Hash: hash}, s.err
}

func (s *stubResponse) BlockHash(_ context.Context, hash, _ string) (domsvc.ContainmentResult, error) {
	return domsvc.ContainmentResult{Target: hash, Action: "block_hash"}, s.err
}

type stubTelemetry struct {
	since time.Time
	limit int
}

func (s *stubTelemetry) MetricsSince(_ context.Context, since time.Time, limit int) ([]models.MetricSample, error) {
	s.since, s.limit = since, limit
	return []models.MetricSample{}, nil
}

type harness struct {
	e   *echo.Echo
	inc *stubIncidents
	an  *stubAnomalies
	rsp *stubResponse
	tel *stubTelemetry
}

func newHarness() harness {
	h := harness{e: echo.New(), inc: &stubIncidents{}, an: &stubAnomalies{}, rsp: &stubResponse{}, tel: &stubTelemetry{}}
	NewSOCEchoHandler(nil, h.inc, h.an, h.rsp, h.tel, nil).RegisterRoutes(h.e)
	return h
}

func (h harness) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) xhttp.APIResponse {
	t.Helper()
	var out xhttp.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAnalyzeIncidentRoute(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodPost, "/api/incidents/7/analyze", "", xhttp.HeaderUserSub, "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", h.inc.actor)
	assert.Equal(t, http.StatusOK, decode(t, rec).Status)

	rec = h.do(http.MethodPost, "/api/incidents/abc/analyze", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.inc.err = fmt.Errorf("get incident 8: %w", domrepo.ErrNotFound)
	rec = h.do(http.MethodGet, "/api/incidents/8/analysis", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClassifyRouteValidates(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodPost, "/api/ai/classify", `{"title": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/ai/classify", `{"description": "ransomware", "severity": "urgent"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/ai/classify", `{"description": "ransomware"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"severity_assessment":"medium"`)
}

func TestTrainRoutes(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodPost, "/api/ai/train-incident-model", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "system", h.inc.actor)

	rec = h.do(http.MethodPost, "/api/ai/anomaly/train?category=memory", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "memory", h.an.category)

	h.an.err = usecase.ErrTrainingInProgress
	rec = h.do(http.MethodPost, "/api/ai/anomaly/train", `{"category": "cpu"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	h.an.err = fmt.Errorf("%w: no category could be trained (cpu)", models.ErrInsufficientData)
	rec = h.do(http.MethodPost, "/api/ai/anomaly/train", `{"category": "cpu"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(http.MethodPost, "/api/ai/anomaly/train", `{"category": "disk"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeployRoute(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodPost, "/api/ai/deploy-to-cloud?cloud_provider=gcp", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gcp", h.inc.provider)

	rec = h.do(http.MethodPost, "/api/ai/deploy-to-cloud", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "aws", h.inc.provider)

	h.inc.err = usecase.ErrNoModel
	rec = h.do(http.MethodPost, "/api/ai/deploy-to-cloud", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnomalyRoutes(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodPost, "/api/ai/anomaly/score", `{"host": "web-01", "cpu_percent": 91.5, "memory_percent": 40}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 91.5, h.an.sample.CPUPercent)
	assert.False(t, h.an.sample.Timestamp.IsZero())

	rec = h.do(http.MethodPost, "/api/ai/anomaly/score", `{"cpu_percent": 140}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/ai/anomalies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, h.an.limit)

	rec = h.do(http.MethodGet, "/api/ai/anomalies?limit=5000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaybookRoutes(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodPost, "/api/playbooks/run", `{"id": "a-1", "rule": {"level": 12}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a-1", h.rsp.alert.ID)
	assert.Equal(t, 12, h.rsp.alert.RuleLevel())

	rec = h.do(http.MethodPost, "/api/playbooks/run", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/playbooks/block-hash", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.rsp.err = fmt.Errorf("virustotal: %w", integrations.ErrNotConfigured)
	rec = h.do(http.MethodPost, "/api/playbooks/virustotal-enrich", `{"hash": "44d88612fea8a8f36de82e1278abb02f"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.rsp.err = assert.AnError
	rec = h.do(http.MethodPost, "/api/playbooks/block-hash", `{"hash": "44d88612fea8a8f36de82e1278abb02f"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestMetricHistoryWindow(t *testing.T) {
	h := newHarness()

	before := time.Now().UTC()
	rec := h.do(http.MethodGet, "/api/metrics?window=6h&limit=99999", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5000, h.tel.limit)
	assert.WithinDuration(t, before.Add(-6*time.Hour), h.tel.since, 5*time.Second)

	rec = h.do(http.MethodGet, "/api/metrics?since=2025-01-02T03:04:05Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), h.tel.since.UTC())
	assert.Equal(t, 500, h.tel.limit)
}
