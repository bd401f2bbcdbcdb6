package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"SOCPulse/internal/domain/models"
	domrepo "SOCPulse/internal/domain/repository"
	domsvc "SOCPulse/internal/domain/service"
	"SOCPulse/internal/services/classifier"
	"SOCPulse/internal/services/features"
	applogger "SOCPulse/pkg/logger"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// SystemActor is the audit subject for actions nobody triggered by hand.
const SystemActor = "system"

// AnalysisConfidence is the confidence above which an analysis writes its
// severity back to the incident.
const AnalysisConfidence = 0.7

// ErrNoModel is returned when an operation needs a trained classifier.
var ErrNoModel = errors.New("no trained model available")

// Training source sizes, newest first.
const (
	trainIncidents = 1000
	trainAnomalies = 500
	trainMetrics   = 2000
	trainAudits    = 1000

	enrichAudits  = 10
	enrichMetrics = 5
)

// TrainSummary describes a classifier training run.
type TrainSummary struct {
	Source    classifier.Source `json:"source"`
	Reason    string            `json:"reason,omitempty"`
	Samples   int               `json:"samples"`
	Classes   int               `json:"classes"`
	Fallback  bool              `json:"fallback"`
	TrainedAt time.Time         `json:"trained_at"`
}

// ModelStatus is the classifier state reported to operators.
type ModelStatus struct {
	ModelAvailable bool                     `json:"model_available"`
	ModelKey       string                   `json:"model_key"`
	ModelExists    bool                     `json:"model_exists"`
	Source         classifier.Source        `json:"source,omitempty"`
	Samples        int                      `json:"samples,omitempty"`
	Fallback       bool                     `json:"fallback,omitempty"`
	TrainedAt      *time.Time               `json:"trained_at,omitempty"`
	AnomalyModels  []models.AnomalyCategory `json:"anomaly_models"`
}

// AnalysisReport is the outcome of AnalyzeIncident.
type AnalysisReport struct {
	IncidentID      int64                       `json:"incident_id"`
	AnalysisID      int64                       `json:"analysis_id"`
	Analysis        models.ClassificationResult `json:"analysis"`
	SeverityUpdated bool                        `json:"severity_updated"`
	Context         models.IncidentContext      `json:"context"`
}

// DeployResult is returned by DeployModel.
type DeployResult struct {
	Message    string            `json:"message"`
	Deployment domsvc.Deployment `json:"deployment_details"`
}

// IncidentService runs classifier training, classification and incident analysis.
type IncidentService struct {
	extractor  *features.Extractor
	classifier *classifier.Classifier
	incidents  domrepo.IncidentStore
	audits     domrepo.AuditStore
	telemetry  domrepo.TelemetryStore
	store      domrepo.ModelStore
	locker     Locker
	out        domrepo.Broadcaster
	metrics    domrepo.Metrics
	logger     *applogger.Logger
	deployers  map[string]domsvc.ModelDeployer
	anomalies  func() []models.AnomalyCategory
	lockTTL    time.Duration
	sf         singleflight.Group
}

// IncidentDeps groups the collaborators of IncidentService.
type IncidentDeps struct {
	Extractor  *features.Extractor
	Classifier *classifier.Classifier
	Incidents  domrepo.IncidentStore
	Audits     domrepo.AuditStore
	Telemetry  domrepo.TelemetryStore
	Models     domrepo.ModelStore
	Locker     Locker
	Out        domrepo.Broadcaster
	Metrics    domrepo.Metrics
	Logger     *applogger.Logger
	Deployers  []domsvc.ModelDeployer
	// LoadedAnomalies reports active anomaly categories for Status.
	LoadedAnomalies func() []models.AnomalyCategory
	LockTTL         time.Duration
}

func NewIncidentService(d IncidentDeps) *IncidentService {
	if d.Metrics == nil {
		d.Metrics = domrepo.NopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = applogger.NewNop()
	}
	deployers := make(map[string]domsvc.ModelDeployer, len(d.Deployers))
	for _, dep := range d.Deployers {
		if dep != nil {
			deployers[strings.ToLower(dep.Provider())] = dep
		}
	}
	loaded := d.LoadedAnomalies
	if loaded == nil {
		loaded = func() []models.AnomalyCategory { return nil }
	}
	if d.LockTTL <= 0 {
		d.LockTTL = 10 * time.Minute
	}
	return &IncidentService{
		extractor:  d.Extractor,
		classifier: d.Classifier,
		incidents:  d.Incidents,
		audits:     d.Audits,
		telemetry:  d.Telemetry,
		store:      d.Models,
		locker:     d.Locker,
		out:        d.Out,
		metrics:    d.Metrics,
		logger:     d.Logger.Component("incident_service"),
		deployers:  deployers,
		anomalies:  loaded,
		lockTTL:    d.LockTTL,
	}
}

// TrainIncidentModel rebuilds the classifier from stored security data,
// falling back to the synthetic set when it cannot be loaded or is too small.
func (s *IncidentService) TrainIncidentModel(ctx context.Context, actor string) (TrainSummary, error) {
	res, err, _ := s.sf.Do("classifier", func() (interface{}, error) {
		return s.train(ctx)
	})
	if err != nil {
		return TrainSummary{}, err
	}
	sum := res.(TrainSummary)

	s.publish(ctx, models.NewEnvelope(models.EventModelUpdated, map[string]interface{}{
		"model":    "incident_classifier",
		"source":   sum.Source,
		"samples":  sum.Samples,
		"fallback": sum.Fallback,
	}))
	s.audit(ctx, actor, "train_incident_model", "ai_model:incident_analysis",
		fmt.Sprintf("Trained incident analysis model on %d %s samples", sum.Samples, sum.Source))
	return sum, nil
}

func (s *IncidentService) train(ctx context.Context) (TrainSummary, error) {
	const lockKey = "lock:train:classifier"
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, lockKey, s.lockTTL)
		if err != nil {
			return TrainSummary{}, fmt.Errorf("acquire training lock: %w", err)
		}
		if !ok {
			return TrainSummary{}, fmt.Errorf("%w: classifier", ErrTrainingInProgress)
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
				s.logger.Warn("release training lock", applogger.Error(err))
			}
		}()
	}

	start := time.Now()
	rows, loadErr := s.loadTrainingRows(ctx)
	if loadErr != nil {
		s.metrics.RecordError("classifier_load")
		s.logger.Warn("loading training data failed", applogger.Error(loadErr))
	}
	data := s.classifier.SelectTrainingData(rows, loadErr)

	m, err := s.classifier.Fit(data)
	if err != nil {
		s.metrics.RecordTraining("classifier", "failed", time.Since(start).Seconds())
		return TrainSummary{}, fmt.Errorf("train classifier: %w", err)
	}
	blob, err := m.Marshal()
	if err != nil {
		return TrainSummary{}, fmt.Errorf("encode classifier: %w", err)
	}
	if err := s.store.Save(ctx, classifier.ModelKey, blob); err != nil {
		s.metrics.RecordTraining("classifier", "failed", time.Since(start).Seconds())
		return TrainSummary{}, fmt.Errorf("save classifier: %w", err)
	}
	s.classifier.Activate(m)

	s.metrics.RecordTraining("classifier", string(m.Source), time.Since(start).Seconds())
	s.metrics.SetModelLoaded("classifier", true)
	s.logger.Info("incident classifier trained",
		applogger.String("source", string(m.Source)),
		applogger.Int("samples", m.Samples),
		applogger.Bool("fallback", m.Fallback),
		applogger.Duration("took", time.Since(start)),
	)
	return TrainSummary{
		Source:    m.Source,
		Reason:    data.Reason,
		Samples:   m.Samples,
		Classes:   len(m.Forest.Classes),
		Fallback:  m.Fallback,
		TrainedAt: m.TrainedAt,
	}, nil
}

// loadTrainingRows pulls the four sources concurrently and extracts one
// labeled vector per row.
func (s *IncidentService) loadTrainingRows(ctx context.Context) ([]models.FeatureVector, error) {
	var (
		incidents []models.IncidentRecord
		anomalies []models.AnomalyRecord
		metrics   []models.MetricSample
		audits    []models.AuditEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		incidents, err = s.incidents.RecentIncidents(gctx, trainIncidents)
		return err
	})
	g.Go(func() (err error) {
		anomalies, err = s.telemetry.RecentAnomalies(gctx, trainAnomalies)
		return err
	})
	g.Go(func() (err error) {
		metrics, err = s.telemetry.RecentMetrics(gctx, trainMetrics)
		return err
	})
	g.Go(func() (err error) {
		audits, err = s.audits.RecentAudits(gctx, trainAudits)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([]models.FeatureVector, 0, len(incidents)+len(anomalies)+len(metrics)+len(audits))
	for _, r := range incidents {
		rows = append(rows, s.extractor.Incident(r))
	}
	for _, r := range anomalies {
		rows = append(rows, s.extractor.Anomaly(r))
	}
	for _, r := range metrics {
		rows = append(rows, s.extractor.Metric(r))
	}
	for _, r := range audits {
		rows = append(rows, s.extractor.Audit(r))
	}
	return rows, nil
}

// LoadModel activates the stored classifier if there is one.
func (s *IncidentService) LoadModel(ctx context.Context) (bool, error) {
	blob, err := s.store.Load(ctx, classifier.ModelKey)
	if errors.Is(err, domrepo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load classifier: %w", err)
	}
	if err := s.classifier.Load(blob); err != nil {
		s.logger.Warn("discarding stored classifier", applogger.Error(err))
		return false, nil
	}
	s.metrics.SetModelLoaded("classifier", true)
	return true, nil
}

// ClassifyIncident classifies ad-hoc incident data. Without a model the
// rule-based fallback result is returned.
func (s *IncidentService) ClassifyIncident(ctx context.Context, req models.ClassifyRequest) (models.ClassificationResult, error) {
	if strings.TrimSpace(req.Description) == "" && strings.TrimSpace(req.Title) == "" {
		return models.ClassificationResult{}, fmt.Errorf("%w: description is required", models.ErrInvalidInput)
	}
	rec := models.IncidentRecord{Tags: req.Tags}
	ic := models.IncidentContext{
		Title:            req.Title,
		Description:      req.Description,
		Severity:         models.ParseSeverity(req.Severity),
		Tags:             req.Tags,
		AlertCount:       req.AlertCount,
		SourceIPs:        req.SourceIPs,
		AffectedSystems:  req.AffectedSystems,
		LoginFailures:    req.LoginFailures,
		PrivilegeChanges: req.PrivilegeChanges,
		BusinessCritical: req.BusinessCritical || tagBool(rec.TagMap(), "business_critical"),
		ObservedAt:       time.Now().UTC(),
	}
	if ic.AffectedSystems <= 0 {
		ic.AffectedSystems = 1
	}
	return s.Classify(ctx, ic)
}

// Classify runs the classifier on a prepared context.
func (s *IncidentService) Classify(_ context.Context, ic models.IncidentContext) (models.ClassificationResult, error) {
	start := time.Now()
	res, err := s.classifier.Classify(ic)
	s.metrics.RecordLatency("classify", time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordError("classify")
		return models.ClassificationResult{}, err
	}
	s.metrics.RecordClassification(string(res.PredictedType), res.Fallback)
	return res, nil
}

// ContextFromIncident builds the inference view of a stored incident from its
// tags. Counter tags that are absent or malformed take their defaults.
func ContextFromIncident(rec models.IncidentRecord) models.IncidentContext {
	tags := rec.TagMap()
	return models.IncidentContext{
		IncidentID:       rec.ID,
		Title:            rec.Title,
		Description:      rec.Description,
		Severity:         models.ParseSeverity(string(rec.Severity)),
		Tags:             rec.Tags,
		AlertCount:       tagInt(tags, "alert_count", 1),
		SourceIPs:        tagInt(tags, "source_ips", 1),
		AffectedSystems:  tagInt(tags, "affected_systems", 1),
		LoginFailures:    tagInt(tags, "login_failures", 0),
		PrivilegeChanges: tagInt(tags, "privilege_changes", 0),
		BusinessCritical: tagBool(tags, "business_critical"),
		ObservedAt:       rec.CreatedAt,
	}
}

func tagInt(tags map[string]string, key string, def int) int {
	v, ok := tags[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return def
	}
	return n
}

func tagBool(tags map[string]string, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(tags[key]))
	return b
}

// AnalyzeIncident classifies a stored incident enriched with audit and
// telemetry context, writes back the severity when the model is confident,
// and records the analysis.
func (s *IncidentService) AnalyzeIncident(ctx context.Context, id int64, actor string) (AnalysisReport, error) {
	rec, err := s.incidents.GetIncident(ctx, id)
	if err != nil {
		return AnalysisReport{}, err
	}

	ic := ContextFromIncident(rec)
	s.enrich(ctx, &ic, rec.CreatedAt)

	res, err := s.Classify(ctx, ic)
	if err != nil {
		return AnalysisReport{}, err
	}

	report := AnalysisReport{IncidentID: id, Analysis: res, Context: ic}
	assessed := models.ParseSeverity(string(res.SeverityAssessment))
	if res.Confidence > AnalysisConfidence && assessed != models.ParseSeverity(string(rec.Severity)) {
		if err := s.incidents.UpdateSeverity(ctx, id, assessed); err != nil {
			return AnalysisReport{}, fmt.Errorf("update incident %d severity: %w", id, err)
		}
		report.SeverityUpdated = true
	}

	analysisID, err := s.incidents.SaveAnalysis(ctx, models.IncidentAnalysis{
		IncidentID:      id,
		Result:          res,
		SeverityUpdated: report.SeverityUpdated,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		s.metrics.RecordError("save_analysis")
		s.logger.Error("save incident analysis", applogger.Int64("incident_id", id), applogger.Error(err))
	}
	report.AnalysisID = analysisID

	s.publish(ctx, models.NewEnvelope(models.EventAnalysisComplete, map[string]interface{}{
		"incident_id": id,
		"analysis":    res,
	}))
	details, _ := json.Marshal(map[string]interface{}{
		"predicted_type":   res.PredictedType,
		"confidence":       res.Confidence,
		"risk_score":       res.RiskScore,
		"severity_updated": report.SeverityUpdated,
	})
	s.audit(ctx, actor, "ai_incident_analysis", fmt.Sprintf("incident:%d", id), string(details))
	return report, nil
}

// enrich adds audit counters and average resource usage observed since the
// incident was opened. Enrichment is best effort.
func (s *IncidentService) enrich(ctx context.Context, ic *models.IncidentContext, since time.Time) {
	audits, err := s.audits.AuditsSince(ctx, since, enrichAudits)
	if err != nil {
		s.logger.Warn("enrich: audits", applogger.Error(err))
	}
	for _, a := range audits {
		action := strings.ToLower(a.Action)
		if strings.Contains(action, "login") {
			ic.RecentLogins++
		}
		if strings.Contains(action, "fail") && strings.Contains(action, "auth") {
			ic.FailedAuth++
		}
		if strings.Contains(action, "admin") || strings.Contains(action, "privilege") {
			ic.AdminActions++
		}
		if strings.Contains(action, "export") || strings.Contains(action, "data") {
			ic.DataAccess++
		}
	}

	metrics, err := s.telemetry.MetricsSince(ctx, since, enrichMetrics)
	if err != nil {
		s.logger.Warn("enrich: metrics", applogger.Error(err))
		return
	}
	if len(metrics) == 0 {
		return
	}
	var cpu, mem float64
	for _, m := range metrics {
		cpu += m.CPUPercent
		mem += m.MemoryPercent
	}
	cpu /= float64(len(metrics))
	mem /= float64(len(metrics))
	ic.AvgCPUPercent = &cpu
	ic.AvgMemoryPercent = &mem
}

// LatestAnalysis returns the newest stored analysis of an incident.
func (s *IncidentService) LatestAnalysis(ctx context.Context, id int64) (models.IncidentAnalysis, error) {
	return s.incidents.LatestAnalysis(ctx, id)
}

// Status reports the classifier and anomaly model state.
func (s *IncidentService) Status(ctx context.Context) ModelStatus {
	st := ModelStatus{
		ModelKey:      classifier.ModelKey,
		AnomalyModels: s.anomalies(),
	}
	if st.AnomalyModels == nil {
		st.AnomalyModels = []models.AnomalyCategory{}
	}
	if m := s.classifier.Model(); m != nil {
		st.ModelAvailable = true
		st.Source = m.Source
		st.Samples = m.Samples
		st.Fallback = m.Fallback
		t := m.TrainedAt
		st.TrainedAt = &t
	}
	exists, err := s.store.Exists(ctx, classifier.ModelKey)
	if err != nil {
		s.logger.Warn("status: model store", applogger.Error(err))
	}
	st.ModelExists = exists
	return st
}

// DeployModel ships the active classifier to a cloud inference provider.
func (s *IncidentService) DeployModel(ctx context.Context, provider, actor string) (DeployResult, error) {
	m := s.classifier.Model()
	if m == nil {
		return DeployResult{}, fmt.Errorf("%w for deployment", ErrNoModel)
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = "aws"
	}
	dep, ok := s.deployers[provider]
	if !ok {
		return DeployResult{}, fmt.Errorf("%w: unsupported cloud provider: %s", models.ErrInvalidInput, provider)
	}

	blob, err := m.Marshal()
	if err != nil {
		return DeployResult{}, fmt.Errorf("encode classifier: %w", err)
	}
	d, err := dep.Deploy(ctx, classifier.ModelKey, blob)
	if err != nil {
		s.metrics.RecordError("deploy_" + provider)
		return DeployResult{}, fmt.Errorf("deploy to %s: %w", provider, err)
	}

	s.audit(ctx, actor, "deploy_ai_model", "ai_model:"+provider,
		fmt.Sprintf("Deployed incident analysis model to %s", provider))
	return DeployResult{
		Message:    fmt.Sprintf("Model deployed to %s successfully", provider),
		Deployment: d,
	}, nil
}

func (s *IncidentService) publish(ctx context.Context, env models.Envelope) {
	if s.out == nil {
		return
	}
	if err := s.out.Publish(ctx, env); err != nil {
		s.metrics.RecordError("broadcast")
		s.logger.Warn("broadcast failed", applogger.String("type", string(env.Type)), applogger.Error(err))
	}
}

func (s *IncidentService) audit(ctx context.Context, actor, action, resource, details string) {
	writeAudit(ctx, s.audits, s.logger, actor, action, resource, details)
}

func writeAudit(ctx context.Context, store domrepo.AuditStore, l *applogger.Logger, actor, action, resource, details string) {
	if store == nil {
		return
	}
	if actor == "" {
		actor = SystemActor
	}
	err := store.InsertAudit(ctx, models.AuditEntry{
		Timestamp: time.Now().UTC(),
		UserSub:   actor,
		Action:    action,
		Resource:  resource,
		Details:   details,
	})
	if err != nil {
		l.Error("audit write failed", applogger.String("action", action), applogger.Error(err))
	}
}
