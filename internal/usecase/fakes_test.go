package usecase

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"SOCPulse/internal/domain/models"
	domrepo "SOCPulse/internal/domain/repository"
	domsvc "SOCPulse/internal/domain/service"
)

type memStore struct {
	mu        sync.Mutex
	incidents map[int64]models.IncidentRecord
	analyses  []models.IncidentAnalysis
	audits    []models.AuditEntry
	metrics   []models.MetricSample
	anomalies []models.AnomalyRecord
	nextID    int64
	failLoad  error
	// failEscalate makes EscalateSeverity return it.
	failEscalate error
}

func newMemStore() *memStore {
	return &memStore{incidents: make(map[int64]models.IncidentRecord)}
}

func (m *memStore) RecentIncidents(_ context.Context, limit int) ([]models.IncidentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad != nil {
		return nil, m.failLoad
	}
	out := make([]models.IncidentRecord, 0, len(m.incidents))
	for _, r := range m.incidents {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) GetIncident(_ context.Context, id int64) (models.IncidentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.incidents[id]
	if !ok {
		return models.IncidentRecord{}, domrepo.ErrNotFound
	}
	return r, nil
}

func (m *memStore) InsertIncident(_ context.Context, rec models.IncidentRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	m.incidents[rec.ID] = rec
	return rec.ID, nil
}

func (m *memStore) UpdateSeverity(_ context.Context, id int64, s models.Severity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.incidents[id]
	if !ok {
		return domrepo.ErrNotFound
	}
	r.Severity = s
	m.incidents[id] = r
	return nil
}

func (m *memStore) UpsertAlertIncident(_ context.Context, rec models.IncidentRecord) (models.IncidentRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.incidents {
		if r.AlertID != "" && r.AlertID == rec.AlertID {
			return r, false, nil
		}
	}
	m.nextID++
	rec.ID = m.nextID
	m.incidents[rec.ID] = rec
	return rec, true, nil
}

func (m *memStore) EscalateSeverity(_ context.Context, id int64, s models.Severity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEscalate != nil {
		return false, m.failEscalate
	}
	r, ok := m.incidents[id]
	if !ok {
		return false, domrepo.ErrNotFound
	}
	if r.Escalated {
		return false, nil
	}
	r.Severity = s
	r.Escalated = true
	m.incidents[id] = r
	return true, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id int64, s models.IncidentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.incidents[id]
	if !ok {
		return domrepo.ErrNotFound
	}
	r.Status = s
	m.incidents[id] = r
	return nil
}

func (m *memStore) SaveAnalysis(_ context.Context, a models.IncidentAnalysis) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = int64(len(m.analyses) + 1)
	m.analyses = append(m.analyses, a)
	return a.ID, nil
}

func (m *memStore) LatestAnalysis(_ context.Context, id int64) (models.IncidentAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.analyses) - 1; i >= 0; i-- {
		if m.analyses[i].IncidentID == id {
			return m.analyses[i], nil
		}
	}
	return models.IncidentAnalysis{}, domrepo.ErrNotFound
}

func (m *memStore) RecentAudits(_ context.Context, limit int) ([]models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad != nil {
		return nil, m.failLoad
	}
	return tail(m.audits, limit), nil
}

func (m *memStore) AuditsSince(_ context.Context, since time.Time, limit int) ([]models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditEntry
	for _, a := range m.audits {
		if !a.Timestamp.Before(since) {
			out = append(out, a)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) InsertAudit(_ context.Context, e models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.audits) + 1)
	m.audits = append(m.audits, e)
	return nil
}

func (m *memStore) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.audits))
	for _, a := range m.audits {
		out = append(out, a.Action)
	}
	return out
}

func (m *memStore) RecentMetrics(_ context.Context, limit int) ([]models.MetricSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad != nil {
		return nil, m.failLoad
	}
	return tail(m.metrics, limit), nil
}

func (m *memStore) MetricsSince(_ context.Context, since time.Time, limit int) ([]models.MetricSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MetricSample
	for _, s := range m.metrics {
		if !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	return tail(out, limit), nil
}

func (m *memStore) InsertMetric(_ context.Context, s models.MetricSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, s)
	return nil
}

func (m *memStore) RecentAnomalies(_ context.Context, limit int) ([]models.AnomalyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tail(m.anomalies, limit), nil
}

func (m *memStore) InsertAnomaly(_ context.Context, r models.AnomalyRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = "an-" + string(rune('a'+len(m.anomalies)))
	m.anomalies = append(m.anomalies, r)
	return r.ID, nil
}

func tail[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		s = s[len(s)-limit:]
	}
	return append([]T(nil), s...)
}

type memModels struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemModels() *memModels { return &memModels{blobs: make(map[string][]byte)} }

func (m *memModels) Save(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = blob
	return nil
}

func (m *memModels) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return b, nil
}

func (m *memModels) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[key]
	return ok, nil
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []models.Envelope
}

func (b *recordingBroadcaster) Publish(_ context.Context, env models.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, env)
	return nil
}

func (b *recordingBroadcaster) types() []models.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.EventType, 0, len(b.sent))
	for _, e := range b.sent {
		out = append(out, e.Type)
	}
	return out
}

// ports records every call and fails the ones listed in fail.
type ports struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (p *ports) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	if p.fail[call] {
		return errors.New(call + " unavailable")
	}
	return nil
}

func (p *ports) LookupHash(_ context.Context, h string) (domsvc.HashReport, error) {
	if err := p.record("lookup"); err != nil {
		return domsvc.HashReport{}, err
	}
	return domsvc.HashReport{Hash: h, Found: true, Malicious: 3, Provider: "virustotal"}, nil
}

func (p *ports) contain(action, target string) (domsvc.ContainmentResult, error) {
	if err := p.record(action); err != nil {
		return domsvc.ContainmentResult{}, err
	}
	return domsvc.ContainmentResult{Target: target, Action: action, Method: "simulated", Status: "ok"}, nil
}

func (p *ports) BlockHash(_ context.Context, h string) (domsvc.ContainmentResult, error) {
	return p.contain("block_hash", h)
}
func (p *ports) BlockIP(_ context.Context, ip string) (domsvc.ContainmentResult, error) {
	return p.contain("block_ip", ip)
}
func (p *ports) IsolateHost(_ context.Context, h string) (domsvc.ContainmentResult, error) {
	return p.contain("isolate", h)
}
func (p *ports) ThrottleSource(_ context.Context, ip string) (domsvc.ContainmentResult, error) {
	return p.contain("throttle", ip)
}
func (p *ports) QuarantineMessage(_ context.Context, id string) (domsvc.ContainmentResult, error) {
	return p.contain("quarantine", id)
}
func (p *ports) RevokeAccess(_ context.Context, user, mode string) (domsvc.ContainmentResult, error) {
	return p.contain(mode, user)
}
func (p *ports) Notify(context.Context, domsvc.Notification) error   { return p.record("notify") }
func (p *ports) Escalate(context.Context, domsvc.Notification) error { return p.record("escalate") }
func (p *ports) OpenCase(_ context.Context, inc models.IncidentRecord, _ string) (string, error) {
	if err := p.record("open_case"); err != nil {
		return "", err
	}
	return "INC-1", nil
}

type fakeDeployer struct{ provider string }

func (d fakeDeployer) Provider() string { return d.provider }
func (d fakeDeployer) Deploy(_ context.Context, key string, artifact []byte) (domsvc.Deployment, error) {
	return domsvc.Deployment{Provider: d.provider, ModelID: key, EndpointURL: "https://example.invalid/" + d.provider, Status: "deployed"}, nil
}

type fixedSource struct {
	sample models.MetricSample
	err    error
}

func (f fixedSource) Sample(context.Context) (models.MetricSample, error) { return f.sample, f.err }

// baseline is a quiet host sampled every 37 minutes over a few days.
func baseline(n int) []models.MetricSample {
	rng := rand.New(rand.NewSource(7))
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	out := make([]models.MetricSample, n)
	for i := range out {
		out[i] = models.MetricSample{
			Timestamp:     start.Add(time.Duration(i) * 37 * time.Minute),
			Host:          "web-01",
			CPUPercent:    20 + rng.NormFloat64()*3,
			MemoryPercent: 40 + rng.NormFloat64()*2,
			MemoryUsed:    uint64(4e9 + rng.NormFloat64()*1e8),
			MemoryTotal:   16e9,
			NetBytesSent:  uint64(1e6 + rng.NormFloat64()*1e5),
			NetBytesRecv:  uint64(5e6 + rng.NormFloat64()*5e5),
		}
	}
	return out
}
