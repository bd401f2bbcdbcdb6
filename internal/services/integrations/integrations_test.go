package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"SOCPulse/internal/domain/models"
	"SOCPulse/internal/domain/repository"
	"SOCPulse/internal/domain/service"
	"SOCPulse/pkg/cache"
	xhttp "SOCPulse/pkg/http"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sha = "275a021bbfb6489e54d471899f7db9d1663fc695ec2fe2a2c4538aabf651fd0f"

func fastReliability() ReliabilityConfig {
	return ReliabilityConfig{RatePerSecond: 1000, Burst: 100, Attempts: 3, RetryDelay: time.Millisecond}
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(&xhttp.StatusError{Code: 404}))
	assert.True(t, Retryable(&xhttp.StatusError{Code: 503}))
	assert.True(t, Retryable(&xhttp.StatusError{Code: 429}))
	assert.True(t, Retryable(errors.New("connection reset")))
}

func TestReliability_RetriesTransientErrors(t *testing.T) {
	r := NewReliability("test_retry", fastReliability(), nil)
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &xhttp.StatusError{Code: 502}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestReliability_DoesNotRetryClientErrors(t *testing.T) {
	r := NewReliability("test_noretry", fastReliability(), nil)
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return &xhttp.StatusError{Code: 400}
	})
	var se *xhttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.Code)
	assert.Equal(t, 1, calls)
}

func TestReliability_BreakerOpens(t *testing.T) {
	cfg := fastReliability()
	cfg.Attempts = 1
	cfg.TripAfter = 2
	r := NewReliability("test_breaker", cfg, nil)
	fail := func(context.Context) error { return errors.New("down") }

	require.Error(t, r.Do(context.Background(), fail))
	require.Error(t, r.Do(context.Background(), fail))

	called := false
	err := r.Do(context.Background(), func(context.Context) error { called = true; return nil })
	require.Error(t, err)
	assert.False(t, called)
}

func vtServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "secret", r.Header.Get("x-apikey"))
		if !strings.HasSuffix(r.URL.Path, "/files/"+sha) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"NotFoundError"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"attributes": map[string]interface{}{
					"last_analysis_stats": map[string]int{
						"malicious": 41, "suspicious": 2, "harmless": 0, "undetected": 19,
					},
				},
			},
		})
	}))
}

func TestVirusTotal_LookupHashCachesVerdicts(t *testing.T) {
	var hits int32
	srv := vtServer(t, &hits)
	defer srv.Close()

	mem := cache.NewMemoryCache(cache.MemoryConfig{})
	defer mem.Close()
	vt := NewVirusTotal(VirusTotalConfig{BaseURL: srv.URL, APIKey: "secret", CacheTTL: time.Minute, Reliability: fastReliability()}, mem, nil)

	rep, err := vt.LookupHash(context.Background(), sha)
	require.NoError(t, err)
	assert.True(t, rep.Found)
	assert.Equal(t, 41, rep.Malicious)
	assert.Equal(t, 2, rep.Suspicious)
	assert.Equal(t, 19, rep.Undetected)
	assert.Equal(t, "virustotal", rep.Provider)

	again, err := vt.LookupHash(context.Background(), strings.ToUpper(sha))
	require.NoError(t, err)
	assert.Equal(t, 41, again.Malicious)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestVirusTotal_UnknownHashIsNotFound(t *testing.T) {
	var hits int32
	srv := vtServer(t, &hits)
	defer srv.Close()

	vt := NewVirusTotal(VirusTotalConfig{BaseURL: srv.URL, APIKey: "secret", Reliability: fastReliability()}, nil, nil)
	rep, err := vt.LookupHash(context.Background(), "d41d8cd98f00b204e9800998ecf8427e")
	require.NoError(t, err)
	assert.False(t, rep.Found)
	assert.Zero(t, rep.Malicious)
}

func TestVirusTotal_RejectsBadInput(t *testing.T) {
	vt := NewVirusTotal(VirusTotalConfig{APIKey: "secret"}, nil, nil)
	_, err := vt.LookupHash(context.Background(), "not-a-hash")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	noKey := NewVirusTotal(VirusTotalConfig{}, nil, nil)
	_, err = noKey.LookupHash(context.Background(), sha)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFleetDM_SimulatedWithoutURL(t *testing.T) {
	f := NewFleetDM(FleetDMConfig{}, nil)
	require.True(t, f.Simulated())

	res, err := f.BlockHash(context.Background(), sha)
	require.NoError(t, err)
	assert.Equal(t, "blocked", res.Action)
	assert.Equal(t, "fleetdm_policy", res.Method)

	res, err = f.RevokeAccess(context.Background(), "alice", "password_reset")
	require.NoError(t, err)
	assert.Equal(t, "password_reset", res.Action)
	assert.Equal(t, "simulated", res.Method)
}

func TestFleetDM_CallsAPI(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"host":{"id":17}}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := NewFleetDM(FleetDMConfig{URL: srv.URL, Token: "tok", Reliability: fastReliability()}, nil)
	_, err := f.BlockHash(context.Background(), sha)
	require.NoError(t, err)
	res, err := f.IsolateHost(context.Background(), "web-01")
	require.NoError(t, err)
	assert.Equal(t, "isolated", res.Action)

	assert.Equal(t, []string{
		"POST /api/v1/fleet/global/policies",
		"GET /api/v1/fleet/hosts/identifier/web-01",
		"POST /api/v1/fleet/hosts/17/lock",
	}, paths)
}

type memIncidents struct {
	repository.IncidentStore
	next     int64
	inserted []models.IncidentRecord
	status   map[int64]models.IncidentStatus
}

func (m *memIncidents) InsertIncident(_ context.Context, rec models.IncidentRecord) (int64, error) {
	m.next++
	m.inserted = append(m.inserted, rec)
	return m.next, nil
}

func (m *memIncidents) UpdateStatus(_ context.Context, id int64, s models.IncidentStatus) error {
	if m.status == nil {
		m.status = map[int64]models.IncidentStatus{}
	}
	m.status[id] = s
	return nil
}

type memAudits struct {
	repository.AuditStore
	entries []models.AuditEntry
}

func (m *memAudits) InsertAudit(_ context.Context, e models.AuditEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestLocalCaseManager_OpenCase(t *testing.T) {
	inc := &memIncidents{next: 41}
	aud := &memAudits{}
	cm := NewLocalCaseManager(inc, aud)

	ref, err := cm.OpenCase(context.Background(), models.IncidentRecord{Title: "wazuh alert"}, "[HIGH] malware")
	require.NoError(t, err)
	assert.Equal(t, "INC-42", ref)
	require.Len(t, inc.inserted, 1)
	assert.Equal(t, models.IncidentOpen, inc.inserted[0].Status)
	assert.Equal(t, models.IncidentInProgress, inc.status[42])
	require.Len(t, aud.entries, 1)
	assert.Equal(t, "incident:42", aud.entries[0].Resource)

	ref, err = cm.OpenCase(context.Background(), models.IncidentRecord{ID: 7}, "x")
	require.NoError(t, err)
	assert.Equal(t, "INC-7", ref)
	assert.Len(t, inc.inserted, 1)
}

type capturePublisher struct{ got []models.Envelope }

func (c *capturePublisher) Publish(_ context.Context, env models.Envelope) error {
	c.got = append(c.got, env)
	return nil
}

func TestBroadcastNotifier(t *testing.T) {
	pub := &capturePublisher{}
	n := NewBroadcastNotifier(pub, nil)
	require.NoError(t, n.Notify(context.Background(), serviceNote()))
	require.NoError(t, n.Escalate(context.Background(), serviceNote()))
	require.Len(t, pub.got, 2)
	assert.Equal(t, models.EventSOCNotification, pub.got[0].Type)
	assert.Equal(t, models.EventOnCallEscalation, pub.got[1].Type)
}

type fakePutter struct{ in *s3.PutObjectInput }

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	return &s3.PutObjectOutput{}, nil
}

func TestS3Deployer_Deploy(t *testing.T) {
	put := &fakePutter{}
	d := &S3Deployer{cfg: AWSConfig{Region: "eu-west-1", Bucket: "models", Prefix: "soc/"}, client: put}

	dep, err := d.Deploy(context.Background(), "classifier/incident", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "aws", dep.Provider)
	assert.Equal(t, "deployed", dep.Status)
	assert.Equal(t, "https://sagemaker.eu-west-1.amazonaws.com/endpoints/incident-analysis", dep.EndpointURL)
	assert.Equal(t, "s3://models/soc/classifier-incident.json", dep.Location)
	assert.Equal(t, "soc/classifier-incident.json", *put.in.Key)

	_, err = d.Deploy(context.Background(), "classifier/incident", nil)
	assert.Error(t, err)
}

func TestStubDeployer(t *testing.T) {
	for _, p := range []string{"gcp", "azure"} {
		d, err := NewStubDeployer(p)
		require.NoError(t, err)
		dep, err := d.Deploy(context.Background(), "classifier/incident", []byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, p, dep.Provider)
		assert.Equal(t, "incident-analysis-model", dep.ModelID)
	}
	_, err := NewStubDeployer("oracle")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func serviceNote() service.Notification {
	return service.Notification{IncidentID: 3, Title: "t", Severity: models.SeverityHigh, Tier: "HIGH"}
}
