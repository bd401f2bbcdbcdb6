package broadcast

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SOCPulse/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/ai-alerts" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]interface{}
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestHub_RejectsMissingToken(t *testing.T) {
	hub := NewHub(HubConfig{}, nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
}

func TestHub_GreetingSubscribeAndPublish(t *testing.T) {
	hub := NewHub(HubConfig{}, StaticTokens(map[string]string{"tok": "alice"}), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "?token=tok")
	hello := readJSON(t, conn)
	assert.Equal(t, "connection_established", hello["type"])
	assert.Equal(t, "alice", hello["user_id"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "error", readJSON(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "subscribe", "alert_types": []string{string(models.EventAnomalyDetected)},
	}))
	assert.Equal(t, "subscription_confirmed", readJSON(t, conn)["type"])

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, models.NewEnvelope(models.EventModelUpdated, "filtered")))
	require.NoError(t, hub.Publish(ctx, models.NewEnvelope(models.EventAnomalyDetected, map[string]string{"type": "cpu"})))

	got := readJSON(t, conn)
	assert.Equal(t, string(models.EventAnomalyDetected), got["type"])
}

func TestHub_UnknownTokenRejected(t *testing.T) {
	hub := NewHub(HubConfig{}, StaticTokens(map[string]string{"tok": "alice"}), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "?token=nope")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

type sinkFunc func(context.Context, models.Envelope) error

func (f sinkFunc) Publish(ctx context.Context, env models.Envelope) error { return f(ctx, env) }

func TestFanout_DeliversPastFailures(t *testing.T) {
	var delivered int
	ok := sinkFunc(func(context.Context, models.Envelope) error { delivered++; return nil })
	bad := sinkFunc(func(context.Context, models.Envelope) error { return errors.New("broker down") })

	f := NewFanout(nil, bad, nil, ok)
	err := f.Publish(context.Background(), models.NewEnvelope(models.EventSOCNotification, nil))
	require.Error(t, err)
	assert.Equal(t, 1, delivered)
}

func TestNATSSink_Subject(t *testing.T) {
	s := NewNATSSink(nil, "")
	assert.Equal(t, "socpulse.events.anomaly_detected", s.Subject(models.EventAnomalyDetected))
}
