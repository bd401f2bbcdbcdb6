package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu      sync.Mutex
	batches [][]AggregatedLogEntry
}

func (c *capture) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (c *capture) all() []AggregatedLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []AggregatedLogEntry
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

func bufLogger(buf *bytes.Buffer) *Logger {
	return &Logger{zl: zerolog.New(buf).Level(zerolog.InfoLevel), sink: &sink{}}
}

func TestFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := bufLogger(&buf).Component("scorer")

	l.Debug("hidden")
	l.Info("scored",
		String("category", "cpu"),
		Int("n", 3),
		Float64("score", -0.25),
		Bool("anomaly", true),
		Duration("took", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "scorer", line["component"])
	assert.Equal(t, "cpu", line["category"])
	assert.Equal(t, 3.0, line["n"])
	assert.Equal(t, -0.25, line["score"])
	assert.Equal(t, true, line["anomaly"])
	assert.Equal(t, 1500.0, line["took"])
	assert.Equal(t, "boom", line["error"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestCollectorSharedWithChildren(t *testing.T) {
	var buf bytes.Buffer
	root := bufLogger(&buf)
	child := root.Component("store")

	pub := &capture{}
	root.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Publisher: pub})
	for i := 0; i < 3; i++ {
		child.Error("insert failed", Int("attempt", i))
	}
	child.Warn("not collected")
	root.RemoveCollector()

	got := pub.all()
	require.Len(t, got, 1)
	assert.Equal(t, "insert failed", got[0].Message)
	assert.Equal(t, 3, got[0].Count)
	assert.Equal(t, int64(2), got[0].Fields["attempt"])
	assert.Contains(t, got[0].Caller, "pkg/logger/logger_test.go:")
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capture{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.Add("error", "a", nil, "x.go:1")
	c.Add("error", "b", nil, "x.go:2")
	assert.Eventually(t, func() bool { return len(pub.all()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestNewRejectsLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)
	l, err := New(&Config{Level: "warn", Output: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}
