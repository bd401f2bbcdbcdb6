package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"SOCPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type procStub struct {
	mu   sync.Mutex
	fail bool
	got  []string
}

func (p *procStub) Process(_ context.Context, a *models.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("queue down")
	}
	p.got = append(p.got, a.ID)
	return nil
}

func (p *procStub) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.got...)
}

func level(n int) *int { return &n }

func TestAlertPipeline_ValidatesAndDedupes(t *testing.T) {
	proc := &procStub{}
	p, err := NewAlertPipeline(proc, nil, 100)
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, p.Process(ctx, &models.Alert{}), models.ErrInvalidInput)
	assert.ErrorIs(t, p.Process(ctx, &models.Alert{ID: "a", Rule: models.AlertRule{Level: level(99)}}), models.ErrInvalidInput)

	require.NoError(t, p.Process(ctx, &models.Alert{ID: "1"}))
	assert.ErrorIs(t, p.Process(ctx, &models.Alert{ID: "1"}), ErrDuplicate)
	assert.Equal(t, []string{"1"}, proc.ids())
}

func TestAlertPipeline_ThrottlesPerAgent(t *testing.T) {
	proc := &procStub{}
	p, err := NewAlertPipeline(proc, nil, 100, WithAgentRate(0.001, 2))
	require.NoError(t, err)
	ctx := context.Background()

	agent := models.AlertAgent{Name: "web-01"}
	for i := 0; i < 2; i++ {
		require.NoError(t, p.Process(ctx, &models.Alert{ID: fmt.Sprint(i), Agent: agent}))
	}
	assert.ErrorIs(t, p.Process(ctx, &models.Alert{ID: "2", Agent: agent}), ErrThrottled)
	require.NoError(t, p.Process(ctx, &models.Alert{ID: "3", Agent: models.AlertAgent{Name: "db-01"}}))
}

func TestAlertPipeline_BuffersAndFlushes(t *testing.T) {
	proc := &procStub{fail: true}
	p, err := NewAlertPipeline(proc, nil, 100, WithBufferSize(4))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.Process(ctx, &models.Alert{ID: "x"}))
	assert.Equal(t, 1, p.Buffered())

	proc.mu.Lock()
	proc.fail = false
	proc.mu.Unlock()

	p.Start(ctx)
	defer p.Stop()
	require.Eventually(t, func() bool { return len(proc.ids()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestAlertPipeline_FullBufferReportsError(t *testing.T) {
	proc := &procStub{fail: true}
	p, err := NewAlertPipeline(proc, nil, 100, WithBufferSize(1))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, &models.Alert{ID: "a"}))
	assert.Error(t, p.Process(ctx, &models.Alert{ID: "b"}))
	assert.Equal(t, 1, p.Buffered())
}
