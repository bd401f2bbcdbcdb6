package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SOCPulse/internal/domain/models"
	domrepo "SOCPulse/internal/domain/repository"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// ErrDuplicate and ErrThrottled are returned for alerts the pipeline drops.
var (
	ErrDuplicate = errors.New("duplicate alert")
	ErrThrottled = errors.New("agent throttled")
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, a *models.Alert) error
}

// AlertPipeline sits between the Kafka consumer and the response queue.
// It validates, drops replays, throttles noisy agents and buffers when
// the downstream is unavailable.
type AlertPipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	perAgent rate.Limit
	burst    int
	bufSize  int
	bufCh    chan *models.Alert
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	seen     *lru.Cache[string, time.Time]
	limiters *lru.Cache[string, *rate.Limiter]
	dedupTTL time.Duration
}

type PipelineOption func(*AlertPipeline)

// WithAgentRate sets the sustained alerts per second accepted per agent.
func WithAgentRate(perSecond float64, burst int) PipelineOption {
	return func(p *AlertPipeline) {
		if perSecond > 0 {
			p.perAgent = rate.Limit(perSecond)
		}
		if burst > 0 {
			p.burst = burst
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *AlertPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithDedupWindow sets how long an alert ID is remembered.
func WithDedupWindow(d time.Duration) PipelineOption {
	return func(p *AlertPipeline) {
		if d > 0 {
			p.dedupTTL = d
		}
	}
}

// NewAlertPipeline creates a new pipeline. dedupSize bounds how many alert
// IDs and agent limiters are tracked.
func NewAlertPipeline(proc Proc, metrics domrepo.Metrics, dedupSize int, opts ...PipelineOption) (*AlertPipeline, error) {
	if dedupSize <= 0 {
		dedupSize = 10000
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	seen, err := lru.New[string, time.Time](dedupSize)
	if err != nil {
		return nil, fmt.Errorf("dedupe cache: %w", err)
	}
	limiters, err := lru.New[string, *rate.Limiter](dedupSize)
	if err != nil {
		return nil, fmt.Errorf("limiter cache: %w", err)
	}
	p := &AlertPipeline{
		proc:     proc,
		metrics:  metrics,
		perAgent: 20,
		burst:    40,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		seen:     seen,
		limiters: limiters,
		dedupTTL: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Alert, p.bufSize)
	return p, nil
}

// Start launches background flushing of buffered alerts.
func (p *AlertPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case a := <-p.bufCh:
				if a == nil {
					continue
				}
				if err := p.proc.Process(ctx, a); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					}
					select {
					case p.bufCh <- a:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *AlertPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// Buffered returns the number of alerts waiting for the downstream.
func (p *AlertPipeline) Buffered() int { return len(p.bufCh) }

// Process validates, dedupes and throttles the alert, then forwards it.
// A downstream failure buffers the alert and counts as accepted; only a
// full buffer is reported. Validation failures wrap models.ErrInvalidInput.
func (p *AlertPipeline) Process(ctx context.Context, a *models.Alert) error {
	start := time.Now()
	if err := ValidateAlert(a); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.duplicate(a.ID, start) {
		p.metrics.RecordError("pipeline_duplicate")
		return ErrDuplicate
	}
	if !p.limiter(a.AgentName()).AllowN(start, 1) {
		p.metrics.RecordError("pipeline_throttle")
		return ErrThrottled
	}

	if err := p.proc.Process(ctx, a); err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			return err
		}
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- a:
			// accepted; the flush loop retries it
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
			return nil
		default:
			p.metrics.RecordError("pipeline_buffer_full")
			return fmt.Errorf("pipeline downstream, buffer full: %w", err)
		}
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// ValidateAlert rejects alerts that cannot be mapped to an incident.
func ValidateAlert(a *models.Alert) error {
	if a == nil {
		return fmt.Errorf("%w: alert nil", models.ErrInvalidInput)
	}
	if a.ID == "" {
		return fmt.Errorf("%w: alert id empty", models.ErrInvalidInput)
	}
	if a.Rule.Level != nil && (*a.Rule.Level < 0 || *a.Rule.Level > 15) {
		return fmt.Errorf("%w: rule level %d out of range", models.ErrInvalidInput, *a.Rule.Level)
	}
	return nil
}

func (p *AlertPipeline) duplicate(id string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if at, ok := p.seen.Get(id); ok && now.Sub(at) < p.dedupTTL {
		return true
	}
	p.seen.Add(id, now)
	return false
}

func (p *AlertPipeline) limiter(agent string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters.Get(agent); ok {
		return l
	}
	l := rate.NewLimiter(p.perAgent, p.burst)
	p.limiters.Add(agent, l)
	return l
}
