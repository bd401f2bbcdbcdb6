package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	applogger "SOCPulse/pkg/logger"

	"github.com/creasty/defaults"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// promoteScript moves due retries back to pending atomically.
var promoteScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
for _, m in ipairs(due) do
	redis.call("ZREM", KEYS[1], m)
	redis.call("LPUSH", KEYS[2], m)
end
return #due
`)

// RedisQueue is a reliable list queue. Workers BLMOVE from pending into
// a processing list and remove the entry once handled, so a crash leaves
// messages in processing for the next Start to requeue. Failures are
// retried through a delay ZSET and end on a capped dead-letter list.
//
// Requeueing on Start assumes one consuming process per key prefix.
type RedisQueue struct {
	client *redis.Client
	cfg    Config
	log    *applogger.Logger
	prefix string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*RedisQueue)

// WithKeyPrefix namespaces the queue keys; the default is "socpulse:queue".
func WithKeyPrefix(prefix string) Option {
	return func(q *RedisQueue) { q.prefix = prefix }
}

func NewRedisQueue(client *redis.Client, cfg Config, logger *applogger.Logger, opts ...Option) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("queue: redis client is required")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("queue: defaults: %w", err)
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	q := &RedisQueue{
		client: client,
		cfg:    cfg,
		log:    logger.Component("queue"),
		prefix: "socpulse:queue",
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

func (q *RedisQueue) key(name string) string { return q.prefix + ":" + name }

// RegisterJob binds a handler to its message type; the first wins.
func (q *RedisQueue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[job.Type()]; ok {
		q.log.Warn("job already registered", applogger.String("type", job.Type()))
		return
	}
	q.jobs[job.Type()] = job
}

func (q *RedisQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return errors.New("queue: already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	pctx, pcancel := context.WithTimeout(ctx, 5*time.Second)
	defer pcancel()
	if err := q.client.Ping(pctx).Err(); err != nil {
		cancel()
		return fmt.Errorf("queue: redis ping: %w", err)
	}
	n, err := q.requeueProcessing(pctx)
	if err != nil {
		cancel()
		return err
	}
	if n > 0 {
		q.log.Warn("requeued unfinished messages", applogger.Int("count", n))
	}

	q.cancel = cancel
	q.running = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
	q.wg.Add(1)
	go q.promote(ctx)

	q.log.Info("started", applogger.Int("workers", q.cfg.Workers), applogger.String("prefix", q.prefix))
	return nil
}

// Stop cancels workers and waits for in-flight handlers.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.log.Info("stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue: stop: %w", ctx.Err())
	}
}

// PublishMessage encodes payload as JSON and appends it to pending.
func (q *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	running := q.running
	_, known := q.jobs[msgType]
	q.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}
	if !known {
		return fmt.Errorf("%w %q", ErrUnknownJob, msgType)
	}

	if q.cfg.MaxPending > 0 {
		n, err := q.client.LLen(ctx, q.key("pending")).Result()
		if err != nil {
			return fmt.Errorf("queue: llen: %w", err)
		}
		if n >= int64(q.cfg.MaxPending) {
			return ErrQueueFull
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: marshal payload: %w", err)
	}
	b, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Type:       msgType,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("queue: marshal envelope: %w", err)
	}
	return q.client.LPush(ctx, q.key("pending"), b).Err()
}

func (q *RedisQueue) work(ctx context.Context) {
	defer q.wg.Done()
	for ctx.Err() == nil {
		raw, err := q.client.BLMove(ctx, q.key("pending"), q.key("processing"), "RIGHT", "LEFT", time.Second).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			q.log.Error("blmove failed", applogger.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		q.handle(ctx, raw)
	}
}

func (q *RedisQueue) handle(ctx context.Context, raw string) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		q.log.Error("dropping undecodable message", applogger.Error(err))
		q.ack(raw)
		return
	}

	q.mu.RLock()
	job, ok := q.jobs[env.Type]
	q.mu.RUnlock()
	if !ok {
		q.fail(raw, env, fmt.Errorf("%w %q", ErrUnknownJob, env.Type), true)
		return
	}

	jctx := ctx
	if q.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jctx, cancel = context.WithTimeout(ctx, q.cfg.JobTimeout)
		defer cancel()
	}
	start := time.Now()
	err := job.Handle(jctx, env.Payload)
	if err == nil {
		q.ack(raw)
		return
	}
	if ctx.Err() != nil {
		// shutdown: leave it in processing for the next Start
		q.log.Warn("job interrupted", applogger.String("id", env.ID))
		return
	}
	q.log.Error("job failed",
		applogger.String("id", env.ID),
		applogger.String("type", env.Type),
		applogger.Int("attempt", env.Attempt+1),
		applogger.Duration("elapsed", time.Since(start)),
		applogger.Error(err),
	)
	q.fail(raw, env, err, false)
}

// fail schedules a retry or dead-letters, then drops the processing entry.
func (q *RedisQueue) fail(raw string, env Envelope, cause error, dead bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env.Attempt++
	env.LastError = cause.Error()
	b, err := json.Marshal(env)
	if err != nil {
		q.log.Error("marshal failed message", applogger.Error(err))
		return
	}

	pipe := q.client.TxPipeline()
	if dead || env.Attempt > q.cfg.MaxRetries {
		pipe.LPush(ctx, q.key("dead"), b)
		pipe.LTrim(ctx, q.key("dead"), 0, q.cfg.DeadCap-1)
		q.log.Warn("dead-lettered", applogger.String("id", env.ID), applogger.Int("attempts", env.Attempt))
	} else {
		at := q.cfg.retryAt(time.Now(), env.Attempt)
		pipe.ZAdd(ctx, q.key("retry"), redis.Z{Score: float64(at.Unix()), Member: b})
	}
	pipe.LRem(ctx, q.key("processing"), 1, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error("reschedule failed", applogger.String("id", env.ID), applogger.Error(err))
	}
}

func (q *RedisQueue) ack(raw string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.client.LRem(ctx, q.key("processing"), 1, raw).Err(); err != nil {
		q.log.Error("ack failed", applogger.Error(err))
	}
}

func (q *RedisQueue) promote(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := strconv.FormatInt(time.Now().Unix(), 10)
			err := promoteScript.Run(ctx, q.client, []string{q.key("retry"), q.key("pending")}, now, 100).Err()
			if err != nil && ctx.Err() == nil {
				q.log.Error("promote retries", applogger.Error(err))
			}
		}
	}
}

func (q *RedisQueue) requeueProcessing(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.key("processing"), q.key("pending"), "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("queue: requeue: %w", err)
		}
		n++
	}
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.key("pending"))
	processing := pipe.LLen(ctx, q.key("processing"))
	retrying := pipe.ZCard(ctx, q.key("retry"))
	dead := pipe.LLen(ctx, q.key("dead"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue: stats: %w", err)
	}
	return Stats{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Retrying:   retrying.Val(),
		Dead:       dead.Val(),
	}, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
