package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	applogger "SOCPulse/pkg/logger"

	"github.com/avast/retry-go/v5"
	"github.com/creasty/defaults"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// ConsumerConfig tunes a consumer group. Zero fields take the defaults.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string        `default:"socpulse"`
	Workers    int           `default:"1"`
	BufferSize int           `default:"64"`
	Attempts   uint          `default:"4"`
	BackoffMin time.Duration `default:"100ms"`
	BackoffMax time.Duration `default:"5s"`
	DLQTopic   string
	MinBytes   int `default:"1"`
	MaxBytes   int `default:"10485760"`
}

var (
	consumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "socpulse",
		Subsystem: "kafka",
		Name:      "consumed_total",
		Help:      "Consumed messages by outcome (ok, dlq, dropped).",
	}, []string{"topic", "outcome"})

	handleSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "socpulse",
		Subsystem: "kafka",
		Name:      "handle_seconds",
		Help:      "Time from dispatch to commit, retries included.",
	}, []string{"topic"})
)

type fetched struct {
	reader  *kafka.Reader
	handler MessageHandler
	km      kafka.Message
}

// Consumer reads each registered topic with its own group reader and
// dispatches to worker lanes keyed by topic and partition, so a
// partition is handled in order by one worker. Offsets are committed
// after success or after the message is parked on the DLQ.
type Consumer struct {
	cfg      ConsumerConfig
	log      *applogger.Logger
	hook     Hook
	handlers map[string]MessageHandler
	readers  []*kafka.Reader
	lanes    []chan fetched
	dlq      *kafka.Writer

	cancel   context.CancelFunc
	fetchWG  sync.WaitGroup
	workWG   sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(cfg ConsumerConfig, logger *applogger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: brokers are required")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("kafka consumer: defaults: %w", err)
	}
	if logger == nil {
		logger = applogger.NewNop()
	}

	c := &Consumer{
		cfg:      cfg,
		log:      logger.Component("kafka_consumer"),
		hook:     HookFuncs{},
		handlers: make(map[string]MessageHandler),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	return c, nil
}

// Use sets the hook applied around every attempt.
func (c *Consumer) Use(h Hook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler must be called before Start. A second handler for the
// same topic is ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.log.Warn("handler already registered", applogger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	depth := c.cfg.BufferSize / c.cfg.Workers
	c.lanes = make([]chan fetched, c.cfg.Workers)
	for i := range c.lanes {
		c.lanes[i] = make(chan fetched, depth)
		c.workWG.Add(1)
		go c.work(ctx, c.lanes[i])
	}

	for topic, h := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			GroupID:  c.cfg.GroupID,
			Topic:    topic,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.readers = append(c.readers, r)
		c.fetchWG.Add(1)
		go c.fetch(ctx, r, h)
	}

	c.log.Info("started",
		applogger.Int("topics", len(c.handlers)),
		applogger.Int("workers", c.cfg.Workers),
		applogger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop cancels fetching and waits for in-flight messages. Buffered but
// unhandled messages are not committed and are redelivered.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()
		c.fetchWG.Wait()
		for _, lane := range c.lanes {
			close(lane)
		}

		done := make(chan struct{})
		go func() {
			c.workWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer: stop: %w", ctx.Err())
		}

		for _, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("reader close", applogger.String("topic", r.Config().Topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			_ = c.dlq.Close()
		}
		c.log.Info("stopped")
	})
	return err
}

func (c *Consumer) lane(topic string, partition int) chan fetched {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return c.lanes[(int(h.Sum32())+partition)%len(c.lanes)]
}

func (c *Consumer) fetch(ctx context.Context, r *kafka.Reader, h MessageHandler) {
	defer c.fetchWG.Done()
	failures := 0
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.log.Warn("fetch failed", applogger.String("topic", h.Topic()), applogger.Error(err))
			select {
			case <-time.After(c.backoff(uint(failures))):
				continue
			case <-ctx.Done():
				return
			}
		}
		failures = 0

		select {
		case c.lane(km.Topic, km.Partition) <- fetched{reader: r, handler: h, km: km}:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context, lane <-chan fetched) {
	defer c.workWG.Done()
	for f := range lane {
		if ctx.Err() != nil {
			continue
		}
		c.process(ctx, f)
	}
}

func (c *Consumer) process(ctx context.Context, f fetched) {
	start := time.Now()
	msg := fromKafka(f.km)

	var last error
	attempt := 0
	_ = retry.New(
		retry.Context(ctx),
		retry.Attempts(c.cfg.Attempts),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return c.backoff(n)
		}),
		retry.RetryIf(func(err error) bool {
			var perm *PermanentError
			return !errors.As(err, &perm)
		}),
	).Do(func() error {
		attempt++
		last = c.attempt(ctx, f.handler, msg, attempt)
		return last
	})

	if ctx.Err() != nil && last != nil {
		consumedTotal.WithLabelValues(msg.Topic, "dropped").Inc()
		return
	}

	outcome := "ok"
	if last != nil {
		outcome = "dlq"
		c.log.Error("message failed",
			applogger.String("topic", msg.Topic),
			applogger.Int("partition", msg.Partition),
			applogger.Int64("offset", msg.Offset),
			applogger.Int("attempts", attempt),
			applogger.Error(last),
		)
		if err := c.park(msg, last); err != nil {
			// uncommitted, the group redelivers it
			c.log.Error("dlq write failed", applogger.Error(err))
			consumedTotal.WithLabelValues(msg.Topic, "dropped").Inc()
			return
		}
	}

	cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.reader.CommitMessages(cctx, f.km); err != nil {
		c.log.Warn("commit failed", applogger.String("topic", msg.Topic), applogger.Error(err))
	}
	consumedTotal.WithLabelValues(msg.Topic, outcome).Inc()
	handleSeconds.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) attempt(ctx context.Context, h MessageHandler, msg *Message, n int) (err error) {
	hctx, err := c.hook.Before(ctx, msg)
	if hctx == nil {
		hctx = ctx
	}
	if err == nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = Permanent(fmt.Errorf("handler panic: %v", r))
				}
			}()
			err = h.Handle(hctx, msg.Value)
		}()
	}
	c.hook.After(hctx, msg, n, err)
	return err
}

// park publishes the raw payload to the DLQ. Without a DLQ the
// message is dropped and committed.
func (c *Consumer) park(msg *Message, cause error) error {
	if c.dlq == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(msg.Topic)},
			{Key: "source_offset", Value: []byte(fmt.Sprint(msg.Offset))},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
}

// backoff doubles from BackoffMin up to BackoffMax with up to 50% jitter.
func (c *Consumer) backoff(n uint) time.Duration {
	if n == 0 {
		n = 1
	}
	d := c.cfg.BackoffMin
	for i := uint(1); i < n && d < c.cfg.BackoffMax; i++ {
		d *= 2
	}
	if d > c.cfg.BackoffMax {
		d = c.cfg.BackoffMax
	}
	if half := int64(d) / 2; half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}
