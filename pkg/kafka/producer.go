package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// ProducerConfig tunes the writer. Zero fields take the defaults.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int           `default:"-1"`
	Compression  string        `default:"snappy"`
	MaxAttempts  int           `default:"5"`
	BatchSize    int           `default:"100"`
	BatchBytes   int64         `default:"1048576"`
	Linger       time.Duration `default:"50ms"`
	WriteTimeout time.Duration `default:"10s"`
	ReadTimeout  time.Duration `default:"10s"`
	Async        bool
}

var (
	producedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "socpulse",
		Subsystem: "kafka",
		Name:      "produced_total",
		Help:      "Published messages by result.",
	}, []string{"topic", "result"})

	produceSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "socpulse",
		Subsystem: "kafka",
		Name:      "produce_seconds",
		Help:      "WriteMessages latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topic"})
)

// Producer publishes keyed messages. Keys are hashed so all events of
// one type land on one partition in order.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: brokers are required")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("kafka producer: defaults: %w", err)
	}
	codec, err := compression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            codec,
		MaxAttempts:            cfg.MaxAttempts,
		BatchSize:              cfg.BatchSize,
		BatchBytes:             cfg.BatchBytes,
		BatchTimeout:           cfg.Linger,
		WriteTimeout:           cfg.WriteTimeout,
		ReadTimeout:            cfg.ReadTimeout,
		Async:                  cfg.Async,
		AllowAutoTopicCreation: false,
	}}, nil
}

// Publish writes one message. Values other than []byte and string are
// JSON encoded.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	v, err := encode(value)
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: v, Time: start})
	produceSeconds.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	producedTotal.WithLabelValues(topic, result).Inc()
	return err
}

// PublishMessage satisfies logger.Publisher for the collected error log.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: marshal: %w", err)
	}
	return b, nil
}

func compression(name string) (kafka.Compression, error) {
	switch name {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("kafka producer: unknown compression %q", name)
}
