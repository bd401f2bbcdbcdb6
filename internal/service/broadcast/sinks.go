package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"SOCPulse/internal/domain/models"
	"SOCPulse/internal/domain/repository"
	pkgkafka "SOCPulse/pkg/kafka"
	applogger "SOCPulse/pkg/logger"

	"github.com/nats-io/nats.go"
)

// KafkaSink publishes envelopes to a topic keyed by event type.
type KafkaSink struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaSink(producer *pkgkafka.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Publish(ctx context.Context, env models.Envelope) error {
	return s.producer.Publish(ctx, s.topic, []byte(env.Type), env)
}

// NATSSink publishes envelopes on "<prefix>.<event type>".
type NATSSink struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSSink(nc *nats.Conn, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "socpulse.events"
	}
	return &NATSSink{nc: nc, prefix: prefix}
}

// ConnectNATS dials the server with reconnects enabled.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}

func (s *NATSSink) Subject(t models.EventType) string {
	return s.prefix + "." + string(t)
}

func (s *NATSSink) Publish(_ context.Context, env models.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.nc.Publish(s.Subject(env.Type), b)
}

// Fanout publishes to every sink. A failing sink is logged and does not
// stop delivery to the others; the joined error is returned.
type Fanout struct {
	sinks  []repository.Broadcaster
	logger *applogger.Logger
}

func NewFanout(logger *applogger.Logger, sinks ...repository.Broadcaster) *Fanout {
	if logger == nil {
		logger = applogger.NewNop()
	}
	f := &Fanout{logger: logger}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Publish(ctx context.Context, env models.Envelope) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, env); err != nil {
			f.logger.Warn("broadcast sink failed",
				applogger.String("type", string(env.Type)),
				applogger.String("sink", fmt.Sprintf("%T", s)),
				applogger.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
