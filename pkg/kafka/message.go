package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is a consumed record as handlers and hooks see it.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Time      time.Time
}

func fromKafka(km kafka.Message) *Message {
	m := &Message{
		Topic:     km.Topic,
		Partition: km.Partition,
		Offset:    km.Offset,
		Key:       km.Key,
		Value:     km.Value,
		Time:      km.Time,
	}
	if len(km.Headers) > 0 {
		m.Headers = make(map[string]string, len(km.Headers))
		for _, h := range km.Headers {
			m.Headers[h.Key] = string(h.Value)
		}
	}
	return m
}

// Header returns the header value, "" when absent.
func (m *Message) Header(key string) string {
	return m.Headers[key]
}

// MessageHandler consumes one topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, value []byte) error
}

// PermanentError marks a failure retrying cannot fix, such as a payload
// that fails validation. It goes to the DLQ without further attempts.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
