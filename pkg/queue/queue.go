package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrQueueFull  = errors.New("queue: full")
	ErrNotRunning = errors.New("queue: not running")
	ErrUnknownJob = errors.New("queue: no job for type")
)

// Publisher enqueues typed payloads.
type Publisher interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// Job handles one message type. The payload is the JSON the publisher
// encoded; use Decode to read it.
type Job interface {
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// Config tunes the queue. Zero fields take the defaults.
type Config struct {
	Workers int `default:"1"`
	// MaxPending rejects publishes with ErrQueueFull once reached; 0 is unbounded.
	MaxPending int
	MaxRetries int           `default:"3"`
	RetryDelay time.Duration `default:"5s"`
	JobTimeout time.Duration
	// DeadCap bounds the dead-letter list.
	DeadCap int64 `default:"1000"`
}

// Stats is a snapshot of queue depth.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Retrying   int64 `json:"retrying"`
	Dead       int64 `json:"dead"`
}

// Envelope is the stored form of a message.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// Decode unmarshals a job payload into T.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, fmt.Errorf("queue: empty payload")
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("queue: decode %T: %w", v, err)
	}
	return v, nil
}

// retryAt doubles RetryDelay per attempt, capped at 32x.
func (c Config) retryAt(now time.Time, attempt int) time.Time {
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 5 {
		shift = 5
	}
	return now.Add(c.RetryDelay << uint(shift))
}
