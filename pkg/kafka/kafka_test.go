package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookChainOrderAndPanics(t *testing.T) {
	var calls []string
	mk := func(name string) Hook {
		return HookFuncs{
			OnBefore: func(ctx context.Context, _ *Message) (context.Context, error) {
				calls = append(calls, "before:"+name)
				return ctx, nil
			},
			OnAfter: func(context.Context, *Message, int, error) {
				calls = append(calls, "after:"+name)
			},
		}
	}
	chain := NewHookChain(mk("a"), nil, mk("b"))
	msg := &Message{Topic: "t"}

	ctx, err := chain.Before(context.Background(), msg)
	require.NoError(t, err)
	chain.After(ctx, msg, 1, nil)
	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, calls)

	boom := HookFuncs{
		OnBefore: func(context.Context, *Message) (context.Context, error) { panic("bad hook") },
		OnAfter:  func(context.Context, *Message, int, error) { panic("bad hook") },
	}
	chain = NewHookChain(boom)
	_, err = chain.Before(context.Background(), msg)
	assert.ErrorContains(t, err, "hook panic")
	assert.NotPanics(t, func() { chain.After(context.Background(), msg, 1, nil) })
}

func TestFromKafka(t *testing.T) {
	m := fromKafka(kafka.Message{
		Topic:     "soc.alerts",
		Partition: 2,
		Offset:    41,
		Value:     []byte(`{}`),
		Headers:   []kafka.Header{{Key: "trace_id", Value: []byte("abc")}},
	})
	assert.Equal(t, "abc", m.Header("trace_id"))
	assert.Equal(t, "", m.Header("missing"))
	assert.Equal(t, int64(41), m.Offset)
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	cause := errors.New("bad level")
	err := Permanent(cause)
	var perm *PermanentError
	require.ErrorAs(t, err, &perm)
	assert.ErrorIs(t, err, cause)
}

func TestNewConsumerDefaults(t *testing.T) {
	_, err := NewConsumer(ConsumerConfig{}, nil)
	assert.Error(t, err)

	c, err := NewConsumer(ConsumerConfig{Brokers: []string{"localhost:9092"}, Workers: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, "socpulse", c.cfg.GroupID)
	assert.Equal(t, 3, c.cfg.Workers)
	assert.Equal(t, uint(4), c.cfg.Attempts)
	assert.Nil(t, c.dlq)
	assert.Error(t, c.Start(), "no handlers")
	assert.NoError(t, c.Stop(context.Background()))
}

func TestBackoffBounds(t *testing.T) {
	c := &Consumer{cfg: ConsumerConfig{BackoffMin: 100 * time.Millisecond, BackoffMax: time.Second}}
	for n := uint(0); n < 10; n++ {
		d := c.backoff(n)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, time.Second)
	}
	assert.Greater(t, c.backoff(5), 400*time.Millisecond)
}

func TestCompressionAndEncode(t *testing.T) {
	codec, err := compression("none")
	require.NoError(t, err)
	assert.Equal(t, kafka.Compression(0), codec)
	codec, err = compression("zstd")
	require.NoError(t, err)
	assert.Equal(t, kafka.Zstd, codec)
	_, err = compression("brotli")
	assert.Error(t, err)

	b, err := encode(map[string]int{"n": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(b))
	b, _ = encode("raw")
	assert.Equal(t, "raw", string(b))

	_, err = NewProducer(ProducerConfig{})
	assert.Error(t, err)
	p, err := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	assert.Equal(t, kafka.Snappy, p.writer.Compression)
	assert.NoError(t, p.Close())
}
