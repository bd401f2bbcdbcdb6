package middleware

import (
	"context"
	"time"

	domrepo "SOCPulse/internal/domain/repository"
	pkgkafka "SOCPulse/pkg/kafka"
	applogger "SOCPulse/pkg/logger"

	"github.com/google/uuid"
)

// TraceHook stamps each attempt with a start time and the trace_id
// header, or a fresh id when the producer sent none.
func TraceHook() pkgkafka.Hook {
	return pkgkafka.HookFuncs{
		OnBefore: func(ctx context.Context, msg *pkgkafka.Message) (context.Context, error) {
			id := msg.Header("trace_id")
			if id == "" {
				id = uuid.NewString()
			}
			ctx = pkgkafka.WithStartTime(ctx, time.Now())
			return pkgkafka.WithTraceID(ctx, id), nil
		},
	}
}

// ObserveHook records attempt latency and logs failed attempts.
func ObserveHook(metrics domrepo.Metrics, logger *applogger.Logger) pkgkafka.Hook {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	logger = logger.Component("kafka_hook")
	return pkgkafka.HookFuncs{
		OnAfter: func(ctx context.Context, msg *pkgkafka.Message, attempt int, err error) {
			op := "consume:" + msg.Topic
			if start, ok := pkgkafka.StartTime(ctx); ok {
				metrics.RecordLatency(op, time.Since(start).Seconds())
			}
			if err == nil {
				return
			}
			metrics.RecordError(op)
			logger.Warn("alert message attempt failed",
				applogger.String("topic", msg.Topic),
				applogger.Int("partition", msg.Partition),
				applogger.Int64("offset", msg.Offset),
				applogger.Int("attempt", attempt),
				applogger.String("trace_id", pkgkafka.TraceID(ctx)),
				applogger.Error(err),
			)
		},
	}
}

// AlertConsumerHooks is the hook chain attached to the alert consumer.
func AlertConsumerHooks(metrics domrepo.Metrics, logger *applogger.Logger) pkgkafka.Hook {
	return pkgkafka.NewHookChain(TraceHook(), ObserveHook(metrics, logger))
}
