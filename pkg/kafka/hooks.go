package kafka

import (
	"context"
	"fmt"
	"time"
)

// Hook wraps every handling attempt. An error from Before skips the
// handler and counts as the attempt's failure.
type Hook interface {
	Before(ctx context.Context, msg *Message) (context.Context, error)
	After(ctx context.Context, msg *Message, attempt int, err error)
}

// HookFuncs adapts plain functions; nil fields are no-ops.
type HookFuncs struct {
	OnBefore func(ctx context.Context, msg *Message) (context.Context, error)
	OnAfter  func(ctx context.Context, msg *Message, attempt int, err error)
}

func (h HookFuncs) Before(ctx context.Context, msg *Message) (context.Context, error) {
	if h.OnBefore == nil {
		return ctx, nil
	}
	return h.OnBefore(ctx, msg)
}

func (h HookFuncs) After(ctx context.Context, msg *Message, attempt int, err error) {
	if h.OnAfter != nil {
		h.OnAfter(ctx, msg, attempt, err)
	}
}

type hookChain []Hook

// NewHookChain runs Before in order and After in reverse. A panicking
// hook is converted to an error (Before) or ignored (After).
func NewHookChain(hooks ...Hook) Hook {
	chain := make(hookChain, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			chain = append(chain, h)
		}
	}
	return chain
}

func (c hookChain) Before(ctx context.Context, msg *Message) (context.Context, error) {
	for _, h := range c {
		next, err := safeBefore(h, ctx, msg)
		if err != nil {
			return ctx, err
		}
		ctx = next
	}
	return ctx, nil
}

func (c hookChain) After(ctx context.Context, msg *Message, attempt int, err error) {
	for i := len(c) - 1; i >= 0; i-- {
		func() {
			defer func() { _ = recover() }()
			c[i].After(ctx, msg, attempt, err)
		}()
	}
}

func safeBefore(h Hook, ctx context.Context, msg *Message) (out context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = ctx, fmt.Errorf("hook panic: %v", r)
		}
	}()
	return h.Before(ctx, msg)
}

type ctxKey int

const (
	startTimeKey ctxKey = iota
	traceIDKey
)

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey, id)
}

func StartTime(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(startTimeKey).(time.Time)
	return t, ok
}

func WithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startTimeKey, t)
}
