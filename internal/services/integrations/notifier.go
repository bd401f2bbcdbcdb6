package integrations

import (
	"context"

	"SOCPulse/internal/domain/models"
	"SOCPulse/internal/domain/repository"
	"SOCPulse/internal/domain/service"
	applogger "SOCPulse/pkg/logger"
)

// BroadcastNotifier delivers notifications as real-time envelopes.
type BroadcastNotifier struct {
	out    repository.Broadcaster
	logger *applogger.Logger
}

func NewBroadcastNotifier(out repository.Broadcaster, logger *applogger.Logger) *BroadcastNotifier {
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &BroadcastNotifier{out: out, logger: logger}
}

func (n *BroadcastNotifier) Notify(ctx context.Context, note service.Notification) error {
	return n.send(ctx, models.EventSOCNotification, note)
}

func (n *BroadcastNotifier) Escalate(ctx context.Context, note service.Notification) error {
	return n.send(ctx, models.EventOnCallEscalation, note)
}

func (n *BroadcastNotifier) send(ctx context.Context, t models.EventType, note service.Notification) error {
	n.logger.Info("notification",
		applogger.String("type", string(t)),
		applogger.Int64("incident_id", note.IncidentID),
		applogger.String("tier", note.Tier),
		applogger.String("severity", string(note.Severity)),
	)
	if n.out == nil {
		return nil
	}
	return n.out.Publish(ctx, models.NewEnvelope(t, note))
}
