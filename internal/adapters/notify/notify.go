// Package notify carries change events out of the engine and final results
// into it.
package notify

import (
	"context"

	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/pkg/logger"
	"github.com/okian/pickem/pkg/metrics"
)

// Notifier publishes change notifications. Delivery is at-least-once.
type Notifier interface {
	Publish(ctx context.Context, n model.Notification) error
}

// Handler consumes a notification published by some engine instance.
type Handler func(ctx context.Context, n model.Notification)

// LogNotifier writes notifications to the log. It is the default when no
// broker is configured.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier returns a notifier that logs at debug level.
func NewLogNotifier(l logger.Logger) *LogNotifier {
	if l == nil {
		l = logger.Nop()
	}
	return &LogNotifier{log: l}
}

// Publish implements Notifier.
func (n *LogNotifier) Publish(ctx context.Context, ev model.Notification) error {
	n.log.Debug(ctx, "change notification",
		logger.String("id", ev.ID),
		logger.String("kind", string(ev.Kind)),
		logger.String("user_id", ev.UserID),
		logger.String("contest_id", ev.ContestID),
		logger.String("action", string(ev.Action)))
	metrics.RecordNotificationPublished(string(ev.Kind), "logged")
	return nil
}
