package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/pkg/logger"
	"github.com/okian/pickem/pkg/metrics"
)

// NATSConfig describes the broker connection.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns a config that reconnects forever.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "pickem",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Connect dials NATS with reconnect handling wired to log.
func Connect(cfg NATSConfig, log logger.Logger) (*nats.Conn, error) {
	if log == nil {
		log = logger.Nop()
	}
	ctx := context.Background()
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Error(ctx, "NATS disconnected", logger.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info(ctx, "NATS reconnected", logger.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error(ctx, "NATS error", logger.Error(err))
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// NATSNotifier publishes notifications on <prefix>.<kind>.
type NATSNotifier struct {
	nc     *nats.Conn
	prefix string
	log    logger.Logger
}

// NewNATSNotifier wraps an established connection.
func NewNATSNotifier(nc *nats.Conn, prefix string, log logger.Logger) *NATSNotifier {
	if log == nil {
		log = logger.Nop()
	}
	return &NATSNotifier{nc: nc, prefix: prefix, log: log}
}

func (p *NATSNotifier) subject(kind model.NotificationKind) string {
	return fmt.Sprintf("%s.%s", p.prefix, kind)
}

// Publish implements Notifier. The notification ID travels in the Nats-Msg-Id
// header so JetStream and plain subscribers can both drop duplicates.
func (p *NATSNotifier) Publish(ctx context.Context, n model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := nats.NewMsg(p.subject(n.Kind))
	msg.Header.Set(nats.MsgIdHdr, n.ID)
	msg.Data = data

	if err := p.nc.PublishMsg(msg); err != nil {
		metrics.RecordNotificationPublished(string(n.Kind), "error")
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	metrics.RecordNotificationPublished(string(n.Kind), "ok")
	return nil
}

// Subscribe delivers every notification under the prefix to h until ctx is
// done.
func (p *NATSNotifier) Subscribe(ctx context.Context, h Handler) error {
	sub, err := p.nc.Subscribe(p.prefix+".>", func(msg *nats.Msg) {
		n, err := decodeNotification(msg)
		if err != nil {
			p.log.Warn(ctx, "dropping malformed notification", logger.String("subject", msg.Subject), logger.Error(err))
			return
		}
		h(ctx, n)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s.>: %w", p.prefix, err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

func decodeNotification(msg *nats.Msg) (model.Notification, error) {
	var n model.Notification
	if err := json.Unmarshal(msg.Data, &n); err != nil {
		return model.Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.ID == "" && msg.Header != nil {
		n.ID = msg.Header.Get(nats.MsgIdHdr)
	}
	return n, nil
}
