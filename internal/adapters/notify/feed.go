package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/okian/pickem/internal/domain/dedupe"
	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/pkg/logger"
	"github.com/okian/pickem/pkg/metrics"
)

// ResultSink accepts results from the external feed.
type ResultSink interface {
	RecordResult(ctx context.Context, r model.Result) (model.Contest, error)
}

// feedMessage is the wire shape of a result feed message.
type feedMessage struct {
	ID string `json:"id"`
	model.Result
}

// ResultFeed subscribes to the external scoring feed and forwards results.
type ResultFeed struct {
	nc      *nats.Conn
	subject string
	sink    ResultSink
	seen    dedupe.Deduper
	log     logger.Logger
}

// NewResultFeed wires a feed subscriber. seen may be nil.
func NewResultFeed(nc *nats.Conn, subject string, sink ResultSink, seen dedupe.Deduper, log logger.Logger) *ResultFeed {
	if log == nil {
		log = logger.Nop()
	}
	return &ResultFeed{nc: nc, subject: subject, sink: sink, seen: seen, log: log}
}

// Start subscribes and keeps the subscription until ctx is done.
func (f *ResultFeed) Start(ctx context.Context) error {
	sub, err := f.nc.Subscribe(f.subject, func(msg *nats.Msg) {
		_ = f.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", f.subject, err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	f.log.Info(ctx, "result feed subscribed", logger.String("subject", f.subject))
	return nil
}

// handle decodes and forwards one message. Duplicates are dropped; a message
// that the sink rejects for a transient reason is forgotten so a redelivery
// is processed again.
func (f *ResultFeed) handle(ctx context.Context, msg *nats.Msg) error {
	var m feedMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		metrics.RecordFeedMessage("malformed")
		f.log.Warn(ctx, "dropping malformed result", logger.String("subject", msg.Subject), logger.Error(err))
		return err
	}
	if m.ID == "" && msg.Header != nil {
		m.ID = msg.Header.Get(nats.MsgIdHdr)
	}
	if m.ID != "" && f.seen != nil && f.seen.SeenAndRecord(ctx, m.ID) {
		metrics.RecordFeedMessage("duplicate")
		return nil
	}

	_, err := f.sink.RecordResult(ctx, m.Result)
	switch {
	case err == nil:
		metrics.RecordFeedMessage("ok")
	case errors.Is(err, model.ErrContestNotFound),
		errors.Is(err, model.ErrPartialResult),
		errors.Is(err, model.ErrResultConflict):
		metrics.RecordFeedMessage("rejected")
		f.log.Warn(ctx, "result rejected", logger.String("contest_id", m.ContestID), logger.Error(err))
	default:
		metrics.RecordFeedMessage("error")
		if m.ID != "" && f.seen != nil {
			f.seen.Forget(ctx, m.ID)
		}
		f.log.Error(ctx, "result not recorded", logger.String("contest_id", m.ContestID), logger.Error(err))
	}
	return err
}
