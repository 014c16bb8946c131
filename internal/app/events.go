package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/pkg/logger"
	"github.com/okian/pickem/pkg/metrics"
)

// publish sends n after a committed change. A failed publish is logged and
// counted; it never undoes the change.
func (s *Service) publish(ctx context.Context, n model.Notification) {
	n.ID = uuid.NewString()
	n.Origin = s.instanceID
	n.At = s.clock.Now()
	if err := s.notifier.Publish(ctx, n); err != nil {
		metrics.RecordErrorByComponent("notify", "publish")
		s.logger.Error(ctx, "notification not published",
			logger.String("kind", string(n.Kind)),
			logger.String("id", n.ID),
			logger.Error(err))
	}
}

// HandleNotification reacts to an inbound change notification. Delivery is
// at-least-once, so repeated IDs are dropped. Notifications this instance
// published itself are ignored.
//
//   - ContestSettled: settle the contest
//   - LeaderboardChanged from another instance: rebuild the standings, since
//     that instance wrote scores this cache has not seen
func (s *Service) HandleNotification(ctx context.Context, n model.Notification) error {
	if n.Origin == s.instanceID {
		return nil
	}
	if n.ID != "" && s.deduper.SeenAndRecord(ctx, n.ID) {
		metrics.RecordNotificationDuplicate()
		return nil
	}

	var err error
	switch n.Kind {
	case model.KindContestSettled:
		if n.ContestID == "" {
			return fmt.Errorf("%w: settled notification without contest", model.ErrInvalidContest)
		}
		if err = s.enqueueSettlement(ctx, n.ContestID); err != nil {
			_, err = s.Settle(ctx, n.ContestID)
		}
	case model.KindLeaderboardChanged:
		_, err = s.Reconcile(ctx)
	case model.KindPickChanged:
		// Picks never move a total before settlement.
	default:
		s.logger.Debug(ctx, "ignoring notification", logger.String("kind", string(n.Kind)))
	}
	if err != nil && n.ID != "" {
		s.deduper.Forget(ctx, n.ID)
	}
	return err
}
