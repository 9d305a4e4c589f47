package board

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"contentflow-api/domain"
)

// Notifier delivers notifications to the out-of-process notification
// surface. Implementations must not block the caller for long; delivery is
// fire-and-forget with respect to board state.
type Notifier interface {
	Notify(ctx context.Context, userID string, n domain.Notification)
}

// Dispatcher watches stage transitions and fires the celebration side effect
// the first time an item enters the terminal stage. The trigger is the edge,
// not the level: leaving the terminal stage and entering it again fires
// again, while repeated observations of an item already sitting in the
// terminal stage fire nothing.
type Dispatcher struct {
	notifier Notifier
	logger   *log.Logger
}

// NewDispatcher creates a dispatcher emitting through the given notifier.
func NewDispatcher(notifier Notifier, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Dispatcher{notifier: notifier, logger: logger}
}

// Observe is called once per committed optimistic apply with the stage the
// item held before and after. It decides; rendering belongs to whoever
// consumes the notification.
func (d *Dispatcher) Observe(ctx context.Context, userID string, item domain.ContentItem, prev, next domain.Stage) {
	if !next.Terminal() || prev.Terminal() {
		return
	}
	d.logger.WithFields(log.Fields{
		"user": userID,
		"item": item.ID,
	}).Info("item entered terminal stage")
	if d.notifier == nil {
		return
	}
	d.notifier.Notify(ctx, userID, domain.Notification{
		Kind:    domain.NotifyCelebration,
		Message: fmt.Sprintf("%q has been published", item.Title),
		ItemID:  item.ID,
	})
}
