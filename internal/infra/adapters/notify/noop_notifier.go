package notify

import (
	"context"
	"log"

	"itsm-ticket-bridge/internal/domain/model"
	"itsm-ticket-bridge/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*NoopNotifier)(nil)

// NoopNotifier logs instead of sending. Used in dev mode and whenever no
// telegram token is configured.
type NoopNotifier struct{}

func NewNoopNotifier() *NoopNotifier { return &NoopNotifier{} }

func (n *NoopNotifier) RequestFinished(ctx context.Context, r *model.Request, summary string) error {
	log.Printf("[noop-notify] request %s [%s]: %s", r.ID, r.Status, summary)
	return nil
}
