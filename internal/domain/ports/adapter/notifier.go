package adapter

import (
	"context"

	"itsm-ticket-bridge/internal/domain/model"
)

// Notifier announces terminal request states to an ops channel. Calls are
// best-effort: the engine ignores notifier errors.
type Notifier interface {
	RequestFinished(ctx context.Context, r *model.Request, summary string) error
}
