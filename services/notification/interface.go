package notification

import (
	"context"

	"washflow/models"
)

// Notifier delivers lifecycle notifications to drivers and providers.
// Delivery is best effort; callers never fail an operation on a notify error.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind models.NotificationKind, data map[string]string) error
}

// OperatorAlerter raises conditions that need a human: stuck refunds,
// lifecycle inconsistencies and overdue disputes.
type OperatorAlerter interface {
	RaiseAlert(ctx context.Context, alert models.OperatorAlert) error
}
