package notification

import (
	"context"
	"fmt"

	"washflow/models"
	"washflow/services/tasks"
	"washflow/utils"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log. Used in memory mode and as the
// terminal step of the delivery worker.
type LogNotifier struct {
	Logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{Logger: utils.LoggerOrNop(logger)}
}

func (n *LogNotifier) Notify(_ context.Context, userID string, kind models.NotificationKind, data map[string]string) error {
	n.Logger.Info("notification delivered",
		zap.String("userId", userID),
		zap.String("kind", string(kind)),
		zap.Any("data", data))
	return nil
}

// QueueNotifier hands notifications to the asynq delivery queue.
type QueueNotifier struct {
	Client *asynq.Client
	Logger *zap.Logger
}

func NewQueueNotifier(client *asynq.Client, logger *zap.Logger) *QueueNotifier {
	return &QueueNotifier{Client: client, Logger: utils.LoggerOrNop(logger)}
}

func (n *QueueNotifier) Notify(ctx context.Context, userID string, kind models.NotificationKind, data map[string]string) error {
	task, opts, err := tasks.NewNotificationTask(models.NotificationPayload{UserID: userID, Kind: kind, Data: data})
	if err != nil {
		return err
	}
	if _, err := n.Client.EnqueueContext(ctx, task, opts...); err != nil {
		n.Logger.Warn("failed to enqueue notification", zap.String("userId", userID), zap.String("kind", string(kind)), zap.Error(err))
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// LogAlerter logs operator alerts at error level.
type LogAlerter struct {
	Logger *zap.Logger
}

func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{Logger: utils.LoggerOrNop(logger)}
}

func (a *LogAlerter) RaiseAlert(_ context.Context, alert models.OperatorAlert) error {
	a.Logger.Error("operator alert",
		zap.String("kind", alert.Kind),
		zap.String("orderId", alert.OrderID),
		zap.String("disputeId", alert.DisputeID),
		zap.Int("severity", alert.Severity),
		zap.String("message", alert.Message))
	return nil
}

// QueueAlerter routes alerts to the operators queue.
type QueueAlerter struct {
	Client *asynq.Client
}

func NewQueueAlerter(client *asynq.Client) *QueueAlerter {
	return &QueueAlerter{Client: client}
}

func (a *QueueAlerter) RaiseAlert(ctx context.Context, alert models.OperatorAlert) error {
	task, opts, err := tasks.NewOperatorAlertTask(alert)
	if err != nil {
		return err
	}
	if _, err := a.Client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue operator alert: %w", err)
	}
	return nil
}
