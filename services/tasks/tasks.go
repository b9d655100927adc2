package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"washflow/models"

	"github.com/hibiken/asynq"
)

const (
	TypeQAAutoApprove       = "qa:auto_approve"
	TypeSettleCancellation  = "order:settle_cancellation"
	TypeDeliverNotification = "notification:deliver"
	TypeAwardRewards        = "rewards:award"
	TypeOperatorAlert       = "ops:alert"
	TypeDisputeSLACheck     = "dispute:sla_check"
	TypeMaintenanceSweep    = "maintenance:sweep"
)

const (
	QueueCritical  = "critical"
	QueueDefault   = "default"
	QueueOperators = "operators"
)

// OrderPayload is the payload of every order-scoped task.
type OrderPayload struct {
	OrderID string    `json:"orderId"`
	DueAt   time.Time `json:"dueAt,omitempty"`
}

// NewQAAutoApproveTask fires at the end of the QA review window. The task ID
// ties the task to one deadline so re-scheduling the same deadline is a no-op.
func NewQAAutoApproveTask(orderID string, at time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(OrderPayload{OrderID: orderID, DueAt: at})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeQAAutoApprove, b)
	opts := []asynq.Option{
		asynq.ProcessAt(at),
		asynq.Queue(QueueCritical),
		asynq.TaskID(fmt.Sprintf("qa:%s:%d", orderID, at.Unix())),
		asynq.MaxRetry(10),
	}
	return task, opts, nil
}

func NewSettleCancellationTask(orderID string) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(OrderPayload{OrderID: orderID})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeSettleCancellation, b)
	opts := []asynq.Option{
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(20),
		asynq.Unique(time.Minute),
	}
	return task, opts, nil
}

func NewNotificationTask(payload models.NotificationPayload) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	return asynq.NewTask(TypeDeliverNotification, b), []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(5)}, nil
}

func NewRewardTask(payload models.RewardPayload) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.TaskID(fmt.Sprintf("rewards:%s:%s", payload.OrderID, payload.UserID)),
	}
	return asynq.NewTask(TypeAwardRewards, b), opts, nil
}

func NewOperatorAlertTask(alert models.OperatorAlert) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(alert)
	if err != nil {
		return nil, nil, err
	}
	return asynq.NewTask(TypeOperatorAlert, b), []asynq.Option{asynq.Queue(QueueOperators)}, nil
}

// NewDisputeSLACheckTask and NewSweepTask carry no payload; they are registered
// with the periodic scheduler.
func NewDisputeSLACheckTask() *asynq.Task {
	return asynq.NewTask(TypeDisputeSLACheck, nil)
}

func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeMaintenanceSweep, nil)
}

// DecodeOrderPayload reads an OrderPayload from a task.
func DecodeOrderPayload(t *asynq.Task) (OrderPayload, error) {
	var p OrderPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}
	return p, nil
}
