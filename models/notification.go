package models

import "time"

type NotificationKind string

const (
	NotifyOrderConfirmed   NotificationKind = "order_confirmed"
	NotifyOrderAccepted    NotificationKind = "order_accepted"
	NotifyProviderEnRoute  NotificationKind = "provider_en_route"
	NotifyCheckedIn        NotificationKind = "checked_in"
	NotifyWorkStarted      NotificationKind = "work_started"
	NotifyQASubmitted      NotificationKind = "qa_submitted"
	NotifyQARejected       NotificationKind = "qa_rejected"
	NotifyOrderCompleted   NotificationKind = "order_completed"
	NotifyPaymentCaptured  NotificationKind = "payment_captured"
	NotifyOrderCancelled   NotificationKind = "order_cancelled"
	NotifyReviewReceived   NotificationKind = "review_received"
	NotifyDisputeOpened    NotificationKind = "dispute_opened"
	NotifyDisputeResponded NotificationKind = "dispute_responded"
	NotifyDisputeResolved  NotificationKind = "dispute_resolved"
)

var statusNotifications = map[OrderStatus]NotificationKind{
	StatusDriverConfirmed:     NotifyOrderConfirmed,
	StatusProviderAccepted:    NotifyOrderAccepted,
	StatusEnRoute:             NotifyProviderEnRoute,
	StatusCheckIn:             NotifyCheckedIn,
	StatusInProgress:          NotifyWorkStarted,
	StatusQAPending:           NotifyQASubmitted,
	StatusCompleted:           NotifyOrderCompleted,
	StatusPaid:                NotifyPaymentCaptured,
	StatusReviewed:            NotifyReviewReceived,
	StatusCancelledByDriver:   NotifyOrderCancelled,
	StatusCancelledByProvider: NotifyOrderCancelled,
	StatusDisputed:            NotifyDisputeOpened,
}

// NotificationFor maps a newly entered status to the notification sent for it.
func NotificationFor(s OrderStatus) (NotificationKind, bool) {
	k, ok := statusNotifications[s]
	return k, ok
}

// NotificationPayload is the queued delivery request.
type NotificationPayload struct {
	UserID string            `json:"userId"`
	Kind   NotificationKind  `json:"kind"`
	Data   map[string]string `json:"data"`
}

// RewardPayload is the queued points award.
type RewardPayload struct {
	UserID   string `json:"userId"`
	OrderID  string `json:"orderId"`
	Points   int64  `json:"points"`
	Category string `json:"category"`
}

// OperatorAlert is raised for conditions a human must look at.
type OperatorAlert struct {
	Kind      string    `json:"kind"` // inconsistency, dispute_sla, refund_stuck
	OrderID   string    `json:"orderId,omitempty"`
	DisputeID string    `json:"disputeId,omitempty"`
	Severity  int       `json:"severity"`
	Message   string    `json:"message"`
	RaisedAt  time.Time `json:"raisedAt"`
}
