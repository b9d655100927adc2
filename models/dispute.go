package models

import "time"

type DisputeStatus string

const (
	DisputeOpen              DisputeStatus = "open"
	DisputeProviderResponded DisputeStatus = "provider_responded"
	DisputeResolving         DisputeStatus = "resolving"
	DisputeResolved          DisputeStatus = "resolved"
)

// DisputeMode records how the money was secured when the dispute opened.
type DisputeMode string

const (
	DisputeModeFreeze      DisputeMode = "freeze"       // escrow was held and is now frozen
	DisputeModePostCapture DisputeMode = "post_capture" // escrow already captured, settled by compensating refund
)

type DisputeOutcome string

const (
	OutcomeDriverFavor   DisputeOutcome = "driver_favor"
	OutcomeProviderFavor DisputeOutcome = "provider_favor"
	OutcomePartial       DisputeOutcome = "partial"
	OutcomeDismissed     DisputeOutcome = "dismissed"
)

func (o DisputeOutcome) Valid() bool {
	switch o {
	case OutcomeDriverFavor, OutcomeProviderFavor, OutcomePartial, OutcomeDismissed:
		return true
	}
	return false
}

type DisputeResolution struct {
	Outcome        DisputeOutcome `bson:"outcome" json:"outcome"`
	DriverAmount   int64          `bson:"driverAmount" json:"driverAmount"`
	ProviderAmount int64          `bson:"providerAmount" json:"providerAmount"`
	Notes          string         `bson:"notes,omitempty" json:"notes,omitempty"`
	ResolvedBy     string         `bson:"resolvedBy" json:"resolvedBy"`
	ResolvedAt     time.Time      `bson:"resolvedAt" json:"resolvedAt"`
}

// Dispute is a claim against a completed or paid order.
type Dispute struct {
	ID               string             `bson:"id" json:"id"`
	OrderID          string             `bson:"orderId" json:"orderId"`
	TransactionID    string             `bson:"transactionId" json:"transactionId"`
	DriverID         string             `bson:"driverId" json:"driverId"`
	ProviderID       string             `bson:"providerId" json:"providerId"`
	Reason           string             `bson:"reason" json:"reason"`
	Description      string             `bson:"description,omitempty" json:"description,omitempty"`
	Evidence         []string           `bson:"evidence,omitempty" json:"evidence,omitempty"`
	HeldAmount       int64              `bson:"heldAmount" json:"heldAmount"`
	Mode             DisputeMode        `bson:"mode" json:"mode"`
	Status           DisputeStatus      `bson:"status" json:"status"`
	ClaimedFrom      DisputeStatus      `bson:"claimedFrom,omitempty" json:"-"` // status before a resolution claim
	ProviderResponse string             `bson:"providerResponse,omitempty" json:"providerResponse,omitempty"`
	RespondedAt      *time.Time         `bson:"respondedAt,omitempty" json:"respondedAt,omitempty"`
	ResponseDueAt    time.Time          `bson:"responseDueAt" json:"responseDueAt"`
	ResolutionDueAt  time.Time          `bson:"resolutionDueAt" json:"resolutionDueAt"`
	Severity         int                `bson:"severity" json:"severity"` // 0-3, informational
	Resolution       *DisputeResolution `bson:"resolution,omitempty" json:"resolution,omitempty"`
	Version          int                `bson:"version" json:"version"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Active reports whether the dispute still overlays its order.
func (d *Dispute) Active() bool {
	return d.Status != DisputeResolved
}

const MaxDisputeSeverity = 3

// SeverityAt derives the SLA severity at now. Severity never decreases.
func (d *Dispute) SeverityAt(now time.Time) int {
	sev := 0
	if d.RespondedAt == nil && now.After(d.ResponseDueAt) {
		sev = 1
	}
	if now.After(d.ResolutionDueAt) {
		sev = 2
	}
	if now.After(d.ResolutionDueAt.Add(24 * time.Hour)) {
		sev = MaxDisputeSeverity
	}
	if d.Severity > sev {
		return d.Severity
	}
	return sev
}
