package models

import "time"

type OrderStatus string

const (
	StatusCreated             OrderStatus = "CREATED"
	StatusPriced              OrderStatus = "PRICED"
	StatusDriverConfirmed     OrderStatus = "DRIVER_CONFIRMED"
	StatusProviderAccepted    OrderStatus = "PROVIDER_ACCEPTED"
	StatusEnRoute             OrderStatus = "EN_ROUTE"
	StatusCheckIn             OrderStatus = "CHECK_IN"
	StatusInProgress          OrderStatus = "IN_PROGRESS"
	StatusQAPending           OrderStatus = "QA_PENDING"
	StatusCompleted           OrderStatus = "COMPLETED"
	StatusPaid                OrderStatus = "PAID"
	StatusReviewed            OrderStatus = "REVIEWED"
	StatusCancelledByDriver   OrderStatus = "CANCELLED_BY_DRIVER"
	StatusCancelledByProvider OrderStatus = "CANCELLED_BY_PROVIDER"
	StatusDisputed            OrderStatus = "DISPUTED"
)

type ServiceMode string

const (
	ModeShop   ServiceMode = "shop"
	ModeMobile ServiceMode = "mobile"
)

// Role identifies who is acting on an order.
type Role string

const (
	RoleDriver   Role = "driver"
	RoleProvider Role = "provider"
	RoleOperator Role = "operator"
	RoleSystem   Role = "system"
)

// Caller is the authenticated actor of an operation.
type Caller struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemCaller is used by timers and background workers.
var SystemCaller = Caller{ID: "system", Role: RoleSystem}

type GeoPoint struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

type VehicleSnapshot struct {
	ID      string `bson:"id" json:"id"`
	Make    string `bson:"make" json:"make"`
	Model   string `bson:"model" json:"model"`
	Plate   string `bson:"plate" json:"plate"`
	Segment string `bson:"segment" json:"segment"` // hatchback, sedan, suv, truck
}

type PackageStep struct {
	Name          string `bson:"name" json:"name"`
	RequiresPhoto bool   `bson:"requiresPhoto" json:"requiresPhoto"`
	RequiresNotes bool   `bson:"requiresNotes" json:"requiresNotes"`
	Optional      bool   `bson:"optional" json:"optional"`
}

type PackageSnapshot struct {
	ID               string        `bson:"id" json:"id"`
	Name             string        `bson:"name" json:"name"`
	Tier             string        `bson:"tier" json:"tier"` // basic, premium, deluxe
	BasePrice        int64         `bson:"basePrice" json:"basePrice"`
	Currency         string        `bson:"currency" json:"currency"`
	DurationMinutes  int           `bson:"durationMinutes" json:"durationMinutes"`
	Steps            []PackageStep `bson:"steps" json:"steps"`
	QAChecklist      []string      `bson:"qaChecklist" json:"qaChecklist"`
	RequiredQAPhotos int           `bson:"requiredQaPhotos" json:"requiredQaPhotos"`
}

type PricingBreakdown struct {
	BasePrice          int64   `bson:"basePrice" json:"basePrice"`
	SegmentMultiplier  float64 `bson:"segmentMultiplier" json:"segmentMultiplier"`
	DensityCoefficient float64 `bson:"densityCoefficient" json:"densityCoefficient"`
	DistanceFee        int64   `bson:"distanceFee" json:"distanceFee"`
	FinalPrice         int64   `bson:"finalPrice" json:"finalPrice"`
	Currency           string  `bson:"currency" json:"currency"`
}

// Schedule is either a lane slot (shop) or a visit window (mobile).
type Schedule struct {
	Mode        ServiceMode `bson:"mode" json:"mode"`
	LaneID      string      `bson:"laneId,omitempty" json:"laneId,omitempty"`
	Date        string      `bson:"date" json:"date"`
	StartMinute int         `bson:"startMinute" json:"startMinute"`
	EndMinute   int         `bson:"endMinute" json:"endMinute"`
	Start       time.Time   `bson:"start" json:"start"`
	End         time.Time   `bson:"end" json:"end"`
	Location    *GeoPoint   `bson:"location,omitempty" json:"location,omitempty"` // mobile only
}

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepSkipped    StepStatus = "skipped"
)

type WorkStep struct {
	Index         int        `bson:"index" json:"index"`
	Name          string     `bson:"name" json:"name"`
	Status        StepStatus `bson:"status" json:"status"`
	RequiresPhoto bool       `bson:"requiresPhoto" json:"requiresPhoto"`
	RequiresNotes bool       `bson:"requiresNotes" json:"requiresNotes"`
	Optional      bool       `bson:"optional" json:"optional"`
	Photos        []string   `bson:"photos,omitempty" json:"photos,omitempty"`
	Notes         string     `bson:"notes,omitempty" json:"notes,omitempty"`
	StartedAt     *time.Time `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	CompletedAt   *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// Done reports whether the step no longer blocks QA submission.
func (s WorkStep) Done() bool {
	return s.Status == StepCompleted || s.Status == StepSkipped
}

type QAApproval string

const (
	QANotSubmitted QAApproval = "not_submitted"
	QAPendingAppr  QAApproval = "pending"
	QAApproved     QAApproval = "approved"
	QARejected     QAApproval = "rejected"
)

type ChecklistItem struct {
	Item   string `bson:"item" json:"item"`
	Passed bool   `bson:"passed" json:"passed"`
}

type QARecord struct {
	RequiredPhotos    int             `bson:"requiredPhotos" json:"requiredPhotos"`
	SubmittedPhotos   []string        `bson:"submittedPhotos,omitempty" json:"submittedPhotos,omitempty"`
	Checklist         []ChecklistItem `bson:"checklist,omitempty" json:"checklist,omitempty"`
	Approval          QAApproval      `bson:"approval" json:"approval"`
	SubmittedAt       *time.Time      `bson:"submittedAt,omitempty" json:"submittedAt,omitempty"`
	AutoApproveAt     *time.Time      `bson:"autoApproveAt,omitempty" json:"autoApproveAt,omitempty"`
	ApprovedAt        *time.Time      `bson:"approvedAt,omitempty" json:"approvedAt,omitempty"`
	AutoApproved      bool            `bson:"autoApproved" json:"autoApproved"`
	RejectionFeedback string          `bson:"rejectionFeedback,omitempty" json:"rejectionFeedback,omitempty"`
	RejectionCount    int             `bson:"rejectionCount" json:"rejectionCount"`
}

type RefundStatus string

const (
	RefundNotRequired RefundStatus = "not_required"
	RefundPending     RefundStatus = "pending"
	RefundCompleted   RefundStatus = "completed"
)

type Cancellation struct {
	Actor         Role         `bson:"actor" json:"actor"`
	ActorID       string       `bson:"actorId" json:"actorId"`
	Reason        string       `bson:"reason" json:"reason"`
	FromStatus    OrderStatus  `bson:"fromStatus" json:"fromStatus"`
	RefundAmount  int64        `bson:"refundAmount" json:"refundAmount"`
	PenaltyAmount int64        `bson:"penaltyAmount" json:"penaltyAmount"`
	RefundStatus  RefundStatus `bson:"refundStatus" json:"refundStatus"`
	SlotReleased  bool         `bson:"slotReleased" json:"slotReleased"`
	LastError     string       `bson:"lastError,omitempty" json:"lastError,omitempty"`
	Attempts      int          `bson:"attempts" json:"attempts"`
	CancelledAt   time.Time    `bson:"cancelledAt" json:"cancelledAt"`
	SettledAt     *time.Time   `bson:"settledAt,omitempty" json:"settledAt,omitempty"`
}

type Review struct {
	Rating    int       `bson:"rating" json:"rating"`
	Comment   string    `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

type StatusChange struct {
	From    OrderStatus `bson:"from" json:"from"`
	To      OrderStatus `bson:"to" json:"to"`
	Actor   Role        `bson:"actor" json:"actor"`
	ActorID string      `bson:"actorId" json:"actorId"`
	At      time.Time   `bson:"at" json:"at"`
}

// Order is the aggregate driven by the order state machine.
type Order struct {
	ID               string           `bson:"id" json:"id"`
	DriverID         string           `bson:"driverId" json:"driverId"`
	ProviderID       string           `bson:"providerId" json:"providerId"`
	Vehicle          VehicleSnapshot  `bson:"vehicle" json:"vehicle"`
	Package          PackageSnapshot  `bson:"package" json:"package"`
	Pricing          PricingBreakdown `bson:"pricing" json:"pricing"`
	Schedule         Schedule         `bson:"schedule" json:"schedule"`
	Status           OrderStatus      `bson:"status" json:"status"`
	UnderlyingStatus OrderStatus      `bson:"underlyingStatus,omitempty" json:"underlyingStatus,omitempty"` // set while DISPUTED
	Steps            []WorkStep       `bson:"steps" json:"steps"`
	QA               QARecord         `bson:"qa" json:"qa"`
	Escrow           EscrowSnapshot   `bson:"escrow" json:"escrow"`
	Cancellation     *Cancellation    `bson:"cancellation,omitempty" json:"cancellation,omitempty"`
	Review           *Review          `bson:"review,omitempty" json:"review,omitempty"`
	DisputeID        string           `bson:"disputeId,omitempty" json:"disputeId,omitempty"`
	ActualStartTime  *time.Time       `bson:"actualStartTime,omitempty" json:"actualStartTime,omitempty"`
	ActualEndTime    *time.Time       `bson:"actualEndTime,omitempty" json:"actualEndTime,omitempty"`
	ActualDuration   int              `bson:"actualDurationMinutes" json:"actualDurationMinutes"`
	History          []StatusChange   `bson:"history" json:"history"`
	Version          int              `bson:"version" json:"version"`
	CreatedAt        time.Time        `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time        `bson:"updatedAt" json:"updatedAt"`
}

// CurrentStep returns the index of the in-progress step, or -1.
func (o *Order) CurrentStep() int {
	for i, s := range o.Steps {
		if s.Status == StepInProgress {
			return i
		}
	}
	return -1
}

// AllStepsDone reports whether every step is completed or skipped.
func (o *Order) AllStepsDone() bool {
	for _, s := range o.Steps {
		if !s.Done() {
			return false
		}
	}
	return true
}

// EffectiveStatus is the completion status underneath a dispute overlay.
func (o *Order) EffectiveStatus() OrderStatus {
	if o.Status == StatusDisputed && o.UnderlyingStatus != "" {
		return o.UnderlyingStatus
	}
	return o.Status
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	DriverID   string
	ProviderID string
	Status     OrderStatus
	Limit      int
}
