package models

// orderTransitions lists the statuses reachable from each status.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusCreated:          {StatusPriced, StatusCancelledByDriver},
	StatusPriced:           {StatusDriverConfirmed, StatusCancelledByDriver},
	StatusDriverConfirmed:  {StatusProviderAccepted, StatusCancelledByDriver, StatusCancelledByProvider},
	StatusProviderAccepted: {StatusEnRoute, StatusCheckIn, StatusCancelledByDriver, StatusCancelledByProvider},
	StatusEnRoute:          {StatusCheckIn, StatusCancelledByDriver, StatusCancelledByProvider},
	StatusCheckIn:          {StatusInProgress},
	StatusInProgress:       {StatusQAPending},
	StatusQAPending:        {StatusCompleted, StatusInProgress},
	StatusCompleted:        {StatusPaid, StatusDisputed},
	StatusPaid:             {StatusReviewed, StatusDisputed},
	StatusDisputed:         {StatusCompleted, StatusPaid},
}

// CanTransition reports whether from -> to is an edge of the order lifecycle.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports statuses with no outgoing edge.
func IsTerminal(s OrderStatus) bool {
	return len(orderTransitions[s]) == 0
}

// IsCancellable reports whether an order in s may still be cancelled.
func IsCancellable(s OrderStatus) bool {
	return CanTransition(s, StatusCancelledByDriver)
}

// IsCancelled reports both cancellation statuses.
func IsCancelled(s OrderStatus) bool {
	return s == StatusCancelledByDriver || s == StatusCancelledByProvider
}

var validEscrow = map[OrderStatus][]EscrowStatus{
	StatusCreated:             {EscrowPending},
	StatusPriced:              {EscrowPending},
	StatusDriverConfirmed:     {EscrowHeld},
	StatusProviderAccepted:    {EscrowHeld},
	StatusEnRoute:             {EscrowHeld},
	StatusCheckIn:             {EscrowHeld},
	StatusInProgress:          {EscrowHeld},
	StatusQAPending:           {EscrowHeld},
	StatusCompleted:           {EscrowHeld, EscrowRefunded},
	StatusPaid:                {EscrowCaptured, EscrowRefunded},
	StatusReviewed:            {EscrowCaptured, EscrowRefunded},
	StatusDisputed:            {EscrowFrozen, EscrowCaptured},
	StatusCancelledByDriver:   {EscrowPending, EscrowHeld, EscrowRefunded, EscrowCaptured},
	StatusCancelledByProvider: {EscrowPending, EscrowHeld, EscrowRefunded, EscrowCaptured},
}

// ValidCombination reports whether an order status and escrow status may coexist.
func ValidCombination(status OrderStatus, escrow EscrowStatus) bool {
	for _, e := range validEscrow[status] {
		if e == escrow {
			return true
		}
	}
	return false
}
