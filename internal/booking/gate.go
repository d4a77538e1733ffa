package booking

// allowedTransitions is the only copy of the booking workflow table. Every screen that offers
// status buttons reads it through AllowedStatusTransitions.
var allowedTransitions = map[Status][]Status{
	StatusRequested:  {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusRejected:   {},
}

// AllowedStatusTransitions returns the statuses a viewer may request from current. Only providers
// and admins drive the workflow; customers always get an empty result. The returned slice is a
// copy and may be modified by the caller.
func AllowedStatusTransitions(current Status, role Role) []Status {
	if role != RoleProvider && role != RoleAdmin {
		return []Status{}
	}
	next := allowedTransitions[current]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

func CanTransition(from, to Status, role Role) bool {
	for _, s := range AllowedStatusTransitions(from, role) {
		if s == to {
			return true
		}
	}
	return false
}

func CanCancel(current Status) bool {
	return current.Valid() && !current.IsTerminal()
}

func CanReview(current Status, role Role, hasExistingReview bool) bool {
	return role == RoleCustomer && current == StatusCompleted && !hasExistingReview
}

func CanChat(status Status, escrow EscrowStatus) bool {
	switch escrow {
	case EscrowPaid, EscrowHeld, EscrowReleased:
		return status.Valid() && !status.closed()
	}
	return false
}

func CanInitiatePayment(status Status, escrow EscrowStatus, role Role) bool {
	if role != RoleCustomer || !status.Valid() || status.closed() {
		return false
	}
	return escrow == EscrowUnpaid || escrow == EscrowFailed
}

// CanReleaseEscrow is an admin-panel check.
func CanReleaseEscrow(status Status, escrow EscrowStatus) bool {
	return status == StatusCompleted && (escrow == EscrowPaid || escrow == EscrowHeld)
}

// CanRefund is an admin-panel check.
func CanRefund(escrow EscrowStatus) bool {
	return escrow.Valid() && escrow != EscrowRefunded
}

// CanOpenDispute reports whether the booking has moved past the initial request.
func CanOpenDispute(status Status) bool {
	return status.Valid() && status != StatusRequested
}
