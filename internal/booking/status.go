package booking

import (
	"errors"
	"fmt"
)

// ErrUnknownValue is returned when the backend sends a status, escrow status or role outside the
// known domain. That is a contract violation and callers must not guess a meaning for it.
var ErrUnknownValue = errors.New("unknown value")

type Status string

const (
	StatusRequested  Status = "REQUESTED"
	StatusAccepted   Status = "ACCEPTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusRejected   Status = "REJECTED"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusRequested, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled, StatusRejected:
		return Status(s), nil
	default:
		return "", fmt.Errorf("booking status %q: %w", s, ErrUnknownValue)
	}
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// IsTerminal reports whether no further workflow transition can leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// closed reports the statuses in which the booking no longer runs: cancelled or rejected.
// Completed bookings are terminal but still open for chat and payment.
func (s Status) closed() bool {
	return s == StatusCancelled || s == StatusRejected
}

type EscrowStatus string

const (
	EscrowUnpaid   EscrowStatus = "UNPAID"
	EscrowPaid     EscrowStatus = "PAID"
	EscrowHeld     EscrowStatus = "HELD"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
	EscrowFailed   EscrowStatus = "FAILED"
)

func ParseEscrowStatus(s string) (EscrowStatus, error) {
	switch EscrowStatus(s) {
	case EscrowUnpaid, EscrowPaid, EscrowHeld, EscrowReleased, EscrowRefunded, EscrowFailed:
		return EscrowStatus(s), nil
	default:
		return "", fmt.Errorf("escrow status %q: %w", s, ErrUnknownValue)
	}
}

func (e EscrowStatus) Valid() bool {
	_, err := ParseEscrowStatus(string(e))
	return err == nil
}

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleProvider Role = "PROVIDER"
	RoleAdmin    Role = "ADMIN"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCustomer, RoleProvider, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("role %q: %w", s, ErrUnknownValue)
	}
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Statuses lists every booking status in workflow order.
func Statuses() []Status {
	return []Status{StatusRequested, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled, StatusRejected}
}

func EscrowStatuses() []EscrowStatus {
	return []EscrowStatus{EscrowUnpaid, EscrowPaid, EscrowHeld, EscrowReleased, EscrowRefunded, EscrowFailed}
}

func Roles() []Role {
	return []Role{RoleCustomer, RoleProvider, RoleAdmin}
}
