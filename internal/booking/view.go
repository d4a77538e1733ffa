package booking

import (
	"errors"

	"go.uber.org/zap"
)

// ViewState is the immutable snapshot the gate decides on. It is rebuilt from every fresh fetch of
// the booking and never stored.
type ViewState struct {
	Status            Status
	EscrowStatus      EscrowStatus
	Role              Role
	HasExistingReview bool
	HasDispute        bool
}

// NewViewState parses the raw backend values. Any value outside its enum is reported as an error
// wrapping ErrUnknownValue.
func NewViewState(status, escrow, role string, hasExistingReview, hasDispute bool) (ViewState, error) {
	st, errStatus := ParseStatus(status)
	es, errEscrow := ParseEscrowStatus(escrow)
	rl, errRole := ParseRole(role)
	if err := errors.Join(errStatus, errEscrow, errRole); err != nil {
		return ViewState{}, err
	}
	return ViewState{
		Status:            st,
		EscrowStatus:      es,
		Role:              rl,
		HasExistingReview: hasExistingReview,
		HasDispute:        hasDispute,
	}, nil
}

func (v ViewState) Valid() bool {
	return v.Status.Valid() && v.EscrowStatus.Valid() && v.Role.Valid()
}

type Action string

const (
	ActionCancel        Action = "cancel"
	ActionStatus        Action = "status"
	ActionChat          Action = "chat"
	ActionPay           Action = "pay"
	ActionReview        Action = "review"
	ActionDispute       Action = "dispute"
	ActionReleaseEscrow Action = "release_escrow"
	ActionRefund        Action = "refund"
)

// Actions is everything the UI may offer for one booking.
type Actions struct {
	CanCancel          bool     `json:"canCancel"`
	CanChat            bool     `json:"canChat"`
	CanInitiatePayment bool     `json:"canInitiatePayment"`
	CanReview          bool     `json:"canReview"`
	CanOpenDispute     bool     `json:"canOpenDispute"`
	CanReleaseEscrow   bool     `json:"canReleaseEscrow"`
	CanRefund          bool     `json:"canRefund"`
	StatusTransitions  []Status `json:"statusTransitions"`
}

// NoActions is the answer for a snapshot the gate cannot trust.
func NoActions() Actions {
	return Actions{StatusTransitions: []Status{}}
}

// Evaluate applies every gate rule to v. Admin-only controls stay off for other roles, and disputes
// are opened by participants (customer or provider) only, once per booking.
func Evaluate(v ViewState) Actions {
	if !v.Valid() {
		return NoActions()
	}
	admin := v.Role == RoleAdmin
	participant := v.Role == RoleCustomer || v.Role == RoleProvider
	return Actions{
		CanCancel:          CanCancel(v.Status),
		CanChat:            CanChat(v.Status, v.EscrowStatus),
		CanInitiatePayment: CanInitiatePayment(v.Status, v.EscrowStatus, v.Role),
		CanReview:          CanReview(v.Status, v.Role, v.HasExistingReview),
		CanOpenDispute:     participant && !v.HasDispute && CanOpenDispute(v.Status),
		CanReleaseEscrow:   admin && CanReleaseEscrow(v.Status, v.EscrowStatus),
		CanRefund:          admin && CanRefund(v.EscrowStatus),
		StatusTransitions:  AllowedStatusTransitions(v.Status, v.Role),
	}
}

// Permits answers a single action. target is only consulted for ActionStatus.
func (a Actions) Permits(action Action, target Status) bool {
	switch action {
	case ActionCancel:
		return a.CanCancel
	case ActionStatus:
		for _, s := range a.StatusTransitions {
			if s == target {
				return true
			}
		}
		return false
	case ActionChat:
		return a.CanChat
	case ActionPay:
		return a.CanInitiatePayment
	case ActionReview:
		return a.CanReview
	case ActionDispute:
		return a.CanOpenDispute
	case ActionReleaseEscrow:
		return a.CanReleaseEscrow
	case ActionRefund:
		return a.CanRefund
	}
	return false
}

// Gate evaluates raw backend values and reports contract violations instead of hiding them.
type Gate struct {
	Log *zap.Logger
}

func NewGate(log *zap.Logger) Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return Gate{Log: log}
}

// Evaluate parses the raw values and returns the permitted actions. Values outside the known enums
// are logged at error level and yield NoActions.
func (g Gate) Evaluate(status, escrow, role string, hasExistingReview, hasDispute bool) (ViewState, Actions) {
	v, err := NewViewState(status, escrow, role, hasExistingReview, hasDispute)
	if err != nil {
		g.logger().Error("booking gate received out-of-domain state",
			zap.String("status", status),
			zap.String("escrow_status", escrow),
			zap.String("role", role),
			zap.Error(err),
		)
		return ViewState{}, NoActions()
	}
	return v, Evaluate(v)
}

func (g Gate) logger() *zap.Logger {
	if g.Log == nil {
		return zap.NewNop()
	}
	return g.Log
}
