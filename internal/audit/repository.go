package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeRejected is a backend refusal. Combined with GatePermitted it marks drift between
	// the gate and the backend's rules, or a race with another party.
	OutcomeRejected Outcome = "rejected"
	OutcomeDenied   Outcome = "denied"
	OutcomeFailed   Outcome = "failed"
)

// Entry is one forwarded (or refused) booking action.
type Entry struct {
	ID            string    `json:"id"`
	BookingID     int64     `json:"bookingId"`
	UserID        int64     `json:"userId"`
	Role          string    `json:"role"`
	Action        string    `json:"action"`
	TargetStatus  string    `json:"targetStatus,omitempty"`
	BookingStatus string    `json:"bookingStatus"`
	EscrowStatus  string    `json:"escrowStatus"`
	GatePermitted bool      `json:"gatePermitted"`
	Outcome       Outcome   `json:"outcome"`
	BackendStatus int       `json:"backendStatus,omitempty"`
	Message       string    `json:"message,omitempty"`
	RequestID     string    `json:"requestId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
	ListByBooking(ctx context.Context, bookingID int64, limit int) ([]Entry, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	const q = `
INSERT INTO action_audit (id, booking_id, user_id, role, action, target_status, booking_status, escrow_status,
                          gate_permitted, outcome, backend_status, message, request_id)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, NULLIF($11, 0), NULLIF($12, ''), NULLIF($13, ''))
`
	_, err := r.db.Exec(ctx, q, e.ID, e.BookingID, e.UserID, e.Role, e.Action, e.TargetStatus, e.BookingStatus,
		e.EscrowStatus, e.GatePermitted, string(e.Outcome), e.BackendStatus, e.Message, e.RequestID)
	if err != nil {
		return fmt.Errorf("insert action audit: %w", err)
	}
	return nil
}

func (r *Repository) ListByBooking(ctx context.Context, bookingID int64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `
SELECT id::text, booking_id, user_id, role, action, COALESCE(target_status, ''), booking_status, escrow_status,
       gate_permitted, outcome, COALESCE(backend_status, 0), COALESCE(message, ''), COALESCE(request_id, ''), created_at
FROM action_audit
WHERE booking_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := r.db.Query(ctx, q, bookingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var outcome string
		if err := rows.Scan(&e.ID, &e.BookingID, &e.UserID, &e.Role, &e.Action, &e.TargetStatus, &e.BookingStatus,
			&e.EscrowStatus, &e.GatePermitted, &outcome, &e.BackendStatus, &e.Message, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Outcome = Outcome(outcome)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Nop discards entries. It backs the gateway when AUDIT_ENABLED=false.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

func (Nop) ListByBooking(context.Context, int64, int) ([]Entry, error) { return []Entry{}, nil }
