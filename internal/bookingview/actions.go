package bookingview

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"umrahlink/internal/api"
	"umrahlink/internal/audit"
	"umrahlink/internal/booking"
	"umrahlink/internal/session"
	"umrahlink/pkg/backend"
)

var (
	paymentMethods     = []string{"CARD", "APPLE_PAY", "MPESA"}
	disputeResolutions = []string{"REFUND", "RELEASE", "PARTIAL", "OTHER"}
)

// ActionResult is the body of a successful action: what the backend returned plus the refetched view.
// View is nil when the refetch failed; the caller's next GET will catch up.
type ActionResult struct {
	Result any   `json:"result"`
	View   *View `json:"view"`
}

// forwardFunc performs the backend call for an action against the already loaded view.
type forwardFunc func(ctx context.Context, s *session.Session, view *View) (any, error)

type CancelRequest struct {
	Reason string `json:"reason"`
}

func (h Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !decode(w, r, &req) {
		return
	}
	h.perform(w, r, booking.ActionCancel, "", func(ctx context.Context, s *session.Session, v *View) (any, error) {
		return h.Backend.CancelBooking(ctx, s.Token, v.Booking.ID, strings.TrimSpace(req.Reason))
	})
}

type StatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decode(w, r, &req) {
		return
	}
	next, err := booking.ParseStatus(req.Status)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "invalid status")
		return
	}
	h.perform(w, r, booking.ActionStatus, next, func(ctx context.Context, s *session.Session, v *View) (any, error) {
		return h.Backend.UpdateBookingStatus(ctx, s.Token, v.Booking.ID, string(next), strings.TrimSpace(req.Note))
	})
}

func (h Handlers) StartChat(w http.ResponseWriter, r *http.Request) {
	h.perform(w, r, booking.ActionChat, "", func(ctx context.Context, s *session.Session, v *View) (any, error) {
		return h.Backend.CreateThread(ctx, s.Token, v.Booking.ID)
	})
}

type ReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// Review posts the customer's review, always public: participants only see public reviews, and that
// list decides whether the booking counts as reviewed.

func (h Handlers) Review(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "rating must be between 1 and 5")
		return
	}
	h.perform(w, r, booking.ActionReview, "", func(ctx context.Context, s *session.Session, v *View) (any, error) {
		return h.Backend.CreateReview(ctx, s.Token, backend.ReviewRequest{
			Booking:  v.Booking.ID,
			Service:  v.Booking.Service,
			Rating:   req.Rating,
			Comment:  strings.TrimSpace(req.Comment),
			IsPublic: true,
		})
	})
}

type PaymentRequest struct {
	PaymentMethod string `json:"payment_method"`
	CallbackURL   string `json:"callback_url"`
}

func (h Handlers) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decode(w, r, &req) {
		return
	}
	method := strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = "CARD"
	}
	if !slices.Contains(paymentMethods, method) {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "payment_method must be one of CARD, APPLE_PAY, MPESA")
		return
	}
	h.perform(w, r, booking.ActionPay, "", func(ctx context.Context, s *session.Session, v *View) (any, error) {
		return h.Backend.InitializePayment(ctx, s.Token, v.Booking.ID, backend.PaymentInitRequest{
			PaymentMethod: method,
			CallbackURL:   strings.TrimSpace(req.CallbackURL),
		})
	})
}

// VerifyPayment reconciles a payment after the provider redirect. It is not a gated action: the
// booking's escrow state is exactly what it settles.
func (h Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	s := api.SessionFromContext(r.Context())
	if s == nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "missing session")
		return
	}
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	var req backend.PaymentVerifyRequest
	if !decode(w, r, &req) {
		return
	}
	req.OrderTrackingID = strings.TrimSpace(req.OrderTrackingID)
	req.MerchantReference = strings.TrimSpace(req.MerchantReference)
	if req.OrderTrackingID == "" && req.MerchantReference == "" {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "order_tracking_id or merchant_reference is required")
		return
	}

	res, err := h.Backend.VerifyPayment(r.Context(), s.Token, id, req)
	if err != nil {
		api.WriteBackendError(w, err)
		return
	}
	h.respond(w, r, s, id, res)
}

type DisputeRequest struct {
	RequestedResolution string `json:"requested_resolution"`
	Reason              string `json:"reason"`
}

func (h Handlers) OpenDispute(w http.ResponseWriter, r *http.Request) {
	var req DisputeRequest
	if !decode(w, r, &req) {
		return
	}
	resolution := strings.ToUpper(strings.TrimSpace(req.RequestedResolution))
	if resolution == "" {
		resolution = "REFUND"
	}
	if !slices.Contains(disputeResolutions, resolution) {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "requested_resolution must be one of REFUND, RELEASE, PARTIAL, OTHER")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "reason is required")
		return
	}
	h.perform(w, r, booking.ActionDispute, "", func(ctx context.Context, s *session.Session, v *View) (any, error) {
		return h.Backend.CreateDispute(ctx, s.Token, backend.DisputeRequest{
			Booking:             v.Booking.ID,
			RequestedResolution: resolution,
			Reason:              reason,
		})
	})
}

func (h Handlers) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	h.perform(w, r, booking.ActionReleaseEscrow, "", func(ctx context.Context, s *session.Session, v *View) (any, error) {
		return h.Backend.ReleaseEscrow(ctx, s.Token, v.Booking.ID)
	})
}

func (h Handlers) Refund(w http.ResponseWriter, r *http.Request) {
	h.perform(w, r, booking.ActionRefund, "", func(ctx context.Context, s *session.Session, v *View) (any, error) {
		return h.Backend.AdminRefund(ctx, s.Token, v.Booking.ID)
	})
}

// perform runs one gated action: load the authoritative booking, consult the gate, forward, record
// the attempt and return the refetched view. A gate denial never reaches the backend.
func (h Handlers) perform(w http.ResponseWriter, r *http.Request, action booking.Action, target booking.Status, forward forwardFunc) {
	s := api.SessionFromContext(r.Context())
	if s == nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "missing session")
		return
	}
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	view, err := h.load(ctx, s, id)
	if err != nil {
		api.WriteBackendError(w, err)
		return
	}

	entry := audit.Entry{
		BookingID:     id,
		UserID:        s.UserID,
		Role:          string(s.Role),
		Action:        string(action),
		TargetStatus:  string(target),
		BookingStatus: view.Booking.Status,
		EscrowStatus:  view.Booking.EscrowStatus,
		GatePermitted: view.Actions.Permits(action, target),
		RequestID:     middleware.GetReqID(ctx),
	}

	if !entry.GatePermitted {
		entry.Outcome = audit.OutcomeDenied
		h.record(ctx, entry)
		api.WriteError(w, http.StatusConflict, api.CodeActionNotPermitted, "this action is not available for the booking in its current state")
		return
	}

	res, err := forward(ctx, s, view)
	if err != nil {
		apiErr, isAPI := backend.AsAPIError(err)
		switch {
		case isAPI && apiErr.Unreachable():
			entry.Outcome = audit.OutcomeFailed
			entry.Message = apiErr.Message()
			h.record(ctx, entry)
			api.WriteError(w, http.StatusBadGateway, api.CodeBackendUnavailable, apiErr.Message())
		case isAPI:
			entry.Outcome = audit.OutcomeRejected
			entry.BackendStatus = apiErr.Status
			entry.Message = apiErr.Message()
			h.record(ctx, entry)
			h.logger().Warn("backend rejected gate-permitted action",
				zap.Int64("booking_id", id),
				zap.String("action", string(action)),
				zap.String("booking_status", view.Booking.Status),
				zap.String("escrow_status", view.Booking.EscrowStatus),
				zap.Int("backend_status", apiErr.Status),
			)
			api.WriteError(w, apiErr.Status, api.CodeBackendRejected, apiErr.Message())
		default:
			entry.Outcome = audit.OutcomeFailed
			entry.Message = err.Error()
			h.record(ctx, entry)
			api.WriteError(w, http.StatusInternalServerError, api.CodeInternal, "internal error")
		}
		return
	}

	entry.Outcome = audit.OutcomeSucceeded
	h.record(ctx, entry)
	h.respond(w, r, s, id, res)
}

func (h Handlers) respond(w http.ResponseWriter, r *http.Request, s *session.Session, id int64, res any) {
	fresh, err := h.load(r.Context(), s, id)
	if err != nil {
		h.logger().Warn("refetch after action", zap.Int64("booking_id", id), zap.Error(err))
		fresh = nil
	}
	api.WriteJSON(w, http.StatusOK, ActionResult{Result: res, View: fresh})
}

func (h Handlers) record(ctx context.Context, e audit.Entry) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(ctx, e); err != nil {
		h.logger().Error("record action audit", zap.Int64("booking_id", e.BookingID), zap.String("action", e.Action), zap.Error(err))
	}
}

// decode reads an optional JSON body. An empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "invalid json")
		return false
	}
	return true
}
