package bookingview

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"umrahlink/internal/api"
	"umrahlink/internal/audit"
	"umrahlink/internal/booking"
	"umrahlink/internal/escrow"
	"umrahlink/internal/session"
	"umrahlink/pkg/backend"
)

// Backend is the part of the marketplace API the booking screens use.
type Backend interface {
	ListBookings(ctx context.Context, token string, page int) (*backend.Page[backend.Booking], error)
	GetBooking(ctx context.Context, token string, bookingID int64) (*backend.Booking, error)
	ListBookingEvents(ctx context.Context, token string, bookingID int64) ([]backend.BookingStatusEvent, error)
	ListReviews(ctx context.Context, bookingID int64) (*backend.Page[backend.Review], error)
	ListDisputes(ctx context.Context, token string, page int) (*backend.Page[backend.Dispute], error)

	CancelBooking(ctx context.Context, token string, bookingID int64, reason string) (*backend.Booking, error)
	UpdateBookingStatus(ctx context.Context, token string, bookingID int64, status, note string) (*backend.Booking, error)
	CreateThread(ctx context.Context, token string, bookingID int64) (*backend.Thread, error)
	CreateReview(ctx context.Context, token string, req backend.ReviewRequest) (*backend.Review, error)
	InitializePayment(ctx context.Context, token string, bookingID int64, req backend.PaymentInitRequest) (*backend.PaymentInit, error)
	VerifyPayment(ctx context.Context, token string, bookingID int64, req backend.PaymentVerifyRequest) (*backend.PaymentVerify, error)
	CreateDispute(ctx context.Context, token string, req backend.DisputeRequest) (*backend.Dispute, error)
	ReleaseEscrow(ctx context.Context, token string, bookingID int64) (*backend.Booking, error)
	AdminRefund(ctx context.Context, token string, bookingID int64) (*backend.Booking, error)
}

type Handlers struct {
	Backend Backend
	Gate    booking.Gate
	Audit   audit.Recorder
	Log     *zap.Logger
}

// View is one booking as a screen renders it: authoritative backend state plus the gate's verdict.
type View struct {
	Booking backend.Booking              `json:"booking"`
	Events  []backend.BookingStatusEvent `json:"events"`
	Reviews []backend.Review             `json:"reviews"`
	Dispute *backend.Dispute             `json:"dispute"`
	Amounts *escrow.Breakdown            `json:"amounts"`
	Actions booking.Actions              `json:"actions"`
}

type ListItem struct {
	Booking backend.Booking `json:"booking"`
	Actions booking.Actions `json:"actions"`
}

// Mount registers the booking routes. Callers are expected to have attached a session.
func (h Handlers) Mount(r chi.Router) {
	r.Get("/bookings", h.List)
	r.Route("/bookings/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Get("/audit", h.AuditLog)
		r.Post("/cancel", h.Cancel)
		r.Post("/status", h.UpdateStatus)
		r.Post("/chat", h.StartChat)
		r.Post("/reviews", h.Review)
		r.Post("/payments", h.InitiatePayment)
		r.Post("/payments/verify", h.VerifyPayment)
		r.Post("/disputes", h.OpenDispute)
		r.Post("/release-escrow", h.ReleaseEscrow)
		r.Post("/refund", h.Refund)
	})
}

// maxListLookups bounds the concurrent backend lookups behind one list page.
const maxListLookups = 4

func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	s := api.SessionFromContext(r.Context())
	if s == nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "missing session")
		return
	}

	pageNum := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "page must be a positive integer")
			return
		}
		pageNum = n
	}

	page, err := h.Backend.ListBookings(r.Context(), s.Token, pageNum)
	if err != nil {
		api.WriteBackendError(w, err)
		return
	}

	ids := make([]int64, 0, len(page.Results))
	for _, b := range page.Results {
		ids = append(ids, b.ID)
	}
	var disputed map[int64]bool

	// Only a customer on a completed booking can still review, so only those need a lookup.
	reviewed := make([]bool, len(page.Results))
	g, gctx := errgroup.WithContext(r.Context())
	g.SetLimit(maxListLookups)
	g.Go(func() error {
		var err error
		disputed, err = h.disputedAmong(gctx, s.Token, ids)
		return err
	})
	for i, b := range page.Results {
		if s.Role != booking.RoleCustomer || b.Status != string(booking.StatusCompleted) {
			continue
		}
		i, b := i, b
		g.Go(func() error {
			reviews, err := h.Backend.ListReviews(gctx, b.ID)
			if err != nil {
				return err
			}
			reviewed[i] = hasReviewFor(reviews.Results, b.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		api.WriteBackendError(w, err)
		return
	}

	items := make([]ListItem, 0, len(page.Results))
	for i, b := range page.Results {
		_, actions := h.Gate.Evaluate(b.Status, b.EscrowStatus, string(s.Role), reviewed[i], disputed[b.ID])
		items = append(items, ListItem{Booking: b, Actions: actions})
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{
		"count":   page.Count,
		"page":    pageNum,
		"hasNext": page.Next != nil,
		"items":   items,
	})
}

func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	s := api.SessionFromContext(r.Context())
	if s == nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "missing session")
		return
	}
	id, ok := bookingID(w, r)
	if !ok {
		return
	}

	view, err := h.load(r.Context(), s, id)
	if err != nil {
		api.WriteBackendError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, view)
}

// AuditLog lists the recorded action attempts for a booking. Admin only.
func (h Handlers) AuditLog(w http.ResponseWriter, r *http.Request) {
	s := api.SessionFromContext(r.Context())
	if s == nil {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "missing session")
		return
	}
	if s.Role != booking.RoleAdmin {
		api.WriteError(w, http.StatusForbidden, api.CodeForbidden, "admin only")
		return
	}
	id, ok := bookingID(w, r)
	if !ok {
		return
	}

	rec := h.Audit
	if rec == nil {
		rec = audit.Nop{}
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := rec.ListByBooking(r.Context(), id, limit)
	if err != nil {
		h.logger().Error("list action audit", zap.Int64("booking_id", id), zap.Error(err))
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternal, "internal error")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": entries})
}

// load fetches the booking, its events, reviews and its dispute in parallel and runs the gate over
// the result. The first failing call cancels the others.
func (h Handlers) load(ctx context.Context, s *session.Session, id int64) (*View, error) {
	var (
		b       *backend.Booking
		events  []backend.BookingStatusEvent
		reviews *backend.Page[backend.Review]
		dispute *backend.Dispute
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		b, err = h.Backend.GetBooking(gctx, s.Token, id)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = h.Backend.ListBookingEvents(gctx, s.Token, id)
		return err
	})
	g.Go(func() error {
		var err error
		reviews, err = h.Backend.ListReviews(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		dispute, err = h.findDispute(gctx, s.Token, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := &View{
		Booking: *b,
		Events:  events,
		Reviews: reviewsFor(reviews.Results, id),
		Dispute: dispute,
	}
	if view.Events == nil {
		view.Events = []backend.BookingStatusEvent{}
	}

	amounts, err := escrow.Calculate(b.SubtotalAmount, b.PlatformFee, b.TotalAmount, b.ServiceCurrency, escrow.DefaultCurrencyScale)
	switch {
	case err != nil:
		h.logger().Warn("booking amounts", zap.Int64("booking_id", id), zap.Error(err))
	case !amounts.Consistent:
		h.logger().Warn("booking total does not match subtotal plus fee",
			zap.Int64("booking_id", id),
			zap.String("subtotal", amounts.Subtotal.String()),
			zap.String("platform_fee", amounts.PlatformFee.String()),
			zap.String("total", amounts.Total.String()),
		)
		view.Amounts = &amounts
	default:
		view.Amounts = &amounts
	}

	_, view.Actions = h.Gate.Evaluate(b.Status, b.EscrowStatus, string(s.Role), len(view.Reviews) > 0, view.Dispute != nil)
	return view, nil
}

// findDispute pages through the viewer's disputes until one for the booking turns up. The backend
// has no per-booking filter and returns disputes newest first.
func (h Handlers) findDispute(ctx context.Context, token string, id int64) (*backend.Dispute, error) {
	var found *backend.Dispute
	err := backend.Walk(ctx, h.disputePages(token), func(ds []backend.Dispute) bool {
		for i := range ds {
			if ds[i].Booking == id {
				found = &ds[i]
				return false
			}
		}
		return true
	})
	return found, err
}

// disputedAmong reports which of ids have a dispute, reading pages only until every id is found.
func (h Handlers) disputedAmong(ctx context.Context, token string, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	err := backend.Walk(ctx, h.disputePages(token), func(ds []backend.Dispute) bool {
		for _, d := range ds {
			if want[d.Booking] {
				out[d.Booking] = true
			}
		}
		return len(out) < len(want)
	})
	return out, err
}

func (h Handlers) disputePages(token string) backend.PageFunc[backend.Dispute] {
	return func(ctx context.Context, page int) (*backend.Page[backend.Dispute], error) {
		return h.Backend.ListDisputes(ctx, token, page)
	}
}

func reviewsFor(all []backend.Review, id int64) []backend.Review {
	out := []backend.Review{}
	for _, rv := range all {
		if rv.Booking != nil && *rv.Booking == id {
			out = append(out, rv)
		}
	}
	return out
}

func hasReviewFor(all []backend.Review, id int64) bool {
	return len(reviewsFor(all, id)) > 0
}

func bookingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationFailed, "invalid booking id")
		return 0, false
	}
	return id, true
}

func (h Handlers) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
