package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Client talks to the marketplace REST backend. The backend is the authority for every booking,
// escrow and dispute decision; the client only moves requests and answers.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Log        *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Log: log,
	}
}

// maxErrorBody bounds how much of a non-JSON error body is kept as the detail message.
const maxErrorBody = 500

func (c *Client) doJSON(ctx context.Context, method, path, token string, reqBody, respBody any) error {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}

	var body io.Reader
	if reqBody != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	// Reuse the inbound request id so gateway and backend logs line up.
	requestID := middleware.GetReqID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		log.Warn("backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return &APIError{Status: 0, cause: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	log.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", requestID),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Data: decodeErrorBody(b)}
	}

	if respBody != nil && len(b) > 0 {
		if err := json.Unmarshal(b, respBody); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

func decodeErrorBody(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	var data any
	if err := json.Unmarshal(b, &data); err == nil {
		return data
	}
	raw := string(b)
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	return map[string]any{"detail": raw}
}

func query(params map[string]string) string {
	v := url.Values{}
	for k, p := range params {
		if p != "" {
			v.Set(k, p)
		}
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func pageParam(page int) string {
	if page <= 1 {
		return ""
	}
	return strconv.Itoa(page)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// Auth

func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	return c.login(ctx, "/auth/login/", creds)
}

func (c *Client) LoginCustomer(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	return c.login(ctx, "/auth/login/customer/", creds)
}

func (c *Client) LoginProvider(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	return c.login(ctx, "/auth/login/provider/", creds)
}

func (c *Client) login(ctx context.Context, path string, creds Credentials) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, path, "", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/logout/", token, nil, nil)
}

func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var out User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me/", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Bookings

// ListBookings reads one page of the viewer's bookings, newest first. page <= 0 means the first page.
func (c *Client) ListBookings(ctx context.Context, token string, page int) (*Page[Booking], error) {
	var out Page[Booking]
	path := "/bookings/" + query(map[string]string{"page": pageParam(page)})
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetBooking(ctx context.Context, token string, bookingID int64) (*Booking, error) {
	var out Booking
	if err := c.doJSON(ctx, http.MethodGet, "/bookings/"+itoa(bookingID)+"/", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListBookingEvents(ctx context.Context, token string, bookingID int64) ([]BookingStatusEvent, error) {
	var out []BookingStatusEvent
	if err := c.doJSON(ctx, http.MethodGet, "/bookings/"+itoa(bookingID)+"/events/", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CancelBooking(ctx context.Context, token string, bookingID int64, reason string) (*Booking, error) {
	var out Booking
	body := map[string]string{"reason": reason}
	if err := c.doJSON(ctx, http.MethodPost, "/bookings/"+itoa(bookingID)+"/cancel/", token, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateBookingStatus(ctx context.Context, token string, bookingID int64, status, note string) (*Booking, error) {
	var out Booking
	body := map[string]string{"status": status, "note": note}
	if err := c.doJSON(ctx, http.MethodPost, "/bookings/"+itoa(bookingID)+"/update_status/", token, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Payments and escrow

func (c *Client) InitializePayment(ctx context.Context, token string, bookingID int64, req PaymentInitRequest) (*PaymentInit, error) {
	var out PaymentInit
	if err := c.doJSON(ctx, http.MethodPost, "/bookings/"+itoa(bookingID)+"/pesapal_initialize/", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyPayment(ctx context.Context, token string, bookingID int64, req PaymentVerifyRequest) (*PaymentVerify, error) {
	var out PaymentVerify
	if err := c.doJSON(ctx, http.MethodPost, "/bookings/"+itoa(bookingID)+"/pesapal_verify/", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ReleaseEscrow(ctx context.Context, token string, bookingID int64) (*Booking, error) {
	var out Booking
	if err := c.doJSON(ctx, http.MethodPost, "/bookings/"+itoa(bookingID)+"/release_escrow/", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AdminRefund(ctx context.Context, token string, bookingID int64) (*Booking, error) {
	var out Booking
	if err := c.doJSON(ctx, http.MethodPost, "/bookings/"+itoa(bookingID)+"/admin_refund/", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reviews

// ListReviews is public on the backend; no token is sent.
func (c *Client) ListReviews(ctx context.Context, bookingID int64) (*Page[Review], error) {
	var out Page[Review]
	path := "/marketplace/reviews/" + query(map[string]string{"booking": itoa(bookingID)})
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateReview(ctx context.Context, token string, req ReviewRequest) (*Review, error) {
	var out Review
	if err := c.doJSON(ctx, http.MethodPost, "/marketplace/reviews/", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Messaging

func (c *Client) CreateThread(ctx context.Context, token string, bookingID int64) (*Thread, error) {
	var out Thread
	body := map[string]int64{"booking": bookingID}
	if err := c.doJSON(ctx, http.MethodPost, "/messaging/threads/", token, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetThread(ctx context.Context, token string, threadID int64) (*Thread, error) {
	var out Thread
	if err := c.doJSON(ctx, http.MethodGet, "/messaging/threads/"+itoa(threadID)+"/", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages reads one page of a thread, oldest first. page <= 0 means the first page.
func (c *Client) ListMessages(ctx context.Context, token string, threadID int64, page int) (*Page[Message], error) {
	var out Page[Message]
	path := "/messaging/messages/" + query(map[string]string{"thread": itoa(threadID), "page": pageParam(page)})
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendMessage(ctx context.Context, token string, threadID int64, body string) (*Message, error) {
	var out Message
	req := map[string]any{"thread": threadID, "body": body}
	if err := c.doJSON(ctx, http.MethodPost, "/messaging/messages/", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Disputes

// ListDisputes reads one page of the disputes visible to the viewer, newest first.
func (c *Client) ListDisputes(ctx context.Context, token string, page int) (*Page[Dispute], error) {
	var out Page[Dispute]
	path := "/disputes/" + query(map[string]string{"page": pageParam(page)})
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateDispute(ctx context.Context, token string, req DisputeRequest) (*Dispute, error) {
	var out Dispute
	if err := c.doJSON(ctx, http.MethodPost, "/disputes/", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health pings the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health/", "", nil, nil)
}
