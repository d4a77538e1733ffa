package backend

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
	IsBanned    bool   `json:"is_banned"`
	IsActive    bool   `json:"is_active"`
	IsStaff     bool   `json:"is_staff"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type Credentials struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
}

// Booking mirrors the backend booking resource. Status and EscrowStatus stay raw strings here;
// the gate parses them and owns what an unknown value means.
type Booking struct {
	ID                  int64           `json:"id"`
	Reference           string          `json:"reference"`
	Customer            int64           `json:"customer"`
	CustomerName        string          `json:"customer_name"`
	Provider            int64           `json:"provider"`
	ProviderName        string          `json:"provider_name"`
	Service             int64           `json:"service"`
	ServiceTitle        string          `json:"service_title"`
	ServiceCurrency     string          `json:"service_currency"`
	AvailabilitySlot    *int64          `json:"availability_slot"`
	AvailabilityStartAt *time.Time      `json:"availability_start_at"`
	AvailabilityEndAt   *time.Time      `json:"availability_end_at"`
	RequestedLanguage   string          `json:"requested_language"`
	TravelDate          *string         `json:"travel_date"`
	Notes               string          `json:"notes"`
	Status              string          `json:"status"`
	EscrowStatus        string          `json:"escrow_status"`
	SubtotalAmount      decimal.Decimal `json:"subtotal_amount"`
	PlatformFee         decimal.Decimal `json:"platform_fee"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	PaymentReference    string          `json:"payment_reference"`
	CancellationReason  string          `json:"cancellation_reason"`
	CompletedAt         *time.Time      `json:"completed_at"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type BookingStatusEvent struct {
	ID         int64     `json:"id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Note       string    `json:"note"`
	ChangedBy  *int64    `json:"changed_by"`
	CreatedAt  time.Time `json:"created_at"`
}

type Review struct {
	ID           int64     `json:"id"`
	Booking      *int64    `json:"booking"`
	Service      int64     `json:"service"`
	Provider     int64     `json:"provider"`
	ProviderName string    `json:"provider_name"`
	Customer     int64     `json:"customer"`
	CustomerName string    `json:"customer_name"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment"`
	IsPublic     bool      `json:"is_public"`
	CreatedAt    time.Time `json:"created_at"`
}

type ReviewRequest struct {
	Booking  int64  `json:"booking"`
	Service  int64  `json:"service"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
	IsPublic bool   `json:"is_public"`
}

type Thread struct {
	ID               int64     `json:"id"`
	Booking          int64     `json:"booking"`
	BookingReference string    `json:"booking_reference"`
	Customer         int64     `json:"customer"`
	Provider         int64     `json:"provider"`
	ProviderName     string    `json:"provider_name"`
	IsClosed         bool      `json:"is_closed"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Message struct {
	ID         int64      `json:"id"`
	Thread     int64      `json:"thread"`
	Sender     int64      `json:"sender"`
	SenderName string     `json:"sender_name"`
	Body       string     `json:"body"`
	ReadAt     *time.Time `json:"read_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

type Dispute struct {
	ID                  int64      `json:"id"`
	Booking             int64      `json:"booking"`
	BookingReference    string     `json:"booking_reference"`
	OpenedBy            int64      `json:"opened_by"`
	OpenedByName        string     `json:"opened_by_name"`
	Status              string     `json:"status"`
	RequestedResolution string     `json:"requested_resolution"`
	Reason              string     `json:"reason"`
	AdminDecision       string     `json:"admin_decision"`
	AdminNote           string     `json:"admin_note"`
	ResolvedBy          *int64     `json:"resolved_by"`
	ResolvedAt          *time.Time `json:"resolved_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type DisputeRequest struct {
	Booking             int64  `json:"booking"`
	RequestedResolution string `json:"requested_resolution"`
	Reason              string `json:"reason"`
}

type PaymentInitRequest struct {
	PaymentMethod string `json:"payment_method"`
	CallbackURL   string `json:"callback_url,omitempty"`
}

type PaymentInit struct {
	BookingID         int64  `json:"booking_id"`
	MerchantReference string `json:"merchant_reference"`
	OrderTrackingID   string `json:"order_tracking_id"`
	RedirectURL       string `json:"redirect_url"`
	PaymentMethod     string `json:"payment_method"`
	Provider          string `json:"provider"`
}

type PaymentVerifyRequest struct {
	OrderTrackingID   string `json:"order_tracking_id,omitempty"`
	MerchantReference string `json:"merchant_reference,omitempty"`
}

type PaymentVerify struct {
	Detail            string `json:"detail"`
	BookingID         int64  `json:"booking_id"`
	MerchantReference string `json:"merchant_reference"`
	OrderTrackingID   string `json:"order_tracking_id"`
	PaymentStatus     string `json:"payment_status"`
	EventType         string `json:"event_type"`
	EscrowStatus      string `json:"escrow_status"`
	BookingStatus     string `json:"booking_status"`
}

// Page is the backend's paginated list envelope.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}
