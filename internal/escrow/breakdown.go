package escrow

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type CurrencyScale int32

const DefaultCurrencyScale CurrencyScale = 2

// DefaultFeeRate is the marketplace commission applied when a booking carries no explicit fee.
var DefaultFeeRate = decimal.RequireFromString("0.08")

type ValidationError struct {
	Code    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Breakdown splits what the customer pays into the provider's payout and the platform fee. It is
// what an admin releases or refunds.
type Breakdown struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	PlatformFee    decimal.Decimal `json:"platformFee"`
	Total          decimal.Decimal `json:"total"`
	ProviderPayout decimal.Decimal `json:"providerPayout"`
	Currency       string          `json:"currency,omitempty"`
	// Consistent is false when the stored total is not subtotal + fee at the currency scale.
	Consistent bool `json:"consistent"`
}

// Calculate fills in the amounts the way the marketplace stores them:
// - a zero fee is derived from the subtotal at DefaultFeeRate
// - a zero total is subtotal + fee
// - every amount is rounded to scale
// Stored non-zero values are kept as they are and only checked for consistency.
func Calculate(subtotal, fee, total decimal.Decimal, currency string, scale CurrencyScale) (Breakdown, error) {
	if scale <= 0 {
		scale = DefaultCurrencyScale
	}
	s := int32(scale)

	if subtotal.IsNegative() || fee.IsNegative() || total.IsNegative() {
		return Breakdown{}, ValidationError{Code: "AMOUNT_NEGATIVE", Message: "booking amounts must not be negative"}
	}

	subtotal = subtotal.Round(s)
	if fee.IsZero() {
		fee = subtotal.Mul(DefaultFeeRate)
	}
	fee = fee.Round(s)
	if total.IsZero() {
		total = subtotal.Add(fee)
	}
	total = total.Round(s)

	return Breakdown{
		Subtotal:       subtotal,
		PlatformFee:    fee,
		Total:          total,
		ProviderPayout: subtotal,
		Currency:       currency,
		Consistent:     subtotal.Add(fee).Equal(total),
	}, nil
}
