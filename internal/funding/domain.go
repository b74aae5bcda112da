// Package funding shows the funding history and starts card checkouts for
// new contributions.
package funding

import (
	"encoding/json"
	"strings"

	"github.com/bloodbridge/bloodbridge/internal/api"
)

// Fund is one recorded contribution.
type Fund struct {
	ID     string   `json:"_id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Amount float64  `json:"amount"`
	Date   api.Time `json:"date"`
}

// UnmarshalJSON falls back to createdAt when the record has no date.
func (f *Fund) UnmarshalJSON(data []byte) error {
	type plain Fund
	var raw struct {
		plain
		CreatedAt api.Time `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Fund(raw.plain)
	if f.Date.IsZero() {
		f.Date = raw.CreatedAt
	}
	return nil
}

// Checkout is a card checkout session as reported by the payment backend.
type Checkout struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
	CustomerEmail string `json:"customer_email"`
}

// Paid reports whether the payment completed.
func (c Checkout) Paid() bool {
	return c.PaymentStatus == "paid"
}

// Amount is the total in major currency units.
func (c Checkout) Amount() float64 {
	return float64(c.AmountTotal) / 100
}

// CurrencyCode is the upper-case ISO currency code.
func (c Checkout) CurrencyCode() string {
	return strings.ToUpper(c.Currency)
}

// TransactionID identifies the payment for the donor's records.
func (c Checkout) TransactionID() string {
	if c.PaymentIntent != "" {
		return c.PaymentIntent
	}
	return c.ID
}

// Gift is the give-fund form.
type Gift struct {
	Amount float64 `form:"amount" validate:"required,gte=1"`
}

// ResourceHistory names the cached funding history.
const ResourceHistory = "funding.history"
