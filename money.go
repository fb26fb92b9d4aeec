package billingkit

import (
	"fmt"
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  `yaml:"amount" json:"amount"`     // Amount in smallest currency unit (cents for USD)
	Currency string `yaml:"currency" json:"currency"` // ISO 4217 currency code
}

// NewMoney creates a Money value from an amount in the smallest currency unit.
func NewMoney(amount int64, currencyCode string) Money {
	return Money{Amount: amount, Currency: currencyCode}
}

// IsZero returns true when the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// Equal compares amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// Format renders the amount with its currency symbol using CLDR data,
// e.g. Money{1099, "USD"}.Format() == "$10.99". The subunit scale comes
// from the currency itself, so zero-decimal currencies render without a
// fraction. Unknown currency codes fall back to "<amount> <code>".
func (m Money) Format() string {
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return fmt.Sprintf("%d %s", m.Amount, m.Currency)
	}

	scale, _ := currency.Cash.Rounding(unit)
	value := float64(m.Amount) / math.Pow10(scale)

	p := message.NewPrinter(language.English)
	return p.Sprintf("%v", currency.Symbol(unit.Amount(value)))
}

// String implements fmt.Stringer.
func (m Money) String() string {
	return m.Format()
}
