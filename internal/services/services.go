package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actor is the authenticated principal as asserted by the upstream
// identity layer. Staff actors see and may return everything.
type Actor struct {
	UserID  uuid.UUID
	IsStaff bool
}

func (a Actor) canAccess(ownerID uuid.UUID) bool {
	return a.IsStaff || a.UserID == ownerID
}

// Settings carries the business constants shared by the services.
type Settings struct {
	// FineMultiplier scales the daily fee for overdue returns.
	FineMultiplier decimal.Decimal

	// MaxBorrowDays bounds expected_return_date and is the default
	// borrow window when the client omits it.
	MaxBorrowDays int

	// PaymentTTL is how long a PENDING payment may stay open before the
	// sweeper expires it.
	PaymentTTL time.Duration

	// Currency is the lowercase ISO code passed to the checkout gateway.
	Currency string

	// CheckoutSuccessURL / CheckoutCancelURL are where the gateway sends
	// the customer after checkout.
	CheckoutSuccessURL string
	CheckoutCancelURL  string
}

// dateOnly truncates a timestamp to midnight UTC; all borrowing dates
// carry calendar-day granularity.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole calendar days from a to b (both date-only).
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// toCents converts a decimal money amount to the gateway's minor units.
func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}
