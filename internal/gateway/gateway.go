package gateway

import "context"

// SessionRequest describes one hosted checkout flow to open.
type SessionRequest struct {
	// Amount is the charge in minor units (cents).
	Amount int64
	// Currency is a lowercase ISO 4217 code, e.g. "usd".
	Currency    string
	Name        string
	Description string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

// Session is the opaque handle pair the provider returns.
type Session struct {
	URL string
	ID  string
}

// SessionPaymentStatus is the provider's authoritative answer for a session.
type SessionPaymentStatus string

const (
	SessionPaid   SessionPaymentStatus = "paid"
	SessionUnpaid SessionPaymentStatus = "unpaid"
)

// CheckoutGateway is the only contract the core depends on. Implementations
// must surface every transport or provider failure as
// apperr.ErrGatewayUnavailable so the enclosing transaction aborts cleanly.
type CheckoutGateway interface {
	OpenSession(ctx context.Context, req SessionRequest) (*Session, error)
	SessionStatus(ctx context.Context, sessionID string) (SessionPaymentStatus, error)
}
