package gateway

import (
	"context"
	"fmt"
	"sync"

	"booklib/internal/apperr"
)

// Fake is an in-memory CheckoutGateway for tests. Sessions start unpaid;
// tests flip them with MarkPaid. Setting Fail makes every call return the
// gateway-unavailable error.
type Fake struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]SessionPaymentStatus
	Fail     bool

	// Opened records every request passed to OpenSession, in order.
	Opened []SessionRequest
}

func NewFake() *Fake {
	return &Fake{sessions: make(map[string]SessionPaymentStatus)}
}

func (f *Fake) OpenSession(_ context.Context, req SessionRequest) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail {
		return nil, apperr.ErrGatewayUnavailable
	}
	f.seq++
	id := fmt.Sprintf("cs_test_%d", f.seq)
	f.sessions[id] = SessionUnpaid
	f.Opened = append(f.Opened, req)
	return &Session{URL: "https://checkout.test/" + id, ID: id}, nil
}

func (f *Fake) SessionStatus(_ context.Context, sessionID string) (SessionPaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail {
		return "", apperr.ErrGatewayUnavailable
	}
	status, ok := f.sessions[sessionID]
	if !ok {
		return "", apperr.ErrGatewayUnavailable
	}
	return status, nil
}

// MarkPaid simulates the customer completing checkout.
func (f *Fake) MarkPaid(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionID] = SessionPaid
}
