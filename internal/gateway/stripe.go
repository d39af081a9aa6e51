package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"booklib/internal/apperr"
)

const defaultStripeBaseURL = "https://api.stripe.com"

// StripeGateway drives Stripe's hosted checkout over its form-encoded REST
// API. Only the two calls the core needs are implemented.
type StripeGateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

type StripeOption func(*StripeGateway)

// WithBaseURL points the client at a different endpoint (tests).
func WithBaseURL(u string) StripeOption {
	return func(g *StripeGateway) { g.baseURL = u }
}

func WithHTTPClient(c *http.Client) StripeOption {
	return func(g *StripeGateway) { g.client = c }
}

func NewStripeGateway(secretKey string, opts ...StripeOption) *StripeGateway {
	g := &StripeGateway{
		secretKey: secretKey,
		baseURL:   defaultStripeBaseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
}

func (g *StripeGateway) OpenSession(ctx context.Context, req SessionRequest) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", req.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Name)
	if req.Description != "" {
		form.Set("line_items[0][price_data][product_data][description]", req.Description)
	}
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var session stripeSession
	if err := g.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &Session{URL: session.URL, ID: session.ID}, nil
}

func (g *StripeGateway) SessionStatus(ctx context.Context, sessionID string) (SessionPaymentStatus, error) {
	var session stripeSession
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID)
	if err := g.do(ctx, http.MethodGet, path, nil, &session); err != nil {
		return "", err
	}
	if session.PaymentStatus == "paid" {
		return SessionPaid, nil
	}
	return SessionUnpaid, nil
}

func (g *StripeGateway) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return apperr.Wrap(apperr.KindGatewayUnavailable, "payment gateway unavailable", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		log.Errorf("[ERROR] stripe: %s %s failed: %v", method, path, err)
		return apperr.Wrap(apperr.KindGatewayUnavailable, "payment gateway unavailable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.KindGatewayUnavailable, "payment gateway unavailable", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Errorf("[ERROR] stripe: %s %s returned %d: %s", method, path, resp.StatusCode, raw)
		return apperr.Wrap(apperr.KindGatewayUnavailable, "payment gateway unavailable",
			fmt.Errorf("stripe responded %d", resp.StatusCode))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.KindGatewayUnavailable, "payment gateway unavailable", err)
	}
	return nil
}
