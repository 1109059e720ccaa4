package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonasWeigert/PayBridge/internal/pkg/env"
)

const (
	defaultStripeAPIBaseURL = "https://api.stripe.com"

	// Stripe recommends rejecting signed timestamps older than 5 minutes.
	stripeSignatureTolerance = 5 * time.Minute
)

// StripeClient creates embedded checkout sessions and verifies the
// Stripe-Signature scheme (HMAC-SHA256 over "<timestamp>.<raw body>").
type StripeClient struct {
	SecretKey     string
	WebhookSecret string
	APIBaseURL    string
	ClientURL     string

	HTTPClient *http.Client

	// now is swappable for signature-tolerance tests.
	now func() time.Time
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:     strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		APIBaseURL:    strings.TrimRight(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL), "/"),
		ClientURL:     strings.TrimRight(env.GetEnv("CLIENT_URL", ""), "/"),
		HTTPClient:    newProviderHTTPClient(),
		now:           time.Now,
	}
}

func (c *StripeClient) Provider() Provider {
	return ProviderStripe
}

// Initiate creates a checkout session in embedded mode and returns its
// client secret as the embedded token. The client reference id is passed in
// the session's client_reference_id field, which Stripe echoes back
// verbatim on checkout.session webhook events. Pricing comes from a price
// id when one is given; otherwise an ad-hoc line item is built from the
// intent amount, which Stripe takes in the minor currency unit as-is.
func (c *StripeClient) Initiate(ctx context.Context, intent PurchaseIntent) (*ProviderSession, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}

	form := url.Values{}
	form.Set("payment_method_types[0]", "card")
	switch {
	case strings.TrimSpace(intent.PriceRef) != "":
		form.Set("line_items[0][price]", intent.PriceRef)
	case intent.Amount > 0:
		currency := strings.ToLower(strings.TrimSpace(intent.Currency))
		if currency == "" {
			currency = "usd"
		}
		form.Set("line_items[0][price_data][currency]", currency)
		form.Set("line_items[0][price_data][product_data][name]", "Credit purchase")
		form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(intent.Amount, 10))
	default:
		return nil, fmt.Errorf("%w: stripe needs a price_id or a positive amount", ErrInvalidRequest)
	}
	form.Set("line_items[0][quantity]", "1")
	form.Set("mode", "payment")
	form.Set("ui_mode", "embedded")
	form.Set("client_reference_id", intent.ClientReferenceID)
	form.Set("return_url", c.ClientURL+"/payment/success?session_id={CHECKOUT_SESSION_ID}&provider=stripe")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := doWithRetry(c.HTTPClient, req)
	if err != nil {
		return nil, unavailableErr(ProviderStripe, err)
	}
	defer resp.Body.Close()

	body := readProviderBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, rejectedErr(ProviderStripe, resp.StatusCode, body)
	}

	var out struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("stripe session response: %w", err)
	}
	if strings.TrimSpace(out.ClientSecret) == "" {
		return nil, fmt.Errorf("%w: stripe session missing client_secret", ErrProviderRejected)
	}

	return &ProviderSession{Provider: ProviderStripe, EmbeddedToken: out.ClientSecret}, nil
}

// Verify reconstructs the expected signature over the exact raw body and
// compares in constant time. The body is parsed only after the signature
// checks out.
func (c *StripeClient) Verify(ctx context.Context, rawBody []byte, header func(string) string) (*PaymentEvent, error) {
	_ = ctx
	sigHeader := strings.TrimSpace(header("Stripe-Signature"))
	if sigHeader == "" || strings.TrimSpace(c.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: missing stripe signature or secret", ErrSignatureInvalid)
	}

	ts, candidates, err := parseStripeSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	now := c.now
	if now == nil {
		now = time.Now
	}
	age := now().Sub(time.Unix(ts, 0))
	if age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return nil, fmt.Errorf("%w: stripe timestamp %d outside tolerance", ErrSignatureExpired, ts)
	}

	mac := hmac.New(sha256.New, []byte(c.WebhookSecret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	match := false
	for _, cand := range candidates {
		decoded, decErr := hex.DecodeString(strings.ToLower(cand))
		if decErr != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			match = true
		}
	}
	if !match {
		return nil, fmt.Errorf("%w: stripe v1 signature mismatch", ErrSignatureInvalid)
	}

	return parseStripeEvent(rawBody)
}

// parseStripeSignatureHeader splits "t=<unix>,v1=<hex>[,v1=<hex>...]".
// Multiple v1 entries appear while a webhook secret is being rolled.
func parseStripeSignatureHeader(header string) (int64, []string, error) {
	var ts int64 = -1
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad stripe timestamp", ErrSignatureInvalid)
			}
			ts = parsed
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}
	if ts < 0 || len(candidates) == 0 {
		return 0, nil, fmt.Errorf("%w: malformed stripe signature header", ErrSignatureInvalid)
	}
	return ts, candidates, nil
}

func parseStripeEvent(rawBody []byte) (*PaymentEvent, error) {
	var raw struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID                string `json:"id"`
				ClientReferenceID string `json:"client_reference_id"`
				PaymentStatus     string `json:"payment_status"`
				PaymentIntent     string `json:"payment_intent"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: stripe event payload: %v", ErrInvalidRequest, err)
	}

	outcome := OutcomePending
	switch raw.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		// A completed session can still be unpaid for deferred methods;
		// only a paid session grants credit.
		if raw.Data.Object.PaymentStatus == "paid" || raw.Data.Object.PaymentStatus == "no_payment_required" {
			outcome = OutcomeSucceeded
		}
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		outcome = OutcomeFailed
	}

	txID := strings.TrimSpace(raw.Data.Object.PaymentIntent)
	if txID == "" {
		txID = strings.TrimSpace(raw.Data.Object.ID)
	}

	return &PaymentEvent{
		Provider:              ProviderStripe,
		ClientReferenceID:     strings.TrimSpace(raw.Data.Object.ClientReferenceID),
		Outcome:               outcome,
		EventID:               strings.TrimSpace(raw.ID),
		EventType:             raw.Type,
		ProviderTransactionID: txID,
		RawPayloadHash:        PayloadHash(rawBody),
	}, nil
}

// RetrieveSessionStatus fetches a checkout session and maps its payment
// status, used by the post-redirect status poll.
func (c *StripeClient) RetrieveSessionStatus(ctx context.Context, sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", fmt.Errorf("%w: session id is required", ErrInvalidRequest)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBaseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)

	resp, err := doWithRetry(c.HTTPClient, req)
	if err != nil {
		return "", unavailableErr(ProviderStripe, err)
	}
	defer resp.Body.Close()

	body := readProviderBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", rejectedErr(ProviderStripe, resp.StatusCode, body)
	}

	var out struct {
		PaymentStatus string `json:"payment_status"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("stripe session response: %w", err)
	}
	return out.PaymentStatus, nil
}
