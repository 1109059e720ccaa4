package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonasWeigert/PayBridge/internal/pkg/env"
)

const defaultPaystackAPIBaseURL = "https://api.paystack.co"

// paystackChannels mirrors the channels requested on initialization so card
// (incl. Verve), bank and mobile money flows all stay available.
var paystackChannels = []string{"card", "bank", "ussd", "qr", "mobile_money", "bank_transfer"}

// PaystackClient initializes redirect-based transactions and verifies the
// X-Paystack-Signature scheme (HMAC-SHA512 over the raw body with the API
// secret key).
type PaystackClient struct {
	SecretKey  string
	APIBaseURL string
	ClientURL  string

	HTTPClient *http.Client
}

func NewPaystackClientFromEnv() *PaystackClient {
	return &PaystackClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("PAYSTACK_SECRET_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("PAYSTACK_API_BASE_URL", defaultPaystackAPIBaseURL), "/"),
		ClientURL:  strings.TrimRight(env.GetEnv("CLIENT_URL", ""), "/"),
		HTTPClient: newProviderHTTPClient(),
	}
}

func (c *PaystackClient) Provider() Provider {
	return ProviderPaystack
}

// Initiate starts a transaction and returns its authorization URL. Paystack
// expects amounts in the minor currency unit (kobo, cents), so the
// major-unit intent amount is multiplied by 100 here. The client reference
// id rides in the `reference` field, which Paystack treats as caller-owned
// and echoes back unmodified on charge events.
func (c *PaystackClient) Initiate(ctx context.Context, intent PurchaseIntent) (*ProviderSession, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("PAYSTACK_SECRET_KEY is not configured")
	}

	email := strings.TrimSpace(intent.Email)
	if email == "" {
		email = "customer@example.com"
	}

	payload := map[string]any{
		"email":        email,
		"amount":       intent.Amount * 100,
		"reference":    intent.ClientReferenceID,
		"callback_url": c.ClientURL + "/payment/success?provider=paystack",
		"channels":     paystackChannels,
	}
	if cur := strings.TrimSpace(intent.Currency); cur != "" {
		payload["currency"] = strings.ToUpper(cur)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/transaction/initialize", bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := doWithRetry(c.HTTPClient, req)
	if err != nil {
		return nil, unavailableErr(ProviderPaystack, err)
	}
	defer resp.Body.Close()

	body := readProviderBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, rejectedErr(ProviderPaystack, resp.StatusCode, body)
	}

	var out struct {
		Status bool `json:"status"`
		Data   struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("paystack initialize response: %w", err)
	}
	if !out.Status || strings.TrimSpace(out.Data.AuthorizationURL) == "" {
		return nil, rejectedErr(ProviderPaystack, resp.StatusCode, body)
	}

	return &ProviderSession{Provider: ProviderPaystack, RedirectURL: out.Data.AuthorizationURL}, nil
}

// Verify computes the keyed hash over the exact raw body and compares it to
// the signature header in constant time. Only a matching payload is parsed.
func (c *PaystackClient) Verify(ctx context.Context, rawBody []byte, header func(string) string) (*PaymentEvent, error) {
	_ = ctx
	sig := strings.TrimSpace(header("X-Paystack-Signature"))
	if sig == "" || strings.TrimSpace(c.SecretKey) == "" {
		return nil, fmt.Errorf("%w: missing paystack signature or secret", ErrSignatureInvalid)
	}

	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return nil, fmt.Errorf("%w: paystack signature is not hex", ErrSignatureInvalid)
	}

	mac := hmac.New(sha512.New, []byte(c.SecretKey))
	mac.Write(rawBody)
	if !hmac.Equal(mac.Sum(nil), decoded) {
		return nil, fmt.Errorf("%w: paystack signature mismatch", ErrSignatureInvalid)
	}

	return parsePaystackEvent(rawBody)
}

func parsePaystackEvent(rawBody []byte) (*PaymentEvent, error) {
	var raw struct {
		Event string `json:"event"`
		Data  struct {
			ID        json.Number `json:"id"`
			Reference string      `json:"reference"`
			Status    string      `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: paystack event payload: %v", ErrInvalidRequest, err)
	}

	outcome := OutcomePending
	switch strings.ToLower(strings.TrimSpace(raw.Event)) {
	case "charge.success":
		outcome = OutcomeSucceeded
	case "charge.failed":
		outcome = OutcomeFailed
	}

	hash := PayloadHash(rawBody)
	return &PaymentEvent{
		Provider:              ProviderPaystack,
		ClientReferenceID:     strings.TrimSpace(raw.Data.Reference),
		Outcome:               outcome,
		// Paystack sends no distinct event id; the payload hash keys dedupe.
		EventID:               "hash:" + hash,
		EventType:             strings.TrimSpace(raw.Event),
		ProviderTransactionID: raw.Data.ID.String(),
		RawPayloadHash:        hash,
	}, nil
}
