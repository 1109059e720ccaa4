package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/JonasWeigert/PayBridge/internal/pkg/env"
)

const defaultPayPalAPIBaseURL = "https://api-m.paypal.com"

// PayPalClient creates redirect-based orders whose approval happens out of
// band. PayPal webhooks carry no locally checkable signature in this setup,
// so Verify never trusts the callback body: it calls the authoritative
// order API and builds the event from that response instead.
type PayPalClient struct {
	ClientID     string
	ClientSecret string
	APIBaseURL   string
	ClientURL    string

	HTTPClient *http.Client
}

func NewPayPalClientFromEnv() *PayPalClient {
	return &PayPalClient{
		ClientID:     strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_SECRET", "")),
		APIBaseURL:   strings.TrimRight(env.GetEnv("PAYPAL_API_BASE_URL", defaultPayPalAPIBaseURL), "/"),
		ClientURL:    strings.TrimRight(env.GetEnv("CLIENT_URL", ""), "/"),
		HTTPClient:   newProviderHTTPClient(),
	}
}

func (c *PayPalClient) Provider() Provider {
	return ProviderPayPal
}

func (c *PayPalClient) accessToken(ctx context.Context) (string, error) {
	if c.ClientID == "" || c.ClientSecret == "" {
		return "", errors.New("PAYPAL_CLIENT_ID/PAYPAL_CLIENT_SECRET are not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := doWithRetry(c.HTTPClient, req)
	if err != nil {
		return "", unavailableErr(ProviderPayPal, err)
	}
	defer resp.Body.Close()

	body := readProviderBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", rejectedErr(ProviderPayPal, resp.StatusCode, body)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("paypal token response: %w", err)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", errors.New("paypal token exchange returned empty access_token")
	}
	return out.AccessToken, nil
}

// Initiate creates a capture order and returns its approval link as the
// redirect URL. The client reference id is carried as the purchase unit's
// reference_id so the later authoritative lookup returns it.
func (c *PayPalClient) Initiate(ctx context.Context, intent PurchaseIntent) (*ProviderSession, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(intent.Currency))
	if currency == "" {
		currency = "USD"
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"reference_id": intent.ClientReferenceID,
				"amount": map[string]string{
					"currency_code": currency,
					"value":         strconv.FormatInt(intent.Amount, 10),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": c.ClientURL + "/payment/success?provider=paypal",
			"cancel_url": c.ClientURL + "/payment/cancel?provider=paypal",
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/v2/checkout/orders", bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := doWithRetry(c.HTTPClient, req)
	if err != nil {
		return nil, unavailableErr(ProviderPayPal, err)
	}
	defer resp.Body.Close()

	body := readProviderBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, rejectedErr(ProviderPayPal, resp.StatusCode, body)
	}

	var out struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("paypal order response: %w", err)
	}

	approval := ""
	for _, link := range out.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			approval = link.Href
			break
		}
	}
	if approval == "" {
		return nil, fmt.Errorf("%w: paypal order %s has no approval link", ErrProviderRejected, out.ID)
	}

	return &ProviderSession{Provider: ProviderPayPal, RedirectURL: approval}, nil
}

// Verify extracts only the order id from the callback body and then asks
// the order API for the authoritative state. Outcome, reference and
// transaction id all come from that response, never from the delivery.
func (c *PayPalClient) Verify(ctx context.Context, rawBody []byte, header func(string) string) (*PaymentEvent, error) {
	_ = header

	var raw struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Resource  struct {
			ID string `json:"id"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: paypal event payload: %v", ErrInvalidRequest, err)
	}
	orderID := strings.TrimSpace(raw.Resource.ID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: paypal event missing resource id", ErrSignatureInvalid)
	}

	status, reference, captureID, err := c.lookupOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrProviderRejected) {
			// The order does not exist upstream; the callback was forged
			// or stale and must not be processed.
			return nil, fmt.Errorf("%w: paypal order %s not confirmed: %v", ErrSignatureInvalid, orderID, err)
		}
		return nil, err
	}

	outcome := OutcomePending
	switch status {
	case "COMPLETED":
		outcome = OutcomeSucceeded
	case "VOIDED", "DECLINED":
		outcome = OutcomeFailed
	}

	txID := captureID
	if txID == "" {
		txID = orderID
	}
	hash := PayloadHash(rawBody)
	eventID := strings.TrimSpace(raw.ID)
	if eventID == "" {
		eventID = "hash:" + hash
	}

	return &PaymentEvent{
		Provider:              ProviderPayPal,
		ClientReferenceID:     reference,
		Outcome:               outcome,
		EventID:               eventID,
		EventType:             strings.TrimSpace(raw.EventType),
		ProviderTransactionID: txID,
		RawPayloadHash:        hash,
	}, nil
}

func (c *PayPalClient) lookupOrder(ctx context.Context, orderID string) (status, reference, captureID string, err error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBaseURL+"/v2/checkout/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return "", "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := doWithRetry(c.HTTPClient, req)
	if err != nil {
		return "", "", "", unavailableErr(ProviderPayPal, err)
	}
	defer resp.Body.Close()

	body := readProviderBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", "", rejectedErr(ProviderPayPal, resp.StatusCode, body)
	}

	var out struct {
		Status        string `json:"status"`
		PurchaseUnits []struct {
			ReferenceID string `json:"reference_id"`
			Payments    struct {
				Captures []struct {
					ID string `json:"id"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", "", "", fmt.Errorf("paypal order lookup response: %w", err)
	}

	if len(out.PurchaseUnits) > 0 {
		reference = strings.TrimSpace(out.PurchaseUnits[0].ReferenceID)
		if caps := out.PurchaseUnits[0].Payments.Captures; len(caps) > 0 {
			captureID = strings.TrimSpace(caps[0].ID)
		}
	}
	return strings.ToUpper(strings.TrimSpace(out.Status)), reference, captureID, nil
}
