package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakePayPal serves the token, order creation and order lookup endpoints.
type fakePayPal struct {
	orders map[string]string // order id -> status
}

func (f *fakePayPal) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/oauth2/token":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "client-id" || pass != "client-secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, `{"access_token":"token-1","token_type":"Bearer"}`)
		case r.URL.Path == "/v2/checkout/orders" && r.Method == http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			var req struct {
				PurchaseUnits []struct {
					ReferenceID string `json:"reference_id"`
				} `json:"purchase_units"`
			}
			if err := json.Unmarshal(body, &req); err != nil || len(req.PurchaseUnits) == 0 {
				t.Errorf("bad order create request: %v", err)
			}
			fmt.Fprintf(w, `{"id":"ORDER-1","status":"CREATED","links":[{"rel":"self","href":"x"},{"rel":"approve","href":"https://paypal.example.com/approve/ORDER-1"}]}`)
		case r.Method == http.MethodGet && len(r.URL.Path) > len("/v2/checkout/orders/"):
			id := r.URL.Path[len("/v2/checkout/orders/"):]
			status, ok := f.orders[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"name":"RESOURCE_NOT_FOUND"}`)
				return
			}
			fmt.Fprintf(w, `{"id":%q,"status":%q,"purchase_units":[{"reference_id":"ref-123","payments":{"captures":[{"id":"CAP-9"}]}}]}`, id, status)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestPayPalClient(srv *httptest.Server) *PayPalClient {
	return &PayPalClient{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		APIBaseURL:   srv.URL,
		ClientURL:    "https://app.example.com",
		HTTPClient:   srv.Client(),
	}
}

func TestPayPalInitiateReturnsApprovalRedirect(t *testing.T) {
	fake := &fakePayPal{orders: map[string]string{}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	c := newTestPayPalClient(srv)
	session, err := c.Initiate(context.Background(), PurchaseIntent{
		Provider:          "paypal",
		Amount:            5,
		Currency:          "usd",
		ClientReferenceID: "ref-123",
	})
	if err != nil {
		t.Fatalf("unexpected initiate error: %v", err)
	}
	if session.RedirectURL != "https://paypal.example.com/approve/ORDER-1" {
		t.Fatalf("redirect url = %q", session.RedirectURL)
	}
	if session.EmbeddedToken != "" {
		t.Fatalf("paypal flow is redirect-based, got token %q", session.EmbeddedToken)
	}
}

func TestPayPalVerifyConfirmsAgainstOrderAPI(t *testing.T) {
	fake := &fakePayPal{orders: map[string]string{"ORDER-1": "COMPLETED"}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	c := newTestPayPalClient(srv)
	// The callback body claims a reference; the verifier must take the
	// reference from the authoritative lookup instead.
	body := []byte(`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"ORDER-1","custom_id":"ref-FORGED"}}`)

	ev, err := c.Verify(context.Background(), body, headerMap{}.get)
	if err != nil {
		t.Fatalf("unexpected verify error: %v", err)
	}
	if ev.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %q, want succeeded", ev.Outcome)
	}
	if ev.ClientReferenceID != "ref-123" {
		t.Fatalf("reference = %q, want the order API's ref-123", ev.ClientReferenceID)
	}
	if ev.ProviderTransactionID != "CAP-9" {
		t.Fatalf("transaction id = %q, want capture id CAP-9", ev.ProviderTransactionID)
	}
}

func TestPayPalVerifyRejectsUnknownOrder(t *testing.T) {
	fake := &fakePayPal{orders: map[string]string{}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	c := newTestPayPalClient(srv)
	body := []byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"ORDER-FORGED"}}`)

	if _, err := c.Verify(context.Background(), body, headerMap{}.get); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for forged order, got %v", err)
	}
}

func TestPayPalVerifyPendingAndFailedStatuses(t *testing.T) {
	tests := []struct {
		status string
		want   Outcome
	}{
		{"APPROVED", OutcomePending},
		{"CREATED", OutcomePending},
		{"VOIDED", OutcomeFailed},
		{"COMPLETED", OutcomeSucceeded},
	}

	for _, tt := range tests {
		fake := &fakePayPal{orders: map[string]string{"ORDER-1": tt.status}}
		srv := httptest.NewServer(fake.handler(t))

		c := newTestPayPalClient(srv)
		body := []byte(`{"event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ORDER-1"}}`)
		ev, err := c.Verify(context.Background(), body, headerMap{}.get)
		srv.Close()
		if err != nil {
			t.Fatalf("%s: unexpected verify error: %v", tt.status, err)
		}
		if ev.Outcome != tt.want {
			t.Fatalf("%s: outcome = %q, want %q", tt.status, ev.Outcome, tt.want)
		}
	}
}

func TestPayPalVerifyMissingResourceID(t *testing.T) {
	fake := &fakePayPal{orders: map[string]string{}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	c := newTestPayPalClient(srv)
	if _, err := c.Verify(context.Background(), []byte(`{"event_type":"x"}`), headerMap{}.get); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}
