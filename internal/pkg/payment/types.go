package payment

import (
	"context"
	"fmt"
	"strings"
)

// Provider identifies one of the supported payment providers.
type Provider string

const (
	ProviderStripe   Provider = "stripe"
	ProviderPaystack Provider = "paystack"
	ProviderPayPal   Provider = "paypal"
)

// ParseProvider normalizes a caller-supplied provider name.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderStripe:
		return ProviderStripe, nil
	case ProviderPaystack:
		return ProviderPaystack, nil
	case ProviderPayPal:
		return ProviderPayPal, nil
	default:
		return "", fmt.Errorf("%w: unknown provider %q", ErrInvalidRequest, s)
	}
}

// PurchaseIntent is the provider-neutral request to start a purchase.
// ClientReferenceID is caller-generated, globally unique per attempt and
// unguessable; it is the single correlation key between the outbound
// provider call and the eventual webhook confirmation.
//
// Amount conventions differ per provider and are handled by the adapters:
// Stripe checkouts are priced by PriceRef when set, otherwise Amount is
// passed through as a minor-unit value; Paystack receives Amount in the
// major currency unit and the adapter converts to the minor unit; PayPal
// receives Amount as a decimal major-unit value.
type PurchaseIntent struct {
	Provider          string `json:"provider" validate:"required,oneof=stripe paystack paypal"`
	PriceRef          string `json:"price_id" validate:"omitempty,max=191"`
	Amount            int64  `json:"amount" validate:"gte=0"`
	Currency          string `json:"currency" validate:"omitempty,len=3"`
	Email             string `json:"email" validate:"omitempty,email"`
	ClientReferenceID string `json:"client_reference_id" validate:"required,max=191"`
}

// ProviderSession is the pointer a client acts on after purchase creation.
// Exactly one of RedirectURL or EmbeddedToken is set. Sessions are
// request-scoped and never persisted.
type ProviderSession struct {
	Provider      Provider `json:"provider"`
	RedirectURL   string   `json:"redirect_url,omitempty"`
	EmbeddedToken string   `json:"embedded_token,omitempty"`
}

// Outcome is the neutral classification of a provider event.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomePending   Outcome = "pending"
)

// PaymentEvent is a webhook notification after authentication. It is only
// ever produced by a WebhookVerifier that has already verified the payload;
// nothing in this package constructs one from unauthenticated input.
type PaymentEvent struct {
	Provider              Provider
	ClientReferenceID     string
	Outcome               Outcome
	EventID               string
	EventType             string
	ProviderTransactionID string
	RawPayloadHash        string
}

// ProviderAdapter translates a provider-neutral purchase intent into a
// provider-specific session and returns the neutral pointer for it.
type ProviderAdapter interface {
	Provider() Provider
	Initiate(ctx context.Context, intent PurchaseIntent) (*ProviderSession, error)
}

// WebhookVerifier authenticates an inbound asynchronous notification using
// the provider's scheme and parses it into a neutral PaymentEvent. The raw
// body must be the exact bytes received on the wire, unparsed; header
// returns the value of a named request header.
type WebhookVerifier interface {
	Provider() Provider
	Verify(ctx context.Context, rawBody []byte, header func(string) string) (*PaymentEvent, error)
}
