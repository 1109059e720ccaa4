package payment

import (
	"context"
	"errors"
	"testing"
)

type stubAdapter struct {
	provider Provider
	session  *ProviderSession
	err      error
	called   int
}

func (a *stubAdapter) Provider() Provider {
	return a.provider
}

func (a *stubAdapter) Initiate(ctx context.Context, intent PurchaseIntent) (*ProviderSession, error) {
	a.called++
	if a.err != nil {
		return nil, a.err
	}
	return a.session, nil
}

func TestRouterDispatchesToMatchingAdapter(t *testing.T) {
	stripe := &stubAdapter{provider: ProviderStripe, session: &ProviderSession{Provider: ProviderStripe, EmbeddedToken: "tok"}}
	paystack := &stubAdapter{provider: ProviderPaystack, session: &ProviderSession{Provider: ProviderPaystack, RedirectURL: "https://x"}}
	r := NewRouter(stripe, paystack)

	session, err := r.CreatePurchase(context.Background(), PurchaseIntent{Provider: "paystack", ClientReferenceID: "ref-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.RedirectURL != "https://x" {
		t.Fatalf("wrong adapter dispatched: %+v", session)
	}
	if stripe.called != 0 || paystack.called != 1 {
		t.Fatalf("calls: stripe=%d paystack=%d", stripe.called, paystack.called)
	}
}

func TestRouterRejectsUnknownProvider(t *testing.T) {
	r := NewRouter(&stubAdapter{provider: ProviderStripe})
	_, err := r.CreatePurchase(context.Background(), PurchaseIntent{Provider: "square", ClientReferenceID: "ref-1"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRouterRejectsMissingReference(t *testing.T) {
	r := NewRouter(&stubAdapter{provider: ProviderStripe})
	_, err := r.CreatePurchase(context.Background(), PurchaseIntent{Provider: "stripe"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRouterRejectsUnregisteredAdapter(t *testing.T) {
	r := NewRouter(&stubAdapter{provider: ProviderStripe})
	_, err := r.CreatePurchase(context.Background(), PurchaseIntent{Provider: "paypal", ClientReferenceID: "ref-1"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRouterWrapsUnclassifiedAdapterErrors(t *testing.T) {
	r := NewRouter(&stubAdapter{provider: ProviderStripe, err: errors.New("connection reset")})
	_, err := r.CreatePurchase(context.Background(), PurchaseIntent{Provider: "stripe", ClientReferenceID: "ref-1"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestRouterPreservesClassifiedAdapterErrors(t *testing.T) {
	rejected := rejectedErr(ProviderStripe, 402, []byte(`{"error":"card_declined"}`))
	r := NewRouter(&stubAdapter{provider: ProviderStripe, err: rejected})
	_, err := r.CreatePurchase(context.Background(), PurchaseIntent{Provider: "stripe", ClientReferenceID: "ref-1"})
	if !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
	if errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("rejection must not be reclassified as unavailable")
	}
}

func TestVerifierSetSelection(t *testing.T) {
	stripe := newTestStripeClient()
	set := NewVerifierSet(stripe, newTestPaystackClient())

	if v, ok := set.For(ProviderStripe); !ok || v.Provider() != ProviderStripe {
		t.Fatalf("stripe verifier not found")
	}
	if _, ok := set.For(ProviderPayPal); ok {
		t.Fatalf("paypal verifier should be absent")
	}
}
