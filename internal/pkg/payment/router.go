package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Router is the single entry point for purchase creation. It knows which
// adapter owns which provider and nothing about provider wire formats, so
// adding a fourth provider is one more registration here, not new
// branching.
type Router struct {
	adapters map[Provider]ProviderAdapter
}

func NewRouter(adapters ...ProviderAdapter) *Router {
	m := make(map[Provider]ProviderAdapter, len(adapters))
	for _, a := range adapters {
		m[a.Provider()] = a
	}
	return &Router{adapters: m}
}

// CreatePurchase validates the intent and dispatches to the matching
// adapter. Adapter failures that are not already classified come back as
// ErrProviderUnavailable; raw provider error bodies stay inside the error
// chain for logging and are never part of the client response.
func (r *Router) CreatePurchase(ctx context.Context, intent PurchaseIntent) (*ProviderSession, error) {
	provider, err := ParseProvider(intent.Provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(intent.ClientReferenceID) == "" {
		return nil, fmt.Errorf("%w: client_reference_id is required", ErrInvalidRequest)
	}

	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter registered for %s", ErrInvalidRequest, provider)
	}

	session, err := adapter.Initiate(ctx, intent)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrProviderRejected) || errors.Is(err, ErrProviderUnavailable) {
			return nil, err
		}
		return nil, unavailableErr(provider, err)
	}
	return session, nil
}

// VerifierSet selects the webhook verifier for a provider tag.
type VerifierSet map[Provider]WebhookVerifier

func NewVerifierSet(verifiers ...WebhookVerifier) VerifierSet {
	set := make(VerifierSet, len(verifiers))
	for _, v := range verifiers {
		set[v.Provider()] = v
	}
	return set
}

func (s VerifierSet) For(provider Provider) (WebhookVerifier, bool) {
	v, ok := s[provider]
	return v, ok
}
