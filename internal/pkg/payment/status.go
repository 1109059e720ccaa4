package payment

import (
	"context"
	"strings"
	"time"

	"github.com/JonasWeigert/PayBridge/internal/pkg/cache"
)

// Status is the answer to "is reference X paid?".
type Status string

const (
	StatusPaid    Status = "paid"
	StatusOpen    Status = "open"
	StatusUnknown Status = "unknown"
)

const sessionStatusCacheTTL = time.Hour

// SessionStatusFetcher retrieves the provider-side payment status of a
// hosted checkout session.
type SessionStatusFetcher interface {
	RetrieveSessionStatus(ctx context.Context, sessionID string) (string, error)
}

// StatusResolver is the pull-based fallback for the post-redirect landing
// flow: it answers synchronously instead of waiting for the webhook.
// Stripe-shaped references go to the session API; everything else consults
// the ledger. The resolver is strictly read-only on the ledger so a client
// poll can never apply credit.
type StatusResolver struct {
	stripe SessionStatusFetcher
	ledger *Ledger

	cacheGet func(key string) (string, error)
	cacheSet func(key string, value interface{}, expiration time.Duration) error
}

func NewStatusResolver(stripe SessionStatusFetcher, ledger *Ledger) *StatusResolver {
	return &StatusResolver{
		stripe:   stripe,
		ledger:   ledger,
		cacheGet: cache.Get,
		cacheSet: cache.Set,
	}
}

// Resolve maps a reference to paid/open/unknown. An absent ledger record
// answers open, not an error: webhook delivery may simply still be in
// flight. Paid session lookups are cached since that state is terminal.
func (r *StatusResolver) Resolve(ctx context.Context, reference string) (Status, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return StatusUnknown, ErrInvalidRequest
	}

	if strings.HasPrefix(ref, "cs_") {
		return r.resolveStripeSession(ctx, ref)
	}

	granted, err := r.ledger.IsGranted(ctx, ref)
	if err != nil {
		return StatusUnknown, err
	}
	if granted {
		return StatusPaid, nil
	}
	return StatusOpen, nil
}

func (r *StatusResolver) resolveStripeSession(ctx context.Context, sessionID string) (Status, error) {
	cacheKey := "payment:session_status:" + sessionID
	if cached, err := r.cacheGet(cacheKey); err == nil && cached == string(StatusPaid) {
		return StatusPaid, nil
	}

	paymentStatus, err := r.stripe.RetrieveSessionStatus(ctx, sessionID)
	if err != nil {
		return StatusUnknown, err
	}

	switch paymentStatus {
	case "paid", "no_payment_required":
		_ = r.cacheSet(cacheKey, string(StatusPaid), sessionStatusCacheTTL)
		return StatusPaid, nil
	case "unpaid":
		return StatusOpen, nil
	default:
		return StatusUnknown, nil
	}
}
