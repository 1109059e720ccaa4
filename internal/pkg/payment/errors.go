package payment

import (
	"errors"
	"fmt"
)

// Error taxonomy. Controllers map these onto HTTP statuses; everything else
// wraps them with fmt.Errorf("%w") so errors.Is keeps working through the
// call stack.
var (
	// ErrInvalidRequest marks a caller error (4xx, never retried).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrProviderUnavailable marks a network-level failure reaching a
	// provider. The raw cause is logged, never returned to the client.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderRejected marks a non-success provider response. The
	// response body is captured in the error for diagnostics but is not
	// authoritative payment state.
	ErrProviderRejected = errors.New("provider rejected request")

	// ErrSignatureInvalid marks a webhook whose signature did not verify.
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrSignatureExpired marks a webhook whose signed timestamp is outside
	// the provider's tolerance window.
	ErrSignatureExpired = errors.New("webhook signature expired")
)

func rejectedErr(p Provider, status int, body []byte) error {
	return fmt.Errorf("%w: %s status=%d body=%s", ErrProviderRejected, p, status, string(body))
}

func unavailableErr(p Provider, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, p, err)
}
