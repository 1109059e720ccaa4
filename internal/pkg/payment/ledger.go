package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonasWeigert/PayBridge/app/models"
)

// ApplyResult reports what a ledger apply did.
type ApplyResult string

const (
	// ApplyApplied: this call performed the one Unset→Granted transition.
	ApplyApplied ApplyResult = "applied"
	// ApplyAlreadyApplied: the reference was granted by an earlier event.
	ApplyAlreadyApplied ApplyResult = "already_applied"
	// ApplyIgnored: the event outcome grants nothing (failed or pending).
	ApplyIgnored ApplyResult = "ignored"
)

// Repository provides the DB operations used by the payment services.
type Repository interface {
	GrantCreditIfAbsent(rec *models.LedgerRecord) (bool, *models.LedgerRecord, error)
	GetLedgerRecordByReference(reference string) (*models.LedgerRecord, error)
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

// ErrLedgerRecordNotFound is returned by GetLedgerRecordByReference when no
// credit has been granted for a reference.
var ErrLedgerRecordNotFound = errors.New("ledger record not found")

// Ledger applies verified payment events to user credit exactly once per
// client reference. The backing store's atomic insert-if-absent on the
// reference's unique key is the whole concurrency discipline: two
// concurrent successes for one reference race to a single winning insert,
// and unrelated references never contend.
type Ledger struct {
	repo Repository
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Apply grants credit for a succeeded event, once. Duplicate deliveries,
// provider retries and even a second provider reporting on the same
// reference all land on AlreadyApplied with no further side effect. Failed
// and pending events never touch state. A store error is returned as-is so
// the webhook handler can answer 5xx and let the provider retry.
func (l *Ledger) Apply(ctx context.Context, event PaymentEvent) (ApplyResult, error) {
	_ = ctx
	if event.ClientReferenceID == "" {
		return ApplyIgnored, fmt.Errorf("%w: payment event missing client reference", ErrInvalidRequest)
	}
	if event.Outcome != OutcomeSucceeded {
		return ApplyIgnored, nil
	}

	rec := &models.LedgerRecord{
		ClientReferenceID:     event.ClientReferenceID,
		CreditState:           models.CreditStateGranted,
		Provider:              string(event.Provider),
		ProviderTransactionID: event.ProviderTransactionID,
		FirstAppliedAt:        time.Now().UTC(),
	}
	created, _, err := l.repo.GrantCreditIfAbsent(rec)
	if err != nil {
		return "", fmt.Errorf("grant credit for %s: %w", event.ClientReferenceID, err)
	}
	if !created {
		return ApplyAlreadyApplied, nil
	}
	return ApplyApplied, nil
}

// IsGranted reports whether a reference has been credited. Read-only; the
// status-resolution path must never mutate the ledger.
func (l *Ledger) IsGranted(ctx context.Context, reference string) (bool, error) {
	_ = ctx
	if reference == "" {
		return false, fmt.Errorf("%w: reference is required", ErrInvalidRequest)
	}
	_, err := l.repo.GetLedgerRecordByReference(reference)
	if err != nil {
		if errors.Is(err, ErrLedgerRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
