package payment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/JonasWeigert/PayBridge/app/models"
)

// memoryRepository mimics the store's atomic insert-if-absent semantics.
type memoryRepository struct {
	mu      sync.Mutex
	ledger  map[string]*models.LedgerRecord
	events  map[string]*models.WebhookEvent
	nextID  uint
	failAll bool
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		ledger: make(map[string]*models.LedgerRecord),
		events: make(map[string]*models.WebhookEvent),
	}
}

var errStoreDown = errors.New("store unavailable")

func (r *memoryRepository) GrantCreditIfAbsent(rec *models.LedgerRecord) (bool, *models.LedgerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return false, nil, errStoreDown
	}
	if existing, ok := r.ledger[rec.ClientReferenceID]; ok {
		return false, existing, nil
	}
	r.nextID++
	rec.ID = r.nextID
	r.ledger[rec.ClientReferenceID] = rec
	return true, rec, nil
}

func (r *memoryRepository) GetLedgerRecordByReference(reference string) (*models.LedgerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, errStoreDown
	}
	rec, ok := r.ledger[reference]
	if !ok {
		return nil, ErrLedgerRecordNotFound
	}
	return rec, nil
}

func (r *memoryRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return false, nil, errStoreDown
	}
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := r.events[key]; ok {
		return false, existing, nil
	}
	r.nextID++
	event.ID = r.nextID
	r.events[key] = event
	return true, event, nil
}

func (r *memoryRepository) MarkWebhookProcessed(id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id {
			now := ev.CreatedAt
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
			return nil
		}
	}
	return errors.New("event not found")
}

func succeededEvent(ref string) PaymentEvent {
	return PaymentEvent{
		Provider:              ProviderPaystack,
		ClientReferenceID:     ref,
		Outcome:               OutcomeSucceeded,
		ProviderTransactionID: "tx-1",
	}
}

func TestLedgerAppliesExactlyOnce(t *testing.T) {
	ledger := NewLedger(newMemoryRepository())
	ctx := context.Background()

	res, err := ledger.Apply(ctx, succeededEvent("ref-1"))
	if err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}
	if res != ApplyApplied {
		t.Fatalf("first apply = %q, want %q", res, ApplyApplied)
	}

	for i := 0; i < 5; i++ {
		res, err = ledger.Apply(ctx, succeededEvent("ref-1"))
		if err != nil {
			t.Fatalf("unexpected apply error: %v", err)
		}
		if res != ApplyAlreadyApplied {
			t.Fatalf("duplicate apply = %q, want %q", res, ApplyAlreadyApplied)
		}
	}

	granted, err := ledger.IsGranted(ctx, "ref-1")
	if err != nil || !granted {
		t.Fatalf("IsGranted = %v, %v, want granted", granted, err)
	}
}

func TestLedgerIgnoresNonSucceededOutcomes(t *testing.T) {
	ledger := NewLedger(newMemoryRepository())
	ctx := context.Background()

	for _, outcome := range []Outcome{OutcomeFailed, OutcomePending} {
		ev := succeededEvent("ref-2")
		ev.Outcome = outcome
		res, err := ledger.Apply(ctx, ev)
		if err != nil {
			t.Fatalf("unexpected apply error for %s: %v", outcome, err)
		}
		if res != ApplyIgnored {
			t.Fatalf("apply(%s) = %q, want %q", outcome, res, ApplyIgnored)
		}
	}

	granted, err := ledger.IsGranted(ctx, "ref-2")
	if err != nil {
		t.Fatalf("unexpected IsGranted error: %v", err)
	}
	if granted {
		t.Fatalf("failed/pending events must not grant credit")
	}
}

func TestLedgerInterleavedPendingKeepsGrantMonotonic(t *testing.T) {
	ledger := NewLedger(newMemoryRepository())
	ctx := context.Background()

	pending := succeededEvent("ref-3")
	pending.Outcome = OutcomePending

	if res, _ := ledger.Apply(ctx, pending); res != ApplyIgnored {
		t.Fatalf("pending before grant = %q, want ignored", res)
	}
	if res, _ := ledger.Apply(ctx, succeededEvent("ref-3")); res != ApplyApplied {
		t.Fatalf("grant = %q, want applied", res)
	}
	if res, _ := ledger.Apply(ctx, pending); res != ApplyIgnored {
		t.Fatalf("pending after grant = %q, want ignored", res)
	}

	granted, _ := ledger.IsGranted(ctx, "ref-3")
	if !granted {
		t.Fatalf("grant must survive interleaved pending events")
	}
}

func TestLedgerConcurrentSuccessesRaceToOneWinner(t *testing.T) {
	ledger := NewLedger(newMemoryRepository())
	ctx := context.Background()

	const n = 32
	results := make(chan ApplyResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.Apply(ctx, succeededEvent("ref-race"))
			if err != nil {
				t.Errorf("unexpected apply error: %v", err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for res := range results {
		if res == ApplyApplied {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("got %d applied results, want exactly 1", applied)
	}
}

func TestLedgerSurfacesStoreFailure(t *testing.T) {
	repo := newMemoryRepository()
	repo.failAll = true
	ledger := NewLedger(repo)

	if _, err := ledger.Apply(context.Background(), succeededEvent("ref-4")); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error to surface, got %v", err)
	}
}

func TestLedgerRejectsMissingReference(t *testing.T) {
	ledger := NewLedger(newMemoryRepository())
	ev := succeededEvent("")
	if _, err := ledger.Apply(context.Background(), ev); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
