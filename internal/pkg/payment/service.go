package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/JonasWeigert/PayBridge/app/models"
	"gorm.io/gorm"
)

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider       Provider
	EventID        string
	EventType      string
	PayloadJSON    string
	PayloadHash    string
	SignatureValid bool
}

// Service bundles webhook bookkeeping and the credit ledger behind one
// handle for the HTTP layer.
type Service struct {
	repo   Repository
	ledger *Ledger
}

// NewService creates a payment service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, ledger: NewLedger(repo)}
}

// NewServiceFromDB creates a payment service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// RecordWebhookEvent persists webhook payloads idempotently. The returned
// bool is false when the provider/event-id pair was already on record, in
// which case the stored row carries the earlier processing outcome.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	if in.Provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.EventID)
	if eventID == "" {
		eventID = "hash:" + in.PayloadHash
	}

	event := &models.WebhookEvent{
		Provider:        string(in.Provider),
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		PayloadHash:     in.PayloadHash,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}
