package controllers

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/JonasWeigert/PayBridge/internal/pkg/database"
	"github.com/JonasWeigert/PayBridge/internal/pkg/env"
	"github.com/JonasWeigert/PayBridge/internal/pkg/metrics/counter"
	"github.com/JonasWeigert/PayBridge/internal/pkg/payment"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var (
	purchaseRouter        *payment.Router
	webhookVerifiers      payment.VerifierSet
	statusResolver        *payment.StatusResolver
	paymentServiceFactory func() *payment.Service

	intentValidate = validator.New()
)

// InitializePaymentController wires the provider clients from the
// environment. Each client serves double duty as purchase adapter and
// webhook verifier, so one construction covers both registries.
func InitializePaymentController() {
	stripe := payment.NewStripeClientFromEnv()
	paystack := payment.NewPaystackClientFromEnv()
	paypal := payment.NewPayPalClientFromEnv()

	ledger := payment.NewLedger(payment.NewRepository(database.GetDB()))
	InitializePaymentControllerWith(
		payment.NewRouter(stripe, paystack, paypal),
		payment.NewVerifierSet(stripe, paystack, paypal),
		payment.NewStatusResolver(stripe, ledger),
		func() *payment.Service { return payment.NewServiceFromDB(database.GetDB()) },
	)
}

// InitializePaymentControllerWith installs explicit dependencies (tests).
func InitializePaymentControllerWith(router *payment.Router, verifiers payment.VerifierSet, resolver *payment.StatusResolver, serviceFactory func() *payment.Service) {
	purchaseRouter = router
	webhookVerifiers = verifiers
	statusResolver = resolver
	paymentServiceFactory = serviceFactory
}

// HandleCreatePurchase accepts a purchase intent and returns the provider
// session pointer the client acts on. No ledger state is touched here.
func HandleCreatePurchase(c *fiber.Ctx) error {
	var intent payment.PurchaseIntent
	if err := c.BodyParser(&intent); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Malformed request body"})
	}
	if err := intentValidate.Struct(intent); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()

	session, err := purchaseRouter.CreatePurchase(ctx, intent)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidRequest) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
		}
		// Provider error bodies stay in the logs; the caller only gets a
		// provider-tagged failure kind and a correlation id.
		correlationID := uuid.NewString()
		log.Printf("purchase creation failed correlation_id=%s provider=%s: %v", correlationID, intent.Provider, err)
		if errors.Is(err, payment.ErrProviderRejected) || errors.Is(err, payment.ErrProviderUnavailable) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_unavailable", "correlation_id": correlationID})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "correlation_id": correlationID})
	}

	if session.EmbeddedToken != "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"embedded_token": session.EmbeddedToken})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"redirect_url": session.RedirectURL})
}

// HandleProviderWebhook verifies and applies an asynchronous provider
// notification. The whole pipeline runs before the acknowledgment so a 200
// reliably means applied or explicitly ignored, and anything else leaves
// the provider free to retry the delivery.
func HandleProviderWebhook(c *fiber.Ctx) error {
	provider, err := payment.ParseProvider(c.Params("provider"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_provider"})
	}
	verifier, ok := webhookVerifiers.For(provider)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_provider"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	svc := paymentServiceFactory()

	// Webhook processing runs to completion regardless of the client
	// connection, hence the detached context.
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	header := func(key string) string { return c.Get(key) }
	event, verifyErr := verifier.Verify(ctx, rawBody, header)

	input := payment.WebhookEventInput{
		Provider:       provider,
		PayloadJSON:    string(rawBody),
		PayloadHash:    payment.PayloadHash(rawBody),
		SignatureValid: verifyErr == nil,
	}
	if event != nil {
		input.EventID = event.EventID
		input.EventType = event.EventType
	}
	created, stored, err := svc.RecordWebhookEvent(ctx, input)
	if err != nil {
		log.Printf("webhook persist failed provider=%s: %v", provider, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	// Fast path for redeliveries that already processed cleanly. A stored
	// row with an error or without a processed marker falls through and is
	// verified and applied again.
	if !created && stored.SignatureValid && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		_ = counter.AddWebhookDelivery(string(provider), "duplicate")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	if verifyErr != nil {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, verifyErr)
		_ = counter.AddWebhookDelivery(string(provider), "rejected")
		log.Printf("webhook rejected provider=%s ip=%s: %v", provider, c.IP(), verifyErr)
		if env.IsDev() {
			log.Printf("webhook rejected payload provider=%s: %s", provider, rawBody)
		}
		switch {
		case errors.Is(verifyErr, payment.ErrSignatureExpired):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "signature_expired"})
		case errors.Is(verifyErr, payment.ErrSignatureInvalid):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		case errors.Is(verifyErr, payment.ErrProviderUnavailable):
			// Confirmation lookup failed upstream; have the provider retry.
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "verification_unavailable"})
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
	}

	result, applyErr := svc.Ledger().Apply(ctx, *event)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, applyErr)
	if applyErr != nil {
		if errors.Is(applyErr, payment.ErrInvalidRequest) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		// Losing a confirmation is the unacceptable failure mode; a 5xx
		// makes the provider redeliver and the apply is idempotent.
		log.Printf("credit apply failed provider=%s reference=%s: %v", provider, event.ClientReferenceID, applyErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "credit_apply_failed"})
	}

	_ = counter.AddWebhookDelivery(string(provider), string(result))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "result": string(result)})
}

// HandlePurchaseStatus answers the post-redirect landing poll.
func HandlePurchaseStatus(c *fiber.Ctx) error {
	reference := c.Params("reference")

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	status, err := statusResolver.Resolve(ctx, reference)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidRequest) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
		}
		// Unknown is a valid answer; the client keeps polling.
		log.Printf("status resolution degraded reference=%s: %v", reference, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": string(status)})
}
