package constants

// Static route constants
const (
	PublicRoute = "/"
	HealthRoute = "/health"

	PurchasesRoute = "/purchases"
	// Status path relative to the purchases group
	PurchaseStatusRoute = "/:reference/status"
	WebhooksRoute       = "/webhooks/:provider"
)
