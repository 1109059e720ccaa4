package router

import (
	"github.com/JonasWeigert/PayBridge/app/controllers"
	"github.com/JonasWeigert/PayBridge/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")

	// Client-facing routes sit behind the rate limiter.
	purchases := api.Group(constants.PurchasesRoute, limiter.New())
	purchases.Post("/", controllers.HandleCreatePurchase)
	purchases.Get(constants.PurchaseStatusRoute, controllers.HandlePurchaseStatus)

	// Webhooks are deliberately not rate limited: provider retry storms
	// are exactly the deliveries that must get through.
	api.Post(constants.WebhooksRoute, controllers.HandleProviderWebhook)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
