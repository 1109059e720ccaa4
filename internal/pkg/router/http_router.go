package router

import (
	"github.com/JonasWeigert/PayBridge/app/controllers"
	"github.com/JonasWeigert/PayBridge/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Initialize payment controller with provider clients from env
	controllers.InitializePaymentController()

	app.Get(constants.PublicRoute, func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"service": "paybridge",
		})
	})
	app.Get(constants.HealthRoute, controllers.HandleHealth)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
