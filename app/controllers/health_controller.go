package controllers

import (
	"github.com/JonasWeigert/PayBridge/internal/pkg/database"
	"github.com/gofiber/fiber/v2"
)

// HandleHealth reports process and database liveness.
func HandleHealth(c *fiber.Ctx) error {
	dbOK := false
	if db := database.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err == nil && sqlDB.Ping() == nil {
			dbOK = true
		}
	}
	status := fiber.StatusOK
	if !dbOK {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"ok": dbOK, "database": dbOK})
}
