package handlers

import "github.com/gofiber/fiber/v2"

// HealthHandler handles health check requests
type HealthHandler struct {
	Version string
	Event   string
	Store   string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, event, store string) *HealthHandler {
	return &HealthHandler{
		Version: version,
		Event:   event,
		Store:   store,
	}
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "OK",
		"service": "EventPass Backend",
		"event":   h.Event,
		"store":   h.Store,
		"version": h.Version,
	})
}
