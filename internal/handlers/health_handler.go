package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/stockbud/stockbud-backend/internal/database"
	"github.com/stockbud/stockbud-backend/internal/dto"
)

type HealthHandler struct {
	provider *database.Provider
}

func NewHealthHandler(provider *database.Provider) *HealthHandler {
	return &HealthHandler{provider: provider}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbStatus := "ok"
	db, err := h.provider.Acquire(c.Context())
	if err != nil {
		dbStatus = "unhealthy: " + err.Error()
	} else if err := database.Ping(db); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	return c.JSON(dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
	})
}
