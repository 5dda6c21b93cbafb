package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/stockbud/stockbud-backend/internal/config"
	"github.com/stockbud/stockbud-backend/internal/dto"
	"github.com/stockbud/stockbud-backend/internal/services"
)

type WaitlistHandler struct {
	waitlistService *services.WaitlistService
	cfg             *config.Config
}

func NewWaitlistHandler(waitlistService *services.WaitlistService, cfg *config.Config) *WaitlistHandler {
	return &WaitlistHandler{waitlistService: waitlistService, cfg: cfg}
}

func (h *WaitlistHandler) Signup(c *fiber.Ctx) error {
	var req dto.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Message: "Invalid request body",
		})
	}

	if err := h.waitlistService.Signup(c.Context(), &req); err != nil {
		switch {
		case errors.Is(err, services.ErrMissingFields):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Message: "Name and email are required",
			})
		case errors.Is(err, services.ErrUserExists):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Message: "User already exists",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SignupResponse{
		Message: "User created successfully",
		Note:    "Welcome email is being sent in background",
	})
}

func (h *WaitlistHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.waitlistService.ListUsers(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Message: err.Error(),
		})
	}
	return c.JSON(users)
}

func (h *WaitlistHandler) SendEmail(c *fiber.Ctx) error {
	var req dto.SendEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Message: "Invalid request body",
		})
	}

	count, err := h.waitlistService.Broadcast(c.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoRecipients):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Message: "No recipients selected",
			})
		case errors.Is(err, services.ErrEmptyMessage):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Message: "Message cannot be empty",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Message: "Failed to send email: " + err.Error(),
		})
	}

	return c.JSON(dto.SendEmailResponse{
		Message:    fmt.Sprintf("Email sent successfully to %d recipients", count),
		Recipients: count,
	})
}

func (h *WaitlistHandler) Timer(c *fiber.Ctx) error {
	days := h.cfg.TimerDays
	return c.JSON(dto.TimerResponse{
		Timer:   days * 24 * 60 * 60,
		Days:    days,
		Message: fmt.Sprintf("Timer set to %d days", days),
	})
}
