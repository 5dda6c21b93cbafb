package middleware

import (
	"errors"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"

	"github.com/stockbud/stockbud-backend/internal/config"
	"github.com/stockbud/stockbud-backend/internal/dto"
)

// JWTProtected validates the bearer session token and stores it in
// c.Locals("user") for downstream handlers.
func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			message := "Invalid token"
			if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
				message = "No token provided"
			}
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Message: message,
			})
		},
	})
}
