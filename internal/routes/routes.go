package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/stockbud/stockbud-backend/internal/config"
	"github.com/stockbud/stockbud-backend/internal/handlers"
	"github.com/stockbud/stockbud-backend/internal/middleware"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	waitlistHandler *handlers.WaitlistHandler,
	healthHandler *handlers.HealthHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)
	api.Get("/timer", waitlistHandler.Timer)

	api.Post("/signup", waitlistHandler.Signup)

	// Auth-specific rate limit: 10 req/min per IP (stricter)
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/google", authHandler.GoogleSignIn)
	auth.Get("/google/authorize", authHandler.GmailAuthorize)
	auth.Get("/google/callback", authHandler.GmailCallback)

	// Admin panel (JWT + admin claim required)
	api.Get("/users", middleware.JWTProtected(cfg), middleware.AdminRequired(), waitlistHandler.ListUsers)
	api.Post("/send-email", middleware.JWTProtected(cfg), middleware.AdminRequired(), waitlistHandler.SendEmail)
}
