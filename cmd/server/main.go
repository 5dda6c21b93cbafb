package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/stockbud/stockbud-backend/internal/config"
	"github.com/stockbud/stockbud-backend/internal/database"
	"github.com/stockbud/stockbud-backend/internal/dto"
	"github.com/stockbud/stockbud-backend/internal/handlers"
	"github.com/stockbud/stockbud-backend/internal/logging"
	"github.com/stockbud/stockbud-backend/internal/mailer"
	"github.com/stockbud/stockbud-backend/internal/middleware"
	"github.com/stockbud/stockbud-backend/internal/routes"
	"github.com/stockbud/stockbud-backend/internal/services"
	"github.com/stockbud/stockbud-backend/web"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}
	if cfg.GoogleClientID == "" {
		slog.Error("GOOGLE_CLIENT_ID environment variable is required")
		os.Exit(1)
	}
	// Fail closed: without an explicit admin address nobody could ever
	// reach the admin panel, so refuse to start instead.
	if cfg.AdminEmail == "" {
		slog.Error("ADMIN_EMAIL environment variable is required")
		os.Exit(1)
	}

	// Database (shared connection provider, lazily retried)
	provider := database.NewPostgresProvider(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := provider.Acquire(ctx)
	cancel()
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// Database log handler (ERROR+ async batch)
	dbLogHandler := logging.NewDBHandler(db)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		dbLogHandler,
	)))

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(db, cleanupDone)

	// Mail backend + background dispatcher
	mailService, err := mailer.NewService(cfg, provider)
	if err != nil {
		slog.Error("mailer init failed", "error", err)
		os.Exit(1)
	}
	slog.Info("mailer ready", "driver", cfg.MailDriver)

	// Services
	authService := services.NewAuthService(provider, cfg, services.NewGoogleTokenVerifier())
	waitlistService := services.NewWaitlistService(provider, mailService)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	waitlistHandler := handlers.NewWaitlistHandler(waitlistService, cfg)
	healthHandler := handlers.NewHealthHandler(provider)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, authHandler, waitlistHandler, healthHandler)

	// Embedded frontend
	app.Get("/", func(c *fiber.Ctx) error {
		return filesystem.SendFile(c, http.FS(web.Assets), "static/index.html")
	})
	app.Get("/admin", func(c *fiber.Ctx) error {
		return filesystem.SendFile(c, http.FS(web.Assets), "static/admin.html")
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	// Stop serving before tearing down the subsystems handlers depend on;
	// in-flight requests may still enqueue mail until Shutdown returns.
	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	close(cleanupDone)
	mailService.Stop()
	dbLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(dto.ErrorResponse{
		Message: message,
	})
}
