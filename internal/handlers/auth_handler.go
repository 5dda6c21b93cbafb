package handlers

import (
	"encoding/base64"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"

	"github.com/stockbud/stockbud-backend/internal/dto"
	"github.com/stockbud/stockbud-backend/internal/services"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// GoogleSignIn verifies a Google ID token and returns the session token
// with a sanitized user view.
func (h *AuthHandler) GoogleSignIn(c *fiber.Ctx) error {
	var req dto.GoogleSignInRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Message: "Invalid request body",
		})
	}

	resp, err := h.authService.GoogleSignIn(c.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoToken):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Message: "No token provided",
			})
		case errors.Is(err, services.ErrTokenExpired):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Message: "Token has expired. Please try again.",
			})
		case errors.Is(err, services.ErrBadSignature):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Message: "Invalid token. Please try again.",
			})
		case errors.Is(err, services.ErrNoEmail):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Message: "Email not provided by Google",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Message: "Authentication failed: " + err.Error(),
		})
	}

	return c.JSON(resp)
}

// GmailAuthorize redirects the admin to Google's consent screen with the
// Gmail send scope. The current session token rides along in the OAuth
// state parameter so the callback can attach the refresh token to the
// right user.
func (h *AuthHandler) GmailAuthorize(c *fiber.Ctx) error {
	conf := h.authService.GmailOAuthConfig()
	if conf.ClientID == "" || conf.ClientSecret == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Message: "Missing GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET",
		})
	}

	var opts []oauth2.AuthCodeOption
	opts = append(opts,
		oauth2.AccessTypeOffline,
		// Force consent so Google returns a refresh token even on repeat grants.
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	state := ""
	if token := c.Query("token"); token != "" {
		state = base64.StdEncoding.EncodeToString([]byte(token))
	}

	return c.Redirect(conf.AuthCodeURL(state, opts...), fiber.StatusFound)
}

// GmailCallback exchanges the authorization code and stores the refresh
// token on the user carried in the state parameter.
func (h *AuthHandler) GmailCallback(c *fiber.Ctx) error {
	if oauthErr := c.Query("error"); oauthErr != "" {
		slog.Error("google oauth error", "error", oauthErr)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Message: "Google OAuth error: " + oauthErr,
		})
	}

	code := c.Query("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Message: "No code returned",
		})
	}

	conf := h.authService.GmailOAuthConfig()
	token, err := conf.Exchange(c.Context(), code)
	if err != nil {
		slog.Error("oauth code exchange failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Message: err.Error(),
		})
	}

	if token.RefreshToken == "" {
		slog.Warn("no refresh token received from Google, repeat grants may omit it")
	} else if state := c.Query("state"); state != "" {
		if err := h.storeRefreshToken(c, state, token.RefreshToken); err != nil {
			// Setup convenience flow; the admin can retry from scratch.
			slog.Error("failed to persist gmail refresh token", "error", err)
		}
	}

	return c.Redirect("/admin", fiber.StatusFound)
}

func (h *AuthHandler) storeRefreshToken(c *fiber.Ctx, state, refreshToken string) error {
	decoded, err := base64.StdEncoding.DecodeString(state)
	if err != nil {
		return err
	}
	userID, email, err := h.authService.ParseSessionToken(string(decoded))
	if err != nil {
		return err
	}
	if err := h.authService.StoreGmailRefreshToken(c.Context(), userID, refreshToken); err != nil {
		return err
	}
	slog.Info("saved gmail refresh token", "email", email)
	return nil
}
