package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stockbud/stockbud-backend/internal/config"
	"github.com/stockbud/stockbud-backend/internal/database"
	"github.com/stockbud/stockbud-backend/internal/handlers"
	"github.com/stockbud/stockbud-backend/internal/mailer"
	"github.com/stockbud/stockbud-backend/internal/models"
	"github.com/stockbud/stockbud-backend/internal/routes"
	"github.com/stockbud/stockbud-backend/internal/services"
)

type fakeVerifier struct {
	claims *services.GoogleTokenClaims
	err    error
}

func (f *fakeVerifier) Verify(_, _ string) (*services.GoogleTokenClaims, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

type captureSender struct {
	mu    sync.Mutex
	to    [][]string
	bodys []string
	err   error
}

func (c *captureSender) Send(_ context.Context, to []string, _, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.to = append(c.to, to)
	c.bodys = append(c.bodys, body)
	return nil
}

type testEnv struct {
	app      *fiber.App
	cfg      *config.Config
	provider *database.Provider
	sender   *captureSender
	verifier *fakeVerifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		JWTSecret:      "test-secret",
		JWTExpiry:      time.Hour,
		GoogleClientID: "client-id.apps.googleusercontent.com",
		AdminEmail:     "admin@stockbud.app",
		TimerDays:      160,
	}

	provider := database.NewProvider("file::memory:", func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	})

	sender := &captureSender{}
	mail, err := mailer.NewServiceWithSender(sender)
	require.NoError(t, err)
	t.Cleanup(mail.Stop)

	verifier := &fakeVerifier{}
	authService := services.NewAuthService(provider, cfg, verifier)
	waitlistService := services.NewWaitlistService(provider, mail)

	app := fiber.New()
	routes.Setup(app, cfg,
		handlers.NewAuthHandler(authService),
		handlers.NewWaitlistHandler(waitlistService, cfg),
		handlers.NewHealthHandler(provider),
	)

	return &testEnv{app: app, cfg: cfg, provider: provider, sender: sender, verifier: verifier}
}

func (e *testEnv) db(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := e.provider.Acquire(context.Background())
	require.NoError(t, err)
	return db
}

func (e *testEnv) request(t *testing.T, method, path string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func (e *testEnv) sessionToken(t *testing.T, isAdmin bool) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":      uuid.New().String(),
		"email":    "someone@x.com",
		"is_admin": isAdmin,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(e.cfg.JWTSecret))
	require.NoError(t, err)
	return token
}

func TestSignupFlow(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodPost, "/api/signup",
		map[string]string{"name": "Alex", "email": "a@x.com"}, "")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "User created successfully", body["message"])

	resp, body = env.request(t, http.MethodPost, "/api/signup",
		map[string]string{"name": "Other", "email": "a@x.com"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "User already exists", body["message"])
}

func TestSignupMissingFields(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodPost, "/api/signup",
		map[string]string{"email": "a@x.com"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Name and email are required", body["message"])
}

func TestGoogleSignInSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.verifier.claims = &services.GoogleTokenClaims{
		Sub:   "google-sub",
		Email: "admin@stockbud.app",
		Name:  "Admin",
	}

	resp, body := env.request(t, http.MethodPost, "/api/auth/google",
		map[string]string{"token": "id-token"}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])

	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, user["isAdmin"])
	assert.Equal(t, "admin@stockbud.app", user["email"])
}

func TestGoogleSignInErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		verifierErr error
		token       string
		wantStatus  int
		wantMessage string
	}{
		{"missing token", nil, "", http.StatusBadRequest, "No token provided"},
		{"expired", services.ErrTokenExpired, "id-token", http.StatusBadRequest, "Token has expired. Please try again."},
		{"bad signature", services.ErrBadSignature, "id-token", http.StatusBadRequest, "Invalid token. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.verifier.err = tt.verifierErr

			resp, body := env.request(t, http.MethodPost, "/api/auth/google",
				map[string]string{"token": tt.token}, "")
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantMessage, body["message"])

			var count int64
			env.db(t).Model(&models.User{}).Count(&count)
			assert.Zero(t, count, "no user record on failed verification")
		})
	}
}

func TestListUsersAuthLadder(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/api/users", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "No token provided", body["message"])

	resp, body = env.request(t, http.MethodGet, "/api/users", nil, "garbage.token.here")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid token", body["message"])

	resp, body = env.request(t, http.MethodGet, "/api/users", nil, env.sessionToken(t, false))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Access denied. Admin only.", body["message"])

	resp, _ = env.request(t, http.MethodGet, "/api/users", nil, env.sessionToken(t, true))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListUsersNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	db := env.db(t)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, email := range []string{"oldest@x.com", "middle@x.com", "newest@x.com"} {
		require.NoError(t, db.Create(&models.User{
			ID:        uuid.New(),
			Name:      "User",
			Email:     email,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+env.sessionToken(t, true))
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var users []models.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	require.Len(t, users, 3)
	assert.Equal(t, "newest@x.com", users[0].Email)
	assert.Equal(t, "oldest@x.com", users[2].Email)
}

func TestSendEmailValidationAndAuth(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, http.MethodPost, "/api/send-email",
		map[string]any{"message": "hi", "emails": []string{"a@x.com"}}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := env.request(t, http.MethodPost, "/api/send-email",
		map[string]any{"message": "hi", "emails": []string{"a@x.com"}}, env.sessionToken(t, false))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Access denied. Admin only.", body["message"])

	admin := env.sessionToken(t, true)

	resp, body = env.request(t, http.MethodPost, "/api/send-email",
		map[string]any{"message": "hi"}, admin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No recipients selected", body["message"])

	resp, body = env.request(t, http.MethodPost, "/api/send-email",
		map[string]any{"message": "   ", "emails": []string{"a@x.com"}}, admin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Message cannot be empty", body["message"])
}

func TestSendEmailToAll(t *testing.T) {
	env := newTestEnv(t)
	db := env.db(t)

	for _, email := range []string{"a@x.com", "b@x.com"} {
		require.NoError(t, db.Create(&models.User{ID: uuid.New(), Name: "User", Email: email}).Error)
	}

	resp, body := env.request(t, http.MethodPost, "/api/send-email",
		map[string]any{"message": "big news", "sendToAll": true}, env.sessionToken(t, true))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Email sent successfully to 2 recipients", body["message"])
	assert.EqualValues(t, 2, body["recipients"])

	env.sender.mu.Lock()
	defer env.sender.mu.Unlock()
	require.Len(t, env.sender.to, 1)
	assert.ElementsMatch(t, []string{"a@x.com", "b@x.com"}, env.sender.to[0])
}

func TestSendEmailProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.sender.err = assert.AnError

	resp, body := env.request(t, http.MethodPost, "/api/send-email",
		map[string]any{"message": "hi", "emails": []string{"a@x.com"}}, env.sessionToken(t, true))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body["message"], "Failed to send email:")
}

func TestTimer(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/api/timer", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 160*24*60*60, body["timer"])
	assert.EqualValues(t, 160, body["days"])
	assert.Equal(t, "Timer set to 160 days", body["message"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db"])
}
