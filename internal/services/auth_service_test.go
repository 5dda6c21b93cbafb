package services

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stockbud/stockbud-backend/internal/database"
	"github.com/stockbud/stockbud-backend/internal/dto"
	"github.com/stockbud/stockbud-backend/internal/models"
)

func googleClaims(name, email, sub string) *GoogleTokenClaims {
	return &GoogleTokenClaims{
		Iss:   "https://accounts.google.com",
		Sub:   sub,
		Email: email,
		Name:  name,
	}
}

func parseClaims(t *testing.T, tokenStr, secret string) jwt.MapClaims {
	t.Helper()
	token, err := jwt.Parse(tokenStr, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	claims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok)
	return claims
}

func TestGoogleSignInCreatesAdmin(t *testing.T) {
	cfg := testConfig()
	provider := testProvider(t)
	svc := NewAuthService(provider, cfg, &fakeVerifier{
		claims: googleClaims("Admin", "Admin@StockBud.app ", "google-sub-1"),
	})

	resp, err := svc.GoogleSignIn(context.Background(), &dto.GoogleSignInRequest{Token: "id-token"})
	require.NoError(t, err)

	assert.True(t, resp.User.IsAdmin)
	assert.Equal(t, "admin@stockbud.app", resp.User.Email, "email is normalized before storage")

	claims := parseClaims(t, resp.Token, cfg.JWTSecret)
	assert.Equal(t, true, claims["is_admin"])
	assert.Equal(t, "admin@stockbud.app", claims["email"])

	var user models.User
	db := mustAcquire(t, provider)
	require.NoError(t, db.Where("email = ?", "admin@stockbud.app").First(&user).Error)
	assert.True(t, user.IsAdmin)
	require.NotNil(t, user.GoogleID)
	assert.Equal(t, "google-sub-1", *user.GoogleID)
}

func TestGoogleSignInNonAdmin(t *testing.T) {
	cfg := testConfig()
	svc := NewAuthService(testProvider(t), cfg, &fakeVerifier{
		claims: googleClaims("Visitor", "visitor@example.com", "google-sub-2"),
	})

	resp, err := svc.GoogleSignIn(context.Background(), &dto.GoogleSignInRequest{Token: "id-token"})
	require.NoError(t, err)

	assert.False(t, resp.User.IsAdmin)
	claims := parseClaims(t, resp.Token, cfg.JWTSecret)
	assert.Equal(t, false, claims["is_admin"])
}

func TestGoogleSignInUnconfiguredAdminMeansNobody(t *testing.T) {
	cfg := testConfig()
	cfg.AdminEmail = ""
	svc := NewAuthService(testProvider(t), cfg, &fakeVerifier{
		claims: googleClaims("Admin", "admin@stockbud.app", "google-sub-3"),
	})

	resp, err := svc.GoogleSignIn(context.Background(), &dto.GoogleSignInRequest{Token: "id-token"})
	require.NoError(t, err)
	assert.False(t, resp.User.IsAdmin)
}

func TestGoogleSignInRefreshesExistingUser(t *testing.T) {
	cfg := testConfig()
	provider := testProvider(t)
	db := mustAcquire(t, provider)

	// Waitlist signup first: no googleId, not admin.
	require.NoError(t, db.Create(&models.User{
		ID:    uuid.New(),
		Name:  "Old Name",
		Email: "admin@stockbud.app",
	}).Error)

	svc := NewAuthService(provider, cfg, &fakeVerifier{
		claims: googleClaims("New Name", "admin@stockbud.app", "google-sub-4"),
	})

	resp, err := svc.GoogleSignIn(context.Background(), &dto.GoogleSignInRequest{Token: "id-token"})
	require.NoError(t, err)

	assert.Equal(t, "New Name", resp.User.Name)
	assert.True(t, resp.User.IsAdmin)

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.EqualValues(t, 1, count, "repeat sign-in updates in place, never duplicates")

	var user models.User
	require.NoError(t, db.Where("email = ?", "admin@stockbud.app").First(&user).Error)
	assert.Equal(t, "New Name", user.Name)
	require.NotNil(t, user.GoogleID)
	assert.Equal(t, "google-sub-4", *user.GoogleID)
}

func TestGoogleSignInConcurrentFirstSignIn(t *testing.T) {
	// No wrapping transaction and a single connection, so a row inserted
	// from a create callback is visible to the statement that follows it.
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	provider := database.NewProvider("file::memory:", func() (*gorm.DB, error) { return db, nil })

	// Simulate a second first sign-in landing between the lookup and the
	// insert: the unique index rejects this service's insert.
	seeded := false
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("conflicting_signin", func(*gorm.DB) {
		if seeded {
			return
		}
		seeded = true
		if err := db.Create(&models.User{ID: uuid.New(), Name: "Winner", Email: "both@x.com"}).Error; err != nil {
			t.Errorf("seeding conflicting user: %v", err)
		}
	}))

	svc := NewAuthService(provider, testConfig(), &fakeVerifier{
		claims: googleClaims("Loser", "both@x.com", "google-sub-6"),
	})

	resp, err := svc.GoogleSignIn(context.Background(), &dto.GoogleSignInRequest{Token: "id-token"})
	require.NoError(t, err, "losing the insert race is a repeat sign-in, not an error")
	assert.Equal(t, "Loser", resp.User.Name)

	var count int64
	db.Model(&models.User{}).Where("email = ?", "both@x.com").Count(&count)
	assert.EqualValues(t, 1, count)

	var user models.User
	require.NoError(t, db.Where("email = ?", "both@x.com").First(&user).Error)
	require.NotNil(t, user.GoogleID)
	assert.Equal(t, "google-sub-6", *user.GoogleID)
}

func TestGoogleSignInErrors(t *testing.T) {
	provider := testProvider(t)
	db := mustAcquire(t, provider)

	tests := []struct {
		name     string
		verifier *fakeVerifier
		token    string
		wantErr  error
	}{
		{"missing token", &fakeVerifier{}, "", ErrNoToken},
		{"expired token", &fakeVerifier{err: ErrTokenExpired}, "id-token", ErrTokenExpired},
		{"bad signature", &fakeVerifier{err: ErrBadSignature}, "id-token", ErrBadSignature},
		{"no email", &fakeVerifier{claims: googleClaims("Anon", "", "sub")}, "id-token", ErrNoEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAuthService(provider, testConfig(), tt.verifier)
			_, err := svc.GoogleSignIn(context.Background(), &dto.GoogleSignInRequest{Token: tt.token})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Zero(t, count, "failed verification must not create user records")
}

func TestStoreGmailRefreshToken(t *testing.T) {
	cfg := testConfig()
	provider := testProvider(t)
	svc := NewAuthService(provider, cfg, &fakeVerifier{
		claims: googleClaims("Admin", "admin@stockbud.app", "google-sub-5"),
	})

	resp, err := svc.GoogleSignIn(context.Background(), &dto.GoogleSignInRequest{Token: "id-token"})
	require.NoError(t, err)

	userID, email, err := svc.ParseSessionToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, userID)
	assert.Equal(t, "admin@stockbud.app", email)

	require.NoError(t, svc.StoreGmailRefreshToken(context.Background(), userID, "refresh-123"))

	var user models.User
	db := mustAcquire(t, provider)
	require.NoError(t, db.First(&user, "id = ?", userID).Error)
	require.NotNil(t, user.GmailRefreshToken)
	assert.Equal(t, "refresh-123", *user.GmailRefreshToken)

	err = svc.StoreGmailRefreshToken(context.Background(), uuid.New(), "refresh-456")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
