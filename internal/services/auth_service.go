package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/stockbud/stockbud-backend/internal/config"
	"github.com/stockbud/stockbud-backend/internal/database"
	"github.com/stockbud/stockbud-backend/internal/dto"
	"github.com/stockbud/stockbud-backend/internal/models"
)

var (
	ErrNoToken      = errors.New("no token provided")
	ErrNoEmail      = errors.New("email not provided by Google")
	ErrUserNotFound = errors.New("user not found")
)

// TokenVerifier validates a third-party identity token and returns its
// verified claims. Satisfied by GoogleTokenVerifier.
type TokenVerifier interface {
	Verify(idToken, clientID string) (*GoogleTokenClaims, error)
}

type AuthService struct {
	provider *database.Provider
	cfg      *config.Config
	verifier TokenVerifier
}

func NewAuthService(provider *database.Provider, cfg *config.Config, verifier TokenVerifier) *AuthService {
	return &AuthService{provider: provider, cfg: cfg, verifier: verifier}
}

// GoogleSignIn exchanges a Google ID token for a session token. Admin
// status is recomputed from the configured admin address on every call;
// an unconfigured address means nobody is admin.
func (s *AuthService) GoogleSignIn(ctx context.Context, req *dto.GoogleSignInRequest) (*dto.AuthResponse, error) {
	if req.Token == "" {
		return nil, ErrNoToken
	}

	claims, err := s.verifier.Verify(req.Token, s.cfg.GoogleClientID)
	if err != nil {
		slog.Error("google token verification failed", "error", err)
		return nil, err
	}

	if claims.Email == "" {
		return nil, ErrNoEmail
	}

	email := normalizeEmail(claims.Email)
	isAdmin := false
	if s.cfg.AdminEmail != "" {
		isAdmin = email == normalizeEmail(s.cfg.AdminEmail)
	}

	name := claims.Name
	if name == "" {
		name = "Unknown"
	}

	db, err := s.provider.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			ID:       uuid.New(),
			Name:     name,
			Email:    email,
			GoogleID: &claims.Sub,
			IsAdmin:  isAdmin,
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			// Two first sign-ins can race past the lookup; the unique
			// index wins, so take over the row the winner inserted.
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, fmt.Errorf("failed to create user: %w", err)
			}
			if err := db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
				return nil, err
			}
			if err := s.applyProfile(ctx, db, &user, name, claims.Sub, isAdmin); err != nil {
				return nil, err
			}
		}
	case err != nil:
		return nil, err
	default:
		if err := s.applyProfile(ctx, db, &user, name, claims.Sub, isAdmin); err != nil {
			return nil, err
		}
	}

	token, err := s.generateSessionToken(&user)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResponse{
		User: dto.UserResponse{
			ID:      user.ID,
			Name:    user.Name,
			Email:   user.Email,
			IsAdmin: user.IsAdmin,
		},
		Token: token,
	}, nil
}

// applyProfile refreshes the stored name, Google subject and admin flag on
// an existing user row and mirrors the result into user.
func (s *AuthService) applyProfile(ctx context.Context, db *gorm.DB, user *models.User, name, googleID string, isAdmin bool) error {
	updates := map[string]interface{}{
		"name":      name,
		"google_id": googleID,
		"is_admin":  isAdmin,
	}
	if err := db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	user.Name = name
	user.GoogleID = &googleID
	user.IsAdmin = isAdmin
	return nil
}

func (s *AuthService) generateSessionToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":      user.ID.String(),
		"email":    user.Email,
		"is_admin": user.IsAdmin,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(s.cfg.JWTExpiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// ParseSessionToken validates a session token minted by this service and
// returns its subject id and email. Used by the Gmail OAuth callback to
// associate the refresh token with the signed-in admin.
func (s *AuthService) ParseSessionToken(tokenStr string) (uuid.UUID, string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, "", errors.New("invalid session token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, "", errors.New("invalid claims")
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", errors.New("missing sub claim")
	}
	return id, email, nil
}

// GmailOAuthConfig builds the oauth2 config for the Gmail send scope.
func (s *AuthService) GmailOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.cfg.GoogleClientID,
		ClientSecret: s.cfg.GoogleClientSecret,
		RedirectURL:  s.cfg.GoogleRedirectURL,
		Scopes:       []string{"https://mail.google.com/"},
		Endpoint:     google.Endpoint,
	}
}

// StoreGmailRefreshToken persists the offline-access refresh token on the
// user record so the gmail mail backend can send on their behalf.
func (s *AuthService) StoreGmailRefreshToken(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	db, err := s.provider.Acquire(ctx)
	if err != nil {
		return err
	}

	res := db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("gmail_refresh_token", refreshToken)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
