package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockbud/stockbud-backend/internal/database"
	"github.com/stockbud/stockbud-backend/internal/dto"
	"github.com/stockbud/stockbud-backend/internal/mailer"
	"github.com/stockbud/stockbud-backend/internal/models"
)

var (
	ErrMissingFields = errors.New("name and email are required")
	ErrUserExists    = errors.New("user already exists")
	ErrNoRecipients  = errors.New("no recipients selected")
	ErrEmptyMessage  = errors.New("message cannot be empty")
)

type WaitlistService struct {
	provider *database.Provider
	mail     *mailer.Service
}

func NewWaitlistService(provider *database.Provider, mail *mailer.Service) *WaitlistService {
	return &WaitlistService{provider: provider, mail: mail}
}

// Signup creates a waitlist entry and queues the welcome email. The email
// goes through the background dispatcher; its outcome never affects the
// returned error.
func (s *WaitlistService) Signup(ctx context.Context, req *dto.SignupRequest) error {
	if req.Name == "" || req.Email == "" {
		return ErrMissingFields
	}

	email := normalizeEmail(req.Email)

	db, err := s.provider.Acquire(ctx)
	if err != nil {
		return err
	}

	var existing models.User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		return ErrUserExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	user := models.User{
		ID:    uuid.New(),
		Name:  req.Name,
		Email: email,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		// Two signups can race past the lookup; the unique index wins.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	s.mail.QueueWelcome(user.Email, user.Name)
	slog.Info("waitlist signup", "email", user.Email)
	return nil
}

// ListUsers returns every user, most recent first.
func (s *WaitlistService) ListUsers(ctx context.Context) ([]models.User, error) {
	db, err := s.provider.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	var users []models.User
	if err := db.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// Broadcast sends the admin message to the resolved recipient list and
// returns the recipient count. sendToAll replaces any supplied list with
// the full set of user emails at call time.
func (s *WaitlistService) Broadcast(ctx context.Context, req *dto.SendEmailRequest) (int, error) {
	recipients := req.Emails

	if req.SendToAll {
		db, err := s.provider.Acquire(ctx)
		if err != nil {
			return 0, err
		}
		var emails []string
		if err := db.WithContext(ctx).Model(&models.User{}).Pluck("email", &emails).Error; err != nil {
			return 0, err
		}
		recipients = emails
	}

	if len(recipients) == 0 {
		return 0, ErrNoRecipients
	}
	if strings.TrimSpace(req.Message) == "" {
		return 0, ErrEmptyMessage
	}

	if err := s.mail.SendBroadcast(ctx, recipients, req.Subject, req.Message); err != nil {
		return 0, err
	}
	return len(recipients), nil
}
