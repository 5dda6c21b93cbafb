package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"

	"github.com/stockbud/stockbud-backend/internal/config"
	"github.com/stockbud/stockbud-backend/internal/database"
	"github.com/stockbud/stockbud-backend/internal/models"
)

const gmailSendEndpoint = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"

// GmailSender delivers mail through the Gmail API using the offline-access
// refresh token stored on the admin user by the OAuth callback.
type GmailSender struct {
	cfg      *config.Config
	provider *database.Provider
	endpoint string
}

func NewGmailSender(cfg *config.Config, provider *database.Provider) *GmailSender {
	return &GmailSender{cfg: cfg, provider: provider, endpoint: gmailSendEndpoint}
}

func (g *GmailSender) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	client, from, err := g.adminClient(ctx)
	if err != nil {
		return err
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(5)
	for _, recipient := range uniqueStrings(to) {
		recipient := recipient
		grp.Go(func() error {
			return g.sendOne(ctx, client, from, recipient, subject, htmlBody)
		})
	}
	return grp.Wait()
}

// adminClient builds an authenticated HTTP client from the stored refresh
// token. The oauth2 transport refreshes access tokens as needed.
func (g *GmailSender) adminClient(ctx context.Context) (*http.Client, string, error) {
	// Stored emails are lowercased and trimmed; match however ADMIN_EMAIL
	// was typed.
	adminEmail := strings.ToLower(strings.TrimSpace(g.cfg.AdminEmail))
	if adminEmail == "" {
		return nil, "", errors.New("gmail driver requires ADMIN_EMAIL")
	}

	db, err := g.provider.Acquire(ctx)
	if err != nil {
		return nil, "", err
	}

	var admin models.User
	if err := db.WithContext(ctx).Where("email = ?", adminEmail).First(&admin).Error; err != nil {
		return nil, "", fmt.Errorf("gmail driver: admin user not found: %w", err)
	}
	if admin.GmailRefreshToken == nil || *admin.GmailRefreshToken == "" {
		return nil, "", errors.New("gmail driver: no refresh token stored, visit /api/auth/google/authorize first")
	}

	conf := &oauth2.Config{
		ClientID:     g.cfg.GoogleClientID,
		ClientSecret: g.cfg.GoogleClientSecret,
		Scopes:       []string{"https://mail.google.com/"},
		Endpoint:     google.Endpoint,
	}
	token := &oauth2.Token{RefreshToken: *admin.GmailRefreshToken}
	return conf.Client(ctx, token), admin.Email, nil
}

func (g *GmailSender) sendOne(ctx context.Context, client *http.Client, from, recipient, subject, htmlBody string) error {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	payload, err := json.Marshal(map[string]string{
		"raw": base64.URLEncoding.EncodeToString(msg.Bytes()),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gmail request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gmail returned status %d for %s: %s", resp.StatusCode, recipient, string(body))
	}
	return nil
}
