package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	mail "github.com/xhit/go-simple-mail/v2"

	"github.com/stockbud/stockbud-backend/internal/config"
)

// SMTPSender delivers mail through a plain SMTP server. The whole
// recipient list goes on one message, matching the original admin panel
// behavior.
type SMTPSender struct {
	cfg *config.Config
}

func NewSMTPSender(cfg *config.Config) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(_ context.Context, to []string, subject, htmlBody string) error {
	if len(to) == 0 {
		return errors.New("missing email recipient")
	}

	email := mail.NewMSG()
	email.SetFrom(s.cfg.MailFrom).
		AddTo(uniqueStrings(to)...).
		SetSubject(subject).
		SetBody(mail.TextHTML, htmlBody)
	if email.Error != nil {
		return fmt.Errorf("failed to build email: %w", email.Error)
	}

	client, err := s.server().Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	if err := email.Send(client); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *SMTPSender) server() *mail.SMTPServer {
	srv := mail.NewSMTPClient()

	srv.ConnectTimeout = 30 * time.Second
	srv.SendTimeout = 30 * time.Second
	srv.Host = s.cfg.SMTPHost
	srv.Port = s.cfg.SMTPPort
	srv.Username = s.cfg.SMTPUsername
	srv.Password = s.cfg.SMTPPassword
	srv.Authentication = mail.AuthPlain

	switch s.cfg.SMTPEncrypt {
	case "tls":
		srv.Encryption = mail.EncryptionSSLTLS
	case "starttls":
		srv.Encryption = mail.EncryptionSTARTTLS
	default:
		srv.Encryption = mail.EncryptionNone
	}
	srv.TLSConfig = &tls.Config{ServerName: srv.Host}

	return srv
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
