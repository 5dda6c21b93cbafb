package mailer

import (
	"context"
	"fmt"

	"github.com/stockbud/stockbud-backend/internal/config"
	"github.com/stockbud/stockbud-backend/internal/database"
)

// Sender delivers one HTML email to a set of recipients. Implementations
// wrap a concrete provider (SMTP, Gmail API, Resend, or nothing at all).
type Sender interface {
	Send(ctx context.Context, to []string, subject, htmlBody string) error
}

// Service ties a Sender to the rendered templates and the background
// dispatcher. Welcome mail goes through the dispatcher and never blocks
// the caller; broadcast mail is sent inline and reports its error.
type Service struct {
	sender     Sender
	templates  *TemplateSet
	dispatcher *Dispatcher
}

// NewService selects the Sender from cfg.MailDriver and starts the
// background dispatcher.
func NewService(cfg *config.Config, provider *database.Provider) (*Service, error) {
	templates, err := NewTemplateSet()
	if err != nil {
		return nil, err
	}

	var sender Sender
	switch cfg.MailDriver {
	case "smtp":
		sender = NewSMTPSender(cfg)
	case "gmail":
		sender = NewGmailSender(cfg, provider)
	case "resend":
		sender = NewResendSender(cfg)
	case "noop", "":
		sender = NewNoopSender()
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.MailDriver)
	}

	return &Service{
		sender:     sender,
		templates:  templates,
		dispatcher: NewDispatcher(sender),
	}, nil
}

// NewServiceWithSender is used by tests to inject a fake sender.
func NewServiceWithSender(sender Sender) (*Service, error) {
	templates, err := NewTemplateSet()
	if err != nil {
		return nil, err
	}
	return &Service{
		sender:     sender,
		templates:  templates,
		dispatcher: NewDispatcher(sender),
	}, nil
}

// QueueWelcome enqueues the welcome email for background delivery.
func (s *Service) QueueWelcome(email, name string) {
	subject := fmt.Sprintf("🎉 Welcome to StockBud, %s!", name)
	body, err := s.templates.RenderWelcome(name)
	if err != nil {
		// Rendering only fails on template bugs; the signup response
		// must not care either way.
		s.dispatcher.noteFailure("render welcome template", err)
		return
	}
	s.dispatcher.Enqueue(Job{To: []string{email}, Subject: subject, HTMLBody: body})
}

// SendBroadcast renders the broadcast template around message and delivers
// it to all recipients through the configured sender.
func (s *Service) SendBroadcast(ctx context.Context, recipients []string, subject, message string) error {
	if subject == "" {
		subject = "Important Update from StockBud"
	}
	body, err := s.templates.RenderBroadcast(message)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, recipients, subject, body)
}

// Stop drains the dispatcher.
func (s *Service) Stop() {
	s.dispatcher.Stop()
}

// Stats exposes the dispatcher counters.
func (s *Service) Stats() (sent, failed uint64) {
	return s.dispatcher.Stats()
}
