package mailer

import (
	"context"
	"log/slog"
)

// NoopSender logs and discards outbound mail. It is the default driver;
// the hosted deployments of this app shipped with sending disabled.
type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (n *NoopSender) Send(_ context.Context, to []string, subject, _ string) error {
	slog.Warn("email sending is disabled, suppressing message", "subject", subject, "recipients", len(to))
	return nil
}
