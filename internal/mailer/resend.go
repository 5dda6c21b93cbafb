package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stockbud/stockbud-backend/internal/config"
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendSender delivers mail through the Resend HTTP API, one API call per
// recipient with a bounded fan-out.
type ResendSender struct {
	cfg        *config.Config
	httpClient *http.Client
	endpoint   string
}

func NewResendSender(cfg *config.Config) *ResendSender {
	return &ResendSender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		endpoint:   resendEndpoint,
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendError struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

func (r *ResendSender) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	if r.cfg.ResendAPIKey == "" {
		return errors.New("missing RESEND_API_KEY")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(5)
	for _, recipient := range uniqueStrings(to) {
		recipient := recipient
		g.Go(func() error {
			return r.sendOne(ctx, recipient, subject, htmlBody)
		})
	}
	return g.Wait()
}

func (r *ResendSender) sendOne(ctx context.Context, recipient, subject, htmlBody string) error {
	payload, err := json.Marshal(resendRequest{
		From:    r.cfg.MailFrom,
		To:      []string{recipient},
		Subject: subject,
		HTML:    htmlBody,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.ResendAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("resend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr resendError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("resend rejected mail to %s: %s", recipient, apiErr.Message)
		}
		return fmt.Errorf("resend returned status %d for %s", resp.StatusCode, recipient)
	}
	return nil
}
