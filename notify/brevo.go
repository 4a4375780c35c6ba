package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// DefaultBrevoURL is the Brevo transactional email API root.
const DefaultBrevoURL = "https://api.brevo.com/v3"

// BrevoProvider sends plain-text emails via the Brevo (formerly Sendinblue) API.
type BrevoProvider struct {
	apiURL   string
	apiKey   string
	fromAddr string
	client   *http.Client
	logger   *slog.Logger
}

// NewBrevoProvider creates a new Brevo email provider. An empty apiURL uses DefaultBrevoURL.
func NewBrevoProvider(apiURL, apiKey, fromAddr string, timeout time.Duration, logger *slog.Logger) *BrevoProvider {
	if apiURL == "" {
		apiURL = DefaultBrevoURL
	}
	return &BrevoProvider{
		apiURL:   strings.TrimSuffix(apiURL, "/"),
		apiKey:   apiKey,
		fromAddr: fromAddr,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type brevoSendRequest struct {
	Sender  brevoContact   `json:"sender"`
	To      []brevoContact `json:"to"`
	Subject string         `json:"subject"`
	Text    string         `json:"textContent"`
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Send sends text as an email via the Brevo API.
func (b *BrevoProvider) Send(ctx context.Context, to, text string) error {
	jsonData, err := json.Marshal(brevoSendRequest{
		Sender:  brevoContact{Email: b.fromAddr, Name: "1557 notifier"},
		To:      []brevoContact{{Email: to}},
		Subject: alertSubject,
		Text:    text,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var status int
	err = retry.Do(
		func() error {
			b.logger.Info("Brevo API request starting",
				"method", "POST",
				"endpoint", "smtp/email",
				"to", to)

			startTime := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL+"/smtp/email", bytes.NewReader(jsonData))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("api-key", b.apiKey)

			resp, err := b.client.Do(req)
			duration := time.Since(startTime)
			if err != nil {
				status = 0
				b.logger.Warn("Brevo API request failed, will retry",
					"to", to,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					b.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			status = resp.StatusCode
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				b.logger.Info("Brevo API request completed",
					"endpoint", "smtp/email",
					"to", to,
					"duration_ms", duration.Milliseconds(),
					"status", "success")
				return nil
			}

			apiErr := fmt.Errorf("brevo: HTTP %d", resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				b.logger.Warn("Brevo API returned retryable status, will retry",
					"status_code", resp.StatusCode,
					"to", to)
				return apiErr
			}
			return retry.Unrecoverable(apiErr)
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Info("Retrying Brevo email send after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return &DeliveryError{Provider: "brevo", To: to, StatusCode: status, Err: err}
	}
	return nil
}
