package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const (
	// DefaultTelegramURL is the Bot API root.
	DefaultTelegramURL = "https://api.telegram.org"

	// Bot API rejects longer messages.
	telegramMaxRunes = 4096
)

// TelegramProvider sends messages via the Telegram Bot API.
type TelegramProvider struct {
	apiURL string
	token  string
	client *http.Client
	logger *slog.Logger
}

// NewTelegramProvider creates a new Telegram provider. An empty apiURL uses DefaultTelegramURL.
func NewTelegramProvider(apiURL, token string, timeout time.Duration, logger *slog.Logger) *TelegramProvider {
	if apiURL == "" {
		apiURL = DefaultTelegramURL
	}
	return &TelegramProvider{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		token:  token,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send sends a message via the sendMessage method.
func (p *TelegramProvider) Send(ctx context.Context, to, text string) error {
	form := url.Values{
		"chat_id": {to},
		"text":    {truncateRunes(text, telegramMaxRunes)},
	}
	endpoint := p.apiURL + "/bot" + p.token + "/sendMessage"

	var status int
	err := retry.Do(
		func() error {
			p.logger.Info("Telegram API request starting",
				"method", "POST",
				"endpoint", "sendMessage",
				"to", to)

			startTime := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			resp, err := p.client.Do(req)
			duration := time.Since(startTime)
			if err != nil {
				status = 0
				// The token is part of the URL; keep it out of logs and errors.
				var urlErr *url.Error
				if errors.As(err, &urlErr) {
					err = urlErr.Err
				}
				p.logger.Warn("Telegram API request failed, will retry",
					"to", to,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					p.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			status = resp.StatusCode
			raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			if err != nil {
				p.logger.Warn("Failed to read Telegram response, will retry", "to", to, "error", err)
				return fmt.Errorf("read response: %w", err)
			}

			var body telegramResponse
			decodeErr := json.Unmarshal(raw, &body)
			if decodeErr != nil {
				p.logger.Warn("Failed to decode Telegram response",
					"status_code", resp.StatusCode,
					"to", to,
					"error", decodeErr)
			}

			if resp.StatusCode >= 200 && resp.StatusCode < 300 && body.OK {
				p.logger.Info("Telegram API request completed",
					"endpoint", "sendMessage",
					"to", to,
					"duration_ms", duration.Milliseconds(),
					"status", "success")
				return nil
			}

			apiErr := fmt.Errorf("telegram: %s", body.Description)
			if decodeErr != nil {
				apiErr = fmt.Errorf("telegram: HTTP %d: decode response: %w", resp.StatusCode, decodeErr)
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				p.logger.Warn("Telegram API returned retryable status, will retry",
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
			p.logger.Info("Retrying Telegram send after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return &DeliveryError{Provider: "telegram", To: to, StatusCode: status, Err: err}
	}
	return nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
