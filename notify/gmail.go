package notify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// alertSubject is the subject of every alert email.
const alertSubject = "1557 notifier alert"

// GmailProvider sends plain-text emails via the Gmail API.
type GmailProvider struct {
	service *gmail.Service
	logger  *slog.Logger
}

// NewGmailProvider creates a new Gmail provider.
func NewGmailProvider(service *gmail.Service, logger *slog.Logger) *GmailProvider {
	return &GmailProvider{
		service: service,
		logger:  logger,
	}
}

// NewGmailService builds a Gmail client from a service account or OAuth credentials file.
func NewGmailService(ctx context.Context, credentialsFile string) (*gmail.Service, error) {
	if credentialsFile == "" {
		return gmail.NewService(ctx)
	}
	return gmail.NewService(ctx, option.WithCredentialsFile(credentialsFile))
}

// sanitizeEmailHeader removes newlines and control characters to prevent header injection.
func sanitizeEmailHeader(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func createMIMEMessage(to, subject, body string) string {
	var msg strings.Builder
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("To: %s\r\n", sanitizeEmailHeader(to)))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", sanitizeEmailHeader(subject)))
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)
	return msg.String()
}

// Send sends text as an email to the given address.
func (g *GmailProvider) Send(ctx context.Context, to, text string) error {
	encoded := base64.URLEncoding.EncodeToString([]byte(createMIMEMessage(to, alertSubject, text)))

	var status int
	err := retry.Do(
		func() error {
			g.logger.Info("Gmail API request starting",
				"method", "POST",
				"endpoint", "users.messages.send",
				"to", to)

			startTime := time.Now()
			_, err := g.service.Users.Messages.Send("me", &gmail.Message{
				Raw: encoded,
			}).Context(ctx).Do()
			duration := time.Since(startTime)

			if err != nil {
				var apiErr *googleapi.Error
				if errors.As(err, &apiErr) {
					status = apiErr.Code
					if apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != 429 {
						return retry.Unrecoverable(err)
					}
				}
				g.logger.Warn("Gmail API send failed, will retry",
					"to", to,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}

			g.logger.Info("Gmail API request completed",
				"endpoint", "users.messages.send",
				"to", to,
				"duration_ms", duration.Milliseconds(),
				"status", "success")

			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Info("Retrying Gmail send after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return &DeliveryError{Provider: "gmail", To: to, StatusCode: status, Err: err}
	}
	return nil
}
