// Package notify delivers portal messages and admin alerts to chat and email providers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"kyiv1557-notifier/pkg/notifier"
)

// Icons prefixed to outgoing text.
const (
	WarnIcon  = "⚠️"
	ClearIcon = "✅"
	AlertIcon = "❗"
)

// Provider defines the interface for delivery implementations.
type Provider interface {
	// Send delivers text to the given destination (chat id or address).
	Send(ctx context.Context, to, text string) error
}

// DeliveryError indicates a provider refused or failed to deliver a message.
type DeliveryError struct {
	Provider   string
	To         string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s delivery to %s failed: HTTP %d: %v", e.Provider, e.To, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s delivery to %s failed: %v", e.Provider, e.To, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsDeliveryError checks if an error is a delivery failure.
func IsDeliveryError(err error) bool {
	var delivery *DeliveryError
	return errors.As(err, &delivery)
}

// Sender routes portal messages to the channel and failures to the admin destination.
type Sender struct {
	channel   Provider
	channelTo string
	admin     Provider
	adminTo   string
	logger    *slog.Logger
}

// New creates a sender. The admin provider may be the same as the channel provider.
func New(channel Provider, channelTo string, admin Provider, adminTo string, logger *slog.Logger) *Sender {
	return &Sender{
		channel:   channel,
		channelTo: channelTo,
		admin:     admin,
		adminTo:   adminTo,
		logger:    logger,
	}
}

// Message sends one portal message to the channel, with a severity icon and an optional header line.
func (s *Sender) Message(ctx context.Context, msg notifier.Message, header string) error {
	s.logger.Info("Sending message", "to", s.channelTo, "warn", msg.Warn, "length", len(msg.Text))
	return s.channel.Send(ctx, s.channelTo, FormatMessage(msg, header))
}

// Alert sends a failure description to the admin destination.
func (s *Sender) Alert(ctx context.Context, text string) error {
	s.logger.Info("Sending admin alert", "to", s.adminTo)
	return s.admin.Send(ctx, s.adminTo, AlertIcon+" "+text)
}

// FormatMessage composes the outgoing text for a portal message.
func FormatMessage(msg notifier.Message, header string) string {
	icon := ClearIcon
	if msg.Warn {
		icon = WarnIcon
	}

	var b strings.Builder
	b.WriteString(icon)
	b.WriteString(" ")
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n")
	}
	b.WriteString(msg.Text)
	return b.String()
}
