package notify

import (
	"context"
	"log/slog"
)

// MockProvider logs messages instead of sending them.
type MockProvider struct {
	logger *slog.Logger
}

// NewMockProvider creates a new mock provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// Send logs the message instead of sending it.
func (m *MockProvider) Send(ctx context.Context, to, text string) error {
	m.logger.Info("MOCK MESSAGE",
		"to", to,
		"text", text)
	return nil
}
