package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBrevoSend(t *testing.T) {
	var got brevoSendRequest
	var path, apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		apiKey = r.Header.Get("api-key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := NewBrevoProvider(srv.URL, "xkeysib-test", "bot@example.com", 5*time.Second, discardLogger())
	require.NoError(t, p.Send(context.Background(), "ops@example.com", "❗ login failed"))

	require.Equal(t, "/smtp/email", path)
	require.Equal(t, "xkeysib-test", apiKey)
	require.Equal(t, "bot@example.com", got.Sender.Email)
	require.Equal(t, []brevoContact{{Email: "ops@example.com"}}, got.To)
	require.Equal(t, alertSubject, got.Subject)
	require.Equal(t, "❗ login failed", got.Text)
}

func TestBrevoUnauthorized(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewBrevoProvider(srv.URL, "bad", "bot@example.com", 5*time.Second, discardLogger())
	err := p.Send(context.Background(), "ops@example.com", "x")

	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)
	require.Equal(t, "brevo", delivery.Provider)
	require.Equal(t, http.StatusUnauthorized, delivery.StatusCode)
	require.Equal(t, 1, calls)
}
