package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTelegramSend(t *testing.T) {
	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotChat = r.FormValue("chat_id")
		gotText = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer srv.Close()

	p := NewTelegramProvider(srv.URL, "123:ABC", 5*time.Second, discardLogger())
	require.NoError(t, p.Send(context.Background(), "-100200", "⚠️ Outage"))

	require.Equal(t, "/bot123:ABC/sendMessage", gotPath)
	require.Equal(t, "-100200", gotChat)
	require.Equal(t, "⚠️ Outage", gotText)
}

func TestTelegramRejected(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	p := NewTelegramProvider(srv.URL, "123:ABC", 5*time.Second, discardLogger())
	err := p.Send(context.Background(), "nobody", "hi")
	require.Error(t, err)
	require.True(t, IsDeliveryError(err))
	require.Contains(t, err.Error(), "chat not found")
	require.NotContains(t, err.Error(), "123:ABC")
	require.Equal(t, int32(1), calls.Load(), "client errors are not retried")

	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)
	require.Equal(t, http.StatusBadRequest, delivery.StatusCode)
}

func TestTelegramUndecodableResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`<html>captive portal</html>`))
	}))
	defer srv.Close()

	p := NewTelegramProvider(srv.URL, "t", 5*time.Second, discardLogger())
	err := p.Send(context.Background(), "1", "hi")
	require.True(t, IsDeliveryError(err))
	require.ErrorContains(t, err, "decode response")
	require.Equal(t, int32(1), calls.Load())
}

func TestTelegramRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p := NewTelegramProvider(srv.URL, "t", 5*time.Second, discardLogger())
	require.NoError(t, p.Send(context.Background(), "1", "hi"))
	require.Equal(t, int32(2), calls.Load())
}

func TestTruncateRunes(t *testing.T) {
	require.Equal(t, "abc", truncateRunes("abc", 5))
	long := strings.Repeat("ї", telegramMaxRunes+10)
	got := truncateRunes(long, telegramMaxRunes)
	require.Len(t, []rune(got), telegramMaxRunes)
	require.True(t, strings.HasSuffix(got, "…"))
}
