package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"kyiv1557-notifier/config"
)

func mainPage(messages string) string {
	return `<html><body>
<select id="address-select"><option value="101" selected>вул. Хрещатик, 1</option></select>
<div class="claim-messages">` + messages + `</div>
</body></html>`
}

// newPortal serves the login flow and a main page the test can change between runs.
func newPortal(t *testing.T, page *string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login/pass", http.StatusFound)
	})
	mux.HandleFunc("/login/pass", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			http.SetCookie(w, &http.Cookie{Name: "portal_session", Value: "tok", Path: "/"})
			http.Redirect(w, r, "/", http.StatusFound)
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("portal_session"); err != nil {
			fmt.Fprint(w, `<form action="/login"></form>`)
			return
		}
		fmt.Fprint(w, *page)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type telegramRecorder struct {
	mu    sync.Mutex
	texts map[string][]string
}

func newTelegram(t *testing.T) (*httptest.Server, *telegramRecorder) {
	t.Helper()
	rec := &telegramRecorder{texts: map[string][]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		chat := r.FormValue("chat_id")
		rec.texts[chat] = append(rec.texts[chat], r.FormValue("text"))
		fmt.Fprint(w, `{"ok":true}`)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func writeConfig(t *testing.T, dir, portalURL, telegramURL string) string {
	t.Helper()
	path := filepath.Join(dir, "1557.ini")
	content := fmt.Sprintf(`[1557]
phone = 380441234567
pass = secret
base_url = %s
timeout = 5s

[telegram]
token = 123:ABC
chat = channel
admin = admin
api_url = %s

[storage]
dir = %s
`, portalURL, telegramURL, filepath.Join(dir, "state"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runApp(t *testing.T, args ...string) error {
	t.Helper()
	app := newApp()
	app.Writer = io.Discard
	app.ErrWriter = io.Discard
	return app.RunContext(context.Background(), append([]string{"kyiv1557-notifier"}, args...))
}

func TestAppForwardsNewMessages(t *testing.T) {
	messages := `<div class="claim-message-block"><div class="claim-message-item">Outage at Main St</div></div>`
	page := mainPage(messages)
	portal := newPortal(t, &page)
	telegram, rec := newTelegram(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, portal.URL, telegram.URL)

	require.NoError(t, runApp(t, "--config", cfgPath))
	require.Equal(t, []string{"✅ Outage at Main St"}, rec.texts["channel"])

	require.FileExists(t, filepath.Join(dir, "state", "session.json"))
	require.FileExists(t, filepath.Join(dir, "state", "101_cache.json"))

	// Same page again: nothing new.
	require.NoError(t, runApp(t, "--config", cfgPath))
	require.Len(t, rec.texts["channel"], 1)

	messages += `<div class="claim-message-block claim-message-green"><div class="claim-message-item">Water restored</div></div>`
	page = mainPage(messages)
	require.NoError(t, runApp(t, "--config", cfgPath))
	require.Equal(t, []string{"✅ Outage at Main St", "⚠️ Water restored"}, rec.texts["channel"])
	require.Empty(t, rec.texts["admin"])
}

func TestAppAlertsAdminOnLayoutChange(t *testing.T) {
	page := mainPage("")
	portal := newPortal(t, &page)
	telegram, rec := newTelegram(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, portal.URL, telegram.URL)

	// Message region present but empty is fine.
	require.NoError(t, runApp(t, "--config", cfgPath))
	require.Empty(t, rec.texts)

	page = `<select id="address-select"><option value="101">x</option></select>`

	require.Error(t, runApp(t, "--config", cfgPath))
	require.Error(t, runApp(t, "--config", cfgPath))
	require.Len(t, rec.texts["admin"], 1)
	require.Contains(t, rec.texts["admin"][0], "no message region")
	require.FileExists(t, filepath.Join(dir, "state", "error.dat"))
}

func TestAppInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1557.ini")
	require.NoError(t, os.WriteFile(path, []byte("[1557]\nphone = 1\n"), 0o600))

	err := runApp(t, "--config", path)
	require.ErrorContains(t, err, "pass is required")

	err = runApp(t, "--config", filepath.Join(dir, "missing.ini"))
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	newLogger(&buf, false).Debug("hidden")
	require.Empty(t, buf.String())
	newLogger(&buf, false).Info("shown", "key", "value")
	require.Contains(t, buf.String(), `"key":"value"`)

	buf.Reset()
	newLogger(&buf, true).Debug("visible")
	require.Contains(t, buf.String(), "msg=visible")
}

func TestNewSenderDryRun(t *testing.T) {
	cfg := &config.Config{Bot: config.Bot{DryRun: true}}
	sender, err := newSender(context.Background(), cfg, newLogger(io.Discard, false))
	require.NoError(t, err)
	require.NoError(t, sender.Alert(context.Background(), "nothing leaves the process"))
}
