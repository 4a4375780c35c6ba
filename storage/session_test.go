package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"kyiv1557-notifier/pkg/notifier"
)

func TestSessionStore(t *testing.T) {
	s, dir := newLocalStore(t)
	sessions := NewSessionStore(s)
	ctx := context.Background()

	session, err := sessions.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, session)

	require.NoError(t, sessions.Save(ctx, notifier.Session{"PHPSESSID": "abc", "remember": "1"}))
	require.NoError(t, sessions.Save(ctx, notifier.Session{"PHPSESSID": "def"}))

	session, err = sessions.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, notifier.Session{"PHPSESSID": "def"}, session)

	data, err := os.ReadFile(filepath.Join(dir, SessionKey))
	require.NoError(t, err)
	require.JSONEq(t, `{"PHPSESSID":"def"}`, string(data))
}

func TestSessionStoreCorrupt(t *testing.T) {
	s, dir := newLocalStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, SessionKey), []byte("not json"), 0o600))

	_, err := NewSessionStore(s).Load(context.Background())
	require.Error(t, err)
}
