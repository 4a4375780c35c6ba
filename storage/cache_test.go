package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"kyiv1557-notifier/pkg/notifier"
)

func TestStateCache(t *testing.T) {
	s, dir := newLocalStore(t)
	cache := NewStateCache(s)
	ctx := context.Background()

	messages, err := cache.Load(ctx, "4242")
	require.NoError(t, err)
	require.NotNil(t, messages)
	require.Empty(t, messages)

	saved := []notifier.Message{
		{Text: "Outage at Main St"},
		{Text: "Water restored", Warn: true},
	}
	require.NoError(t, cache.Save(ctx, "4242", saved))

	messages, err = cache.Load(ctx, "4242")
	require.NoError(t, err)
	require.Equal(t, saved, messages)

	data, err := os.ReadFile(filepath.Join(dir, "4242_cache.json"))
	require.NoError(t, err)
	require.JSONEq(t, `[{"text":"Outage at Main St","warn":false},{"text":"Water restored","warn":true}]`, string(data))

	// Full replace, never merged.
	require.NoError(t, cache.Save(ctx, "4242", nil))
	messages, err = cache.Load(ctx, "4242")
	require.NoError(t, err)
	require.Empty(t, messages)

	other, err := cache.Load(ctx, "1111")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestStateCacheRejectsUnsafeID(t *testing.T) {
	s, _ := newLocalStore(t)
	err := NewStateCache(s).Save(context.Background(), "../x", nil)
	require.Error(t, err)
}
