package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFailureMarkerCooldown(t *testing.T) {
	s, _ := newLocalStore(t)
	marker := NewFailureMarker(s, time.Hour)
	ctx := context.Background()

	report, fp, err := marker.Check(ctx, "login password step rejected")
	require.NoError(t, err)
	require.True(t, report, "first failure is always reported")
	require.NoError(t, marker.Save(ctx, fp))

	obj, err := s.Read(ctx, MarkerKey)
	require.NoError(t, err)
	savedAt := obj.Updated

	marker.now = func() time.Time { return savedAt.Add(30 * time.Minute) }
	report, _, err = marker.Check(ctx, "login password step rejected")
	require.NoError(t, err)
	require.False(t, report, "identical failure inside the window is silent")

	report, _, err = marker.Check(ctx, "unparseable page: no message region")
	require.NoError(t, err)
	require.True(t, report, "a different failure is reported")

	marker.now = func() time.Time { return savedAt.Add(time.Hour) }
	report, _, err = marker.Check(ctx, "login password step rejected")
	require.NoError(t, err)
	require.True(t, report, "identical failure after the window is reported again")
}

func TestFingerprint(t *testing.T) {
	a := NewFingerprint("boom")
	require.Len(t, a, 32)
	require.Equal(t, a, NewFingerprint("boom"))
	require.NotEqual(t, a, NewFingerprint("bang"))
	require.Len(t, a.String(), 64)
}

func TestNewFailureMarkerDefaultCooldown(t *testing.T) {
	s, _ := newLocalStore(t)
	require.Equal(t, DefaultCooldown, NewFailureMarker(s, 0).cooldown)
}
