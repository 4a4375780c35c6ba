package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// MarkerKey is the fixed name of the last reported failure.
	MarkerKey = "error.dat"

	// DefaultCooldown is how long an identical failure stays silent.
	DefaultCooldown = time.Hour
)

// Fingerprint identifies a failure by the hash of its description.
type Fingerprint []byte

// NewFingerprint hashes a failure description.
func NewFingerprint(description string) Fingerprint {
	sum := sha256.Sum256([]byte(description))
	return sum[:]
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f)
}

// FailureMarker remembers the last reported failure to suppress repeat alerts.
// The stored object's modification time is the cool-down clock.
type FailureMarker struct {
	blobs    Blobs
	cooldown time.Duration
	now      func() time.Time
}

// NewFailureMarker creates a failure marker. A non-positive cooldown uses DefaultCooldown.
func NewFailureMarker(blobs Blobs, cooldown time.Duration) *FailureMarker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &FailureMarker{blobs: blobs, cooldown: cooldown, now: time.Now}
}

// Check reports whether a failure with this description should be alerted.
// It is true when nothing was reported yet, the last report differs, or the
// last report is older than the cool-down window.
func (m *FailureMarker) Check(ctx context.Context, description string) (bool, Fingerprint, error) {
	fp := NewFingerprint(description)

	obj, err := m.blobs.Read(ctx, MarkerKey)
	if IsNotFound(err) {
		return true, fp, nil
	}
	if err != nil {
		return false, fp, fmt.Errorf("read failure marker: %w", err)
	}

	if !bytes.Equal(obj.Data, fp) {
		return true, fp, nil
	}
	return m.now().Sub(obj.Updated) >= m.cooldown, fp, nil
}

// Save records fp as the last reported failure, restarting the cool-down clock.
func (m *FailureMarker) Save(ctx context.Context, fp Fingerprint) error {
	if err := m.blobs.Write(ctx, MarkerKey, fp); err != nil {
		return fmt.Errorf("write failure marker: %w", err)
	}
	return nil
}
