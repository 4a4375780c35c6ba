package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"kyiv1557-notifier/pkg/notifier"
)

// CacheKey names the baseline file for one address.
func CacheKey(addressID string) string {
	return addressID + "_cache.json"
}

// StateCache persists the last observed messages per address id.
type StateCache struct {
	blobs Blobs
}

// NewStateCache creates a state cache on top of blobs.
func NewStateCache(blobs Blobs) *StateCache {
	return &StateCache{blobs: blobs}
}

// Load returns the baseline for addressID. A first run yields an empty, non-nil slice.
func (c *StateCache) Load(ctx context.Context, addressID string) ([]notifier.Message, error) {
	obj, err := c.blobs.Read(ctx, CacheKey(addressID))
	if IsNotFound(err) {
		return []notifier.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", addressID, err)
	}

	messages := []notifier.Message{}
	if err := json.Unmarshal(obj.Data, &messages); err != nil {
		return nil, fmt.Errorf("unmarshal cache %s: %w", addressID, err)
	}
	return messages, nil
}

// Save replaces the baseline for addressID with messages.
func (c *StateCache) Save(ctx context.Context, addressID string, messages []notifier.Message) error {
	if messages == nil {
		messages = []notifier.Message{}
	}
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache %s: %w", addressID, err)
	}
	if err := c.blobs.Write(ctx, CacheKey(addressID), data); err != nil {
		return fmt.Errorf("write cache %s: %w", addressID, err)
	}
	return nil
}
