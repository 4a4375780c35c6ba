package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"kyiv1557-notifier/pkg/notifier"
)

// SessionKey is the fixed name of the persisted portal session.
const SessionKey = "session.json"

// SessionStore persists portal cookies so repeated runs can skip login.
type SessionStore struct {
	blobs Blobs
}

// NewSessionStore creates a session store on top of blobs.
func NewSessionStore(blobs Blobs) *SessionStore {
	return &SessionStore{blobs: blobs}
}

// Save overwrites the stored session.
func (s *SessionStore) Save(ctx context.Context, session notifier.Session) error {
	if session == nil {
		session = notifier.Session{}
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.blobs.Write(ctx, SessionKey, data); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Load returns the stored session, or nil when none was saved yet.
// Freshness is not checked here; the portal decides on the next request.
func (s *SessionStore) Load(ctx context.Context) (notifier.Session, error) {
	obj, err := s.blobs.Read(ctx, SessionKey)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var session notifier.Session
	if err := json.Unmarshal(obj.Data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}
