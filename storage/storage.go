// Package storage handles persistence of sessions, message baselines and failure markers.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("storage: object doesn't exist")

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Object is a stored value with its last modification time.
type Object struct {
	Data    []byte
	Updated time.Time
}

// Blobs is the key/value surface the typed stores are built on.
type Blobs interface {
	Read(ctx context.Context, key string) (*Object, error)
	Write(ctx context.Context, key string, data []byte) error
}

// Store persists blobs in a local directory or a Cloud Storage bucket.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
}

// New creates a new storage handler. A non-empty localPath takes precedence over the bucket.
func New(client *storage.Client, bucket string, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
	}
}

// ValidKey reports whether key is safe to use as a file or object name.
// Rejects separators and dot-only names to prevent path traversal.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key) && key != "." && key != ".."
}

// Write stores data under key, replacing any previous value.
func (s *Store) Write(ctx context.Context, key string, data []byte) error {
	if !ValidKey(key) {
		return fmt.Errorf("invalid key %q", key)
	}

	// Local filesystem storage
	if s.localPath != "" {
		filePath := filepath.Join(s.localPath, key)
		tmpPath := filePath + ".tmp"
		if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		if err := os.Rename(tmpPath, filePath); err != nil {
			return fmt.Errorf("replace in local storage: %w", err)
		}
		s.logger.Debug("Object saved to local storage", "path", filePath, "bytes", len(data))
		return nil
	}

	// Cloud Storage with retry logic for reliability
	err := retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Debug("Object saved", "bucket", s.bucket, "key", key, "bytes", len(data))
	return nil
}

// Read loads the value stored under key. Missing keys yield ErrNotFound.
func (s *Store) Read(ctx context.Context, key string) (*Object, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("invalid key %q", key)
	}

	// Local filesystem storage
	if s.localPath != "" {
		filePath := filepath.Join(s.localPath, key)
		info, err := os.Stat(filePath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("stat local storage: %w", err)
		}
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
		return &Object{Data: data, Updated: info.ModTime()}, nil
	}

	// Cloud Storage with retry logic for reliability
	var obj Object
	notFound := false
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
			if openErr != nil {
				// Don't retry on "not found" errors
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					notFound = true
					return retry.Unrecoverable(ErrNotFound)
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			data, readErr := io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			obj = Object{Data: data, Updated: r.Attrs.LastModified}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying load operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if notFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load after retries: %w", err)
	}

	return &obj, nil
}

// IsNotFound checks if an error indicates a key was never written.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
