// Package poll runs one pass of the portal check: authenticate, diff, dispatch, and report failures.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"kyiv1557-notifier/diff"
	"kyiv1557-notifier/pkg/notifier"
	"kyiv1557-notifier/scraper"
	"kyiv1557-notifier/storage"
)

// Portal interface for the authenticated portal client.
type Portal interface {
	Login(ctx context.Context, phone, password string) (*notifier.Snapshot, error)
	RestoreSession(ctx context.Context, session notifier.Session) (*notifier.Snapshot, error)
	SelectAddress(ctx context.Context, address notifier.Address) (*notifier.Snapshot, error)
	Session() notifier.Session
}

// Sessions interface for session persistence.
type Sessions interface {
	Load(ctx context.Context) (notifier.Session, error)
	Save(ctx context.Context, session notifier.Session) error
}

// Cache interface for the per-address message baseline.
type Cache interface {
	Load(ctx context.Context, addressID string) ([]notifier.Message, error)
	Save(ctx context.Context, addressID string, messages []notifier.Message) error
}

// Marker interface for failure deduplication.
type Marker interface {
	Check(ctx context.Context, description string) (bool, storage.Fingerprint, error)
	Save(ctx context.Context, fp storage.Fingerprint) error
}

// Notifier interface for outgoing messages and admin alerts.
type Notifier interface {
	Message(ctx context.Context, msg notifier.Message, header string) error
	Alert(ctx context.Context, text string) error
}

// Options controls one run.
type Options struct {
	Phone    string
	Password string

	// Positional pairs messages by index and sends line-level edits
	// instead of computing a set difference.
	Positional bool

	// AllAddresses selects and checks every address on the account,
	// prefixing each message with the address name.
	AllAddresses bool
}

// Monitor runs the check for one account.
type Monitor struct {
	opts     Options
	portal   Portal
	sessions Sessions
	cache    Cache
	marker   Marker
	notifier Notifier
	logger   *slog.Logger
}

// New creates a new poll monitor.
func New(opts Options, portal Portal, sessions Sessions, cache Cache, marker Marker, n Notifier, logger *slog.Logger) *Monitor {
	return &Monitor{
		opts:     opts,
		portal:   portal,
		sessions: sessions,
		cache:    cache,
		marker:   marker,
		notifier: n,
		logger:   logger,
	}
}

// Run performs one pass. Any failure is reported to the admin destination
// unless the same failure was already reported within the cool-down window.
// The failure is still returned so the caller can set the exit status.
func (m *Monitor) Run(ctx context.Context) error {
	err := m.run(ctx)
	if err == nil {
		m.logger.Info("Run completed")
		return nil
	}

	m.logger.Error("Run failed", "error", err)
	if reportErr := m.report(ctx, err); reportErr != nil {
		return errors.Join(err, reportErr)
	}
	return err
}

func (m *Monitor) run(ctx context.Context) error {
	snap, err := m.authenticate(ctx)
	if err != nil {
		return err
	}
	if err := validate(snap); err != nil {
		return err
	}

	current := *snap.CurrentAddress
	header := ""
	if m.opts.AllAddresses {
		header = current.Name
	}
	if err := m.process(ctx, current, snap.Messages, header); err != nil {
		return err
	}

	if !m.opts.AllAddresses {
		return nil
	}

	done := map[string]bool{current.ID: true}
	for _, address := range snap.Addresses {
		if done[address.ID] {
			continue
		}
		done[address.ID] = true

		select {
		case <-ctx.Done():
			m.logger.Info("Context cancelled, stopping address pass", "error", ctx.Err())
			return ctx.Err()
		default:
		}

		other, err := m.portal.SelectAddress(ctx, address)
		if err != nil {
			return fmt.Errorf("select address %s: %w", address.ID, err)
		}
		if err := validate(other); err != nil {
			return err
		}
		if other.CurrentAddress.ID != address.ID {
			return &scraper.ParseError{What: fmt.Sprintf("address %s not selected", address.ID)}
		}
		if err := m.process(ctx, address, other.Messages, address.Name); err != nil {
			return err
		}
	}
	return nil
}

// authenticate restores the saved session, falling back to a full login.
func (m *Monitor) authenticate(ctx context.Context) (*notifier.Snapshot, error) {
	session, err := m.sessions.Load(ctx)
	if err != nil {
		m.logger.Warn("Saved session unreadable, logging in", "error", err)
		session = nil
	}

	if session != nil {
		snap, err := m.portal.RestoreSession(ctx, session)
		if err != nil {
			return nil, fmt.Errorf("restore session: %w", err)
		}
		if snap != nil && snap.CurrentAddress != nil {
			m.logger.Info("Session restored", "address_id", snap.CurrentAddress.ID)
			return snap, nil
		}
		m.logger.Info("Saved session expired, logging in")
	} else {
		m.logger.Info("No saved session, logging in")
	}

	snap, err := m.portal.Login(ctx, m.opts.Phone, m.opts.Password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := m.sessions.Save(ctx, m.portal.Session()); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return snap, nil
}

func validate(snap *notifier.Snapshot) error {
	if snap == nil || snap.CurrentAddress == nil {
		return &scraper.ParseError{What: "no current address"}
	}
	if !snap.HasMessages() {
		return &scraper.ParseError{What: "no message region"}
	}
	return nil
}

// process diffs one address against its baseline and dispatches what changed.
func (m *Monitor) process(ctx context.Context, address notifier.Address, messages []notifier.Message, header string) error {
	previous, err := m.cache.Load(ctx, address.ID)
	if err != nil {
		return fmt.Errorf("load cache for address %s: %w", address.ID, err)
	}

	if m.opts.Positional {
		return m.dispatchPositional(ctx, address, previous, messages, header)
	}

	fresh := diff.New(previous, messages)
	m.logger.Info("Messages compared",
		"address_id", address.ID,
		"previous", len(previous),
		"current", len(messages),
		"new", len(fresh))

	// The baseline grows with every delivered message so a failure
	// mid-batch never re-sends what already went out.
	baseline := append([]notifier.Message{}, previous...)
	for i, msg := range fresh {
		if err := m.notifier.Message(ctx, msg, header); err != nil {
			return fmt.Errorf("dispatch message %d/%d for address %s: %w", i+1, len(fresh), address.ID, err)
		}
		baseline = append(baseline, msg)
		if err := m.cache.Save(ctx, address.ID, baseline); err != nil {
			return fmt.Errorf("save cache for address %s: %w", address.ID, err)
		}
	}

	if err := m.cache.Save(ctx, address.ID, messages); err != nil {
		return fmt.Errorf("save cache for address %s: %w", address.ID, err)
	}
	return nil
}

func (m *Monitor) dispatchPositional(ctx context.Context, address notifier.Address, previous, messages []notifier.Message, header string) error {
	changes := diff.Changes(previous, messages)
	m.logger.Info("Messages compared by position",
		"address_id", address.ID,
		"previous", len(previous),
		"current", len(messages),
		"changed", len(changes))

	// Delivered positions take their current value in the baseline,
	// so a failure mid-batch only re-sends what did not go out.
	baseline := append([]notifier.Message{}, previous...)
	for i, change := range changes {
		if err := m.notifier.Message(ctx, change.Message, header); err != nil {
			return fmt.Errorf("dispatch change %d/%d for address %s: %w", i+1, len(changes), address.ID, err)
		}
		if change.Index < len(baseline) {
			baseline[change.Index] = messages[change.Index]
		} else {
			baseline = append(baseline, messages[change.Index])
		}
		if err := m.cache.Save(ctx, address.ID, baseline); err != nil {
			return fmt.Errorf("save cache for address %s: %w", address.ID, err)
		}
	}

	if err := m.cache.Save(ctx, address.ID, messages); err != nil {
		return fmt.Errorf("save cache for address %s: %w", address.ID, err)
	}
	return nil
}

// report sends an admin alert for runErr unless the same failure is cooling down.
func (m *Monitor) report(ctx context.Context, runErr error) error {
	description := runErr.Error()
	stable := stableDescription(runErr)

	send, fp, err := m.marker.Check(ctx, stable)
	if err != nil {
		m.logger.Warn("Failure marker unreadable, alerting anyway", "error", err)
		send = true
		fp = storage.NewFingerprint(stable)
	}
	if !send {
		m.logger.Info("Suppressing repeated failure alert", "fingerprint", fp.String())
		return nil
	}

	if err := m.notifier.Alert(ctx, description); err != nil {
		return fmt.Errorf("send admin alert: %w", err)
	}
	if err := m.marker.Save(ctx, fp); err != nil {
		return fmt.Errorf("save failure marker: %w", err)
	}
	m.logger.Info("Failure alert sent", "fingerprint", fp.String())
	return nil
}

// stableDescription is the failure text with response bodies removed.
// Bodies carry tokens and timestamps that change on every request.
func stableDescription(err error) string {
	text := err.Error()

	var auth *scraper.AuthError
	if errors.As(err, &auth) && auth.Body != "" {
		text = strings.ReplaceAll(text, auth.Body, "")
	}
	var req *scraper.RequestError
	if errors.As(err, &req) && req.Body != "" {
		text = strings.ReplaceAll(text, req.Body, "")
	}
	return text
}
