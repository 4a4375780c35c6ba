// Package notifier contains the core domain types for the 1557 portal notification service.
package notifier

import "strings"

// Address is one account location the portal can report on.
type Address struct {
	ID       string `json:"id"`       // Stable key used for cache naming
	Name     string `json:"name"`     // Human-readable address line
	Selected bool   `json:"selected"` // Active in the current portal session
}

// Message is one status entry published for the selected address.
// Identity is structural: two messages are the same when Text and Warn match.
type Message struct {
	Text string `json:"text"` // Normalized lines joined with "\n"
	Warn bool   `json:"warn"` // Severity marker from the message block
}

// Lines splits the message text into its normalized lines.
func (m Message) Lines() []string {
	if m.Text == "" {
		return nil
	}
	return strings.Split(m.Text, "\n")
}

// Snapshot is the structured result of one parsed portal page.
type Snapshot struct {
	Addresses      []Address
	CurrentAddress *Address  // nil when the page has no address selector
	Messages       []Message // nil when the message region is absent, empty when nothing is posted
}

// HasMessages reports whether the page carried a message region at all.
func (s *Snapshot) HasMessages() bool {
	return s != nil && s.Messages != nil
}

// Session is the persisted authentication state: cookie name -> value.
type Session map[string]string
