// Package diff decides which portal messages are new and renders line-level changes.
package diff

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"kyiv1557-notifier/pkg/notifier"
)

// Line markers used by Render.
const (
	DeletedMarker  = "➖ "
	InsertedMarker = "➕ "
)

// New returns the messages in current that are absent from previous.
// Comparison is structural (text and warn flag) and order-independent;
// duplicates collapse. The result is sorted by text, then warn.
func New(previous, current []notifier.Message) []notifier.Message {
	seen := make(map[notifier.Message]struct{}, len(previous)+len(current))
	for _, m := range previous {
		seen[m] = struct{}{}
	}

	fresh := []notifier.Message{}
	for _, m := range current {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		fresh = append(fresh, m)
	}

	Sort(fresh)
	return fresh
}

// Sort orders messages by text, warnings after notices on equal text.
func Sort(messages []notifier.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Text != messages[j].Text {
			return messages[i].Text < messages[j].Text
		}
		return !messages[i].Warn && messages[j].Warn
	})
}

// Render marks line-level edits between two versions of a message.
// A changed warn flag is always significant, so cur is returned whole.
func Render(old, cur notifier.Message) notifier.Message {
	if old.Warn != cur.Warn {
		return cur
	}

	a, b := old.Lines(), cur.Lines()
	matcher := difflib.NewMatcherWithJunk(a, b, false, nil)

	var out []string
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			out = append(out, b[op.J1:op.J2]...)
		case 'r':
			out = appendMarked(out, DeletedMarker, a[op.I1:op.I2])
			out = appendMarked(out, InsertedMarker, b[op.J1:op.J2])
		case 'd':
			out = appendMarked(out, DeletedMarker, a[op.I1:op.I2])
		case 'i':
			out = appendMarked(out, InsertedMarker, b[op.J1:op.J2])
		}
	}

	return notifier.Message{Text: strings.Join(out, "\n"), Warn: cur.Warn}
}

// Change is one positional edit: the message to send for current[Index].
type Change struct {
	Index   int
	Message notifier.Message
}

// Changes pairs previous[i] with current[i]. Unchanged pairs are dropped,
// changed pairs are rendered, and unpaired current messages pass through whole.
// The result is ordered by Index.
func Changes(previous, current []notifier.Message) []Change {
	changes := []Change{}
	for i, cur := range current {
		switch {
		case i >= len(previous):
			changes = append(changes, Change{Index: i, Message: cur})
		case previous[i] != cur:
			changes = append(changes, Change{Index: i, Message: Render(previous[i], cur)})
		}
	}
	return changes
}

// Positional returns the messages of Changes without their indices.
func Positional(previous, current []notifier.Message) []notifier.Message {
	changed := []notifier.Message{}
	for _, c := range Changes(previous, current) {
		changed = append(changed, c.Message)
	}
	return changed
}

func appendMarked(out []string, marker string, lines []string) []string {
	for _, line := range lines {
		out = append(out, marker+line)
	}
	return out
}
