package scraper

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"kyiv1557-notifier/pkg/notifier"
)

const (
	addressOptions = "select#address-select option"
	messageRegion  = "div.claim-messages"
	messageBlock   = "div.claim-message-block"
	messageItem    = "div.claim-message-item"
	warnClass      = "claim-message-green"
)

// Parse extracts addresses and messages from a portal page.
// Missing anchors are not errors here: CurrentAddress stays nil when there is
// no address selector, and Messages stays nil when there is no message region.
func Parse(body io.Reader) (*notifier.Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	snap := &notifier.Snapshot{
		Addresses: parseAddresses(doc),
		Messages:  parseMessages(doc),
	}

	for i := range snap.Addresses {
		if snap.Addresses[i].Selected {
			snap.CurrentAddress = &snap.Addresses[i]
			break
		}
	}
	if snap.CurrentAddress == nil && len(snap.Addresses) > 0 {
		snap.CurrentAddress = &snap.Addresses[0]
	}

	return snap, nil
}

func parseAddresses(doc *goquery.Document) []notifier.Address {
	var addresses []notifier.Address
	seenSelected := false

	doc.Find(addressOptions).Each(func(_ int, s *goquery.Selection) {
		_, selected := s.Attr("selected")
		// At most one address is active per page.
		selected = selected && !seenSelected
		seenSelected = seenSelected || selected

		addresses = append(addresses, notifier.Address{
			ID:       strings.TrimSpace(s.AttrOr("value", "")),
			Name:     collapse(s.Text()),
			Selected: selected,
		})
	})

	return addresses
}

func parseMessages(doc *goquery.Document) []notifier.Message {
	blocks := doc.Find(messageBlock)
	if blocks.Length() == 0 && doc.Find(messageRegion).Length() == 0 {
		return nil
	}

	messages := make([]notifier.Message, 0, blocks.Length())
	blocks.Each(func(_ int, block *goquery.Selection) {
		var lines []string
		block.Find(messageItem).Each(func(_ int, item *goquery.Selection) {
			lines = append(lines, collapse(item.Text()))
		})

		messages = append(messages, notifier.Message{
			Text: strings.Join(lines, "\n"),
			Warn: block.HasClass(warnClass),
		})
	})

	return messages
}

// collapse squeezes every whitespace run into a single space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
