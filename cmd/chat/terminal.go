package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"gigchat/internal/session"
)

// terminal serializes everything written to the user's screen
type terminal struct {
	mu  sync.Mutex
	out io.Writer
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{out: out}
}

// Alert prints a toast style error
func (t *terminal) Alert(msg string) {
	t.Notice("⚠️  " + msg)
}

// Notice prints one informational line
func (t *terminal) Notice(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, msg)
}

// Render redraws the conversation
func (t *terminal) Render(v session.View) {
	var b strings.Builder
	renderView(&b, v)

	t.mu.Lock()
	defer t.mu.Unlock()
	io.WriteString(t.out, b.String())
}

func renderView(b *strings.Builder, v session.View) {
	b.WriteString("========================================\n")
	b.WriteString("  " + headerLine(v.Header) + "\n")
	b.WriteString("========================================\n")

	if v.Loading {
		b.WriteString("  loading...\n")
	}
	for _, row := range v.Rows {
		when := row.TimeAgo
		if when == "" {
			when = "now"
		}
		fmt.Fprintf(b, "[%s] %s: %s\n", when, row.Sender, row.Body)
		if row.File != nil {
			fmt.Fprintf(b, "    📎 %s (%s, %s)\n", row.File.Name, row.File.Category, fileSize(row.File.Size))
		}
		if row.Offer != nil {
			title := row.Offer.GigTitle
			if row.Gig != nil && row.Gig.Title != "" {
				title = row.Gig.Title
			}
			fmt.Fprintf(b, "    💼 %s: $%s in %d days, %s\n",
				title, humanize.Commaf(row.Offer.Price), row.Offer.DeliveryInDays, row.Offer.Description)
		}
	}

	if v.UnreadCount > 0 {
		fmt.Fprintf(b, "  %d unread\n", v.UnreadCount)
	}
	if v.Preview != nil {
		fmt.Fprintf(b, "  attachment: %s (%s), /remove to discard\n", v.Preview.Name, v.Preview.Size)
	}
	if v.CanOffer {
		b.WriteString("  /offer <price> <days> <details> to send a custom offer\n")
	}
	if v.Sending {
		b.WriteString("  sending...\n")
	}
	b.WriteString("> ")
}

func headerLine(h session.Header) string {
	switch {
	case !h.Resolved:
		return h.DisplayName + " (unknown user)"
	case h.Online:
		return h.DisplayName + " ● online"
	default:
		return h.DisplayName + " ○ offline"
	}
}

// fileSize formats the byte count carried in fileSize
func fileSize(raw string) string {
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return raw
	}
	return humanize.Bytes(n)
}
