package session

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"gigchat/internal/model"
	"gigchat/internal/outbox"
)

// View is everything a renderer needs for one frame of the chat window
type View struct {
	Loading     bool
	Header      Header
	Rows        []Row
	Draft       string
	Preview     *Preview
	Sending     bool
	CanOffer    bool
	OfferPanel  *OfferPanel
	UnreadCount int
}

// Header describes the counterpart
type Header struct {
	DisplayName string
	Picture     string
	Resolved    bool
	Online      bool
}

// Row is one rendered message
type Row struct {
	Key     string
	Sender  string
	TimeAgo string
	Body    string
	Offer   *model.Offer
	Gig     *model.Gig
	File    *FileRow
}

// FileRow describes an attachment in the history
type FileRow struct {
	Name     string
	Category string
	Size     string
}

// Preview describes the staged attachment
type Preview struct {
	Name string
	Size string
}

// View builds the current frame
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Loading:     c.loading,
		Draft:       c.composer.Body(),
		Sending:     c.deps.Outbox != nil && c.deps.Outbox.State() == outbox.Sending,
		CanOffer:    c.canOfferLocked(),
		UnreadCount: c.unread,
		Header: Header{
			DisplayName: FirstLetterUppercase(c.deps.ViewedUsername),
		},
	}

	if c.counterpart != nil {
		v.Header.Picture = c.counterpart.ProfilePicture
		v.Header.Resolved = true
		v.Header.Online = c.tracker != nil && c.tracker.Online(c.counterpart.Username)
	}

	if codec := c.composer.Codec(); codec.PreviewVisible() && codec.Staged() != nil {
		f := codec.Staged()
		v.Preview = &Preview{Name: f.Name(), Size: humanize.Bytes(uint64(f.Size()))}
	}

	if c.offer != nil {
		panel := *c.offer
		v.OfferPanel = &panel
	}

	now := c.deps.Now()
	v.Rows = make([]Row, 0, len(c.history))
	for i, m := range c.history {
		row := Row{
			Key:    m.ID,
			Sender: m.SenderUsername,
			Body:   m.Body,
		}
		if row.Key == "" {
			row.Key = "row-" + strconv.Itoa(i)
		}
		if m.SenderUsername == c.deps.AuthUser.Username {
			row.Sender = "You"
		}
		if m.CreatedAt != nil {
			row.TimeAgo = humanize.RelTime(*m.CreatedAt, now, "ago", "from now")
		}
		if m.HasOffer && m.Offer != nil {
			offer := *m.Offer
			row.Offer = &offer
			if c.gig != nil {
				gig := *c.gig
				row.Gig = &gig
			}
		}
		if m.HasFile() {
			row.File = &FileRow{Name: m.FileName, Category: m.FileType, Size: m.FileSize}
		}
		v.Rows = append(v.Rows, row)
	}

	return v
}

// FirstLetterUppercase lower-cases s and upper-cases its first letter, the
// form in which the marketplace stores usernames
func FirstLetterUppercase(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToLower(s)
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
