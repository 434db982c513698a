package composer

import (
	"gigchat/internal/attachment"
	"gigchat/internal/model"
)

// OfferBody is the message body used for an offer without text
const OfferBody = "Here's your custom offer"

// Context carries the thread identifiers taken from the most recent message
type Context struct {
	ConversationID string
	GigID          string
	SellerID       string
	BuyerID        string
}

// ContextFrom extracts the thread identifiers from m; nil yields an empty Context
func ContextFrom(m *model.Message) Context {
	if m == nil {
		return Context{}
	}
	return Context{
		ConversationID: m.ConversationID,
		GigID:          m.GigID,
		SellerID:       m.SellerID,
		BuyerID:        m.BuyerID,
	}
}

// Identity is the username and avatar of one side of the conversation
type Identity struct {
	Username string
	Picture  string
}

// Composer owns the draft body and the attachment codec
type Composer struct {
	body  string
	codec *attachment.Codec
}

// New creates a Composer around codec
func New(codec *attachment.Codec) *Composer {
	return &Composer{codec: codec}
}

// SetBody replaces the draft text
func (c *Composer) SetBody(text string) {
	c.body = text
}

// Body returns the draft text
func (c *Composer) Body() string {
	return c.body
}

// Codec returns the attachment codec backing the draft
func (c *Composer) Codec() *attachment.Codec {
	return c.codec
}

// Empty reports whether there is nothing to send
func (c *Composer) Empty() bool {
	return c.body == "" && c.codec.Staged() == nil
}

// Build assembles an outgoing message from the draft. ok is false when the
// draft is empty, in which case nothing should be sent. The staged file is
// not encoded here; the outbox does that at send time.
func (c *Composer) Build(ctx Context, sender, receiver Identity) (msg model.Message, ok bool) {
	if c.Empty() {
		return model.Message{}, false
	}
	return newMessage(ctx, sender, receiver, c.body), true
}

// BuildOffer assembles an offer message. The draft text, if any, is used as
// the body; the staged attachment is never sent with an offer.
func (c *Composer) BuildOffer(ctx Context, sender, receiver Identity, offer model.Offer) model.Message {
	body := c.body
	if body == "" {
		body = OfferBody
	}
	msg := newMessage(ctx, sender, receiver, body)
	msg.HasOffer = true
	msg.Offer = &offer
	return msg
}

// Reset clears the draft text and the staged attachment
func (c *Composer) Reset() {
	c.body = ""
	c.codec.Remove()
}

func newMessage(ctx Context, sender, receiver Identity, body string) model.Message {
	return model.Message{
		ConversationID:    ctx.ConversationID,
		HasConversationID: ctx.ConversationID != "",
		GigID:             ctx.GigID,
		SellerID:          ctx.SellerID,
		BuyerID:           ctx.BuyerID,
		SenderUsername:    sender.Username,
		SenderPicture:     sender.Picture,
		ReceiverUsername:  receiver.Username,
		ReceiverPicture:   receiver.Picture,
		Body:              body,
		IsRead:            false,
		HasOffer:          false,
	}
}
