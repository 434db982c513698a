package session

import (
	"context"

	"gigchat/internal/composer"
	"gigchat/internal/model"
)

// OfferPanel is the snapshot captured when the offer panel opens
type OfferPanel struct {
	GigTitle string
	Context  composer.Context
	Sender   composer.Identity
	Receiver composer.Identity
}

// OfferInput is what the seller fills in on the offer panel
type OfferInput struct {
	Price          float64
	Description    string
	DeliveryInDays int
}

// CanOffer reports whether the current user sells in this conversation
func (c *Controller) CanOffer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canOfferLocked()
}

func (c *Controller) canOfferLocked() bool {
	return c.mostRecent != nil && c.deps.Seller.ID != "" && c.mostRecent.SellerID == c.deps.Seller.ID
}

// OpenOffer opens the offer panel. Opening an open panel keeps the
// original snapshot.
func (c *Controller) OpenOffer() error {
	c.mu.Lock()
	if c.unmounted || !c.canOfferLocked() {
		c.mu.Unlock()
		return ErrOfferUnavailable
	}
	if c.offer != nil {
		c.mu.Unlock()
		return nil
	}

	title := ""
	if c.gig != nil {
		title = c.gig.Title
	}
	c.offer = &OfferPanel{
		GigTitle: title,
		Context:  composer.ContextFrom(c.mostRecent),
		Sender:   c.senderLocked(),
		Receiver: c.receiverLocked(),
	}
	c.mu.Unlock()
	c.signal()
	return nil
}

// CloseOffer discards the offer in progress
func (c *Controller) CloseOffer() {
	c.mu.Lock()
	changed := c.offer != nil
	c.offer = nil
	c.mu.Unlock()
	if changed {
		c.signal()
	}
}

// SubmitOffer sends an offer message built from the open panel. The panel
// closes once the send has settled, whatever the outcome.
func (c *Controller) SubmitOffer(ctx context.Context, in OfferInput) error {
	if in.Price <= 0 || in.DeliveryInDays <= 0 {
		return ErrInvalidOffer
	}

	c.mu.Lock()
	if c.unmounted || c.offer == nil {
		c.mu.Unlock()
		return ErrOfferUnavailable
	}
	panel := *c.offer
	offer := model.Offer{
		GigTitle:        panel.GigTitle,
		Price:           in.Price,
		Description:     in.Description,
		DeliveryInDays:  in.DeliveryInDays,
		OldDeliveryDate: c.deps.Now().AddDate(0, 0, in.DeliveryInDays).Format("2006-01-02"),
	}
	msg := c.composer.BuildOffer(panel.Context, panel.Sender, panel.Receiver, offer)
	c.mu.Unlock()

	return c.send(ctx, msg, nil, func() {
		c.offer = nil
		c.composer.SetBody("")
	})
}
