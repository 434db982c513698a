package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"gigchat/internal/attachment"
	"gigchat/internal/composer"
	"gigchat/internal/logger"
	"gigchat/internal/model"
	"gigchat/internal/notification"
	"gigchat/internal/outbox"
	"gigchat/internal/presence"
)

// NotExistingGigID is requested when there is no message context yet, so
// the gig query stays inert instead of being skipped
const NotExistingGigID = "649db27404c0c7b7d4b112ec"

var (
	ErrUnmounted        = errors.New("chat view is unmounted")
	ErrOfferUnavailable = errors.New("offer panel is not available")
	ErrInvalidOffer     = errors.New("offer needs a positive price and delivery time")
)

// BuyerLookup resolves the counterpart profile
type BuyerLookup interface {
	BuyerByUsername(ctx context.Context, username string) (model.Buyer, error)
}

// GigLookup resolves gig metadata for offers
type GigLookup interface {
	GigByID(ctx context.Context, id string) (model.Gig, error)
}

// ReadMarker marks a conversation direction as read on the server
type ReadMarker interface {
	MarkMessagesAsRead(ctx context.Context, sender, receiver string) error
}

// PageControl freezes or releases the history page window
type PageControl interface {
	SetSkip(skip bool)
}

// Refresher asks the history feed to refetch
type Refresher interface {
	Invalidate(ctx context.Context)
}

// Deps holds everything a chat view needs. Only AuthUser, ViewedUsername
// and Outbox are required.
type Deps struct {
	AuthUser       model.AuthUser
	Seller         model.Seller
	ViewedUsername string

	Outbox        *outbox.Outbox
	Channel       presence.Channel
	Buyers        BuyerLookup
	Gigs          GigLookup
	Reads         ReadMarker
	Pages         PageControl
	Refresher     Refresher
	Validator     attachment.Validator
	Notifications *notification.Store
	Logger        *zap.Logger
	Now           func() time.Time
}

// Controller is the single authority for what one chat view renders
type Controller struct {
	deps     Deps
	log      *zap.Logger
	tracker  *presence.Tracker
	composer *composer.Composer

	mu          sync.Mutex
	history     []model.Message
	loading     bool
	unread      int
	mostRecent  *model.Message
	counterpart *model.Buyer
	gig         *model.Gig
	gigKey      string
	offer       *OfferPanel
	mounted     bool
	unmounted   bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ready   chan struct{}
	changed chan struct{}
}

// New creates an unmounted controller
func New(deps Deps) *Controller {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Notifications == nil {
		deps.Notifications = notification.NewStore()
	}
	log := logger.OrNop(deps.Logger).With(zap.String("viewed", deps.ViewedUsername))

	c := &Controller{
		deps:     deps,
		log:      log,
		composer: composer.New(attachment.NewCodec(deps.Validator, log)),
		ready:    make(chan struct{}),
		changed:  make(chan struct{}, 1),
	}
	if deps.Channel != nil {
		c.tracker = presence.New(deps.Channel, log)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Mount starts presence tracking and the counterpart and gig lookups. The
// work is bound to ctx and to the lifetime of the view.
func (c *Controller) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted || c.unmounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	unread := c.unread
	key := c.gigKeyLocked()
	c.gigKey = key
	c.mu.Unlock()

	c.deps.Notifications.Update(unread > 0)

	if c.tracker != nil {
		c.goBackground(c.relayPresence)
		c.goBackground(func(ctx context.Context) {
			if err := c.tracker.Run(ctx); err != nil {
				c.log.Warn("presence tracking stopped", zap.Error(err))
			}
		})
	}
	c.goBackground(c.resolveCounterpart)
	c.loadGig(key)
}

// Unmount releases the presence subscription and cancels pending lookups.
// Completions arriving afterwards leave the controller untouched. It
// returns once every background task has exited.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.unmounted = true
	c.offer = nil
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
}

// Ready is closed once the counterpart lookup has finished, successfully or not
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Changed signals, coalesced, that View would return something new
func (c *Controller) Changed() <-chan struct{} {
	return c.changed
}

// Notifications returns the shared unread store
func (c *Controller) Notifications() *notification.Store {
	return c.deps.Notifications
}

// SetHistory replaces the history with the feed's latest snapshot
func (c *Controller) SetHistory(messages []model.Message, loading bool) {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.history = append([]model.Message(nil), messages...)
	c.loading = loading
	if n := len(c.history); n > 0 {
		last := c.history[n-1]
		c.mostRecent = &last
	}
	c.unread = countUnread(c.history, c.deps.ViewedUsername)
	unread := c.unread

	key := c.gigKeyLocked()
	refetch := c.mounted && key != c.gigKey
	if refetch {
		c.gigKey = key
	}
	c.mu.Unlock()

	c.deps.Notifications.Update(unread > 0)
	if refetch {
		c.loadGig(key)
	}
	c.signal()
}

// UnreadCount returns the number of unread messages addressed to the viewed user
func (c *Controller) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// MostRecent returns a copy of the cached most recent message
func (c *Controller) MostRecent() (model.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mostRecent == nil {
		return model.Message{}, false
	}
	return *c.mostRecent, true
}

// SetBody updates the draft text
func (c *Controller) SetBody(text string) {
	c.mu.Lock()
	c.composer.SetBody(text)
	c.mu.Unlock()
	c.signal()
}

// SelectFile validates and stages f, replacing any staged file. A rejected
// file changes nothing.
func (c *Controller) SelectFile(f attachment.File) error {
	c.mu.Lock()
	err := c.composer.Codec().Select(f)
	c.mu.Unlock()
	if err == nil {
		c.signal()
	}
	return err
}

// RemoveFile discards the staged file and hides the preview
func (c *Controller) RemoveFile() {
	c.mu.Lock()
	c.composer.Codec().Remove()
	c.mu.Unlock()
	c.signal()
}

// Submit sends the draft. An empty draft is a silent no-op. Whatever the
// outcome the draft is cleared; failures are alerted by the outbox and
// returned wrapped in outbox.ErrSendFailed.
func (c *Controller) Submit(ctx context.Context) error {
	if c.deps.Pages != nil {
		c.deps.Pages.SetSkip(true)
	}

	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return ErrUnmounted
	}
	msg, ok := c.composer.Build(composer.ContextFrom(c.mostRecent), c.senderLocked(), c.receiverLocked())
	if !ok {
		c.mu.Unlock()
		return nil
	}
	file := c.composer.Codec().Staged()
	c.mu.Unlock()

	return c.send(ctx, msg, file, func() { c.composer.Reset() })
}

// MarkRead marks the counterpart's messages to the current user as read
// and asks the feed to refresh
func (c *Controller) MarkRead(ctx context.Context) error {
	if c.deps.Reads == nil {
		return nil
	}
	c.mu.Lock()
	counterpart := c.receiverLocked().Username
	c.mu.Unlock()
	if counterpart == "" {
		return nil
	}

	if err := c.deps.Reads.MarkMessagesAsRead(ctx, counterpart, c.deps.AuthUser.Username); err != nil {
		c.log.Warn("mark as read failed", zap.Error(err))
		return err
	}
	if c.deps.Refresher != nil {
		c.deps.Refresher.Invalidate(ctx)
	}
	return nil
}

// send runs the outbox and applies settle to the draft unless the view was
// unmounted meanwhile
func (c *Controller) send(ctx context.Context, msg model.Message, file attachment.File, settle func()) error {
	c.signal()
	_, err := c.deps.Outbox.Send(ctx, msg, file)
	if errors.Is(err, outbox.ErrBusy) {
		return err
	}

	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		c.log.Debug("send settled after unmount", zap.Error(err))
		return err
	}
	settle()
	c.mu.Unlock()
	c.signal()
	return err
}

func (c *Controller) resolveCounterpart(ctx context.Context) {
	defer close(c.ready)
	if c.deps.Buyers == nil {
		return
	}

	buyer, err := c.deps.Buyers.BuyerByUsername(ctx, FirstLetterUppercase(c.deps.ViewedUsername))
	if err != nil || buyer.Username == "" {
		c.log.Info("counterpart unresolved", zap.Error(err))
		return
	}

	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.counterpart = &buyer
	c.mu.Unlock()
	c.signal()
}

func (c *Controller) loadGig(key string) {
	if c.deps.Gigs == nil {
		return
	}
	c.goBackground(func(ctx context.Context) {
		gig, err := c.deps.Gigs.GigByID(ctx, key)

		c.mu.Lock()
		if c.unmounted || c.gigKey != key {
			c.mu.Unlock()
			return
		}
		if err != nil {
			if key != NotExistingGigID {
				c.log.Debug("gig lookup failed", zap.String("gig_id", key), zap.Error(err))
			}
			c.gig = nil
		} else {
			c.gig = &gig
		}
		c.mu.Unlock()
		c.signal()
	})
}

func (c *Controller) relayPresence(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.tracker.Changed():
			c.signal()
		}
	}
}

func (c *Controller) goBackground(fn func(ctx context.Context)) {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn(ctx)
	}()
}

func (c *Controller) gigKeyLocked() string {
	if c.mostRecent == nil || c.mostRecent.GigID == "" {
		return NotExistingGigID
	}
	return c.mostRecent.GigID
}

func (c *Controller) senderLocked() composer.Identity {
	return composer.Identity{Username: c.deps.AuthUser.Username, Picture: c.deps.AuthUser.ProfilePicture}
}

func (c *Controller) receiverLocked() composer.Identity {
	if c.counterpart == nil {
		return composer.Identity{}
	}
	return composer.Identity{Username: c.counterpart.Username, Picture: c.counterpart.ProfilePicture}
}

func (c *Controller) signal() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

func countUnread(history []model.Message, viewed string) int {
	n := 0
	for _, m := range history {
		if !m.IsRead && m.ReceiverUsername == viewed {
			n++
		}
	}
	return n
}
