package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"gigchat/internal/attachment"
	"gigchat/internal/logger"
	"gigchat/internal/model"
)

// SendErrorText is the generic message shown when a send fails
const SendErrorText = "Error sending message."

var (
	// ErrBusy is returned when a send is attempted while another is in flight
	ErrBusy = errors.New("a message is already being sent")
	// ErrSendFailed wraps every encode or transmit failure
	ErrSendFailed = errors.New("send failed")
)

// State of the outbox
type State int

const (
	Idle State = iota
	Sending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sender persists a message on the server
type Sender interface {
	SaveChatMessage(ctx context.Context, msg model.Message) (model.Message, error)
}

// Invalidator refreshes the history feed after a successful send
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Alerter shows a user-visible error
type Alerter interface {
	Error(message string)
}

// AlertFunc adapts a function to Alerter
type AlertFunc func(message string)

func (f AlertFunc) Error(message string) { f(message) }

// Deps holds the collaborators of an Outbox
type Deps struct {
	Sender      Sender
	Invalidator Invalidator
	Alerter     Alerter
	Logger      *zap.Logger
}

// Outbox performs the authoritative send of one message at a time
type Outbox struct {
	deps Deps
	log  *zap.Logger

	mu    sync.Mutex
	state State
}

// New creates an idle Outbox
func New(deps Deps) *Outbox {
	return &Outbox{deps: deps, log: logger.OrNop(deps.Logger)}
}

// State returns the current state
func (o *Outbox) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Send encodes file, if any, onto msg and transmits it. The outbox is back
// to Idle when Send returns, whatever the outcome. The sent message becomes
// visible through the history feed, never through local state.
func (o *Outbox) Send(ctx context.Context, msg model.Message, file attachment.File) (model.Message, error) {
	o.mu.Lock()
	if o.state == Sending {
		o.mu.Unlock()
		return model.Message{}, ErrBusy
	}
	o.state = Sending
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.state = Idle
		o.mu.Unlock()
	}()

	if file != nil {
		payload, err := attachment.Encode(file)
		if err != nil {
			return model.Message{}, o.fail(msg, err)
		}
		payload.Apply(&msg)
	}

	saved, err := o.deps.Sender.SaveChatMessage(ctx, msg)
	if err != nil {
		return model.Message{}, o.fail(msg, err)
	}

	o.log.Debug("message sent",
		zap.String("id", saved.ID),
		zap.String("conversation_id", saved.ConversationID),
		zap.String("receiver", msg.ReceiverUsername))

	if o.deps.Invalidator != nil {
		go o.deps.Invalidator.Invalidate(context.WithoutCancel(ctx))
	}
	return saved, nil
}

func (o *Outbox) fail(msg model.Message, err error) error {
	o.log.Warn("message send failed",
		zap.String("receiver", msg.ReceiverUsername),
		zap.Bool("has_file", msg.HasFile()),
		zap.Error(err))
	if o.deps.Alerter != nil {
		o.deps.Alerter.Error(SendErrorText)
	}
	return fmt.Errorf("%w: %w", ErrSendFailed, err)
}
