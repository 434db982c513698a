package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gigchat/internal/logger"
	"gigchat/internal/model"
	"gigchat/internal/presence"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 20
	subscriberBuf  = 32
)

// ErrClosed is returned by operations on a closed client
var ErrClosed = errors.New("socket closed")

// Client is the chat client's end of the event websocket. Frames are
// {"event": name, "data": payload}; inbound frames are fanned out to the
// subscribers of their event name.
type Client struct {
	conn *websocket.Conn
	log  *zap.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

var _ presence.Channel = (*Client)(nil)

// Dial connects to the event websocket at rawURL as username
func Dial(ctx context.Context, rawURL, username string, header http.Header, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse socket url: %w", err)
	}
	q := u.Query()
	q.Set("username", username)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return newClient(conn, log), nil
}

func newClient(conn *websocket.Conn, log *zap.Logger) *Client {
	c := &Client{
		conn: conn,
		log:  logger.OrNop(log),
		subs: make(map[string]map[*subscription]struct{}),
		done: make(chan struct{}),
	}
	go c.readLoop()
	go c.pingLoop()
	return c
}

// Emit sends one event frame
func (c *Client) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %q payload: %w", event, err)
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(model.SocketEvent{Event: event, Data: data})
}

// Subscribe registers for frames named event. The returned subscription's
// channel is closed when it is released or the socket goes away.
func (c *Client) Subscribe(event string) (presence.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	s := &subscription{client: c, event: event, events: make(chan json.RawMessage, subscriberBuf)}
	set := c.subs[event]
	if set == nil {
		set = make(map[*subscription]struct{})
		c.subs[event] = set
	}
	set[s] = struct{}{}
	return s, nil
}

// Done is closed once the connection has terminated
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close terminates the connection and releases all subscriptions
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
		c.shutdown()
	})
	return err
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, set := range c.subs {
		for s := range set {
			close(s.events)
		}
	}
	c.subs = nil
	close(c.done)
}

func (c *Client) readLoop() {
	defer func() {
		_ = c.conn.Close()
		c.shutdown()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ev model.SocketEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("socket read failed", zap.Error(err))
			} else {
				c.log.Debug("socket closed", zap.Error(err))
			}
			return
		}
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev model.SocketEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for s := range c.subs[ev.Event] {
		select {
		case s.events <- ev.Data:
		default:
			// slow subscriber: drop the oldest frame, keep the newest
			select {
			case <-s.events:
			default:
			}
			s.events <- ev.Data
			c.log.Debug("socket subscriber lagging", zap.String("event", ev.Event))
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.log.Debug("socket ping failed", zap.Error(err))
				return
			}
		}
	}
}

type subscription struct {
	client *Client
	event  string
	events chan json.RawMessage
	once   sync.Once
}

func (s *subscription) Events() <-chan json.RawMessage {
	return s.events
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		c := s.client
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		if set := c.subs[s.event]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(c.subs, s.event)
			}
		}
		close(s.events)
	})
	return nil
}
