package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"gigchat/internal/logger"
	"gigchat/internal/model"
)

// ErrNotFound is returned when a lookup has no result
var ErrNotFound = errors.New("not found")

// Error is a non-2xx response from the marketplace API
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// SaveResponse is the body of a successful POST /messages
type SaveResponse struct {
	Message        string        `json:"message"`
	ConversationID string        `json:"conversationId"`
	MessageData    model.Message `json:"messageData"`
}

// MessagesResponse is the body of GET /messages/{sender}/{receiver}
type MessagesResponse struct {
	Messages []model.Message `json:"messages"`
}

// BuyerResponse is the body of GET /buyers/username/{username}
type BuyerResponse struct {
	Buyer model.Buyer `json:"buyer"`
}

// GigResponse is the body of GET /gigs/{id}
type GigResponse struct {
	Gig model.Gig `json:"gig"`
}

// MarkReadRequest is the body of PUT /messages/mark-as-read
type MarkReadRequest struct {
	SenderUsername   string `json:"senderUsername"`
	ReceiverUsername string `json:"receiverUsername"`
}

// Client talks to the marketplace chat, buyer and gig endpoints
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// New creates a Client for baseURL. A nil httpClient uses a client with a
// 30 second timeout.
func New(baseURL string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient, log: logger.OrNop(log)}
}

// SaveChatMessage persists msg and returns the stored copy
func (c *Client) SaveChatMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	var resp SaveResponse
	if err := c.do(ctx, http.MethodPost, "/messages", msg, &resp); err != nil {
		return model.Message{}, err
	}
	return resp.MessageData, nil
}

// BuyerByUsername resolves a username to a buyer profile
func (c *Client) BuyerByUsername(ctx context.Context, username string) (model.Buyer, error) {
	var resp BuyerResponse
	if err := c.do(ctx, http.MethodGet, "/buyers/username/"+url.PathEscape(username), nil, &resp); err != nil {
		return model.Buyer{}, err
	}
	if resp.Buyer.Username == "" {
		return model.Buyer{}, ErrNotFound
	}
	return resp.Buyer, nil
}

// GigByID resolves a gig identifier to its listing
func (c *Client) GigByID(ctx context.Context, id string) (model.Gig, error) {
	var resp GigResponse
	if err := c.do(ctx, http.MethodGet, "/gigs/"+url.PathEscape(id), nil, &resp); err != nil {
		return model.Gig{}, err
	}
	if resp.Gig.ID == "" {
		return model.Gig{}, ErrNotFound
	}
	return resp.Gig, nil
}

// Messages returns one page of the conversation between sender and
// receiver, ordered oldest to newest. Page 1 is the newest window.
func (c *Client) Messages(ctx context.Context, sender, receiver string, page, limit int) ([]model.Message, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	path := "/messages/" + url.PathEscape(sender) + "/" + url.PathEscape(receiver) + "?" + q.Encode()

	var resp MessagesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// MarkMessagesAsRead marks every message from sender to receiver as read
func (c *Client) MarkMessagesAsRead(ctx context.Context, sender, receiver string) error {
	return c.do(ctx, http.MethodPut, "/messages/mark-as-read", MarkReadRequest{
		SenderUsername:   sender,
		ReceiverUsername: receiver,
	}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("api call", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &payload)

	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{Status: resp.StatusCode, Message: msg}
}
