package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/peerchat/internal/store"
	intsync "github.com/matheus3301/peerchat/internal/sync"
	"go.uber.org/zap"
)

// APIError is a response the server answered with an error status or an
// explicit {"success": false}.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client is the fetch collaborator backed by the chat HTTP API. Every
// response is normalized here so callers never see response envelopes.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *zap.Logger
}

var _ intsync.Fetcher = (*Client)(nil)

// New creates a client for the API rooted at opts.BaseURL.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: base, token: opts.Token, http: hc, logger: logger}, nil
}

// ListPeersAndUnseen returns the roster and the server's unseen counts.
func (c *Client) ListPeersAndUnseen(ctx context.Context) (intsync.Roster, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/api/message/users", nil, &env); err != nil {
		return intsync.Roster{}, err
	}
	if env.failed() {
		return intsync.Roster{}, &APIError{Message: env.Message}
	}

	peers := make([]store.Peer, 0, len(env.Users))
	for _, u := range env.Users {
		peers = append(peers, store.Peer{ID: u.ID, Name: u.FullName, Avatar: u.ProfilePic})
	}
	unseen := env.UnseenMessages
	if unseen == nil {
		unseen = map[string]int{}
	}
	return intsync.Roster{Peers: peers, Unseen: unseen}, nil
}

// GetHistory returns the conversation with peerID, oldest first.
func (c *Client) GetHistory(ctx context.Context, peerID string) ([]store.Message, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/message/"+url.PathEscape(peerID), nil, &raw); err != nil {
		return nil, err
	}
	wire, err := decodeList(raw)
	if err != nil {
		return nil, err
	}
	msgs := make([]store.Message, 0, len(wire))
	for _, w := range wire {
		msgs = append(msgs, w.Message())
	}
	return msgs, nil
}

// SendMessage persists a message to peerID and returns the server's copy.
func (c *Client) SendMessage(ctx context.Context, peerID string, payload store.Payload) (store.Message, error) {
	body := sendRequest{Text: payload.Text, Image: payload.Image}
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/api/message/send/"+url.PathEscape(peerID), body, &env); err != nil {
		return store.Message{}, err
	}
	if env.failed() {
		return store.Message{}, &APIError{Message: env.Message}
	}
	if env.NewMessage == nil {
		return store.Message{}, errors.New("send message: response has no message")
	}
	return env.NewMessage.Message(), nil
}

// MarkSeen records that messageID was seen.
func (c *Client) MarkSeen(ctx context.Context, messageID string) error {
	var env envelope
	if err := c.do(ctx, http.MethodPut, "/api/message/mark/"+url.PathEscape(messageID), nil, &env); err != nil {
		return err
	}
	if env.failed() {
		return &APIError{Message: env.Message}
	}
	return nil
}

// decodeList accepts a bare array or an envelope holding the array under
// "messages" or "data".
func decodeList(raw json.RawMessage) ([]WireMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []WireMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		return list, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if env.failed() {
		return nil, &APIError{Message: env.Message}
	}
	if len(env.Data) > 0 {
		return decodeList(env.Data)
	}
	return env.Messages, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	// path is already escaped; JoinPath keeps RawPath so it is not escaped again.
	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("token", c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var env envelope
		if json.Unmarshal(data, &env) == nil {
			apiErr.Message = env.Message
		}
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
