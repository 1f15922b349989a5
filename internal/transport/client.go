package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client talks to the scheduling server over HTTP for mutations and
// WebSocket for push events.
type Client struct {
	baseURL string
	wsURL   string
	token   string
	httpc   *http.Client
	logger  *slog.Logger
}

// NewClient constructs a client for the given server. baseURL is the HTTP
// origin, wsURL the WebSocket origin (ws:// or wss://). token is sent as a
// bearer credential on both paths; it may be empty for unauthenticated
// servers.
func NewClient(baseURL, wsURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		wsURL:   strings.TrimRight(wsURL, "/"),
		token:   token,
		httpc:   &http.Client{},
		logger:  logger,
	}
}

// Call sends one mutation request and decodes the response envelope. Network
// failures, non-2xx statuses and undecodable envelopes are all reported as
// *Error; the caller never retries.
func (c *Client) Call(ctx context.Context, req Request) (Response, error) {
	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return Response{}, &Error{Op: "encode " + req.Path, Err: err}
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return Response{}, &Error{Op: "build " + req.Path, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return Response{}, &Error{Op: req.Method + " " + req.Path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Response{}, &Error{
			Op:  req.Method + " " + req.Path,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))),
		}
	}

	var envelope Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Response{}, &Error{Op: "decode " + req.Path, Err: err}
	}
	return envelope, nil
}

// Subscribe opens a WebSocket to the named channel and yields its events in
// delivery order. The returned channel closes when the socket drops or ctx
// is cancelled; no reconnection is attempted here.
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan PushEvent, func(), error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL+"/ws/"+channel, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, nil, &Error{Op: "subscribe " + channel, Err: err}
	}
	if resp != nil {
		resp.Body.Close()
	}

	events := make(chan PushEvent, 16)
	done := make(chan struct{})

	go func() {
		defer close(events)
		for {
			var ev PushEvent
			if err := conn.ReadJSON(&ev); err != nil {
				select {
				case <-done:
				case <-ctx.Done():
				default:
					c.logger.Warn("push channel closed", "channel", channel, "error", err)
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = conn.Close()
		})
	}
	return events, stop, nil
}
