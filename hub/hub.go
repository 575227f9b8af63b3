// Package hub is a real-time push transport over a SignalR hub.
//
// The hub pushes notifications with ReceiveNotification and provider token
// changes with ReceiveTokenRotation. The client acknowledges delivered
// notifications with Acknowledge.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippseith/signalr"
	pushbridge "github.com/slush-dev/push-bridge"
)

// Option configures Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used for negotiation.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithAccessToken sets a bearer token source for negotiation and the
// WebSocket upgrade.
func WithAccessToken(factory func(ctx context.Context) (string, error)) Option {
	return func(c *Client) {
		c.accessToken = factory
	}
}

// Client is the SignalR push transport.
type Client struct {
	hubURL      string
	accessToken func(ctx context.Context) (string, error)
	httpClient  *http.Client
	logger      *slog.Logger
	client      signalr.Client

	onNotification func(pushbridge.Notification)
	onToken        func(pushbridge.ProviderToken)
	onOpen         func()
	onClose        func()
	onError        func(error)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewClient creates a Client for the hub at hubURL.
func NewClient(hubURL string, opts ...Option) *Client {
	c := &Client{
		hubURL:     hubURL,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handler registration

func (c *Client) OnNotification(handler func(pushbridge.Notification)) { c.onNotification = handler }
func (c *Client) OnToken(handler func(pushbridge.ProviderToken))       { c.onToken = handler }
func (c *Client) OnOpen(handler func())                                { c.onOpen = handler }
func (c *Client) OnClose(handler func())                               { c.onClose = handler }
func (c *Client) OnError(handler func(error))                          { c.onError = handler }

// Start builds and starts the SignalR connection and waits until it is
// connected.
func (c *Client) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Debug("Building SignalR hub", "url", c.hubURL)

	client, err := signalr.NewClient(ctx,
		signalr.WithConnector(func() (signalr.Connection, error) {
			return c.connect(ctx)
		}),
		signalr.WithReceiver(&receiver{c: c}),
		signalr.Logger(&slogAdapter{logger: c.logger}, true),
		signalr.KeepAliveInterval(15*time.Second),
		signalr.TimeoutInterval(30*time.Second),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("creating SignalR client: %w", err)
	}
	c.client = client

	// Start is non-blocking; wait for the actual connection.
	client.Start()

	waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Second)
	defer waitCancel()
	if err := <-client.WaitForState(waitCtx, signalr.ClientConnected); err != nil {
		cancel()
		return fmt.Errorf("waiting for SignalR connection: %w", err)
	}

	c.logger.Debug("SignalR connected")
	if c.onOpen != nil {
		c.onOpen()
	}
	return nil
}

// negotiateResponse is the hub's reply to /negotiate. A redirect carries
// URL and AccessToken instead of ConnectionID.
type negotiateResponse struct {
	ConnectionID string `json:"connectionId"`
	URL          string `json:"url"`
	AccessToken  string `json:"accessToken"`
}

// negotiate POSTs to {hub}/negotiate and returns the WebSocket URL,
// connection ID and headers to dial with.
func (c *Client) negotiate(ctx context.Context) (*url.URL, string, http.Header, error) {
	headers := http.Header{}
	if c.accessToken != nil {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, "", nil, fmt.Errorf("getting access token: %w", err)
		}
		headers.Set("Authorization", "Bearer "+token)
	}

	negotiateURL := c.hubURL + "/negotiate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, negotiateURL, nil)
	if err != nil {
		return nil, "", nil, fmt.Errorf("creating negotiate request: %w", err)
	}
	req.Header = headers.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", nil, fmt.Errorf("negotiate request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	c.logger.Debug("SignalR negotiate response", "status", resp.StatusCode, "body", truncate(string(body), 2000))
	if resp.StatusCode != http.StatusOK {
		return nil, "", nil, fmt.Errorf("negotiate failed: %s %s", resp.Status, truncate(string(body), 500))
	}

	var neg negotiateResponse
	if err := json.Unmarshal(body, &neg); err != nil {
		return nil, "", nil, fmt.Errorf("parsing negotiate response: %w", err)
	}

	var wsURL *url.URL
	if neg.URL != "" && neg.AccessToken != "" {
		c.logger.Debug("SignalR negotiate redirect", "url", neg.URL)
		wsURL, err = url.Parse(neg.URL)
		if err != nil {
			return nil, "", nil, fmt.Errorf("parsing redirect URL: %w", err)
		}
		headers.Set("Authorization", "Bearer "+neg.AccessToken)
	} else {
		wsURL, err = url.Parse(c.hubURL)
		if err != nil {
			return nil, "", nil, fmt.Errorf("parsing hub URL: %w", err)
		}
		q := wsURL.Query()
		q.Set("id", neg.ConnectionID)
		wsURL.RawQuery = q.Encode()
	}

	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	case "http":
		wsURL.Scheme = "ws"
	}

	connID := neg.ConnectionID
	if connID == "" {
		connID = "redirect"
	}
	return wsURL, connID, headers, nil
}

// connect negotiates and opens the WebSocket connection.
func (c *Client) connect(ctx context.Context) (signalr.Connection, error) {
	wsURL, connID, headers, err := c.negotiate(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("SignalR opening WebSocket", "url", wsURL.String())
	conn, err := signalr.NewWebSocketConnection(ctx, wsURL, connID, headers)
	if err != nil {
		return nil, fmt.Errorf("WebSocket dial: %w", err)
	}
	c.logger.Debug("SignalR WebSocket connected", "connectionId", conn.ConnectionID())
	return conn, nil
}

// Stop disconnects the client.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.logger.Debug("SignalR disconnected")
	if c.onClose != nil {
		c.onClose()
	}
}

// Acknowledge tells the hub a notification was delivered.
func (c *Client) Acknowledge(id uuid.UUID) {
	if c.client != nil {
		c.logger.Debug("SignalR Send", "method", "Acknowledge", "id", id)
		c.client.Send("Acknowledge", id.String())
	}
}

// notificationEnvelope is the ReceiveNotification argument when it has a
// "payload" member. Any other JSON object is the payload itself.
type notificationEnvelope struct {
	ID      *uuid.UUID         `json:"id"`
	Payload pushbridge.Payload `json:"payload"`
}

// receiver implements the receiver interface for the SignalR library.
// Method names match the hub method names exactly.
type receiver struct {
	c *Client
}

func (r *receiver) ReceiveNotification(raw json.RawMessage) {
	r.c.logger.Debug("ReceiveNotification raw", "json", truncate(string(raw), 2000))
	n, err := parseNotification(raw)
	if err != nil {
		r.c.logger.Error("Error parsing ReceiveNotification", "error", err)
		if r.c.onError != nil {
			r.c.onError(err)
		}
		return
	}
	if r.c.onNotification != nil {
		r.c.onNotification(n)
	}
}

func (r *receiver) ReceiveTokenRotation(raw json.RawMessage) {
	var token *string
	if err := json.Unmarshal(raw, &token); err != nil {
		r.c.logger.Error("Error parsing ReceiveTokenRotation", "error", err, "raw", truncate(string(raw), 200))
		if r.c.onError != nil {
			r.c.onError(fmt.Errorf("parsing token rotation: %w", err))
		}
		return
	}

	t := pushbridge.NoProviderToken
	if token != nil {
		t = pushbridge.NewProviderToken(*token)
	}
	r.c.logger.Debug("ReceiveTokenRotation", "valid", t.Valid())
	if r.c.onToken != nil {
		r.c.onToken(t)
	}
}

func parseNotification(raw json.RawMessage) (pushbridge.Notification, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return pushbridge.Notification{}, fmt.Errorf("parsing notification: %w", err)
	}
	if fields == nil {
		return pushbridge.Notification{}, fmt.Errorf("parsing notification: not a JSON object")
	}

	if _, ok := fields["payload"]; !ok {
		var p pushbridge.Payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return pushbridge.Notification{}, fmt.Errorf("parsing notification payload: %w", err)
		}
		return pushbridge.NewNotification(p), nil
	}

	var env notificationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return pushbridge.Notification{}, fmt.Errorf("parsing notification envelope: %w", err)
	}
	n := pushbridge.NewNotification(env.Payload)
	if env.ID != nil {
		n.ID = *env.ID
	}
	return n, nil
}

// slogAdapter adapts slog.Logger to the SignalR library's go-kit/log interface.
// The library emits flat key-value pairs: "level", "debug", "ts", "...", "state", 1
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Log(keyVals ...interface{}) error {
	if len(keyVals) == 0 {
		return nil
	}
	// Skip keys slog already manages (level, ts, caller).
	var attrs []any
	for i := 0; i+1 < len(keyVals); i += 2 {
		key := fmt.Sprint(keyVals[i])
		if key == "level" || key == "ts" || key == "caller" {
			continue
		}
		attrs = append(attrs, key, keyVals[i+1])
	}
	a.logger.Debug("signalr", attrs...)
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
