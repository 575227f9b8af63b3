package fcm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	pushbridge "github.com/slush-dev/push-bridge"
)

const (
	// DefaultAppID is the application package presented at registration.
	DefaultAppID = "com.slushdev.pushbridge"

	// DefaultMCSAddress is the provider's MCS endpoint.
	DefaultMCSAddress = "mtalk.google.com:5228"

	// iidSender is the sender of instance-ID control messages.
	iidSender = "google.com/iid"

	// registerTimeout bounds the fetch started by Token.
	registerTimeout = 30 * time.Second
)

// Option configures Client.
type Option func(*Client)

// WithLogger sets a custom logger for Client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client for check-in and registration.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithSenderID sets the project sender ID tokens are registered for.
func WithSenderID(senderID string) Option {
	return func(c *Client) {
		c.senderID = senderID
	}
}

// WithAppID sets the application package presented at registration.
func WithAppID(appID string) Option {
	return func(c *Client) {
		c.appID = appID
	}
}

// WithDeviceProfile overrides the device presented at check-in.
func WithDeviceProfile(device DeviceProfile) Option {
	return func(c *Client) {
		c.device = device
	}
}

// WithMCSAddress overrides the host:port dialled by Listen.
func WithMCSAddress(addr string) Option {
	return func(c *Client) {
		c.mcsAddr = addr
	}
}

// WithHeartbeatInterval sets how often Listen pings the MCS server.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.heartbeat = d
		}
	}
}

// Client manages check-in, token registration and MCS listening.
type Client struct {
	senderID   string
	appID      string
	device     DeviceProfile
	mcsAddr    string
	heartbeat  time.Duration
	logger     *slog.Logger
	httpClient *http.Client

	mu            sync.Mutex
	creds         *credentials
	persistentIDs []string

	// dialMCS is overridable for testing (returns a conn to MCS server).
	dialMCS func(ctx context.Context) (io.ReadWriteCloser, error)

	onToken        func(pushbridge.ProviderToken)
	onNotification func(pushbridge.Notification)
	onConnected    func()
	onDisconnected func()
	onError        func(error)
}

var _ pushbridge.Messaging = (*Client)(nil)

// NewClient creates a new Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		appID:      DefaultAppID,
		device:     DefaultDeviceProfile(),
		mcsAddr:    DefaultMCSAddress,
		heartbeat:  5 * time.Minute,
		logger:     slog.Default(),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnToken registers a callback for provider token issuance, rotation and
// invalidation. An invalidated token is reported as absent.
// Must be called before Register or Listen.
func (c *Client) OnToken(fn func(pushbridge.ProviderToken)) { c.onToken = fn }

// OnNotification registers a callback for incoming push notifications.
// Must be called before Listen().
func (c *Client) OnNotification(fn func(pushbridge.Notification)) { c.onNotification = fn }

// OnConnected registers a callback invoked when MCS connection is established.
// Must be called before Listen().
func (c *Client) OnConnected(fn func()) { c.onConnected = fn }

// OnDisconnected registers a callback invoked when MCS connection drops.
// Must be called before Listen().
func (c *Client) OnDisconnected(fn func()) { c.onDisconnected = fn }

// OnError registers a callback invoked for listener errors.
// Must be called before Listen().
func (c *Client) OnError(fn func(error)) { c.onError = fn }

// CurrentToken returns the current provider token (empty if not registered).
func (c *Client) CurrentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return ""
	}
	return c.creds.Token
}

// DeviceToken returns the device token derived from check-in, or nil
// before the first check-in.
func (c *Client) DeviceToken() pushbridge.DeviceToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return nil
	}
	return deviceTokenFor(c.creds.AndroidID, c.creds.SecurityToken)
}

// Checkin performs the device check-in once and returns the device token.
// Later calls return the same token without network access.
func (c *Client) Checkin(ctx context.Context) (pushbridge.DeviceToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkinLocked(ctx); err != nil {
		return nil, err
	}
	return deviceTokenFor(c.creds.AndroidID, c.creds.SecurityToken), nil
}

func (c *Client) checkinLocked(ctx context.Context) error {
	if c.creds != nil {
		return nil
	}
	c.logger.Debug("Starting device check-in")
	androidID, securityToken, err := checkin(ctx, c.debugClient(), 0, 0, c.device)
	if err != nil {
		return fmt.Errorf("device check-in failed: %w", err)
	}
	c.creds = &credentials{AndroidID: androidID, SecurityToken: securityToken}
	c.logger.Debug("Device check-in complete", "androidId", androidID)
	return nil
}

// Register obtains a provider token, checking in first if needed. An
// existing token is returned as-is. A newly issued token is also reported
// through OnToken.
func (c *Client) Register(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.creds != nil && c.creds.Token != "" {
		token := c.creds.Token
		c.mu.Unlock()
		return token, nil
	}
	token, err := c.registerLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return "", err
	}

	c.emitToken(pushbridge.NewProviderToken(token))
	return token, nil
}

func (c *Client) registerLocked(ctx context.Context) (string, error) {
	if c.senderID == "" {
		return "", fmt.Errorf("provider registration failed: no sender ID configured")
	}
	if err := c.checkinLocked(ctx); err != nil {
		return "", err
	}

	c.logger.Debug("Starting provider registration", "sender_id", c.senderID, "app", c.appID)
	token, err := register(ctx, c.debugClient(), *c.creds, c.senderID, c.appID, c.device)
	if err != nil {
		return "", fmt.Errorf("provider registration failed: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("provider registration returned empty token")
	}
	c.creds.Token = token
	c.logger.Info("Provider registration complete", "token_prefix", truncate(token, 20))
	return token, nil
}

// Token implements pushbridge.Messaging. It registers in the background
// and invokes complete once with the result.
func (c *Client) Token(complete func(token string, err error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), registerTimeout)
		defer cancel()
		token, err := c.Register(ctx)
		complete(token, err)
	}()
}

// Refresh discards the current token and registers for a new one. The
// result, or an absent token on failure, is reported through OnToken.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.creds != nil {
		c.creds.Token = ""
	}
	token, err := c.registerLocked(ctx)
	c.mu.Unlock()

	if err != nil {
		c.emitToken(pushbridge.NoProviderToken)
		return "", err
	}
	c.emitToken(pushbridge.NewProviderToken(token))
	return token, nil
}

// resetToken drops the current token and reports it as absent.
func (c *Client) resetToken() {
	c.mu.Lock()
	had := c.creds != nil && c.creds.Token != ""
	if c.creds != nil {
		c.creds.Token = ""
	}
	c.mu.Unlock()
	if had {
		c.emitToken(pushbridge.NoProviderToken)
	}
}

func (c *Client) emitToken(t pushbridge.ProviderToken) {
	if c.onToken != nil {
		c.onToken(t)
	}
}

// Listen connects to MCS and processes incoming push notifications.
// It blocks until ctx is cancelled. Call Register() first to ensure credentials exist.
func (c *Client) Listen(ctx context.Context) error {
	c.mu.Lock()
	if c.creds == nil {
		c.mu.Unlock()
		return fmt.Errorf("no provider credentials: call Register() first")
	}
	creds := *c.creds
	persistentIDs := make([]string, len(c.persistentIDs))
	copy(persistentIDs, c.persistentIDs)
	c.mu.Unlock()

	conn, err := c.dialMCSConn(ctx)
	if err != nil {
		return fmt.Errorf("MCS connect: %w", err)
	}

	session := newMCSConn(conn, creds, persistentIDs, c.logger)
	session.heartbeat = c.heartbeat
	session.onUp = func() {
		c.logger.Debug("MCS connected")
		if c.onConnected != nil {
			c.onConnected()
		}
	}
	session.onDown = func(reason string) {
		c.logger.Debug("MCS disconnected", "reason", reason)
		if c.onDisconnected != nil {
			c.onDisconnected()
		}
	}
	session.onData = func(msg dataMessage) {
		c.handleMCSMessage(ctx, msg)
	}

	return session.run(ctx)
}

// dialMCSConn dials the MCS address over TLS, or uses the test hook.
func (c *Client) dialMCSConn(ctx context.Context) (io.ReadWriteCloser, error) {
	if c.dialMCS != nil {
		return c.dialMCS(ctx)
	}
	dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: 30 * time.Second}}
	return dialer.DialContext(ctx, "tcp", c.mcsAddr)
}

// handleMCSMessage turns a data message into a notification, or handles
// it as an instance-ID control message.
func (c *Client) handleMCSMessage(ctx context.Context, msg dataMessage) {
	c.logger.Debug("MCS message received", "persistentId", msg.PersistentID, "from", msg.From)

	if msg.From == iidSender {
		c.handleIIDCommand(ctx, msg)
		c.addPersistentID(msg.PersistentID)
		return
	}

	if c.onNotification != nil {
		c.onNotification(pushbridge.NewNotification(decodePayload(msg)))
	}
	c.addPersistentID(msg.PersistentID)
}

// handleIIDCommand processes token reset commands: the current token is
// reported absent, then a new one is requested.
func (c *Client) handleIIDCommand(ctx context.Context, msg dataMessage) {
	var cmd string
	for _, kv := range msg.AppData {
		if kv.Key == "CMD" {
			cmd = kv.Value
		}
	}
	switch cmd {
	case "RST", "RST_FULL":
		c.logger.Info("Provider requested token reset", "cmd", cmd)
		c.resetToken()
		go func() {
			if _, err := c.Register(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("Re-registration after token reset failed", "error", err)
				if c.onError != nil {
					c.onError(err)
				}
			}
		}()
	default:
		c.logger.Debug("Ignoring instance-ID message", "cmd", cmd)
	}
}

// decodePayload builds the notification payload. AppData values stay the
// strings the provider sent. A raw_data JSON object becomes the payload
// with numbers kept as json.Number; any other raw_data body is passed
// through as a string under "raw_data".
func decodePayload(msg dataMessage) pushbridge.Payload {
	if len(msg.RawData) > 0 {
		if p, ok := decodeObject(msg.RawData); ok {
			return p
		}
	}

	p := make(pushbridge.Payload, len(msg.AppData)+1)
	for _, kv := range msg.AppData {
		p[kv.Key] = kv.Value
	}
	if len(msg.RawData) > 0 {
		p["raw_data"] = string(msg.RawData)
	}
	return p
}

func decodeObject(data []byte) (pushbridge.Payload, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var p pushbridge.Payload
	if err := dec.Decode(&p); err != nil || p == nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return p, true
}

// maxPersistentIDs is the maximum number of persistent IDs to keep.
// Older IDs are pruned to bound the login request.
const maxPersistentIDs = 200

// addPersistentID records an acknowledged message so a reconnect does not
// redeliver it.
func (c *Client) addPersistentID(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistentIDs = append(c.persistentIDs, id)
	if len(c.persistentIDs) > maxPersistentIDs {
		c.persistentIDs = c.persistentIDs[len(c.persistentIDs)-maxPersistentIDs:]
	}
}

// PersistentIDs returns the list of processed message IDs.
func (c *Client) PersistentIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.persistentIDs))
	copy(ids, c.persistentIDs)
	return ids
}
