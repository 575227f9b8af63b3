// Package app assembles the bridge, the host, the push transports and the
// observer sinks into one running Session.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	pushbridge "github.com/slush-dev/push-bridge"
	"github.com/slush-dev/push-bridge/center"
	"github.com/slush-dev/push-bridge/fcm"
	"github.com/slush-dev/push-bridge/hub"
	"github.com/slush-dev/push-bridge/metrics"
	"github.com/slush-dev/push-bridge/platform"
)

// ErrUnknownNotification means Tap was given an ID not seen recently.
var ErrUnknownNotification = errors.New("unknown notification")

// maxRecent is how many delivered notifications Tap can address.
const maxRecent = 64

// Option configures Session.
type Option func(*Session)

// WithLogger sets a custom logger for the session and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithSink adds an observer sink next to the built-in ones.
func WithSink(sink pushbridge.Sink) Option {
	return func(s *Session) {
		s.extra = append(s.extra, sink)
	}
}

// WithAuthorizer overrides the authorizer selected by Config.Authorization.
func WithAuthorizer(a platform.Authorizer) Option {
	return func(s *Session) {
		s.authorizer = a
	}
}

// WithTerminal sets where the permission prompt reads answers and where
// prompts and presented notifications are written.
func WithTerminal(in io.Reader, out io.Writer) Option {
	return func(s *Session) {
		s.in, s.out = in, out
	}
}

// WithHTTPClient sets the HTTP client used by the push transports.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Session) {
		s.httpClient = client
	}
}

// Session is a fully wired bridge.
type Session struct {
	Bridge   *pushbridge.Bridge
	Host     *platform.Host
	FCM      *fcm.Client
	Hub      *hub.Client
	Center   *center.Center
	Recorder *pushbridge.Recorder
	Metrics  *metrics.Sink

	cfg        Config
	logger     *slog.Logger
	extra      []pushbridge.Sink
	authorizer platform.Authorizer
	in         io.Reader
	out        io.Writer
	httpClient *http.Client

	mu         sync.Mutex
	recent     []pushbridge.Notification
	listening  bool
	deliveries sync.WaitGroup
}

// New assembles a Session from cfg. Nothing touches the network until
// Launch or Listen.
func New(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	directive, err := pushbridge.ParsePresentationOptions(cfg.Presentation)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:        cfg,
		logger:     slog.Default(),
		in:         os.Stdin,
		out:        os.Stderr,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.authorizer == nil {
		s.authorizer = authorizerFor(cfg, s.in, s.out)
	}

	fcmOpts := []fcm.Option{
		fcm.WithLogger(s.logger),
		fcm.WithHTTPClient(s.httpClient),
		fcm.WithSenderID(cfg.SenderID),
		fcm.WithHeartbeatInterval(cfg.Heartbeat),
	}
	if cfg.AppID != "" {
		fcmOpts = append(fcmOpts, fcm.WithAppID(cfg.AppID))
	}
	if cfg.MCSAddress != "" {
		fcmOpts = append(fcmOpts, fcm.WithMCSAddress(cfg.MCSAddress))
	}
	s.FCM = fcm.NewClient(fcmOpts...)

	s.Host = platform.NewHost(s.FCM,
		platform.WithLogger(s.logger),
		platform.WithAuthorizer(s.authorizer),
		platform.WithPresenter(platform.NewWriterPresenter(s.out)),
		platform.WithPresentationWindow(cfg.PresentationWindow),
		platform.WithInteractionWindow(cfg.InteractionWindow),
	)

	s.Center = center.New()
	s.Recorder = pushbridge.NewRecorder(pushbridge.DefaultRecorderSize)
	s.Metrics = metrics.NewSink()
	sinks := pushbridge.MultiSink{
		pushbridge.NewLogSink(s.logger),
		pushbridge.NewBroadcastSink(s.Center),
		s.Recorder,
		s.Metrics,
	}
	sinks = append(sinks, s.extra...)

	bridgeOpts := []pushbridge.Option{
		pushbridge.WithLogger(s.logger),
		pushbridge.WithPresentation(directive),
	}
	if cfg.RequireAuthorization {
		bridgeOpts = append(bridgeOpts, pushbridge.WithRequireAuthorization())
	}
	s.Bridge = pushbridge.New(s.Host, s.FCM, sinks, bridgeOpts...)
	s.Host.SetDelegate(s.Bridge)

	s.FCM.OnToken(s.Bridge.OnProviderTokenReceived)
	s.FCM.OnNotification(func(n pushbridge.Notification) {
		s.dispatch(n, nil)
	})
	s.FCM.OnError(func(err error) {
		s.logger.Warn("Push transport error", "error", err)
	})

	if cfg.HubURL != "" {
		hubOpts := []hub.Option{hub.WithLogger(s.logger), hub.WithHTTPClient(s.httpClient)}
		if cfg.HubToken != "" {
			token := cfg.HubToken
			hubOpts = append(hubOpts, hub.WithAccessToken(func(context.Context) (string, error) {
				return token, nil
			}))
		}
		s.Hub = hub.NewClient(cfg.HubURL, hubOpts...)
		s.Hub.OnToken(s.Bridge.OnProviderTokenReceived)
		s.Hub.OnNotification(func(n pushbridge.Notification) {
			s.dispatch(n, func() { s.Hub.Acknowledge(n.ID) })
		})
		s.Hub.OnError(func(err error) {
			s.logger.Warn("Hub error", "error", err)
		})
	}

	return s, nil
}

func authorizerFor(cfg Config, in io.Reader, out io.Writer) platform.Authorizer {
	switch cfg.Authorization {
	case AuthorizeGrant:
		return platform.Grant()
	case AuthorizeDeny:
		return platform.Deny()
	default:
		return platform.Prompt(in, out, cfg.PromptTimeout)
	}
}

// Config returns the configuration the session was built from.
func (s *Session) Config() Config { return s.cfg }

// Launch runs the bridge's one-time setup.
func (s *Session) Launch() (*pushbridge.TokenFuture, error) {
	return s.Bridge.OnLaunch()
}

// dispatch hands a transport notification to its own goroutine so the
// transport's read loop keeps serving frames and heartbeats while the host
// waits on the delegate. ack, if set, runs after a successful delivery.
func (s *Session) dispatch(n pushbridge.Notification, ack func()) {
	s.remember(n)
	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*platform.DefaultInteractionWindow)
		defer cancel()
		if _, err := s.Host.Deliver(ctx, n, !s.cfg.Background); err != nil {
			s.logger.Debug("Notification not delivered", "id", n.ID, "error", err)
			return
		}
		if ack != nil {
			ack()
		}
	}()
}

// Deliver injects a notification as if a transport had received it.
func (s *Session) Deliver(ctx context.Context, payload pushbridge.Payload, foreground bool) (pushbridge.Notification, pushbridge.PresentationOptions, error) {
	n := pushbridge.NewNotification(payload)
	s.remember(n)
	opts, err := s.Host.Deliver(ctx, n, foreground)
	return n, opts, err
}

// Tap reports a user interaction with a recently delivered notification.
func (s *Session) Tap(ctx context.Context, id uuid.UUID, actionID string) error {
	n, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNotification, id)
	}
	return s.Host.Activate(ctx, n, actionID)
}

func (s *Session) remember(n pushbridge.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, n)
	if len(s.recent) > maxRecent {
		s.recent = s.recent[len(s.recent)-maxRecent:]
	}
}

func (s *Session) lookup(id uuid.UUID) (pushbridge.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.recent) - 1; i >= 0; i-- {
		if s.recent[i].ID == id {
			return s.recent[i], true
		}
	}
	return pushbridge.Notification{}, false
}

// Recent returns the notifications Tap can address, oldest first.
func (s *Session) Recent() []pushbridge.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pushbridge.Notification, len(s.recent))
	copy(out, s.recent)
	return out
}

// Refresh drops the provider token and registers for a new one.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	return s.FCM.Refresh(ctx)
}

// Listening reports whether Listen is running.
func (s *Session) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Listen serves metrics if configured, starts the hub if configured, and
// receives push messages until ctx is cancelled.
func (s *Session) Listen(ctx context.Context) error {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return fmt.Errorf("already listening")
	}
	s.listening = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.listening = false
		s.mu.Unlock()
	}()
	defer s.deliveries.Wait()

	if s.cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: s.cfg.MetricsAddr, Handler: s.Metrics.Mux(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			s.logger.Info("Serving metrics", "addr", s.cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if s.Hub != nil {
		if err := s.Hub.Start(ctx); err != nil {
			return fmt.Errorf("hub: %w", err)
		}
		defer s.Hub.Stop()
	}

	if _, err := s.FCM.Register(ctx); err != nil {
		return err
	}
	return s.FCM.Listen(ctx)
}

// Status is a point-in-time view of the session.
type Status struct {
	State         pushbridge.State         `json:"state" yaml:"state"`
	Authorization pushbridge.Authorization `json:"authorization" yaml:"authorization"`
	DeviceToken   string                   `json:"device_token,omitempty" yaml:"device_token,omitempty"`
	ProviderToken pushbridge.ProviderToken `json:"provider_token" yaml:"provider_token"`
	Listening     bool                     `json:"listening" yaml:"listening"`
	Events        int                      `json:"events" yaml:"events"`
	Metrics       metrics.Snapshot         `json:"metrics" yaml:"-"`
}

// Status returns the current status.
func (s *Session) Status() Status {
	st := Status{
		State:         s.Bridge.State(),
		Authorization: s.Bridge.Authorization(),
		ProviderToken: s.Bridge.ProviderToken(),
		Listening:     s.Listening(),
		Events:        s.Recorder.Total(),
		Metrics:       s.Metrics.Snapshot(),
	}
	if tok := s.Bridge.DeviceToken(); len(tok) > 0 {
		st.DeviceToken = tok.String()
	}
	return st
}
