package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pushbridge "github.com/slush-dev/push-bridge"
)

var (
	// ErrWindowExpired means the delegate did not complete within the
	// host's window. A foreground notification is dropped in that case.
	ErrWindowExpired = errors.New("completion window expired")

	// ErrNoDelegate means no delegate was set before delivery.
	ErrNoDelegate = errors.New("no delegate set")

	// ErrNoRegistrar means RegisterForRemoteNotifications has no transport.
	ErrNoRegistrar = errors.New("no push transport configured")
)

const (
	DefaultPresentationWindow  = 5 * time.Second
	DefaultInteractionWindow   = 30 * time.Second
	DefaultRegistrationTimeout = 60 * time.Second
)

// Registrar performs device-level registration with the push transport
// and returns the device token.
type Registrar interface {
	Checkin(ctx context.Context) (pushbridge.DeviceToken, error)
}

// HostOption configures Host.
type HostOption func(*Host)

// WithLogger sets a custom logger for Host.
func WithLogger(logger *slog.Logger) HostOption {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithAuthorizer sets how permission requests are answered. The default
// refuses.
func WithAuthorizer(a Authorizer) HostOption {
	return func(h *Host) {
		h.authorizer = a
	}
}

// WithPresenter sets where presented notifications are shown.
func WithPresenter(p Presenter) HostOption {
	return func(h *Host) {
		h.presenter = p
	}
}

// WithPresentationWindow bounds how long Deliver waits for a directive.
func WithPresentationWindow(d time.Duration) HostOption {
	return func(h *Host) {
		if d > 0 {
			h.presentationWindow = d
		}
	}
}

// WithInteractionWindow bounds how long Activate waits for completion.
func WithInteractionWindow(d time.Duration) HostOption {
	return func(h *Host) {
		if d > 0 {
			h.interactionWindow = d
		}
	}
}

// WithRegistrationTimeout bounds device registration.
func WithRegistrationTimeout(d time.Duration) HostOption {
	return func(h *Host) {
		if d > 0 {
			h.registrationTimeout = d
		}
	}
}

// Host plays the OS notification layer for a pushbridge.Delegate.
type Host struct {
	registrar Registrar
	logger    *slog.Logger

	authorizer Authorizer
	presenter  Presenter

	presentationWindow  time.Duration
	interactionWindow   time.Duration
	registrationTimeout time.Duration

	mu            sync.Mutex
	delegate      pushbridge.Delegate
	authorization pushbridge.Authorization
	authOptions   pushbridge.AuthorizationOptions

	wg sync.WaitGroup
}

var _ pushbridge.Platform = (*Host)(nil)

// NewHost creates a Host. registrar may be nil, in which case every
// registration fails with ErrNoRegistrar.
func NewHost(registrar Registrar, opts ...HostOption) *Host {
	h := &Host{
		registrar:           registrar,
		logger:              slog.Default(),
		authorizer:          Deny(),
		presenter:           PresenterFunc(func(pushbridge.Notification, pushbridge.PresentationOptions) {}),
		presentationWindow:  DefaultPresentationWindow,
		interactionWindow:   DefaultInteractionWindow,
		registrationTimeout: DefaultRegistrationTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetDelegate sets the receiver of registration outcomes and deliveries.
func (h *Host) SetDelegate(d pushbridge.Delegate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delegate = d
}

func (h *Host) getDelegate() pushbridge.Delegate {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.delegate
}

// Authorization returns the recorded permission decision.
func (h *Host) Authorization() pushbridge.Authorization {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.authorization
}

// Wait blocks until background authorization and registration work has
// finished.
func (h *Host) Wait() {
	h.wg.Wait()
}

// RequestAuthorization asks the Authorizer in the background and invokes
// complete once with the answer. An Authorizer error counts as a refusal.
// The Authorizer bounds its own wait; Prompt refuses after its timeout.
func (h *Host) RequestAuthorization(opts pushbridge.AuthorizationOptions, complete func(granted bool, err error)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		granted, err := h.authorizer.Authorize(context.Background(), opts)
		if err != nil {
			granted = false
			h.logger.Warn("Authorization request failed", "error", err)
		}

		h.mu.Lock()
		h.authOptions = opts
		if granted {
			h.authorization = pushbridge.AuthorizationGranted
		} else {
			h.authorization = pushbridge.AuthorizationDenied
		}
		h.mu.Unlock()

		h.logger.Debug("Authorization decided", "granted", granted, "options", opts.String())
		if complete != nil {
			complete(granted, err)
		}
	}()
}

// RegisterForRemoteNotifications registers with the push transport in the
// background and reports exactly one outcome to the delegate.
func (h *Host) RegisterForRemoteNotifications() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		outcome := h.register()
		d := h.getDelegate()
		if d == nil {
			h.logger.Warn("Registration finished without a delegate", "error", outcome.Err)
			return
		}
		if outcome.Succeeded() {
			d.OnDeviceTokenReceived(outcome.Token)
			return
		}
		d.OnDeviceTokenRegistrationFailed(outcome.Err)
	}()
}

func (h *Host) register() pushbridge.RegistrationOutcome {
	if h.registrar == nil {
		return pushbridge.RegistrationOutcome{Err: ErrNoRegistrar}
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.registrationTimeout)
	defer cancel()

	token, err := h.registrar.Checkin(ctx)
	if err != nil {
		return pushbridge.RegistrationOutcome{Err: err}
	}
	if len(token) == 0 {
		return pushbridge.RegistrationOutcome{Err: fmt.Errorf("transport returned an empty device token")}
	}
	return pushbridge.RegistrationOutcome{Token: token}
}

// Deliver hands a notification to the app. A foreground notification asks
// the delegate for a directive and is dropped if none arrives within the
// presentation window. A background notification is presented with the
// default options without consulting the delegate. Without an
// authorization grant the presentation is silent. It returns the options
// actually used.
func (h *Host) Deliver(ctx context.Context, n pushbridge.Notification, foreground bool) (pushbridge.PresentationOptions, error) {
	opts := pushbridge.DefaultPresentation
	if foreground {
		d := h.getDelegate()
		if d == nil {
			return 0, ErrNoDelegate
		}

		directive := make(chan pushbridge.PresentationOptions, 1)
		var once sync.Once
		complete := func(o pushbridge.PresentationOptions) {
			called := false
			once.Do(func() {
				called = true
				directive <- o
			})
			if !called {
				h.logger.Warn("Presentation completion called more than once", "id", n.ID)
			}
		}
		go d.OnNotificationPresentationRequested(n, complete)

		var err error
		opts, err = await[pushbridge.PresentationOptions](ctx, directive, h.presentationWindow)
		if err != nil {
			h.logger.Warn("Dropping notification", "id", n.ID, "error", err)
			return 0, err
		}
	}

	opts = h.allowed(opts)
	if opts == 0 {
		h.logger.Debug("Notification delivered silently", "id", n.ID)
		return 0, nil
	}
	h.presenter.Present(n, opts)
	return opts, nil
}

// allowed strips what the recorded authorization does not permit.
func (h *Host) allowed(opts pushbridge.PresentationOptions) pushbridge.PresentationOptions {
	h.mu.Lock()
	auth, granted := h.authOptions, h.authorization == pushbridge.AuthorizationGranted
	h.mu.Unlock()

	if !granted {
		return 0
	}
	if !auth.Has(pushbridge.AuthorizeAlert) {
		opts &^= pushbridge.PresentBanner | pushbridge.PresentList
	}
	if !auth.Has(pushbridge.AuthorizeSound) {
		opts &^= pushbridge.PresentSound
	}
	if !auth.Has(pushbridge.AuthorizeBadge) {
		opts &^= pushbridge.PresentBadge
	}
	return opts
}

// Activate reports a user interaction with n and waits for the delegate to
// complete within the interaction window.
func (h *Host) Activate(ctx context.Context, n pushbridge.Notification, actionID string) error {
	d := h.getDelegate()
	if d == nil {
		return ErrNoDelegate
	}
	if actionID == "" {
		actionID = pushbridge.ActionDefault
	}

	done := make(chan struct{}, 1)
	var once sync.Once
	complete := func() {
		called := false
		once.Do(func() {
			called = true
			done <- struct{}{}
		})
		if !called {
			h.logger.Warn("Interaction completion called more than once", "id", n.ID)
		}
	}
	go d.OnNotificationInteraction(pushbridge.NotificationResponse{Notification: n, ActionID: actionID}, complete)

	if _, err := await[struct{}](ctx, done, h.interactionWindow); err != nil {
		h.logger.Warn("Interaction handling timed out", "id", n.ID, "action", actionID, "error", err)
		return err
	}
	return nil
}

// await waits for one value on ch for at most window.
func await[T any](ctx context.Context, ch <-chan T, window time.Duration) (T, error) {
	timer := time.NewTimer(window)
	defer timer.Stop()

	var zero T
	select {
	case v := <-ch:
		return v, nil
	case <-timer.C:
		return zero, ErrWindowExpired
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
