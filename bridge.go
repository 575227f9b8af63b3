package pushbridge

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Platform is the OS notification layer the bridge drives at launch.
// Both calls return immediately; outcomes arrive through complete or
// through the Delegate callbacks.
type Platform interface {
	RequestAuthorization(opts AuthorizationOptions, complete func(granted bool, err error))
	RegisterForRemoteNotifications()
}

// Messaging is the push-delivery provider's client.
type Messaging interface {
	// Token fetches the current provider token. complete is invoked once,
	// possibly from another goroutine.
	Token(complete func(token string, err error))
}

// Delegate is the callback surface the host and provider invoke.
type Delegate interface {
	OnDeviceTokenReceived(token DeviceToken)
	OnDeviceTokenRegistrationFailed(err error)
	OnProviderTokenReceived(token ProviderToken)
	OnNotificationPresentationRequested(n Notification, complete func(PresentationOptions))
	OnNotificationInteraction(r NotificationResponse, complete func())
}

var _ Delegate = (*Bridge)(nil)

// Option configures Bridge.
type Option func(*Bridge)

// WithLogger sets the logger used for the bridge's own diagnostics.
// Events themselves go to the sink.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithPresentation overrides the directive returned for foreground
// notifications.
func WithPresentation(opts PresentationOptions) Option {
	return func(b *Bridge) {
		b.directive = opts
	}
}

// WithAuthorizationOptions overrides the permission set requested at launch.
func WithAuthorizationOptions(opts AuthorizationOptions) Option {
	return func(b *Bridge) {
		b.authOptions = opts
	}
}

// WithRequireAuthorization defers device registration until authorization
// is granted. A denial then ends the launch in StateRegistrationFailed.
func WithRequireAuthorization() Option {
	return func(b *Bridge) {
		b.requireAuth = true
	}
}

// withClock is used by tests.
func withClock(now func() time.Time) Option {
	return func(b *Bridge) {
		b.now = now
	}
}

// Bridge relays lifecycle callbacks to a Sink. It never starts goroutines;
// every method runs on the caller's goroutine and returns promptly.
type Bridge struct {
	platform  Platform
	messaging Messaging
	sink      Sink
	logger    *slog.Logger
	now       func() time.Time

	directive   PresentationOptions
	authOptions AuthorizationOptions
	requireAuth bool

	mu            sync.Mutex
	launched      bool
	state         State
	authorization Authorization
	deviceToken   DeviceToken
	providerToken ProviderToken
}

// New creates a Bridge. platform and messaging are only used by OnLaunch;
// either may be nil when the caller drives the callbacks itself.
func New(platform Platform, messaging Messaging, sink Sink, opts ...Option) *Bridge {
	if sink == nil {
		sink = MultiSink(nil)
	}
	b := &Bridge{
		platform:    platform,
		messaging:   messaging,
		sink:        sink,
		logger:      slog.Default(),
		now:         time.Now,
		directive:   DefaultPresentation,
		authOptions: DefaultAuthorization,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Authorization returns the recorded authorization outcome.
func (b *Bridge) Authorization() Authorization {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authorization
}

// DeviceToken returns a copy of the last device token, or nil.
func (b *Bridge) DeviceToken() DeviceToken {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deviceToken.Clone()
}

// ProviderToken returns the last provider token.
func (b *Bridge) ProviderToken() ProviderToken {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.providerToken
}

// OnLaunch performs one-time setup: it requests authorization, requests
// device registration and starts a provider token fetch whose result is
// returned as a future.
func (b *Bridge) OnLaunch() (*TokenFuture, error) {
	b.mu.Lock()
	if b.launched {
		b.mu.Unlock()
		return nil, ErrAlreadyLaunched
	}
	b.launched = true
	if b.state == StateUninitialized {
		b.state = StateAuthorizationRequested
	}
	b.mu.Unlock()

	b.logger.Debug("Bridge launching", "authorization", b.authOptions.String(), "require_authorization", b.requireAuth)

	if b.platform != nil {
		b.platform.RequestAuthorization(b.authOptions, b.authorizationCompleted)
		if !b.requireAuth {
			b.requestRegistration()
		}
	}

	future := newTokenFuture()
	if b.messaging == nil {
		future.resolve(NoProviderToken, fmt.Errorf("no messaging provider configured"))
		return future, nil
	}
	b.messaging.Token(func(token string, err error) {
		b.providerTokenFetched(future, token, err)
	})
	return future, nil
}

func (b *Bridge) authorizationCompleted(granted bool, err error) {
	b.mu.Lock()
	if granted {
		b.authorization = AuthorizationGranted
	} else {
		b.authorization = AuthorizationDenied
	}
	auth := b.authorization
	state := b.state
	b.mu.Unlock()

	if !granted && err == nil {
		err = ErrAuthorizationDenied
	}
	if granted {
		err = nil
	}
	b.emit(Event{Kind: EventAuthorization, State: state, Authorization: auth, Err: err})

	if !b.requireAuth {
		return
	}
	if granted {
		b.requestRegistration()
		return
	}
	b.OnDeviceTokenRegistrationFailed(fmt.Errorf("registration skipped: %w", ErrAuthorizationDenied))
}

func (b *Bridge) requestRegistration() {
	b.mu.Lock()
	if b.state == StateAuthorizationRequested {
		b.state = StateRegistrationPending
	}
	state := b.state
	b.mu.Unlock()

	b.emit(Event{Kind: EventRegistrationRequested, State: state})
	b.platform.RegisterForRemoteNotifications()
}

func (b *Bridge) providerTokenFetched(future *TokenFuture, token string, err error) {
	if err != nil {
		b.emit(Event{Kind: EventProviderTokenError, State: b.State(), Err: err})
		future.resolve(NoProviderToken, err)
		return
	}

	tok := NewProviderToken(token)
	b.mu.Lock()
	if tok.Valid() {
		b.providerToken = tok
	}
	state := b.state
	b.mu.Unlock()

	b.emit(Event{Kind: EventProviderTokenFetched, State: state, ProviderToken: tok})
	future.resolve(tok, nil)
}

// OnDeviceTokenReceived records the token and emits it in hex form.
func (b *Bridge) OnDeviceTokenReceived(token DeviceToken) {
	b.mu.Lock()
	b.deviceToken = token.Clone()
	b.state = StateRegistered
	b.mu.Unlock()

	b.emit(Event{Kind: EventDeviceToken, State: StateRegistered, DeviceToken: token.String()})
}

// OnDeviceTokenRegistrationFailed emits the failure. No retry is attempted;
// a later OnDeviceTokenReceived is processed normally.
func (b *Bridge) OnDeviceTokenRegistrationFailed(err error) {
	if err == nil {
		err = ErrRegistrationFailed
	} else {
		err = fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	b.mu.Lock()
	if b.state != StateRegistered {
		b.state = StateRegistrationFailed
	}
	state := b.state
	b.mu.Unlock()

	b.emit(Event{Kind: EventRegistrationFailed, State: state, Err: err})
}

// OnProviderTokenReceived records a new or revoked provider token. Each
// call fully replaces the previous token.
func (b *Bridge) OnProviderTokenReceived(token ProviderToken) {
	b.mu.Lock()
	b.providerToken = token
	if token.Valid() && b.state == StateRegistrationFailed {
		b.state = StateRegistered
	}
	state := b.state
	b.mu.Unlock()

	if !token.Valid() {
		b.logger.Debug("Provider token is absent")
	}
	b.emit(Event{Kind: EventProviderToken, State: state, ProviderToken: token})
}

// OnNotificationPresentationRequested emits the notification and invokes
// complete exactly once, before returning, with the configured directive.
func (b *Bridge) OnNotificationPresentationRequested(n Notification, complete func(PresentationOptions)) {
	b.emit(Event{
		Kind:           EventPresentation,
		State:          b.State(),
		NotificationID: n.ID,
		Payload:        n.Payload,
		Directive:      b.directive,
	})
	if complete != nil {
		complete(b.directive)
	}
}

// OnNotificationInteraction forwards the tapped notification's payload
// unchanged and invokes complete exactly once, before returning.
func (b *Bridge) OnNotificationInteraction(r NotificationResponse, complete func()) {
	b.emit(Event{
		Kind:           EventInteraction,
		State:          b.State(),
		NotificationID: r.Notification.ID,
		ActionID:       r.ActionID,
		Payload:        r.Notification.Payload,
	})
	if complete != nil {
		complete()
	}
}

func (b *Bridge) emit(e Event) {
	e.Time = b.now()
	b.sink.Emit(e)
}
