package platform

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	pushbridge "github.com/slush-dev/push-bridge"
	"github.com/slush-dev/push-bridge/center"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistrar struct {
	token pushbridge.DeviceToken
	err   error
}

func (r *fakeRegistrar) Checkin(ctx context.Context) (pushbridge.DeviceToken, error) {
	return r.token, r.err
}

type fakeMessaging struct {
	token string
}

func (m *fakeMessaging) Token(complete func(string, error)) {
	complete(m.token, nil)
}

// recordingPresenter collects presented notifications.
type recordingPresenter struct {
	mu    sync.Mutex
	shown []pushbridge.PresentationOptions
}

func (p *recordingPresenter) Present(_ pushbridge.Notification, opts pushbridge.PresentationOptions) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, opts)
}

func (p *recordingPresenter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.shown)
}

// stubDelegate lets a test decide when and how completions run.
type stubDelegate struct {
	present  func(n pushbridge.Notification, complete func(pushbridge.PresentationOptions))
	interact func(r pushbridge.NotificationResponse, complete func())
}

func (d *stubDelegate) OnDeviceTokenReceived(pushbridge.DeviceToken)    {}
func (d *stubDelegate) OnDeviceTokenRegistrationFailed(error)           {}
func (d *stubDelegate) OnProviderTokenReceived(pushbridge.ProviderToken) {}

func (d *stubDelegate) OnNotificationPresentationRequested(n pushbridge.Notification, complete func(pushbridge.PresentationOptions)) {
	d.present(n, complete)
}

func (d *stubDelegate) OnNotificationInteraction(r pushbridge.NotificationResponse, complete func()) {
	d.interact(r, complete)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func launch(t *testing.T, host *Host, opts ...pushbridge.Option) (*pushbridge.Bridge, *pushbridge.Recorder) {
	t.Helper()
	rec := pushbridge.NewRecorder(0)
	bridge := pushbridge.New(host, &fakeMessaging{token: "provider-1"}, rec, opts...)
	host.SetDelegate(bridge)

	future, err := bridge.OnLaunch()
	require.NoError(t, err)
	host.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = future.Wait(ctx)
	require.NoError(t, err)
	return bridge, rec
}

func TestHost_LaunchRegisters(t *testing.T) {
	host := NewHost(&fakeRegistrar{token: pushbridge.DeviceToken{0x1a, 0x2b}},
		WithAuthorizer(Grant()), WithLogger(discardLogger()))

	bridge, rec := launch(t, host)

	assert.Equal(t, pushbridge.StateRegistered, bridge.State())
	assert.Equal(t, pushbridge.AuthorizationGranted, host.Authorization())
	tokens := rec.Kind(pushbridge.EventDeviceToken)
	require.Len(t, tokens, 1)
	assert.Equal(t, "1a2b", tokens[0].DeviceToken)
}

func TestHost_RegistrationFailure(t *testing.T) {
	host := NewHost(&fakeRegistrar{err: errors.New("no network")},
		WithAuthorizer(Grant()), WithLogger(discardLogger()))

	bridge, rec := launch(t, host)

	assert.Equal(t, pushbridge.StateRegistrationFailed, bridge.State())
	failures := rec.Kind(pushbridge.EventRegistrationFailed)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Err, pushbridge.ErrRegistrationFailed)
	assert.Contains(t, failures[0].Err.Error(), "no network")
}

func TestHost_NoRegistrar(t *testing.T) {
	host := NewHost(nil, WithAuthorizer(Grant()), WithLogger(discardLogger()))

	_, rec := launch(t, host)

	failures := rec.Kind(pushbridge.EventRegistrationFailed)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Err, ErrNoRegistrar)
}

func TestHost_EmptyDeviceToken(t *testing.T) {
	host := NewHost(&fakeRegistrar{}, WithAuthorizer(Grant()), WithLogger(discardLogger()))

	bridge, _ := launch(t, host)
	assert.Equal(t, pushbridge.StateRegistrationFailed, bridge.State())
}

func TestHost_DeliverForeground(t *testing.T) {
	presenter := &recordingPresenter{}
	host := NewHost(&fakeRegistrar{token: pushbridge.DeviceToken{1}},
		WithAuthorizer(Grant()), WithPresenter(presenter), WithLogger(discardLogger()))
	_, rec := launch(t, host)

	n := pushbridge.NewNotification(pushbridge.Payload{"msg": "hello"})
	opts, err := host.Deliver(context.Background(), n, true)
	require.NoError(t, err)

	assert.Equal(t, pushbridge.DefaultPresentation, opts)
	assert.Equal(t, 1, presenter.count())
	events := rec.Kind(pushbridge.EventPresentation)
	require.Len(t, events, 1)
	assert.Equal(t, n.ID, events[0].NotificationID)
}

func TestHost_DeliverDeniedIsSilent(t *testing.T) {
	presenter := &recordingPresenter{}
	host := NewHost(&fakeRegistrar{token: pushbridge.DeviceToken{1}},
		WithAuthorizer(Deny()), WithPresenter(presenter), WithLogger(discardLogger()))
	bridge, rec := launch(t, host)

	// Denial does not block registration.
	assert.Equal(t, pushbridge.StateRegistered, bridge.State())
	assert.Equal(t, pushbridge.AuthorizationDenied, host.Authorization())

	opts, err := host.Deliver(context.Background(), pushbridge.NewNotification(pushbridge.Payload{"msg": "x"}), true)
	require.NoError(t, err)
	assert.Zero(t, opts)
	assert.Equal(t, 0, presenter.count())
	// The delegate was still consulted.
	assert.Len(t, rec.Kind(pushbridge.EventPresentation), 1)
}

func TestHost_DeliverRespectsAuthorizedOptions(t *testing.T) {
	presenter := &recordingPresenter{}
	host := NewHost(&fakeRegistrar{token: pushbridge.DeviceToken{1}},
		WithAuthorizer(Grant()), WithPresenter(presenter), WithLogger(discardLogger()))
	launch(t, host, pushbridge.WithAuthorizationOptions(pushbridge.AuthorizeAlert))

	opts, err := host.Deliver(context.Background(), pushbridge.NewNotification(nil), true)
	require.NoError(t, err)
	assert.Equal(t, pushbridge.PresentBanner|pushbridge.PresentList, opts)
}

func TestHost_DeliverBackgroundSkipsDelegate(t *testing.T) {
	presenter := &recordingPresenter{}
	host := NewHost(nil, WithAuthorizer(Grant()), WithPresenter(presenter), WithLogger(discardLogger()))
	host.SetDelegate(&stubDelegate{
		present: func(pushbridge.Notification, func(pushbridge.PresentationOptions)) {
			t.Error("delegate consulted for a background notification")
		},
	})
	host.RequestAuthorization(pushbridge.DefaultAuthorization, nil)
	host.Wait()

	opts, err := host.Deliver(context.Background(), pushbridge.NewNotification(nil), false)
	require.NoError(t, err)
	assert.Equal(t, pushbridge.DefaultPresentation, opts)
	assert.Equal(t, 1, presenter.count())
}

func TestHost_DeliverWindowExpiredDrops(t *testing.T) {
	presenter := &recordingPresenter{}
	host := NewHost(nil, WithAuthorizer(Grant()), WithPresenter(presenter),
		WithPresentationWindow(50*time.Millisecond), WithLogger(discardLogger()))

	late := make(chan func(pushbridge.PresentationOptions), 1)
	host.SetDelegate(&stubDelegate{
		present: func(_ pushbridge.Notification, complete func(pushbridge.PresentationOptions)) {
			late <- complete
		},
	})
	host.RequestAuthorization(pushbridge.DefaultAuthorization, nil)
	host.Wait()

	_, err := host.Deliver(context.Background(), pushbridge.NewNotification(nil), true)
	assert.ErrorIs(t, err, ErrWindowExpired)
	assert.Equal(t, 0, presenter.count())

	// A completion after the window is harmless.
	complete := <-late
	complete(pushbridge.DefaultPresentation)
	complete(pushbridge.DefaultPresentation)
	assert.Equal(t, 0, presenter.count())
}

func TestHost_DeliverWithoutDelegate(t *testing.T) {
	host := NewHost(nil, WithLogger(discardLogger()))
	_, err := host.Deliver(context.Background(), pushbridge.NewNotification(nil), true)
	assert.ErrorIs(t, err, ErrNoDelegate)
}

func TestHost_ActivateBroadcastsPayload(t *testing.T) {
	host := NewHost(&fakeRegistrar{token: pushbridge.DeviceToken{1}},
		WithAuthorizer(Grant()), WithLogger(discardLogger()))

	c := center.New()
	sub := c.Subscribe(pushbridge.DidReceiveRemoteNotification, 1)
	defer sub.Cancel()

	rec := pushbridge.NewRecorder(0)
	bridge := pushbridge.New(host, nil, pushbridge.MultiSink{rec, pushbridge.NewBroadcastSink(c)})
	host.SetDelegate(bridge)

	payload := pushbridge.Payload{"msg": "hello"}
	n := pushbridge.NewNotification(payload)
	require.NoError(t, host.Activate(context.Background(), n, ""))

	select {
	case post := <-sub.C:
		assert.Equal(t, map[string]any{"msg": "hello"}, post.UserInfo)
	case <-time.After(time.Second):
		t.Fatal("no broadcast")
	}
	events := rec.Kind(pushbridge.EventInteraction)
	require.Len(t, events, 1)
	assert.Equal(t, pushbridge.ActionDefault, events[0].ActionID)
}

func TestHost_ActivateWindowExpired(t *testing.T) {
	host := NewHost(nil, WithInteractionWindow(50*time.Millisecond), WithLogger(discardLogger()))
	host.SetDelegate(&stubDelegate{
		interact: func(pushbridge.NotificationResponse, func()) {},
	})

	err := host.Activate(context.Background(), pushbridge.NewNotification(nil), pushbridge.ActionDismiss)
	assert.ErrorIs(t, err, ErrWindowExpired)
}

func TestHost_ActivateCancelled(t *testing.T) {
	host := NewHost(nil, WithLogger(discardLogger()))
	host.SetDelegate(&stubDelegate{
		interact: func(pushbridge.NotificationResponse, func()) {},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := host.Activate(ctx, pushbridge.NewNotification(nil), "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrompt(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"yes word", "Yes\n", true},
		{"no", "n\n", false},
		{"empty line", "\n", false},
		{"eof", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			a := Prompt(strings.NewReader(tt.input), &out, time.Second)
			granted, err := a.Authorize(context.Background(), pushbridge.DefaultAuthorization)
			require.NoError(t, err)
			assert.Equal(t, tt.want, granted)
			assert.Contains(t, out.String(), "Allow notifications (alert|badge|sound)?")
		})
	}
}

func TestPrompt_TimeoutRefuses(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	var out bytes.Buffer
	a := Prompt(r, &out, 50*time.Millisecond)
	granted, err := a.Authorize(context.Background(), pushbridge.DefaultAuthorization)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Contains(t, out.String(), "No answer")
}

func TestWriterPresenter(t *testing.T) {
	var out bytes.Buffer
	p := NewWriterPresenter(&out)
	n := pushbridge.NewNotification(pushbridge.Payload{"msg": "hello"})

	p.Present(n, pushbridge.PresentBanner|pushbridge.PresentSound)

	line := out.String()
	assert.Contains(t, line, "[banner|sound]")
	assert.Contains(t, line, n.ID.String())
	assert.Contains(t, line, `{"msg":"hello"}`)
}
