package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	pushbridge "github.com/slush-dev/push-bridge"
	"github.com/slush-dev/push-bridge/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// offline fails every HTTP request so no test reaches the network.
var offline = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
	return nil, errors.New("offline")
})}

func newSession(t *testing.T, cfg Config, opts ...Option) (*Session, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithHTTPClient(offline),
		WithTerminal(strings.NewReader(""), out),
	}
	s, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return s, out
}

func launch(t *testing.T, s *Session) *pushbridge.TokenFuture {
	t.Helper()
	future, err := s.Launch()
	require.NoError(t, err)
	s.Host.Wait()
	return future
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Presentation = "fireworks"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_HubOnlyWhenConfigured(t *testing.T) {
	s, _ := newSession(t, DefaultConfig())
	assert.Nil(t, s.Hub)

	cfg := DefaultConfig()
	cfg.HubURL = "https://hub.example.com/push"
	s, _ = newSession(t, cfg)
	assert.NotNil(t, s.Hub)
}

func TestLaunch_OfflineRegistrationFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Authorization = AuthorizeGrant
	s, _ := newSession(t, cfg)

	future := launch(t, s)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	token, err := future.Wait(ctx)
	assert.Error(t, err)
	assert.False(t, token.Valid())

	assert.Equal(t, pushbridge.StateRegistrationFailed, s.Bridge.State())
	assert.Equal(t, pushbridge.AuthorizationGranted, s.Bridge.Authorization())
	assert.Len(t, s.Recorder.Kind(pushbridge.EventRegistrationFailed), 1)

	st := s.Status()
	assert.Equal(t, pushbridge.StateRegistrationFailed, st.State)
	assert.Empty(t, st.DeviceToken)
	assert.False(t, st.Listening)
	assert.Equal(t, s.Recorder.Total(), st.Events)
	assert.Equal(t, int64(1), st.Metrics.Events[pushbridge.EventRegistrationFailed])

	_, err = s.Launch()
	assert.ErrorIs(t, err, pushbridge.ErrAlreadyLaunched)
}

func TestDeliverAndTap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Authorization = AuthorizeGrant
	s, out := newSession(t, cfg)
	launch(t, s)

	sub := s.Center.Subscribe(pushbridge.DidReceiveRemoteNotification, 1)
	defer sub.Cancel()

	ctx := context.Background()
	payload := pushbridge.Payload{"aps": map[string]any{"alert": "hi"}, "n": float64(1)}
	n, opts, err := s.Deliver(ctx, payload, true)
	require.NoError(t, err)
	assert.Equal(t, pushbridge.DefaultPresentation, opts)
	assert.Contains(t, out.String(), n.ID.String())

	require.NoError(t, s.Tap(ctx, n.ID, ""))
	select {
	case post := <-sub.C:
		assert.Equal(t, map[string]any(payload), post.UserInfo)
	case <-time.After(time.Second):
		t.Fatal("no broadcast")
	}

	err = s.Tap(ctx, uuid.New(), "")
	assert.ErrorIs(t, err, ErrUnknownNotification)
}

func TestDispatchDoesNotBlockTransport(t *testing.T) {
	release := make(chan struct{})
	slow := pushbridge.SinkFunc(func(e pushbridge.Event) {
		if e.Kind == pushbridge.EventPresentation {
			<-release
		}
	})
	cfg := DefaultConfig()
	cfg.Authorization = AuthorizeGrant
	s, _ := newSession(t, cfg, WithSink(slow))
	launch(t, s)

	acked := make(chan struct{})
	n := pushbridge.NewNotification(pushbridge.Payload{"k": "v"})

	returned := make(chan struct{})
	go func() {
		s.dispatch(n, func() { close(acked) })
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on the delegate")
	}
	assert.Len(t, s.Recent(), 1)

	close(release)
	select {
	case <-acked:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery not acknowledged")
	}
	s.deliveries.Wait()
}

func TestDeliver_Denied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Authorization = AuthorizeDeny
	s, out := newSession(t, cfg)
	launch(t, s)

	_, opts, err := s.Deliver(context.Background(), pushbridge.Payload{"k": "v"}, true)
	require.NoError(t, err)
	assert.Zero(t, opts)
	assert.Empty(t, out.String())
	assert.Len(t, s.Recorder.Kind(pushbridge.EventPresentation), 1)
}

func TestDeliver_ConfiguredPresentation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Presentation = "sound"
	s, _ := newSession(t, cfg, WithAuthorizer(platform.Grant()))
	launch(t, s)

	_, opts, err := s.Deliver(context.Background(), pushbridge.Payload{}, true)
	require.NoError(t, err)
	assert.Equal(t, pushbridge.PresentSound, opts)
}

func TestRecentIsBounded(t *testing.T) {
	s, _ := newSession(t, DefaultConfig())
	var first pushbridge.Notification
	for i := 0; i < maxRecent+5; i++ {
		n := pushbridge.NewNotification(pushbridge.Payload{"i": i})
		if i == 0 {
			first = n
		}
		s.remember(n)
	}
	recent := s.Recent()
	assert.Len(t, recent, maxRecent)
	_, ok := s.lookup(first.ID)
	assert.False(t, ok)
	_, ok = s.lookup(recent[len(recent)-1].ID)
	assert.True(t, ok)
}

func TestListen_RequiresSenderID(t *testing.T) {
	s, _ := newSession(t, DefaultConfig())
	err := s.Listen(context.Background())
	assert.Error(t, err)
	assert.False(t, s.Listening())
}
