package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	pushbridge "github.com/slush-dev/push-bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiveNotification_Envelope(t *testing.T) {
	c := NewClient("http://hub.invalid/push")
	var got pushbridge.Notification
	c.OnNotification(func(n pushbridge.Notification) { got = n })

	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	(&receiver{c: c}).ReceiveNotification(json.RawMessage(`{"id":"550e8400-e29b-41d4-a716-446655440000","payload":{"msg":"hello"}}`))

	assert.Equal(t, id, got.ID)
	assert.Equal(t, pushbridge.Payload{"msg": "hello"}, got.Payload)
}

func TestReceiveNotification_BarePayload(t *testing.T) {
	c := NewClient("http://hub.invalid/push")
	var got pushbridge.Notification
	c.OnNotification(func(n pushbridge.Notification) { got = n })

	(&receiver{c: c}).ReceiveNotification(json.RawMessage(`{"id":5,"msg":"hello"}`))

	// "id" that is not an envelope stays in the payload untouched.
	assert.Equal(t, pushbridge.Payload{"id": float64(5), "msg": "hello"}, got.Payload)
	assert.NotEqual(t, uuid.Nil, got.ID)
}

func TestReceiveNotification_Invalid(t *testing.T) {
	tests := []string{`[1,2]`, `null`, `"text"`, `{"payload":[1]}`}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			c := NewClient("http://hub.invalid/push")
			var gotErr error
			c.OnError(func(err error) { gotErr = err })
			c.OnNotification(func(pushbridge.Notification) {
				t.Fatal("notification delivered for invalid input")
			})

			(&receiver{c: c}).ReceiveNotification(json.RawMessage(raw))
			assert.Error(t, gotErr)
		})
	}
}

func TestReceiveTokenRotation(t *testing.T) {
	c := NewClient("http://hub.invalid/push")
	var tokens []pushbridge.ProviderToken
	c.OnToken(func(tok pushbridge.ProviderToken) { tokens = append(tokens, tok) })

	r := &receiver{c: c}
	r.ReceiveTokenRotation(json.RawMessage(`"rotated-token"`))
	r.ReceiveTokenRotation(json.RawMessage(`null`))

	require.Len(t, tokens, 2)
	assert.True(t, tokens[0].Valid())
	assert.Equal(t, "rotated-token", tokens[0].Value())
	assert.False(t, tokens[1].Valid())
}

func TestReceiveTokenRotation_Invalid(t *testing.T) {
	c := NewClient("http://hub.invalid/push")
	var gotErr error
	c.OnError(func(err error) { gotErr = err })
	c.OnToken(func(pushbridge.ProviderToken) { t.Fatal("unexpected token") })

	(&receiver{c: c}).ReceiveTokenRotation(json.RawMessage(`42`))
	assert.Error(t, gotErr)
}

func TestNegotiate_Standard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/push/negotiate", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"connectionId":"conn-1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/push", WithAccessToken(func(context.Context) (string, error) {
		return "secret", nil
	}))
	wsURL, connID, headers, err := c.negotiate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "conn-1", connID)
	assert.Equal(t, "ws", wsURL.Scheme)
	assert.Equal(t, "/push", wsURL.Path)
	assert.Equal(t, "conn-1", wsURL.Query().Get("id"))
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
}

func TestNegotiate_Redirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":"https://relay.example.com/client/?hub=push","accessToken":"relay-token"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/push")
	wsURL, connID, headers, err := c.negotiate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "redirect", connID)
	assert.Equal(t, "wss", wsURL.Scheme)
	assert.Equal(t, "relay.example.com", wsURL.Host)
	assert.Equal(t, "Bearer relay-token", headers.Get("Authorization"))
}

func TestNegotiate_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/push")
	_, _, _, err := c.negotiate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negotiate failed")
	assert.Contains(t, err.Error(), "nope")
}

func TestNegotiate_TokenError(t *testing.T) {
	c := NewClient("http://hub.invalid/push", WithAccessToken(func(context.Context) (string, error) {
		return "", errors.New("expired")
	}))
	_, _, _, err := c.negotiate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestStopWithoutStart(t *testing.T) {
	c := NewClient("http://hub.invalid/push")
	closed := false
	c.OnClose(func() { closed = true })
	c.Stop()
	assert.True(t, closed)

	// Acknowledge before Start is a no-op.
	c.Acknowledge(uuid.New())
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := &slogAdapter{logger: logger}

	require.NoError(t, a.Log("level", "debug", "ts", "now", "state", 1, "odd"))
	require.NoError(t, a.Log())

	out := buf.String()
	assert.Contains(t, out, "state=1")
	assert.NotContains(t, out, "ts=now")
	assert.NotContains(t, out, "odd")
}
