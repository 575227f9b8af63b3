package fcm

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugClient_PlainWhenDebugDisabled(t *testing.T) {
	client := NewClient(WithLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))))
	assert.Same(t, client.httpClient, client.debugClient())
}

func TestDebugTransport_LogsExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "token=abcdefghijklmnopqrstuvwxyz")
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := NewClient(WithLogger(logger), WithHTTPClient(srv.Client()))

	resp, err := client.debugClient().Post(srv.URL+"/c2dm/register3", "application/x-www-form-urlencoded", strings.NewReader("app=x"))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "token=abcdefghijklmnopqrstuvwxyz", string(body), "body is readable after logging")

	out := buf.String()
	assert.Contains(t, out, "Provider request")
	assert.Contains(t, out, "status=200")
	assert.Contains(t, out, "request_bytes=5")
	assert.Contains(t, out, "token=abcdefgh...")
	assert.NotContains(t, out, "ijklmnop")
}

func TestDebugTransport_BinaryBodySizeOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write([]byte{0x08, 0x01})
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := NewClient(WithLogger(logger), WithHTTPClient(srv.Client()))

	resp, err := client.debugClient().Get(srv.URL + "/checkin")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Contains(t, buf.String(), "response_bytes=2")
	assert.NotContains(t, buf.String(), "response=")
}

func TestMaskToken(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Error=PHONE_REGISTRATION_ERROR", "Error=PHONE_REGISTRATION_ERROR"},
		{"token=short", "token=short"},
		{"token=0123456789abcdef", "token=01234567..."},
		{"token=0123456789abcdef&x=1", "token=01234567...&x=1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskToken(tt.in), tt.in)
	}
}
