package fcm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
)

// debugClient wraps the HTTP client so every provider exchange is logged
// when the logger has Debug enabled.
func (c *Client) debugClient() *http.Client {
	if !c.logger.Enabled(context.Background(), slog.LevelDebug) {
		return c.httpClient
	}
	next := c.httpClient.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	return &http.Client{
		Transport: &debugTransport{next: next, logger: c.logger},
		Timeout:   c.httpClient.Timeout,
	}
}

// debugTransport logs each exchange on one line. Check-in bodies are
// protobuf and are logged by size only; text replies are logged with any
// issued token masked.
type debugTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func (t *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	attrs := []any{"method", req.Method, "url", req.URL.Redacted(), "request_bytes", req.ContentLength}

	resp, err := t.next.RoundTrip(req)
	attrs = append(attrs, "elapsed", time.Since(start))
	if err != nil {
		t.logger.Debug("Provider request failed", append(attrs, "error", err)...)
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", req.URL.Path, err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	attrs = append(attrs, "status", resp.StatusCode, "response_bytes", len(body))
	if isText(resp.Header.Get("Content-Type")) {
		attrs = append(attrs, "response", maskToken(truncate(string(body), 512)))
	}
	t.logger.Debug("Provider request", attrs...)
	return resp, nil
}

func isText(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "text/") || mediaType == "application/json" || mediaType == "application/x-www-form-urlencoded"
}

// maskToken keeps the first characters of a "token=" value.
func maskToken(s string) string {
	i := strings.Index(s, "token=")
	if i < 0 {
		return s
	}
	start := i + len("token=")
	end := start + strings.IndexAny(s[start:]+"\n", "&\n")
	if end-start <= 8 {
		return s
	}
	return s[:start+8] + "..." + s[end:]
}

// truncate returns the first maxLen bytes of s.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
