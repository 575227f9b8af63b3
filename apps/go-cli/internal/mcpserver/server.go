package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	pushbridge "github.com/slush-dev/push-bridge"
	"github.com/slush-dev/push-bridge/apps/go-cli/internal/app"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	statusURI        = "pushbridge://status"
	eventsURI        = "pushbridge://events"
	notificationsURI = "pushbridge://notifications"
)

// updateBuffer is how many pending resource updates are queued before new
// ones are dropped.
const updateBuffer = 64

// BridgeMCPServer wraps an MCP server exposing a push bridge session as tools and resources.
type BridgeMCPServer struct {
	server  *mcp.Server
	session *app.Session
	logger  *slog.Logger

	updates chan pushbridge.Event

	listenMu     sync.Mutex
	listening    bool
	listenCancel context.CancelFunc
	listenErr    string
}

// New creates a BridgeMCPServer around a session built from cfg. stdin
// carries the protocol, so a terminal permission prompt always refuses.
func New(cfg app.Config, version string, logger *slog.Logger, opts ...app.Option) (*BridgeMCPServer, error) {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "push-bridge",
		Version: version,
	}, &mcp.ServerOptions{
		SubscribeHandler:   func(context.Context, *mcp.SubscribeRequest) error { return nil },
		UnsubscribeHandler: func(context.Context, *mcp.UnsubscribeRequest) error { return nil },
	})

	g := &BridgeMCPServer{
		server:  s,
		logger:  logger,
		updates: make(chan pushbridge.Event, updateBuffer),
	}

	base := []app.Option{
		app.WithLogger(logger),
		app.WithTerminal(eofReader{}, logWriter{logger}),
		app.WithSink(pushbridge.SinkFunc(g.queueUpdate)),
	}
	session, err := app.New(cfg, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	g.session = session

	g.registerResources()
	g.registerTools()
	go g.publishUpdates()

	return g, nil
}

// Run starts the MCP server on the given transport and blocks until done.
func (g *BridgeMCPServer) Run(ctx context.Context) error {
	defer g.stopListening()
	return g.server.Run(ctx, &mcp.StdioTransport{})
}

// RunWithTransport starts the MCP server on a custom transport (for testing).
func (g *BridgeMCPServer) RunWithTransport(ctx context.Context, t mcp.Transport) error {
	_, err := g.server.Connect(ctx, t, nil)
	return err
}

// queueUpdate is the session sink. It never blocks.
func (g *BridgeMCPServer) queueUpdate(e pushbridge.Event) {
	select {
	case g.updates <- e:
	default:
		g.logger.Debug("dropping resource update", "kind", e.Kind)
	}
}

func (g *BridgeMCPServer) publishUpdates() {
	for e := range g.updates {
		ctx := context.Background()
		g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{
			URI:  eventsURI,
			Meta: mcp.Meta{"kind": string(e.Kind)},
		})
		switch e.Kind {
		case pushbridge.EventPresentation:
			g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: notificationsURI})
		case pushbridge.EventInteraction:
		default:
			g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: statusURI})
		}
	}
}

// jsonResult marshals v to JSON and returns it as a text CallToolResult.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}

// errorResult returns a CallToolResult with IsError=true.
func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// eofReader answers every read with end of input.
type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// logWriter sends prompt and presentation text to the logger, since stdout
// carries the protocol.
type logWriter struct{ logger *slog.Logger }

func (w logWriter) Write(p []byte) (int, error) {
	if text := strings.TrimSpace(string(p)); text != "" {
		w.logger.Info(text)
	}
	return len(p), nil
}
