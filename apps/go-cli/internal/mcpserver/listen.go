package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func listenTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "listen",
		Description: "Start receiving push messages from the provider (and the hub, if configured). Returns immediately; events arrive as resource updates.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}
}

func (g *BridgeMCPServer) handleListen(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := g.session.Config()
	if cfg.SenderID == "" {
		return errorResult("no sender_id configured"), nil
	}

	g.listenMu.Lock()
	if g.listening {
		g.listenMu.Unlock()
		return jsonResult(map[string]any{"listening": true, "message": "already listening"})
	}
	listenCtx, cancel := context.WithCancel(context.Background())
	g.listening = true
	g.listenCancel = cancel
	g.listenErr = ""
	g.listenMu.Unlock()

	go g.runListenLoop(listenCtx)

	g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: statusURI})

	return jsonResult(map[string]any{"listening": true})
}

func stopTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "stop",
		Description: "Stop receiving push messages.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}
}

func (g *BridgeMCPServer) handleStop(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !g.stopListening() {
		return jsonResult(map[string]any{"listening": false, "message": "not listening"})
	}

	g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: statusURI})

	return jsonResult(map[string]any{"listening": false})
}

// stopListening cancels the listen loop and reports whether one was running.
func (g *BridgeMCPServer) stopListening() bool {
	g.listenMu.Lock()
	defer g.listenMu.Unlock()
	if !g.listening {
		return false
	}
	if g.listenCancel != nil {
		g.listenCancel()
	}
	g.listening = false
	return true
}

func (g *BridgeMCPServer) runListenLoop(ctx context.Context) {
	g.logger.Debug("listening for push messages")
	err := g.session.Listen(ctx)

	if ctx.Err() != nil {
		return
	}

	// The loop ended on its own rather than through stop.
	g.listenMu.Lock()
	if err != nil {
		g.listenErr = err.Error()
		g.logger.Error("listener stopped", "error", err)
	}
	g.listening = false
	if g.listenCancel != nil {
		g.listenCancel()
		g.listenCancel = nil
	}
	g.listenMu.Unlock()

	g.server.ResourceUpdated(context.Background(), &mcp.ResourceUpdatedNotificationParams{URI: statusURI})
}
