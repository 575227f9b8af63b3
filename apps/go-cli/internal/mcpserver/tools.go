package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	pushbridge "github.com/slush-dev/push-bridge"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// defaultLaunchWait bounds how long launch waits for the provider token.
const defaultLaunchWait = 10 * time.Second

func (g *BridgeMCPServer) registerTools() {
	// Lifecycle tools
	g.server.AddTool(launchTool(), g.handleLaunch)
	g.server.AddTool(refreshTokenTool(), g.handleRefreshToken)

	// Notification tools
	g.server.AddTool(deliverNotificationTool(), g.handleDeliverNotification)
	g.server.AddTool(tapNotificationTool(), g.handleTapNotification)

	// Listen tools
	g.server.AddTool(listenTool(), g.handleListen)
	g.server.AddTool(stopTool(), g.handleStop)
}

// --- Lifecycle tools ---

func launchTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "launch",
		Description: "Run the bridge's one-time launch: request notification authorization, register the device, and fetch the provider token. Can only be called once.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"wait_seconds": {"type": "integer", "description": "Seconds to wait for the provider token (default: 10)"}
			}
		}`),
	}
}

func (g *BridgeMCPServer) handleLaunch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		WaitSeconds int `json:"wait_seconds"`
	}
	if req.Params.Arguments != nil {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
	}
	wait := defaultLaunchWait
	if args.WaitSeconds > 0 {
		wait = time.Duration(args.WaitSeconds) * time.Second
	}

	future, err := g.session.Launch()
	if err != nil {
		return errorResult(err.Error()), nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	token, err := future.Wait(waitCtx)

	result := map[string]any{
		"state":          g.session.Bridge.State(),
		"provider_token": token,
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result["pending"] = true
	case err != nil:
		result["error"] = err.Error()
	}
	return jsonResult(result)
}

func refreshTokenTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "refresh_token",
		Description: "Discard the current provider token and register for a new one. The bridge reports the rotation as a provider_token event.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}
}

func (g *BridgeMCPServer) handleRefreshToken(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := g.session.Refresh(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("refreshing token: %v", err)), nil
	}
	return jsonResult(map[string]any{"provider_token": token})
}

// --- Notification tools ---

func deliverNotificationTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "deliver_notification",
		Description: "Deliver a notification with the given payload as if the push provider had sent it. Returns the notification ID for tap_notification.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"payload": {"type": "object", "description": "Notification payload, passed through unchanged"},
				"foreground": {"type": "boolean", "description": "Deliver while the app is in the foreground (default: true)"}
			},
			"required": ["payload"]
		}`),
	}
}

func (g *BridgeMCPServer) handleDeliverNotification(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Payload    map[string]any `json:"payload"`
		Foreground *bool          `json:"foreground"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Payload == nil {
		return errorResult("payload is required"), nil
	}
	foreground := true
	if args.Foreground != nil {
		foreground = *args.Foreground
	}

	n, opts, err := g.session.Deliver(ctx, pushbridge.Payload(args.Payload), foreground)
	result := map[string]any{
		"id":         n.ID.String(),
		"foreground": foreground,
		"presented":  opts.String(),
	}
	if err != nil {
		result["dropped"] = true
		result["error"] = err.Error()
	}
	return jsonResult(result)
}

func tapNotificationTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "tap_notification",
		Description: "Report a user interaction with a delivered notification. Its payload is broadcast as didReceiveRemoteNotification.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"id": {"type": "string", "description": "Notification ID returned by deliver_notification"},
				"action": {"type": "string", "description": "Action identifier (default: default; use dismiss for a dismissal)"}
			},
			"required": ["id"]
		}`),
	}
}

func (g *BridgeMCPServer) handleTapNotification(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ID     string `json:"id"`
		Action string `json:"action"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	id, err := uuid.Parse(args.ID)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid notification ID: %v", err)), nil
	}
	action := args.Action
	if action == "" {
		action = pushbridge.ActionDefault
	}

	if err := g.session.Tap(ctx, id, action); err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(map[string]any{"id": id.String(), "action": action})
}
