package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	pushbridge "github.com/slush-dev/push-bridge"
	"github.com/slush-dev/push-bridge/apps/go-cli/internal/app"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (g *BridgeMCPServer) registerResources() {
	g.server.AddResource(&mcp.Resource{
		URI:         statusURI,
		Name:        "Bridge Status",
		Description: "Registration state, authorization, device and provider tokens, listening state, and event counters",
		MIMEType:    "application/json",
	}, g.handleStatusResource)

	g.server.AddResource(&mcp.Resource{
		URI:         eventsURI,
		Name:        "Bridge Events",
		Description: "Recent lifecycle events forwarded by the bridge, oldest first",
		MIMEType:    "application/json",
	}, g.handleEventsResource)

	g.server.AddResource(&mcp.Resource{
		URI:         notificationsURI,
		Name:        "Recent Notifications",
		Description: "Delivered notifications that tap_notification can address",
		MIMEType:    "application/json",
	}, g.handleNotificationsResource)
}

type statusView struct {
	app.Status
	ListenError string `json:"listen_error,omitempty"`
}

func (g *BridgeMCPServer) handleStatusResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	g.listenMu.Lock()
	listenErr := g.listenErr
	g.listenMu.Unlock()

	return jsonResource(req.Params.URI, statusView{Status: g.session.Status(), ListenError: listenErr})
}

// eventView adds the error text that Event leaves out of its JSON form.
type eventView struct {
	pushbridge.Event
	ErrorText string `json:"error,omitempty"`
}

func viewEvents(events []pushbridge.Event) []eventView {
	out := make([]eventView, len(events))
	for i, e := range events {
		out[i] = eventView{Event: e, ErrorText: e.Error()}
	}
	return out
}

func (g *BridgeMCPServer) handleEventsResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, viewEvents(g.session.Recorder.Events()))
}

func (g *BridgeMCPServer) handleNotificationsResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, g.session.Recent())
}

// jsonResource marshals v to JSON and returns it as a ReadResourceResult.
func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
