package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	pushbridge "github.com/slush-dev/push-bridge"
	"github.com/slush-dev/push-bridge/center"
	"gopkg.in/yaml.v3"
)

// yamlOut prints data as a YAML document to stdout.
func yamlOut(data any) {
	writeYAML(os.Stdout, data)
}

func writeYAML(w io.Writer, data any) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	enc.Encode(data)
	enc.Close()
}

// eventRow is the YAML form of an event. Only fields relevant to the kind
// are included.
func eventRow(e pushbridge.Event) map[string]any {
	row := map[string]any{
		"event": string(e.Kind),
		"time":  e.Time,
		"state": e.State,
	}
	if e.DeviceToken != "" {
		row["device_token"] = e.DeviceToken
	}
	switch e.Kind {
	case pushbridge.EventProviderToken, pushbridge.EventProviderTokenFetched:
		row["provider_token"] = e.ProviderToken
	case pushbridge.EventAuthorization:
		row["authorization"] = e.Authorization
	case pushbridge.EventPresentation:
		row["notification_id"] = e.NotificationID.String()
		row["directive"] = e.Directive
		row["payload"] = e.Payload
	case pushbridge.EventInteraction:
		row["notification_id"] = e.NotificationID.String()
		row["action"] = e.ActionID
		row["payload"] = e.Payload
	}
	if e.Err != nil {
		row["error"] = e.Error()
	}
	return row
}

// eventPrinter writes bridge events as they happen. It is a pushbridge.Sink.
type eventPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	asYAML bool
}

func (p *eventPrinter) Emit(e pushbridge.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.asYAML {
		fmt.Fprintln(p.w, "---")
		writeYAML(p.w, eventRow(e))
		return
	}

	switch e.Kind {
	case pushbridge.EventAuthorization:
		fmt.Fprintf(p.w, ">> AUTHORIZATION %s\n", e.Authorization)
	case pushbridge.EventRegistrationRequested:
		fmt.Fprintln(p.w, ">> REGISTERING")
	case pushbridge.EventDeviceToken:
		fmt.Fprintf(p.w, ">> DEVICE TOKEN %s\n", e.DeviceToken)
	case pushbridge.EventRegistrationFailed:
		fmt.Fprintf(p.w, ">> REGISTRATION FAILED %s\n", e.Error())
	case pushbridge.EventProviderToken, pushbridge.EventProviderTokenFetched:
		fmt.Fprintf(p.w, ">> PROVIDER TOKEN %s\n", e.ProviderToken)
	case pushbridge.EventProviderTokenError:
		fmt.Fprintf(p.w, ">> PROVIDER TOKEN ERROR %s\n", e.Error())
	case pushbridge.EventPresentation:
		fmt.Fprintf(p.w, ">> PRESENT id=%s directive=%s\n", e.NotificationID, e.Directive)
	case pushbridge.EventInteraction:
		fmt.Fprintf(p.w, ">> TAP id=%s action=%s\n", e.NotificationID, e.ActionID)
	default:
		fmt.Fprintf(p.w, ">> %s\n", e.Kind)
	}
}

// printBroadcasts writes center posts until ctx is done or posts closes.
func (p *eventPrinter) printBroadcasts(ctx context.Context, posts <-chan center.Post) {
	for {
		select {
		case <-ctx.Done():
			return
		case post, ok := <-posts:
			if !ok {
				return
			}
			p.printPost(post)
		}
	}
}

func (p *eventPrinter) printPost(post center.Post) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.asYAML {
		fmt.Fprintln(p.w, "---")
		writeYAML(p.w, map[string]any{"broadcast": post.Name, "user_info": post.UserInfo})
		return
	}
	fmt.Fprintf(p.w, ">> BROADCAST %s %v\n", post.Name, post.UserInfo)
}
