package pushbridge

import (
	"log/slog"
	"sync"

	"github.com/slush-dev/push-bridge/center"
)

// DidReceiveRemoteNotification is the broadcast name interaction payloads
// are posted under.
const DidReceiveRemoteNotification = "didReceiveRemoteNotification"

// Sink receives bridge events. Implementations must be safe for concurrent
// use and must not block the caller.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// MultiSink fans an event out to each sink in order.
type MultiSink []Sink

// Emit forwards e to every non-nil sink.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// LogSink writes every event to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit logs e at a level matching its kind.
func (s *LogSink) Emit(e Event) {
	switch e.Kind {
	case EventDeviceToken:
		s.logger.Info("Received device token", "token", e.DeviceToken)
	case EventRegistrationFailed:
		s.logger.Error("Failed to register for remote notifications", "error", e.Err)
	case EventProviderToken:
		s.logger.Info("Provider registration token", "token", e.ProviderToken.String())
	case EventProviderTokenFetched:
		s.logger.Info("Fetched provider registration token", "token", e.ProviderToken.String())
	case EventProviderTokenError:
		s.logger.Warn("Error fetching provider registration token", "error", e.Err)
	case EventAuthorization:
		if e.Err != nil {
			s.logger.Warn("Notification authorization", "result", e.Authorization, "error", e.Err)
		} else {
			s.logger.Info("Notification authorization", "result", e.Authorization)
		}
	case EventRegistrationRequested:
		s.logger.Debug("Requested remote notification registration")
	case EventPresentation:
		s.logger.Debug("Presenting notification", "id", e.NotificationID, "directive", e.Directive.String())
	case EventInteraction:
		s.logger.Info("Notification interaction", "id", e.NotificationID, "action", e.ActionID, "payload", map[string]any(e.Payload))
	default:
		s.logger.Debug("Bridge event", "kind", e.Kind)
	}
}

// BroadcastSink posts interaction payloads to a Center so other components
// can observe taps without depending on the bridge.
type BroadcastSink struct {
	center *center.Center
	name   string
}

// NewBroadcastSink posts under DidReceiveRemoteNotification.
func NewBroadcastSink(c *center.Center) *BroadcastSink {
	return &BroadcastSink{center: c, name: DidReceiveRemoteNotification}
}

// Emit posts interaction events and ignores the rest.
func (s *BroadcastSink) Emit(e Event) {
	if e.Kind != EventInteraction {
		return
	}
	s.center.Post(s.name, e.Payload)
}

// DefaultRecorderSize is the number of events a Recorder keeps when created
// with a non-positive size.
const DefaultRecorderSize = 256

// Recorder keeps the most recent events in memory.
type Recorder struct {
	mu     sync.Mutex
	size   int
	events []Event
	total  int
}

// NewRecorder creates a Recorder holding up to size events.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = DefaultRecorderSize
	}
	return &Recorder{size: size}
}

// Emit appends e, evicting the oldest event when full.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	if len(r.events) == r.size {
		copy(r.events, r.events[1:])
		r.events[len(r.events)-1] = e
		return
	}
	r.events = append(r.events, e)
}

// Events returns a copy of the retained events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kind returns the retained events of one kind, oldest first.
func (r *Recorder) Kind(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Total returns how many events were ever emitted, including evicted ones.
func (r *Recorder) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
