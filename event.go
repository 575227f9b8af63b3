package pushbridge

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names a lifecycle event forwarded to sinks.
type EventKind string

const (
	EventAuthorization         EventKind = "authorization"
	EventRegistrationRequested EventKind = "registration_requested"
	EventDeviceToken           EventKind = "device_token"
	EventRegistrationFailed    EventKind = "registration_failed"
	EventProviderToken         EventKind = "provider_token"
	EventProviderTokenFetched  EventKind = "provider_token_fetched"
	EventProviderTokenError    EventKind = "provider_token_error"
	EventPresentation          EventKind = "presentation_requested"
	EventInteraction           EventKind = "interaction"
)

// Event is what the bridge hands to its sink. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind  EventKind `json:"kind" yaml:"kind"`
	Time  time.Time `json:"time" yaml:"time"`
	State State     `json:"state" yaml:"state"`

	DeviceToken   string        `json:"device_token,omitempty" yaml:"device_token,omitempty"`
	ProviderToken ProviderToken `json:"provider_token,omitzero" yaml:"provider_token,omitempty"`
	Authorization Authorization `json:"authorization,omitzero" yaml:"authorization,omitempty"`

	NotificationID uuid.UUID           `json:"notification_id,omitzero" yaml:"notification_id,omitempty"`
	ActionID       string              `json:"action_id,omitempty" yaml:"action_id,omitempty"`
	Payload        Payload             `json:"payload,omitempty" yaml:"payload,omitempty"`
	Directive      PresentationOptions `json:"directive,omitzero" yaml:"directive,omitempty"`

	Err error `json:"-" yaml:"-"`
}

// Error returns the event's error text, or "" when there is none.
func (e Event) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
