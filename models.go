package pushbridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Payload is the string-keyed notification content. No schema is enforced.
type Payload map[string]any

// Clone returns a shallow copy. Nested values are shared.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	c := make(Payload, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Notification is a single remote notification as delivered by the host.
type Notification struct {
	ID         uuid.UUID `json:"id" yaml:"id"`
	Payload    Payload   `json:"payload" yaml:"payload"`
	ReceivedAt time.Time `json:"received_at" yaml:"received_at"`
}

// NewNotification stamps a payload with a fresh request identifier.
func NewNotification(payload Payload) Notification {
	return Notification{
		ID:         uuid.New(),
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
}

// Action identifiers carried by a NotificationResponse.
const (
	ActionDefault = "default"
	ActionDismiss = "dismiss"
)

// NotificationResponse is the user's interaction with a delivered notification.
type NotificationResponse struct {
	Notification Notification `json:"notification" yaml:"notification"`
	ActionID     string       `json:"action_id" yaml:"action_id"`
}

// PresentationOptions describes how a foreground notification is shown.
type PresentationOptions uint8

const (
	PresentBanner PresentationOptions = 1 << iota
	PresentList
	PresentSound
	PresentBadge
)

// DefaultPresentation is banner, list and sound.
const DefaultPresentation = PresentBanner | PresentList | PresentSound

// Has reports whether all bits of o are set.
func (p PresentationOptions) Has(o PresentationOptions) bool { return p&o == o }

func (p PresentationOptions) String() string {
	if p == 0 {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		opt  PresentationOptions
		name string
	}{
		{PresentBanner, "banner"},
		{PresentList, "list"},
		{PresentSound, "sound"},
		{PresentBadge, "badge"},
	} {
		if p.Has(f.opt) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// MarshalText renders the option set by name.
func (p PresentationOptions) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParsePresentationOptions parses the String form, e.g. "banner|sound".
// "none" and "" are the empty set.
func ParsePresentationOptions(s string) (PresentationOptions, error) {
	var p PresentationOptions
	if s == "" || s == "none" {
		return 0, nil
	}
	for _, part := range strings.Split(s, "|") {
		switch strings.TrimSpace(strings.ToLower(part)) {
		case "banner":
			p |= PresentBanner
		case "list":
			p |= PresentList
		case "sound":
			p |= PresentSound
		case "badge":
			p |= PresentBadge
		default:
			return 0, fmt.Errorf("unknown presentation option %q", part)
		}
	}
	return p, nil
}

// AuthorizationOptions is the permission set requested from the user.
type AuthorizationOptions uint8

const (
	AuthorizeAlert AuthorizationOptions = 1 << iota
	AuthorizeBadge
	AuthorizeSound
)

// DefaultAuthorization is alert, badge and sound.
const DefaultAuthorization = AuthorizeAlert | AuthorizeBadge | AuthorizeSound

// Has reports whether every option in o is set.
func (a AuthorizationOptions) Has(o AuthorizationOptions) bool { return a&o == o }

func (a AuthorizationOptions) String() string {
	if a == 0 {
		return "none"
	}
	var parts []string
	if a&AuthorizeAlert != 0 {
		parts = append(parts, "alert")
	}
	if a&AuthorizeBadge != 0 {
		parts = append(parts, "badge")
	}
	if a&AuthorizeSound != 0 {
		parts = append(parts, "sound")
	}
	return strings.Join(parts, "|")
}

// RegistrationOutcome is the terminal result of one registration attempt.
// Exactly one of Token and Err is set.
type RegistrationOutcome struct {
	Token DeviceToken
	Err   error
}

// Succeeded reports whether the attempt produced a device token.
func (o RegistrationOutcome) Succeeded() bool { return o.Err == nil }
