package pushbridge

// State is the bridge's position in the registration lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateAuthorizationRequested
	StateRegistrationPending
	StateRegistered
	StateRegistrationFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAuthorizationRequested:
		return "authorization_requested"
	case StateRegistrationPending:
		return "registration_pending"
	case StateRegistered:
		return "registered"
	case StateRegistrationFailed:
		return "registration_failed"
	default:
		return "unknown"
	}
}

// MarshalText lets State render by name in JSON and YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Authorization is the recorded outcome of the permission request.
type Authorization int

const (
	AuthorizationNotDetermined Authorization = iota
	AuthorizationGranted
	AuthorizationDenied
)

func (a Authorization) String() string {
	switch a {
	case AuthorizationGranted:
		return "granted"
	case AuthorizationDenied:
		return "denied"
	default:
		return "not_determined"
	}
}

// MarshalText lets Authorization render by name in JSON and YAML.
func (a Authorization) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
