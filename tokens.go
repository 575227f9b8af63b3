package pushbridge

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// DeviceToken is the opaque identifier issued by the OS-level push transport.
type DeviceToken []byte

// String renders the token as lowercase hex, two zero-padded digits per byte.
func (t DeviceToken) String() string {
	return hex.EncodeToString(t)
}

// Clone returns a copy that does not share the underlying array.
func (t DeviceToken) Clone() DeviceToken {
	if t == nil {
		return nil
	}
	c := make(DeviceToken, len(t))
	copy(c, t)
	return c
}

// ProviderToken is the identifier issued by the push-delivery provider.
// The zero value means the provider has not issued a token, or has
// invalidated the previous one.
type ProviderToken struct {
	value string
	valid bool
}

// NewProviderToken wraps a provider-issued token. An empty string yields
// an absent token.
func NewProviderToken(s string) ProviderToken {
	if s == "" {
		return ProviderToken{}
	}
	return ProviderToken{value: s, valid: true}
}

// NoProviderToken is the absent token.
var NoProviderToken = ProviderToken{}

// Valid reports whether a token is present.
func (t ProviderToken) Valid() bool { return t.valid }

// Value returns the token string, empty when absent.
func (t ProviderToken) Value() string { return t.value }

// IsZero reports whether the token is absent.
func (t ProviderToken) IsZero() bool { return !t.valid }

// String quotes the token, or returns "nil" when absent.
func (t ProviderToken) String() string {
	if !t.valid {
		return "nil"
	}
	return strconv.Quote(t.value)
}

// MarshalYAML renders an absent token as null.
func (t ProviderToken) MarshalYAML() (any, error) {
	if !t.valid {
		return nil, nil
	}
	return t.value, nil
}

// MarshalJSON renders an absent token as null.
func (t ProviderToken) MarshalJSON() ([]byte, error) {
	if !t.valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.value)
}
