package pushbridge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDeviceTokenString(t *testing.T) {
	assert.Equal(t, "1a2b", DeviceToken{0x1A, 0x2B}.String())
	assert.Equal(t, "00ff0a", DeviceToken{0x00, 0xFF, 0x0A}.String())
	assert.Equal(t, "", DeviceToken(nil).String())
}

func TestDeviceTokenString_AllBytes(t *testing.T) {
	hexPattern := regexp.MustCompile(`^[0-9a-f]*$`)
	token := make(DeviceToken, 256)
	for i := range token {
		token[i] = byte(i)
	}

	s := token.String()
	assert.Len(t, s, 2*len(token))
	assert.Regexp(t, hexPattern, s)
	for i := range token {
		assert.Equal(t, fmt.Sprintf("%02x", i), s[2*i:2*i+2])
	}
}

func TestDeviceTokenClone(t *testing.T) {
	orig := DeviceToken{1, 2, 3}
	c := orig.Clone()
	c[0] = 9
	assert.Equal(t, byte(1), orig[0])
	assert.Nil(t, DeviceToken(nil).Clone())
}

func TestProviderToken(t *testing.T) {
	tok := NewProviderToken("abc")
	assert.True(t, tok.Valid())
	assert.Equal(t, "abc", tok.Value())
	assert.Equal(t, `"abc"`, tok.String())

	empty := NewProviderToken("")
	assert.False(t, empty.Valid())
	assert.Equal(t, NoProviderToken, empty)
	assert.Equal(t, "nil", empty.String())
	assert.True(t, empty.IsZero())
}

func TestProviderTokenMarshal(t *testing.T) {
	data, err := json.Marshal(map[string]ProviderToken{
		"present": NewProviderToken("tok"),
		"absent":  NoProviderToken,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"present":"tok","absent":null}`, string(data))

	out, err := yaml.Marshal(map[string]ProviderToken{"present": NewProviderToken("tok")})
	require.NoError(t, err)
	assert.Equal(t, "present: tok\n", string(out))
}

func TestPresentationOptionsString(t *testing.T) {
	assert.Equal(t, "banner|list|sound", DefaultPresentation.String())
	assert.Equal(t, "none", PresentationOptions(0).String())
	assert.True(t, DefaultPresentation.Has(PresentBanner|PresentSound))
	assert.False(t, DefaultPresentation.Has(PresentBadge))
	assert.Equal(t, "alert|badge|sound", DefaultAuthorization.String())
}

func TestParsePresentationOptions(t *testing.T) {
	p, err := ParsePresentationOptions("banner|list|sound")
	require.NoError(t, err)
	assert.Equal(t, DefaultPresentation, p)

	p, err = ParsePresentationOptions(" Badge | sound ")
	require.NoError(t, err)
	assert.Equal(t, PresentBadge|PresentSound, p)

	p, err = ParsePresentationOptions("none")
	require.NoError(t, err)
	assert.Zero(t, p)

	_, err = ParsePresentationOptions("banner|vibrate")
	assert.ErrorContains(t, err, "vibrate")

	assert.True(t, DefaultAuthorization.Has(AuthorizeAlert|AuthorizeSound))
	assert.False(t, AuthorizeAlert.Has(AuthorizeBadge))
}

func TestPayloadClone(t *testing.T) {
	p := Payload{"msg": "hello"}
	c := p.Clone()
	c["extra"] = 1
	assert.Len(t, p, 1)
	assert.Nil(t, Payload(nil).Clone())
}
