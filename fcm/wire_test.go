package fcm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestWalkFields_SkipsUnknownFields(t *testing.T) {
	var b []byte
	b = appendString(b, 3, "sender")
	b = appendFixed64(b, 50, 7)
	b = protowire.AppendTag(b, 51, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 9)
	b = appendString(b, 9, "pid-1")

	msg, err := unmarshalDataMessage(b)
	require.NoError(t, err)
	assert.Equal(t, "sender", msg.From)
	assert.Equal(t, "pid-1", msg.PersistentID)
}

func TestWalkFields_Truncated(t *testing.T) {
	b := appendString(nil, 3, "sender")
	_, err := unmarshalDataMessage(b[:len(b)-2])
	assert.Error(t, err)
}

func TestDataMessage_AppDataOrder(t *testing.T) {
	in := dataMessage{
		From:         "123",
		PersistentID: "0:1",
		AppData: []appData{
			{Key: "b", Value: "2"},
			{Key: "a", Value: "1"},
		},
		RawData: []byte(`{"x":1}`),
	}

	out, err := unmarshalDataMessage(in.marshal())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLoginResponse_Error(t *testing.T) {
	in := loginResponse{ID: "s", ErrorCode: 401, ErrorMessage: "bad token"}
	out, err := unmarshalLoginResponse(in.marshal())
	require.NoError(t, err)
	assert.Equal(t, in, out)

	ok, err := unmarshalLoginResponse(loginResponse{ID: "s"}.marshal())
	require.NoError(t, err)
	assert.Zero(t, ok.ErrorCode)
}

func TestCheckinResponse_Fixed64(t *testing.T) {
	in := checkinResponse{StatsOK: true, AndroidID: 1<<63 + 5, SecurityToken: 42}
	out, err := unmarshalCheckinResponse(in.marshal())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
