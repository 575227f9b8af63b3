package fcm

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// The provider speaks protobuf on the check-in endpoint and on the MCS
// socket. Only the fields this client reads or writes are modelled; field
// numbers follow checkin.proto and mcs.proto.

type fieldValue struct {
	u uint64
	b []byte
}

func (v fieldValue) str() string { return string(v.b) }

// walkFields calls fn for each top-level field in b. Group-typed fields are
// skipped.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v fieldValue) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("proto tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		var v fieldValue
		switch typ {
		case protowire.VarintType:
			v.u, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			v.u, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var u32 uint32
			u32, n = protowire.ConsumeFixed32(b)
			v.u = uint64(u32)
		case protowire.BytesType:
			v.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("proto field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("proto field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(num, typ, v); err != nil {
			return err
		}
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendFixed64(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

// --- check-in ---

// checkinRequest is AndroidCheckinRequest with its nested build proto
// flattened into DeviceProfile.
type checkinRequest struct {
	ID            uint64
	SecurityToken uint64
	Device        DeviceProfile
	Locale        string
	TimeZone      string
	Version       int32
}

func (r checkinRequest) marshal() []byte {
	var build []byte
	build = appendString(build, 1, r.Device.Fingerprint)
	build = appendString(build, 2, r.Device.Hardware)
	build = appendString(build, 3, r.Device.Brand)
	build = appendString(build, 6, r.Device.ClientID)
	build = appendVarint(build, 8, uint64(r.Device.ClientVersion))
	build = appendString(build, 9, r.Device.Device)
	build = appendVarint(build, 10, uint64(r.Device.SDKVersion))
	build = appendString(build, 11, r.Device.Model)
	build = appendString(build, 12, r.Device.Manufacturer)

	var checkin []byte
	checkin = appendBytes(checkin, 1, build)
	checkin = appendVarint(checkin, 12, deviceTypeAndroidOS)

	var b []byte
	if r.ID != 0 {
		b = appendVarint(b, 2, r.ID)
	}
	b = appendBytes(b, 4, checkin)
	b = appendString(b, 6, r.Locale)
	b = appendString(b, 12, r.TimeZone)
	if r.SecurityToken != 0 {
		b = appendFixed64(b, 13, r.SecurityToken)
	}
	b = appendVarint(b, 14, uint64(r.Version))
	return b
}

func unmarshalCheckinRequest(data []byte) (checkinRequest, error) {
	var r checkinRequest
	err := walkFields(data, func(num protowire.Number, _ protowire.Type, v fieldValue) error {
		switch num {
		case 2:
			r.ID = v.u
		case 4:
			return walkFields(v.b, func(num protowire.Number, _ protowire.Type, v fieldValue) error {
				if num != 1 {
					return nil
				}
				return walkFields(v.b, func(num protowire.Number, _ protowire.Type, v fieldValue) error {
					switch num {
					case 1:
						r.Device.Fingerprint = v.str()
					case 2:
						r.Device.Hardware = v.str()
					case 3:
						r.Device.Brand = v.str()
					case 6:
						r.Device.ClientID = v.str()
					case 8:
						r.Device.ClientVersion = int(v.u)
					case 9:
						r.Device.Device = v.str()
					case 10:
						r.Device.SDKVersion = int(v.u)
					case 11:
						r.Device.Model = v.str()
					case 12:
						r.Device.Manufacturer = v.str()
					}
					return nil
				})
			})
		case 6:
			r.Locale = v.str()
		case 12:
			r.TimeZone = v.str()
		case 13:
			r.SecurityToken = v.u
		case 14:
			r.Version = int32(v.u)
		}
		return nil
	})
	return r, err
}

type checkinResponse struct {
	StatsOK       bool
	AndroidID     uint64
	SecurityToken uint64
}

func (r checkinResponse) marshal() []byte {
	var b []byte
	b = appendBool(b, 1, r.StatsOK)
	b = appendFixed64(b, 7, r.AndroidID)
	b = appendFixed64(b, 8, r.SecurityToken)
	return b
}

func unmarshalCheckinResponse(data []byte) (checkinResponse, error) {
	var r checkinResponse
	err := walkFields(data, func(num protowire.Number, _ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			r.StatsOK = protowire.DecodeBool(v.u)
		case 7:
			r.AndroidID = v.u
		case 8:
			r.SecurityToken = v.u
		}
		return nil
	})
	return r, err
}

// --- MCS stanzas ---

type setting struct {
	Name  string
	Value string
}

type loginRequest struct {
	ID                    string
	Domain                string
	User                  string
	Resource              string
	AuthToken             string
	DeviceID              string
	LastRmqID             int64
	Settings              []setting
	ReceivedPersistentIDs []string
	AdaptiveHeartbeat     bool
	UseRmq2               bool
	AccountID             int64
	AuthService           int32
	NetworkType           int32
}

func (r loginRequest) marshal() []byte {
	var b []byte
	b = appendString(b, 1, r.ID)
	b = appendString(b, 2, r.Domain)
	b = appendString(b, 3, r.User)
	b = appendString(b, 4, r.Resource)
	b = appendString(b, 5, r.AuthToken)
	b = appendString(b, 6, r.DeviceID)
	b = appendVarint(b, 7, uint64(r.LastRmqID))
	for _, s := range r.Settings {
		var sb []byte
		sb = appendString(sb, 1, s.Name)
		sb = appendString(sb, 2, s.Value)
		b = appendBytes(b, 8, sb)
	}
	for _, id := range r.ReceivedPersistentIDs {
		b = appendString(b, 10, id)
	}
	b = appendBool(b, 12, r.AdaptiveHeartbeat)
	b = appendBool(b, 14, r.UseRmq2)
	b = appendVarint(b, 15, uint64(r.AccountID))
	b = appendVarint(b, 16, uint64(r.AuthService))
	b = appendVarint(b, 17, uint64(r.NetworkType))
	return b
}

func unmarshalLoginRequest(data []byte) (loginRequest, error) {
	var r loginRequest
	err := walkFields(data, func(num protowire.Number, _ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			r.ID = v.str()
		case 2:
			r.Domain = v.str()
		case 3:
			r.User = v.str()
		case 4:
			r.Resource = v.str()
		case 5:
			r.AuthToken = v.str()
		case 6:
			r.DeviceID = v.str()
		case 7:
			r.LastRmqID = int64(v.u)
		case 8:
			var s setting
			if err := walkFields(v.b, func(num protowire.Number, _ protowire.Type, v fieldValue) error {
				switch num {
				case 1:
					s.Name = v.str()
				case 2:
					s.Value = v.str()
				}
				return nil
			}); err != nil {
				return err
			}
			r.Settings = append(r.Settings, s)
		case 10:
			r.ReceivedPersistentIDs = append(r.ReceivedPersistentIDs, v.str())
		case 12:
			r.AdaptiveHeartbeat = protowire.DecodeBool(v.u)
		case 14:
			r.UseRmq2 = protowire.DecodeBool(v.u)
		case 15:
			r.AccountID = int64(v.u)
		case 16:
			r.AuthService = int32(v.u)
		case 17:
			r.NetworkType = int32(v.u)
		}
		return nil
	})
	return r, err
}

type loginResponse struct {
	ID           string
	ErrorCode    int32
	ErrorMessage string
}

func (r loginResponse) marshal() []byte {
	var b []byte
	b = appendString(b, 1, r.ID)
	if r.ErrorCode != 0 || r.ErrorMessage != "" {
		var eb []byte
		eb = appendVarint(eb, 1, uint64(r.ErrorCode))
		eb = appendString(eb, 2, r.ErrorMessage)
		b = appendBytes(b, 3, eb)
	}
	return b
}

func unmarshalLoginResponse(data []byte) (loginResponse, error) {
	var r loginResponse
	err := walkFields(data, func(num protowire.Number, _ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			r.ID = v.str()
		case 3:
			return walkFields(v.b, func(num protowire.Number, _ protowire.Type, v fieldValue) error {
				switch num {
				case 1:
					r.ErrorCode = int32(v.u)
				case 2:
					r.ErrorMessage = v.str()
				}
				return nil
			})
		}
		return nil
	})
	return r, err
}

// heartbeat is both HeartbeatPing and HeartbeatAck; they share a layout.
type heartbeat struct {
	StreamID             int32
	LastStreamIDReceived int32
}

func (h heartbeat) marshal() []byte {
	var b []byte
	if h.StreamID != 0 {
		b = appendVarint(b, 1, uint64(h.StreamID))
	}
	if h.LastStreamIDReceived != 0 {
		b = appendVarint(b, 2, uint64(h.LastStreamIDReceived))
	}
	return b
}

func unmarshalHeartbeat(data []byte) (heartbeat, error) {
	var h heartbeat
	err := walkFields(data, func(num protowire.Number, _ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			h.StreamID = int32(v.u)
		case 2:
			h.LastStreamIDReceived = int32(v.u)
		}
		return nil
	})
	return h, err
}

type appData struct {
	Key   string
	Value string
}

type dataMessage struct {
	ID           string
	From         string
	To           string
	Category     string
	Token        string
	AppData      []appData
	PersistentID string
	RawData      []byte
}

func (m dataMessage) marshal() []byte {
	var b []byte
	b = appendString(b, 2, m.ID)
	b = appendString(b, 3, m.From)
	b = appendString(b, 4, m.To)
	b = appendString(b, 5, m.Category)
	b = appendString(b, 6, m.Token)
	for _, kv := range m.AppData {
		var kb []byte
		kb = appendString(kb, 1, kv.Key)
		kb = appendString(kb, 2, kv.Value)
		b = appendBytes(b, 7, kb)
	}
	b = appendString(b, 9, m.PersistentID)
	b = appendBytes(b, 21, m.RawData)
	return b
}

func unmarshalDataMessage(data []byte) (dataMessage, error) {
	var m dataMessage
	err := walkFields(data, func(num protowire.Number, _ protowire.Type, v fieldValue) error {
		switch num {
		case 2:
			m.ID = v.str()
		case 3:
			m.From = v.str()
		case 4:
			m.To = v.str()
		case 5:
			m.Category = v.str()
		case 6:
			m.Token = v.str()
		case 7:
			var kv appData
			if err := walkFields(v.b, func(num protowire.Number, _ protowire.Type, v fieldValue) error {
				switch num {
				case 1:
					kv.Key = v.str()
				case 2:
					kv.Value = v.str()
				}
				return nil
			}); err != nil {
				return err
			}
			m.AppData = append(m.AppData, kv)
		case 9:
			m.PersistentID = v.str()
		case 21:
			m.RawData = append([]byte(nil), v.b...)
		}
		return nil
	})
	return m, err
}

type iqStanza struct {
	Type int32
	ID   string
	From string
	To   string
}

func (s iqStanza) marshal() []byte {
	var b []byte
	b = appendVarint(b, 2, uint64(s.Type))
	b = appendString(b, 3, s.ID)
	b = appendString(b, 4, s.From)
	b = appendString(b, 5, s.To)
	return b
}

func unmarshalIqStanza(data []byte) (iqStanza, error) {
	var s iqStanza
	err := walkFields(data, func(num protowire.Number, _ protowire.Type, v fieldValue) error {
		switch num {
		case 2:
			s.Type = int32(v.u)
		case 3:
			s.ID = v.str()
		case 4:
			s.From = v.str()
		case 5:
			s.To = v.str()
		}
		return nil
	})
	return s, err
}

type streamError struct {
	Type string
	Text string
}

func (s streamError) marshal() []byte {
	var b []byte
	b = appendString(b, 1, s.Type)
	b = appendString(b, 2, s.Text)
	return b
}

func unmarshalStreamError(data []byte) (streamError, error) {
	var s streamError
	err := walkFields(data, func(num protowire.Number, _ protowire.Type, v fieldValue) error {
		switch num {
		case 1:
			s.Type = v.str()
		case 2:
			s.Text = v.str()
		}
		return nil
	})
	return s, err
}
