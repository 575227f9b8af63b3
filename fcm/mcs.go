package fcm

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// mcsVersion is the protocol version byte exchanged at connect.
const mcsVersion = 41

// mcsTag identifies the stanza carried by a frame.
type mcsTag uint8

const (
	tagHeartbeatPing     mcsTag = 0
	tagHeartbeatAck      mcsTag = 1
	tagLoginRequest      mcsTag = 2
	tagLoginResponse     mcsTag = 3
	tagClose             mcsTag = 4
	tagIqStanza          mcsTag = 7
	tagDataMessageStanza mcsTag = 8
	tagStreamErrorStanza mcsTag = 10
)

const (
	// authServiceAndroidID is LoginRequest.AuthService ANDROID_ID.
	authServiceAndroidID = 2

	// maxFrameSize bounds a single stanza body.
	maxFrameSize = 4 << 20

	defaultHeartbeat = 5 * time.Minute
)

// errServerClose is returned when the server ends the stream with a Close.
var errServerClose = errors.New("mcs: server sent close")

// frame is one MCS stanza on the wire: tag, varint length, body. The
// version byte precedes only the first frame in each direction.
type frame struct {
	tag  mcsTag
	body []byte
}

// appendFrame encodes f onto dst, with the version byte when first is set.
func appendFrame(dst []byte, f frame, first bool) []byte {
	if first {
		dst = append(dst, mcsVersion)
	}
	dst = append(dst, byte(f.tag))
	dst = binary.AppendUvarint(dst, uint64(len(f.body)))
	return append(dst, f.body...)
}

// readFrame decodes the next frame from r.
func readFrame(r *bufio.Reader) (frame, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return frame{}, fmt.Errorf("mcs: read tag: %w", err)
	}
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return frame{}, fmt.Errorf("mcs: read frame length: %w", err)
	}
	if size > maxFrameSize {
		return frame{}, fmt.Errorf("mcs: frame of %d bytes exceeds limit", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return frame{}, fmt.Errorf("mcs: read body: %w", err)
	}
	return frame{tag: mcsTag(tag), body: body}, nil
}

// mcsConn is one MCS session over an established connection. Messages
// arrive as plaintext AppData or raw_data; nothing is decrypted.
type mcsConn struct {
	rw     io.ReadWriteCloser
	r      *bufio.Reader
	creds  credentials
	acked  []string
	logger *slog.Logger

	heartbeat time.Duration

	onData func(dataMessage)
	onUp   func()
	onDown func(reason string)

	writeMu sync.Mutex
}

// newMCSConn prepares a session. acked lists persistent IDs already
// processed so the server does not redeliver them.
func newMCSConn(rw io.ReadWriteCloser, creds credentials, acked []string, logger *slog.Logger) *mcsConn {
	return &mcsConn{
		rw:        rw,
		r:         bufio.NewReader(rw),
		creds:     creds,
		acked:     acked,
		logger:    logger,
		heartbeat: defaultHeartbeat,
	}
}

// run logs in and processes stanzas until ctx is done, the server closes
// the stream, or the connection fails. Cancellation is not an error.
func (c *mcsConn) run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.rw.Close() })
	defer stop()

	err := c.serve(ctx)
	if ctx.Err() != nil {
		c.down("context cancelled")
		return nil
	}
	c.down(err.Error())
	return err
}

func (c *mcsConn) down(reason string) {
	if c.onDown != nil {
		c.onDown(reason)
	}
}

func (c *mcsConn) serve(ctx context.Context) error {
	if err := c.send(tagLoginRequest, c.loginRequest().marshal(), true); err != nil {
		return fmt.Errorf("mcs: send login: %w", err)
	}

	version, err := c.r.ReadByte()
	if err != nil {
		return fmt.Errorf("mcs: read version: %w", err)
	}
	if version < mcsVersion {
		return fmt.Errorf("mcs: unsupported server version %d", version)
	}

	keepAliveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.keepAlive(keepAliveCtx)

	for {
		f, err := readFrame(c.r)
		if err != nil {
			return err
		}
		if err := c.dispatch(f); err != nil {
			return err
		}
	}
}

func (c *mcsConn) loginRequest() loginRequest {
	user := strconv.FormatUint(c.creds.AndroidID, 10)
	id := "android-" + strconv.FormatUint(c.creds.AndroidID, 16)
	return loginRequest{
		ID:                    id,
		Domain:                "mcs.android.com",
		User:                  user,
		Resource:              user,
		AuthToken:             strconv.FormatUint(c.creds.SecurityToken, 10),
		DeviceID:              id,
		LastRmqID:             1,
		Settings:              []setting{{Name: "new_vc", Value: "1"}},
		ReceivedPersistentIDs: c.acked,
		UseRmq2:               true,
		AccountID:             1000000,
		AuthService:           authServiceAndroidID,
		NetworkType:           1,
	}
}

// send writes one frame with a single Write so a heartbeat never
// interleaves with another stanza.
func (c *mcsConn) send(tag mcsTag, body []byte, first bool) error {
	buf := appendFrame(make([]byte, 0, 2+binary.MaxVarintLen64+len(body)), frame{tag: tag, body: body}, first)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.rw.Write(buf)
	return err
}

// dispatch handles one inbound stanza. A non-nil error ends the session.
func (c *mcsConn) dispatch(f frame) error {
	switch f.tag {
	case tagLoginResponse:
		return c.loggedIn(f.body)
	case tagHeartbeatPing:
		c.logger.Debug("MCS heartbeat ping received")
		if err := c.send(tagHeartbeatAck, heartbeat{}.marshal(), false); err != nil {
			return fmt.Errorf("mcs: send heartbeat ack: %w", err)
		}
	case tagHeartbeatAck:
		c.logger.Debug("MCS heartbeat ack received")
	case tagDataMessageStanza:
		msg, err := unmarshalDataMessage(f.body)
		if err != nil {
			c.logger.Warn("Skipping malformed MCS data message", "error", err)
			return nil
		}
		c.logger.Debug("MCS data message", "from", msg.From, "category", msg.Category, "persistentId", msg.PersistentID)
		if c.onData != nil {
			c.onData(msg)
		}
	case tagIqStanza:
		if iq, err := unmarshalIqStanza(f.body); err == nil {
			c.logger.Debug("MCS IQ stanza", "type", iq.Type, "id", iq.ID)
		}
	case tagClose:
		return errServerClose
	case tagStreamErrorStanza:
		se, err := unmarshalStreamError(f.body)
		if err != nil {
			return fmt.Errorf("mcs: malformed stream error: %w", err)
		}
		return fmt.Errorf("mcs: stream error: type=%s text=%s", se.Type, se.Text)
	default:
		c.logger.Debug("MCS stanza ignored", "tag", f.tag)
	}
	return nil
}

func (c *mcsConn) loggedIn(body []byte) error {
	resp, err := unmarshalLoginResponse(body)
	if err != nil {
		return fmt.Errorf("mcs: malformed login response: %w", err)
	}
	if resp.ErrorCode != 0 {
		return fmt.Errorf("mcs: login rejected: code=%d message=%s", resp.ErrorCode, resp.ErrorMessage)
	}
	c.logger.Debug("MCS logged in", "id", resp.ID)
	c.acked = nil
	if c.onUp != nil {
		c.onUp()
	}
	return nil
}

// keepAlive pings the server every heartbeat interval.
func (c *mcsConn) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.send(tagHeartbeatPing, heartbeat{}.marshal(), false); err != nil {
				c.logger.Warn("MCS heartbeat failed", "error", err)
				return
			}
		}
	}
}
