package fuzzproto

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

var errShortPayload = errors.New("fuzzproto: short payload")

// ErrUnexpectedOpcode is returned when a response frame carries an opcode
// the caller did not expect for the command it issued.
var ErrUnexpectedOpcode = errors.New("fuzzproto: unexpected opcode in response")

// Client is the coordinator-side handle to a resolver's coverage shim
// control socket, analogous to the teacher's Client/Transport pair
// (client.go, transport.go) but speaking the fixed-opcode control
// protocol instead of DNS wire format.
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// Dial connects to the shim's control socket at addr.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing control socket %s", addr)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn), timeout: timeout}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(op Opcode, payload []byte, wantOp Opcode) ([]byte, error) {
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(MarshalFrame(op, payload)); err != nil {
		return nil, errors.Wrap(err, "writing control frame")
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return nil, errors.Wrap(err, "reading response length")
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n < 1 {
		return nil, errShortPayload
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}
	respOp := Opcode(body[0])
	if respOp != wantOp {
		return nil, errors.Wrapf(ErrUnexpectedOpcode, "got %d want %d", respOp, wantOp)
	}
	return body[1:], nil
}

// Hello performs the HELLO handshake, returning the bitmap size and shim
// version. The coordinator must re-issue Hello on every reconnect since
// bitmap sizing is not stable across resolver processes (spec §3).
func (c *Client) Hello() (HelloReply, error) {
	payload, err := c.roundTrip(OpHello, nil, OpHello)
	if err != nil {
		return HelloReply{}, err
	}
	return UnmarshalHelloReply(payload)
}

// Reset zeroes the shim's bitmap and waits for the ack (spec §4.3,
// COVERAGE_RESET).
func (c *Client) Reset() error {
	_, err := c.roundTrip(OpReset, nil, OpAck)
	return err
}

// Snapshot pulls the current bitmap bytes (spec §4.3, COVERAGE_READ).
func (c *Client) Snapshot() ([]byte, error) {
	return c.roundTrip(OpSnapshot, nil, OpBitmap)
}

// Ping checks liveness.
func (c *Client) Ping() error {
	_, err := c.roundTrip(OpPing, nil, OpPong)
	return err
}
