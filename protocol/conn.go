package protocol

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"
	"unicode/utf8"
)

// Conn is a single connection to a Tyrant server. The protocol allows one
// outstanding request at a time: every command is a blocking write followed
// by a blocking read of exactly one response. A mutex serializes commands,
// but interleaved use from several goroutines will still scramble the
// server-side iteration cursor; give each logical user its own Conn (or use
// the pooled client in the root package).
type Conn struct {
	addr string
	conn net.Conn
	r    *bufio.Reader
	wbuf []byte

	mu       sync.Mutex
	closed   bool
	lastUsed time.Time
}

// NewConn wraps an established network connection.
func NewConn(netConn net.Conn) *Conn {
	return &Conn{
		addr:     netConn.RemoteAddr().String(),
		conn:     netConn,
		r:        bufio.NewReader(netConn),
		lastUsed: time.Now(),
	}
}

// Dial connects to a Tyrant server at addr ("host:port").
func Dial(ctx context.Context, addr string, dialer *net.Dialer) (*Conn, error) {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnError{Op: "dial", Err: err}
	}
	if tc, ok := netConn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	c := NewConn(netConn)
	c.addr = addr
	return c, nil
}

// Addr returns the server address.
func (c *Conn) Addr() string {
	return c.addr
}

// IsClosed reports whether the connection has been closed.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LastUsed returns when the connection last completed a command.
func (c *Conn) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// Close closes the connection. All further commands fail with ErrConnClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// markClosed must be called with the lock held. The socket is closed here so
// that a later Close (e.g. from a pool destructor) stays a no-op.
func (c *Conn) markClosed() {
	c.closed = true
	_ = c.conn.Close()
}

// start prepares a command: checks liveness and maps the context deadline
// onto the socket. Must be called with the lock held.
func (c *Conn) start(ctx context.Context) error {
	if c.closed {
		return ErrConnClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}
	return nil
}

// write packs and sends one request. Must be called with the lock held.
func (c *Conn) write(code Opcode, args ...any) error {
	buf, err := appendRequest(c.wbuf[:0], code, args...)
	if err != nil {
		return err
	}
	c.wbuf = buf[:0]
	if _, err := c.conn.Write(buf); err != nil {
		c.markClosed()
		return &ConnError{Op: "write", Err: err}
	}
	return nil
}

// request sends one request and consumes the status byte. A nonzero status
// maps to the corresponding ProtocolError kind.
func (c *Conn) request(code Opcode, args ...any) error {
	if err := c.write(code, args...); err != nil {
		return err
	}
	status, err := c.readByte()
	if err != nil {
		return err
	}
	if status != 0 {
		return errorForCode(status)
	}
	return nil
}

// done records a completed round trip. Must be called with the lock held.
func (c *Conn) done() {
	c.lastUsed = time.Now()
}

// --- Typed readers ---

// readFull reads exactly len(buf) bytes. A peer close mid-read is a
// ConnError, never a short result.
func (c *Conn) readFull(buf []byte) error {
	if _, err := io.ReadFull(c.r, buf); err != nil {
		c.markClosed()
		return &ConnError{Op: "read", Err: err}
	}
	return nil
}

func (c *Conn) readByte() (byte, error) {
	var b [1]byte
	if err := c.readFull(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Conn) readUint32() (uint32, error) {
	var b [4]byte
	if err := c.readFull(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (c *Conn) readUint64() (uint64, error) {
	var b [8]byte
	if err := c.readFull(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// readBytes reads one length-prefixed byte string.
func (c *Conn) readBytes() ([]byte, error) {
	n, err := c.readUint32()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := c.readFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readString reads one length-prefixed UTF-8 string.
func (c *Conn) readString() (string, error) {
	b, err := c.readBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", &EncodingError{Message: "value is not valid UTF-8"}
	}
	return string(b), nil
}

// readDouble reads the protocol's fixed-point double: two big-endian uint64
// values combined as integer + fractional*1e-12. This is not IEEE754 and
// must stay bit-exact for wire compatibility.
func (c *Conn) readDouble() (float64, error) {
	intPart, err := c.readUint64()
	if err != nil {
		return 0, err
	}
	fracPart, err := c.readUint64()
	if err != nil {
		return 0, err
	}
	return float64(intPart) + float64(fracPart)*1e-12, nil
}

// readPair reads two back-to-back length-prefixed strings (batch get
// results). Both length fields precede both payloads.
func (c *Conn) readPair() (string, string, error) {
	klen, err := c.readUint32()
	if err != nil {
		return "", "", err
	}
	vlen, err := c.readUint32()
	if err != nil {
		return "", "", err
	}
	kbuf := make([]byte, klen)
	if err := c.readFull(kbuf); err != nil {
		return "", "", err
	}
	vbuf := make([]byte, vlen)
	if err := c.readFull(vbuf); err != nil {
		return "", "", err
	}
	return string(kbuf), string(vbuf), nil
}
