package testutils

import (
	"bytes"
	"encoding/binary"
	"net"
	"time"
)

// ConnectionMock is a mock implementation of net.Conn for testing. Response
// bytes are pre-loaded with the Response* helpers; written request bytes are
// captured for assertion.
type ConnectionMock struct {
	readBuf  *bytes.Buffer
	writeBuf *bytes.Buffer
	closed   bool
}

// NewConnectionMock creates a mock connection serving the given response
// fragments back to back.
func NewConnectionMock(responses ...[]byte) *ConnectionMock {
	readBuf := &bytes.Buffer{}
	for _, r := range responses {
		readBuf.Write(r)
	}
	return &ConnectionMock{
		readBuf:  readBuf,
		writeBuf: &bytes.Buffer{},
	}
}

func (m *ConnectionMock) Read(b []byte) (n int, err error) {
	return m.readBuf.Read(b)
}

func (m *ConnectionMock) Write(b []byte) (n int, err error) {
	return m.writeBuf.Write(b)
}

func (m *ConnectionMock) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *ConnectionMock) Closed() bool {
	return m.closed
}

func (m *ConnectionMock) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func (m *ConnectionMock) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1978}
}

func (m *ConnectionMock) SetDeadline(t time.Time) error      { return nil }
func (m *ConnectionMock) SetReadDeadline(t time.Time) error  { return nil }
func (m *ConnectionMock) SetWriteDeadline(t time.Time) error { return nil }

// WrittenRequest returns the raw request bytes written to the mock.
func (m *ConnectionMock) WrittenRequest() []byte {
	return m.writeBuf.Bytes()
}

// --- Response builders ---

// Status returns a one-byte status response.
func Status(code byte) []byte {
	return []byte{code}
}

// Uint32 returns one big-endian uint32.
func Uint32(n uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return b[:]
}

// Uint64 returns one big-endian uint64.
func Uint64(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// Str returns one length-prefixed string.
func Str(s string) []byte {
	return append(Uint32(uint32(len(s))), s...)
}

// Pair returns one key/value pair with both length fields leading.
func Pair(key, value string) []byte {
	b := Uint32(uint32(len(key)))
	b = append(b, Uint32(uint32(len(value)))...)
	b = append(b, key...)
	b = append(b, value...)
	return b
}

// StrList returns a count-prefixed list of length-prefixed strings.
func StrList(items ...string) []byte {
	b := Uint32(uint32(len(items)))
	for _, s := range items {
		b = append(b, Str(s)...)
	}
	return b
}
