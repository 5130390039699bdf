package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyrantdb/tyrant/internal/testutils"
)

func newTestConn(responses ...[]byte) (*Conn, *testutils.ConnectionMock) {
	mock := testutils.NewConnectionMock(responses...)
	return NewConn(mock), mock
}

func TestConnPut(t *testing.T) {
	conn, mock := newTestConn(testutils.Status(0))

	err := conn.Put(context.Background(), "key", "value")
	require.NoError(t, err)

	want := []byte{
		0xC8, 0x10,
		0, 0, 0, 3,
		0, 0, 0, 5,
		'k', 'e', 'y', 'v', 'a', 'l', 'u', 'e',
	}
	assert.Equal(t, want, mock.WrittenRequest())
}

func TestConnPutKeepRecordExists(t *testing.T) {
	conn, _ := newTestConn(testutils.Status(6))

	err := conn.PutKeep(context.Background(), "key", "value")
	require.Error(t, err)
	assert.True(t, IsRecordExists(err))
	assert.False(t, ShouldCloseConnection(err))
	assert.False(t, conn.IsClosed())
}

func TestConnPutNRWritesWithoutResponse(t *testing.T) {
	conn, mock := newTestConn()

	err := conn.PutNR(context.Background(), "k", "v")
	require.NoError(t, err)

	want := []byte{0xC8, 0x18, 0, 0, 0, 1, 0, 0, 0, 1, 'k', 'v'}
	assert.Equal(t, want, mock.WrittenRequest())
}

func TestConnGet(t *testing.T) {
	conn, mock := newTestConn(testutils.Status(0), testutils.Str("value"))

	value, err := conn.Get(context.Background(), "key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
	assert.Equal(t, []byte{0xC8, 0x30, 0, 0, 0, 3, 'k', 'e', 'y'}, mock.WrittenRequest())
}

func TestConnGetRecordNotFound(t *testing.T) {
	conn, _ := newTestConn(testutils.Status(7), testutils.Status(0), testutils.Str("v"))

	_, err := conn.Get(context.Background(), "missing")
	assert.True(t, IsRecordNotFound(err))

	// The connection stays aligned and usable.
	value, err := conn.Get(context.Background(), "present")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestConnGetInvalidUTF8(t *testing.T) {
	conn, _ := newTestConn(testutils.Status(0), testutils.Uint32(2), []byte{0xFF, 0xFE})

	_, err := conn.Get(context.Background(), "key")
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.False(t, ShouldCloseConnection(err))
}

func TestConnGetRawBinary(t *testing.T) {
	conn, _ := newTestConn(testutils.Status(0), testutils.Uint32(2), []byte{0xFF, 0xFE})

	value, err := conn.GetRaw(context.Background(), "key")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFE}, value)
}

func TestConnGetShortReadClosesConn(t *testing.T) {
	conn, _ := newTestConn(testutils.Status(0), testutils.Uint32(5), []byte("ab"))

	_, err := conn.Get(context.Background(), "key")
	var connErr *ConnError
	require.ErrorAs(t, err, &connErr)
	assert.True(t, ShouldCloseConnection(err))
	assert.True(t, conn.IsClosed())
}

func TestConnClosed(t *testing.T) {
	conn, _ := newTestConn()
	require.NoError(t, conn.Close())

	err := conn.Put(context.Background(), "k", "v")
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestConnMGet(t *testing.T) {
	conn, mock := newTestConn(
		testutils.Status(0),
		testutils.Uint32(2),
		testutils.Pair("a", "1"),
		testutils.Pair("b", "2"),
	)

	pairs, err := conn.MGet(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []KV{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}, pairs)

	want := []byte{
		0xC8, 0x31,
		0, 0, 0, 3,
		0, 0, 0, 1, 'a',
		0, 0, 0, 1, 'b',
		0, 0, 0, 1, 'c',
	}
	assert.Equal(t, want, mock.WrittenRequest())
}

func TestConnAddInt(t *testing.T) {
	conn, _ := newTestConn(testutils.Status(0), testutils.Uint32(43))

	n, err := conn.AddInt(context.Background(), "counter", 1)
	require.NoError(t, err)
	assert.Equal(t, 43, n)
}

func TestConnAddIntNegativeResult(t *testing.T) {
	conn, _ := newTestConn(testutils.Status(0), testutils.Uint32(0xFFFFFFFF))

	n, err := conn.AddInt(context.Background(), "counter", -1)
	require.NoError(t, err)
	assert.Equal(t, -1, n)
}

func TestConnAddDouble(t *testing.T) {
	conn, mock := newTestConn(
		testutils.Status(0),
		testutils.Uint64(3),
		testutils.Uint64(140_000_000_000),
	)

	n, err := conn.AddDouble(context.Background(), "pi", 1.5)
	require.NoError(t, err)
	assert.InDelta(t, 3.14, n, 1e-9)

	// The fixed-point encoding travels as integer part then
	// round(fractional*1e12), each 8 bytes.
	want := []byte{
		0xC8, 0x61,
		0, 0, 0, 2,
		0, 0, 0, 0, 0, 0, 0, 1,
		0, 0, 0, 0x74, 0x6A, 0x52, 0x88, 0x00,
		'p', 'i',
	}
	assert.Equal(t, want, mock.WrittenRequest())
}

func TestConnIterate(t *testing.T) {
	conn, _ := newTestConn(
		testutils.Status(0),
		testutils.Status(0), testutils.Str("a"),
		testutils.Status(0), testutils.Str("b"),
		testutils.Status(1),
	)
	ctx := context.Background()

	require.NoError(t, conn.IterInit(ctx))

	var keys []string
	for {
		key, err := conn.IterNext(ctx)
		if err != nil {
			require.True(t, IsInvalidOperation(err))
			break
		}
		keys = append(keys, key)
	}
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestConnFwmKeys(t *testing.T) {
	conn, mock := newTestConn(testutils.Status(0), testutils.StrList("user:1", "user:2"))

	keys, err := conn.FwmKeys(context.Background(), "user:", -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1", "user:2"}, keys)

	want := []byte{
		0xC8, 0x58,
		0, 0, 0, 5,
		0xFF, 0xFF, 0xFF, 0xFF,
		'u', 's', 'e', 'r', ':',
	}
	assert.Equal(t, want, mock.WrittenRequest())
}

func TestConnRNum(t *testing.T) {
	conn, _ := newTestConn(testutils.Status(0), testutils.Uint64(42))

	n, err := conn.RNum(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestConnStat(t *testing.T) {
	conn, _ := newTestConn(testutils.Status(0), testutils.Str("rnum\t42\nsize\t4096\n"))

	blob, err := conn.Stat(context.Background())
	require.NoError(t, err)
	assert.Contains(t, blob, "rnum\t42")
}

func TestConnMisc(t *testing.T) {
	conn, mock := newTestConn(testutils.Status(0), testutils.StrList("k", "v"))

	results, err := conn.Misc(context.Background(), "getlist", []string{"k"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "v"}, results)

	want := []byte{
		0xC8, 0x90,
		0, 0, 0, 7, // len("getlist")
		0, 0, 0, 0, // opts
		0, 0, 0, 1, // arg count
		'g', 'e', 't', 'l', 'i', 's', 't',
		0, 0, 0, 1, 'k',
	}
	assert.Equal(t, want, mock.WrittenRequest())
}

func TestConnMiscErrorConsumesCount(t *testing.T) {
	// The element count follows the status byte on the error path too; the
	// stream must stay aligned for the next command.
	conn, _ := newTestConn(
		testutils.Status(1), testutils.Uint32(0),
		testutils.Status(0), testutils.StrList("ok"),
	)
	ctx := context.Background()

	_, err := conn.Misc(ctx, "getlist", []string{"missing"}, 0)
	assert.True(t, IsInvalidOperation(err))

	results, err := conn.Misc(ctx, "getlist", []string{"present"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, results)
}

func TestConnGetList(t *testing.T) {
	conn, _ := newTestConn(testutils.Status(0), testutils.StrList("a", "1", "b", "2"))

	pairs, err := conn.GetList(context.Background(), []string{"a", "b"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []KV{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}, pairs)
}

func TestConnGetListOddResponse(t *testing.T) {
	conn, _ := newTestConn(testutils.Status(0), testutils.StrList("a"))

	_, err := conn.GetList(context.Background(), []string{"a"}, 0)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestConnPutListOddItems(t *testing.T) {
	conn, _ := newTestConn()

	err := conn.PutList(context.Background(), []string{"key-without-value"}, 0)
	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
}

func TestConnGenUID(t *testing.T) {
	conn, _ := newTestConn(testutils.Status(0), testutils.StrList("12345"))

	id, err := conn.GenUID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12345), id)
}

func TestConnCanceledContext(t *testing.T) {
	conn, _ := newTestConn(testutils.Status(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := conn.Put(ctx, "k", "v")
	assert.ErrorIs(t, err, context.Canceled)
}
