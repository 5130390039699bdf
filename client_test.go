package tyrant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyrantdb/tyrant/internal/testutils"
	"github.com/tyrantdb/tyrant/protocol"
)

// newTestClient builds a single-connection client whose connections are the
// given mocks, handed out in order.
func newTestClient(t *testing.T, config Config, mocks ...*testutils.ConnectionMock) *Client {
	t.Helper()

	var mu sync.Mutex
	var next int
	config.MaxSize = 1
	config.HealthCheckInterval = -1
	config.constructor = func(ctx context.Context) (*protocol.Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(mocks) {
			return nil, &protocol.ConnError{Op: "dial", Err: errors.New("no more mock connections")}
		}
		m := mocks[next]
		next++
		return protocol.NewConn(m), nil
	}

	client, err := NewClient("localhost:1978", config)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestClientPutGet(t *testing.T) {
	mock := testutils.NewConnectionMock(
		testutils.Status(0),
		testutils.Status(0), testutils.Str("value"),
	)
	client := newTestClient(t, Config{}, mock)
	ctx := context.Background()

	require.NoError(t, client.Put(ctx, "key", "value"))

	value, err := client.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	stats := client.Stats()
	assert.Equal(t, uint64(1), stats.Puts)
	assert.Equal(t, uint64(1), stats.Gets)
	assert.Equal(t, uint64(1), stats.GetHits)
	assert.Equal(t, uint64(0), stats.Errors)
}

func TestClientProtocolErrorKeepsConnection(t *testing.T) {
	mock := testutils.NewConnectionMock(
		testutils.Status(7),
		testutils.Status(0), testutils.Str("v"),
	)
	client := newTestClient(t, Config{}, mock)
	ctx := context.Background()

	_, err := client.Get(ctx, "missing")
	assert.True(t, protocol.IsRecordNotFound(err))

	// The same pooled connection serves the next command.
	value, err := client.Get(ctx, "present")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	poolStats := client.PoolStats()
	assert.Equal(t, uint64(1), poolStats.CreatedConns)
	assert.Equal(t, uint64(0), poolStats.DestroyedConns)

	stats := client.Stats()
	assert.Equal(t, uint64(2), stats.Gets)
	assert.Equal(t, uint64(1), stats.GetHits)
	assert.Equal(t, uint64(1), stats.Errors)
}

func TestClientConnErrorDestroysConnection(t *testing.T) {
	// The first mock has no response bytes, so the read fails mid-command.
	broken := testutils.NewConnectionMock()
	healthy := testutils.NewConnectionMock(testutils.Status(0), testutils.Str("v"))
	client := newTestClient(t, Config{}, broken, healthy)
	ctx := context.Background()

	_, err := client.Get(ctx, "key")
	var connErr *protocol.ConnError
	require.ErrorAs(t, err, &connErr)

	value, err := client.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	poolStats := client.PoolStats()
	assert.Equal(t, uint64(2), poolStats.CreatedConns)
	assert.Equal(t, uint64(1), poolStats.DestroyedConns)
	assert.True(t, broken.Closed())
}

func TestClientKeys(t *testing.T) {
	mock := testutils.NewConnectionMock(
		testutils.Status(0), // iterinit
		testutils.Status(0), testutils.Str("a"),
		testutils.Status(0), testutils.Str("b"),
		testutils.Status(1), // cursor exhausted
	)
	client := newTestClient(t, Config{}, mock)

	keys, err := client.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestClientMGet(t *testing.T) {
	mock := testutils.NewConnectionMock(
		testutils.Status(0),
		testutils.Uint32(1),
		testutils.Pair("a", "1"),
	)
	client := newTestClient(t, Config{}, mock)

	pairs, err := client.MGet(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []protocol.KV{{Key: "a", Value: "1"}}, pairs)

	stats := client.Stats()
	assert.Equal(t, uint64(2), stats.Gets)
	assert.Equal(t, uint64(1), stats.GetHits)
}

func TestClientTable(t *testing.T) {
	columns := map[string]string{"name": "Foo", "price": "80"}
	encoded, err := EncodeColumns(columns)
	require.NoError(t, err)

	mock := testutils.NewConnectionMock(
		testutils.Status(0),
		testutils.Status(0), testutils.Str(encoded),
	)
	client := newTestClient(t, Config{}, mock)
	ctx := context.Background()

	require.NoError(t, client.PutTable(ctx, "item:1", columns))

	got, err := client.GetTable(ctx, "item:1")
	require.NoError(t, err)
	assert.Equal(t, columns, got)
}

func TestClientPutTableRejectsNUL(t *testing.T) {
	client := newTestClient(t, Config{})

	err := client.PutTable(context.Background(), "k", map[string]string{"a\x00b": "v"})
	var argErr *protocol.ArgumentError
	require.ErrorAs(t, err, &argErr)
}

func TestClientStat(t *testing.T) {
	mock := testutils.NewConnectionMock(
		testutils.Status(0),
		testutils.Str("rnum\t42\nsize\t4096\npid\t1234\n"),
	)
	client := newTestClient(t, Config{}, mock)

	stats, err := client.Stat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"rnum": "42", "size": "4096", "pid": "1234"}, stats)
}

func TestClientQuery(t *testing.T) {
	// One search round trip returning a key, then one get per key.
	mock := testutils.NewConnectionMock(
		testutils.Status(0), testutils.StrList("item:1"),
		testutils.Status(0), testutils.Str("name\x00Foo"),
	)
	client := newTestClient(t, Config{}, mock)

	records, err := client.Query(Where("name", "Foo")).All(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "item:1", records[0].Key)
	assert.Equal(t, "Foo", records[0].Column("name"))

	assert.Equal(t, uint64(1), client.Stats().Searches)
}

func TestClientCircuitBreakerOpensOnConnErrors(t *testing.T) {
	// Three dead connections trip the breaker; the fourth command is
	// rejected without dialing.
	mocks := []*testutils.ConnectionMock{
		testutils.NewConnectionMock(),
		testutils.NewConnectionMock(),
		testutils.NewConnectionMock(),
	}
	config := Config{
		NewCircuitBreaker: NewCircuitBreakerConfig(1, time.Minute, 30*time.Second),
	}
	client := newTestClient(t, config, mocks...)
	ctx := context.Background()

	for n := 0; n < 3; n++ {
		_, err := client.Get(ctx, "key")
		var connErr *protocol.ConnError
		require.ErrorAs(t, err, &connErr)
	}

	_, err := client.Get(ctx, "key")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestClientCircuitBreakerIgnoresProtocolErrors(t *testing.T) {
	responses := make([][]byte, 0, 10)
	for n := 0; n < 10; n++ {
		responses = append(responses, testutils.Status(7))
	}
	mock := testutils.NewConnectionMock(responses...)
	config := Config{
		NewCircuitBreaker: NewCircuitBreakerConfig(1, time.Minute, 30*time.Second),
	}
	client := newTestClient(t, config, mock)
	ctx := context.Background()

	for n := 0; n < 10; n++ {
		_, err := client.Get(ctx, "missing")
		require.True(t, protocol.IsRecordNotFound(err))
	}
}
