package tyrant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/tyrantdb/tyrant/protocol"
)

const (
	defaultMaxSize             = 4
	defaultHealthCheckInterval = 30 * time.Second
	healthCheckTimeout         = 5 * time.Second
)

// Config controls a Client's pooling and resilience behavior. The zero value
// is usable: a 4-connection pool, no lifetime bounds, health checks every
// 30 seconds, no circuit breaker.
type Config struct {
	// MaxSize bounds the connection pool. Zero means the default of 4;
	// use 1 to serialize all commands on a single connection.
	MaxSize int32

	// MaxConnLifetime retires connections older than this during health
	// checks. Zero means no bound.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime retires connections idle longer than this during
	// health checks. Zero means no bound.
	MaxConnIdleTime time.Duration

	// HealthCheckInterval is how often idle connections are pinged and
	// pruned. Negative disables the health check loop.
	HealthCheckInterval time.Duration

	// Dialer, when set, replaces the default net.Dialer.
	Dialer *net.Dialer

	// NewCircuitBreaker, when set, wraps every command in a per-server
	// breaker. See NewCircuitBreakerConfig.
	NewCircuitBreaker func(addr string) CircuitBreaker

	// constructor overrides connection establishment in tests.
	constructor func(ctx context.Context) (*protocol.Conn, error)
}

func (c Config) maxSize() int32 {
	if c.MaxSize <= 0 {
		return defaultMaxSize
	}
	return c.MaxSize
}

func (c Config) healthCheckInterval() time.Duration {
	if c.HealthCheckInterval == 0 {
		return defaultHealthCheckInterval
	}
	return c.HealthCheckInterval
}

// Client is a pooled client for one Tyrant server. It is safe for concurrent
// use; commands borrow a connection from the pool for the duration of one
// round trip. Connection-level failures destroy the borrowed connection,
// server-side errors (record not found, record exists, ...) return it to the
// pool.
type Client struct {
	addr    string
	config  Config
	pool    Pool
	breaker CircuitBreaker
	stats   *clientStatsCollector

	stopHealthCheck chan struct{}
}

// NewClient creates a client for the server at addr ("host:port"). No
// connection is established until the first command.
func NewClient(addr string, config Config) (*Client, error) {
	c := &Client{
		addr:            addr,
		config:          config,
		stats:           newClientStatsCollector(),
		stopHealthCheck: make(chan struct{}),
	}

	constructor := config.constructor
	if constructor == nil {
		constructor = func(ctx context.Context) (*protocol.Conn, error) {
			return protocol.Dial(ctx, addr, config.Dialer)
		}
	}
	pool, err := newPuddlePool(constructor, config.maxSize())
	if err != nil {
		return nil, fmt.Errorf("create pool for %s: %w", addr, err)
	}
	c.pool = pool

	if config.NewCircuitBreaker != nil {
		c.breaker = config.NewCircuitBreaker(addr)
	}

	if config.HealthCheckInterval >= 0 {
		go c.healthCheckLoop(c.config.healthCheckInterval())
	}
	return c, nil
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// Close shuts down the health check loop and closes all pooled connections.
func (c *Client) Close() {
	close(c.stopHealthCheck)
	c.pool.Close()
}

// Stats returns a snapshot of the client's operation counters.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// PoolStats returns a snapshot of the connection pool's statistics.
func (c *Client) PoolStats() PoolStats {
	return c.pool.Stats()
}

// with runs fn with a pooled connection, routed through the circuit breaker
// when one is configured.
func (c *Client) with(ctx context.Context, fn func(conn *protocol.Conn) error) error {
	if c.breaker == nil {
		return c.withConn(ctx, fn)
	}
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.withConn(ctx, fn)
	})
	return err
}

func (c *Client) withConn(ctx context.Context, fn func(conn *protocol.Conn) error) error {
	res, err := c.pool.Acquire(ctx)
	if err != nil {
		c.stats.recordError()
		return err
	}
	if err := fn(res.Value()); err != nil {
		if protocol.ShouldCloseConnection(err) {
			res.Destroy()
		} else {
			res.Release()
		}
		c.stats.recordError()
		return err
	}
	res.Release()
	return nil
}

// --- Key/value commands ---

// Put stores value under key, overwriting any existing record.
func (c *Client) Put(ctx context.Context, key, value string) error {
	c.stats.recordPut()
	return c.with(ctx, func(conn *protocol.Conn) error {
		return conn.Put(ctx, key, value)
	})
}

// PutKeep stores value under key only if the key is absent.
func (c *Client) PutKeep(ctx context.Context, key, value string) error {
	c.stats.recordPut()
	return c.with(ctx, func(conn *protocol.Conn) error {
		return conn.PutKeep(ctx, key, value)
	})
}

// PutCat appends value to the record stored under key.
func (c *Client) PutCat(ctx context.Context, key, value string) error {
	c.stats.recordPut()
	return c.with(ctx, func(conn *protocol.Conn) error {
		return conn.PutCat(ctx, key, value)
	})
}

// PutSHL appends value and left-truncates the record to width bytes.
func (c *Client) PutSHL(ctx context.Context, key, value string, width int) error {
	c.stats.recordPut()
	return c.with(ctx, func(conn *protocol.Conn) error {
		return conn.PutSHL(ctx, key, value, width)
	})
}

// PutNR stores value under key without waiting for a response.
func (c *Client) PutNR(ctx context.Context, key, value string) error {
	c.stats.recordPut()
	return c.with(ctx, func(conn *protocol.Conn) error {
		return conn.PutNR(ctx, key, value)
	})
}

// Out deletes the record stored under key. An absent key fails with the
// record-not-found error kind; use protocol.IsRecordNotFound to tolerate it.
func (c *Client) Out(ctx context.Context, key string) error {
	c.stats.recordDelete()
	return c.with(ctx, func(conn *protocol.Conn) error {
		return conn.Out(ctx, key)
	})
}

// Get fetches the value stored under key as UTF-8 text.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		value, err = conn.Get(ctx, key)
		return err
	})
	c.stats.recordGet(err == nil)
	return value, err
}

// GetRaw fetches the value stored under key as raw bytes.
func (c *Client) GetRaw(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		value, err = conn.GetRaw(ctx, key)
		return err
	})
	c.stats.recordGet(err == nil)
	return value, err
}

// MGet fetches values for keys in one round trip. Only keys that exist
// appear in the result.
func (c *Client) MGet(ctx context.Context, keys []string) ([]protocol.KV, error) {
	var pairs []protocol.KV
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		pairs, err = conn.MGet(ctx, keys)
		return err
	})
	for i := range keys {
		c.stats.recordGet(i < len(pairs))
	}
	return pairs, err
}

// VSiz returns the byte size of the value stored under key.
func (c *Client) VSiz(ctx context.Context, key string) (int, error) {
	var n int
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		n, err = conn.VSiz(ctx, key)
		return err
	})
	return n, err
}

// FwmKeys returns up to maxKeys keys starting with prefix. A negative
// maxKeys means unbounded.
func (c *Client) FwmKeys(ctx context.Context, prefix string, maxKeys int) ([]string, error) {
	var keys []string
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		keys, err = conn.FwmKeys(ctx, prefix, maxKeys)
		return err
	})
	return keys, err
}

// AddInt atomically adds num to the integer stored under key and returns the
// new value.
func (c *Client) AddInt(ctx context.Context, key string, num int) (int, error) {
	c.stats.recordIncrement()
	var n int
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		n, err = conn.AddInt(ctx, key, num)
		return err
	})
	return n, err
}

// AddDouble atomically adds num to the double stored under key and returns
// the new value.
func (c *Client) AddDouble(ctx context.Context, key string, num float64) (float64, error) {
	c.stats.recordIncrement()
	var n float64
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		n, err = conn.AddDouble(ctx, key, num)
		return err
	})
	return n, err
}

// Ext invokes the server-side extension function name with key and value.
func (c *Client) Ext(ctx context.Context, name string, opts int, key, value string) (string, error) {
	var result string
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		result, err = conn.Ext(ctx, name, opts, key, value)
		return err
	})
	return result, err
}

// --- Batch commands ---

// PutList stores records in one round trip. items alternates key, value.
func (c *Client) PutList(ctx context.Context, items []string) error {
	for i := 0; i < len(items)/2; i++ {
		c.stats.recordPut()
	}
	return c.with(ctx, func(conn *protocol.Conn) error {
		return conn.PutList(ctx, items, 0)
	})
}

// OutList deletes records in one round trip. Absent keys are ignored.
func (c *Client) OutList(ctx context.Context, keys []string) error {
	for range keys {
		c.stats.recordDelete()
	}
	return c.with(ctx, func(conn *protocol.Conn) error {
		return conn.OutList(ctx, keys, 0)
	})
}

// GetList fetches records in one round trip, pairing only the keys that
// exist.
func (c *Client) GetList(ctx context.Context, keys []string) ([]protocol.KV, error) {
	var pairs []protocol.KV
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		pairs, err = conn.GetList(ctx, keys, 0)
		return err
	})
	return pairs, err
}

// Misc runs a generic multi-value command against the server.
func (c *Client) Misc(ctx context.Context, name string, args []string, opts int) ([]string, error) {
	var results []string
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		results, err = conn.Misc(ctx, name, args, opts)
		return err
	})
	return results, err
}

// --- Table commands ---

// PutTable stores a column map under key, overwriting any existing record.
func (c *Client) PutTable(ctx context.Context, key string, columns map[string]string) error {
	encoded, err := EncodeColumns(columns)
	if err != nil {
		return err
	}
	return c.Put(ctx, key, encoded)
}

// GetTable fetches the record stored under key and decodes it as a column
// map.
func (c *Client) GetTable(ctx context.Context, key string) (map[string]string, error) {
	value, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return DecodeColumns(value), nil
}

// GenUID returns a fresh unique ID from the table database.
func (c *Client) GenUID(ctx context.Context) (int64, error) {
	var id int64
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		id, err = conn.GenUID(ctx)
		return err
	})
	return id, err
}

// SetIndex creates, optimizes or removes the index on a table column. kind
// is one of the protocol.Index constants, optionally ORed with
// protocol.IndexKeep.
func (c *Client) SetIndex(ctx context.Context, column string, kind int) error {
	return c.with(ctx, func(conn *protocol.Conn) error {
		return conn.SetIndex(ctx, column, kind)
	})
}

// Query starts a lazy search over the table database.
func (c *Client) Query(conds ...Cond) *Query {
	q := newQuery(c)
	if len(conds) > 0 {
		return q.Filter(conds...)
	}
	return q
}

// runSearch implements queryRunner.
func (c *Client) runSearch(ctx context.Context, req *protocol.SearchRequest) ([]string, error) {
	c.stats.recordSearch()
	var results []string
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		results, err = conn.Search(ctx, req)
		return err
	})
	return results, err
}

// fetchValue implements queryRunner.
func (c *Client) fetchValue(ctx context.Context, key string) (string, error) {
	raw, err := c.GetRaw(ctx, key)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// --- Iteration ---

// Keys returns every key in the database. The iteration cursor is
// server-side per-connection state, so the whole scan is pinned to one
// pooled connection.
func (c *Client) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := c.with(ctx, func(conn *protocol.Conn) error {
		if err := conn.IterInit(ctx); err != nil {
			return err
		}
		for {
			key, err := conn.IterNext(ctx)
			if err != nil {
				if protocol.IsInvalidOperation(err) {
					return nil
				}
				return err
			}
			keys = append(keys, key)
		}
	})
	return keys, err
}

// --- Administrative commands ---

// Sync flushes the database to disk.
func (c *Client) Sync(ctx context.Context) error {
	return c.with(ctx, func(conn *protocol.Conn) error {
		return conn.Sync(ctx)
	})
}

// Vanish removes every record in the database.
func (c *Client) Vanish(ctx context.Context) error {
	return c.with(ctx, func(conn *protocol.Conn) error {
		return conn.Vanish(ctx)
	})
}

// Copy hot-copies the database file to path on the server host.
func (c *Client) Copy(ctx context.Context, path string) error {
	return c.with(ctx, func(conn *protocol.Conn) error {
		return conn.Copy(ctx, path)
	})
}

// Restore replays the update log at path from the given timestamp
// (microseconds since the epoch).
func (c *Client) Restore(ctx context.Context, path string, timestamp int64) error {
	return c.with(ctx, func(conn *protocol.Conn) error {
		return conn.Restore(ctx, path, timestamp)
	})
}

// SetMst points replication at the master host:port.
func (c *Client) SetMst(ctx context.Context, host string, port int) error {
	return c.with(ctx, func(conn *protocol.Conn) error {
		return conn.SetMst(ctx, host, port)
	})
}

// RNum returns the number of records in the database.
func (c *Client) RNum(ctx context.Context) (int64, error) {
	var n int64
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		n, err = conn.RNum(ctx)
		return err
	})
	return n, err
}

// Size returns the size of the database in bytes.
func (c *Client) Size(ctx context.Context) (int64, error) {
	var n int64
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		n, err = conn.Size(ctx)
		return err
	})
	return n, err
}

// Stat returns the server's statistics, parsed into a name-to-value map.
func (c *Client) Stat(ctx context.Context) (map[string]string, error) {
	var blob string
	err := c.with(ctx, func(conn *protocol.Conn) error {
		var err error
		blob, err = conn.Stat(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	stats := make(map[string]string)
	for _, line := range strings.Split(blob, "\n") {
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, "\t")
		if !found {
			continue
		}
		stats[name] = value
	}
	return stats, nil
}

// --- Health checks ---

func (c *Client) healthCheckLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopHealthCheck:
			return
		case <-ticker.C:
			c.checkPoolConnections()
		}
	}
}

// checkPoolConnections pings every idle connection and retires the stale and
// the dead. Busy connections are untouched.
func (c *Client) checkPoolConnections() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	for _, res := range c.pool.AcquireAllIdle() {
		conn := res.Value()
		switch {
		case conn.IsClosed():
			res.Destroy()
		case c.config.MaxConnLifetime > 0 && time.Since(res.CreationTime()) > c.config.MaxConnLifetime:
			res.Destroy()
		case c.config.MaxConnIdleTime > 0 && time.Since(conn.LastUsed()) > c.config.MaxConnIdleTime:
			res.Destroy()
		default:
			if err := c.ping(ctx, conn); err != nil {
				res.Destroy()
			} else {
				res.ReleaseUnused()
			}
		}
	}
}

// ping checks liveness with the cheapest read-only command the server has.
func (c *Client) ping(ctx context.Context, conn *protocol.Conn) error {
	_, err := conn.RNum(ctx)
	if err != nil && !errors.As(err, new(*protocol.ProtocolError)) {
		return err
	}
	return nil
}
