package protocol

import (
	"context"
	"math"
	"strconv"
)

// KV is one key/value pair from a batch fetch.
type KV struct {
	Key   string
	Value string
}

// Put stores value under key, overwriting any existing record.
func (c *Conn) Put(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return err
	}
	defer c.done()
	return c.request(CmdPut, len(key), len(value), key, value)
}

// PutKeep stores value under key only if the key is absent. A present key
// fails with the record-exists error kind.
func (c *Conn) PutKeep(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return err
	}
	defer c.done()
	return c.request(CmdPutKeep, len(key), len(value), key, value)
}

// PutCat appends value to the record stored under key, creating it if
// absent.
func (c *Conn) PutCat(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return err
	}
	defer c.done()
	return c.request(CmdPutCat, len(key), len(value), key, value)
}

// PutSHL appends value and then truncates the record from the left to width
// bytes, bounding record growth.
func (c *Conn) PutSHL(ctx context.Context, key, value string, width int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return err
	}
	defer c.done()
	return c.request(CmdPutSHL, len(key), len(value), width, key, value)
}

// PutNR stores value under key without waiting for a response. Errors are
// not surfaced; the caller accepts eventual-consistency risk.
func (c *Conn) PutNR(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return err
	}
	defer c.done()
	return c.write(CmdPutNR, len(key), len(value), key, value)
}

// Out deletes the record stored under key. An absent key fails with the
// record-not-found error kind.
func (c *Conn) Out(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return err
	}
	defer c.done()
	return c.request(CmdOut, len(key), key)
}

// Get fetches the value stored under key as UTF-8 text. Invalid UTF-8 fails
// with an EncodingError; use GetRaw for arbitrary bytes.
func (c *Conn) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return "", err
	}
	defer c.done()
	if err := c.request(CmdGet, len(key), key); err != nil {
		return "", err
	}
	return c.readString()
}

// GetRaw fetches the value stored under key as raw bytes.
func (c *Conn) GetRaw(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return nil, err
	}
	defer c.done()
	if err := c.request(CmdGet, len(key), key); err != nil {
		return nil, err
	}
	return c.readBytes()
}

// MGet fetches values for keys in one round trip. Only keys that exist are
// returned: asking for 3 keys may yield 0 to 3 pairs.
func (c *Conn) MGet(ctx context.Context, keys []string) ([]KV, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return nil, err
	}
	defer c.done()
	if err := c.request(CmdMGet, len(keys), keys); err != nil {
		return nil, err
	}
	count, err := c.readUint32()
	if err != nil {
		return nil, err
	}
	pairs := make([]KV, 0, count)
	for i := uint32(0); i < count; i++ {
		k, v, err := c.readPair()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, KV{Key: k, Value: v})
	}
	return pairs, nil
}

// VSiz returns the byte size of the value stored under key.
func (c *Conn) VSiz(ctx context.Context, key string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return 0, err
	}
	defer c.done()
	if err := c.request(CmdVSiz, len(key), key); err != nil {
		return 0, err
	}
	n, err := c.readUint32()
	return int(n), err
}

// IterInit resets the connection's key cursor. The cursor is server-side
// state owned by this connection: two interleaved iterations on one
// connection corrupt each other.
func (c *Conn) IterInit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return err
	}
	defer c.done()
	return c.request(CmdIterInit)
}

// IterNext returns the next key from the cursor. Once all keys have been
// yielded it fails with the invalid-operation error kind.
func (c *Conn) IterNext(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return "", err
	}
	defer c.done()
	if err := c.request(CmdIterNext); err != nil {
		return "", err
	}
	return c.readString()
}

// FwmKeys returns up to maxKeys keys starting with prefix. A negative
// maxKeys means unbounded.
func (c *Conn) FwmKeys(ctx context.Context, prefix string, maxKeys int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return nil, err
	}
	defer c.done()
	if err := c.request(CmdFwmKeys, len(prefix), maxKeys, prefix); err != nil {
		return nil, err
	}
	count, err := c.readUint32()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		k, err := c.readString()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// AddInt atomically adds num to the integer stored under key, creating the
// record with num if absent, and returns the new value. A non-numeric
// record fails with the invalid-operation error kind.
func (c *Conn) AddInt(ctx context.Context, key string, num int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return 0, err
	}
	defer c.done()
	if err := c.request(CmdAddInt, len(key), num, key); err != nil {
		return 0, err
	}
	n, err := c.readUint32()
	return int(int32(n)), err
}

// AddDouble atomically adds num to the double stored under key and returns
// the new value. The double travels in the protocol's fixed-point encoding:
// integer part and round(fractional*1e12), each a big-endian uint64.
func (c *Conn) AddDouble(ctx context.Context, key string, num float64) (float64, error) {
	intPart, fracPart := math.Modf(num)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return 0, err
	}
	defer c.done()
	err := c.request(CmdAddDbl, len(key), int64(intPart), int64(math.Round(fracPart*1e12)), key)
	if err != nil {
		return 0, err
	}
	return c.readDouble()
}

// Ext invokes the server-side extension function name with key and value.
// opts is a bitmask of ExtLockRecord and ExtLockGlobal. An unknown function
// fails with the invalid-operation error kind.
func (c *Conn) Ext(ctx context.Context, name string, opts int, key, value string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return "", err
	}
	defer c.done()
	if err := c.request(CmdExt, len(name), opts, len(key), len(value), name, key, value); err != nil {
		return "", err
	}
	return c.readString()
}

// Sync flushes the database to disk.
func (c *Conn) Sync(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return err
	}
	defer c.done()
	return c.request(CmdSync)
}

// Vanish removes every record in the database.
func (c *Conn) Vanish(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return err
	}
	defer c.done()
	return c.request(CmdVanish)
}

// Copy hot-copies the database file to path on the server host.
func (c *Conn) Copy(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return err
	}
	defer c.done()
	return c.request(CmdCopy, len(path), path)
}

// Restore replays the update log at path from the given timestamp
// (microseconds since the epoch).
func (c *Conn) Restore(ctx context.Context, path string, timestamp int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return err
	}
	defer c.done()
	return c.request(CmdRestore, len(path), timestamp, path)
}

// SetMst points replication at the master host:port.
func (c *Conn) SetMst(ctx context.Context, host string, port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return err
	}
	defer c.done()
	return c.request(CmdSetMst, len(host), port, host)
}

// RNum returns the number of records in the database.
func (c *Conn) RNum(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return 0, err
	}
	defer c.done()
	if err := c.request(CmdRNum); err != nil {
		return 0, err
	}
	n, err := c.readUint64()
	return int64(n), err
}

// Size returns the size of the database in bytes.
func (c *Conn) Size(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return 0, err
	}
	defer c.done()
	if err := c.request(CmdSize); err != nil {
		return 0, err
	}
	n, err := c.readUint64()
	return int64(n), err
}

// Stat returns the server's statistics blob: one "name\tvalue" pair per
// line.
func (c *Conn) Stat(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return "", err
	}
	defer c.done()
	if err := c.request(CmdStat); err != nil {
		return "", err
	}
	return c.readString()
}

// Misc runs a generic multi-value command: putlist, outlist, getlist,
// setindex, search, genuid. The response carries the element count after
// the status byte on both the success and the error path, so the count is
// always consumed before an error is returned.
func (c *Conn) Misc(ctx context.Context, name string, args []string, opts int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(ctx); err != nil {
		return nil, err
	}
	defer c.done()
	if err := c.write(CmdMisc, len(name), opts, len(args), name, args); err != nil {
		return nil, err
	}
	status, err := c.readByte()
	if err != nil {
		return nil, err
	}
	count, err := c.readUint32()
	if err != nil {
		return nil, err
	}
	if status != 0 {
		return nil, errorForCode(status)
	}
	results := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		s, err := c.readString()
		if err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, nil
}

// PutList stores records in one round trip. items alternates key, value,
// key, value.
func (c *Conn) PutList(ctx context.Context, items []string, opts int) error {
	if len(items)%2 != 0 {
		return &ArgumentError{Message: "putlist needs alternating key/value items"}
	}
	_, err := c.Misc(ctx, "putlist", items, opts)
	return err
}

// OutList deletes records in one round trip. Absent keys are ignored.
func (c *Conn) OutList(ctx context.Context, keys []string, opts int) error {
	_, err := c.Misc(ctx, "outlist", keys, opts)
	return err
}

// GetList fetches records in one round trip. The result alternates key,
// value for the keys that exist.
func (c *Conn) GetList(ctx context.Context, keys []string, opts int) ([]KV, error) {
	flat, err := c.Misc(ctx, "getlist", keys, opts)
	if err != nil {
		return nil, err
	}
	if len(flat)%2 != 0 {
		return nil, &ParseError{Message: "getlist returned an odd number of elements"}
	}
	pairs := make([]KV, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		pairs = append(pairs, KV{Key: flat[i], Value: flat[i+1]})
	}
	return pairs, nil
}

// GenUID returns a fresh unique ID from the table database.
func (c *Conn) GenUID(ctx context.Context) (int64, error) {
	res, err := c.Misc(ctx, "genuid", nil, 0)
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, &ParseError{Message: "genuid returned no value"}
	}
	id, err := strconv.ParseInt(res[0], 10, 64)
	if err != nil {
		return 0, &ParseError{Message: "genuid returned a non-numeric value", Err: err}
	}
	return id, nil
}

// SetIndex creates, optimizes or removes the index on a column of a table
// database. kind is one of the Index constants, optionally ORed with
// IndexKeep.
func (c *Conn) SetIndex(ctx context.Context, column string, kind int) error {
	_, err := c.Misc(ctx, "setindex", []string{column, strconv.Itoa(kind)}, 0)
	return err
}
