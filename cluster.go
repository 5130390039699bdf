package tyrant

import (
	"context"
	"sync"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/tyrantdb/tyrant/internal"
	"github.com/tyrantdb/tyrant/protocol"
)

// Cluster shards keys across several Tyrant servers with consistent jump
// hashing. Key-addressed commands route to one shard; MGet fans out to the
// shards that own the keys; administrative commands broadcast.
//
// Table searches do not shard (a query would have to merge ordered result
// sets across servers); run queries against an individual shard via Shard or
// Clients.
type Cluster struct {
	addrs   []string
	clients []*Client
}

// NewCluster creates one pooled client per address. At least one address is
// required.
func NewCluster(addrs []string, config Config) (*Cluster, error) {
	if len(addrs) == 0 {
		return nil, &protocol.ArgumentError{Message: "cluster needs at least one server address"}
	}
	cl := &Cluster{addrs: append([]string(nil), addrs...)}
	for _, addr := range cl.addrs {
		client, err := NewClient(addr, config)
		if err != nil {
			for _, open := range cl.clients {
				open.Close()
			}
			return nil, err
		}
		cl.clients = append(cl.clients, client)
	}
	return cl, nil
}

// Close closes every shard client.
func (cl *Cluster) Close() {
	for _, c := range cl.clients {
		c.Close()
	}
}

// Clients returns the shard clients, index-aligned with the addresses given
// to NewCluster.
func (cl *Cluster) Clients() []*Client {
	return cl.clients
}

// Shard returns the client owning key.
func (cl *Cluster) Shard(key string) *Client {
	return cl.clients[cl.shardIndex(key)]
}

func (cl *Cluster) shardIndex(key string) int {
	return internal.JumpHash(xxh3.HashString(key), len(cl.clients))
}

// Put stores value under key on the owning shard.
func (cl *Cluster) Put(ctx context.Context, key, value string) error {
	return cl.Shard(key).Put(ctx, key, value)
}

// PutKeep stores value under key on the owning shard only if absent.
func (cl *Cluster) PutKeep(ctx context.Context, key, value string) error {
	return cl.Shard(key).PutKeep(ctx, key, value)
}

// PutCat appends value to the record on the owning shard.
func (cl *Cluster) PutCat(ctx context.Context, key, value string) error {
	return cl.Shard(key).PutCat(ctx, key, value)
}

// Out deletes the record from the owning shard.
func (cl *Cluster) Out(ctx context.Context, key string) error {
	return cl.Shard(key).Out(ctx, key)
}

// Get fetches the value from the owning shard.
func (cl *Cluster) Get(ctx context.Context, key string) (string, error) {
	return cl.Shard(key).Get(ctx, key)
}

// VSiz returns the value size from the owning shard.
func (cl *Cluster) VSiz(ctx context.Context, key string) (int, error) {
	return cl.Shard(key).VSiz(ctx, key)
}

// AddInt adds num to the integer on the owning shard.
func (cl *Cluster) AddInt(ctx context.Context, key string, num int) (int, error) {
	return cl.Shard(key).AddInt(ctx, key, num)
}

// AddDouble adds num to the double on the owning shard.
func (cl *Cluster) AddDouble(ctx context.Context, key string, num float64) (float64, error) {
	return cl.Shard(key).AddDouble(ctx, key, num)
}

// PutTable stores a column map under key on the owning shard.
func (cl *Cluster) PutTable(ctx context.Context, key string, columns map[string]string) error {
	return cl.Shard(key).PutTable(ctx, key, columns)
}

// GetTable fetches the column map from the owning shard.
func (cl *Cluster) GetTable(ctx context.Context, key string) (map[string]string, error) {
	return cl.Shard(key).GetTable(ctx, key)
}

// MGet fetches values for keys across the cluster: keys are grouped per
// shard and the per-shard batches run concurrently. Only keys that exist
// appear in the result; ordering is unspecified.
func (cl *Cluster) MGet(ctx context.Context, keys []string) ([]protocol.KV, error) {
	grouped := make(map[int][]string)
	for _, key := range keys {
		i := cl.shardIndex(key)
		grouped[i] = append(grouped[i], key)
	}

	var mu sync.Mutex
	var pairs []protocol.KV
	g, ctx := errgroup.WithContext(ctx)
	for i, shardKeys := range grouped {
		i, shardKeys := i, shardKeys
		g.Go(func() error {
			shardPairs, err := cl.clients[i].MGet(ctx, shardKeys)
			if err != nil {
				return err
			}
			mu.Lock()
			pairs = append(pairs, shardPairs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// Vanish removes every record on every shard.
func (cl *Cluster) Vanish(ctx context.Context) error {
	return cl.broadcast(ctx, func(ctx context.Context, c *Client) error {
		return c.Vanish(ctx)
	})
}

// Sync flushes every shard to disk.
func (cl *Cluster) Sync(ctx context.Context) error {
	return cl.broadcast(ctx, func(ctx context.Context, c *Client) error {
		return c.Sync(ctx)
	})
}

// RNum returns the total number of records across all shards.
func (cl *Cluster) RNum(ctx context.Context) (int64, error) {
	counts := make([]int64, len(cl.clients))
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range cl.clients {
		i, c := i, c
		g.Go(func() error {
			n, err := c.RNum(ctx)
			counts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

func (cl *Cluster) broadcast(ctx context.Context, fn func(ctx context.Context, c *Client) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range cl.clients {
		c := c
		g.Go(func() error {
			return fn(ctx, c)
		})
	}
	return g.Wait()
}
