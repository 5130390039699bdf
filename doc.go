// Package tyrant is a client for the Tokyo Tyrant key/value and table
// database server.
//
// The root package provides a pooled, concurrency-safe Client for one
// server, a Cluster that shards keys across several servers, and a lazy
// Query builder for table database searches:
//
//	client, err := tyrant.NewClient("localhost:1978", tyrant.Config{})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	err = client.PutTable(ctx, "item:1", map[string]string{
//		"name": "Foo", "price": "80",
//	})
//
//	records, err := client.Query(tyrant.Where("price__lt", 100)).
//		OrderBy("-price", true).
//		All(ctx)
//
// The protocol subpackage exposes the wire protocol directly for callers
// that manage their own connections.
package tyrant
