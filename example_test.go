package tyrant_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tyrantdb/tyrant"
	"github.com/tyrantdb/tyrant/protocol"
)

func ExampleClient() {
	client, err := tyrant.NewClient("localhost:1978", tyrant.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Put(ctx, "greeting", "hello"); err != nil {
		log.Fatal(err)
	}

	value, err := client.Get(ctx, "greeting")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(value)
}

func ExampleClient_Get_missing() {
	client, err := tyrant.NewClient("localhost:1978", tyrant.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	_, err = client.Get(context.Background(), "no-such-key")
	if protocol.IsRecordNotFound(err) {
		fmt.Println("not found")
	}
}

func ExampleClient_Query() {
	client, err := tyrant.NewClient("localhost:1978", tyrant.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()
	records, err := client.Query(tyrant.Where("price__lt", 100)).
		Filter(tyrant.Where("stock__between", []int{1, 50})).
		OrderBy("-price", true).
		All(ctx)
	if err != nil {
		log.Fatal(err)
	}
	for _, rec := range records {
		fmt.Println(rec.Key, rec.Column("price"))
	}
}

func ExampleNewCircuitBreakerConfig() {
	config := tyrant.Config{
		NewCircuitBreaker: tyrant.NewCircuitBreakerConfig(2, time.Minute, 30*time.Second),
	}
	client, err := tyrant.NewClient("localhost:1978", config)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()
}

func ExampleCluster() {
	cluster, err := tyrant.NewCluster(
		[]string{"db1:1978", "db2:1978", "db3:1978"},
		tyrant.Config{},
	)
	if err != nil {
		log.Fatal(err)
	}
	defer cluster.Close()

	ctx := context.Background()
	if err := cluster.Put(ctx, "user:42", "Alice"); err != nil {
		log.Fatal(err)
	}

	pairs, err := cluster.MGet(ctx, []string{"user:42", "user:43"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(len(pairs))
}
