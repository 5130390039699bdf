package tyrant

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tyrantdb/tyrant/protocol"
)

// CircuitBreaker guards a server against request storms while it is down.
// Satisfied by gobreaker.CircuitBreaker[any].
type CircuitBreaker interface {
	Execute(fn func() (any, error)) (any, error)
	State() gobreaker.State
}

// NewCircuitBreakerConfig returns a breaker factory for Config.
// Only connection-level failures count against the breaker: server-side
// protocol errors (record not found, record exists, ...) are normal
// outcomes on a healthy connection.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(addr string) CircuitBreaker {
	return func(addr string) CircuitBreaker {
		settings := gobreaker.Settings{
			Name:        addr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !protocol.ShouldCloseConnection(err)
			},
		}
		return gobreaker.NewCircuitBreaker[any](settings)
	}
}
