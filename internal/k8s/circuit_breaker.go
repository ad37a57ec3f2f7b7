package k8s

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/metrics"
)

// ErrCircuitOpen is returned while the breaker is failing fast.
var ErrCircuitOpen = errors.New("circuit breaker is open: cluster API unavailable")

// CircuitBreakerState is the state of a CircuitBreaker.
type CircuitBreakerState int

const (
	StateClosed   CircuitBreakerState = iota // Normal operation
	StateOpen                                // Failing fast
	StateHalfOpen                            // One probe allowed
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker stops snapshot collection against a cluster that keeps failing.
// After failureThreshold consecutive unavailability errors it opens for
// openDuration, then lets a single probe through.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	openDuration     time.Duration
	kubeContext      string // metrics label
	now              func() time.Time

	state         CircuitBreakerState
	failureCount  int
	openedAt      time.Time
	probeInFlight bool
}

// NewCircuitBreaker creates a breaker that opens after 5 failures for 30 seconds.
func NewCircuitBreaker(kubeContext string) *CircuitBreaker {
	cb := &CircuitBreaker{
		failureThreshold: 5,
		openDuration:     30 * time.Second,
		kubeContext:      kubeContext,
		now:              time.Now,
	}
	metrics.LiveCircuitBreakerState.WithLabelValues(kubeContext).Set(float64(StateClosed))
	return cb
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(next CircuitBreakerState) {
	if cb.state == next {
		return
	}
	metrics.LiveCircuitBreakerTransitionsTotal.WithLabelValues(cb.kubeContext, cb.state.String(), next.String()).Inc()
	metrics.LiveCircuitBreakerState.WithLabelValues(cb.kubeContext).Set(float64(next))
	cb.state = next
}

// Execute runs fn unless the breaker is open. Only errors that suggest the
// cluster is unreachable count as failures; a forbidden list does not.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.openDuration {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probeInFlight = true
	case StateHalfOpen:
		if cb.probeInFlight {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probeInFlight = true
	}
	cb.mu.Unlock()

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false

	if err == nil {
		cb.failureCount = 0
		cb.setState(StateClosed)
		return nil
	}
	if !isUnavailable(err) {
		cb.failureCount = 0
		if cb.state == StateHalfOpen {
			cb.setState(StateClosed)
		}
		return err
	}

	cb.failureCount++
	if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
		cb.openedAt = cb.now()
		cb.setState(StateOpen)
	}
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the consecutive failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

var unavailableMessages = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"network is unreachable",
}

// isUnavailable reports whether err means the API server could not be reached
// or kept failing: timeouts, network errors, and what isRetryable accepts.
func isUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || isRetryable(err) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	msg := err.Error()
	for _, m := range unavailableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
