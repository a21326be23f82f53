package batch

// CircuitBreaker counts consecutive transient failures within one batch
// run and opens once they reach the threshold, on the assumption that the
// tenant's backend is down rather than individual tickets being bad.
// One breaker lives per job and is touched by a single goroutine, so no
// locking is needed.
type CircuitBreaker struct {
	threshold   int
	consecutive int
}

// NewCircuitBreaker creates a breaker that opens after threshold
// consecutive transient failures.
func NewCircuitBreaker(threshold int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &CircuitBreaker{threshold: threshold}
}

// RecordSuccess resets the consecutive-failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.consecutive = 0
}

// RecordFailure feeds a final per-ticket failure into the breaker. Only
// transient failures count toward opening; a permanent failure proves the
// backend responded and resets the streak.
func (b *CircuitBreaker) RecordFailure(err error) {
	if IsTransient(err) {
		b.consecutive++
		return
	}
	b.consecutive = 0
}

// Open reports whether the breaker has tripped.
func (b *CircuitBreaker) Open() bool {
	return b.consecutive >= b.threshold
}

// Consecutive returns the current transient-failure streak.
func (b *CircuitBreaker) Consecutive() int {
	return b.consecutive
}
