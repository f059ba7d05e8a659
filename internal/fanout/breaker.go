package fanout

import (
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// breaker tracks consecutive delivery failures toward one peer.
type breaker struct {
	state    breakerState
	failures int
	openedAt time.Time

	// retryAt is set from a peer's Retry-After header. A backoff is not
	// a failure; it never trips the breaker.
	retryAt time.Time
}

// breakerSet holds one breaker per {actor, peer} pair. After threshold
// consecutive failures the pair opens and deliveries are skipped until
// the cooldown elapses, after which a single probe is let through.
type breakerSet struct {
	mu        sync.Mutex
	peers     map[string]*breaker
	threshold int
	cooldown  time.Duration

	now func() time.Time
}

func newBreakerSet(threshold int, cooldown time.Duration) *breakerSet {
	return &breakerSet{
		peers:     make(map[string]*breaker),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (s *breakerSet) get(key string) *breaker {
	b, ok := s.peers[key]
	if !ok {
		b = &breaker{}
		s.peers[key] = b
	}
	return b
}

// allow reports whether a delivery toward the peer may proceed.
func (s *breakerSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(key)
	now := s.now()

	if now.Before(b.retryAt) {
		return false
	}

	switch b.state {
	case stateOpen:
		if now.Sub(b.openedAt) < s.cooldown {
			return false
		}
		b.state = stateHalfOpen
		return true
	default:
		return true
	}
}

// success closes the breaker and clears any pending backoff.
func (s *breakerSet) success(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(key)
	b.state = stateClosed
	b.failures = 0
	b.retryAt = time.Time{}
}

// failure counts one consecutive failure. A failed half-open probe
// reopens immediately.
func (s *breakerSet) failure(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(key)
	b.failures++
	if b.state == stateHalfOpen || b.failures >= s.threshold {
		b.state = stateOpen
		b.openedAt = s.now()
	}
}

// backoff defers deliveries toward the peer until the given duration
// has elapsed, without counting a failure.
func (s *breakerSet) backoff(key string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.get(key).retryAt = s.now().Add(d)
}
