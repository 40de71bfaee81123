package gateway

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// BreakerState is the externally visible state of one upstream's breaker.
type BreakerState string

const (
	BreakerClosed BreakerState = "closed"
	BreakerOpen   BreakerState = "open"
)

// Breaker tracks consecutive failures per upstream service and opens after a
// threshold is reached. An open breaker stays open for the cooldown window;
// the expiry is checked lazily on the next Allow call, there are no timers.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	services  map[string]*breakerEntry

	now func() time.Time
}

type breakerEntry struct {
	failures int
	openedAt time.Time
	open     bool
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		services:  make(map[string]*breakerEntry),
		now:       time.Now,
	}
}

// Allow reports whether a live call to the service may proceed. When an open
// breaker's cooldown has elapsed the breaker resets and the call is allowed
// as a probe.
func (b *Breaker) Allow(service string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.services[service]
	if !ok || !e.open {
		return true
	}
	if b.now().Sub(e.openedAt) >= b.cooldown {
		e.open = false
		e.failures = 0
		log.Info().Str("service", service).Msg("circuit breaker cooldown elapsed, probing")
		return true
	}
	return false
}

// Success resets the failure count for the service.
func (b *Breaker) Success(service string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.services[service]; ok {
		e.failures = 0
		e.open = false
	}
}

// Failure records a failed call. Reaching the threshold opens the breaker.
func (b *Breaker) Failure(service string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.services[service]
	if !ok {
		e = &breakerEntry{}
		b.services[service] = e
	}
	e.failures++
	if e.failures >= b.threshold && !e.open {
		e.open = true
		e.openedAt = b.now()
		log.Warn().
			Str("service", service).
			Int("failures", e.failures).
			Dur("cooldown", b.cooldown).
			Msg("circuit breaker opened")
	}
}

// State returns the current state of one service's breaker.
func (b *Breaker) State(service string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.services[service]
	if !ok || !e.open {
		return BreakerClosed
	}
	if b.now().Sub(e.openedAt) >= b.cooldown {
		return BreakerClosed
	}
	return BreakerOpen
}

// States snapshots every tracked service for the ops endpoint.
func (b *Breaker) States() map[string]BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]BreakerState, len(b.services))
	for name, e := range b.services {
		state := BreakerClosed
		if e.open && b.now().Sub(e.openedAt) < b.cooldown {
			state = BreakerOpen
		}
		out[name] = state
	}
	return out
}
