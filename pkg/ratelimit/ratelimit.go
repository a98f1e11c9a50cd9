// Package ratelimit throttles requests to the JWKS endpoint.
//
// The limiter counts requests over an exact rolling one minute window: it
// remembers when the last N accepted requests happened and accepts another
// one only once the oldest of them is a full window old. Requests over the
// limit are rejected straight away; nothing blocks or queues.
package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Window is the length of the rolling window.
const Window = time.Minute

// Limiter allows at most a fixed number of requests in any Window. It is safe
// for concurrent use.
type Limiter struct {
	clock clockwork.Clock
	limit int

	mu sync.Mutex
	// accepted holds the times of the most recent accepted requests, oldest
	// first. It never holds more than limit entries.
	accepted []time.Time
}

// New returns a limiter allowing requestsPerMinute requests per Window. A nil
// clock means the real clock.
func New(requestsPerMinute int, clock clockwork.Clock) *Limiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if requestsPerMinute < 0 {
		requestsPerMinute = 0
	}
	return &Limiter{
		clock:    clock,
		limit:    requestsPerMinute,
		accepted: make([]time.Time, 0, requestsPerMinute),
	}
}

// Allow reports whether one more request fits in the rolling window ending
// now, and counts it if it does.
func (l *Limiter) Allow() bool {
	if l.limit == 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if len(l.accepted) == l.limit {
		if now.Sub(l.accepted[0]) < Window {
			return false
		}
		copy(l.accepted, l.accepted[1:])
		l.accepted = l.accepted[:len(l.accepted)-1]
	}
	l.accepted = append(l.accepted, now)
	return true
}

// Limit returns the number of requests allowed per Window.
func (l *Limiter) Limit() int {
	return l.limit
}
