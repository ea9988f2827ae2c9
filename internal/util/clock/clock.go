package clock

import (
	"sync"
	"time"
)

// Clock abstracts time source for testability.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

var (
	mu sync.RWMutex
	// current is the global clock. Replace via Set in tests.
	current Clock = systemClock{}
)

// Now returns current time from the default clock.
func Now() time.Time {
	mu.RLock()
	c := current
	mu.RUnlock()
	return c.Now()
}

// Set replaces the default clock and returns a restore function.
func Set(c Clock) (restore func()) {
	mu.Lock()
	prev := current
	current = c
	mu.Unlock()
	return func() {
		mu.Lock()
		current = prev
		mu.Unlock()
	}
}

// UTCNow returns the current time in UTC via the default clock.
func UTCNow() time.Time { return Now().UTC() }

// NowUTCFormatted formats current time in UTC with the given layout.
func NowUTCFormatted(layout string) string { return UTCNow().Format(layout) }

// Manual is a settable clock for tests.
type Manual struct {
	mu sync.Mutex
	t  time.Time
}

func NewManual(t time.Time) *Manual { return &Manual{t: t} }

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.t = m.t.Add(d)
	m.mu.Unlock()
}

func (m *Manual) SetTime(t time.Time) {
	m.mu.Lock()
	m.t = t
	m.mu.Unlock()
}
