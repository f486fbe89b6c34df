// Package ratelimit provides debounce and throttle wrappers with an explicit
// edge policy, driven by an injectable clock so their coalescing behavior can
// be tested without sleeping.
package ratelimit

import (
	"sync"
	"time"

	"github.com/bhandras/delight-chat/internal/actor"
)

// Edge selects on which side of a window a call is dispatched.
type Edge uint8

const (
	// Leading dispatches the first call of a burst immediately.
	Leading Edge = 1 << iota
	// Trailing dispatches once more at the end of a window if any call arrived
	// while the window was open.
	Trailing

	// BothEdges is the default policy.
	BothEdges = Leading | Trailing
)

// Mode distinguishes the two window policies.
type Mode int

const (
	// ModeDebounce restarts the window on every call, so a steady stream of
	// calls keeps deferring the trailing dispatch.
	ModeDebounce Mode = iota
	// ModeThrottle keeps a fixed window and reopens it after a trailing
	// dispatch, capping the dispatch rate at one per window.
	ModeThrottle
)

func (m Mode) String() string {
	switch m {
	case ModeDebounce:
		return "debounce"
	case ModeThrottle:
		return "throttle"
	default:
		return "unknown"
	}
}

// Limiter coalesces calls to fn according to its mode and edge policy.
type Limiter struct {
	mu      sync.Mutex
	clock   actor.Clock
	mode    Mode
	edges   Edge
	window  time.Duration
	fn      func()
	timer   actor.Timer
	gen     uint64
	pending bool
	stopped bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source used for windows.
func WithClock(clock actor.Clock) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithEdges sets the edge policy. A zero policy falls back to BothEdges.
func WithEdges(edges Edge) Option {
	return func(l *Limiter) {
		if edges != 0 {
			l.edges = edges
		}
	}
}

// New creates a limiter in the given mode.
func New(mode Mode, window time.Duration, fn func(), opts ...Option) *Limiter {
	l := &Limiter{
		clock:  actor.RealClock{},
		mode:   mode,
		edges:  BothEdges,
		window: window,
		fn:     fn,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.fn == nil {
		l.fn = func() {}
	}
	return l
}

// NewDebounce returns a debouncing limiter.
func NewDebounce(window time.Duration, fn func(), opts ...Option) *Limiter {
	return New(ModeDebounce, window, fn, opts...)
}

// NewThrottle returns a throttling limiter.
func NewThrottle(window time.Duration, fn func(), opts ...Option) *Limiter {
	return New(ModeThrottle, window, fn, opts...)
}

// Call requests a dispatch. A leading dispatch runs synchronously on the
// caller's goroutine; trailing dispatches run on the clock's timer goroutine.
func (l *Limiter) Call() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	if l.window <= 0 {
		l.mu.Unlock()
		l.fn()
		return
	}

	if l.timer == nil {
		l.armLocked()
		if l.edges&Leading != 0 {
			l.mu.Unlock()
			l.fn()
			return
		}
		l.pending = true
		l.mu.Unlock()
		return
	}

	if l.edges&Trailing != 0 {
		l.pending = true
	}
	if l.mode == ModeDebounce {
		l.timer.Stop()
		l.armLocked()
	}
	l.mu.Unlock()
}

// Stop cancels any pending trailing dispatch. Calls after Stop are ignored.
func (l *Limiter) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	l.pending = false
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Limiter) armLocked() {
	l.gen++
	gen := l.gen
	l.timer = l.clock.AfterFunc(l.window, func() { l.expire(gen) })
}

func (l *Limiter) expire(gen uint64) {
	l.mu.Lock()
	if l.stopped || gen != l.gen {
		l.mu.Unlock()
		return
	}
	if !l.pending {
		l.timer = nil
		l.mu.Unlock()
		return
	}

	l.pending = false
	if l.mode == ModeThrottle {
		l.armLocked()
	} else {
		l.timer = nil
	}
	l.mu.Unlock()
	l.fn()
}
