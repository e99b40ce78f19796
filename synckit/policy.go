package synckit

import (
	"sync"
	"time"
)

// PullPolicy decides when a pull should be requested. The request flag is
// raised by the first activation, by an offline-to-online transition, by a
// non-empty set of entities in error, and by the pull interval elapsing since
// the flag was last cleared. It is cleared by Clear once a pull begins.
//
// PullPolicy is safe for concurrent use.
type PullPolicy struct {
	interval time.Duration

	mu          sync.Mutex
	requested   bool
	activated   bool
	lastOffline *bool
	hadErrors   bool
	lastCleared time.Time
}

// NewPullPolicy returns a policy that re-requests a pull every interval.
// A non-positive interval disables the periodic request.
func NewPullPolicy(interval time.Duration) *PullPolicy {
	return &PullPolicy{interval: interval}
}

// Activate raises the flag the first time it is called. now starts the
// interval clock.
func (p *PullPolicy) Activate(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.activated {
		return p.requested
	}
	p.activated = true
	p.requested = true
	p.lastCleared = now
	return p.requested
}

// ObserveConnectivity raises the flag on an offline-to-online edge. The first
// observation only records the state.
func (p *PullPolicy) ObserveConnectivity(offline bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastOffline != nil && *p.lastOffline && !offline {
		p.requested = true
	}
	p.lastOffline = &offline
	return p.requested
}

// ObserveErrors raises the flag while errorIDs is non-empty and lowers it
// when the set becomes empty.
func (p *PullPolicy) ObserveErrors(errorIDs []string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(errorIDs) > 0 {
		p.requested = true
		p.hadErrors = true
	} else if p.hadErrors {
		p.requested = false
		p.hadErrors = false
	}
	return p.requested
}

// Tick raises the flag if the interval has elapsed since it was last cleared.
func (p *PullPolicy) Tick(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.requested && p.interval > 0 && !p.lastCleared.IsZero() && now.Sub(p.lastCleared) >= p.interval {
		p.requested = true
	}
	return p.requested
}

// Request raises the flag unconditionally.
func (p *PullPolicy) Request() {
	p.mu.Lock()
	p.requested = true
	p.mu.Unlock()
}

// Clear lowers the flag; call it when a pull actually begins.
func (p *PullPolicy) Clear(now time.Time) {
	p.mu.Lock()
	p.requested = false
	p.lastCleared = now
	p.mu.Unlock()
}

// Requested returns the current flag.
func (p *PullPolicy) Requested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requested
}

// GateState is the input of the pull dispatch gate.
type GateState struct {
	LoggedIn      bool
	Offline       bool
	Foreground    bool
	UnsyncedIDs   []string
	PullRequested bool
}

// CanDispatchPull reports whether a pull may start now: the user is logged
// in, the device is online and in the foreground, no local edits are waiting
// to be pushed and a pull was requested. Pushes always go first.
func CanDispatchPull(s GateState) bool {
	return s.LoggedIn &&
		!s.Offline &&
		s.Foreground &&
		len(s.UnsyncedIDs) == 0 &&
		s.PullRequested
}

// CanDispatchPush reports whether pending edits may be pushed now.
func CanDispatchPush(s GateState) bool {
	return s.LoggedIn && !s.Offline && len(s.UnsyncedIDs) > 0
}

// debouncer reports a boolean signal only after it has held the same value
// for the debounce window.
type debouncer struct {
	window    time.Duration
	init      bool
	stable    bool
	candidate bool
	since     time.Time
}

func (d *debouncer) observe(raw bool, now time.Time) bool {
	if !d.init {
		d.init = true
		d.stable, d.candidate, d.since = raw, raw, now
		return d.stable
	}
	if raw != d.candidate {
		d.candidate = raw
		d.since = now
	}
	if d.candidate != d.stable && now.Sub(d.since) >= d.window {
		d.stable = d.candidate
	}
	return d.stable
}
