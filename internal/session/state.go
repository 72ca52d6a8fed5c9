// Package session implements the exchange session clients: small state
// machines layered over callback-driven session collaborators.
package session

import (
	"context"
	"sync"
)

// State is a session lifecycle state
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateLoggingIn
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateLoggingIn:
		return "logging_in"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// lifecycle tracks a client's state and signals the first terminal
// outcome (ready or failed) exactly once. Later transitions update the
// state but never re-arm the signal.
type lifecycle struct {
	mu      sync.Mutex
	state   State
	err     error
	outcome error // captured at the first settle; nil means ready
	settled chan struct{}
	done    bool
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		state:   StateDisconnected,
		settled: make(chan struct{}),
	}
}

// State returns the current state.
func (l *lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the terminal error, if any.
func (l *lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// transition moves to an intermediate state.
func (l *lifecycle) transition(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// settleReady marks the session ready and releases WaitReady callers.
func (l *lifecycle) settleReady() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateReady
	if !l.done {
		l.done = true
		close(l.settled)
	}
}

// settleFail marks the session failed. The first call wins the signal;
// later failures only update state and keep the original error.
func (l *lifecycle) settleFail(err error) {
	l.settle(StateFailed, err)
}

// settleLost records a lost front. Not an error in itself: the state
// resets to disconnected, but waiters are still released so a startup
// sequence cut off mid-login does not hang.
func (l *lifecycle) settleLost(err error) {
	l.settle(StateDisconnected, err)
}

func (l *lifecycle) settle(s State, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
	if l.err == nil {
		l.err = err
	}
	if !l.done {
		l.done = true
		l.outcome = err
		close(l.settled)
	}
}

// WaitReady blocks until the session first reaches ready or failed, or
// the context expires. It returns nil if the session became ready, the
// terminal error if it failed first, and ctx.Err() on timeout or
// cancellation. The outcome is fixed at the first settle; a failure
// after readiness does not change what WaitReady reports.
func (l *lifecycle) WaitReady(ctx context.Context) error {
	select {
	case <-l.settled:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outcome
}
