package protocol

import (
	"log/slog"
	"sync"

	"github.com/wagiedev/agentrpc-go/internal/config"
)

// State is the lifecycle state of a session.
type State int32

const (
	// StateUninitialized is the state before initialize.
	StateUninitialized State = iota
	// StateInitializing is the state between initialize and initialized.
	StateInitializing
	// StateReady is the state in which all registered methods are dispatchable.
	StateReady
	// StateShuttingDown is the state after shutdown; in-flight handlers drain.
	StateShuttingDown
	// StateClosed is the terminal state.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role identifies which end of the handshake a session plays.
type Role int

const (
	// RoleServer receives initialize.
	RoleServer Role = iota
	// RoleClient sends initialize.
	RoleClient
)

// String returns the role name.
func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}

	return "server"
}

// lifecycle guards the session state. Transitions only move forward, except
// that a failed initialize returns to StateUninitialized.
type lifecycle struct {
	log     *slog.Logger
	metrics config.Metrics

	mu    sync.Mutex
	state State
}

func (l *lifecycle) get() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

// transition moves from one of the allowed states to next. It reports the
// state observed and whether the transition happened.
func (l *lifecycle) transition(next State, from ...State) (State, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.state

	if len(from) > 0 {
		allowed := false

		for _, s := range from {
			if s == prev {
				allowed = true

				break
			}
		}

		if !allowed {
			return prev, false
		}
	}

	if prev == next {
		return prev, false
	}

	l.state = next
	l.log.Info("Session state changed", "from", prev.String(), "to", next.String())
	l.metrics.SessionStateChanged(prev.String(), next.String())

	return prev, true
}
