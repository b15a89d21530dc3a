// Package session implements the Session Pool from spec §4.1: it owns
// authenticated platform.Client handles, serializes their startup, and
// exposes a read-only snapshot of survivors to the rest of the pipeline.
// Grounded on the teacher's *telego.Bot single-owner pattern in main.go,
// generalized from one bot to a supervised pool of N.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"tgharvester/internal/platform"
	"tgharvester/internal/wire"
)

// State is the session lifecycle from spec §4.1: idle -> connecting ->
// connected -> busy <-> connected -> (error | disconnected).
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateBusy
	StateError
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBusy:
		return "busy"
	case StateError:
		return "error"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Credentials is the per-session material spec §6.1 groups under
// "session names + API id/hash + proxy", kept separate from workload
// config so core packages never import internal/config directly.
type Credentials struct {
	Name        string
	BotToken    string
	Proxy       platform.ProxyConfig
	ScratchChat string
}

// Session wraps one authenticated platform.Client with the state machine
// and an operation lock. Fetch calls made through AsWireClient run under
// WithOp, one at a time; downloads and publishes that call Client
// directly do not take the lock.
type Session struct {
	Name   string
	Client platform.Client

	mu    sync.Mutex
	state State

	opMu sync.Mutex // held by WithOp for the duration of fn
}

func newSession(name string, client platform.Client) *Session {
	return &Session{Name: name, Client: client, state: StateIdle}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		log.Printf("[Pool %s] %s -> %s", s.Name, prev, st)
	}
}

// WithOp runs fn while holding the session's single-operation lock, and
// recovers the state machine to StateConnected on success after an
// StateError excursion, per spec §4.1's "error is recoverable to
// connected on next successful operation".
func (s *Session) WithOp(fn func() error) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.setState(StateBusy)
	err := fn()
	if err != nil {
		s.setState(StateError)
		return err
	}
	s.setState(StateConnected)
	return nil
}

// AsWireClient adapts *Session to wire.SessionClient for the Fetcher.
func (s *Session) AsWireClient() wire.SessionClient {
	return wireSessionAdapter{s}
}

type wireSessionAdapter struct{ s *Session }

func (a wireSessionAdapter) GetMessages(ctx context.Context, channel string, ids []int) ([]wire.RawMessage, error) {
	var out []wire.RawMessage
	err := a.s.WithOp(func() error {
		var err error
		out, err = a.s.Client.GetMessages(ctx, channel, ids)
		return err
	})
	return out, err
}

func (a wireSessionAdapter) DatacenterID() int { return a.s.Client.DatacenterID() }
func (a wireSessionAdapter) Name() string      { return a.s.Name }

// ensure wireSessionAdapter satisfies wire.SessionClient at compile time.
var _ wire.SessionClient = wireSessionAdapter{}

// fatalConfigError marks the "fewer than one session connects" class of
// failure from spec §4.1/§4.9 (fatal-configuration, abort before work
// starts).
type fatalConfigError string

func (e fatalConfigError) Error() string { return string(e) }

func newFatalConfig(format string, args ...any) error {
	return fatalConfigError(fmt.Sprintf(format, args...))
}
