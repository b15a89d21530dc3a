package session

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"tgharvester/internal/platform"
	"tgharvester/internal/retry"
	"tgharvester/internal/wire"
)

const (
	// staggeredStartDelay is spec §4.1's "≥ 5 s between kickoffs".
	staggeredStartDelay = 5 * time.Second
	// stopJoinTimeout bounds stop_all's graceful join, per spec §4.1.
	stopJoinTimeout = 10 * time.Second
)

// AuthManager enforces the 30 s inter-auth delay resolved in DESIGN.md
// (spec.md §9's Open Question between a comment claiming 5 min and the
// AuthManager's actual 30 s constant — the source code wins).
type AuthManager struct {
	mu       sync.Mutex
	lastAuth time.Time
	delay    time.Duration
}

func NewAuthManager() *AuthManager {
	return &AuthManager{delay: 30 * time.Second}
}

// Wait blocks, if needed, until delay has elapsed since the previous
// successful authentication, then records this call as the new baseline.
func (a *AuthManager) Wait(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.lastAuth.IsZero() {
		elapsed := time.Since(a.lastAuth)
		if remain := a.delay - elapsed; remain > 0 {
			t := time.NewTimer(remain)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	a.lastAuth = time.Now()
	return nil
}

// Pool owns the authenticated session handles, the sole process-wide
// shared state spec §9 allows ("the only justifiable process-wide state
// is the session pool, because the underlying credentials are inherently
// a shared resource").
type Pool struct {
	auth    *AuthManager
	stagger time.Duration

	mu       sync.RWMutex
	sessions []*Session
}

func NewPool() *Pool {
	return &Pool{auth: NewAuthManager(), stagger: staggeredStartDelay}
}

// Factory builds an unauthenticated platform.Client for one set of
// credentials; injected so tests can substitute a fake without touching
// the network.
type Factory func(ctx context.Context, creds Credentials) (platform.Client, error)

// Initialize loads credentials and constructs one Session per name in
// StateConnecting, per spec §4.1's initialize() contract. It does not
// start them.
func Initialize(names []string, lookup func(name string) (Credentials, bool), build Factory) ([]*Session, error) {
	if len(names) == 0 {
		return nil, newFatalConfig("session pool: empty session pool")
	}
	sessions := make([]*Session, 0, len(names))
	for _, name := range names {
		creds, ok := lookup(name)
		if !ok {
			return nil, newFatalConfig("session pool: no persisted credentials for session %q", name)
		}
		client, err := build(context.Background(), creds)
		if err != nil {
			return nil, newFatalConfig("session pool: construct client for %q: %v", name, err)
		}
		s := newSession(name, client)
		s.setState(StateConnecting)
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// StartAll starts sessions concurrently with a staggered-start delay of
// staggeredStartDelay between kickoffs. A session hitting a flood-wait on
// first connect sleeps and retries exactly once, without blocking
// siblings. If fewer than one session connects, StartAll fails hard; if
// some but not all connect, the pool continues with the survivors.
func (p *Pool) StartAll(ctx context.Context, sessions []*Session) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var connected []*Session

	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()

			select {
			case <-time.After(time.Duration(i) * p.stagger):
			case <-ctx.Done():
				return
			}

			if err := p.auth.Wait(ctx); err != nil {
				return
			}

			if err := startOneWithRetry(ctx, s); err != nil {
				log.Printf("[Pool %s] failed to start: %v", s.Name, err)
				s.setState(StateError)
				return
			}

			s.setState(StateConnected)
			mu.Lock()
			connected = append(connected, s)
			mu.Unlock()
		}(i, s)
	}
	wg.Wait()

	if len(connected) == 0 {
		return newFatalConfig("session pool: zero sessions connected")
	}

	p.mu.Lock()
	p.sessions = connected
	p.mu.Unlock()
	return nil
}

// startOneWithRetry honors one flood-wait retry on first connect, per
// spec §4.1 ("On one session receiving a rate-limit signal with wait=W,
// sleep W and retry that session once").
func startOneWithRetry(ctx context.Context, s *Session) error {
	err := s.Client.Start(ctx)
	if err == nil {
		return nil
	}
	cat := retry.Classify(err)
	if cat != retry.CategoryRateLimit {
		return err
	}
	if fw, ok := asFloodWaitDuration(err); ok {
		t := time.NewTimer(fw)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.Client.Start(ctx)
}

// Sessions returns a snapshot of currently-connected sessions, per spec
// §4.1's sessions() contract.
func (p *Pool) Sessions() []*Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// StopAll requests each connected session stop, with a bounded join and
// a force-close fallback, per spec §4.1.
func (p *Pool) StopAll(ctx context.Context) {
	sessions := p.Sessions()

	stopCtx, cancel := context.WithTimeout(ctx, stopJoinTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Client.Stop(stopCtx); err != nil && !isAlreadyClosed(err) {
				log.Printf("[Pool %s] stop error: %v", s.Name, err)
			}
			s.setState(StateDisconnected)
		}(s)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-stopCtx.Done():
		log.Printf("[Pool] stop_all: forcing close after %s", stopJoinTimeout)
	}
}

func isAlreadyClosed(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already closed") || strings.Contains(s, "connection closed") || strings.Contains(s, "use of closed network connection")
}

func asFloodWaitDuration(err error) (time.Duration, bool) {
	fw, ok := wire.AsFloodWait(err)
	if !ok {
		return 0, false
	}
	return fw.Wait, true
}
