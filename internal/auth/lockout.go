package auth

import (
	"sync"
	"time"
)

const (
	MaxFailedLoginAttempts = 10
	AccountLockoutDuration = 15 * time.Minute
)

type lockoutState struct {
	failures    int
	lockedUntil time.Time
}

// Lockout tracks failed login attempts per username in memory. State
// does not survive a restart, which also means a forgotten lockout
// clears itself on redeploy.
type Lockout struct {
	mu    sync.Mutex
	now   func() time.Time
	state map[string]*lockoutState
}

// NewLockout creates an empty tracker.
func NewLockout() *Lockout {
	return &Lockout{now: time.Now, state: make(map[string]*lockoutState)}
}

// RecordFailure counts a failed attempt and returns true when it locks
// the account.
func (l *Lockout) RecordFailure(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state[username]
	if st == nil {
		st = &lockoutState{}
		l.state[username] = st
	}
	st.failures++
	if st.failures >= MaxFailedLoginAttempts {
		st.lockedUntil = l.now().Add(AccountLockoutDuration)
		return true
	}
	return false
}

// Reset clears failures for a username after a successful login.
func (l *Lockout) Reset(username string) {
	l.mu.Lock()
	delete(l.state, username)
	l.mu.Unlock()
}

// IsLocked reports whether the username is currently locked out. An
// expired lock clears the failure count.
func (l *Lockout) IsLocked(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state[username]
	if st == nil || st.lockedUntil.IsZero() {
		return false
	}
	if l.now().Before(st.lockedUntil) {
		return true
	}
	delete(l.state, username)
	return false
}

// RemainingLock returns how long the lock has left, zero when unlocked.
func (l *Lockout) RemainingLock(username string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state[username]
	if st == nil || st.lockedUntil.IsZero() {
		return 0
	}
	if d := st.lockedUntil.Sub(l.now()); d > 0 {
		return d
	}
	return 0
}
