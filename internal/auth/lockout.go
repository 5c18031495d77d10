package auth

import (
	"context"
	"sync"
	"time"
)

// lockoutEntry tracks failed login attempts for an account.
type lockoutEntry struct {
	failures  int
	lockedAt  time.Time
	expiresAt time.Time
}

// LockoutTracker tracks failed login attempts and account lockouts.
//
// State is in memory only and is lost on restart.
type LockoutTracker struct {
	mu              sync.RWMutex
	entries         map[string]*lockoutEntry // keyed by normalized email
	threshold       int
	lockoutDuration time.Duration
}

// NewLockoutTracker creates a new lockout tracker. A threshold <= 0 disables
// lockout.
func NewLockoutTracker(threshold int, duration time.Duration) *LockoutTracker {
	return &LockoutTracker{
		entries:         make(map[string]*lockoutEntry),
		threshold:       threshold,
		lockoutDuration: duration,
	}
}

// RecordFailure records a failed login attempt.
// Returns true if the account is now locked.
func (t *LockoutTracker) RecordFailure(key string) bool {
	if t.threshold <= 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.entries[key]
	if !exists {
		entry = &lockoutEntry{}
		t.entries[key] = entry
	}

	now := time.Now()
	if !entry.lockedAt.IsZero() {
		if now.Before(entry.expiresAt) {
			return true
		}
		// Lockout expired, start over.
		*entry = lockoutEntry{}
	}

	entry.failures++
	if entry.failures >= t.threshold {
		entry.lockedAt = now
		entry.expiresAt = now.Add(t.lockoutDuration)
		return true
	}
	return false
}

// IsLocked returns true if the account is currently locked.
func (t *LockoutTracker) IsLocked(key string) bool {
	return t.RemainingLockoutTime(key) > 0
}

// RemainingLockoutTime returns how long until the lockout expires.
func (t *LockoutTracker) RemainingLockoutTime(key string) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, exists := t.entries[key]
	if !exists || entry.lockedAt.IsZero() {
		return 0
	}

	remaining := time.Until(entry.expiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ClearFailures clears failed attempts on successful login.
func (t *LockoutTracker) ClearFailures(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, key)
}

// Run removes expired entries every interval until ctx is done.
func (t *LockoutTracker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.cleanup()
		}
	}
}

func (t *LockoutTracker) cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for key, entry := range t.entries {
		if entry.failures == 0 || (!entry.lockedAt.IsZero() && now.After(entry.expiresAt)) {
			delete(t.entries, key)
		}
	}
}
