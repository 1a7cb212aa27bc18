package dispatch

import (
	"sync"
	"time"
)

// usageTracker keeps per-server send counts and last-used timestamps for
// this process. It backs the least_used strategy as a best-effort heuristic:
// counters reset on restart and are not shared across instances. Quota
// enforcement never relies on it; that is the QuotaTracker's job.
type usageTracker struct {
	mu       sync.RWMutex
	sent     map[string]int64
	lastUsed map[string]time.Time
}

func newUsageTracker() *usageTracker {
	return &usageTracker{
		sent:     make(map[string]int64),
		lastUsed: make(map[string]time.Time),
	}
}

// Record notes one send attempt against the server.
func (u *usageTracker) Record(serverID string, at time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sent[serverID]++
	u.lastUsed[serverID] = at
}

// SentCount returns the number of attempts recorded for the server since
// process start.
func (u *usageTracker) SentCount(serverID string) int64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.sent[serverID]
}

// LastUsed returns when the server was last selected, if ever.
func (u *usageTracker) LastUsed(serverID string) (time.Time, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	t, ok := u.lastUsed[serverID]
	return t, ok
}
