package bot

import (
	"sync"
	"time"
)

// Verdict is a flow-control signal, not an error. The backend upsert holds
// the one-live-code invariant on its own; the guard only keeps a tapping
// user from hammering the API.
type Verdict int

const (
	Proceed Verdict = iota
	Wait
	InFlight
)

const defaultCooldown = 900 * time.Millisecond

// AntiFloodGuard tracks per-user cooldowns and in-flight requests in memory.
type AntiFloodGuard struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastSeen map[int64]time.Time
	inFlight map[int64]struct{}
	now      func() time.Time
}

func NewAntiFloodGuard(cooldown time.Duration) *AntiFloodGuard {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}

	return &AntiFloodGuard{
		cooldown: cooldown,
		lastSeen: make(map[int64]time.Time),
		inFlight: make(map[int64]struct{}),
		now:      time.Now,
	}
}

// Acquire decides whether a request for userID may proceed. A Proceed verdict
// marks the user in-flight; the caller must Release afterwards.
func (g *AntiFloodGuard) Acquire(userID int64) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[userID]; busy {
		return InFlight
	}

	now := g.now()
	if last, ok := g.lastSeen[userID]; ok && now.Sub(last) < g.cooldown {
		return Wait
	}

	g.lastSeen[userID] = now
	g.inFlight[userID] = struct{}{}
	return Proceed
}

func (g *AntiFloodGuard) Release(userID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, userID)
}
