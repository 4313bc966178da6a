// Package guard is the defensive mirror of server-side policy that the portal
// consults before issuing state-changing requests: per-action cooldowns and
// the participant department lock. It throttles request volume, nothing more;
// the admission controller and call engine enforce the real invariants, so
// every check here fails open when Redis is unavailable.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ActionJoin     = "join"
	ActionLookup   = "lookup"
	ActionCallNext = "call-next"
	ActionServed   = "served"
	ActionHold     = "hold"
)

// Default minimum inter-request intervals per action.
var defaultIntervals = map[string]time.Duration{
	ActionJoin:     15 * time.Second,
	ActionLookup:   2500 * time.Millisecond,
	ActionCallNext: 3 * time.Second,
	ActionServed:   3 * time.Second,
	ActionHold:     3 * time.Second,
}

const departmentLockTTL = 24 * time.Hour

type Guard struct {
	rdb       *redis.Client
	intervals map[string]time.Duration
}

type Options struct {
	// Intervals overrides the per-action cooldowns; unknown actions fall back
	// to the lookup interval.
	Intervals map[string]time.Duration
}

func New(rdb *redis.Client, options Options) *Guard {
	intervals := make(map[string]time.Duration, len(defaultIntervals))
	for action, interval := range defaultIntervals {
		intervals[action] = interval
	}
	for action, interval := range options.Intervals {
		intervals[action] = interval
	}
	return &Guard{rdb: rdb, intervals: intervals}
}

// Allow reports whether the action may fire now for the given scope. When the
// cooldown is still running it returns false and the remaining wait, so the
// caller can answer "try again in Ns" without touching the backend.
func (g *Guard) Allow(ctx context.Context, action, departmentID, participantID string) (bool, time.Duration) {
	interval, ok := g.intervals[action]
	if !ok {
		interval = g.intervals[ActionLookup]
	}
	if interval <= 0 {
		return true, 0
	}

	key := cooldownKey(action, departmentID, participantID)
	set, err := g.rdb.SetNX(ctx, key, "1", interval).Result()
	if err != nil {
		return true, 0
	}
	if set {
		return true, 0
	}

	remaining, err := g.rdb.PTTL(ctx, key).Result()
	if err != nil || remaining < 0 {
		return false, interval
	}
	return false, remaining
}

// CheckDepartment binds the participant to the first department they act
// against and reports whether subsequent actions use the same one. The lock
// expires on its own; the server-side profile lock is the authoritative rule.
func (g *Guard) CheckDepartment(ctx context.Context, participantID, departmentID string) bool {
	key := departmentKey(participantID)
	set, err := g.rdb.SetNX(ctx, key, departmentID, departmentLockTTL).Result()
	if err != nil || set {
		return true
	}
	current, err := g.rdb.Get(ctx, key).Result()
	if err != nil {
		return true
	}
	return current == departmentID
}

func cooldownKey(action, departmentID, participantID string) string {
	return fmt.Sprintf("guard:cooldown:%s:%s:%s", action, departmentID, participantID)
}

func departmentKey(participantID string) string {
	return fmt.Sprintf("guard:department:%s", participantID)
}
