// Package notify decides when the monitor should message a supervising
// agent and delivers those messages. The cooldown policy is pure; the
// delivery sinks (tmux pane, log, webhooks) live in Notifier.
package notify

import (
	"time"

	"github.com/Dicklesworthstone/owl/internal/status"
)

// Cooldowns between repeated notifications for the same condition on
// the same target. Rate limits have none: a missed rate-limit
// notification can stall an agent for hours.
const (
	CrashCooldown      = 5 * time.Minute
	FreshCooldown      = 10 * time.Minute
	IdleRepeatCooldown = 5 * time.Minute
)

// History records when each notification key last fired. It is owned
// by the monitor loop, never accessed concurrently, and intentionally
// not persisted: cooldowns are short relative to restart frequency.
type History struct {
	fired map[string]time.Time
}

// NewHistory returns an empty notification history.
func NewHistory() *History {
	return &History{fired: make(map[string]time.Time)}
}

// MarkFired records that the notification keyed key fired at t.
func (h *History) MarkFired(key string, t time.Time) {
	h.fired[key] = t
}

// LastFired returns when key last fired.
func (h *History) LastFired(key string) (time.Time, bool) {
	t, ok := h.fired[key]
	return t, ok
}

// Forget drops a key, e.g. when its target disappears from discovery.
func (h *History) Forget(key string) {
	delete(h.fired, key)
}

// Len returns the number of tracked keys.
func (h *History) Len() int {
	return len(h.fired)
}

// coolingDown reports whether key fired strictly less than cooldown
// ago. A notification exactly cooldown old no longer suppresses.
func (h *History) coolingDown(key string, cooldown time.Duration, now time.Time) bool {
	t, ok := h.fired[key]
	return ok && now.Sub(t) < cooldown
}

// History keys. Crash and error share a key: both mean "this agent is
// broken" and should not double-notify.
func CrashKey(target string) string { return "crash_" + target }
func FreshKey(target string) string { return "fresh_" + target }
func IdleKey(target string) string  { return target + "_idle" }

// ShouldNotify applies the notification policy for one observed state.
//
//	RATE_LIMITED    always; no cooldown ever suppresses it
//	CRASHED/ERROR   unless crash_<target> fired within 5 minutes
//	FRESH           unless fresh_<target> fired within 10 minutes
//	IDLE            only when never notified for this target's idleness;
//	                repeats go through ShouldNotifyContinuouslyIdle
//	ACTIVE,
//	MESSAGE_QUEUED  never (queued input is the operator's own pending
//	                action, not a failure)
func ShouldNotify(state status.AgentState, target string, h *History, now time.Time) bool {
	switch state {
	case status.StateRateLimited:
		return true
	case status.StateCrashed, status.StateError:
		return !h.coolingDown(CrashKey(target), CrashCooldown, now)
	case status.StateFresh:
		return !h.coolingDown(FreshKey(target), FreshCooldown, now)
	case status.StateIdle:
		_, notified := h.LastFired(IdleKey(target))
		return !notified
	default:
		return false
	}
}

// ShouldNotifyContinuouslyIdle gates the repeated "still idle"
// notification, keyed by the target alone with a 5-minute cooldown.
func ShouldNotifyContinuouslyIdle(target string, h *History, now time.Time) bool {
	return !h.coolingDown(target, IdleRepeatCooldown, now)
}

// NeedsRecovery reports whether a state warrants restart logic. The
// monitor only flags the need; restart mechanics belong to the tmux
// layer.
func NeedsRecovery(state status.AgentState) bool {
	switch state {
	case status.StateCrashed, status.StateError, status.StateRateLimited:
		return true
	default:
		return false
	}
}
