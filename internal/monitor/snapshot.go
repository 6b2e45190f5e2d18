// Package monitor implements the supervisory loop: sampling agent
// panes, classifying their state, notifying supervisors under the
// cooldown policy, pausing the whole loop on rate limits, and
// escalating team-wide idleness.
package monitor

import (
	"hash/fnv"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Dicklesworthstone/owl/internal/status"
)

// agentHistory is everything the loop remembers about one target
// between ticks. Memory-only; a daemon restart starts fresh.
type agentHistory struct {
	// lastHash fingerprints the last captured content.
	lastHash uint64
	// lastActive is when the content last changed.
	lastActive time.Time
	// unchanged counts consecutive samples with identical content.
	unchanged int
	// velocity estimates how many characters changed between the two
	// most recent samples.
	velocity int
	// samples is a ring of recent captures for the multi-sample idle
	// check, newest last.
	samples []string
	// lastState is the most recent classification.
	lastState status.AgentState
	// lastSeen is when discovery last reported the target.
	lastSeen time.Time
	// rateLimitHash fingerprints rate-limit content already handled,
	// so a stale usage-limit banner is not re-announced every tick
	// after the pause completes.
	rateLimitHash uint64
}

// snapshotTracker owns per-agent histories. Exclusively used by the
// loop goroutine, so no locking.
type snapshotTracker struct {
	window int
	grace  time.Duration
	agents map[string]*agentHistory
	differ *diffmatchpatch.DiffMatchPatch
}

func newSnapshotTracker(window int, grace time.Duration) *snapshotTracker {
	if window < 2 {
		window = 2
	}
	return &snapshotTracker{
		window: window,
		grace:  grace,
		agents: make(map[string]*agentHistory),
		differ: diffmatchpatch.New(),
	}
}

// setLimits adjusts the ring size and eviction grace, for config hot
// reload. Existing rings shrink lazily on the next observe.
func (t *snapshotTracker) setLimits(window int, grace time.Duration) {
	if window >= 2 {
		t.window = window
	}
	if grace > 0 {
		t.grace = grace
	}
}

func hashContent(content string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(content))
	return h.Sum64()
}

// observe folds one sample into the target's history and returns it.
func (t *snapshotTracker) observe(target, content string, state status.AgentState, now time.Time) *agentHistory {
	h, ok := t.agents[target]
	if !ok {
		h = &agentHistory{lastActive: now}
		t.agents[target] = h
	}

	sum := hashContent(content)
	if sum == h.lastHash && len(h.samples) > 0 {
		h.unchanged++
		h.velocity = 0
	} else {
		if len(h.samples) > 0 {
			h.velocity = changedChars(t.differ, h.samples[len(h.samples)-1], content)
		}
		h.lastHash = sum
		h.lastActive = now
		h.unchanged = 0
	}

	h.samples = append(h.samples, content)
	if len(h.samples) > t.window {
		h.samples = h.samples[len(h.samples)-t.window:]
	}
	h.lastState = state
	h.lastSeen = now
	return h
}

// markSeen refreshes discovery time without a sample, used when a
// capture fails and the tick treats the agent as unknown.
func (t *snapshotTracker) markSeen(target string, now time.Time) {
	if h, ok := t.agents[target]; ok {
		h.lastSeen = now
		return
	}
	t.agents[target] = &agentHistory{lastActive: now, lastSeen: now}
}

// history returns the tracked state for target.
func (t *snapshotTracker) history(target string) (*agentHistory, bool) {
	h, ok := t.agents[target]
	return h, ok
}

// evict drops targets that discovery has not reported for longer than
// the grace period and returns them so notification keys can be
// forgotten too.
func (t *snapshotTracker) evict(now time.Time) []string {
	var dropped []string
	for target, h := range t.agents {
		if now.Sub(h.lastSeen) > t.grace {
			delete(t.agents, target)
			dropped = append(dropped, target)
		}
	}
	return dropped
}

// changedChars sums the characters inserted or deleted between two
// samples, a cheap output-velocity signal for the dashboard and logs.
func changedChars(differ *diffmatchpatch.DiffMatchPatch, prev, cur string) int {
	diffs := differ.DiffMain(prev, cur, false)
	n := 0
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffEqual {
			n += len(d.Text)
		}
	}
	return n
}
