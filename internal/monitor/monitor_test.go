package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dicklesworthstone/owl/internal/config"
	"github.com/Dicklesworthstone/owl/internal/tmux"
)

// Pane fixtures. These mirror how the monitored CLIs actually render.
const (
	activePane = `
⏺ Running the test suite
  Esc to interrupt · ? for shortcuts
`

	idlePane = `
some earlier output

╭──────────────────────────────────────╮
│ >                                    │
╰──────────────────────────────────────╯
  ? for shortcuts
`

	crashedPane = `
Traceback (most recent call last):
  File "/home/dev/agent.py", line 12, in <module>
    main()
ValueError: boom
$
`

	rateLimitedPane = `
Usage limit reached. Your limit will reset at 4am.
`
)

type sentText struct {
	target  string
	message string
}

// fakeMux implements Multiplexer for tests.
type fakeMux struct {
	mu       sync.Mutex
	agents   []tmux.Agent
	listErr  error
	panes    map[string]string
	paneErrs map[string]error
	sendErr  error
	sent     []sentText
	killed   []string
}

func newFakeMux() *fakeMux {
	return &fakeMux{
		panes:    make(map[string]string),
		paneErrs: make(map[string]error),
	}
}

func (f *fakeMux) ListAgents() ([]tmux.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]tmux.Agent(nil), f.agents...), nil
}

func (f *fakeMux) CapturePane(target string, lines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.paneErrs[target]; ok {
		return "", err
	}
	return f.panes[target], nil
}

func (f *fakeMux) SendText(target, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentText{target: target, message: message})
	return f.sendErr
}

func (f *fakeMux) KillWindow(target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, target)
	return nil
}

// sentContaining counts messages to target whose text contains substr.
func (f *fakeMux) sentContaining(target, substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.target == target && strings.Contains(s.message, substr) {
			n++
		}
	}
	return n
}

func (f *fakeMux) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testAgent(session string, window int, typ tmux.AgentType) tmux.Agent {
	return tmux.Agent{
		Target:  fmt.Sprintf("%s:%d", session, window),
		Session: session,
		Window:  window,
		Title:   fmt.Sprintf("%s__%s_%d", session, typ, window),
		Type:    typ,
		Role:    typ.Role(),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMonitor(mux *fakeMux, opts ...Option) *Monitor {
	all := append([]Option{WithMultiplexer(mux), WithLogger(quietLogger())}, opts...)
	return New(config.Default(), all...)
}

func TestTickNotifiesCrashedAgentWithCooldown(t *testing.T) {
	mux := newFakeMux()
	mux.agents = []tmux.Agent{
		testAgent("proj", 0, tmux.AgentPM),
		testAgent("proj", 1, tmux.AgentClaude),
	}
	mux.panes["proj:0"] = activePane
	mux.panes["proj:1"] = crashedPane

	m := newTestMonitor(mux)
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	m.Tick(t0)
	if got := mux.sentContaining("proj:0", "crashed"); got != 1 {
		t.Fatalf("expected 1 crash notification after first tick, got %d", got)
	}

	// Inside the cooldown nothing repeats.
	m.Tick(t0.Add(10 * time.Second))
	if got := mux.sentContaining("proj:0", "crashed"); got != 1 {
		t.Errorf("expected crash notification suppressed inside cooldown, got %d", got)
	}

	// Exactly at the cooldown boundary the notification fires again.
	m.Tick(t0.Add(5 * time.Minute))
	if got := mux.sentContaining("proj:0", "crashed"); got != 2 {
		t.Errorf("expected second crash notification at cooldown boundary, got %d", got)
	}
}

func TestTickCaptureFailureDoesNotAbortOthers(t *testing.T) {
	mux := newFakeMux()
	mux.agents = []tmux.Agent{
		testAgent("proj", 0, tmux.AgentPM),
		testAgent("proj", 1, tmux.AgentClaude),
		testAgent("proj", 2, tmux.AgentCodex),
	}
	mux.panes["proj:0"] = activePane
	mux.paneErrs["proj:1"] = errors.New("pane vanished")
	mux.panes["proj:2"] = crashedPane

	m := newTestMonitor(mux)
	m.Tick(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

	if got := mux.sentContaining("proj:0", "crashed"); got != 1 {
		t.Errorf("expected crash notification despite another pane failing, got %d", got)
	}
}

func TestTickDiscoveryFailureIsTolerated(t *testing.T) {
	mux := newFakeMux()
	mux.listErr = errors.New("no server running")

	m := newTestMonitor(mux)
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m.Tick(t0)

	if got := mux.sentCount(); got != 0 {
		t.Errorf("expected no messages while discovery fails, got %d", got)
	}

	// Recovery on the next tick once tmux answers again.
	mux.mu.Lock()
	mux.listErr = nil
	mux.agents = []tmux.Agent{
		testAgent("proj", 0, tmux.AgentPM),
		testAgent("proj", 1, tmux.AgentClaude),
	}
	mux.panes["proj:0"] = activePane
	mux.panes["proj:1"] = crashedPane
	mux.mu.Unlock()

	m.Tick(t0.Add(10 * time.Second))
	if got := mux.sentContaining("proj:0", "crashed"); got != 1 {
		t.Errorf("expected crash notification after discovery recovered, got %d", got)
	}
}

func TestTickIdleNotifications(t *testing.T) {
	mux := newFakeMux()
	mux.agents = []tmux.Agent{
		testAgent("proj", 0, tmux.AgentPM),
		testAgent("proj", 1, tmux.AgentClaude),
		testAgent("proj", 2, tmux.AgentCodex),
	}
	mux.panes["proj:0"] = activePane
	mux.panes["proj:1"] = idlePane
	mux.panes["proj:2"] = activePane // keeps the team non-idle

	m := newTestMonitor(mux)
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	// Newly idle notifies immediately.
	m.Tick(t0)
	if got := mux.sentContaining("proj:0", "finished its work"); got != 1 {
		t.Fatalf("expected immediate newly-idle notification, got %d", got)
	}

	// Still idle shortly after: no repeat yet.
	m.Tick(t0.Add(10 * time.Second))
	if got := mux.sentContaining("proj:0", "has been idle"); got != 0 {
		t.Errorf("expected no continuous-idle notification inside cooldown, got %d", got)
	}

	// After the repeat cooldown the continuous-idle reminder fires.
	m.Tick(t0.Add(5 * time.Minute))
	if got := mux.sentContaining("proj:0", "Agent proj:1 (cc) has been idle"); got != 1 {
		t.Errorf("expected continuous-idle reminder at cooldown, got %d", got)
	}

	// The newly-idle notification never repeats.
	m.Tick(t0.Add(10 * time.Minute))
	if got := mux.sentContaining("proj:0", "finished its work"); got != 1 {
		t.Errorf("expected exactly one newly-idle notification, got %d", got)
	}
	if got := mux.sentContaining("proj:0", "Agent proj:1 (cc) has been idle"); got != 2 {
		t.Errorf("expected second continuous-idle reminder, got %d", got)
	}
}

func TestTickRateLimitPausesWholeLoop(t *testing.T) {
	mux := newFakeMux()
	mux.agents = []tmux.Agent{
		testAgent("proj", 0, tmux.AgentPM),
		testAgent("proj", 1, tmux.AgentClaude),
	}
	mux.panes["proj:0"] = activePane
	mux.panes["proj:1"] = rateLimitedPane

	t0 := time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)
	now := t0
	var waited []time.Duration

	m := newTestMonitor(mux,
		WithClock(func() time.Time { return now }),
		WithWait(func(ctx context.Context, d time.Duration) bool {
			waited = append(waited, d)
			return true
		}),
	)

	ctx := context.Background()
	m.step(ctx)

	// 2:00 to 4:00 plus the two-minute buffer.
	want := 2*time.Hour + 2*time.Minute
	if len(waited) != 1 || waited[0] != want {
		t.Fatalf("expected one pause of %v, got %v", want, waited)
	}
	if got := mux.sentContaining("proj:0", "Pausing all monitoring"); got != 1 {
		t.Errorf("expected pause notification to supervisor, got %d", got)
	}
	if got := mux.sentContaining("proj:0", "Monitoring resumed"); got != 1 {
		t.Errorf("expected resume notification to supervisor, got %d", got)
	}
	if got := m.State(); got != LoopRunning {
		t.Errorf("expected loop back in running state, got %s", got)
	}

	// The same stale banner must not pause the loop again.
	now = t0.Add(10 * time.Second)
	m.step(ctx)
	if len(waited) != 1 {
		t.Fatalf("expected stale rate-limit banner to be ignored, got %d pauses", len(waited))
	}

	// Fresh rate-limit content pauses again.
	mux.mu.Lock()
	mux.panes["proj:1"] = rateLimitedPane + "\nUsage limit reached. Your limit will reset at 5am.\n"
	mux.mu.Unlock()
	now = t0.Add(20 * time.Second)
	m.step(ctx)
	if len(waited) != 2 {
		t.Fatalf("expected new rate-limit content to pause again, got %d pauses", len(waited))
	}
}

func TestTickSupervisorTroubleNotSelfMessaged(t *testing.T) {
	mux := newFakeMux()
	mux.agents = []tmux.Agent{testAgent("proj", 0, tmux.AgentPM)}
	mux.panes["proj:0"] = crashedPane

	m := newTestMonitor(mux)
	m.Tick(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

	if got := mux.sentCount(); got != 0 {
		t.Errorf("expected no pane message about the supervisor's own crash, got %d", got)
	}
}

func TestTickEvictsVanishedTargets(t *testing.T) {
	pm := testAgent("proj", 0, tmux.AgentPM)
	worker := testAgent("proj", 1, tmux.AgentClaude)

	mux := newFakeMux()
	mux.agents = []tmux.Agent{pm, worker}
	mux.panes["proj:0"] = activePane
	mux.panes["proj:1"] = idlePane

	m := newTestMonitor(mux)
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	m.Tick(t0)
	if got := mux.sentContaining("proj:0", "finished its work"); got != 1 {
		t.Fatalf("expected newly-idle notification, got %d", got)
	}

	// Target disappears past the grace period: history is dropped.
	mux.mu.Lock()
	mux.agents = []tmux.Agent{pm}
	mux.mu.Unlock()
	m.Tick(t0.Add(70 * time.Second))

	// When it reappears idle it counts as newly idle again.
	mux.mu.Lock()
	mux.agents = []tmux.Agent{pm, worker}
	mux.mu.Unlock()
	m.Tick(t0.Add(80 * time.Second))
	if got := mux.sentContaining("proj:0", "finished its work"); got != 2 {
		t.Errorf("expected newly-idle notification after eviction and return, got %d", got)
	}
}

func TestEscalationTiersFireOnceAndKillResets(t *testing.T) {
	mux := newFakeMux()
	mux.agents = []tmux.Agent{
		testAgent("proj", 0, tmux.AgentPM),
		testAgent("proj", 1, tmux.AgentClaude),
		testAgent("proj", 2, tmux.AgentCodex),
	}
	mux.panes["proj:0"] = activePane
	mux.panes["proj:1"] = idlePane
	mux.panes["proj:2"] = idlePane

	m := newTestMonitor(mux)
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	m.Tick(t0) // episode starts
	if got := mux.sentContaining("proj:0", "Your team has been idle"); got != 0 {
		t.Fatalf("expected no escalation on the first idle tick, got %d", got)
	}

	m.Tick(t0.Add(3 * time.Minute))
	if got := mux.sentContaining("proj:0", "Your team has been idle for 3 minutes"); got != 1 {
		t.Fatalf("expected first escalation message at 3 minutes, got %d", got)
	}

	// Same tier never repeats within the episode.
	m.Tick(t0.Add(3*time.Minute + 10*time.Second))
	if got := mux.sentContaining("proj:0", "Your team has been idle for 3 minutes"); got != 1 {
		t.Errorf("expected 3-minute tier to fire once, got %d", got)
	}

	m.Tick(t0.Add(5 * time.Minute))
	if got := mux.sentContaining("proj:0", "URGENT"); got != 1 {
		t.Errorf("expected urgent tier at 5 minutes, got %d", got)
	}

	// Final tier kills the supervisor window exactly once and resets.
	m.Tick(t0.Add(8 * time.Minute))
	if len(mux.killed) != 1 || mux.killed[0] != "proj:0" {
		t.Fatalf("expected supervisor window killed once, got %v", mux.killed)
	}

	m.Tick(t0.Add(8*time.Minute + 10*time.Second))
	if len(mux.killed) != 1 {
		t.Errorf("expected no second kill after reset, got %v", mux.killed)
	}

	// A fresh episode accumulates from scratch and fires the first tier
	// again.
	m.Tick(t0.Add(11*time.Minute + 10*time.Second))
	if got := mux.sentContaining("proj:0", "Your team has been idle for 3 minutes"); got != 2 {
		t.Errorf("expected first tier to fire in the new episode, got %d", got)
	}
}

func TestEscalationResetsOnAnyActivity(t *testing.T) {
	mux := newFakeMux()
	mux.agents = []tmux.Agent{
		testAgent("proj", 0, tmux.AgentPM),
		testAgent("proj", 1, tmux.AgentClaude),
		testAgent("proj", 2, tmux.AgentCodex),
	}
	mux.panes["proj:0"] = activePane
	mux.panes["proj:1"] = idlePane
	mux.panes["proj:2"] = idlePane

	m := newTestMonitor(mux)
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	m.Tick(t0)

	// One worker wakes up at 2 minutes: the episode resets.
	mux.mu.Lock()
	mux.panes["proj:2"] = activePane
	mux.mu.Unlock()
	m.Tick(t0.Add(2 * time.Minute))

	// Back to fully idle; 3 minutes after the reset nothing has
	// accumulated long enough to fire.
	mux.mu.Lock()
	mux.panes["proj:2"] = idlePane
	mux.mu.Unlock()
	m.Tick(t0.Add(2*time.Minute + 10*time.Second)) // new episode starts
	m.Tick(t0.Add(4 * time.Minute))
	if got := mux.sentContaining("proj:0", "Your team has been idle"); got != 0 {
		t.Errorf("expected no escalation after reset, got %d", got)
	}

	// The new episode fires on its own clock.
	m.Tick(t0.Add(5*time.Minute + 10*time.Second))
	if got := mux.sentContaining("proj:0", "Your team has been idle for 3 minutes"); got != 1 {
		t.Errorf("expected escalation on the new episode's clock, got %d", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	mux := newFakeMux()
	m := newTestMonitor(mux)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run returned error on clean shutdown: %v", err)
	}
	if got := m.State(); got != LoopStopped {
		t.Errorf("expected stopped state after Run, got %s", got)
	}
}
