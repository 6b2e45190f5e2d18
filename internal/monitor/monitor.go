package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dicklesworthstone/owl/internal/config"
	"github.com/Dicklesworthstone/owl/internal/notify"
	"github.com/Dicklesworthstone/owl/internal/ratelimit"
	"github.com/Dicklesworthstone/owl/internal/status"
	"github.com/Dicklesworthstone/owl/internal/tmux"
)

// LoopState is the lifecycle of the monitor loop.
type LoopState string

const (
	LoopStarting          LoopState = "starting"
	LoopRunning           LoopState = "running"
	LoopSleepingRateLimit LoopState = "sleeping_rate_limit"
	LoopStopping          LoopState = "stopping"
	LoopStopped           LoopState = "stopped"
)

// Multiplexer is the slice of the tmux layer the loop consumes.
// *tmux.Client satisfies it; tests inject fakes.
type Multiplexer interface {
	ListAgents() ([]tmux.Agent, error)
	CapturePane(target string, lines int) (string, error)
	SendText(target, message string) error
	KillWindow(target string) error
}

// pendingPause is a rate limit discovered during the agent pass; the
// loop sleeps after the pass completes so every pane still gets
// sampled this tick.
type pendingPause struct {
	target     string
	supervisor string
	reset      string
	d          time.Duration
}

// Monitor owns the sampling loop and all per-agent memory. Everything
// mutable is touched only by the loop goroutine; State is the one
// cross-goroutine read.
type Monitor struct {
	cfg        *config.Config
	mux        Multiplexer
	classifier *status.Classifier
	notifier   *notify.Notifier
	history    *notify.History
	tracker    *snapshotTracker
	esc        *escalator
	logger     *slog.Logger
	now        func() time.Time
	wait       func(ctx context.Context, d time.Duration) bool
	reload     <-chan *config.Config

	mu    sync.Mutex
	state LoopState

	pause *pendingPause
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithMultiplexer injects the tmux layer.
func WithMultiplexer(mux Multiplexer) Option {
	return func(m *Monitor) { m.mux = mux }
}

// WithNotifier injects a prebuilt notifier.
func WithNotifier(n *notify.Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithWait injects the interruptible sleep used for rate-limit pauses.
func WithWait(wait func(ctx context.Context, d time.Duration) bool) Option {
	return func(m *Monitor) { m.wait = wait }
}

// WithReload attaches a channel delivering validated replacement
// configs for hot reload.
func WithReload(ch <-chan *config.Config) Option {
	return func(m *Monitor) { m.reload = ch }
}

// New builds a monitor from cfg. Collaborators not supplied through
// options get real implementations.
func New(cfg *config.Config, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		wait:   waitInterruptible,
		state:  LoopStarting,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.mux == nil {
		m.mux = tmux.NewClient()
	}
	if m.notifier == nil {
		m.notifier = notify.NewNotifier(
			notify.WithSender(m.mux),
			notify.WithLogger(m.logger),
			notify.WithMessagePrefix(cfg.Notify.MessagePrefix),
			notify.WithDisabled(!cfg.Notify.Enabled),
		)
	}
	m.classifier = status.NewClassifier(cfg.Markers.ToMarkers())
	m.history = notify.NewHistory()
	m.tracker = newSnapshotTracker(cfg.Monitor.SnapshotWindow, cfg.TargetGrace())
	m.esc = newEscalator(cfg.Escalation.Tiers)
	return m
}

// State reports the loop lifecycle state.
func (m *Monitor) State() LoopState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) setState(s LoopState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Run drives the loop until ctx is cancelled. A rate-limit pause
// suspends sampling entirely; cancellation interrupts the pause.
func (m *Monitor) Run(ctx context.Context) error {
	m.setState(LoopStarting)
	m.logger.Info("[Monitor] loop_starting", "interval", m.cfg.Interval().String())
	_ = m.notifier.Notify(notify.NewDaemonEvent(notify.EventDaemonStarted, "monitor loop started"))
	m.setState(LoopRunning)

	ticker := time.NewTicker(m.cfg.Interval())
	defer ticker.Stop()

	m.step(ctx)

	for {
		select {
		case <-ctx.Done():
			m.setState(LoopStopping)
			m.logger.Info("[Monitor] loop_stopping")
			_ = m.notifier.Notify(notify.NewDaemonEvent(notify.EventDaemonStopped, "monitor loop stopped"))
			m.setState(LoopStopped)
			return nil
		case cfg := <-m.reload:
			m.applyConfig(cfg, ticker)
		case <-ticker.C:
			m.step(ctx)
			ticker.Reset(m.cfg.Interval())
		}
	}
}

// step samples every agent once, then serves any rate-limit pause the
// pass discovered.
func (m *Monitor) step(ctx context.Context) {
	m.Tick(m.now())
	if m.pause != nil {
		m.pauseForRateLimit(ctx)
	}
}

// applyConfig swaps in a hot-reloaded config. Histories and idle
// episodes survive the swap.
func (m *Monitor) applyConfig(cfg *config.Config, ticker *time.Ticker) {
	if cfg == nil {
		return
	}
	if cfg.Interval() != m.cfg.Interval() {
		ticker.Reset(cfg.Interval())
	}
	m.classifier = status.NewClassifier(cfg.Markers.ToMarkers())
	m.esc.setTiers(cfg.Escalation.Tiers)
	m.tracker.setLimits(cfg.Monitor.SnapshotWindow, cfg.TargetGrace())
	m.notifier.SetMessagePrefix(cfg.Notify.MessagePrefix)
	m.notifier.SetDisabled(!cfg.Notify.Enabled)
	m.cfg = cfg
	m.logger.Info("[Monitor] config_reloaded", "interval", cfg.Interval().String())
}

// teamTally accumulates one tick's worker verdicts for a session.
type teamTally struct {
	workers int
	idle    int
	unknown int
}

func (t *teamTally) verdict() TeamObservation {
	observed := t.workers - t.unknown
	if observed > t.idle {
		return TeamActive
	}
	if t.unknown > 0 {
		return TeamUnknown
	}
	return TeamIdle
}

// Tick runs one full sampling pass at the given instant. Exported so
// tests can drive the loop without real time.
func (m *Monitor) Tick(now time.Time) {
	agents, err := m.mux.ListAgents()
	if err != nil {
		m.logger.Warn("[Monitor] discovery_failed", "error", err)
		return
	}
	if len(agents) == 0 {
		m.logger.Debug("[Monitor] no_agents")
	}

	supervisors := supervisorIndex(agents)
	teams := make(map[string]*teamTally)

	for _, agent := range agents {
		m.checkAgent(agent, supervisors[agent.Session], teams, now)
	}

	m.escalate(supervisors, teams, now)

	for _, target := range m.tracker.evict(now) {
		m.history.Forget(notify.CrashKey(target))
		m.history.Forget(notify.FreshKey(target))
		m.history.Forget(notify.IdleKey(target))
		m.history.Forget(target)
		m.logger.Debug("[Monitor] target_evicted", "target", target)
	}
}

// supervisorIndex maps each session to its supervisor pane target, if
// the session has one.
func supervisorIndex(agents []tmux.Agent) map[string]string {
	index := make(map[string]string)
	for _, a := range agents {
		if a.Role == tmux.RoleSupervisor {
			if _, ok := index[a.Session]; !ok {
				index[a.Session] = a.Target
			}
		}
	}
	return index
}

// checkAgent samples one pane, classifies it, and applies the
// notification policy. Failures are logged and never abort the tick.
func (m *Monitor) checkAgent(agent tmux.Agent, supervisor string, teams map[string]*teamTally, now time.Time) {
	tally, ok := teams[agent.Session]
	if !ok {
		tally = &teamTally{}
		teams[agent.Session] = tally
	}
	if agent.Role == tmux.RoleWorker {
		tally.workers++
	}

	content, err := m.mux.CapturePane(agent.Target, m.cfg.Monitor.CaptureLines)
	if err != nil {
		m.logger.Warn("[Monitor] capture_failed", "target", agent.Target, "error", err)
		m.tracker.markSeen(agent.Target, now)
		if agent.Role == tmux.RoleWorker {
			tally.unknown++
		}
		return
	}

	rule, state := m.classifier.RuleHit(content)
	hist := m.tracker.observe(agent.Target, content, state, now)

	m.logger.Debug("[Monitor] agent_sampled",
		"target", agent.Target,
		"state", string(state),
		"rule", rule,
		"unchanged", hist.unchanged,
		"velocity", hist.velocity,
	)

	if agent.Role == tmux.RoleWorker && (state == status.StateIdle || state == status.StateFresh) {
		tally.idle++
	}

	// A supervisor's own trouble is logged, never messaged to itself.
	msgTarget := supervisor
	if agent.Target == supervisor {
		msgTarget = ""
	}

	switch state {
	case status.StateRateLimited:
		m.noteRateLimit(agent, msgTarget, content, hist, now)
	case status.StateCrashed, status.StateError, status.StateFresh:
		if !notify.ShouldNotify(state, agent.Target, m.history, now) {
			return
		}
		ev := notify.NewAgentEvent(eventFor(state), agent.Target, msgTarget, stateMessage(agent, state))
		ev.Details = map[string]string{"rule": rule}
		if notify.NeedsRecovery(state) {
			ev.Details["needs_recovery"] = "true"
		}
		if err := m.notifier.Notify(ev); err != nil {
			m.logger.Warn("[Monitor] notify_failed", "target", agent.Target, "error", err)
			return
		}
		m.history.MarkFired(stateKey(state, agent.Target), now)
	case status.StateIdle:
		m.checkIdle(agent, msgTarget, hist, now)
	}
}

// noteRateLimit notifies the supervisor about a usage limit and queues
// the loop-wide pause. A banner already handled (same content hash) is
// skipped so a stale pane does not re-trigger the pause every tick.
func (m *Monitor) noteRateLimit(agent tmux.Agent, supervisor, content string, hist *agentHistory, now time.Time) {
	if hist.rateLimitHash == hist.lastHash {
		return
	}
	hist.rateLimitHash = hist.lastHash

	det := ratelimit.Analyze(content, now)

	msg := fmt.Sprintf("Agent %s (%s) hit a usage limit", agent.Target, agent.Type)
	switch {
	case det.Sleep > 0:
		msg += fmt.Sprintf(". Pausing all monitoring until the limit resets at %s (about %s).", det.ResetTime, det.Sleep.Round(time.Minute))
	case det.ResetTime != "":
		msg += fmt.Sprintf(". Reset at %s is too far out to wait for; monitoring continues.", det.ResetTime)
	default:
		msg += " with no parseable reset time; monitoring continues."
	}

	ev := notify.NewAgentEvent(notify.EventRateLimit, agent.Target, supervisor, msg)
	ev.Details = map[string]string{"needs_recovery": "true"}
	if det.ResetTime != "" {
		ev.Details["reset_at"] = det.ResetTime
	}
	if err := m.notifier.Notify(ev); err != nil {
		m.logger.Warn("[Monitor] notify_failed", "target", agent.Target, "error", err)
	}

	if det.Sleep <= 0 {
		return
	}
	if m.pause == nil || det.Sleep > m.pause.d {
		m.pause = &pendingPause{
			target:     agent.Target,
			supervisor: supervisor,
			reset:      det.ResetTime,
			d:          det.Sleep,
		}
	}
}

// checkIdle handles both idle notifications: the immediate one when an
// agent first goes idle, and the repeating one while it stays idle
// across the snapshot window.
func (m *Monitor) checkIdle(agent tmux.Agent, supervisor string, hist *agentHistory, now time.Time) {
	if notify.ShouldNotify(status.StateIdle, agent.Target, m.history, now) {
		msg := fmt.Sprintf("Agent %s (%s) finished its work and is idle. Send follow-up work or wrap it up.", agent.Target, agent.Type)
		ev := notify.NewAgentEvent(notify.EventAgentIdle, agent.Target, supervisor, msg)
		if err := m.notifier.Notify(ev); err != nil {
			m.logger.Warn("[Monitor] notify_failed", "target", agent.Target, "error", err)
			return
		}
		m.history.MarkFired(notify.IdleKey(agent.Target), now)
		m.history.MarkFired(agent.Target, now)
		return
	}

	if !m.classifier.IsTerminalIdle(hist.samples) {
		return
	}
	if !notify.ShouldNotifyContinuouslyIdle(agent.Target, m.history, now) {
		return
	}
	idleMin := int(now.Sub(hist.lastActive) / time.Minute)
	msg := fmt.Sprintf("Agent %s (%s) has been idle for %d minutes and is still waiting for instructions.", agent.Target, agent.Type, idleMin)
	ev := notify.NewAgentEvent(notify.EventAgentIdle, agent.Target, supervisor, msg)
	if err := m.notifier.Notify(ev); err != nil {
		m.logger.Warn("[Monitor] notify_failed", "target", agent.Target, "error", err)
		return
	}
	m.history.MarkFired(agent.Target, now)
}

// escalate applies the tier table to each supervised team's idleness.
func (m *Monitor) escalate(supervisors map[string]string, teams map[string]*teamTally, now time.Time) {
	for session, tally := range teams {
		sup := supervisors[session]
		if sup == "" || tally.workers == 0 {
			continue
		}
		for _, tier := range m.esc.observe(sup, tally.verdict(), now) {
			msg := expandTemplate(tier.Template, tier.ThresholdMin)
			if tier.Action == config.ActionKill {
				ev := notify.NewAgentEvent(notify.EventTeamEscalation, sup, "", msg)
				_ = m.notifier.Notify(ev)
				m.logger.Warn("[Monitor] supervisor_recycled", "supervisor", sup, "idle_min", tier.ThresholdMin)
				if err := m.mux.KillWindow(sup); err != nil {
					m.logger.Error("[Monitor] kill_failed", "target", sup, "error", err)
				}
				continue
			}
			ev := notify.NewAgentEvent(notify.EventTeamEscalation, sup, sup, msg)
			if err := m.notifier.Notify(ev); err != nil {
				m.logger.Warn("[Monitor] notify_failed", "target", sup, "error", err)
			}
		}
	}
}

// pauseForRateLimit suspends the whole loop until the queued pause
// elapses or ctx is cancelled.
func (m *Monitor) pauseForRateLimit(ctx context.Context) {
	pause := m.pause
	m.pause = nil

	m.setState(LoopSleepingRateLimit)
	m.logger.Info("[Monitor] rate_limit_pause",
		"target", pause.target,
		"reset", pause.reset,
		"sleep", pause.d.String(),
	)
	_ = m.notifier.Notify(notify.NewDaemonEvent(notify.EventDaemonSleeping,
		fmt.Sprintf("pausing all monitoring for %s (usage limit on %s)", pause.d.Round(time.Second), pause.target)))

	completed := m.wait(ctx, pause.d)
	m.setState(LoopRunning)
	if !completed {
		m.logger.Info("[Monitor] rate_limit_pause_interrupted")
		return
	}

	m.logger.Info("[Monitor] rate_limit_pause_complete", "target", pause.target)
	msg := fmt.Sprintf("Usage limit window for %s has passed. Monitoring resumed.", pause.target)
	ev := notify.NewAgentEvent(notify.EventDaemonResumed, pause.target, pause.supervisor, msg)
	if err := m.notifier.Notify(ev); err != nil {
		m.logger.Warn("[Monitor] notify_failed", "target", pause.target, "error", err)
	}
}

// eventFor maps an agent state to its notification event type.
func eventFor(state status.AgentState) notify.EventType {
	switch state {
	case status.StateCrashed:
		return notify.EventAgentCrashed
	case status.StateError:
		return notify.EventAgentError
	case status.StateFresh:
		return notify.EventAgentFresh
	case status.StateRateLimited:
		return notify.EventRateLimit
	default:
		return notify.EventAgentIdle
	}
}

// stateKey picks the cooldown key an event records under.
func stateKey(state status.AgentState, target string) string {
	if state == status.StateFresh {
		return notify.FreshKey(target)
	}
	return notify.CrashKey(target)
}

// stateMessage renders the supervisor-facing text for an agent state.
func stateMessage(agent tmux.Agent, state status.AgentState) string {
	switch state {
	case status.StateCrashed:
		return fmt.Sprintf("Agent %s (%s) appears to have crashed: the CLI interface is gone. Restart it or investigate.", agent.Target, agent.Type)
	case status.StateError:
		return fmt.Sprintf("Agent %s (%s) is showing errors and may need attention.", agent.Target, agent.Type)
	case status.StateFresh:
		return fmt.Sprintf("Agent %s (%s) is a fresh instance with no task yet. Assign it work.", agent.Target, agent.Type)
	default:
		return fmt.Sprintf("Agent %s (%s) is %s.", agent.Target, agent.Type, state)
	}
}

// waitInterruptible sleeps for d unless ctx ends first. Reports whether
// the full duration elapsed.
func waitInterruptible(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
