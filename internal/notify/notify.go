package notify

import (
	"fmt"
	"log/slog"
	"time"
)

// EventType represents the kind of notification event.
type EventType string

const (
	EventAgentError     EventType = "agent.error"      // Agent hit error state
	EventAgentCrashed   EventType = "agent.crashed"    // Agent process exited
	EventAgentFresh     EventType = "agent.fresh"      // Agent started with no work
	EventAgentIdle      EventType = "agent.idle"       // Agent waiting for input
	EventRateLimit      EventType = "agent.rate_limit" // Agent hit a usage limit
	EventTeamEscalation EventType = "team.escalation"  // Team-idle threshold crossed
	EventDaemonStarted  EventType = "daemon.started"
	EventDaemonStopped  EventType = "daemon.stopped"
	EventDaemonSleeping EventType = "daemon.sleeping" // Rate-limit pause entered
	EventDaemonResumed  EventType = "daemon.resumed"  // Rate-limit pause left
)

// Event is one notification. Supervisor is the pane the message is
// delivered to; when empty the event only reaches the log and webhook
// sinks (the daemon's own lifecycle events, or a failing supervisor
// that cannot usefully be messaged about itself).
type Event struct {
	Type       EventType         `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	Target     string            `json:"target,omitempty"`
	Supervisor string            `json:"supervisor,omitempty"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
}

// NewAgentEvent builds an agent-condition event addressed to the
// agent's supervisor.
func NewAgentEvent(t EventType, target, supervisor, message string) Event {
	return Event{
		Type:       t,
		Timestamp:  time.Now().UTC(),
		Target:     target,
		Supervisor: supervisor,
		Message:    message,
	}
}

// NewDaemonEvent builds a daemon lifecycle event (log/webhook only).
func NewDaemonEvent(t EventType, message string) Event {
	return Event{Type: t, Timestamp: time.Now().UTC(), Message: message}
}

// Sender delivers one line of text to an agent pane. The tmux layer
// implements it; tests inject fakes.
type Sender interface {
	SendText(target, message string) error
}

// Notifier fans an event out to its sinks: the supervisor pane, the
// structured log, and any configured webhooks.
type Notifier struct {
	sender   Sender
	hooks    *WebhookDispatcher
	logger   *slog.Logger
	prefix   string
	disabled bool
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithSender sets the pane delivery sink.
func WithSender(s Sender) NotifierOption {
	return func(n *Notifier) { n.sender = s }
}

// WithWebhooks sets the webhook sink.
func WithWebhooks(d *WebhookDispatcher) NotifierOption {
	return func(n *Notifier) { n.hooks = d }
}

// WithLogger sets the structured log sink.
func WithLogger(l *slog.Logger) NotifierOption {
	return func(n *Notifier) { n.logger = l }
}

// WithMessagePrefix sets the tag prepended to pane messages so
// supervising agents can recognize monitor traffic.
func WithMessagePrefix(p string) NotifierOption {
	return func(n *Notifier) { n.prefix = p }
}

// WithDisabled turns off pane delivery (dry-run mode); log and webhook
// sinks still fire.
func WithDisabled(disabled bool) NotifierOption {
	return func(n *Notifier) { n.disabled = disabled }
}

// NewNotifier builds a notifier. A nil sender means log/webhook only.
func NewNotifier(opts ...NotifierOption) *Notifier {
	n := &Notifier{
		logger: slog.Default(),
		prefix: "MONITOR",
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SetMessagePrefix swaps the pane message tag. Config hot reload calls
// this from the loop goroutine that also calls Notify.
func (n *Notifier) SetMessagePrefix(p string) { n.prefix = p }

// SetDisabled toggles pane delivery at runtime.
func (n *Notifier) SetDisabled(disabled bool) { n.disabled = disabled }

// Notify delivers one event. Pane delivery failure is returned so the
// caller can log it; it is never retried within the same tick to avoid
// double-delivery storms. Log and webhook sinks never fail the call.
func (n *Notifier) Notify(ev Event) error {
	n.logger.Info("[Notify] event",
		"type", string(ev.Type),
		"target", ev.Target,
		"supervisor", ev.Supervisor,
		"message", ev.Message,
	)

	if n.hooks != nil {
		n.hooks.Dispatch(ev)
	}

	if n.sender == nil || n.disabled || ev.Supervisor == "" {
		return nil
	}

	line := ev.Message
	if n.prefix != "" {
		line = fmt.Sprintf("[%s] %s", n.prefix, ev.Message)
	}
	if err := n.sender.SendText(ev.Supervisor, line); err != nil {
		return fmt.Errorf("delivering %s to %s: %w", ev.Type, ev.Supervisor, err)
	}
	return nil
}
