// Package config loads and validates owl's TOML configuration.
// Precedence: environment > config file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Dicklesworthstone/owl/internal/status"
)

// Config is the top-level configuration.
type Config struct {
	// DataDir is the project-relative directory holding the PID file,
	// lock, log, and stop marker.
	DataDir string `toml:"data_dir" json:"data_dir"`

	Monitor    MonitorConfig    `toml:"monitor" json:"monitor"`
	Notify     NotifyConfig     `toml:"notify" json:"notify"`
	Escalation EscalationConfig `toml:"escalation" json:"escalation"`
	Markers    MarkersConfig    `toml:"interface_markers" json:"interface_markers"`
}

// MonitorConfig tunes the sampling loop.
type MonitorConfig struct {
	// IntervalSec is the tick interval.
	IntervalSec int `toml:"interval_sec" json:"interval_sec"`
	// CaptureLines is how much pane scrollback each sample reads.
	CaptureLines int `toml:"capture_lines" json:"capture_lines"`
	// SnapshotWindow is the ring size for the multi-sample idle check.
	SnapshotWindow int `toml:"snapshot_window" json:"snapshot_window"`
	// TargetGraceSec keeps history for an undiscovered target this long
	// before dropping it.
	TargetGraceSec int `toml:"target_grace_sec" json:"target_grace_sec"`
}

// NotifyConfig tunes supervisor messaging.
type NotifyConfig struct {
	// Enabled false turns off pane delivery; log and webhooks still fire.
	Enabled bool `toml:"enabled" json:"enabled"`
	// MessagePrefix tags monitor traffic in supervisor panes.
	MessagePrefix string `toml:"message_prefix" json:"message_prefix"`
}

// Escalation tier actions.
const (
	ActionMessage = "message"
	ActionKill    = "kill"
)

// EscalationTier is one record of the escalation table.
type EscalationTier struct {
	// ThresholdMin is whole minutes of continuous team idleness.
	ThresholdMin int `toml:"threshold_min" json:"threshold_min"`
	// Action is ActionMessage or ActionKill.
	Action string `toml:"action" json:"action"`
	// Template is the message text; {minutes} expands to the threshold.
	Template string `toml:"template" json:"template"`
}

// EscalationConfig is the ordered escalation table.
type EscalationConfig struct {
	Tiers []EscalationTier `toml:"tiers" json:"tiers"`
}

// MarkersConfig overrides the UI fixture set the classifier matches
// against. Empty fields keep the built-in Claude Code defaults.
type MarkersConfig struct {
	FrameTop       string   `toml:"frame_top" json:"frame_top"`
	FrameBottom    string   `toml:"frame_bottom" json:"frame_bottom"`
	FrameSide      string   `toml:"frame_side" json:"frame_side"`
	PromptMarker   string   `toml:"prompt_marker" json:"prompt_marker"`
	ReadyBanners   []string `toml:"ready_banners" json:"ready_banners"`
	WelcomeBanners []string `toml:"welcome_banners" json:"welcome_banners"`
	Placeholders   []string `toml:"placeholders" json:"placeholders"`
	WindowLines    int      `toml:"window_lines" json:"window_lines"`
}

// ToMarkers converts the config section to the classifier fixture set.
func (m MarkersConfig) ToMarkers() status.Markers {
	return status.Markers{
		FrameTop:       m.FrameTop,
		FrameBottom:    m.FrameBottom,
		FrameSide:      m.FrameSide,
		PromptMarker:   m.PromptMarker,
		ReadyBanners:   m.ReadyBanners,
		WelcomeBanners: m.WelcomeBanners,
		Placeholders:   m.Placeholders,
		WindowLines:    m.WindowLines,
	}
}

// DefaultMonitorConfig returns the monitor loop defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		IntervalSec:    10,
		CaptureLines:   150,
		SnapshotWindow: 5,
		TargetGraceSec: 60,
	}
}

// DefaultNotifyConfig returns the messaging defaults.
func DefaultNotifyConfig() NotifyConfig {
	return NotifyConfig{
		Enabled:       true,
		MessagePrefix: "MONITOR",
	}
}

// DefaultEscalationConfig returns the escalation table: two messages of
// rising urgency, then kill-and-rely-on-respawn.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		Tiers: []EscalationTier{
			{ThresholdMin: 3, Action: ActionMessage, Template: "Your team has been idle for {minutes} minutes. Check in with your agents and assign work."},
			{ThresholdMin: 5, Action: ActionMessage, Template: "URGENT: team idle for {minutes} minutes. Unblock your agents now or this session will be recycled."},
			{ThresholdMin: 8, Action: ActionKill, Template: "Team idle for {minutes} minutes with no supervisor response. Recycling the supervisor window."},
		},
	}
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		DataDir:    ".owl",
		Monitor:    DefaultMonitorConfig(),
		Notify:     DefaultNotifyConfig(),
		Escalation: DefaultEscalationConfig(),
	}
}

// DefaultPath returns the config file path.
func DefaultPath() string {
	if env := os.Getenv("OWL_CONFIG"); env != "" {
		return ExpandHome(env)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "owl", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "owl", "config.toml")
}

// ExpandHome expands a leading ~ in a path.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Load reads the config at path (DefaultPath when empty), layering
// TOML over defaults and environment over both. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if dir := os.Getenv("OWL_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if v := os.Getenv("OWL_MONITOR_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Monitor.IntervalSec = n
		}
	}
	if v := os.Getenv("OWL_NOTIFY_ENABLED"); v != "" {
		cfg.Notify.Enabled = v == "1" || v == "true"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants a running daemon depends on.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if c.Monitor.IntervalSec <= 0 {
		return fmt.Errorf("monitor.interval_sec must be positive, got %d", c.Monitor.IntervalSec)
	}
	if c.Monitor.CaptureLines <= 0 {
		return fmt.Errorf("monitor.capture_lines must be positive, got %d", c.Monitor.CaptureLines)
	}
	if c.Monitor.SnapshotWindow < 2 {
		return fmt.Errorf("monitor.snapshot_window must be at least 2, got %d", c.Monitor.SnapshotWindow)
	}

	last := 0
	for i, tier := range c.Escalation.Tiers {
		if tier.ThresholdMin <= 0 {
			return fmt.Errorf("escalation tier %d: threshold_min must be positive", i)
		}
		if tier.ThresholdMin <= last {
			return fmt.Errorf("escalation tier %d: thresholds must be strictly ascending", i)
		}
		last = tier.ThresholdMin
		switch tier.Action {
		case ActionMessage, ActionKill:
		default:
			return fmt.Errorf("escalation tier %d: unknown action %q (message or kill)", i, tier.Action)
		}
	}
	return nil
}

// Interval returns the tick interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Monitor.IntervalSec) * time.Second
}

// TargetGrace returns how long history survives an undiscovered target.
func (c *Config) TargetGrace() time.Duration {
	return time.Duration(c.Monitor.TargetGraceSec) * time.Second
}

// Data file locations, all inside DataDir.

func (c *Config) PIDPath() string      { return filepath.Join(c.DataDir, "owl.pid") }
func (c *Config) LockPath() string     { return filepath.Join(c.DataDir, "owl.lock") }
func (c *Config) LogPath() string      { return filepath.Join(c.DataDir, "owl.log") }
func (c *Config) MarkerPath() string   { return filepath.Join(c.DataDir, "stop.marker") }
func (c *Config) WebhooksPath() string { return filepath.Join(c.DataDir, "webhooks.yaml") }
