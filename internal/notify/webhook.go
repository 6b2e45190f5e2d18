package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WebhookConfig is one endpoint entry in .owl/webhooks.yaml.
type WebhookConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// Events is an allowlist of event types; empty means all.
	Events  []string          `yaml:"events"`
	Headers map[string]string `yaml:"headers"`
	Timeout string            `yaml:"timeout"`
}

// ValidateConfig checks one webhook entry.
func (c *WebhookConfig) ValidateConfig() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name is required")
	}
	urlStr := strings.TrimSpace(c.URL)
	if urlStr == "" {
		return errors.New("url is required")
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", urlStr, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid url scheme %q (must be http or https)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", urlStr)
	}
	if strings.TrimSpace(c.Timeout) != "" {
		if _, err := time.ParseDuration(strings.TrimSpace(c.Timeout)); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
		}
	}
	return nil
}

// webhooksFile is the YAML document shape.
type webhooksFile struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookDispatcher posts events to configured endpoints. Dispatch is
// best-effort: failures are logged, never retried, never propagated.
type WebhookDispatcher struct {
	hooks  []WebhookConfig
	client *http.Client
	logger *slog.Logger
}

// NewWebhookDispatcher builds a dispatcher over validated entries.
func NewWebhookDispatcher(hooks []WebhookConfig, logger *slog.Logger) *WebhookDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDispatcher{
		hooks:  hooks,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// LoadWebhooks reads .owl/webhooks.yaml. A missing file is not an
// error: webhooks are optional.
func LoadWebhooks(path string) ([]WebhookConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading webhooks config: %w", err)
	}

	var f webhooksFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing webhooks config: %w", err)
	}

	for i := range f.Webhooks {
		if err := f.Webhooks[i].ValidateConfig(); err != nil {
			return nil, fmt.Errorf("webhook %d (%s): %w", i, f.Webhooks[i].Name, err)
		}
	}
	return f.Webhooks, nil
}

// Dispatch posts ev to every endpoint whose event filter matches.
func (d *WebhookDispatcher) Dispatch(ev Event) {
	if d == nil || len(d.hooks) == 0 {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.Warn("[Notify] webhook_marshal_failed", "error", err)
		return
	}

	for _, hook := range d.hooks {
		if !hook.wants(string(ev.Type)) {
			continue
		}
		d.post(hook, payload)
	}
}

func (c *WebhookConfig) wants(eventType string) bool {
	if len(c.Events) == 0 {
		return true
	}
	for _, e := range c.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

func (d *WebhookDispatcher) post(hook WebhookConfig, payload []byte) {
	req, err := http.NewRequest(http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		d.logger.Warn("[Notify] webhook_request_failed", "webhook", hook.Name, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hook.Headers {
		req.Header.Set(k, v)
	}

	client := d.client
	if t := strings.TrimSpace(hook.Timeout); t != "" {
		if dur, err := time.ParseDuration(t); err == nil && dur > 0 {
			c := *d.client
			c.Timeout = dur
			client = &c
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		d.logger.Warn("[Notify] webhook_post_failed", "webhook", hook.Name, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.logger.Warn("[Notify] webhook_rejected", "webhook", hook.Name, "status", resp.StatusCode)
	}
}
