package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	// Repositories are "owner/name" slugs polled every cycle.
	Repositories []string `json:"repositories"`

	GitHub   GitHubConfig   `json:"github,omitempty"`
	Slack    SlackConfig    `json:"slack"`
	Announce AnnounceConfig `json:"announce,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty"`

	// Storage persists announced event IDs across restarts. Nil means
	// disabled: a restart may re-announce events still inside the recency
	// window.
	Storage *StorageConfig `json:"storage,omitempty"`

	Metrics MetricsConfig `json:"metrics,omitempty"`
}

// GitHubConfig configures the events API client.
//
// Auth is optional for public repositories. Token wins over login/password
// when both are set. Environment variables GITHUB_TOKEN, GITHUB_LOGIN and
// GITHUB_PASSWORD override the file values.
type GitHubConfig struct {
	Token    string `json:"token,omitempty"`
	Login    string `json:"login,omitempty"`
	Password string `json:"password,omitempty"`
	// BaseURL points the client at a GitHub Enterprise instance.
	BaseURL string `json:"base_url,omitempty"`
	// PerPage caps events fetched per repository per cycle. Default 10.
	PerPage int `json:"per_page,omitempty"`
}

// SlackConfig configures outbound chat delivery. SLACK_TOKEN overrides the
// file token.
type SlackConfig struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
	AsUser  bool   `json:"as_user,omitempty"`
	// UnfurlLinks asks Slack to render link previews for posted messages.
	UnfurlLinks bool `json:"unfurl_links,omitempty"`
	// AttachmentMode is "attachment" (default) or "unfurl".
	AttachmentMode string `json:"attachment_mode,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
}

// AnnounceConfig controls the polling loop.
//
// All durations are Go duration strings (e.g. "30s", "10m").
type AnnounceConfig struct {
	// Schedule is a duration ("60s") or a standard cron line
	// ("cron:*/5 * * * *"). Default "60s".
	Schedule string `json:"schedule,omitempty"`
	// RecencyWindow: events older than this are never announced. Default "10m".
	RecencyWindow string `json:"recency_window,omitempty"`
	// DedupWindow is how long announced IDs are remembered. Default 24h.
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./repowatch_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9180"
}

// Validate checks invariants that must hold before the config is committed
// or published to subscribers.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if len(c.Repositories) == 0 {
		return fmt.Errorf("repositories: at least one owner/name slug is required")
	}
	for _, r := range c.Repositories {
		parts := strings.Split(strings.TrimSpace(r), "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("repositories: %q is not owner/name", r)
		}
	}
	if strings.TrimSpace(c.Slack.Token) == "" {
		return fmt.Errorf("slack.token is required (or set SLACK_TOKEN)")
	}
	if strings.TrimSpace(c.Slack.Channel) == "" {
		return fmt.Errorf("slack.channel is required")
	}
	switch c.Slack.AttachmentMode {
	case "", "attachment", "unfurl":
	default:
		return fmt.Errorf("slack.attachment_mode: %q is not attachment or unfurl", c.Slack.AttachmentMode)
	}
	window, err := ParseDurationOrDefault("announce.recency_window", c.Announce.RecencyWindow, 10*time.Minute)
	if err != nil {
		return err
	}
	dedup, err := ParseDurationOrDefault("announce.dedup_window", c.Announce.DedupWindow, 24*time.Hour)
	if err != nil {
		return err
	}
	// The dedup guard may evict entries once they age past its window; that
	// is only safe while evicted IDs are already outside the recency window.
	// A shorter dedup window would re-announce events that are still recent.
	if dedup < window {
		return fmt.Errorf("announce.dedup_window (%s) must be >= announce.recency_window (%s)", dedup, window)
	}
	if c.Storage != nil {
		switch strings.TrimSpace(c.Storage.Driver) {
		case "", "none", "file", "sqlite":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
