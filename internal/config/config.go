// Package config loads and validates the dashboard configuration.
//
// Configuration is a JSON file overlaid on defaults; a handful of flags on
// the binary override the file. Credentials never live here: the OpenAI key
// comes from OPENAI_API_KEY and Datadog keys from the DD_* environment the
// SDK reads itself.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gridchat/internal/storage"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Inference InferenceConfig `json:"inference"`
	Chat      ChatConfig      `json:"chat"`
	Storage   storage.Config  `json:"storage"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `json:"addr"`

	// MaxUploadBytes caps multipart upload size. Zero means the default.
	MaxUploadBytes int64 `json:"max_upload_bytes"`
}

type InferenceConfig struct {
	Model   string `json:"model"`
	BaseURL string `json:"base_url"`
}

type ChatConfig struct {
	Model   string `json:"model"`
	BaseURL string `json:"base_url"`
}

type MetricsConfig struct {
	// Backend selects the metrics sink: "datadog" or "none".
	Backend string `json:"backend"`

	// FlushSeconds is the Datadog flush interval. Zero means the backend default.
	FlushSeconds int `json:"flush_seconds"`

	// Tags is a comma-separated tag list, e.g. "env:prod,service:gridchat".
	Tags string `json:"tags"`
}

const defaultMaxUploadBytes = 32 << 20

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server:  ServerConfig{Addr: ":8080", MaxUploadBytes: defaultMaxUploadBytes},
		Storage: storage.Config{Kind: "sqlite", DSN: "file:gridchat.db"},
		Metrics: MetricsConfig{Backend: "none"},
	}
}

// Load reads a JSON config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Warnings are logged; errors stop startup.
type Issue struct {
	Severity Severity
	Field    string
	Msg      string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Field, i.Msg)
}

// Validate checks the configuration and returns all findings at once, so an
// operator fixes a broken file in one pass.
func (c Config) Validate() []Issue {
	var issues []Issue

	if c.Server.Addr == "" {
		issues = append(issues, Issue{SeverityError, "server.addr", "listen address must not be empty"})
	}
	if c.Server.MaxUploadBytes < 0 {
		issues = append(issues, Issue{SeverityError, "server.max_upload_bytes", "must not be negative"})
	}

	switch c.Metrics.Backend {
	case "", "none", "datadog":
	default:
		issues = append(issues, Issue{SeverityError, "metrics.backend",
			fmt.Sprintf("unsupported backend %q (use datadog or none)", c.Metrics.Backend)})
	}
	if c.Metrics.FlushSeconds < 0 {
		issues = append(issues, Issue{SeverityError, "metrics.flush_seconds", "must not be negative"})
	}

	if c.Storage.Kind == "" {
		issues = append(issues, Issue{SeverityWarning, "storage.kind",
			"no storage backend configured; database pushes will fail"})
	}
	if c.Storage.Kind != "" && c.Storage.DSN == "" {
		issues = append(issues, Issue{SeverityError, "storage.dsn",
			fmt.Sprintf("storage.kind=%q requires a dsn", c.Storage.Kind)})
	}

	if os.Getenv("OPENAI_API_KEY") == "" {
		issues = append(issues, Issue{SeverityWarning, "OPENAI_API_KEY",
			"environment variable is empty; schema inference and chat will fail"})
	}

	return issues
}

// HasErrors reports whether any issue is severe enough to stop startup.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
