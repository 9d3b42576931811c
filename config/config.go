// Package config loads Skybridge's process-wide configuration from
// environment variables at startup. There is no config file and no CLI flag
// surface; every recognized key is read once in Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the run-time configuration for a skybridged process, loaded
// once at boot from environment variables.
type Config struct {
	WorktreesBasePath  string
	QueueBasePath      string
	WorkspacesBasePath string
	LogsBasePath       string

	JobQueueProvider string

	WebhookEnabledSources []string
	WebhookSecrets        map[string]string // source -> secret

	WebUIDeletePassword string

	LogLevel  string
	LogFormat string

	ProcessingRecoveryGrace time.Duration

	NgrokEnabled   bool
	NgrokAuthToken string
	NgrokDomain    string

	HTTPAddr string

	RepoPath         string
	SystemPromptPath string
	AgentBinary      string
	AgentArgs        []string
	AgentKind        string

	CORSOrigins []string
}

const (
	defaultRecoveryGrace = 5 * time.Minute
	defaultHTTPAddr      = ":8080"
)

// Load reads recognized environment variables into a Config, applying
// defaults for anything unset. It never reads a config file.
func Load() (*Config, error) {
	c := &Config{
		WorktreesBasePath:       envOr("WORKTREES_BASE_PATH", "./data/worktrees"),
		QueueBasePath:           envOr("QUEUE_BASE_PATH", "./data/queue"),
		WorkspacesBasePath:      envOr("WORKSPACES_BASE_PATH", "./data/workspaces"),
		LogsBasePath:            envOr("SKYBRIDGE_LOGS_BASE_PATH", "./data/logs"),
		JobQueueProvider:        envOr("JOB_QUEUE_PROVIDER", "file"),
		WebUIDeletePassword:     os.Getenv("WEBUI_DELETE_PASSWORD"),
		LogLevel:                envOr("SKYBRIDGE_LOG_LEVEL", "info"),
		LogFormat:               envOr("SKYBRIDGE_LOG_FORMAT", "text"),
		NgrokAuthToken:          os.Getenv("NGROK_AUTH_TOKEN"),
		NgrokDomain:             os.Getenv("NGROK_DOMAIN"),
		HTTPAddr:                envOr("SKYBRIDGE_HTTP_ADDR", defaultHTTPAddr),
		ProcessingRecoveryGrace: defaultRecoveryGrace,
		RepoPath:                envOr("SKYBRIDGE_REPO_PATH", "."),
		SystemPromptPath:        envOr("SKYBRIDGE_SYSTEM_PROMPT_PATH", "./system_prompt.json"),
		AgentBinary:             envOr("SKYBRIDGE_AGENT_BINARY", "skybridge-agent"),
		AgentKind:               envOr("SKYBRIDGE_AGENT_KIND", "claude-code"),
		CORSOrigins:             splitCSV(os.Getenv("SKYBRIDGE_CORS_ORIGINS")),
	}

	c.AgentArgs = splitCSV(os.Getenv("SKYBRIDGE_AGENT_ARGS"))

	if c.JobQueueProvider != "file" {
		return nil, fmt.Errorf("config: unsupported JOB_QUEUE_PROVIDER %q, only \"file\" is supported", c.JobQueueProvider)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return nil, fmt.Errorf("config: unsupported SKYBRIDGE_LOG_FORMAT %q, must be \"text\" or \"json\"", c.LogFormat)
	}

	if v := os.Getenv("WEBHOOK_PROCESSING_RECOVERY_GRACE_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid WEBHOOK_PROCESSING_RECOVERY_GRACE_SECONDS: %w", err)
		}
		c.ProcessingRecoveryGrace = time.Duration(secs) * time.Second
	}

	if v := os.Getenv("NGROK_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid NGROK_ENABLED: %w", err)
		}
		c.NgrokEnabled = enabled
	}

	c.WebhookEnabledSources = splitCSV(os.Getenv("WEBHOOK_ENABLED_SOURCES"))
	c.WebhookSecrets = make(map[string]string, len(c.WebhookEnabledSources))
	for _, source := range c.WebhookEnabledSources {
		key := "WEBHOOK_" + strings.ToUpper(source) + "_SECRET"
		c.WebhookSecrets[source] = os.Getenv(key)
	}

	return c, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
