package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/stepship/internal/cloudapi"
	"github.com/specialistvlad/stepship/internal/deploy"
)

// Environment variables consulted for defaults.
const (
	EnvAPIKey     = "STEPSHIP_API_KEY"
	EnvAPIBaseURL = "STEPSHIP_API_BASE_URL"
	EnvAPIWSURL   = "STEPSHIP_API_WS_URL"
)

// DefaultGatewayURL is reported as the gateway output of deployments that
// publish no outputs of their own.
const DefaultGatewayURL = "https://gateway.stepship.dev"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ProjectDir string
	DistDir    string // defaults to <ProjectDir>/dist

	APIKey     string
	APIBaseURL string
	FeedURL    string

	VersionName   string
	ProjectID     string
	EnvironmentID string
	EnvFile       string

	LogFormat string // text, json or auto
	LogLevel  string
}

// NewConfig validates cfg, fills in defaults and makes the directories
// absolute.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ProjectDir == "" {
		return nil, errors.New("ProjectDir is a required configuration field and cannot be empty")
	}
	abs, err := filepath.Abs(cfg.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("project dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project dir %s is not a directory", abs)
	}
	cfg.ProjectDir = abs

	if cfg.DistDir == "" {
		cfg.DistDir = filepath.Join(abs, "dist")
	} else if !filepath.IsAbs(cfg.DistDir) {
		cfg.DistDir = filepath.Join(abs, cfg.DistDir)
	}
	cfg.DistDir = filepath.Clean(cfg.DistDir)
	if contains(cfg.DistDir, abs) {
		return nil, fmt.Errorf("dist dir %s must not be or contain the project dir, it is wiped on every build", cfg.DistDir)
	}

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = cloudapi.DefaultBaseURL
	}
	if cfg.FeedURL == "" {
		cfg.FeedURL = deploy.DefaultFeedURL
	}
	if cfg.EnvFile != "" && !filepath.IsAbs(cfg.EnvFile) {
		cfg.EnvFile = filepath.Join(abs, cfg.EnvFile)
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "auto"
	case "text", "json", "auto":
	default:
		return nil, fmt.Errorf("invalid log-format %q: must be 'text', 'json' or 'auto'", cfg.LogFormat)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}

	return &cfg, nil
}

// contains reports whether parent is dir itself or one of its ancestors.
func contains(parent, dir string) bool {
	rel, err := filepath.Rel(parent, dir)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ValidateDeploy checks the fields only a deployment needs.
func (c *Config) ValidateDeploy() error {
	if c.APIKey == "" {
		return fmt.Errorf("an API key is required, pass --api-key or set %s", EnvAPIKey)
	}
	if c.VersionName == "" {
		return errors.New("a version name is required, pass --version-name")
	}
	return nil
}

// DefaultOutputs is what a completed deployment reports when the control
// plane publishes no outputs.
func (c *Config) DefaultOutputs() map[string]string {
	return map[string]string{
		"ApiGatewayUrl": DefaultGatewayURL,
		"WebSocketUrl":  c.FeedURL,
	}
}
