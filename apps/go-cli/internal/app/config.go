package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	pushbridge "github.com/slush-dev/push-bridge"
	"gopkg.in/yaml.v3"
)

// ConfigFile is the optional configuration file inside the session dir.
const ConfigFile = "config.yaml"

// Authorization answers for the host's permission prompt.
const (
	AuthorizeGrant  = "grant"
	AuthorizeDeny   = "deny"
	AuthorizePrompt = "prompt"
)

// Config is everything needed to assemble a Session.
type Config struct {
	SenderID   string        `yaml:"sender_id"`
	AppID      string        `yaml:"app_id,omitempty"`
	MCSAddress string        `yaml:"mcs_address,omitempty"`
	Heartbeat  time.Duration `yaml:"heartbeat,omitempty"`

	HubURL   string `yaml:"hub_url,omitempty"`
	HubToken string `yaml:"hub_token,omitempty"`

	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	Authorization        string        `yaml:"authorization"`
	PromptTimeout        time.Duration `yaml:"prompt_timeout,omitempty"`
	RequireAuthorization bool          `yaml:"require_authorization"`

	Presentation       string        `yaml:"presentation"`
	Background         bool          `yaml:"background"`
	PresentationWindow time.Duration `yaml:"presentation_window,omitempty"`
	InteractionWindow  time.Duration `yaml:"interaction_window,omitempty"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Authorization: AuthorizePrompt,
		Presentation:  pushbridge.DefaultPresentation.String(),
	}
}

// LoadConfig reads ConfigFile from sessionDir over DefaultConfig. A missing
// file is not an error.
func LoadConfig(sessionDir string) (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(sessionDir, ConfigFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks enumerated fields.
func (c Config) Validate() error {
	switch c.Authorization {
	case AuthorizeGrant, AuthorizeDeny, AuthorizePrompt:
	default:
		return fmt.Errorf("authorization must be %s, %s or %s, got %q", AuthorizeGrant, AuthorizeDeny, AuthorizePrompt, c.Authorization)
	}
	if _, err := pushbridge.ParsePresentationOptions(c.Presentation); err != nil {
		return fmt.Errorf("presentation: %w", err)
	}
	return nil
}
