package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meetingwhisperer/server/internal/archive"
	"github.com/meetingwhisperer/server/internal/integrations"
	"github.com/meetingwhisperer/server/internal/oracle"
	"github.com/meetingwhisperer/server/internal/session"
	"github.com/meetingwhisperer/server/internal/transcriber"
)

// Config is the full server configuration, loaded from YAML with secrets
// overridable from the environment.
type Config struct {
	Server struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`

	Transcription transcriber.Config `yaml:"transcription"`
	Oracle        oracle.Config      `yaml:"oracle"`

	Pipeline struct {
		ExtractInterval     int     `yaml:"extract_interval"`
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
		ContextLines        int     `yaml:"context_lines"`
	} `yaml:"pipeline"`

	Redis struct {
		Enabled bool `yaml:"enabled"`
		archive.Config `yaml:",inline"`
	} `yaml:"redis"`

	Jira     integrations.JiraConfig    `yaml:"jira"`
	Webhooks integrations.WebhookConfig `yaml:"webhooks"`

	Profiles []oracle.Profile `yaml:"profiles"`
}

// Load reads the YAML file, applies environment overrides for API keys, and
// fills defaults. A missing file is not an error; env-only deployments run
// on defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("open config: %w", err)
			}
		} else {
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Transcription.OpenAIAPIKey = v
	}
	if v := os.Getenv("DEEPGRAM_API_KEY"); v != "" {
		cfg.Transcription.DeepgramAPIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("JIRA_API_TOKEN"); v != "" {
		cfg.Jira.APIToken = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Pipeline.ExtractInterval <= 0 {
		cfg.Pipeline.ExtractInterval = session.DefaultExtractInterval
	}
	if cfg.Pipeline.ConfidenceThreshold <= 0 {
		cfg.Pipeline.ConfidenceThreshold = session.DefaultConfidenceThreshold
	}
	if cfg.Pipeline.ContextLines <= 0 {
		cfg.Pipeline.ContextLines = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
}

// Profile looks up a configured listener profile by name.
func (c *Config) Profile(name string) *oracle.Profile {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return &c.Profiles[i]
		}
	}
	return nil
}
