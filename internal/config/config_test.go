package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/meetingwhisperer/server/internal/session"
)

const sampleYAML = `
server:
  port: 9001
  log_level: debug
transcription:
  provider: whisper
oracle:
  provider: anthropic
  api_key: from-file
pipeline:
  extract_interval: 3
profiles:
  - name: Paul
    strong_areas: [marketing]
    weak_areas: [engineering]
    expertise_level: beginner
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9001 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server config: %+v", cfg.Server)
	}
	if cfg.Pipeline.ExtractInterval != 3 {
		t.Errorf("extract interval = %d", cfg.Pipeline.ExtractInterval)
	}
	if cfg.Pipeline.ConfidenceThreshold != session.DefaultConfidenceThreshold {
		t.Errorf("threshold default not applied: %v", cfg.Pipeline.ConfidenceThreshold)
	}
	if p := cfg.Profile("Paul"); p == nil || p.ExpertiseLevel != "beginner" {
		t.Errorf("profile lookup: %+v", p)
	}
	if cfg.Profile("nobody") != nil {
		t.Error("unknown profile should be nil")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Oracle.APIKey != "from-env" {
		t.Errorf("api key = %q, want env override", cfg.Oracle.APIKey)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Pipeline.ExtractInterval != session.DefaultExtractInterval {
		t.Errorf("default interval = %d", cfg.Pipeline.ExtractInterval)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [not a map")); err == nil {
		t.Error("expected parse error")
	}
}
