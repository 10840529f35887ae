package transcriber

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/meetingwhisperer/server/internal/session"
)

// Transcriber converts audio into speaker-attributed transcript lines.
//
// TranscribeChunk is called once per audio chunk from a live session and may
// return zero lines: silence, payloads too small to contain speech, and
// chunks whose speech is still buffered inside a streaming backend all yield
// an empty result without error.
type Transcriber interface {
	TranscribeChunk(ctx context.Context, audio []byte) ([]session.TranscriptLine, error)

	// TranscribeFile transcribes a complete recording in one call.
	TranscribeFile(ctx context.Context, filename string, audio []byte) ([]session.TranscriptLine, error)

	Close() error
}

// Config selects and configures a transcription backend.
type Config struct {
	Provider       string `yaml:"provider"` // "deepgram", "whisper" or "demo"
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	DeepgramAPIKey string `yaml:"deepgram_api_key"`
	SampleRate     int    `yaml:"sample_rate"`
	Language       string `yaml:"language"`
}

// New builds the configured backend. A streaming provider without its key
// degrades to the file-based one, and that without a key degrades to demo,
// so a bare config always yields a working transcriber.
func New(cfg Config, log *logrus.Logger) (Transcriber, error) {
	if log == nil {
		log = logrus.New()
	}
	switch cfg.Provider {
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			log.Warn("deepgram selected without API key, falling back to whisper")
			return New(Config{Provider: "whisper", OpenAIAPIKey: cfg.OpenAIAPIKey, Language: cfg.Language}, log)
		}
		return NewDeepgram(cfg, log)
	case "whisper":
		if cfg.OpenAIAPIKey == "" {
			log.Warn("whisper selected without API key, falling back to demo mode")
			return NewDemo(), nil
		}
		return NewWhisper(cfg, log), nil
	case "demo", "":
		return NewDemo(), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider: %s", cfg.Provider)
	}
}
