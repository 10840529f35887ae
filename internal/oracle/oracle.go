package oracle

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/meetingwhisperer/server/internal/session"
)

// Oracle is the structured-text derivation capability: given meeting
// content and a response schema, return a structured result or fail. Every
// implementation may be slow and may fail; callers are expected to fall back
// to the Neutral* results rather than interrupt transcript ingestion.
type Oracle interface {
	// ExtractActions jointly analyzes lines against the existing item set
	// and labels each returned item with a disposition. A nil existing slice
	// requests a context-free extraction.
	ExtractActions(ctx context.Context, lines []session.TranscriptLine, existing []session.ActionItem) ([]session.ReconciledItem, error)

	// ScoreEmotion rates a single utterance.
	ScoreEmotion(ctx context.Context, speaker, text string) (EmotionScore, error)

	// Summarize produces the end-of-meeting executive summary.
	Summarize(ctx context.Context, lines []session.TranscriptLine, items []session.ActionItem) (Summary, error)

	// AnalyzeEmotions produces the aggregate emotion report over the whole
	// transcript.
	AnalyzeEmotions(ctx context.Context, lines []session.TranscriptLine) (EmotionReport, error)

	// Answer responds to an ad-hoc question about the meeting.
	Answer(ctx context.Context, question string, lines []session.TranscriptLine, items []session.ActionItem, summary *Summary) (Answer, error)

	// Explain checks the latest utterance for terms outside the profile's
	// expertise. A nil result means nothing needed explaining.
	Explain(ctx context.Context, profile Profile, recent []session.TranscriptLine, latest string) (*Explanation, error)
}

// Profile describes a listener the explanation pass personalizes for.
type Profile struct {
	Name           string   `yaml:"name" json:"name"`
	StrongAreas    []string `yaml:"strong_areas" json:"strong_areas"`
	WeakAreas      []string `yaml:"weak_areas" json:"weak_areas"`
	ExpertiseLevel string   `yaml:"expertise_level" json:"expertise_level"`
}

// EmotionScore is the per-line emotion result.
type EmotionScore struct {
	PrimaryEmotion string  `json:"primary_emotion"`
	EnergyLevel    string  `json:"energy_level"`
	StressLevel    string  `json:"stress_level"`
	Confidence     float64 `json:"confidence"`
}

// Summary is the structured executive summary of a meeting.
type Summary struct {
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	KeyPoints    []string `json:"key_points"`
	Decisions    []string `json:"decisions"`
	Participants []string `json:"participants"`
}

// EmotionReport aggregates mood over a whole transcript.
type EmotionReport struct {
	OverallSentiment string            `json:"overall_sentiment"`
	HappinessLevel   string            `json:"happiness_level"`
	EnergyLevel      string            `json:"energy_level"`
	Speakers         map[string]string `json:"speakers"`
	EmotionalMoments []string          `json:"emotional_moments"`
	StressIndicators []string          `json:"stress_indicators"`
	ConfidenceScore  float64           `json:"confidence_score"`
}

// Answer is the structured response to a meeting question.
type Answer struct {
	Answer           string   `json:"answer"`
	Confidence       float64  `json:"confidence"`
	Sources          []string `json:"sources"`
	RelevantSpeakers []string `json:"relevant_speakers"`
}

// Explanation is a personalized gloss for terms outside a profile's
// expertise.
type Explanation struct {
	Terms       []string `json:"terms_identified"`
	Explanation string   `json:"explanation"`
}

// NeutralEmotionScore is the fail-closed emotion result.
func NeutralEmotionScore() EmotionScore {
	return EmotionScore{PrimaryEmotion: "neutral", EnergyLevel: "medium", StressLevel: "none", Confidence: 0}
}

// NeutralSummary is the fail-closed summary shape.
func NeutralSummary() Summary {
	return Summary{
		Title:        "Meeting Summary",
		Summary:      "Summary unavailable",
		KeyPoints:    []string{},
		Decisions:    []string{},
		Participants: []string{},
	}
}

// NeutralEmotionReport is the fail-closed aggregate emotion shape.
func NeutralEmotionReport() EmotionReport {
	return EmotionReport{
		OverallSentiment: "neutral",
		HappinessLevel:   "neutral",
		EnergyLevel:      "medium",
		Speakers:         map[string]string{},
		EmotionalMoments: []string{},
		StressIndicators: []string{},
		ConfidenceScore:  0,
	}
}

// NeutralAnswer is the fail-closed Q&A shape.
func NeutralAnswer() Answer {
	return Answer{
		Answer:           "I could not process that question right now. Please try rephrasing it.",
		Confidence:       0,
		Sources:          []string{},
		RelevantSpeakers: []string{},
	}
}

// Config selects and configures an oracle backend.
type Config struct {
	Provider      string `yaml:"provider"` // "anthropic" or "demo"
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	RealtimeModel string `yaml:"realtime_model"` // cheaper model for per-line passes
}

// New selects the backend once at construction; callers depend only on the
// Oracle interface from here on.
func New(cfg Config, log *logrus.Logger) (Oracle, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropic(cfg, log)
	case "demo", "":
		return NewDemo(), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s", cfg.Provider)
	}
}
