package oracle

import (
	"context"
	"strings"

	"github.com/meetingwhisperer/server/internal/session"
)

// Demo is a deterministic, offline oracle for local development and demos.
// It never fails and needs no API key.
type Demo struct{}

func NewDemo() *Demo { return &Demo{} }

var actionCues = []string{"need to", "needs to", "should", "will handle", "i'll", "let's", "can you", "has to"}

func (d *Demo) ExtractActions(ctx context.Context, lines []session.TranscriptLine, existing []session.ActionItem) ([]session.ReconciledItem, error) {
	var items []session.ReconciledItem
	for _, l := range lines {
		lower := strings.ToLower(l.Text)
		for _, cue := range actionCues {
			if strings.Contains(lower, cue) {
				items = append(items, session.ReconciledItem{
					ActionItem: session.ActionItem{
						Text:       strings.TrimSpace(l.Text),
						Assignee:   l.Speaker,
						Priority:   session.PriorityMedium,
						Confidence: 0.85,
					},
					Disposition: session.DispositionNew,
				})
				break
			}
		}
	}
	return items, nil
}

var positiveCues = []string{"great", "awesome", "excellent", "good", "love", "thanks", "agreed"}
var stressCues = []string{"deadline", "blocker", "problem", "urgent", "behind", "issue"}

func (d *Demo) ScoreEmotion(ctx context.Context, speaker, text string) (EmotionScore, error) {
	lower := strings.ToLower(text)
	for _, cue := range stressCues {
		if strings.Contains(lower, cue) {
			return EmotionScore{PrimaryEmotion: "concerned", EnergyLevel: "medium", StressLevel: "medium", Confidence: 0.8}, nil
		}
	}
	for _, cue := range positiveCues {
		if strings.Contains(lower, cue) {
			return EmotionScore{PrimaryEmotion: "happy", EnergyLevel: "high", StressLevel: "none", Confidence: 0.8}, nil
		}
	}
	return EmotionScore{PrimaryEmotion: "neutral", EnergyLevel: "medium", StressLevel: "none", Confidence: 0.75}, nil
}

func (d *Demo) Summarize(ctx context.Context, lines []session.TranscriptLine, items []session.ActionItem) (Summary, error) {
	if len(lines) == 0 {
		return NeutralSummary(), nil
	}

	seen := map[string]bool{}
	var participants []string
	for _, l := range lines {
		if !seen[l.Speaker] {
			seen[l.Speaker] = true
			participants = append(participants, l.Speaker)
		}
	}

	var points []string
	for _, it := range items {
		points = append(points, it.Text)
	}

	return Summary{
		Title:        "Team Discussion",
		Summary:      lines[0].Text,
		KeyPoints:    points,
		Decisions:    []string{},
		Participants: participants,
	}, nil
}

func (d *Demo) AnalyzeEmotions(ctx context.Context, lines []session.TranscriptLine) (EmotionReport, error) {
	report := NeutralEmotionReport()
	report.ConfidenceScore = 0.85
	for _, l := range lines {
		if _, ok := report.Speakers[l.Speaker]; !ok {
			report.Speakers[l.Speaker] = "engaged"
		}
	}
	return report, nil
}

func (d *Demo) Answer(ctx context.Context, question string, lines []session.TranscriptLine, items []session.ActionItem, summary *Summary) (Answer, error) {
	if len(lines) == 0 {
		return Answer{Answer: "The meeting has no transcript yet.", Confidence: 0.5, Sources: []string{}, RelevantSpeakers: []string{}}, nil
	}
	last := lines[len(lines)-1]
	return Answer{
		Answer:           "Based on the discussion: " + last.Text,
		Confidence:       0.6,
		Sources:          []string{last.Speaker + ": " + last.Text},
		RelevantSpeakers: []string{last.Speaker},
	}, nil
}

func (d *Demo) Explain(ctx context.Context, profile Profile, recent []session.TranscriptLine, latest string) (*Explanation, error) {
	lower := strings.ToLower(latest)
	for _, weak := range profile.WeakAreas {
		term := strings.ToLower(weak)
		if term != "" && strings.Contains(lower, term) {
			return &Explanation{
				Terms:       []string{weak},
				Explanation: "\"" + weak + "\" came up; this is outside your usual area, ask for a recap if needed.",
			}, nil
		}
	}
	return nil, nil
}
