package transcriber

import (
	"context"
	"sync"
	"time"

	"github.com/meetingwhisperer/server/internal/session"
)

// demoScript is a plausible standup the demo transcriber cycles through, so
// the whole pipeline can be exercised without audio or API keys.
var demoScript = []session.TranscriptLine{
	{Speaker: "Alice", Text: "Good morning everyone, let's get started with the standup.", Confidence: 0.95},
	{Speaker: "Bob", Text: "I finished the login page yesterday, but the session handling still needs work.", Confidence: 0.93},
	{Speaker: "Alice", Text: "Great, Bob needs to finish the session handling by Friday.", Confidence: 0.94},
	{Speaker: "Carol", Text: "I'm a bit worried about the deadline for the API migration.", Confidence: 0.92},
	{Speaker: "Alice", Text: "Let's schedule a separate call to go through the migration blockers.", Confidence: 0.95},
	{Speaker: "Bob", Text: "Can you send me the migration checklist after this meeting?", Confidence: 0.91},
	{Speaker: "Carol", Text: "Sure, I'll share it in the channel right away.", Confidence: 0.94},
	{Speaker: "Alice", Text: "Awesome, thanks everyone, good progress this week.", Confidence: 0.96},
}

// DemoTranscriber emits one scripted line per audio chunk, ignoring the
// audio content entirely.
type DemoTranscriber struct {
	mu   sync.Mutex
	next int
}

func NewDemo() *DemoTranscriber { return &DemoTranscriber{} }

func (d *DemoTranscriber) TranscribeChunk(ctx context.Context, audio []byte) ([]session.TranscriptLine, error) {
	if len(audio) < minChunkBytes {
		return nil, nil
	}

	d.mu.Lock()
	line := demoScript[d.next%len(demoScript)]
	d.next++
	d.mu.Unlock()

	line.Timestamp = time.Now().UTC()
	return []session.TranscriptLine{line}, nil
}

func (d *DemoTranscriber) TranscribeFile(ctx context.Context, filename string, audio []byte) ([]session.TranscriptLine, error) {
	now := time.Now().UTC()
	lines := make([]session.TranscriptLine, len(demoScript))
	copy(lines, demoScript)
	for i := range lines {
		lines[i].Timestamp = now
	}
	return lines, nil
}

func (d *DemoTranscriber) Close() error { return nil }
