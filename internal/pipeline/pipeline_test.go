package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/meetingwhisperer/server/internal/oracle"
	"github.com/meetingwhisperer/server/internal/session"
	"github.com/meetingwhisperer/server/internal/sink"
)

// scriptedTranscriber returns one line per chunk, generated from a counter.
type scriptedTranscriber struct {
	n int
}

func (s *scriptedTranscriber) TranscribeChunk(ctx context.Context, audio []byte) ([]session.TranscriptLine, error) {
	if len(audio) == 0 {
		return nil, nil
	}
	s.n++
	return []session.TranscriptLine{{
		Speaker: "Alice",
		Text:    fmt.Sprintf("line number %d", s.n),
	}}, nil
}

func (s *scriptedTranscriber) TranscribeFile(ctx context.Context, filename string, audio []byte) ([]session.TranscriptLine, error) {
	var lines []session.TranscriptLine
	for i := 0; i < 5; i++ {
		s.n++
		lines = append(lines, session.TranscriptLine{Speaker: "Alice", Text: fmt.Sprintf("line number %d", s.n)})
	}
	return lines, nil
}

func (s *scriptedTranscriber) Close() error { return nil }

// stubOracle lets each pass be controlled independently.
type stubOracle struct {
	items      []session.ReconciledItem
	extractErr error

	extractCalls int
	summarizeErr error
	answerErr    error
}

func (o *stubOracle) ExtractActions(ctx context.Context, lines []session.TranscriptLine, existing []session.ActionItem) ([]session.ReconciledItem, error) {
	o.extractCalls++
	if o.extractErr != nil {
		return nil, o.extractErr
	}
	return o.items, nil
}

func (o *stubOracle) ScoreEmotion(ctx context.Context, speaker, text string) (oracle.EmotionScore, error) {
	return oracle.EmotionScore{PrimaryEmotion: "neutral", EnergyLevel: "medium", StressLevel: "none", Confidence: 0.8}, nil
}

func (o *stubOracle) Summarize(ctx context.Context, lines []session.TranscriptLine, items []session.ActionItem) (oracle.Summary, error) {
	if o.summarizeErr != nil {
		return oracle.Summary{}, o.summarizeErr
	}
	return oracle.Summary{Title: "Standup", Summary: "Short sync.", Participants: []string{"Alice"}}, nil
}

func (o *stubOracle) AnalyzeEmotions(ctx context.Context, lines []session.TranscriptLine) (oracle.EmotionReport, error) {
	return oracle.NeutralEmotionReport(), nil
}

func (o *stubOracle) Answer(ctx context.Context, question string, lines []session.TranscriptLine, items []session.ActionItem, summary *oracle.Summary) (oracle.Answer, error) {
	if o.answerErr != nil {
		return oracle.Answer{}, o.answerErr
	}
	return oracle.Answer{Answer: "yes", Confidence: 0.9}, nil
}

func (o *stubOracle) Explain(ctx context.Context, profile oracle.Profile, recent []session.TranscriptLine, latest string) (*oracle.Explanation, error) {
	return &oracle.Explanation{Terms: []string{"API"}, Explanation: "Application programming interface."}, nil
}

func newTestPipeline(o oracle.Oracle) *Pipeline {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return New(Options{
		Transcriber: &scriptedTranscriber{},
		Oracle:      o,
		Log:         log,
	})
}

var chunk = bytes.Repeat([]byte{0x01}, 2048)

func TestIngestFiresExtractionEveryFifthLine(t *testing.T) {
	o := &stubOracle{items: []session.ReconciledItem{{
		ActionItem:  session.ActionItem{Text: "Finish report by Friday", Assignee: "Bob", Priority: session.PriorityHigh, Confidence: 0.9},
		Disposition: session.DispositionNew,
	}}}
	p := newTestPipeline(o)
	var out sink.Collector

	if err := p.Create("m1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := p.Ingest(context.Background(), "m1", chunk, nil, &out); err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
	}

	if got := len(out.ByType(sink.TypeTranscript)); got != 5 {
		t.Errorf("transcript events = %d, want 5", got)
	}
	events := out.ByType(sink.TypeActionItems)
	if len(events) != 1 {
		t.Fatalf("action item events = %d, want 1", len(events))
	}
	items, ok := events[0].Data.([]session.ActionItem)
	if !ok {
		t.Fatalf("event data is %T, want []session.ActionItem", events[0].Data)
	}
	if len(items) != 1 || items[0].Text != "Finish report by Friday" {
		t.Errorf("event items: %+v", items)
	}
	if o.extractCalls != 1 {
		t.Errorf("extractor called %d times, want 1", o.extractCalls)
	}

	snap, err := p.Snapshot("m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.ActionItems) != 1 || snap.ActionItems[0].Assignee != "Bob" {
		t.Errorf("stored items: %+v", snap.ActionItems)
	}
	for i, line := range snap.Transcript {
		if line.Emotion == "" {
			t.Errorf("line %d missing emotion annotation", i)
		}
	}
}

func TestActionItemEventDecodesAsItemList(t *testing.T) {
	o := &stubOracle{items: []session.ReconciledItem{{
		ActionItem:  session.ActionItem{Text: "Finish report by Friday", Assignee: "Bob", Priority: session.PriorityHigh, Confidence: 0.9},
		Disposition: session.DispositionNew,
	}}}
	p := newTestPipeline(o)
	var out sink.Collector

	if err := p.Create("m1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := p.Ingest(context.Background(), "m1", chunk, nil, &out); err != nil {
			t.Fatal(err)
		}
	}

	raw, err := json.Marshal(out.ByType(sink.TypeActionItems)[0])
	if err != nil {
		t.Fatal(err)
	}
	var ev struct {
		Type string               `json:"type"`
		Data []session.ActionItem `json:"data"`
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("clients decode data as an item array: %v", err)
	}
	if len(ev.Data) != 1 || ev.Data[0].Assignee != "Bob" {
		t.Errorf("decoded items: %+v", ev.Data)
	}
}

func TestIngestSurvivesFailingExtractor(t *testing.T) {
	o := &stubOracle{extractErr: errors.New("backend down")}
	p := newTestPipeline(o)
	var out sink.Collector

	if err := p.Create("m1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := p.Ingest(context.Background(), "m1", chunk, nil, &out); err != nil {
			t.Fatalf("failing extractor leaked into ingestion: %v", err)
		}
	}

	if got := len(out.ByType(sink.TypeActionItems)); got != 0 {
		t.Errorf("failed pass still emitted %d action item events", got)
	}
	snap, _ := p.Snapshot("m1")
	if len(snap.ActionItems) != 0 {
		t.Errorf("failed pass stored items: %+v", snap.ActionItems)
	}
	if len(snap.Transcript) != 5 {
		t.Errorf("transcript lost lines: %d", len(snap.Transcript))
	}
}

func TestEndOfEmptySessionYieldsReport(t *testing.T) {
	o := &stubOracle{summarizeErr: errors.New("nothing to summarize")}
	p := newTestPipeline(o)

	if err := p.Create("m1"); err != nil {
		t.Fatal(err)
	}
	report, err := p.End(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	if report.TranscriptLines != 0 {
		t.Errorf("transcript lines = %d, want 0", report.TranscriptLines)
	}
	if report.Summary.Summary != oracle.NeutralSummary().Summary {
		t.Errorf("failed summary was not neutralized: %+v", report.Summary)
	}

	if _, err := p.End(context.Background(), "m1"); !errors.Is(err, session.ErrUnknownSession) {
		t.Errorf("second end returned %v, want ErrUnknownSession", err)
	}
}

func TestEndBlocksFurtherIngestion(t *testing.T) {
	p := newTestPipeline(&stubOracle{})
	if err := p.Create("m1"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.End(context.Background(), "m1"); err != nil {
		t.Fatal(err)
	}
	err := p.Ingest(context.Background(), "m1", chunk, nil, nil)
	if !errors.Is(err, session.ErrUnknownSession) {
		t.Errorf("ingest after end returned %v, want ErrUnknownSession", err)
	}
}

func TestAbortSkipsSummary(t *testing.T) {
	o := &stubOracle{}
	p := newTestPipeline(o)

	if err := p.Create("m1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Ingest(context.Background(), "m1", chunk, nil, nil); err != nil {
		t.Fatal(err)
	}
	p.Abort("m1")

	if _, err := p.Snapshot("m1"); !errors.Is(err, session.ErrUnknownSession) {
		t.Error("aborted session still live")
	}
	// Reuse of the id starts fresh.
	if err := p.Create("m1"); err != nil {
		t.Errorf("id not reusable after abort: %v", err)
	}
	snap, _ := p.Snapshot("m1")
	if len(snap.Transcript) != 0 {
		t.Errorf("reused session inherited %d lines", len(snap.Transcript))
	}
}

func TestAskFallsBackToNeutral(t *testing.T) {
	o := &stubOracle{answerErr: errors.New("backend down")}
	p := newTestPipeline(o)

	if err := p.Create("m1"); err != nil {
		t.Fatal(err)
	}
	ans, err := p.Ask(context.Background(), "m1", "what was decided?")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Confidence != 0 {
		t.Errorf("failed answer not neutralized: %+v", ans)
	}

	if _, err := p.Ask(context.Background(), "missing", "?"); !errors.Is(err, session.ErrUnknownSession) {
		t.Errorf("ask on unknown session returned %v", err)
	}
}

func TestProfileTriggersInsightEvents(t *testing.T) {
	p := newTestPipeline(&stubOracle{})
	var out sink.Collector

	if err := p.Create("m1"); err != nil {
		t.Fatal(err)
	}
	profile := &oracle.Profile{Name: "Paul", WeakAreas: []string{"engineering"}}
	if err := p.Ingest(context.Background(), "m1", chunk, profile, &out); err != nil {
		t.Fatal(err)
	}
	if got := len(out.ByType(sink.TypeInsight)); got != 1 {
		t.Errorf("insight events = %d, want 1", got)
	}
}

func TestProcessFileEmitsCompleteEvent(t *testing.T) {
	o := &stubOracle{items: []session.ReconciledItem{{
		ActionItem:  session.ActionItem{Text: "Share the checklist", Priority: session.PriorityMedium, Confidence: 0.8},
		Disposition: session.DispositionNew,
	}}}
	p := newTestPipeline(o)
	var out sink.Collector

	report, err := p.ProcessFile(context.Background(), "meeting.mp3", chunk, &out)
	if err != nil {
		t.Fatal(err)
	}
	if report.TranscriptLines != 5 {
		t.Errorf("report lines = %d, want 5", report.TranscriptLines)
	}
	if len(report.ActionItems) != 1 {
		t.Errorf("report items: %+v", report.ActionItems)
	}
	if got := len(out.ByType(sink.TypeComplete)); got != 1 {
		t.Errorf("complete events = %d, want 1", got)
	}
	if len(p.List()) != 0 {
		t.Errorf("ephemeral session leaked: %+v", p.List())
	}
}

func TestDuplicateCreateRejected(t *testing.T) {
	p := newTestPipeline(&stubOracle{})
	if err := p.Create("m1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Create("m1"); !errors.Is(err, session.ErrDuplicateSession) {
		t.Errorf("duplicate create returned %v", err)
	}
}
