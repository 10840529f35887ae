package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/meetingwhisperer/server/internal/archive"
	"github.com/meetingwhisperer/server/internal/metrics"
	"github.com/meetingwhisperer/server/internal/oracle"
	"github.com/meetingwhisperer/server/internal/session"
	"github.com/meetingwhisperer/server/internal/sink"
	"github.com/meetingwhisperer/server/internal/transcriber"
)

// Pipeline wires audio ingestion to the session registry and the derivation
// passes. One Pipeline serves every session in the process; per-session
// ordering comes from each connection feeding its chunks sequentially.
type Pipeline struct {
	registry    *session.Registry
	transcriber transcriber.Transcriber
	oracle      oracle.Oracle
	reconciler  *session.Reconciler
	trigger     session.Trigger
	archiver    archive.Archiver
	log         *logrus.Logger

	contextLines int

	mu      sync.Mutex
	metrics map[string]*metrics.SessionMetrics
}

// Options collects the pipeline's collaborators. Zero-value fields get safe
// defaults so tests only set what they exercise.
type Options struct {
	Registry     *session.Registry
	Transcriber  transcriber.Transcriber
	Oracle       oracle.Oracle
	Trigger      session.Trigger
	Archiver     archive.Archiver
	Log          *logrus.Logger
	Threshold    float64
	ContextLines int
}

func New(opts Options) *Pipeline {
	if opts.Registry == nil {
		opts.Registry = session.NewRegistry()
	}
	if opts.Oracle == nil {
		opts.Oracle = oracle.NewDemo()
	}
	if opts.Transcriber == nil {
		opts.Transcriber = transcriber.NewDemo()
	}
	if opts.Archiver == nil {
		opts.Archiver = archive.Noop{}
	}
	if opts.Log == nil {
		opts.Log = logrus.New()
	}
	if opts.Trigger.Interval == 0 {
		opts.Trigger = session.NewTrigger(0)
	}
	if opts.ContextLines <= 0 {
		opts.ContextLines = 5
	}
	return &Pipeline{
		registry:     opts.Registry,
		transcriber:  opts.Transcriber,
		oracle:       opts.Oracle,
		reconciler:   session.NewReconciler(opts.Oracle, opts.Threshold, opts.Log),
		trigger:      opts.Trigger,
		archiver:     opts.Archiver,
		log:          opts.Log,
		contextLines: opts.ContextLines,
		metrics:      make(map[string]*metrics.SessionMetrics),
	}
}

// FinalReport is the end-of-session deliverable.
type FinalReport struct {
	SessionID       string               `json:"session_id"`
	Summary         oracle.Summary       `json:"summary"`
	EmotionAnalysis oracle.EmotionReport `json:"emotion_analysis"`
	TranscriptLines int                  `json:"transcript_lines"`
	ActionItems     []session.ActionItem `json:"action_items"`
}

// Create registers a new live session.
func (p *Pipeline) Create(id string) error {
	if err := p.registry.Create(id); err != nil {
		return err
	}
	p.mu.Lock()
	p.metrics[id] = metrics.NewSessionMetrics(id)
	p.mu.Unlock()
	p.log.WithField("session_id", id).Info("session started")
	return nil
}

func (p *Pipeline) sessionMetrics(id string) *metrics.SessionMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.metrics[id]; ok {
		return m
	}
	m := metrics.NewSessionMetrics(id)
	p.metrics[id] = m
	return m
}

func (p *Pipeline) dropMetrics(id string) *metrics.SessionMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.metrics[id]
	delete(p.metrics, id)
	return m
}

// Ingest transcribes one audio chunk and runs every derived line through the
// per-line passes. Oracle failures degrade to neutral results; only registry
// errors (unknown session) and transcription errors reach the caller.
func (p *Pipeline) Ingest(ctx context.Context, id string, audio []byte, profile *oracle.Profile, out sink.Sink) error {
	if out == nil {
		out = sink.Discard
	}
	sm := p.sessionMetrics(id)
	sm.AddAudioBytes(len(audio))

	lines, err := p.transcriber.TranscribeChunk(ctx, audio)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	for _, line := range lines {
		if err := p.processLine(ctx, id, line, profile, out); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) processLine(ctx context.Context, id string, line session.TranscriptLine, profile *oracle.Profile, out sink.Sink) error {
	length, err := p.registry.Append(id, line)
	if err != nil {
		return err
	}
	index := length - 1
	sm := p.sessionMetrics(id)
	sm.AddLines(1)

	if err := p.archiver.AppendLine(ctx, id, line); err != nil {
		p.log.WithError(err).WithField("session_id", id).Warn("archive append failed")
	}

	score, err := p.oracle.ScoreEmotion(ctx, line.Speaker, line.Text)
	sm.AddOracleCall(err != nil)
	if err != nil {
		p.log.WithError(err).Debug("emotion pass failed, using neutral")
		score = oracle.NeutralEmotionScore()
	}
	if err := p.registry.AnnotateEmotion(id, index, score.PrimaryEmotion, score.Confidence); err != nil {
		return err
	}
	line.Emotion = score.PrimaryEmotion
	line.EmotionScore = score.Confidence
	out.Send(sink.Transcript(line))

	if profile != nil {
		p.explain(ctx, id, *profile, line, out)
	}

	if p.trigger.ShouldExtract(length) {
		p.extract(ctx, id, out)
	}
	return nil
}

func (p *Pipeline) explain(ctx context.Context, id string, profile oracle.Profile, line session.TranscriptLine, out sink.Sink) {
	snap, err := p.registry.Snapshot(id)
	if err != nil {
		return
	}
	recent := snap.Transcript
	if len(recent) > p.contextLines {
		recent = recent[len(recent)-p.contextLines:]
	}

	expl, err := p.oracle.Explain(ctx, profile, recent, line.Text)
	p.sessionMetrics(id).AddOracleCall(err != nil)
	if err != nil {
		p.log.WithError(err).Debug("explanation pass failed")
		return
	}
	if expl != nil {
		out.Send(sink.Insight(expl))
	}
}

func (p *Pipeline) extract(ctx context.Context, id string, out sink.Sink) {
	snap, err := p.registry.Snapshot(id)
	if err != nil {
		return
	}
	window := p.trigger.Window(snap.Transcript)

	merged, changed, failures := p.reconciler.Reconcile(ctx, window, snap.ActionItems)
	sm := p.sessionMetrics(id)
	sm.AddOracleCall(failures > 0)
	if failures > 0 {
		// The fallback pass was a second oracle call.
		sm.AddOracleCall(failures > 1)
	}
	if len(changed) == 0 {
		return
	}

	if err := p.registry.ReplaceActionItems(id, merged); err != nil {
		return
	}
	if err := p.archiver.StoreActionItems(ctx, id, merged); err != nil {
		p.log.WithError(err).WithField("session_id", id).Warn("archive action items failed")
	}
	out.Send(sink.ActionItems(changed))
}

// End closes the session and produces the final report. The registry entry
// is removed first so no line can land after the summary's snapshot.
func (p *Pipeline) End(ctx context.Context, id string) (FinalReport, error) {
	final, err := p.registry.End(id)
	if err != nil {
		return FinalReport{}, err
	}

	summary, err := p.oracle.Summarize(ctx, final.Transcript, final.ActionItems)
	if err != nil {
		p.log.WithError(err).WithField("session_id", id).Warn("summary pass failed, using neutral")
		summary = oracle.NeutralSummary()
	}
	report, err := p.oracle.AnalyzeEmotions(ctx, final.Transcript)
	if err != nil {
		p.log.WithError(err).WithField("session_id", id).Warn("emotion analysis failed, using neutral")
		report = oracle.NeutralEmotionReport()
	}

	out := FinalReport{
		SessionID:       id,
		Summary:         summary,
		EmotionAnalysis: report,
		TranscriptLines: len(final.Transcript),
		ActionItems:     final.ActionItems,
	}
	if err := p.archiver.StoreFinal(ctx, id, out); err != nil {
		p.log.WithError(err).WithField("session_id", id).Warn("archive final report failed")
	}

	if sm := p.dropMetrics(id); sm != nil {
		sm.Finalize()
		p.log.WithFields(sm.Fields()).Info("session ended")
	}
	return out, nil
}

// Abort drops a session without a final summary, for abrupt disconnects.
func (p *Pipeline) Abort(id string) {
	if _, err := p.registry.End(id); err != nil {
		return
	}
	if sm := p.dropMetrics(id); sm != nil {
		sm.Finalize()
		p.log.WithFields(sm.Fields()).Info("session aborted")
	}
}

// Ask answers an ad-hoc question about a live session.
func (p *Pipeline) Ask(ctx context.Context, id, question string) (oracle.Answer, error) {
	snap, err := p.registry.Snapshot(id)
	if err != nil {
		return oracle.Answer{}, err
	}
	ans, err := p.oracle.Answer(ctx, question, snap.Transcript, snap.ActionItems, nil)
	if err != nil {
		p.log.WithError(err).WithField("session_id", id).Warn("question pass failed, using neutral")
		return oracle.NeutralAnswer(), nil
	}
	return ans, nil
}

// ProcessFile replays a complete recording through the live pipeline inside
// an ephemeral session and returns the final report. Events stream to out as
// they would during a live meeting, ending with a complete event.
func (p *Pipeline) ProcessFile(ctx context.Context, filename string, audio []byte, out sink.Sink) (FinalReport, error) {
	if out == nil {
		out = sink.Discard
	}

	id := "file-" + uuid.NewString()
	if err := p.Create(id); err != nil {
		return FinalReport{}, err
	}
	p.sessionMetrics(id).AddAudioBytes(len(audio))

	lines, err := p.transcriber.TranscribeFile(ctx, filename, audio)
	if err != nil {
		p.Abort(id)
		return FinalReport{}, fmt.Errorf("transcribe file: %w", err)
	}

	for _, line := range lines {
		if err := p.processLine(ctx, id, line, nil, out); err != nil {
			p.Abort(id)
			return FinalReport{}, err
		}
	}

	report, err := p.End(ctx, id)
	if err != nil {
		return FinalReport{}, err
	}
	out.Send(sink.Complete(report))
	return report, nil
}

// Snapshot exposes a session's current state.
func (p *Pipeline) Snapshot(id string) (session.Snapshot, error) {
	return p.registry.Snapshot(id)
}

// List returns overviews of every live session.
func (p *Pipeline) List() []session.Overview {
	return p.registry.List()
}

// Shutdown drains the registry and closes the transcriber.
func (p *Pipeline) Shutdown() {
	p.registry.Close()
	if err := p.transcriber.Close(); err != nil {
		p.log.WithError(err).Warn("transcriber close failed")
	}
}
