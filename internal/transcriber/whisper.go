package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meetingwhisperer/server/internal/session"
)

const (
	whisperTranscriptionsURL = "https://api.openai.com/v1/audio/transcriptions"
	whisperModel             = "whisper-1"

	// Chunks below this size cannot contain meaningful speech and are
	// treated as silence.
	minChunkBytes = 1024
)

// Whisper transcribes audio chunk-by-chunk through the OpenAI audio API.
// Each chunk is a self-contained recording, so speaker attribution is a
// local heuristic rather than real diarization.
type Whisper struct {
	apiKey   string
	language string
	endpoint string
	hc       *http.Client
	log      *logrus.Logger

	mu             sync.Mutex
	currentSpeaker int
	lastChunkAt    time.Time
}

func NewWhisper(cfg Config, log *logrus.Logger) *Whisper {
	return &Whisper{
		apiKey:         cfg.OpenAIAPIKey,
		language:       cfg.Language,
		endpoint:       whisperTranscriptionsURL,
		hc:             &http.Client{Timeout: 120 * time.Second},
		log:            log,
		currentSpeaker: 1,
	}
}

type whisperResponse struct {
	Text string `json:"text"`
}

func (w *Whisper) transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := mw.WriteField("model", whisperModel); err != nil {
		return "", err
	}
	if w.language != "" {
		if err := mw.WriteField("language", w.language); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	resp, err := w.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("whisper %s: %s", resp.Status, string(msg))
	}

	var out whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper decode: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// detectSpeaker guesses whether the speaker changed since the last chunk:
// a long pause between chunks or a reply following a question usually means
// a different person is talking. Speakers alternate between 1 and 2.
func (w *Whisper) detectSpeaker(text string) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	pause := now.Sub(w.lastChunkAt)
	if !w.lastChunkAt.IsZero() && pause > 4*time.Second {
		w.currentSpeaker = 3 - w.currentSpeaker
	}
	w.lastChunkAt = now

	speaker := fmt.Sprintf("Speaker %d", w.currentSpeaker)
	if strings.HasSuffix(text, "?") {
		// The next utterance is likely an answer from someone else.
		w.currentSpeaker = 3 - w.currentSpeaker
	}
	return speaker
}

func (w *Whisper) TranscribeChunk(ctx context.Context, audio []byte) ([]session.TranscriptLine, error) {
	if len(audio) < minChunkBytes {
		return nil, nil
	}

	text, err := w.transcribe(ctx, "chunk.webm", audio)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	return []session.TranscriptLine{{
		Speaker:    w.detectSpeaker(text),
		Text:       text,
		Timestamp:  time.Now().UTC(),
		Confidence: 0.9,
	}}, nil
}

func (w *Whisper) TranscribeFile(ctx context.Context, filename string, audio []byte) ([]session.TranscriptLine, error) {
	text, err := w.transcribe(ctx, filename, audio)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	// Whisper returns the whole recording as one text blob. Split it into
	// sentence-sized lines so downstream windowing has something to work on.
	var lines []session.TranscriptLine
	now := time.Now().UTC()
	for i, sentence := range splitSentences(text) {
		lines = append(lines, session.TranscriptLine{
			Speaker:    fmt.Sprintf("Speaker %d", i%2+1),
			Text:       sentence,
			Timestamp:  now,
			Confidence: 0.9,
		})
	}
	return lines, nil
}

func (w *Whisper) Close() error { return nil }

func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '?' || r == '!' {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}
