package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/meetingwhisperer/server/internal/session"
)

const deepgramListenURL = "wss://api.deepgram.com/v1/listen"

// Deepgram streams audio over a persistent websocket and collects diarized
// final results. TranscribeChunk feeds the stream and drains whatever finals
// have arrived since the previous call, so lines surface one or two chunks
// after the speech they belong to.
type Deepgram struct {
	conn *websocket.Conn
	log  *logrus.Logger

	mu      sync.Mutex
	pending []session.TranscriptLine
	readErr error

	closeOnce sync.Once
	done      chan struct{}
}

type deepgramResult struct {
	IsFinal bool `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word    string `json:"word"`
				Speaker int    `json:"speaker"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func NewDeepgram(cfg Config, log *logrus.Logger) (*Deepgram, error) {
	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	language := cfg.Language
	if language == "" {
		language = "en"
	}

	url := fmt.Sprintf("%s?punctuate=true&diarize=true&interim_results=true&language=%s&sample_rate=%d",
		deepgramListenURL, language, sampleRate)

	header := http.Header{}
	header.Set("Authorization", "Token "+cfg.DeepgramAPIKey)

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to deepgram: %w", err)
	}

	d := newDeepgram(conn, log)
	log.Info("deepgram streaming transcriber connected")
	return d, nil
}

func newDeepgram(conn *websocket.Conn, log *logrus.Logger) *Deepgram {
	d := &Deepgram{
		conn: conn,
		log:  log,
		done: make(chan struct{}),
	}
	go d.readResults()
	return d
}

func (d *Deepgram) readResults() {
	for {
		_, message, err := d.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				d.log.WithError(err).Warn("deepgram stream closed")
			}
			d.mu.Lock()
			d.readErr = err
			d.mu.Unlock()
			return
		}

		var res deepgramResult
		if err := json.Unmarshal(message, &res); err != nil {
			d.log.WithError(err).Debug("unparseable deepgram message")
			continue
		}
		if !res.IsFinal || len(res.Channel.Alternatives) == 0 {
			continue
		}
		alt := res.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}

		speaker := "Speaker 1"
		if len(alt.Words) > 0 {
			speaker = fmt.Sprintf("Speaker %d", alt.Words[0].Speaker+1)
		}

		d.mu.Lock()
		d.pending = append(d.pending, session.TranscriptLine{
			Speaker:    speaker,
			Text:       alt.Transcript,
			Timestamp:  time.Now().UTC(),
			Confidence: alt.Confidence,
		})
		d.mu.Unlock()
	}
}

func (d *Deepgram) TranscribeChunk(ctx context.Context, audio []byte) ([]session.TranscriptLine, error) {
	if len(audio) > 0 {
		if err := d.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
			return nil, fmt.Errorf("deepgram write: %w", err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		if d.readErr != nil {
			return nil, fmt.Errorf("deepgram stream: %w", d.readErr)
		}
		return nil, nil
	}
	lines := d.pending
	d.pending = nil
	return lines, nil
}

// TranscribeFile replays the recording through the stream and waits briefly
// for the tail of the results.
func (d *Deepgram) TranscribeFile(ctx context.Context, filename string, audio []byte) ([]session.TranscriptLine, error) {
	const chunkSize = 32 * 1024

	var lines []session.TranscriptLine
	for off := 0; off < len(audio); off += chunkSize {
		end := off + chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		got, err := d.TranscribeChunk(ctx, audio[off:end])
		if err != nil {
			return lines, err
		}
		lines = append(lines, got...)
	}

	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return lines, ctx.Err()
		case <-deadline:
			return lines, nil
		case <-ticker.C:
			got, err := d.TranscribeChunk(ctx, nil)
			if err != nil {
				// The stream is done; keep whatever finals arrived but
				// leave a trace in case the transcript came back short.
				d.log.WithError(err).Warn("deepgram stream ended while draining file results")
				return lines, nil
			}
			lines = append(lines, got...)
		}
	}
}

func (d *Deepgram) Close() error {
	var err error
	d.closeOnce.Do(func() {
		// Deepgram ends the stream on an empty binary frame.
		_ = d.conn.WriteMessage(websocket.BinaryMessage, []byte{})
		err = d.conn.Close()
		close(d.done)
	})
	return err
}
