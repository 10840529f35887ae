package metrics

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SessionMetrics tracks per-meeting pipeline counters for the end-of-session
// log line.
type SessionMetrics struct {
	SessionID     string
	StartTime     time.Time
	EndTime       time.Time
	AudioBytes    int
	Lines         int
	OracleCalls   int
	OracleErrors  int
	FirstLineTime *time.Time
	mu            sync.Mutex
}

func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		SessionID: sessionID,
		StartTime: time.Now(),
	}
}

func (m *SessionMetrics) AddAudioBytes(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AudioBytes += n
}

func (m *SessionMetrics) AddLines(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FirstLineTime == nil && n > 0 {
		now := time.Now()
		m.FirstLineTime = &now
	}
	m.Lines += n
}

func (m *SessionMetrics) AddOracleCall(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OracleCalls++
	if failed {
		m.OracleErrors++
	}
}

func (m *SessionMetrics) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
}

// Fields renders the counters for structured logging.
func (m *SessionMetrics) Fields() logrus.Fields {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	var latency time.Duration
	if m.FirstLineTime != nil {
		latency = m.FirstLineTime.Sub(m.StartTime)
	}

	return logrus.Fields{
		"session_id":         m.SessionID,
		"duration":           end.Sub(m.StartTime).Round(time.Millisecond).String(),
		"audio_bytes":        m.AudioBytes,
		"transcript_lines":   m.Lines,
		"oracle_calls":       m.OracleCalls,
		"oracle_errors":      m.OracleErrors,
		"first_line_latency": latency.Round(time.Millisecond).String(),
	}
}
