package session

import "time"

// Priority classifies how urgent an action item is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// TranscriptLine is one speaker-attributed utterance. Lines are immutable
// once appended, except for the emotion annotation which the emotion pass
// writes at most once.
type TranscriptLine struct {
	Speaker      string    `json:"speaker"`
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
	Confidence   float64   `json:"confidence"`
	Emotion      string    `json:"emotion,omitempty"`
	EmotionScore float64   `json:"emotion_score,omitempty"`
}

// ActionItem is a task derived from the conversation. Identity is not a
// stored field; the reconciler decides whether two items are the same task.
type ActionItem struct {
	Text       string   `json:"text"`
	Assignee   string   `json:"assignee,omitempty"`
	Priority   Priority `json:"priority"`
	Confidence float64  `json:"confidence"`
}

// Snapshot is a consistent point-in-time copy of a session's state.
// Mutating a snapshot never affects the live session.
type Snapshot struct {
	SessionID   string           `json:"session_id"`
	StartedAt   time.Time        `json:"started_at"`
	Transcript  []TranscriptLine `json:"transcript"`
	ActionItems []ActionItem     `json:"action_items"`
}

// Overview is the listing shape for a session, without the transcript body.
type Overview struct {
	SessionID       string    `json:"session_id"`
	TranscriptLines int       `json:"transcript_lines"`
	ActionItems     int       `json:"action_items"`
	StartedAt       time.Time `json:"started_at"`
}
