package session

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrDuplicateSession is returned by Create when the id is already live.
	ErrDuplicateSession = errors.New("session already exists")
	// ErrUnknownSession is returned for operations on an id that is not live.
	ErrUnknownSession = errors.New("unknown session")
	// ErrUnknownLine is returned for a transcript line index that is out of
	// range for a live session.
	ErrUnknownLine = errors.New("unknown transcript line")
)

// meeting holds one session's mutable state. All access goes through its
// mutex so concurrent appends from the same connection cannot interleave.
type meeting struct {
	mu        sync.Mutex
	id        string
	startedAt time.Time
	lines     []TranscriptLine
	items     []ActionItem
}

func (m *meeting) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:   m.id,
		StartedAt:   m.startedAt,
		Transcript:  append([]TranscriptLine(nil), m.lines...),
		ActionItems: append([]ActionItem(nil), m.items...),
	}
}

// Registry is the process-wide map from session id to session state. It is
// the only state shared between session workers; everything else is owned by
// a single connection's goroutine.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*meeting
	closed   bool
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*meeting)}
}

// Create registers a new session. A previously ended id may be reused; that
// starts a fresh session with no memory of the old one.
func (r *Registry) Create(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrUnknownSession
	}
	if _, ok := r.sessions[id]; ok {
		return ErrDuplicateSession
	}
	r.sessions[id] = &meeting{id: id, startedAt: time.Now()}
	return nil
}

func (r *Registry) get(id string) (*meeting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return m, nil
}

// Append adds a line to the session transcript and returns the new length.
// Append order is the only ordering guarantee the pipeline provides.
func (r *Registry) Append(id string, line TranscriptLine) (int, error) {
	m, err := r.get(id)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
	return len(m.lines), nil
}

// AnnotateEmotion attaches an emotion to the line at index. The annotation
// is write-once; later calls for the same line are ignored.
func (r *Registry) AnnotateEmotion(id string, index int, emotion string, score float64) error {
	m, err := r.get(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.lines) {
		return ErrUnknownLine
	}
	if m.lines[index].Emotion != "" {
		return nil
	}
	m.lines[index].Emotion = emotion
	m.lines[index].EmotionScore = score
	return nil
}

// ReplaceActionItems swaps the session's action-item set for the reconciled
// one. The reconciler is the only caller.
func (r *Registry) ReplaceActionItems(id string, items []ActionItem) error {
	m, err := r.get(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append([]ActionItem(nil), items...)
	return nil
}

// Snapshot returns a deep copy of the session state.
func (r *Registry) Snapshot(id string) (Snapshot, error) {
	m, err := r.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(), nil
}

// End removes the session and returns its final state. The id cannot be
// resurrected; callers needing persistence must archive before this returns.
func (r *Registry) End(id string) (Snapshot, error) {
	r.mu.Lock()
	m, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrUnknownSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(), nil
}

// List returns a point-in-time overview of every live session, sorted by id.
func (r *Registry) List() []Overview {
	r.mu.RLock()
	metas := make([]*meeting, 0, len(r.sessions))
	for _, m := range r.sessions {
		metas = append(metas, m)
	}
	r.mu.RUnlock()

	out := make([]Overview, 0, len(metas))
	for _, m := range metas {
		m.mu.Lock()
		out = append(out, Overview{
			SessionID:       m.id,
			TranscriptLines: len(m.lines),
			ActionItems:     len(m.items),
			StartedAt:       m.startedAt,
		})
		m.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close drops every live session and refuses further creates. Used at
// process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.sessions = make(map[string]*meeting)
}
