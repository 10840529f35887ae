package session

// DefaultExtractInterval is how many transcript lines accumulate between
// action-item passes.
const DefaultExtractInterval = 5

// Trigger decides, after each appended line, whether a derivation pass
// should fire and over which slice. It is stateless given the current
// transcript length, so it can always be reconstructed from the transcript
// alone. The emotion pass fires on every line and the summary pass only on
// session end; neither needs a trigger decision here.
type Trigger struct {
	Interval int
}

func NewTrigger(interval int) Trigger {
	if interval <= 0 {
		interval = DefaultExtractInterval
	}
	return Trigger{Interval: interval}
}

// ShouldExtract reports whether an action-item pass is due at the given
// transcript length. A session ending between multiples never gets a tail
// pass; the end-of-session summary sees the full transcript regardless.
func (t Trigger) ShouldExtract(length int) bool {
	return length > 0 && length%t.Interval == 0
}

// Window returns the slice of lines the next action-item pass should see:
// the most recent Interval lines.
func (t Trigger) Window(lines []TranscriptLine) []TranscriptLine {
	if len(lines) <= t.Interval {
		return lines
	}
	return lines[len(lines)-t.Interval:]
}
