package sink

import "sync"

// Event is one pipeline output destined for whoever is listening to a
// session, typically a websocket client.
type Event struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

const (
	TypeTranscript  = "transcript"
	TypeActionItems = "action_items"
	TypeInsight     = "insight"
	TypeStatus      = "status"
	TypeError       = "error"
	TypeComplete    = "complete"
)

func Transcript(data interface{}) Event  { return Event{Type: TypeTranscript, Data: data} }
func ActionItems(data interface{}) Event { return Event{Type: TypeActionItems, Data: data} }
func Insight(data interface{}) Event     { return Event{Type: TypeInsight, Data: data} }
func Status(message string) Event        { return Event{Type: TypeStatus, Message: message} }
func Error(message string) Event         { return Event{Type: TypeError, Message: message} }
func Complete(data interface{}) Event    { return Event{Type: TypeComplete, Data: data} }

// Sink receives pipeline events. Implementations must tolerate Send being
// called after the underlying connection is gone; delivery failure must not
// propagate into the pipeline.
type Sink interface {
	Send(ev Event)
}

// Func adapts a function to the Sink interface.
type Func func(ev Event)

func (f Func) Send(ev Event) { f(ev) }

// Discard drops every event.
var Discard = Func(func(Event) {})

// Collector buffers events in memory, mainly for tests and batch endpoints.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Send(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

// Events returns a copy of everything collected so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// ByType filters collected events by type.
func (c *Collector) ByType(typ string) []Event {
	var out []Event
	for _, ev := range c.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Multi fans each event out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return Func(func(ev Event) {
		for _, s := range sinks {
			s.Send(ev)
		}
	})
}
