package events

// Event represents a structured state change emitted by the vault core.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// Typed is the canonical event payload: a type tag plus flat string
// attributes, suitable for JSON logging and downstream indexing.
type Typed struct {
	Type       string
	Attributes map[string]string
}

// EventType implements the Event interface.
func (t *Typed) EventType() string {
	if t == nil {
		return ""
	}
	return t.Type
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default wired into engines so event emission is always safe.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// CaptureEmitter records every emitted event in order. Intended for tests that
// assert on the event stream produced by an operation.
type CaptureEmitter struct {
	Events []Event
}

// Emit appends the event to the captured sequence.
func (c *CaptureEmitter) Emit(evt Event) {
	if evt == nil {
		return
	}
	c.Events = append(c.Events, evt)
}

// Types returns the event type strings in emission order.
func (c *CaptureEmitter) Types() []string {
	out := make([]string, 0, len(c.Events))
	for _, evt := range c.Events {
		out = append(out, evt.EventType())
	}
	return out
}
