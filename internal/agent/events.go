package agent

import "sync"

// ReplyOverride carries optional extra instructions for a regenerated reply.
// The zero value is NoOverride: the model sees the original instructions with
// nothing appended, exactly as if it had never been interrupted. An override
// holding an empty string is deliberately impossible to construct.
type ReplyOverride struct {
	text string
	set  bool
}

// NoOverride is the distinguished "no extra instructions" sentinel.
var NoOverride = ReplyOverride{}

// Override wraps extra instructions. Blank text yields NoOverride so callers
// cannot smuggle an empty override in.
func Override(text string) ReplyOverride {
	if text == "" {
		return NoOverride
	}
	return ReplyOverride{text: text, set: true}
}

// Instructions returns the extra text and whether an override is present.
func (o ReplyOverride) Instructions() (string, bool) { return o.text, o.set }

// SessionErrorEvent surfaces a pipeline-level error during an active call.
type SessionErrorEvent struct {
	Err error
}

// FalseInterruptionEvent fires when ambient noise was misclassified as the
// caller interrupting agent speech. ExtraInstructions may be empty.
type FalseInterruptionEvent struct {
	ExtraInstructions string
}

// EventDispatcher is the typed observer contract between a pipeline and its
// orchestrator. Handlers are registered once before startup; firing with no
// handler registered is a no-op.
type EventDispatcher struct {
	mu                  sync.Mutex
	onSessionError      func(SessionErrorEvent)
	onFalseInterruption func(FalseInterruptionEvent)
}

func NewEventDispatcher() *EventDispatcher { return &EventDispatcher{} }

func (d *EventDispatcher) OnSessionError(fn func(SessionErrorEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSessionError = fn
}

func (d *EventDispatcher) OnFalseInterruption(fn func(FalseInterruptionEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onFalseInterruption = fn
}

func (d *EventDispatcher) EmitSessionError(ev SessionErrorEvent) {
	d.mu.Lock()
	fn := d.onSessionError
	d.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (d *EventDispatcher) EmitFalseInterruption(ev FalseInterruptionEvent) {
	d.mu.Lock()
	fn := d.onFalseInterruption
	d.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}
