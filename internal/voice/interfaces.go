package voice

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// ToolParam describes one JSON-schema property of a function tool.
type ToolParam struct {
	Type        string
	Description string
}

// FunctionTool is a callable exposed to the language model. Invoke runs the
// tool and returns the text the model should read back to the caller.
type FunctionTool struct {
	Name        string
	Description string
	Parameters  map[string]ToolParam
	Required    []string
	Invoke      func(ctx context.Context, args map[string]any) (string, error)
}

// LLM produces one assistant reply, resolving any tool calls the model emits
// before returning the final text.
type LLM interface {
	Complete(ctx context.Context, instructions string, turns []Message, tools []FunctionTool) (string, error)
}

type STTEventType string

const (
	STTEventPartial   STTEventType = "partial"
	STTEventCommitted STTEventType = "committed"
	STTEventError     STTEventType = "error"
)

type STTEvent struct {
	Type       STTEventType
	Text       string
	Confidence float64
	Code       string
	Detail     string
	Retryable  bool
	Timestamp  int64
}

// STTSession is one live transcription stream. Audio is raw little-endian
// 16-bit PCM; Finalize forces the provider to commit the open utterance.
type STTSession interface {
	SendAudio(ctx context.Context, pcm []byte) error
	Finalize(ctx context.Context) error
	Close() error
}

type STTClient interface {
	StartSession(ctx context.Context, sessionID string) (STTSession, <-chan STTEvent, error)
}

type TTSEventType string

const (
	TTSEventAudio TTSEventType = "audio"
	TTSEventFinal TTSEventType = "final"
	TTSEventError TTSEventType = "error"
)

type TTSEvent struct {
	Type        TTSEventType
	AudioBase64 string
	Format      string
	Code        string
	Detail      string
	Retryable   bool
}

// TTSStream is one synthesis context. SendText with last=true closes the
// input side; the stream keeps emitting events until the provider finishes.
type TTSStream interface {
	SendText(ctx context.Context, text string, last bool) error
	Events() <-chan TTSEvent
	Close() error
}

// TTSClient mints synthesis streams. Warm performs a short round trip so the
// first real utterance of a session does not pay connection setup cost.
type TTSClient interface {
	Warm(ctx context.Context) error
	StartStream(ctx context.Context, contextID string) (TTSStream, error)
}
