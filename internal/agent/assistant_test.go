package agent

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aalghamdi/voicedesk/internal/config"
	"github.com/aalghamdi/voicedesk/internal/observability"
	"github.com/aalghamdi/voicedesk/internal/voice"
)

type fakeRoom struct {
	mu        sync.Mutex
	name      string
	connected bool
	connectAt time.Time
	err       error
	audio     chan []byte
}

func newFakeRoom(name string) *fakeRoom {
	return &fakeRoom{name: name, audio: make(chan []byte)}
}

func (r *fakeRoom) Name() string { return r.name }

func (r *fakeRoom) Connect(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.connected = true
	r.connectAt = time.Now()
	return nil
}

func (r *fakeRoom) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *fakeRoom) AudioIn() <-chan []byte                  { return r.audio }
func (r *fakeRoom) PlayAudio(context.Context, string) error { return nil }
func (r *fakeRoom) Close() error                            { return nil }

type fakePipeline struct {
	mu         sync.Mutex
	dispatcher *EventDispatcher
	startErr   error
	startedAt  time.Time
	started    bool
	closed     bool
	opts       StartOptions
	replies    []ReplyOverride
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{dispatcher: NewEventDispatcher()}
}

func (p *fakePipeline) Start(_ context.Context, opts StartOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.started = true
	p.startedAt = time.Now()
	p.opts = opts
	return nil
}

func (p *fakePipeline) GenerateReply(_ context.Context, override ReplyOverride) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, override)
	return nil
}

func (p *fakePipeline) Replies() []ReplyOverride {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ReplyOverride, len(p.replies))
	copy(out, p.replies)
	return out
}

func (p *fakePipeline) Events() *EventDispatcher { return p.dispatcher }

func (p *fakePipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func testSettings(settle time.Duration) *config.ApplicationSettings {
	return &config.ApplicationSettings{
		UseCase:        "hospitality",
		TTSWarmupDelay: settle,
	}
}

func newTestAssistant(t *testing.T, p Pipeline, room RoomHandle, warmer voice.TTSClient, logger *slog.Logger) *Assistant {
	t.Helper()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	}
	uc := config.DefaultHospitalityUseCase()
	return newWithPipeline(testSettings(10*time.Millisecond), uc, room, p, warmer, logger)
}

func TestStartSequencesPipelineSettleConnectGreeting(t *testing.T) {
	p := newFakePipeline()
	room := newFakeRoom("call-1")
	warmer := &voice.MockTTS{}
	a := newTestAssistant(t, p, room, warmer, nil)

	if got := a.State(); got != StatePipelineBuilt {
		t.Fatalf("State() = %s, want %s before start", got, StatePipelineBuilt)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := a.State(); got != StateActive {
		t.Fatalf("State() = %s, want %s after start", got, StateActive)
	}
	if !p.started {
		t.Fatalf("pipeline was never started")
	}
	if p.opts.NoiseCancellation != NoiseProfileTelephony {
		t.Fatalf("NoiseCancellation = %q, want telephony profile", p.opts.NoiseCancellation)
	}
	if warmer.WarmCalls() != 1 {
		t.Fatalf("WarmCalls() = %d, want 1", warmer.WarmCalls())
	}
	if !room.Connected() {
		t.Fatalf("room was never connected")
	}
	if room.connectAt.Sub(p.startedAt) < 10*time.Millisecond {
		t.Fatalf("room connected %s after pipeline start, want settling delay first", room.connectAt.Sub(p.startedAt))
	}

	replies := p.Replies()
	if len(replies) != 1 {
		t.Fatalf("len(replies) = %d, want one greeting", len(replies))
	}
	extra, ok := replies[0].Instructions()
	if !ok || !strings.Contains(extra, config.DefaultHospitalityUseCase().Greeting) {
		t.Fatalf("greeting override = %q (set=%v), want the configured greeting", extra, ok)
	}
}

func TestStartFailureEndsSessionBeforeConnect(t *testing.T) {
	p := newFakePipeline()
	p.startErr = errors.New("model warmup failed")
	room := newFakeRoom("call-2")
	a := newTestAssistant(t, p, room, &voice.MockTTS{}, nil)

	if err := a.Start(context.Background()); err == nil {
		t.Fatalf("Start() error = nil, want pipeline start error re-raised")
	}
	if got := a.State(); got != StateEnded {
		t.Fatalf("State() = %s, want %s", got, StateEnded)
	}
	if room.Connected() {
		t.Fatalf("room connected after pipeline start failure")
	}
}

func TestConnectFailureEndsSession(t *testing.T) {
	p := newFakePipeline()
	room := newFakeRoom("call-3")
	room.err = errors.New("room unreachable")
	a := newTestAssistant(t, p, room, &voice.MockTTS{}, nil)

	if err := a.Start(context.Background()); err == nil {
		t.Fatalf("Start() error = nil, want connect error re-raised")
	}
	if got := a.State(); got != StateEnded {
		t.Fatalf("State() = %s, want %s", got, StateEnded)
	}
	if len(p.Replies()) != 0 {
		t.Fatalf("greeting generated after connect failure")
	}
}

func TestFalseInterruptionPassesExtraInstructionsThrough(t *testing.T) {
	p := newFakePipeline()
	a := newTestAssistant(t, p, newFakeRoom("call-4"), &voice.MockTTS{}, nil)
	_ = a

	p.Events().EmitFalseInterruption(FalseInterruptionEvent{ExtraInstructions: "continue normally"})

	replies := p.Replies()
	if len(replies) != 1 {
		t.Fatalf("len(replies) = %d, want 1", len(replies))
	}
	extra, ok := replies[0].Instructions()
	if !ok || extra != "continue normally" {
		t.Fatalf("override = %q (set=%v), want exactly the event instructions", extra, ok)
	}
}

func TestFalseInterruptionWithoutInstructionsUsesSentinel(t *testing.T) {
	p := newFakePipeline()
	a := newTestAssistant(t, p, newFakeRoom("call-5"), &voice.MockTTS{}, nil)
	_ = a

	p.Events().EmitFalseInterruption(FalseInterruptionEvent{})

	replies := p.Replies()
	if len(replies) != 1 {
		t.Fatalf("len(replies) = %d, want 1", len(replies))
	}
	if replies[0] != NoOverride {
		t.Fatalf("override = %+v, want NoOverride sentinel", replies[0])
	}
	if _, ok := replies[0].Instructions(); ok {
		t.Fatalf("sentinel reports instructions present")
	}
}

func TestOverrideNeverWrapsEmptyString(t *testing.T) {
	if Override("") != NoOverride {
		t.Fatalf("Override(\"\") != NoOverride")
	}
	if Override("x") == NoOverride {
		t.Fatalf("Override(\"x\") == NoOverride")
	}
}

func TestBenignSynthesisRaceLogsWarningOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := newFakePipeline()
	a := newTestAssistant(t, p, newFakeRoom("call-6"), &voice.MockTTS{}, logger)
	_ = a

	p.Events().EmitSessionError(SessionErrorEvent{Err: errors.New("no audio frames were pushed")})
	out := buf.String()
	if !strings.Contains(out, "level=WARN") {
		t.Fatalf("benign error logged as %q, want warning level", out)
	}
	if strings.Contains(out, "level=ERROR") {
		t.Fatalf("benign error escalated to error level: %q", out)
	}

	buf.Reset()
	p.Events().EmitSessionError(SessionErrorEvent{Err: errors.New("stt connection reset")})
	out = buf.String()
	if !strings.Contains(out, "level=ERROR") {
		t.Fatalf("unknown error logged as %q, want error level", out)
	}
}

func TestCloseIsTerminal(t *testing.T) {
	p := newFakePipeline()
	a := newTestAssistant(t, p, newFakeRoom("call-7"), &voice.MockTTS{}, nil)

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !p.closed {
		t.Fatalf("pipeline not released on close")
	}
	if got := a.State(); got != StateEnded {
		t.Fatalf("State() = %s, want %s", got, StateEnded)
	}
	// Ended stays terminal even if a stray transition fires afterwards.
	a.setState(StateActive)
	if got := a.State(); got != StateEnded {
		t.Fatalf("State() = %s after stray transition, want %s", got, StateEnded)
	}
}

func TestNewFallsBackWhenPromptFileMissing(t *testing.T) {
	for _, env := range []string{"OPENAI_API_KEY", "DEEPGRAM_API_KEY", "CARTESIA_API_KEY"} {
		t.Setenv(env, "test-key")
	}
	cfg, err := config.FromDocument([]byte("use_case: hospitality\ntts:\n  voice: amira\n"), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	if err != nil {
		t.Fatalf("FromDocument() error = %v", err)
	}
	cfg.ConfigDir = t.TempDir() // no prompt file anywhere

	a, err := New(cfg, newFakeRoom("call-8"), voice.LoadVAD(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), nil)
	if err != nil {
		t.Fatalf("New() error = %v, want fallback prompt instead of failure", err)
	}
	if got := a.State(); got != StatePipelineBuilt {
		t.Fatalf("State() = %s, want %s", got, StatePipelineBuilt)
	}
}

func TestNewSharesMetricsWithPipeline(t *testing.T) {
	for _, env := range []string{"OPENAI_API_KEY", "DEEPGRAM_API_KEY", "CARTESIA_API_KEY"} {
		t.Setenv(env, "test-key")
	}
	quiet := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	cfg, err := config.FromDocument([]byte("use_case: hospitality\ntts:\n  voice: amira\n"), quiet)
	if err != nil {
		t.Fatalf("FromDocument() error = %v", err)
	}
	cfg.ConfigDir = t.TempDir()

	m := &observability.Metrics{}
	a, err := New(cfg, newFakeRoom("call-14"), voice.LoadVAD(quiet), quiet, m)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Metrics != m {
		t.Fatalf("assistant metrics not carried from the constructor")
	}
	vp, ok := a.pipeline.(*voicePipeline)
	if !ok {
		t.Fatalf("pipeline = %T, want the production pipeline", a.pipeline)
	}
	if vp.cfg.Metrics != m {
		t.Fatalf("pipeline metrics = %v, want the instance handed to New", vp.cfg.Metrics)
	}
}
