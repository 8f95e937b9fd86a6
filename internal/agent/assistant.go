package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aalghamdi/voicedesk/internal/config"
	"github.com/aalghamdi/voicedesk/internal/observability"
	"github.com/aalghamdi/voicedesk/internal/prompt"
	"github.com/aalghamdi/voicedesk/internal/tools"
	"github.com/aalghamdi/voicedesk/internal/voice"
)

// State is the session lifecycle phase. Ended is terminal and reachable from
// any prior state on unrecoverable error.
type State int

const (
	StateConstructed State = iota
	StatePipelineBuilt
	StateStarted
	StateConnected
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StatePipelineBuilt:
		return "pipeline_built"
	case StateStarted:
		return "started"
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// benignFirstMessageRace is the one error the pipeline is known to surface
// during greeting synthesis against a cold backend. The pipeline retries
// internally; the allowlist stays this small on purpose.
const benignFirstMessageRace = "no audio frames were pushed"

const defaultNoiseProfile = NoiseProfileTelephony

// Assistant owns one voice-call session: it assembles the pipeline at
// construction, sequences startup, and reacts to session events until the
// call ends.
type Assistant struct {
	useCaseID string
	useCase   config.UseCaseConfig
	room      RoomHandle
	pipeline  Pipeline
	warmer    voice.TTSClient
	settle    time.Duration
	logger    *slog.Logger

	// Metrics is set by New and shared with the pipeline. Nil in tests that
	// assemble around a fake pipeline.
	Metrics *observability.Metrics

	mu    sync.Mutex
	state State
}

// New resolves the use case and prompt, constructs the model clients and tool
// endpoints, and assembles the session pipeline. Event handlers are
// registered here, before any start. A construction error leaves nothing
// running.
func New(cfg *config.ApplicationSettings, room RoomHandle, vad *voice.VAD, logger *slog.Logger, metrics *observability.Metrics) (*Assistant, error) {
	if logger == nil {
		logger = slog.Default()
	}
	uc := cfg.CurrentUseCase()
	logger = logger.With("room", room.Name(), "use_case", cfg.UseCase, "use_case_name", uc.Name)

	loader := &prompt.Loader{ConfigDir: cfg.ConfigDir, Logger: logger}
	instructions, err := loader.Load(uc.PromptFile)
	if err != nil {
		logger.Warn("prompt resolution failed, using fallback", "prompt_file", uc.PromptFile, "error", err)
		instructions = prompt.Fallback(uc)
	}

	llm, err := voice.NewOpenAILLM(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("build llm client: %w", err)
	}
	stt, err := voice.NewDeepgramSTT(cfg.STT)
	if err != nil {
		return nil, fmt.Errorf("build stt client: %w", err)
	}
	tts, err := voice.NewCartesiaTTS(cfg.TTS)
	if err != nil {
		return nil, fmt.Errorf("build tts client: %w", err)
	}

	toolClients := make([]*tools.Client, 0, len(uc.ToolServers))
	for _, server := range uc.ToolServers {
		toolClients = append(toolClients, tools.NewClient(server.URL))
	}

	pipeline := NewPipeline(PipelineConfig{
		Instructions: instructions,
		LLM:          llm,
		STT:          stt,
		TTS:          tts,
		VAD:          vad,
		Turns:        voice.NewTurnDetector(),
		ToolClients:  toolClients,
		Logger:       logger,
		Metrics:      metrics,
	})

	a := newWithPipeline(cfg, uc, room, pipeline, tts, logger)
	a.Metrics = metrics
	return a, nil
}

// NewHospitalityAssistant is the historical constructor name from when the
// hotel profile was the only use case.
//
// Deprecated: use New; the use case comes from configuration.
func NewHospitalityAssistant(cfg *config.ApplicationSettings, room RoomHandle, vad *voice.VAD, logger *slog.Logger, metrics *observability.Metrics) (*Assistant, error) {
	return New(cfg, room, vad, logger, metrics)
}

// newWithPipeline finishes assembly around an already built pipeline. Split
// out so the lifecycle can be exercised against a fake pipeline.
func newWithPipeline(cfg *config.ApplicationSettings, uc config.UseCaseConfig, room RoomHandle, p Pipeline, warmer voice.TTSClient, logger *slog.Logger) *Assistant {
	a := &Assistant{
		useCaseID: cfg.UseCase,
		useCase:   uc,
		room:      room,
		pipeline:  p,
		settle:    cfg.TTSWarmupDelay,
		logger:    logger,
		state:     StateConstructed,
		warmer:    warmer,
	}
	p.Events().OnSessionError(a.handleSessionError)
	p.Events().OnFalseInterruption(a.handleFalseInterruption)
	a.setState(StatePipelineBuilt)
	return a
}

// Start sequences pipeline start, the synthesis settling interval, room
// connection and the opening greeting. Failure at any step ends the session
// and re-raises the error; the job scheduler decides whether to retry.
func (a *Assistant) Start(ctx context.Context) error {
	begin := time.Now()

	if err := a.pipeline.Start(ctx, StartOptions{Room: a.room, NoiseCancellation: defaultNoiseProfile}); err != nil {
		return a.fail("pipeline start", err)
	}
	a.setState(StateStarted)

	// Settling interval: the synthesis backend drops the first utterance if
	// audio is requested before it finishes initializing. Warm the stream,
	// then hold for the configured delay.
	if a.warmer != nil {
		if err := a.warmer.Warm(ctx); err != nil {
			a.logger.Warn("tts warmup probe failed", "error", err)
		}
	}
	time.Sleep(a.settle)

	if err := a.room.Connect(ctx); err != nil {
		return a.fail("room connect", err)
	}
	a.setState(StateConnected)

	greeting := fmt.Sprintf("Greet the caller. Open with exactly: %s", a.useCase.Greeting)
	if err := a.pipeline.GenerateReply(ctx, Override(greeting)); err != nil {
		a.logger.Error("greeting generation failed", "error", err)
	} else if a.Metrics != nil {
		a.Metrics.ObserveFirstReplyLatency(time.Since(begin))
	}
	a.setState(StateActive)
	a.logger.Info("session active", "startup_ms", time.Since(begin).Milliseconds())
	return nil
}

func (a *Assistant) handleSessionError(ev SessionErrorEvent) {
	msg := ""
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	if strings.Contains(msg, benignFirstMessageRace) {
		a.logger.Warn("ignoring benign first-message synthesis race", "error", msg)
		return
	}
	a.logger.Error("session error", "error", msg)
}

func (a *Assistant) handleFalseInterruption(ev FalseInterruptionEvent) {
	a.logger.Info("false positive interruption, resuming")
	override := NoOverride
	if ev.ExtraInstructions != "" {
		override = Override(ev.ExtraInstructions)
	}
	if err := a.pipeline.GenerateReply(context.Background(), override); err != nil {
		a.logger.Error("resume after false interruption failed", "error", err)
	}
}

// Close releases the pipeline handle. Ended is terminal; closing twice is
// harmless.
func (a *Assistant) Close() error {
	a.setState(StateEnded)
	return a.pipeline.Close()
}

// State reports the current lifecycle phase.
func (a *Assistant) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Assistant) setState(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateEnded {
		return
	}
	a.state = s
}

func (a *Assistant) fail(step string, err error) error {
	a.setState(StateEnded)
	a.logger.Error("session startup failed",
		"step", step,
		"state", a.State().String(),
		"error", err)
	return fmt.Errorf("%s: %w", step, err)
}
