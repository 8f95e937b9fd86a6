package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aalghamdi/voicedesk/internal/observability"
	"github.com/aalghamdi/voicedesk/internal/tools"
	"github.com/aalghamdi/voicedesk/internal/voice"
)

// NoiseCancellationProfile selects the input denoising tuning for a call.
type NoiseCancellationProfile string

const (
	NoiseProfileTelephony NoiseCancellationProfile = "telephony"
	NoiseProfileGeneric   NoiseCancellationProfile = "generic"
)

// RoomHandle is the narrow surface of the real-time audio room the pipeline
// needs: connect, a caller-audio feed, and an agent-audio sink. Transport and
// codec details live behind it.
type RoomHandle interface {
	Name() string
	Connect(ctx context.Context) error
	// AudioIn yields caller microphone audio as little-endian 16-bit PCM
	// frames. The channel closes when the caller leaves.
	AudioIn() <-chan []byte
	// PlayAudio pushes one base64 chunk of synthesized agent speech.
	PlayAudio(ctx context.Context, audioBase64 string) error
	Close() error
}

// StartOptions carries the room and input tuning for pipeline start.
type StartOptions struct {
	Room              RoomHandle
	NoiseCancellation NoiseCancellationProfile
}

// Pipeline is the session-facing contract the orchestrator drives. Event
// handlers must be registered on Events() before Start.
type Pipeline interface {
	Start(ctx context.Context, opts StartOptions) error
	GenerateReply(ctx context.Context, override ReplyOverride) error
	Events() *EventDispatcher
	Close() error
}

// PipelineConfig assembles the model clients and tool endpoints for one call.
type PipelineConfig struct {
	Instructions string
	LLM          voice.LLM
	STT          voice.STTClient
	TTS          voice.TTSClient
	VAD          *voice.VAD
	Turns        *voice.TurnDetector
	ToolClients  []*tools.Client
	Logger       *slog.Logger
	Metrics      *observability.Metrics
}

type voicePipeline struct {
	cfg        PipelineConfig
	sessionID  string
	dispatcher *EventDispatcher
	logger     *slog.Logger

	mu       sync.Mutex
	history  []voice.Message
	tools    []voice.FunctionTool
	room     RoomHandle
	stt      voice.STTSession
	speaking bool
	started  bool
	cancel   context.CancelFunc
}

// NewPipeline wires the voice clients into a production pipeline.
func NewPipeline(cfg PipelineConfig) Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &voicePipeline{
		cfg:        cfg,
		sessionID:  id,
		dispatcher: NewEventDispatcher(),
		logger:     logger.With("session_id", id),
	}
}

func (p *voicePipeline) Events() *EventDispatcher { return p.dispatcher }

func (p *voicePipeline) Start(ctx context.Context, opts StartOptions) error {
	if opts.Room == nil {
		return errors.New("pipeline start: no room")
	}
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("pipeline start: already started")
	}
	p.mu.Unlock()

	// Tool definitions are fetched here rather than at construction so a
	// slow tool server delays startup, not session assembly.
	resolved, err := p.resolveTools(ctx)
	if err != nil {
		return err
	}

	sttSession, events, err := p.cfg.STT.StartSession(ctx, p.sessionID)
	if err != nil {
		return fmt.Errorf("start stt session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.tools = resolved
	p.room = opts.Room
	p.stt = sttSession
	p.cancel = cancel
	p.started = true
	p.mu.Unlock()

	p.logger.Info("pipeline started",
		"room", opts.Room.Name(),
		"noise_cancellation", string(opts.NoiseCancellation),
		"tools", len(resolved))
	go p.runLoop(runCtx, events)
	return nil
}

func (p *voicePipeline) resolveTools(ctx context.Context) ([]voice.FunctionTool, error) {
	var out []voice.FunctionTool
	for _, client := range p.cfg.ToolClients {
		defs, err := client.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tools from %s: %w", client.BaseURL(), err)
		}
		for _, def := range defs {
			out = append(out, p.remoteTool(client, def))
		}
	}
	return out, nil
}

func (p *voicePipeline) remoteTool(client *tools.Client, def tools.Definition) voice.FunctionTool {
	params := make(map[string]voice.ToolParam, len(def.Parameters))
	for name, prop := range def.Parameters {
		params[name] = voice.ToolParam{Type: prop.Type, Description: prop.Description}
	}
	return voice.FunctionTool{
		Name:        def.Name,
		Description: def.Description,
		Parameters:  params,
		Required:    def.Required,
		Invoke: func(ctx context.Context, args map[string]any) (string, error) {
			result, err := client.Call(ctx, def.Name, args)
			if p.cfg.Metrics != nil {
				outcome := "ok"
				if err != nil {
					outcome = "error"
				}
				p.cfg.Metrics.ToolInvocations.WithLabelValues(def.Name, outcome).Inc()
			}
			return result, err
		},
	}
}

// runLoop is the session's single cooperative event loop: caller audio feeds
// the detector and the transcriber, transcription events drive turns.
func (p *voicePipeline) runLoop(ctx context.Context, events <-chan voice.STTEvent) {
	detector := p.cfg.VAD.Detector()
	audioIn := p.room.AudioIn()
	var (
		utteranceStart time.Time
		lastConfidence float64
	)

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-audioIn:
			if !ok {
				p.logger.Info("caller audio feed closed")
				return
			}
			wasSpeaking := detector.Speaking()
			nowSpeaking := detector.Process(frame)
			if nowSpeaking && !wasSpeaking {
				utteranceStart = time.Now()
			}
			if err := p.stt.SendAudio(ctx, frame); err != nil {
				p.dispatcher.EmitSessionError(SessionErrorEvent{Err: fmt.Errorf("send audio: %w", err)})
				continue
			}
			if wasSpeaking && !nowSpeaking {
				_ = p.stt.Finalize(ctx)
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case voice.STTEventPartial:
				lastConfidence = ev.Confidence
			case voice.STTEventCommitted:
				p.handleCommitted(ctx, ev, utteranceStart, lastConfidence)
			case voice.STTEventError:
				p.countProviderError("stt", ev.Code)
				p.dispatcher.EmitSessionError(SessionErrorEvent{
					Err: fmt.Errorf("stt %s: %s", ev.Code, ev.Detail),
				})
			}
		}
	}
}

func (p *voicePipeline) handleCommitted(ctx context.Context, ev voice.STTEvent, utteranceStart time.Time, confidence float64) {
	p.mu.Lock()
	agentSpeaking := p.speaking
	p.mu.Unlock()

	if ev.Text == "" {
		// A commit with no words while the agent is talking is the noise
		// misclassification case: resume the interrupted reply.
		if agentSpeaking {
			p.dispatcher.EmitFalseInterruption(FalseInterruptionEvent{})
		}
		return
	}

	age := time.Duration(0)
	if !utteranceStart.IsZero() {
		age = time.Since(utteranceStart)
	}
	if decision, ok := p.cfg.Turns.Decide(ev.Text, confidence, age); ok && !decision.EndOfTurn {
		time.Sleep(decision.Hold)
	}

	p.mu.Lock()
	p.history = append(p.history, voice.Message{Role: voice.RoleUser, Content: ev.Text})
	p.mu.Unlock()

	if err := p.GenerateReply(ctx, NoOverride); err != nil {
		p.dispatcher.EmitSessionError(SessionErrorEvent{Err: err})
	}
}

func (p *voicePipeline) GenerateReply(ctx context.Context, override ReplyOverride) error {
	instructions := p.cfg.Instructions
	if extra, ok := override.Instructions(); ok {
		instructions = instructions + "\n\n" + extra
	}

	p.mu.Lock()
	turns := make([]voice.Message, len(p.history))
	copy(turns, p.history)
	toolset := p.tools
	p.mu.Unlock()

	reply, err := p.cfg.LLM.Complete(ctx, instructions, turns, toolset)
	if err != nil {
		p.countProviderError("llm", "complete")
		return fmt.Errorf("generate reply: %w", err)
	}
	if reply == "" {
		return nil
	}

	p.mu.Lock()
	p.history = append(p.history, voice.Message{Role: voice.RoleAssistant, Content: reply})
	p.mu.Unlock()

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.SessionEvents.WithLabelValues("reply").Inc()
	}
	return p.speak(ctx, reply)
}

func (p *voicePipeline) speak(ctx context.Context, text string) error {
	stream, err := p.cfg.TTS.StartStream(ctx, p.sessionID)
	if err != nil {
		return fmt.Errorf("start tts stream: %w", err)
	}
	defer stream.Close()

	p.setSpeaking(true)
	defer p.setSpeaking(false)

	if err := stream.SendText(ctx, text, true); err != nil {
		return fmt.Errorf("send tts text: %w", err)
	}

	frames := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream.Events():
			if !ok {
				return nil
			}
			switch ev.Type {
			case voice.TTSEventAudio:
				frames++
				if err := p.room.PlayAudio(ctx, ev.AudioBase64); err != nil {
					return fmt.Errorf("play audio: %w", err)
				}
			case voice.TTSEventFinal:
				if frames == 0 {
					// First-message race against a cold synthesis backend.
					p.dispatcher.EmitSessionError(SessionErrorEvent{
						Err: errors.New("no audio frames were pushed"),
					})
				}
				return nil
			case voice.TTSEventError:
				p.countProviderError("tts", ev.Code)
				return fmt.Errorf("tts %s: %s", ev.Code, ev.Detail)
			}
		}
	}
}

func (p *voicePipeline) countProviderError(provider, code string) {
	if p.cfg.Metrics == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	p.cfg.Metrics.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (p *voicePipeline) setSpeaking(v bool) {
	p.mu.Lock()
	p.speaking = v
	p.mu.Unlock()
}

func (p *voicePipeline) Close() error {
	p.mu.Lock()
	cancel := p.cancel
	stt := p.stt
	p.cancel = nil
	p.stt = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stt != nil {
		return stt.Close()
	}
	return nil
}
