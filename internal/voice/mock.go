package voice

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"time"
)

// MockLLM returns scripted replies and records every request it sees.
type MockLLM struct {
	mu      sync.Mutex
	Replies []string
	Err     error

	Requests []MockLLMRequest
}

type MockLLMRequest struct {
	Instructions string
	Turns        []Message
	ToolNames    []string
}

func (m *MockLLM) Complete(_ context.Context, instructions string, turns []Message, tools []FunctionTool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	m.Requests = append(m.Requests, MockLLMRequest{Instructions: instructions, Turns: turns, ToolNames: names})
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Replies) == 0 {
		return "mock reply", nil
	}
	reply := m.Replies[0]
	if len(m.Replies) > 1 {
		m.Replies = m.Replies[1:]
	}
	return reply, nil
}

// MockSTT emits a committed transcript for every finalize call.
type MockSTT struct{}

func (m *MockSTT) StartSession(_ context.Context, _ string) (STTSession, <-chan STTEvent, error) {
	events := make(chan STTEvent, 64)
	return &mockSTTSession{events: events}, events, nil
}

type mockSTTSession struct {
	mu     sync.Mutex
	events chan STTEvent
	buf    int
	closed bool
}

func (s *mockSTTSession) SendAudio(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.buf += len(pcm)
	if s.buf > 0 {
		s.events <- STTEvent{Type: STTEventPartial, Text: "...", Confidence: 0.5, Timestamp: time.Now().UnixMilli()}
	}
	return nil
}

func (s *mockSTTSession) Finalize(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	text := "simulated caller speech"
	if s.buf == 0 {
		text = ""
	}
	s.buf = 0
	s.events <- STTEvent{Type: STTEventCommitted, Text: text, Confidence: 0.7, Timestamp: time.Now().UnixMilli()}
	return nil
}

func (s *mockSTTSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

// MockTTS echoes text back as base64 audio. WarmCalls counts warmup probes.
type MockTTS struct {
	mu        sync.Mutex
	WarmErr   error
	warmCalls int
}

func (m *MockTTS) Warm(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warmCalls++
	return m.WarmErr
}

func (m *MockTTS) WarmCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warmCalls
}

func (m *MockTTS) StartStream(_ context.Context, _ string) (TTSStream, error) {
	return &mockTTSStream{events: make(chan TTSEvent, 128)}, nil
}

type mockTTSStream struct {
	mu     sync.Mutex
	events chan TTSEvent
	closed bool
}

func (s *mockTTSStream) SendText(_ context.Context, text string, last bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if strings.TrimSpace(text) != "" {
		encoded := base64.StdEncoding.EncodeToString([]byte(text))
		s.events <- TTSEvent{Type: TTSEventAudio, AudioBase64: encoded, Format: "mock_text_bytes"}
	}
	if last {
		s.events <- TTSEvent{Type: TTSEventFinal}
	}
	return nil
}

func (s *mockTTSStream) Events() <-chan TTSEvent { return s.events }

func (s *mockTTSStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}
