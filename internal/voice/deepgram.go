package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aalghamdi/voicedesk/internal/config"
)

const deepgramSampleRate = 16000

// DeepgramSTT streams caller audio to the Deepgram realtime endpoint.
type DeepgramSTT struct {
	apiKey   string
	baseURL  string
	model    string
	language string
}

func NewDeepgramSTT(cfg config.STTSettings) (*DeepgramSTT, error) {
	if strings.TrimSpace(cfg.APIKey()) == "" {
		return nil, fmt.Errorf("stt api key is not set")
	}
	base := cfg.BaseURL
	if strings.TrimSpace(base) == "" {
		base = "wss://api.deepgram.com"
	}
	model := cfg.Model
	if strings.TrimSpace(model) == "" {
		model = "nova-3"
	}
	language := cfg.Language
	if strings.TrimSpace(language) == "" {
		language = "multi"
	}
	return &DeepgramSTT{apiKey: cfg.APIKey(), baseURL: base, model: model, language: language}, nil
}

func (d *DeepgramSTT) StartSession(ctx context.Context, _ string) (STTSession, <-chan STTEvent, error) {
	u, err := url.Parse(strings.TrimRight(d.baseURL, "/") + "/v1/listen")
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("model", d.model)
	q.Set("language", d.language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", deepgramSampleRate))
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, nil, fmt.Errorf("dial stt websocket: %w", err)
	}

	events := make(chan STTEvent, 256)
	s := &deepgramSession{conn: conn, events: events}
	go s.readLoop()
	return s, events, nil
}

type deepgramSession struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan STTEvent
}

func (s *deepgramSession) SendAudio(_ context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

func (s *deepgramSession) Finalize(_ context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(map[string]any{"type": "Finalize"})
}

type deepgramResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
}

func (s *deepgramSession) readLoop() {
	defer s.safeClose()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var res deepgramResult
		if err := json.Unmarshal(data, &res); err != nil {
			continue
		}
		switch res.Type {
		case "Results":
			if len(res.Channel.Alternatives) == 0 {
				continue
			}
			alt := res.Channel.Alternatives[0]
			if strings.TrimSpace(alt.Transcript) == "" {
				continue
			}
			kind := STTEventPartial
			if res.IsFinal {
				kind = STTEventCommitted
			}
			s.events <- STTEvent{Type: kind, Text: alt.Transcript, Confidence: alt.Confidence, Timestamp: time.Now().UnixMilli()}
		case "Metadata", "SpeechStarted", "UtteranceEnd":
			// control events, nothing to surface
		case "Error":
			s.events <- STTEvent{Type: STTEventError, Code: res.Type, Detail: res.Description, Timestamp: time.Now().UnixMilli()}
		}
	}
}

func (s *deepgramSession) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteJSON(map[string]any{"type": "CloseStream"})
		s.writeMu.Unlock()
		retErr = s.conn.Close()
		close(s.events)
	})
	return retErr
}

func (s *deepgramSession) safeClose() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		close(s.events)
	})
}
