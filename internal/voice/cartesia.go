package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aalghamdi/voicedesk/internal/config"
)

const (
	cartesiaVersion    = "2024-06-10"
	cartesiaSampleRate = 24000
	cartesiaWarmText   = "Hello."
)

// CartesiaTTS streams synthesis over the Cartesia websocket API.
type CartesiaTTS struct {
	apiKey   string
	baseURL  string
	model    string
	language string
	voice    string
}

func NewCartesiaTTS(cfg config.TTSSettings) (*CartesiaTTS, error) {
	if strings.TrimSpace(cfg.APIKey()) == "" {
		return nil, fmt.Errorf("tts api key is not set")
	}
	if strings.TrimSpace(cfg.Voice) == "" {
		return nil, fmt.Errorf("tts voice is not set")
	}
	base := cfg.BaseURL
	if strings.TrimSpace(base) == "" {
		base = "wss://api.cartesia.ai"
	}
	model := cfg.Model
	if strings.TrimSpace(model) == "" {
		model = "sonic-2"
	}
	language := cfg.Language
	if strings.TrimSpace(language) == "" {
		language = "en"
	}
	return &CartesiaTTS{apiKey: cfg.APIKey(), baseURL: base, model: model, language: language, voice: cfg.Voice}, nil
}

func (c *CartesiaTTS) StartStream(ctx context.Context, contextID string) (TTSStream, error) {
	if strings.TrimSpace(contextID) == "" {
		contextID = uuid.NewString()
	}
	u, err := url.Parse(strings.TrimRight(c.baseURL, "/") + "/tts/websocket")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	q.Set("cartesia_version", cartesiaVersion)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial tts websocket: %w", err)
	}

	s := &cartesiaStream{
		conn:      conn,
		contextID: contextID,
		model:     c.model,
		language:  c.language,
		voice:     c.voice,
		events:    make(chan TTSEvent, 512),
	}
	go s.readLoop()
	return s, nil
}

// Warm opens a stream, synthesizes one short utterance and waits for the
// provider to finish. Used once per session before the greeting so the first
// audible reply is not delayed by connection setup.
func (c *CartesiaTTS) Warm(ctx context.Context) error {
	stream, err := c.StartStream(ctx, "warmup-"+uuid.NewString())
	if err != nil {
		return err
	}
	defer stream.Close()
	if err := stream.SendText(ctx, cartesiaWarmText, true); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream.Events():
			if !ok {
				return fmt.Errorf("tts warmup: stream closed before completion")
			}
			switch ev.Type {
			case TTSEventFinal:
				return nil
			case TTSEventError:
				return fmt.Errorf("tts warmup: %s: %s", ev.Code, ev.Detail)
			}
		}
	}
}

type cartesiaStream struct {
	conn      *websocket.Conn
	contextID string
	model     string
	language  string
	voice     string

	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan TTSEvent
}

func (s *cartesiaStream) SendText(_ context.Context, text string, last bool) error {
	payload := map[string]any{
		"context_id": s.contextID,
		"model_id":   s.model,
		"language":   s.language,
		"transcript": text,
		"continue":   !last,
		"voice": map[string]any{
			"mode": "id",
			"id":   s.voice,
		},
		"output_format": map[string]any{
			"container":   "raw",
			"encoding":    "pcm_s16le",
			"sample_rate": cartesiaSampleRate,
		},
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (s *cartesiaStream) Events() <-chan TTSEvent { return s.events }

type cartesiaMessage struct {
	Type  string `json:"type"`
	Data  string `json:"data"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
	Code  string `json:"status_code"`
}

func (s *cartesiaStream) readLoop() {
	defer s.safeClose()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg cartesiaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "chunk":
			s.events <- TTSEvent{Type: TTSEventAudio, AudioBase64: msg.Data, Format: "pcm_s16le"}
		case "done":
			s.events <- TTSEvent{Type: TTSEventFinal}
		case "error":
			s.events <- TTSEvent{Type: TTSEventError, Code: msg.Code, Detail: msg.Error}
		case "timestamps", "flush_done":
			// metadata, nothing to surface
		}
	}
}

func (s *cartesiaStream) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		retErr = s.conn.Close()
		close(s.events)
	})
	return retErr
}

func (s *cartesiaStream) safeClose() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		close(s.events)
	})
}
