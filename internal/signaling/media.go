package signaling

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/aalghamdi/voicedesk/internal/config"
)

// MediaRoom is the agent's connection to one audio room through the media
// gateway websocket: binary frames in are caller PCM, JSON frames out carry
// synthesized agent speech. It satisfies the orchestrator's room contract.
type MediaRoom struct {
	settings config.SignalingSettings
	minter   *TokenMinter
	name     string

	mu      sync.Mutex
	conn    *websocket.Conn
	audioIn chan []byte
	done    chan struct{}
	closed  bool
}

func NewMediaRoom(settings config.SignalingSettings, name string) *MediaRoom {
	return &MediaRoom{
		settings: settings,
		minter:   NewTokenMinter(settings),
		name:     name,
		audioIn:  make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

func (r *MediaRoom) Name() string { return r.name }

// Connect dials the media gateway with a freshly minted join token and
// starts pumping caller audio. Call it once, after the pipeline is ready.
func (r *MediaRoom) Connect(ctx context.Context) error {
	if r.settings.Unset() {
		return ErrNotConfigured
	}
	token, err := r.minter.ParticipantToken(r.name, "voicedesk-agent", "voicedesk-agent", 0)
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(r.settings.URL, "/") + "/rooms/" + url.PathEscape(r.name) + "/media"
	u, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial media gateway: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.Close()
		return fmt.Errorf("room %s already closed", r.name)
	}
	r.conn = conn
	r.mu.Unlock()

	go r.readLoop(conn)
	return nil
}

// readLoop is the only goroutine that writes to audioIn, so it alone may
// close the channel. shutdown only signals it to stop.
func (r *MediaRoom) readLoop(conn *websocket.Conn) {
	defer close(r.audioIn)
	defer r.shutdown()
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		select {
		case r.audioIn <- data:
		case <-r.done:
			return
		}
	}
}

func (r *MediaRoom) AudioIn() <-chan []byte { return r.audioIn }

func (r *MediaRoom) PlayAudio(_ context.Context, audioBase64 string) error {
	if _, err := base64.StdEncoding.DecodeString(audioBase64); err != nil {
		return fmt.Errorf("play audio: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.closed {
		return fmt.Errorf("room %s is not connected", r.name)
	}
	return r.conn.WriteJSON(map[string]any{"type": "audio", "data": audioBase64})
}

// Wait blocks until the room connection is gone, however it went.
func (r *MediaRoom) Wait() { <-r.done }

func (r *MediaRoom) Close() error {
	r.shutdown()
	return nil
}

func (r *MediaRoom) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.conn != nil {
		_ = r.conn.Close()
	} else {
		// Never connected: no readLoop exists to close the feed.
		close(r.audioIn)
	}
	close(r.done)
}
