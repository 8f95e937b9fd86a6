package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aalghamdi/voicedesk/internal/config"
)

// Room is the signaling server's view of one audio room.
type Room struct {
	Name            string `json:"name"`
	SID             string `json:"sid"`
	NumParticipants int    `json:"num_participants"`
	CreationTime    int64  `json:"creation_time,string"`
	EmptyTimeout    int    `json:"empty_timeout"`
	MaxParticipants int    `json:"max_participants"`
}

// RoomClient manages rooms through the signaling server's HTTP RPC API.
type RoomClient struct {
	settings config.SignalingSettings
	minter   *TokenMinter
	http     *http.Client
}

func NewRoomClient(settings config.SignalingSettings) *RoomClient {
	return &RoomClient{
		settings: settings,
		minter:   NewTokenMinter(settings),
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Create provisions a room. emptyTimeout and maxParticipants are optional;
// zero leaves the server default in place.
func (c *RoomClient) Create(ctx context.Context, name string, emptyTimeout, maxParticipants int) (*Room, error) {
	if c.settings.Unset() {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("room name is required")
	}
	body := map[string]any{"name": name}
	if emptyTimeout > 0 {
		body["empty_timeout"] = emptyTimeout
	}
	if maxParticipants > 0 {
		body["max_participants"] = maxParticipants
	}
	var room Room
	if err := c.rpc(ctx, "CreateRoom", body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// List returns all active rooms with their participant counts.
func (c *RoomClient) List(ctx context.Context) ([]Room, error) {
	if c.settings.Unset() {
		return nil, ErrNotConfigured
	}
	var resp struct {
		Rooms []Room `json:"rooms"`
	}
	if err := c.rpc(ctx, "ListRooms", map[string]any{}, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

func (c *RoomClient) rpc(ctx context.Context, method string, body any, out any) error {
	token, err := c.minter.adminToken()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := httpBaseURL(c.settings.URL) + "/twirp/livekit.RoomService/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("signaling %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("signaling %s: status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// httpBaseURL converts the websocket connection URL into the HTTP RPC base.
func httpBaseURL(wsURL string) string {
	u := strings.TrimRight(wsURL, "/")
	switch {
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	default:
		return u
	}
}
