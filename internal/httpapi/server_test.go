package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aalghamdi/voicedesk/internal/config"
	"github.com/aalghamdi/voicedesk/internal/signaling"
)

type fakeTokens struct {
	err error
}

func (f *fakeTokens) ParticipantToken(room, participantName, identity string, _ time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "tok-" + room + "-" + participantName, nil
}

func (f *fakeTokens) ServerURL() string { return "wss://voice.example.com" }

type fakeRooms struct {
	err   error
	rooms []signaling.Room
}

func (f *fakeRooms) Create(_ context.Context, name string, _, _ int) (*signaling.Room, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &signaling.Room{Name: name, SID: "RM_1"}, nil
}

func (f *fakeRooms) List(context.Context) ([]signaling.Room, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rooms, nil
}

func testConfig() *config.ApplicationSettings {
	return &config.ApplicationSettings{
		UseCase: "hospitality",
		UseCases: map[string]config.UseCaseConfig{
			"hospitality": config.DefaultHospitalityUseCase(),
		},
		LLM:       config.LLMSettings{Type: "openai", Model: "gpt-4o-mini"},
		STT:       config.STTSettings{Type: "deepgram", Model: "nova-3", Language: "multi"},
		TTS:       config.TTSSettings{Type: "cartesia", Model: "sonic-2", Voice: "amira"},
		Signaling: config.SignalingSettings{URL: "wss://voice.example.com"},
	}
}

func newTestServer(t *testing.T, tokens TokenService, rooms RoomService) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New("", testConfig(), NewAgentStatus(), tokens, rooms, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusAndConfigOmitCredentials(t *testing.T) {
	srv := newTestServer(t, &fakeTokens{}, &fakeRooms{})

	for _, path := range []string{"/status", "/config"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		body := make([]byte, 0)
		body, _ = json.Marshal(decodeBody(t, resp))
		text := string(body)
		if !strings.Contains(text, "gpt-4o-mini") {
			t.Fatalf("GET %s = %s, want model identifiers included", path, text)
		}
		for _, leak := range []string{"api_key", "apiKey", "secret"} {
			if strings.Contains(text, leak) {
				t.Fatalf("GET %s leaks %q: %s", path, leak, text)
			}
		}
	}
}

func TestHealthReloadsConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "k")
	t.Setenv("DEEPGRAM_API_KEY", "k")
	t.Setenv("CARTESIA_API_KEY", "k")

	dir := t.TempDir()
	path := filepath.Join(dir, "voicedesk.yml")
	if err := os.WriteFile(path, []byte("use_case: hospitality\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	srv := httptest.NewServer(New(path, testConfig(), NewAgentStatus(), &fakeTokens{}, &fakeRooms{}, nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", resp.StatusCode)
	}

	if err := os.WriteFile(path, []byte("use_case: [broken\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("GET /health with broken config = %d, want 500", resp.StatusCode)
	}
	payload := decodeBody(t, resp)
	if payload["error_code"] != "config_invalid" {
		t.Fatalf("error_code = %v, want config_invalid", payload["error_code"])
	}
}

func TestTokenEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeTokens{}, &fakeRooms{})

	resp, err := http.Post(srv.URL+"/api/token", "application/json",
		strings.NewReader(`{"room":"lobby","participant_name":"Sara"}`))
	if err != nil {
		t.Fatalf("POST /api/token error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/token = %d, want 200", resp.StatusCode)
	}
	payload := decodeBody(t, resp)
	if payload["token"] != "tok-lobby-Sara" || payload["url"] != "wss://voice.example.com" {
		t.Fatalf("token response = %v", payload)
	}

	resp, err = http.Post(srv.URL+"/api/token", "application/json", strings.NewReader(`{"room":"lobby"}`))
	if err != nil {
		t.Fatalf("POST /api/token error = %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("POST /api/token without participant = %d, want 400", resp.StatusCode)
	}
}

func TestSignalingUnsetReturnsServerError(t *testing.T) {
	srv := newTestServer(t, &fakeTokens{err: signaling.ErrNotConfigured}, &fakeRooms{err: signaling.ErrNotConfigured})

	resp, err := http.Post(srv.URL+"/api/token", "application/json",
		strings.NewReader(`{"room":"lobby","participant_name":"Sara"}`))
	if err != nil {
		t.Fatalf("POST /api/token error = %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("POST /api/token = %d, want 500", resp.StatusCode)
	}
	payload := decodeBody(t, resp)
	if payload["error_code"] != "signaling_not_configured" {
		t.Fatalf("error_code = %v, want signaling_not_configured", payload["error_code"])
	}
	if _, ok := payload["detail"].(string); !ok {
		t.Fatalf("detail missing from error body: %v", payload)
	}

	resp, err = http.Get(srv.URL + "/api/room/list")
	if err != nil {
		t.Fatalf("GET /api/room/list error = %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("GET /api/room/list = %d, want 500", resp.StatusCode)
	}
}

func TestRoomCreateAndList(t *testing.T) {
	rooms := &fakeRooms{rooms: []signaling.Room{{Name: "lobby", NumParticipants: 3}}}
	srv := newTestServer(t, &fakeTokens{}, rooms)

	resp, err := http.Post(srv.URL+"/api/room/create", "application/json",
		strings.NewReader(`{"name":"lobby","max_participants":4}`))
	if err != nil {
		t.Fatalf("POST /api/room/create error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/room/create = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/room/list")
	if err != nil {
		t.Fatalf("GET /api/room/list error = %v", err)
	}
	var listResp struct {
		Rooms []signaling.Room `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listResp.Rooms) != 1 || listResp.Rooms[0].NumParticipants != 3 {
		t.Fatalf("rooms = %+v, want lobby with three participants", listResp.Rooms)
	}
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return payload
}
