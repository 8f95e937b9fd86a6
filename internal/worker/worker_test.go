package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aalghamdi/voicedesk/internal/config"
	"github.com/aalghamdi/voicedesk/internal/signaling"
	"github.com/aalghamdi/voicedesk/internal/voice"
)

type dispatched struct {
	job Job
	vad *voice.VAD
}

func TestRunFailsTypedWhenUnconfigured(t *testing.T) {
	w := New(config.SignalingSettings{}, "voicedesk", nil, nil, nil)
	if err := w.Run(context.Background()); err != signaling.ErrNotConfigured {
		t.Fatalf("Run() error = %v, want ErrNotConfigured", err)
	}
}

func TestWorkerRegistersAndDispatchesJobs(t *testing.T) {
	upgrader := websocket.Upgrader{}
	registered := make(chan map[string]any, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agent/worker" {
			http.NotFound(w, r)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("Authorization = %q, want bearer", r.Header.Get("Authorization"))
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var reg map[string]any
		if err := conn.ReadJSON(&reg); err != nil {
			t.Errorf("read register: %v", err)
			return
		}
		registered <- reg

		job, _ := json.Marshal(map[string]any{"type": "job", "job_id": "J1", "room": "call-9"})
		if err := conn.WriteMessage(websocket.TextMessage, job); err != nil {
			return
		}
		// Hold the socket open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	calls := make(chan dispatched, 1)
	handler := func(_ context.Context, job Job, vad *voice.VAD) error {
		calls <- dispatched{job: job, vad: vad}
		return nil
	}

	settings := config.SignalingSettings{
		URL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey:    "key1",
		APISecret: "secret1",
	}
	w := New(settings, "front-desk", handler, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(ctx) }()

	select {
	case reg := <-registered:
		if reg["type"] != "register" || reg["agent_name"] != "front-desk" {
			t.Fatalf("register frame = %v", reg)
		}
		if reg["worker_id"] == "" {
			t.Fatalf("register frame missing worker_id")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("worker never registered")
	}

	select {
	case got := <-calls:
		if got.job.ID != "J1" || got.job.Room != "call-9" {
			t.Fatalf("handler job = %+v, want J1/call-9", got.job)
		}
		if got.vad == nil {
			t.Fatalf("handler received nil vad, want the pre-loaded handle")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("job never dispatched")
	}

	cancel()
	select {
	case err := <-runDone:
		if err != context.Canceled {
			t.Fatalf("Run() after cancel = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run() did not stop on cancel")
	}
}

type fakeTracker struct {
	opened chan string
	closed chan string
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{opened: make(chan string, 1), closed: make(chan string, 1)}
}

func (f *fakeTracker) RoomOpened(room string) { f.opened <- room }
func (f *fakeTracker) RoomClosed(room string) { f.closed <- room }

func TestDispatchReportsRoomsToTracker(t *testing.T) {
	release := make(chan struct{})
	w := New(config.SignalingSettings{URL: "ws://x", APIKey: "k", APISecret: "s"}, "",
		func(context.Context, Job, *voice.VAD) error { <-release; return nil }, nil, nil)
	tracker := newFakeTracker()
	w.TrackRooms(tracker)

	w.dispatch(context.Background(), Job{ID: "J3", Room: "call-20"})

	select {
	case room := <-tracker.opened:
		if room != "call-20" {
			t.Fatalf("RoomOpened(%q), want call-20", room)
		}
	case <-time.After(time.Second):
		t.Fatalf("tracker never saw the room open")
	}
	select {
	case <-tracker.closed:
		t.Fatalf("room reported closed while the session still runs")
	default:
	}

	close(release)
	select {
	case room := <-tracker.closed:
		if room != "call-20" {
			t.Fatalf("RoomClosed(%q), want call-20", room)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("tracker never saw the room close")
	}
}

func TestDispatchDiscardsJobWithoutRoom(t *testing.T) {
	called := false
	w := New(config.SignalingSettings{URL: "ws://x", APIKey: "k", APISecret: "s"}, "",
		func(context.Context, Job, *voice.VAD) error { called = true; return nil }, nil, nil)

	w.dispatch(context.Background(), Job{ID: "J2"})
	if called {
		t.Fatalf("handler ran for a job without a room")
	}
	if got := w.ActiveJobs(); got != 0 {
		t.Fatalf("ActiveJobs() = %d, want 0", got)
	}
}
