package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aalghamdi/voicedesk/internal/config"
	"github.com/aalghamdi/voicedesk/internal/observability"
	"github.com/aalghamdi/voicedesk/internal/reliability"
	"github.com/aalghamdi/voicedesk/internal/signaling"
	"github.com/aalghamdi/voicedesk/internal/voice"
)

const (
	reconnectBase = time.Second
	reconnectCap  = 30 * time.Second
)

// Job is one call assignment from the dispatch socket.
type Job struct {
	ID   string `json:"job_id"`
	Room string `json:"room"`
}

// Handler runs one call session. The voice-activity handle is the shared
// read-only instance loaded at worker startup.
type Handler func(ctx context.Context, job Job, vad *voice.VAD) error

// RoomTracker observes which rooms this worker is currently serving.
type RoomTracker interface {
	RoomOpened(room string)
	RoomClosed(room string)
}

// Worker registers with the signaling server's job-dispatch socket and runs
// the handler once per assigned call, each in its own goroutine.
type Worker struct {
	settings  config.SignalingSettings
	agentName string
	handler   Handler
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracker   RoomTracker

	id  string
	vad *voice.VAD

	mu     sync.Mutex
	active int
}

func New(settings config.SignalingSettings, agentName string, handler Handler, logger *slog.Logger, metrics *observability.Metrics) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(agentName) == "" {
		agentName = "voicedesk"
	}
	id := uuid.NewString()
	return &Worker{
		settings:  settings,
		agentName: agentName,
		handler:   handler,
		logger:    logger.With("worker_id", id),
		metrics:   metrics,
		id:        id,
	}
}

// TrackRooms registers the status record that mirrors the active room set.
// Call it before Run.
func (w *Worker) TrackRooms(t RoomTracker) { w.tracker = t }

// Run connects, registers and dispatches jobs until ctx is cancelled,
// reconnecting with capped backoff on socket failure. The voice-activity
// model is loaded once here, before the first call can arrive.
func (w *Worker) Run(ctx context.Context) error {
	if w.settings.Unset() {
		return signaling.ErrNotConfigured
	}
	w.vad = voice.LoadVAD(w.logger)

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.serveConnection(ctx)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		delay := reliability.Backoff(attempt, reconnectBase, reconnectCap)
		attempt++
		w.logger.Warn("dispatch socket lost, reconnecting",
			"error", err, "attempt", attempt, "delay", delay.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (w *Worker) serveConnection(ctx context.Context) error {
	u := strings.TrimRight(w.settings.URL, "/") + "/agent/worker"
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+w.settings.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, headers)
	if err != nil {
		return fmt.Errorf("dial dispatch socket: %w", err)
	}
	defer conn.Close()

	register := map[string]any{
		"type":       "register",
		"worker_id":  w.id,
		"agent_name": w.agentName,
	}
	if err := conn.WriteJSON(register); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	w.logger.Info("registered with dispatch socket", "agent_name", w.agentName)

	// Unblock ReadMessage when the worker is asked to stop.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read dispatch socket: %w", err)
		}
		var msg struct {
			Type string `json:"type"`
			Job
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			w.logger.Warn("discarding malformed dispatch message", "error", err)
			continue
		}
		switch msg.Type {
		case "job":
			w.dispatch(ctx, msg.Job)
		case "ping":
			_ = conn.WriteJSON(map[string]any{"type": "pong"})
		default:
			// availability and other control frames need no reply
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, job Job) {
	if job.Room == "" {
		w.logger.Warn("discarding job without room", "job_id", job.ID)
		return
	}

	w.mu.Lock()
	w.active++
	w.mu.Unlock()
	if w.metrics != nil {
		w.metrics.ActiveSessions.Inc()
		w.metrics.SessionEvents.WithLabelValues("job_accepted").Inc()
	}
	if w.tracker != nil {
		w.tracker.RoomOpened(job.Room)
	}

	logger := w.logger.With("job_id", job.ID, "room", job.Room)
	logger.Info("job accepted")

	go func() {
		defer func() {
			w.mu.Lock()
			w.active--
			w.mu.Unlock()
			if w.metrics != nil {
				w.metrics.ActiveSessions.Dec()
			}
			if w.tracker != nil {
				w.tracker.RoomClosed(job.Room)
			}
		}()
		if err := w.handler(ctx, job, w.vad); err != nil {
			logger.Error("call session failed", "error", err)
			if w.metrics != nil {
				w.metrics.SessionEvents.WithLabelValues("job_failed").Inc()
			}
			return
		}
		logger.Info("call session finished")
	}()
}

// ActiveJobs reports how many call sessions this worker is running.
func (w *Worker) ActiveJobs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}
