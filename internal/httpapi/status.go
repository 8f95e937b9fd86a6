package httpapi

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aalghamdi/voicedesk/internal/observability"
)

const (
	PhaseReady   = "ready"
	PhaseRunning = "running"
	PhaseStopped = "stopped"
)

// AgentStatus is the process-wide status record echoed by GET /status. The
// server start/stop hooks move the phase; the worker dispatch path reports
// which rooms are being served.
type AgentStatus struct {
	mu        sync.Mutex
	phase     string
	rooms     map[string]int
	startedAt time.Time
}

type StatusSnapshot struct {
	Phase       string    `json:"phase"`
	ActiveRooms []string  `json:"active_rooms"`
	StartedAt   time.Time `json:"started_at"`
}

func NewAgentStatus() *AgentStatus {
	return &AgentStatus{phase: PhaseReady, rooms: make(map[string]int)}
}

func (s *AgentStatus) MarkRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseRunning
	s.startedAt = time.Now().UTC()
}

func (s *AgentStatus) MarkStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseStopped
}

func (s *AgentStatus) RoomOpened(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[name]++
}

func (s *AgentStatus) RoomClosed(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[name] > 1 {
		s.rooms[name]--
		return
	}
	delete(s.rooms, name)
}

func (s *AgentStatus) Snapshot() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return StatusSnapshot{Phase: s.phase, ActiveRooms: names, StartedAt: s.startedAt}
}

// StatusRouter is the minimal surface the agent worker process exposes: its
// status record and the process metrics.
func StatusRouter(status *AgentStatus) http.Handler {
	r := chi.NewRouter()
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, status.Snapshot())
	})
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, req)
	})
	return r
}
