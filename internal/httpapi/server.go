package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aalghamdi/voicedesk/internal/config"
	"github.com/aalghamdi/voicedesk/internal/observability"
	"github.com/aalghamdi/voicedesk/internal/signaling"
)

// RoomService is the slice of the signaling layer the API needs.
type RoomService interface {
	Create(ctx context.Context, name string, emptyTimeout, maxParticipants int) (*signaling.Room, error)
	List(ctx context.Context) ([]signaling.Room, error)
}

// TokenService mints participant access tokens.
type TokenService interface {
	ParticipantToken(room, participantName, identity string, ttl time.Duration) (string, error)
	ServerURL() string
}

// Server is the management API. It shares no in-process session state with
// the agent worker; only the configuration and the process-wide status.
type Server struct {
	configPath string
	cfg        *config.ApplicationSettings
	status     *AgentStatus
	tokens     TokenService
	rooms      RoomService
	logger     *slog.Logger
}

func New(configPath string, cfg *config.ApplicationSettings, status *AgentStatus, tokens TokenService, rooms RoomService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if status == nil {
		status = NewAgentStatus()
	}
	return &Server{
		configPath: configPath,
		cfg:        cfg,
		status:     status,
		tokens:     tokens,
		rooms:      rooms,
		logger:     logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/config", s.handleConfig)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, req)
	})
	r.Post("/api/token", s.handleToken)
	r.Post("/api/room/create", s.handleRoomCreate)
	r.Get("/api/room/list", s.handleRoomList)
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"service":  "voicedesk management api",
		"use_case": s.cfg.UseCase,
	})
}

// handleHealth re-parses the configuration document so a broken config file
// turns the health check red before the next agent restart does.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.configPath != "" {
		if _, err := config.Load(s.configPath, s.logger); err != nil {
			respondError(w, http.StatusInternalServerError, "config_invalid", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"agent":    s.status.Snapshot(),
		"pipeline": s.pipelineView(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.pipelineView())
}

// pipelineView is the non-secret configuration slice: model identifiers and
// base URLs stay, credentials never appear (they are unexported and invisible
// to the JSON encoder).
func (s *Server) pipelineView() map[string]any {
	uc := s.cfg.CurrentUseCase()
	return map[string]any{
		"use_case":        s.cfg.UseCase,
		"use_case_name":   uc.Name,
		"valid_use_cases": s.cfg.ValidUseCases(),
		"tool_servers":    uc.ToolServers,
		"llm":             s.cfg.LLM,
		"stt":             s.cfg.STT,
		"tts":             s.cfg.TTS,
		"signaling_url":   s.cfg.Signaling.URL,
	}
}

type tokenRequest struct {
	Room            string `json:"room"`
	ParticipantName string `json:"participant_name"`
	Identity        string `json:"identity,omitempty"`
	TTLSeconds      int    `json:"ttl_seconds,omitempty"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if req.Room == "" || req.ParticipantName == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "room and participant_name are required")
		return
	}
	token, err := s.tokens.ParticipantToken(req.Room, req.ParticipantName, req.Identity, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		s.respondSignalingError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"url":   s.tokens.ServerURL(),
	})
}

type roomCreateRequest struct {
	Name            string `json:"name"`
	EmptyTimeout    int    `json:"empty_timeout,omitempty"`
	MaxParticipants int    `json:"max_participants,omitempty"`
}

func (s *Server) handleRoomCreate(w http.ResponseWriter, r *http.Request) {
	var req roomCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	room, err := s.rooms.Create(r.Context(), req.Name, req.EmptyTimeout, req.MaxParticipants)
	if err != nil {
		s.respondSignalingError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, room)
}

func (s *Server) handleRoomList(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.List(r.Context())
	if err != nil {
		s.respondSignalingError(w, err)
		return
	}
	if rooms == nil {
		rooms = []signaling.Room{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *Server) respondSignalingError(w http.ResponseWriter, err error) {
	if errors.Is(err, signaling.ErrNotConfigured) {
		respondError(w, http.StatusInternalServerError, "signaling_not_configured",
			"signaling connectivity settings are not configured")
		return
	}
	s.logger.Error("signaling request failed", "error", err)
	respondError(w, http.StatusBadGateway, "signaling_error", err.Error())
}

type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, detail string) {
	respondJSON(w, status, errorResponse{Detail: detail, ErrorCode: code})
}
