package tools

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aalghamdi/voicedesk/internal/observability"
	"github.com/aalghamdi/voicedesk/internal/store"
)

// Server exposes one domain's tools over HTTP for pipelines to invoke.
// Save outcomes are counted by the recorder wrapped into each tool, not here.
type Server struct {
	name    string
	tools   map[string]Tool
	records store.Store
	logger  *slog.Logger
}

func NewServer(name string, records store.Store, logger *slog.Logger, ts ...Tool) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]Tool, len(ts))
	for _, t := range ts {
		byName[t.Name] = t
	}
	return &Server{
		name:    name,
		tools:   byName,
		records: records,
		logger:  logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "server": s.name})
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/tools", s.handleListTools)
	r.Post("/tools/{name}", s.handleCallTool)
	r.Get("/records/{id}", s.handleGetRecord)
	return r
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	defs := make([]Definition, 0, len(s.tools))
	for _, t := range s.tools {
		defs = append(defs, t.Definition)
	}
	respondJSON(w, http.StatusOK, map[string]any{"server": s.name, "tools": defs})
}

type callRequest struct {
	Arguments map[string]any `json:"arguments"`
}

type callResponse struct {
	Result string `json:"result"`
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tool, ok := s.tools[name]
	if !ok {
		respondDetail(w, http.StatusNotFound, "unknown_tool", "unknown tool: "+name)
		return
	}

	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result := tool.Handler(r.Context(), req.Arguments)
	respondJSON(w, http.StatusOK, callResponse{Result: result})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.records.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			respondDetail(w, http.StatusNotFound, "record_not_found", "no record with id "+id)
			return
		}
		s.logger.Error("record lookup failed", "id", id, "error", err)
		respondDetail(w, http.StatusInternalServerError, "lookup_failed", "failed to look up record")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondDetail(w http.ResponseWriter, status int, code, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail, "error_code": code})
}
