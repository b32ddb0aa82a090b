package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/runlet/runlet/internal/engine"
	"github.com/runlet/runlet/internal/history"
	"github.com/runlet/runlet/internal/script"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ScriptsLoaded: len(s.registry.List()),
		CacheEntries:  s.cache.Len(),
		ActiveRuns:    s.gate.InUse(),
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleListScripts handles GET /scripts.
func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.registry.List())
}

// handleCreateScript handles POST /scripts. The new script is registered
// immediately so it is runnable without waiting for the next scan.
func (s *Server) handleCreateScript(w http.ResponseWriter, r *http.Request) {
	var req CreateScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.store.Save(req.Name, []byte(req.Code)); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.registry.Register(req.Name)
	s.publish("script.created", map[string]any{"script": req.Name})

	s.logger.Info("script created", "script", req.Name, "bytes", len(req.Code))
	w.WriteHeader(http.StatusCreated)
}

// handleUpdateScript handles PUT /scripts/{name}.
func (s *Server) handleUpdateScript(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req UpdateScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.store.ValidateName(name); err != nil {
		s.writeEngineError(w, err)
		return
	}
	if !s.store.Exists(name) {
		s.writeError(w, http.StatusNotFound, "script not found")
		return
	}
	if err := s.store.Save(name, []byte(req.Code)); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.publish("script.updated", map[string]any{"script": name})

	w.WriteHeader(http.StatusOK)
}

// handleDeleteScript handles DELETE /scripts/{name}.
func (s *Server) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.store.Delete(name); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.registry.Unregister(name)
	s.publish("script.deleted", map[string]any{"script": name})

	w.WriteHeader(http.StatusNoContent)
}

// handleRunMany handles POST /run. Targets come from the comma-separated
// "names" query parameter; when absent, every registered script runs, and
// when present but empty, nothing runs. The
// aggregate call always succeeds structurally; per-target failures are
// embedded in the result map.
func (s *Server) handleRunMany(w http.ResponseWriter, r *http.Request) {
	args, input, ok := s.decodeRunRequest(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	var names []string
	if query.Has("names") {
		for _, part := range strings.Split(query.Get("names"), ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				names = append(names, part)
			}
		}
		// A names parameter that yields no targets means "run nothing";
		// only an absent parameter means "run all registered".
		if len(names) == 0 {
			respondJSON(w, http.StatusOK, RunResponse{Results: map[string]engine.Result{}})
			return
		}
	}

	results := s.runner.RunMany(r.Context(), names, args, input)
	respondJSON(w, http.StatusOK, RunResponse{Results: results})
}

// handleRunOne handles POST /run/{name}.
func (s *Server) handleRunOne(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	args, input, ok := s.decodeRunRequest(w, r)
	if !ok {
		return
	}

	result, err := s.runner.Run(r.Context(), name, args, input)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleHistory handles GET /history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	resp := HistoryResponse{Runs: []history.Entry{}}
	if s.history != nil {
		runs, err := s.history.Recent(r.Context(), 50)
		if err != nil {
			s.logger.Error("failed to read run history", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to read run history")
			return
		}
		if runs != nil {
			resp.Runs = runs
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// decodeRunRequest parses the shared run request body. A missing data field
// is delivered to the script as JSON null, matching what a caller that sent
// {"data": null} would get.
func (s *Server) decodeRunRequest(w http.ResponseWriter, r *http.Request) (args []string, input []byte, ok bool) {
	var req RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return nil, nil, false
		}
	}

	input = []byte(req.Data)
	if len(input) == 0 {
		input = []byte("null")
	}
	return req.Args, input, true
}

// writeEngineError maps engine/script errors to HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, script.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, script.ErrInvalidName):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrTimeout):
		s.writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) publish(eventType string, data any) {
	if s.events != nil {
		s.events.Publish(eventType, data)
	}
}

// respondJSON is a helper to write JSON responses.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
