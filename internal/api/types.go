package api

import (
	"encoding/json"

	"github.com/runlet/runlet/internal/engine"
	"github.com/runlet/runlet/internal/history"
)

// RunRequest is the body for POST /run and POST /run/{name}. Data is
// re-serialized verbatim and delivered on the script's stdin.
type RunRequest struct {
	Data json.RawMessage `json:"data"`
	Args []string        `json:"args,omitempty"`
}

// RunResponse is the fan-out response: one outcome per target name.
type RunResponse struct {
	Results map[string]engine.Result `json:"results"`
}

// CreateScriptRequest is the body for POST /scripts.
type CreateScriptRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// UpdateScriptRequest is the body for PUT /scripts/{name}.
type UpdateScriptRequest struct {
	Code string `json:"code"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ScriptsLoaded int    `json:"scripts_loaded"`
	CacheEntries  int    `json:"cache_entries"`
	ActiveRuns    int    `json:"active_runs"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Runs []history.Entry `json:"runs"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
