package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/rmtj/malup/internal/auth"
	"github.com/rmtj/malup/internal/formatter"
	"github.com/rmtj/malup/internal/shared"
	"github.com/rmtj/malup/internal/tasks"
)

// PipelineHandler exposes the preview, confirm, and snapshot pipelines as
// JSON endpoints. Implements the Handler interface for registration with a Router.
type PipelineHandler struct {
	pipeline tasks.Pipeline
	logger   *log.Logger
}

// NewPipelineHandler creates the pipeline surface.
func NewPipelineHandler(pipeline tasks.Pipeline, logger *log.Logger) *PipelineHandler {
	return &PipelineHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *PipelineHandler) Routes() []string {
	return []string{"/preview-shows", "/add-shows", "/my-list", "/my-list/export"}
}

// ServeHTTP dispatches to the route-specific handlers.
func (h *PipelineHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/preview-shows":
		h.handlePreview(w, r)
	case "/add-shows":
		h.handleAdd(w, r)
	case "/my-list":
		h.handleList(w, r)
	case "/my-list/export":
		h.handleExport(w, r)
	default:
		http.NotFound(w, r)
	}
}

// showsRequest is the body of both batch endpoints. The confirm endpoint
// accepts either a previously previewed plan (matches) or raw lines (shows).
type showsRequest struct {
	Shows   []string              `json:"shows"`
	Matches []tasks.PlannedUpdate `json:"matches"`
}

func (h *PipelineHandler) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req showsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess := h.session(r)
	results, err := h.pipeline.Preview(r.Context(), sess, req.Shows, nil)
	if err != nil {
		if errors.Is(err, shared.ErrAuthRequired) {
			writeError(w, http.StatusUnauthorized, "Authentication required. Log in with MAL before previewing shows.")
			return
		}
		h.logger.Error("Preview failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to preview shows.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *PipelineHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req showsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess := h.session(r)
	results, err := h.pipeline.Confirm(r.Context(), sess, req.Matches, req.Shows, nil)
	if err != nil {
		if errors.Is(err, shared.ErrAuthRequired) {
			writeError(w, http.StatusUnauthorized, "Authentication required. Log in with MAL before adding shows.")
			return
		}
		h.logger.Error("Confirm failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to add shows.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *PipelineHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	entries, err := h.pipeline.Snapshot(r.Context(), h.session(r), nil)
	if err != nil {
		if errors.Is(err, shared.ErrAuthRequired) {
			writeError(w, http.StatusUnauthorized, "Authentication required. Log in with MAL to view your list.")
			return
		}
		h.logger.Error("Snapshot failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load MAL list.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": entries})
}

// handleExport streams the snapshot as a downloadable file in the format
// named by the query parameter (default csv).
func (h *PipelineHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = formatter.FormatCSV
	}

	entries, err := h.pipeline.Snapshot(r.Context(), h.session(r), nil)
	if err != nil {
		if errors.Is(err, shared.ErrAuthRequired) {
			writeError(w, http.StatusUnauthorized, "Authentication required. Log in with MAL to view your list.")
			return
		}
		h.logger.Error("Snapshot failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load MAL list.")
		return
	}

	data, err := formatter.Export(entries, format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", formatter.ContentType(format))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=animelist.%s", formatter.Extension(format)))
	w.Write(data)
}

// session resolves the request's token session, substituting an empty
// standalone one when no session middleware ran so the pipelines still
// produce their AuthRequired verdict.
func (h *PipelineHandler) session(r *http.Request) *auth.Session {
	if sess := SessionFrom(r.Context()); sess != nil {
		return sess
	}
	return auth.NewSession(nil, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
