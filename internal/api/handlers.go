package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/autovid/autovid/internal/db"
	"github.com/autovid/autovid/internal/models"
	"github.com/autovid/autovid/internal/pipeline"
)

type Handler struct {
	db   *db.DB
	orch *pipeline.Orchestrator
}

func NewHandler(database *db.DB, orch *pipeline.Orchestrator) *Handler {
	return &Handler{
		db:   database,
		orch: orch,
	}
}

// CreateProject handles POST /v1/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Topic == "" {
		respondError(w, http.StatusBadRequest, "Topic is required")
		return
	}

	chapters := 5
	if req.Chapters != nil && *req.Chapters > 0 {
		chapters = *req.Chapters
	}

	format := models.FormatLong
	if req.VideoFormat != nil {
		switch models.VideoFormat(*req.VideoFormat) {
		case models.FormatLong, models.FormatShorts:
			format = models.VideoFormat(*req.VideoFormat)
		default:
			respondError(w, http.StatusBadRequest, "video_format must be \"long\" or \"shorts\"")
			return
		}
	}

	priority := 0
	if req.Priority != nil {
		priority = *req.Priority
	}

	project := &models.Project{
		Topic:       req.Topic,
		Chapters:    chapters,
		VideoFormat: format,
		Priority:    priority,
	}
	if err := h.db.CreateProject(r.Context(), project); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}
	if err := h.db.EnsureStages(r.Context(), project.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create stage records")
		return
	}

	taskID, err := h.orch.StartPipeline(r.Context(), project)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to start pipeline")
		return
	}
	if err := h.db.SetProjectTaskID(r.Context(), project.ID, taskID); err != nil {
		log.Printf("[API] Failed to record task id for project %d: %v", project.ID, err)
	}

	respondJSON(w, http.StatusCreated, models.CreateProjectResponse{
		ProjectID: project.ID,
		TaskID:    taskID,
	})
}

// ListProjects handles GET /v1/projects
// Query params: limit (default 20, max 100), offset (default 0).
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	projects, err := h.db.ListProjects(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}
	total, err := h.db.CountProjects(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count projects")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"projects": projects,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetProject handles GET /v1/projects/{id} — project row plus its stage
// table.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r)
	if !ok {
		return
	}

	project, err := h.db.GetProject(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}
	stages, err := h.db.GetStages(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load stages")
		return
	}

	respondJSON(w, http.StatusOK, models.ProjectResponse{
		Project: *project,
		Stages:  stages,
	})
}

// PauseProject handles POST /v1/projects/{id}/pause. In-flight stages run
// to completion; continuations are dropped at the next stage boundary.
func (h *Handler) PauseProject(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// ResumeProject handles POST /v1/projects/{id}/resume. Dropped submissions
// are not replayed; use stage retry to pick up where the pipeline stopped.
func (h *Handler) ResumeProject(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *Handler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	id, ok := h.projectID(w, r)
	if !ok {
		return
	}
	if err := h.db.SetProjectPaused(r.Context(), id, paused); err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "paused": paused})
}

// RetryStage handles POST /v1/projects/{id}/stages/{name}/retry.
func (h *Handler) RetryStage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r)
	if !ok {
		return
	}
	stageName := chi.URLParam(r, "name")
	if !models.ValidStage(stageName) {
		respondError(w, http.StatusBadRequest, "Unknown stage")
		return
	}

	project, err := h.db.GetProject(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}
	if err := h.orch.RetryStage(r.Context(), project, models.StageName(stageName)); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue retry")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{"id": id, "stage": stageName})
}

// DeleteProject handles DELETE /v1/projects/{id}.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r)
	if !ok {
		return
	}
	if err := h.db.DeleteProject(r.Context(), id); err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) projectID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid project id")
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
