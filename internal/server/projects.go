package server

import (
	"net/http"
	"strings"

	"prdforge/internal/store"
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.components.Store.ListProjects(r.Context())
	if err != nil {
		s.writeFailure(w, r, "failed to list projects", err)
		return
	}
	if projects == nil {
		projects = []*store.Project{}
	}
	s.writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var in store.NewProject
	if !s.decodeJSON(w, r, &in) {
		return
	}
	project, err := s.components.Store.CreateProject(r.Context(), in)
	if err != nil {
		s.writeFailure(w, r, "failed to create project", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.components.Store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, "project unavailable", err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var update store.ProjectUpdate
	if !s.decodeJSON(w, r, &update) {
		return
	}
	project, err := s.components.Store.UpdateProject(r.Context(), r.PathValue("id"), update)
	if err != nil {
		s.writeFailure(w, r, "failed to update project", err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.components.Store.DeleteProject(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, r, "failed to delete project", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleListMiniSummaries(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("projectId"))
	if projectID == "" {
		s.writeError(w, http.StatusBadRequest, "projectId query parameter required")
		return
	}
	summaries, err := s.components.Store.ListMiniSummaries(r.Context(), projectID)
	if err != nil {
		s.writeFailure(w, r, "failed to list summaries", err)
		return
	}
	if summaries == nil {
		summaries = []*store.MiniSummary{}
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

type miniSummaryRequest struct {
	ProjectID string `json:"project_id"`
	Timestamp *int   `json:"timestamp"`
	Content   string `json:"content"`
}

func (s *Server) handleCreateMiniSummary(w http.ResponseWriter, r *http.Request) {
	var req miniSummaryRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" || req.Timestamp == nil || strings.TrimSpace(req.Content) == "" {
		s.writeError(w, http.StatusBadRequest, "project_id, timestamp, and content are required")
		return
	}
	created, err := s.components.Store.CreateMiniSummary(r.Context(), req.ProjectID, *req.Timestamp, req.Content)
	if err != nil {
		s.writeFailure(w, r, "failed to create summary", err)
		return
	}
	s.writeJSON(w, http.StatusOK, created)
}

type batchSummaryRequest struct {
	ProjectID string               `json:"project_id"`
	Summaries []store.SummaryInput `json:"summaries"`
}

type batchSummaryResponse struct {
	Success   bool                 `json:"success"`
	Count     int                  `json:"count"`
	Summaries []*store.MiniSummary `json:"summaries"`
}

func (s *Server) handleCreateMiniSummaries(w http.ResponseWriter, r *http.Request) {
	var req batchSummaryRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		s.writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if req.Summaries == nil {
		s.writeError(w, http.StatusBadRequest, "summaries must be an array")
		return
	}
	created, err := s.components.Store.CreateMiniSummaries(r.Context(), req.ProjectID, req.Summaries)
	if err != nil {
		s.writeFailure(w, r, "failed to create summaries", err)
		return
	}
	if created == nil {
		created = []*store.MiniSummary{}
	}
	s.writeJSON(w, http.StatusOK, batchSummaryResponse{Success: true, Count: len(created), Summaries: created})
}
