package server

import (
	"net/http"
	"strings"

	"prdforge/internal/logging"
	"prdforge/internal/prd"
	"prdforge/internal/services"
	"prdforge/internal/store"
)

type summarizeRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	out, err := s.components.Generator.MiniSummary(r.Context(), req.Text)
	if err != nil {
		s.writeFailure(w, r, "summary generation failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"summary": out})
}

type overviewRequest struct {
	PreviousOverview string `json:"previousOverview"`
	NewSummary       string `json:"newSummary"`
	ProjectID        string `json:"projectId"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	var req overviewRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.NewSummary) == "" {
		s.writeError(w, http.StatusBadRequest, "newSummary is required")
		return
	}
	ctx := services.WithProjectID(r.Context(), req.ProjectID)
	out, err := s.components.Generator.Overview(ctx, req.PreviousOverview, req.NewSummary)
	if err != nil {
		s.writeFailure(w, r, "overview generation failed", err)
		return
	}
	if projectID := strings.TrimSpace(req.ProjectID); projectID != "" && s.components.State != nil {
		if err := s.components.State.SetOverview(ctx, projectID, out); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, s.logger), "failed to store overview", "overview_store_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "live sessions for this project start from an older overview"),
			)
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"overview": out})
}

type generateRequest struct {
	ProjectID     string        `json:"projectId"`
	Transcription string        `json:"transcription"`
	Summaries     []prd.Summary `json:"summaries"`
	Title         string        `json:"title"`
}

type generateResponse struct {
	PRD      prd.Document `json:"prd"`
	Markdown string       `json:"markdown"`
}

// handleGeneratePRD prefers summaries over the transcript. With a projectId
// and no inline input, the project's stored summaries and transcript are used,
// and the rendered Markdown is saved back to the project.
func (s *Server) handleGeneratePRD(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	projectID := strings.TrimSpace(req.ProjectID)
	ctx := services.WithProjectID(r.Context(), projectID)

	title := strings.TrimSpace(req.Title)
	if projectID != "" && len(req.Summaries) == 0 && strings.TrimSpace(req.Transcription) == "" {
		generated, err := prd.GenerateForProject(ctx, s.components.Store, s.components.Generator, projectID, title)
		if err != nil {
			s.writeFailure(w, r, "PRD generation failed", err)
			return
		}
		s.writeJSON(w, http.StatusOK, generateResponse{PRD: generated.Document, Markdown: generated.Markdown})
		return
	}

	doc, err := prd.GenerateDocument(ctx, s.components.Generator, req.Summaries, req.Transcription)
	if err != nil {
		s.writeFailure(w, r, "PRD generation failed", err)
		return
	}
	markdown := prd.ToMarkdown(doc, title)

	if projectID != "" {
		status := store.StatusGenerated
		if _, err := s.components.Store.UpdateProject(ctx, projectID, store.ProjectUpdate{PRDContent: &markdown, Status: &status}); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, s.logger), "failed to save generated PRD", "prd_save_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "PRD returned to the caller but not stored on the project"),
			)
		}
	}
	s.writeJSON(w, http.StatusOK, generateResponse{PRD: doc, Markdown: markdown})
}
