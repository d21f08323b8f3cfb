package prd

import (
	"context"
	"strings"

	"prdforge/internal/services"
	"prdforge/internal/store"
)

// DocumentGenerator builds documents from either source.
type DocumentGenerator interface {
	GeneratePRD(ctx context.Context, transcript string) (Document, error)
	GeneratePRDFromSummaries(ctx context.Context, summaries []Summary) (Document, error)
}

// ProjectStore is the store surface project generation reads and writes.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*store.Project, error)
	ListMiniSummaries(ctx context.Context, projectID string) ([]*store.MiniSummary, error)
	UpdateProject(ctx context.Context, id string, update store.ProjectUpdate) (*store.Project, error)
}

// GenerateDocument builds a PRD from summaries when any carry content, else
// from the transcript. Neither present is a validation error.
func GenerateDocument(ctx context.Context, gen DocumentGenerator, summaries []Summary, transcript string) (Document, error) {
	for _, s := range summaries {
		if strings.TrimSpace(s.Content) != "" {
			return gen.GeneratePRDFromSummaries(ctx, summaries)
		}
	}
	if strings.TrimSpace(transcript) != "" {
		return gen.GeneratePRD(ctx, transcript)
	}
	return Document{}, services.Wrap(services.ErrValidation, "prd", "generate", "transcription or summaries required", nil)
}

// Generated is the outcome of GenerateForProject.
type Generated struct {
	Project  *store.Project
	Document Document
	Markdown string
}

// GenerateForProject builds a PRD from a project's stored summaries, falling
// back to its raw transcript, renders it under title (the project title when
// blank), and saves the Markdown on the project.
func GenerateForProject(ctx context.Context, st ProjectStore, gen DocumentGenerator, projectID, title string) (Generated, error) {
	project, err := st.GetProject(ctx, projectID)
	if err != nil {
		return Generated{}, err
	}
	stored, err := st.ListMiniSummaries(ctx, projectID)
	if err != nil {
		return Generated{}, err
	}
	doc, err := GenerateDocument(ctx, gen, FromStored(stored), project.RawText)
	if err != nil {
		return Generated{}, err
	}
	if strings.TrimSpace(title) == "" {
		title = project.Title
	}
	markdown := ToMarkdown(doc, title)
	status := store.StatusGenerated
	updated, err := st.UpdateProject(ctx, projectID, store.ProjectUpdate{PRDContent: &markdown, Status: &status})
	if err != nil {
		return Generated{}, err
	}
	return Generated{Project: updated, Document: doc, Markdown: markdown}, nil
}

// FromStored converts stored mini summaries.
func FromStored(stored []*store.MiniSummary) []Summary {
	out := make([]Summary, 0, len(stored))
	for _, s := range stored {
		out = append(out, Summary{Content: s.Content, Timestamp: s.Timestamp})
	}
	return out
}
