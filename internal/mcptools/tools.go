// Package mcptools exposes projects, summaries, and PRD generation to MCP
// clients over stdio.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"prdforge/internal/logging"
	"prdforge/internal/prd"
	"prdforge/internal/services"
	"prdforge/internal/store"
)

// Projects is the store surface the tools read and write.
type Projects interface {
	prd.ProjectStore
	ListProjects(ctx context.Context) ([]*store.Project, error)
}

// Generator is the PRD generator surface the tools call.
type Generator interface {
	prd.DocumentGenerator
	MiniSummary(ctx context.Context, text string) (string, error)
}

// Tools holds the handlers.
type Tools struct {
	projects  Projects
	generator Generator
	logger    *slog.Logger
}

// New constructs the tool handlers.
func New(projects Projects, generator Generator, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tools{
		projects:  projects,
		generator: generator,
		logger:    logging.NewComponentLogger(logger, "mcp"),
	}
}

// Server registers every tool on a new MCP server.
func (t *Tools) Server(version string) *server.MCPServer {
	s := server.NewMCPServer("prdforge", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("list_projects",
		mcp.WithDescription("List recording projects, newest first, with status and PRD availability."),
	), t.ListProjects)

	s.AddTool(mcp.NewTool("get_project",
		mcp.WithDescription("Get one project including its transcript, summary, and generated PRD Markdown."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Project ID")),
	), t.GetProject)

	s.AddTool(mcp.NewTool("list_summaries",
		mcp.WithDescription("List a project's rolling mini summaries in recording order."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project ID")),
	), t.ListSummaries)

	s.AddTool(mcp.NewTool("generate_prd",
		mcp.WithDescription("Generate a PRD for a project from its summaries (or transcript) and store the Markdown on the project."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project ID")),
		mcp.WithString("title", mcp.Description("Document title; defaults to the project title")),
	), t.GeneratePRD)

	s.AddTool(mcp.NewTool("summarize_text",
		mcp.WithDescription("Compress a transcript excerpt into a short summary of its requirement points."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Transcript text")),
	), t.SummarizeText)

	return s
}

// Serve runs the MCP server over stdio until the client disconnects.
func (t *Tools) Serve(version string) error {
	return server.ServeStdio(t.Server(version))
}

type projectRow struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Status    store.Status `json:"status"`
	Version   int          `json:"version"`
	HasPRD    bool         `json:"hasPrd"`
	UpdatedAt string       `json:"updatedAt"`
}

// ListProjects handles list_projects.
func (t *Tools) ListProjects(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := t.projects.ListProjects(ctx)
	if err != nil {
		return t.failure("list projects", err), nil
	}
	rows := make([]projectRow, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, projectRow{
			ID:        p.ID,
			Title:     p.Title,
			Status:    p.Status,
			Version:   p.Version,
			HasPRD:    strings.TrimSpace(p.PRDContent) != "",
			UpdatedAt: p.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return jsonResult(rows)
}

// GetProject handles get_project.
func (t *Tools) GetProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	project, err := t.projects.GetProject(ctx, id)
	if err != nil {
		return t.failure("get project", err), nil
	}
	return jsonResult(project)
}

// ListSummaries handles list_summaries.
func (t *Tools) ListSummaries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	summaries, err := t.projects.ListMiniSummaries(ctx, projectID)
	if err != nil {
		return t.failure("list summaries", err), nil
	}
	if len(summaries) == 0 {
		return mcp.NewToolResultText("no summaries recorded for this project"), nil
	}
	return mcp.NewToolResultText(prd.FormatSummaries(prd.FromStored(summaries))), nil
}

// GeneratePRD handles generate_prd.
func (t *Tools) GeneratePRD(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ctx = services.WithProjectID(ctx, projectID)
	generated, err := prd.GenerateForProject(ctx, t.projects, t.generator, projectID, req.GetString("title", ""))
	if err != nil {
		return t.failure("generate prd", err), nil
	}
	markdown := generated.Markdown
	t.logger.Info("prd generated", logging.String(logging.FieldProjectID, projectID), logging.Int("chars", len([]rune(markdown))))
	return mcp.NewToolResultText(markdown), nil
}

// SummarizeText handles summarize_text.
func (t *Tools) SummarizeText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := t.generator.MiniSummary(ctx, text)
	if err != nil {
		return t.failure("summarize", err), nil
	}
	return mcp.NewToolResultText(out), nil
}

// failure turns err into a tool error result. Tool errors are reported to
// the model, not the transport.
func (t *Tools) failure(op string, err error) *mcp.CallToolResult {
	if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrValidation) {
		t.logger.Info("tool rejected", logging.String("op", op), logging.Error(err))
	} else {
		logging.WarnWithContext(t.logger, "tool failed", "mcp_tool_failed",
			logging.String("op", op),
			logging.Error(err),
		)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", op, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
