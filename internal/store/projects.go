package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"prdforge/internal/services"
)

const projectColumns = "id, title, raw_text, summary, prd_content, audio_url, user_id, status, version, created_at, updated_at"

// CreateProject inserts a draft project.
func (s *Store) CreateProject(ctx context.Context, in NewProject) (*Project, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "create project", "title required", nil)
	}
	id := uuid.NewString()
	ts := s.timestamp()
	status := StatusDraft
	if strings.TrimSpace(in.RawText) != "" {
		status = StatusTranscribed
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO projects (id, title, raw_text, audio_url, user_id, status, version, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id, title, nullableString(in.RawText), nullableString(in.AudioURL), nullableString(in.UserID),
		status, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return s.GetProject(ctx, id)
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(ErrNotFound, "store", "get project", id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// ListProjects returns every project, most recently updated first.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+projectColumns+` FROM projects ORDER BY updated_at DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// UpdateProject applies a partial update and bumps the version.
func (s *Store) UpdateProject(ctx context.Context, id string, update ProjectUpdate) (*Project, error) {
	if update.Status != nil && !update.Status.Valid() {
		return nil, services.Wrap(services.ErrValidation, "store", "update project", fmt.Sprintf("unknown status %q", *update.Status), nil)
	}
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "update project", "title must not be empty", nil)
	}
	if update.empty() {
		return s.GetProject(ctx, id)
	}

	sets := make([]string, 0, 8)
	args := make([]any, 0, 8)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if update.Title != nil {
		add("title", strings.TrimSpace(*update.Title))
	}
	if update.RawText != nil {
		add("raw_text", nullableString(*update.RawText))
	}
	if update.Summary != nil {
		add("summary", nullableString(*update.Summary))
	}
	if update.PRDContent != nil {
		add("prd_content", nullableString(*update.PRDContent))
	}
	if update.AudioURL != nil {
		add("audio_url", nullableString(*update.AudioURL))
	}
	if update.Status != nil {
		add("status", string(*update.Status))
	}
	sets = append(sets, "version = version + 1")
	add("updated_at", s.timestamp())
	args = append(args, id)

	res, err := s.execWithRetry(ctx,
		`UPDATE projects SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, services.Wrap(ErrNotFound, "store", "update project", id, nil)
	}
	return s.GetProject(ctx, id)
}

// DeleteProject removes a project and, through the foreign key, its summaries.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(ErrNotFound, "store", "delete project", id, nil)
	}
	return nil
}

func scanProject(scanner interface{ Scan(dest ...any) error }) (*Project, error) {
	var (
		p          Project
		rawText    sql.NullString
		summary    sql.NullString
		prdContent sql.NullString
		audioURL   sql.NullString
		userID     sql.NullString
		status     string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&p.ID,
		&p.Title,
		&rawText,
		&summary,
		&prdContent,
		&audioURL,
		&userID,
		&status,
		&p.Version,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	p.RawText = rawText.String
	p.Summary = summary.String
	p.PRDContent = prdContent.String
	p.AudioURL = audioURL.String
	p.UserID = userID.String
	p.Status = Status(status)
	if created, err := parseTimeString(createdRaw); err == nil {
		p.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		p.UpdatedAt = updated
	}
	return &p, nil
}
