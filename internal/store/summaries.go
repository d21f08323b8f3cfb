package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"prdforge/internal/services"
)

const summaryColumns = "id, project_id, timestamp, content, created_at"

// CreateMiniSummary stores a summary for one window. A second write for the
// same (project, timestamp) replaces the content and keeps the original id.
func (s *Store) CreateMiniSummary(ctx context.Context, projectID string, timestamp int, content string) (*MiniSummary, error) {
	content = strings.TrimSpace(content)
	if projectID == "" || content == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "create mini summary", "projectId and content required", nil)
	}
	if timestamp < 0 {
		return nil, services.Wrap(services.ErrValidation, "store", "create mini summary", "timestamp must not be negative", nil)
	}
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO mini_summaries (id, project_id, timestamp, content, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(project_id, timestamp) DO UPDATE SET content = excluded.content`,
		uuid.NewString(), projectID, timestamp, content, s.timestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert mini summary: %w", err)
	}
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+summaryColumns+` FROM mini_summaries WHERE project_id = ? AND timestamp = ?`,
		projectID, timestamp)
	summary, err := scanSummary(row)
	if err != nil {
		return nil, fmt.Errorf("read mini summary: %w", err)
	}
	return summary, nil
}

// CreateMiniSummaries inserts a batch, skipping blank entries. It returns the
// stored rows in input order.
func (s *Store) CreateMiniSummaries(ctx context.Context, projectID string, inputs []SummaryInput) ([]*MiniSummary, error) {
	created := make([]*MiniSummary, 0, len(inputs))
	for _, in := range inputs {
		if strings.TrimSpace(in.Content) == "" {
			continue
		}
		summary, err := s.CreateMiniSummary(ctx, projectID, in.Timestamp, in.Content)
		if err != nil {
			return created, err
		}
		created = append(created, summary)
	}
	return created, nil
}

// ListMiniSummaries returns a project's summaries ordered by timestamp.
func (s *Store) ListMiniSummaries(ctx context.Context, projectID string) ([]*MiniSummary, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+summaryColumns+` FROM mini_summaries WHERE project_id = ? ORDER BY timestamp ASC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list mini summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*MiniSummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mini summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func scanSummary(scanner interface{ Scan(dest ...any) error }) (*MiniSummary, error) {
	var (
		m          MiniSummary
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&m.ID, &m.ProjectID, &m.Timestamp, &m.Content, &createdRaw); err != nil {
		return nil, err
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		m.CreatedAt = created
	}
	return &m, nil
}
