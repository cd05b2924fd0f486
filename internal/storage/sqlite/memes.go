package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/repostsleuth/sleuth/internal/types"
)

type memeTemplateRepo struct {
	tx *sql.Tx
}

func (r *memeTemplateRepo) Add(ctx context.Context, m *types.MemeTemplate) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	result, err := r.tx.ExecContext(ctx, `
		INSERT INTO meme_templates (name, example_post, template_url, hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.Name, m.ExamplePost, m.TemplateURL, m.Hash, m.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert meme template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get meme template id: %w", err)
	}
	m.ID = id
	return nil
}

func (r *memeTemplateRepo) GetAll(ctx context.Context) ([]*types.MemeTemplate, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, name, example_post, template_url, hash, created_at
		FROM meme_templates
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query meme templates: %w", err)
	}
	defer rows.Close()

	var templates []*types.MemeTemplate
	for rows.Next() {
		var m types.MemeTemplate
		if err := rows.Scan(&m.ID, &m.Name, &m.ExamplePost, &m.TemplateURL, &m.Hash, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan meme template: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		templates = append(templates, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meme templates: %w", err)
	}
	return templates, nil
}
