package repo

import (
	"context"
	"database/sql"
	"time"

	"helpline/internal/domain"
)

func (r Repo) InsertTag(ctx context.Context, t domain.Tag) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tags(id,name,color,created_at) VALUES (?,?,?,?)`,
		t.ID, t.Name, nullable(t.Color), t.CreatedAt)
	return err
}

func (r Repo) GetTag(ctx context.Context, id string) (domain.Tag, error) {
	var t domain.Tag
	var color sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,color,created_at FROM tags WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &color, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if color.Valid {
		t.Color = color.String
	}
	return t, err
}

func (r Repo) ListTags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,color,created_at FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tag
	for rows.Next() {
		var t domain.Tag
		var color sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &color, &t.CreatedAt); err != nil {
			return nil, err
		}
		if color.Valid {
			t.Color = color.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTag(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM tags WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AddConversationTag(ctx context.Context, tx *sql.Tx, conversationID, tagID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversation_tags(conversation_id,tag_id,created_at) VALUES (?,?,?)`,
		conversationID, tagID, now)
	return err
}

func (r Repo) RemoveConversationTag(ctx context.Context, tx *sql.Tx, conversationID, tagID string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM conversation_tags WHERE conversation_id=? AND tag_id=?`, conversationID, tagID)
	return err
}

func (r Repo) ListConversationTags(ctx context.Context, conversationID string) ([]domain.Tag, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT t.id,t.name,t.color,t.created_at FROM conversation_tags ct
JOIN tags t ON t.id=ct.tag_id
WHERE ct.conversation_id=? ORDER BY t.name`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tag
	for rows.Next() {
		var t domain.Tag
		var color sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &color, &t.CreatedAt); err != nil {
			return nil, err
		}
		if color.Valid {
			t.Color = color.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
