package repo

import (
	"context"
	"database/sql"

	"helpline/internal/domain"
)

func scanMessage(row rowScanner) (domain.Message, error) {
	var m domain.Message
	var platformID, raw sql.NullString
	err := row.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Text, &platformID, &m.Timestamp, &raw)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if platformID.Valid {
		m.PlatformMessageID = &platformID.String
	}
	if raw.Valid {
		m.RawPayload = &raw.String
	}
	return m, nil
}

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m domain.Message) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages(id,conversation_id,direction,text,platform_message_id,ts,raw_payload) VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.ConversationID, m.Direction, m.Text,
		nullableStringPtr(m.PlatformMessageID), m.Timestamp, nullableStringPtr(m.RawPayload))
	return err
}

// GetMessageByPlatformID supports idempotent webhook ingestion: the
// platform's message id dedupes redelivered events.
func (r Repo) GetMessageByPlatformID(ctx context.Context, platformMessageID string) (domain.Message, error) {
	return scanMessage(r.DB.QueryRowContext(ctx,
		`SELECT id,conversation_id,direction,text,platform_message_id,ts,raw_payload FROM messages WHERE platform_message_id=?`,
		platformMessageID))
}

// ListMessages returns messages for a conversation, oldest first.
func (r Repo) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	query := `SELECT id,conversation_id,direction,text,platform_message_id,ts,raw_payload FROM messages WHERE conversation_id=? ORDER BY ts ASC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// RecentInboundTexts returns the text of the newest inbound messages, up to
// limit, newest first. Used by re-triage.
func (r Repo) RecentInboundTexts(ctx context.Context, conversationID string, limit int) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT text FROM messages WHERE conversation_id=? AND direction=? ORDER BY ts DESC LIMIT ?`,
		conversationID, domain.DirectionInbound, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		if t != "" {
			texts = append(texts, t)
		}
	}
	return texts, rows.Err()
}
