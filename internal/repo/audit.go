package repo

import (
	"context"
	"database/sql"
	"strings"

	"helpline/internal/domain"
)

const auditColumns = `id,ts,action,conversation_id,user_id,changes,ip_address,user_agent`

func scanAuditLog(row rowScanner) (domain.AuditLog, error) {
	var a domain.AuditLog
	var conversationID, ip, ua sql.NullString
	err := row.Scan(&a.ID, &a.CreatedAt, &a.Action, &conversationID, &a.UserID, &a.Changes, &ip, &ua)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if conversationID.Valid {
		a.ConversationID = &conversationID.String
	}
	if ip.Valid {
		a.IPAddress = &ip.String
	}
	if ua.Valid {
		a.UserAgent = &ua.String
	}
	return a, nil
}

// AuditFilter narrows ListAuditLogs.
type AuditFilter struct {
	ConversationID string
	UserID         string
	Action         string
	Limit          int
	Offset         int
}

func (r Repo) ListAuditLogs(ctx context.Context, f AuditFilter) ([]domain.AuditLog, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ConversationID != "" {
		clauses = append(clauses, "conversation_id=?")
		args = append(args, f.ConversationID)
	}
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// AuditLogsAfter returns up to limit rows with id greater than cursor,
// oldest first. Used by the outbound webhook dispatcher.
func (r Repo) AuditLogsAfter(ctx context.Context, limit int, cursor int64) ([]domain.AuditLog, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// LatestAuditID returns the highest audit row id, or 0 when empty.
func (r Repo) LatestAuditID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM audit_logs`).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}
