package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"helpline/internal/domain"
	"helpline/internal/triage"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const conversationColumns = `id,contact_id,status,priority,urgency,is_complaint,complaint_type,assigned_user_id,version,last_inbound_at,last_outbound_at,COALESCE(last_message_preview,''),created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (domain.Conversation, error) {
	var c domain.Conversation
	var complaintType, assignedUserID, lastInbound, lastOutbound sql.NullString
	var isComplaint int
	err := row.Scan(&c.ID, &c.ContactID, &c.Status, &c.Priority, &c.Urgency, &isComplaint,
		&complaintType, &assignedUserID, &c.Version, &lastInbound, &lastOutbound,
		&c.LastMessagePreview, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.IsComplaint = isComplaint != 0
	if complaintType.Valid {
		ct := domain.ComplaintType(complaintType.String)
		c.ComplaintType = &ct
	}
	if assignedUserID.Valid {
		c.AssignedUserID = &assignedUserID.String
	}
	if lastInbound.Valid {
		c.LastInboundAt = &lastInbound.String
	}
	if lastOutbound.Valid {
		c.LastOutboundAt = &lastOutbound.String
	}
	return c, nil
}

func (r Repo) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	return scanConversation(r.DB.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id=?`, id))
}

// FindOpenConversation returns the most recently updated conversation for a
// contact that is neither CLOSED nor RESOLVED.
func (r Repo) FindOpenConversation(ctx context.Context, contactID string) (domain.Conversation, error) {
	return scanConversation(r.DB.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
WHERE contact_id=? AND status NOT IN (?,?)
ORDER BY updated_at DESC LIMIT 1`,
		contactID, domain.StatusClosed, domain.StatusResolved))
}

func (r Repo) InsertConversation(ctx context.Context, tx *sql.Tx, c domain.Conversation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO conversations(id,contact_id,status,priority,urgency,is_complaint,complaint_type,assigned_user_id,version,last_inbound_at,last_outbound_at,last_message_preview,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ContactID, c.Status, c.Priority, c.Urgency, boolInt(c.IsComplaint),
		nullableComplaintType(c.ComplaintType), nullableStringPtr(c.AssignedUserID), c.Version,
		nullableStringPtr(c.LastInboundAt), nullableStringPtr(c.LastOutboundAt),
		nullable(c.LastMessagePreview), c.CreatedAt, c.UpdatedAt)
	return err
}

// ApplyTriageUpdate persists the fields a merge decided to change. It is a
// no-op for an empty update.
func (r Repo) ApplyTriageUpdate(ctx context.Context, tx *sql.Tx, id string, u triage.Update, updatedAt string) error {
	if u.Empty() {
		return nil
	}
	fields := []string{"updated_at=?"}
	args := []any{updatedAt}
	if u.Priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, *u.Priority)
	}
	if u.Urgency != nil {
		fields = append(fields, "urgency=?")
		args = append(args, *u.Urgency)
	}
	if u.IsComplaint != nil {
		fields = append(fields, "is_complaint=?")
		args = append(args, boolInt(*u.IsComplaint))
	}
	if u.ComplaintType != nil {
		fields = append(fields, "complaint_type=?")
		args = append(args, *u.ComplaintType)
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE conversations SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateConversationStatus performs the optimistic-lock write: the version
// equality predicate is the serialization point. It returns false without
// error when another writer got there first.
func (r Repo) UpdateConversationStatus(ctx context.Context, tx *sql.Tx, id string, to domain.Status, expectedVersion int64, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET status=?, version=version+1, updated_at=? WHERE id=? AND version=?`,
		to, updatedAt, id, expectedVersion)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// BulkUpdateStatus sets the status of many conversations in one statement.
// It deliberately carries no version predicate; callers give up the
// optimistic-lock guarantee on this path.
func (r Repo) BulkUpdateStatus(ctx context.Context, tx *sql.Tx, ids []string, to domain.Status, updatedAt string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := []any{to, updatedAt}
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE conversations SET status=?, updated_at=? WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) AssignConversation(ctx context.Context, tx *sql.Tx, id, userID string, st domain.Status, updatedAt string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET assigned_user_id=?, status=?, updated_at=? WHERE id=?`,
		userID, st, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// OverridePriority sets priority and urgency unconditionally (manual path).
func (r Repo) OverridePriority(ctx context.Context, tx *sql.Tx, id string, p domain.Priority, u domain.Urgency, updatedAt string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET priority=?, urgency=?, updated_at=? WHERE id=?`,
		p, u, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// OverrideComplaint sets the complaint flag unconditionally (manual path).
// Clearing the flag clears the type as well.
func (r Repo) OverrideComplaint(ctx context.Context, tx *sql.Tx, id string, isComplaint bool, ct *domain.ComplaintType, updatedAt string) error {
	if !isComplaint {
		ct = nil
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET is_complaint=?, complaint_type=?, updated_at=? WHERE id=?`,
		boolInt(isComplaint), nullableComplaintType(ct), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) TouchInbound(ctx context.Context, tx *sql.Tx, id, ts, preview, updatedAt string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_inbound_at=?, last_message_preview=?, updated_at=? WHERE id=?`,
		ts, preview, updatedAt, id)
	return err
}

func (r Repo) TouchOutbound(ctx context.Context, tx *sql.Tx, id, ts, preview, updatedAt string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_outbound_at=?, last_message_preview=?, updated_at=? WHERE id=?`,
		ts, preview, updatedAt, id)
	return err
}

// ListOptions narrow ListConversations.
type ListOptions struct {
	Status      domain.Status
	AssignedTo  string
	IsComplaint *bool
	Limit       int
}

// ListConversations returns conversations ordered most-urgent first, then
// by latest inbound activity.
func (r Repo) ListConversations(ctx context.Context, opts ListOptions) ([]domain.Conversation, error) {
	clauses := []string{"1=1"}
	var args []any
	if opts.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, opts.Status)
	}
	if opts.AssignedTo != "" {
		clauses = append(clauses, "assigned_user_id=?")
		args = append(args, opts.AssignedTo)
	}
	if opts.IsComplaint != nil {
		clauses = append(clauses, "is_complaint=?")
		args = append(args, boolInt(*opts.IsComplaint))
	}
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE ` + strings.Join(clauses, " AND ") + `
ORDER BY CASE urgency WHEN 'NOW' THEN 0 WHEN 'TODAY' THEN 1 WHEN 'THIS_WEEK' THEN 2 ELSE 3 END,
last_inbound_at DESC`
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ListNeedsAction returns open conversations whose latest inbound message
// has no later outbound reply.
func (r Repo) ListNeedsAction(ctx context.Context, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	all, err := r.ListConversations(ctx, ListOptions{})
	if err != nil {
		return nil, err
	}
	var res []domain.Conversation
	for _, c := range all {
		switch c.Status {
		case domain.StatusNew, domain.StatusWorking, domain.StatusPending:
			if c.NeedsAction() {
				res = append(res, c)
			}
		}
		if len(res) == limit {
			break
		}
	}
	return res, nil
}

// CountByStatus returns conversation counts keyed by status.
func (r Repo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM conversations GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[domain.Status]int)
	for rows.Next() {
		var s domain.Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableComplaintType(ct *domain.ComplaintType) any {
	if ct == nil {
		return nil
	}
	return string(*ct)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
