// Package events appends audit rows. The engine emits typed Change values
// here instead of logging inline, so transports decide how the trail is
// surfaced.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append writes one audit row inside the caller's transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, conversationID, userID string, change Change) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal audit change: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO audit_logs(ts,action,conversation_id,user_id,changes) VALUES (?,?,?,?,?)`,
		ts, change.Action(), nullable(conversationID), userID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
