package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"helpline/internal/config"
	"helpline/internal/domain"
	"helpline/internal/events"
	"helpline/internal/line"
	"helpline/internal/repo"
	"helpline/internal/status"
	"helpline/internal/triage"
)

// SystemUserID attributes automatic triage audit rows.
const SystemUserID = "system"

const previewLength = 100

// StatusHook runs after a committed status transition. The default is a
// no-op; SLA timers and notifications hang off this seam later.
type StatusHook func(ctx context.Context, conversationID string, from, to domain.Status)

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Classifier triage.Classifier
	Messenger  line.Messenger
	Now        func() time.Time

	// OnStatusChange fires after ChangeStatus commits.
	OnStatusChange StatusHook
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:         db,
		Repo:       repo.Repo{DB: db},
		Events:     events.Writer{DB: db},
		Config:     cfg,
		Classifier: triage.NewClassifier(cfg.Rules()),
		Now:        time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// RunTriage classifies messageText and merges the result into the
// conversation's triage state. The merge is monotonic, so re-running with
// the same text is a no-op on already-applied fields. A non-empty update is
// persisted together with a triage.applied audit row; an empty update
// writes nothing.
func (e Engine) RunTriage(ctx context.Context, conversationID, messageText string) (triage.Result, error) {
	result := e.Classifier.Classify(messageText)

	conv, err := e.Repo.GetConversation(ctx, conversationID)
	if err != nil {
		return result, err
	}

	update := triage.Merge(triage.State{
		Priority:      conv.Priority,
		Urgency:       conv.Urgency,
		IsComplaint:   conv.IsComplaint,
		ComplaintType: conv.ComplaintType,
	}, result)
	if update.Empty() {
		return result, nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.ApplyTriageUpdate(ctx, tx, conversationID, update, now); err != nil {
		return result, err
	}
	if err := e.Events.Append(ctx, tx, conversationID, SystemUserID, events.NewTriageApplied(update, result)); err != nil {
		return result, err
	}
	if err := tx.Commit(); err != nil {
		return result, err
	}
	return result, nil
}

// Retriage reloads the most recent inbound messages (up to ten), classifies
// their concatenation as one unit, and applies the same merge rules once.
func (e Engine) Retriage(ctx context.Context, conversationID string) (triage.Result, error) {
	if _, err := e.Repo.GetConversation(ctx, conversationID); err != nil {
		return triage.Result{}, err
	}
	texts, err := e.Repo.RecentInboundTexts(ctx, conversationID, 10)
	if err != nil {
		return triage.Result{}, err
	}
	if len(texts) == 0 {
		return triage.Result{}, ErrNoMessages
	}
	combined := ""
	for i, t := range texts {
		if i > 0 {
			combined += " "
		}
		combined += t
	}
	return e.RunTriage(ctx, conversationID, combined)
}

// ChangeStatus moves a conversation through the workflow graph under the
// optimistic lock. expectedVersion, when supplied, must equal the stored
// version; the version equality predicate on the UPDATE is the actual
// serialization point either way. Exactly one read-modify-write cycle is
// issued; conflicts surface as ConflictError and are never retried here.
func (e Engine) ChangeStatus(ctx context.Context, conversationID string, to domain.Status, expectedVersion *int64, userID string) (domain.Conversation, error) {
	if !to.Valid() {
		return domain.Conversation{}, fmt.Errorf("invalid status value %q", to)
	}
	conv, err := e.Repo.GetConversation(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if expectedVersion != nil && conv.Version != *expectedVersion {
		return domain.Conversation{}, ConflictError{CurrentVersion: conv.Version, CurrentStatus: conv.Status}
	}
	if !status.IsValidTransition(conv.Status, to) {
		return domain.Conversation{}, InvalidTransitionError{From: conv.Status, To: to}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Conversation{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	ok, err := e.Repo.UpdateConversationStatus(ctx, tx, conversationID, to, conv.Version, now)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !ok {
		// Lost the race between our read and write.
		current, rerr := e.Repo.GetConversation(ctx, conversationID)
		if rerr != nil {
			return domain.Conversation{}, rerr
		}
		return domain.Conversation{}, ConflictError{CurrentVersion: current.Version, CurrentStatus: current.Status}
	}
	if err := e.Events.Append(ctx, tx, conversationID, userID, events.StatusChanged{From: conv.Status, To: to}); err != nil {
		return domain.Conversation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Conversation{}, err
	}

	if e.OnStatusChange != nil {
		e.OnStatusChange(ctx, conversationID, conv.Status, to)
	}

	updated := conv
	updated.Status = to
	updated.Version = conv.Version + 1
	updated.UpdatedAt = now
	return updated, nil
}

// BulkChangeStatus sets one status across many conversations in a single
// statement. This path skips the per-row version check (and the transition
// validator); the audit payload flags the relaxation.
func (e Engine) BulkChangeStatus(ctx context.Context, conversationIDs []string, to domain.Status, userID string) (int64, error) {
	if len(conversationIDs) == 0 {
		return 0, errors.New("conversation ids required")
	}
	if len(conversationIDs) > 100 {
		return 0, errors.New("cannot update more than 100 conversations at once")
	}
	if !to.Valid() {
		return 0, fmt.Errorf("invalid status value %q", to)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	updated, err := e.Repo.BulkUpdateStatus(ctx, tx, conversationIDs, to, now)
	if err != nil {
		return 0, err
	}
	change := events.StatusBulkChanged{To: to, BulkOperation: true, TotalCount: len(conversationIDs)}
	for _, id := range conversationIDs {
		if err := e.Events.Append(ctx, tx, id, userID, change); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return updated, nil
}

// Assign sets the conversation's assignee and moves it to WORKING. Every
// status can legally reach WORKING, so the transition check cannot fail
// here; it stays for the day the graph changes.
func (e Engine) Assign(ctx context.Context, conversationID, userID, actorID string) (domain.Conversation, error) {
	conv, err := e.Repo.GetConversation(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !status.IsValidTransition(conv.Status, domain.StatusWorking) {
		return domain.Conversation{}, InvalidTransitionError{From: conv.Status, To: domain.StatusWorking}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Conversation{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.AssignConversation(ctx, tx, conversationID, userID, domain.StatusWorking, now); err != nil {
		return domain.Conversation{}, err
	}
	if err := e.Events.Append(ctx, tx, conversationID, actorID, events.Assigned{AssignedUserID: userID}); err != nil {
		return domain.Conversation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Conversation{}, err
	}
	return e.Repo.GetConversation(ctx, conversationID)
}

// OverridePriority sets priority and urgency directly, bypassing the
// monotonic merge rules. Manual path only.
func (e Engine) OverridePriority(ctx context.Context, conversationID string, p domain.Priority, u domain.Urgency, userID string) (domain.Conversation, error) {
	if !p.Valid() {
		return domain.Conversation{}, fmt.Errorf("invalid priority value %q", p)
	}
	if !u.Valid() {
		return domain.Conversation{}, fmt.Errorf("invalid urgency value %q", u)
	}
	conv, err := e.Repo.GetConversation(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Conversation{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.OverridePriority(ctx, tx, conversationID, p, u, now); err != nil {
		return domain.Conversation{}, err
	}
	if err := e.Events.Append(ctx, tx, conversationID, userID, events.PriorityOverridden{
		FromPriority: conv.Priority,
		ToPriority:   p,
		FromUrgency:  conv.Urgency,
		ToUrgency:    u,
	}); err != nil {
		return domain.Conversation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Conversation{}, err
	}
	return e.Repo.GetConversation(ctx, conversationID)
}

// OverrideComplaint sets the complaint flag directly. Clearing it also
// clears the complaint type.
func (e Engine) OverrideComplaint(ctx context.Context, conversationID string, isComplaint bool, ct *domain.ComplaintType, userID string) (domain.Conversation, error) {
	if ct != nil && !ct.Valid() {
		return domain.Conversation{}, fmt.Errorf("invalid complaint type %q", *ct)
	}
	if _, err := e.Repo.GetConversation(ctx, conversationID); err != nil {
		return domain.Conversation{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Conversation{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.OverrideComplaint(ctx, tx, conversationID, isComplaint, ct, now); err != nil {
		return domain.Conversation{}, err
	}
	change := events.ComplaintOverridden{IsComplaint: isComplaint}
	if isComplaint {
		change.ComplaintType = ct
	}
	if err := e.Events.Append(ctx, tx, conversationID, userID, change); err != nil {
		return domain.Conversation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Conversation{}, err
	}
	return e.Repo.GetConversation(ctx, conversationID)
}

// Reply pushes an outbound text to the conversation's contact and records
// it. The push happens before the local write; a failed push saves nothing.
func (e Engine) Reply(ctx context.Context, conversationID, text, userID string) (domain.Message, error) {
	if text == "" {
		return domain.Message{}, errors.New("text is required")
	}
	conv, err := e.Repo.GetConversation(ctx, conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	contact, err := e.Repo.GetContact(ctx, conv.ContactID)
	if err != nil {
		return domain.Message{}, err
	}
	if e.Messenger != nil {
		if err := e.Messenger.PushText(ctx, contact.PlatformID, text); err != nil {
			return domain.Message{}, fmt.Errorf("push message: %w", err)
		}
	}

	now := e.now().UTC().Format(time.RFC3339)
	msg := domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Direction:      domain.DirectionOutbound,
		Text:           text,
		Timestamp:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMessage(ctx, tx, msg); err != nil {
		return domain.Message{}, err
	}
	if err := e.Repo.TouchOutbound(ctx, tx, conversationID, now, preview(text), now); err != nil {
		return domain.Message{}, err
	}
	if err := e.Events.Append(ctx, tx, conversationID, userID, events.Replied{MessageID: msg.ID, Preview: preview(text)}); err != nil {
		return domain.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// AddTag attaches a catalog tag to a conversation.
func (e Engine) AddTag(ctx context.Context, conversationID, tagID, userID string) error {
	if _, err := e.Repo.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	tag, err := e.Repo.GetTag(ctx, tagID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.AddConversationTag(ctx, tx, conversationID, tagID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, conversationID, userID, events.TagAdded{TagID: tagID, TagName: tag.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveTag detaches a tag from a conversation.
func (e Engine) RemoveTag(ctx context.Context, conversationID, tagID, userID string) error {
	if _, err := e.Repo.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RemoveConversationTag(ctx, tx, conversationID, tagID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, conversationID, userID, events.TagRemoved{TagID: tagID}); err != nil {
		return err
	}
	return tx.Commit()
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewLength {
		return string(runes[:previewLength])
	}
	return text
}
