package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"helpline/internal/config"
	"helpline/internal/db"
	"helpline/internal/domain"
	"helpline/internal/engine"
	"helpline/internal/line"
	"helpline/internal/migrate"
	"helpline/internal/repo"
)

type stubMessenger struct {
	pushed  []string
	pushErr error
}

func (s *stubMessenger) GetProfile(ctx context.Context, userID string) (line.Profile, error) {
	return line.Profile{DisplayName: "Taro"}, nil
}

func (s *stubMessenger) PushText(ctx context.Context, userID, text string) error {
	if s.pushErr != nil {
		return s.pushErr
	}
	s.pushed = append(s.pushed, text)
	return nil
}

type testEnv struct {
	Engine    engine.Engine
	Messenger *stubMessenger
	Ctx       context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	m := &stubMessenger{}
	eng.Messenger = m
	return testEnv{Engine: eng, Messenger: m, Ctx: context.Background()}
}

func seedConversation(t *testing.T, env testEnv) domain.Conversation {
	t.Helper()
	ev := inboundEvent("U-seed", "m-seed", "こんにちは")
	if err := env.Engine.HandleInboundMessage(env.Ctx, ev); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	contact, err := env.Engine.Repo.GetContactByPlatformID(env.Ctx, "U-seed")
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}
	conv, err := env.Engine.Repo.FindOpenConversation(env.Ctx, contact.ID)
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return conv
}

func inboundEvent(userID, messageID, text string) line.WebhookEvent {
	return line.WebhookEvent{
		Type:      "message",
		Timestamp: time.Date(2024, 6, 1, 11, 59, 0, 0, time.UTC).UnixMilli(),
		Source:    line.EventSource{Type: "user", UserID: userID},
		Message:   &line.MessagePayload{ID: messageID, Type: "text", Text: text},
	}
}

func TestInboundMessageCreatesContactAndConversation(t *testing.T) {
	env := newTestEnv(t)

	if err := env.Engine.HandleInboundMessage(env.Ctx, inboundEvent("U1", "m1", "注文について質問です")); err != nil {
		t.Fatalf("handle inbound: %v", err)
	}

	contact, err := env.Engine.Repo.GetContactByPlatformID(env.Ctx, "U1")
	if err != nil {
		t.Fatalf("contact not created: %v", err)
	}
	if contact.DisplayName != "Taro" {
		t.Fatalf("display name = %q, want profile name", contact.DisplayName)
	}
	conv, err := env.Engine.Repo.FindOpenConversation(env.Ctx, contact.ID)
	if err != nil {
		t.Fatalf("conversation not created: %v", err)
	}
	if conv.Status != domain.StatusNew || conv.Priority != domain.PriorityMedium || conv.Urgency != domain.UrgencyAnytime {
		t.Fatalf("new conversation = %s/%s/%s", conv.Status, conv.Priority, conv.Urgency)
	}
	if conv.LastInboundAt == nil {
		t.Fatalf("last_inbound_at not set")
	}
	msgs, err := env.Engine.Repo.ListMessages(env.Ctx, conv.ID, 10)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("messages = %v (%v)", msgs, err)
	}
}

func TestInboundMessageIdempotentOnPlatformID(t *testing.T) {
	env := newTestEnv(t)

	ev := inboundEvent("U1", "m1", "届かないのですが")
	if err := env.Engine.HandleInboundMessage(env.Ctx, ev); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := env.Engine.HandleInboundMessage(env.Ctx, ev); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	contact, _ := env.Engine.Repo.GetContactByPlatformID(env.Ctx, "U1")
	conv, _ := env.Engine.Repo.FindOpenConversation(env.Ctx, contact.ID)
	msgs, err := env.Engine.Repo.ListMessages(env.Ctx, conv.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("redelivery stored %d messages, want 1", len(msgs))
	}
}

func TestInboundComplaintTriagesConversation(t *testing.T) {
	env := newTestEnv(t)

	if err := env.Engine.HandleInboundMessage(env.Ctx, inboundEvent("U1", "m1", "対応が悪い、至急返金してください")); err != nil {
		t.Fatalf("handle inbound: %v", err)
	}

	contact, _ := env.Engine.Repo.GetContactByPlatformID(env.Ctx, "U1")
	conv, err := env.Engine.Repo.FindOpenConversation(env.Ctx, contact.ID)
	if err != nil {
		t.Fatal(err)
	}
	if conv.Priority != domain.PriorityHigh || conv.Urgency != domain.UrgencyNow {
		t.Fatalf("triage applied %s/%s, want HIGH/NOW", conv.Priority, conv.Urgency)
	}
	if !conv.IsComplaint || conv.ComplaintType == nil || *conv.ComplaintType != domain.ComplaintAttitude {
		t.Fatalf("complaint state = %v/%v", conv.IsComplaint, conv.ComplaintType)
	}

	logs, err := env.Engine.Repo.ListAuditLogs(env.Ctx, repo.AuditFilter{ConversationID: conv.ID, Action: "triage.applied"})
	if err != nil || len(logs) != 1 {
		t.Fatalf("triage audit rows = %v (%v)", logs, err)
	}
	if logs[0].UserID != engine.SystemUserID {
		t.Fatalf("triage audit user = %q", logs[0].UserID)
	}
}

func TestTriageIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)

	if _, err := env.Engine.RunTriage(env.Ctx, conv.ID, "至急お願いします"); err != nil {
		t.Fatal(err)
	}
	// A calmer follow-up must not relax what the first message established.
	if _, err := env.Engine.RunTriage(env.Ctx, conv.ID, "今週中で大丈夫です"); err != nil {
		t.Fatal(err)
	}

	got, err := env.Engine.Repo.GetConversation(env.Ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Urgency != domain.UrgencyNow {
		t.Fatalf("urgency relaxed to %s", got.Urgency)
	}
	if got.Priority != domain.PriorityHigh {
		t.Fatalf("priority relaxed to %s", got.Priority)
	}
}

func TestChangeStatusHappyPath(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)

	got, err := env.Engine.ChangeStatus(env.Ctx, conv.ID, domain.StatusWorking, nil, "agent-1")
	if err != nil {
		t.Fatalf("NEW→WORKING: %v", err)
	}
	if got.Status != domain.StatusWorking || got.Version != conv.Version+1 {
		t.Fatalf("after transition: %s v%d", got.Status, got.Version)
	}

	logs, err := env.Engine.Repo.ListAuditLogs(env.Ctx, repo.AuditFilter{ConversationID: conv.ID, Action: "status.changed"})
	if err != nil || len(logs) != 1 {
		t.Fatalf("status audit rows = %v (%v)", logs, err)
	}
}

func TestChangeStatusRejectsInvalidTransition(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)

	_, err := env.Engine.ChangeStatus(env.Ctx, conv.ID, domain.StatusResolved, nil, "agent-1")
	var ite engine.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if ite.From != domain.StatusNew || ite.To != domain.StatusResolved {
		t.Fatalf("error detail = %s→%s", ite.From, ite.To)
	}

	got, _ := env.Engine.Repo.GetConversation(env.Ctx, conv.ID)
	if got.Status != domain.StatusNew || got.Version != conv.Version {
		t.Fatalf("rejected transition mutated row: %s v%d", got.Status, got.Version)
	}
}

func TestChangeStatusVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)

	if _, err := env.Engine.ChangeStatus(env.Ctx, conv.ID, domain.StatusWorking, nil, "agent-1"); err != nil {
		t.Fatal(err)
	}

	stale := conv.Version // one behind after the transition above
	_, err := env.Engine.ChangeStatus(env.Ctx, conv.ID, domain.StatusPending, &stale, "agent-2")
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.CurrentVersion != conv.Version+1 || ce.CurrentStatus != domain.StatusWorking {
		t.Fatalf("conflict detail = v%d %s", ce.CurrentVersion, ce.CurrentStatus)
	}

	got, _ := env.Engine.Repo.GetConversation(env.Ctx, conv.ID)
	if got.Status != domain.StatusWorking {
		t.Fatalf("conflicting write mutated row to %s", got.Status)
	}
}

func TestChangeStatusReopensClosed(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)

	if _, err := env.Engine.ChangeStatus(env.Ctx, conv.ID, domain.StatusClosed, nil, "agent-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ChangeStatus(env.Ctx, conv.ID, domain.StatusResolved, nil, "agent-1"); err == nil {
		t.Fatalf("CLOSED→RESOLVED allowed")
	}
	got, err := env.Engine.ChangeStatus(env.Ctx, conv.ID, domain.StatusWorking, nil, "agent-1")
	if err != nil {
		t.Fatalf("CLOSED→WORKING: %v", err)
	}
	if got.Status != domain.StatusWorking {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestChangeStatusSelfTransitionBumpsVersion(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)

	got, err := env.Engine.ChangeStatus(env.Ctx, conv.ID, domain.StatusNew, nil, "agent-1")
	if err != nil {
		t.Fatalf("NEW→NEW: %v", err)
	}
	if got.Version != conv.Version+1 {
		t.Fatalf("self-transition version = %d, want %d", got.Version, conv.Version+1)
	}
}

func TestChangeStatusFiresHook(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)

	var hookFrom, hookTo domain.Status
	env.Engine.OnStatusChange = func(ctx context.Context, id string, from, to domain.Status) {
		hookFrom, hookTo = from, to
	}
	if _, err := env.Engine.ChangeStatus(env.Ctx, conv.ID, domain.StatusWorking, nil, "agent-1"); err != nil {
		t.Fatal(err)
	}
	if hookFrom != domain.StatusNew || hookTo != domain.StatusWorking {
		t.Fatalf("hook saw %s→%s", hookFrom, hookTo)
	}
}

func TestBulkChangeStatusSkipsVersionCheck(t *testing.T) {
	env := newTestEnv(t)
	a := seedConversation(t, env)
	if err := env.Engine.HandleInboundMessage(env.Ctx, inboundEvent("U2", "m2", "こんにちは")); err != nil {
		t.Fatal(err)
	}
	contact, _ := env.Engine.Repo.GetContactByPlatformID(env.Ctx, "U2")
	b, _ := env.Engine.Repo.FindOpenConversation(env.Ctx, contact.ID)

	updated, err := env.Engine.BulkChangeStatus(env.Ctx, []string{a.ID, b.ID}, domain.StatusClosed, "admin-1")
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if updated != 2 {
		t.Fatalf("updated = %d, want 2", updated)
	}
	for _, id := range []string{a.ID, b.ID} {
		conv, _ := env.Engine.Repo.GetConversation(env.Ctx, id)
		if conv.Status != domain.StatusClosed {
			t.Fatalf("conversation %s = %s", id, conv.Status)
		}
		logs, _ := env.Engine.Repo.ListAuditLogs(env.Ctx, repo.AuditFilter{ConversationID: id, Action: "status.bulk_changed"})
		if len(logs) != 1 {
			t.Fatalf("bulk audit rows for %s = %d", id, len(logs))
		}
	}
}

func TestBulkChangeStatusLimits(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.Engine.BulkChangeStatus(env.Ctx, nil, domain.StatusClosed, "admin-1"); err == nil {
		t.Fatalf("empty id list accepted")
	}
	ids := make([]string, 101)
	for i := range ids {
		ids[i] = "c"
	}
	if _, err := env.Engine.BulkChangeStatus(env.Ctx, ids, domain.StatusClosed, "admin-1"); err == nil {
		t.Fatalf("oversized id list accepted")
	}
}

func TestAssignMovesToWorking(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)
	agent := domain.User{ID: "agent-1", Email: "agent@example.com", Role: domain.RoleAgent, CreatedAt: "2024-06-01T12:00:00Z"}
	if err := env.Engine.Repo.InsertUser(env.Ctx, agent); err != nil {
		t.Fatal(err)
	}

	got, err := env.Engine.Assign(env.Ctx, conv.ID, agent.ID, "admin-1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.AssignedUserID == nil || *got.AssignedUserID != "agent-1" {
		t.Fatalf("assignee = %v", got.AssignedUserID)
	}
	if got.Status != domain.StatusWorking {
		t.Fatalf("status = %s, want WORKING", got.Status)
	}
}

func TestRetriageUsesRecentInbound(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)

	if err := env.Engine.HandleInboundMessage(env.Ctx, inboundEvent("U-seed", "m-2", "返金してほしい、最悪です")); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.Retriage(env.Ctx, conv.ID)
	if err != nil {
		t.Fatalf("retriage: %v", err)
	}
	if !res.IsComplaint {
		t.Fatalf("retriage result not a complaint: %+v", res)
	}
	got, _ := env.Engine.Repo.GetConversation(env.Ctx, conv.ID)
	if !got.IsComplaint {
		t.Fatalf("retriage did not latch complaint")
	}
}

func TestRetriageWithoutInboundMessages(t *testing.T) {
	env := newTestEnv(t)
	conv := seedOutboundOnly(t, env)

	// Replies do not count as triage input.
	if _, err := env.Engine.Retriage(env.Ctx, conv.ID); !errors.Is(err, engine.ErrNoMessages) {
		t.Fatalf("expected ErrNoMessages, got %v", err)
	}
}

// seedOutboundOnly creates a conversation whose only message is an agent
// reply, bypassing the inbound path.
func seedOutboundOnly(t *testing.T, env testEnv) domain.Conversation {
	t.Helper()
	if err := env.Engine.HandleFollow(env.Ctx, line.WebhookEvent{Type: "follow", Source: line.EventSource{Type: "user", UserID: "U-out"}}); err != nil {
		t.Fatal(err)
	}
	contact, err := env.Engine.Repo.GetContactByPlatformID(env.Ctx, "U-out")
	if err != nil {
		t.Fatal(err)
	}
	tx, err := env.Engine.DB.Begin()
	if err != nil {
		t.Fatal(err)
	}
	conv := domain.Conversation{
		ID:        "conv-out",
		ContactID: contact.ID,
		Status:    domain.StatusNew,
		Priority:  domain.PriorityMedium,
		Urgency:   domain.UrgencyAnytime,
		CreatedAt: "2024-06-01T12:00:00Z",
		UpdatedAt: "2024-06-01T12:00:00Z",
	}
	if err := env.Engine.Repo.InsertConversation(env.Ctx, tx, conv); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Reply(env.Ctx, conv.ID, "いかがされましたか", "agent-1"); err != nil {
		t.Fatal(err)
	}
	return conv
}

func TestReplyPushesBeforePersisting(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)

	msg, err := env.Engine.Reply(env.Ctx, conv.ID, "確認いたします", "agent-1")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if msg.Direction != domain.DirectionOutbound {
		t.Fatalf("direction = %s", msg.Direction)
	}
	if len(env.Messenger.pushed) != 1 || env.Messenger.pushed[0] != "確認いたします" {
		t.Fatalf("pushed = %v", env.Messenger.pushed)
	}
	got, _ := env.Engine.Repo.GetConversation(env.Ctx, conv.ID)
	if got.LastOutboundAt == nil {
		t.Fatalf("last_outbound_at not set")
	}
	if got.LastMessagePreview != "確認いたします" {
		t.Fatalf("preview = %q", got.LastMessagePreview)
	}
}

func TestReplyFailedPushSavesNothing(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)
	env.Messenger.pushErr = errors.New("line api down")

	if _, err := env.Engine.Reply(env.Ctx, conv.ID, "返信します", "agent-1"); err == nil {
		t.Fatalf("expected push failure")
	}
	msgs, _ := env.Engine.Repo.ListMessages(env.Ctx, conv.ID, 10)
	for _, m := range msgs {
		if m.Direction == domain.DirectionOutbound {
			t.Fatalf("outbound message stored despite failed push")
		}
	}
}

func TestOverridePriorityBypassesMerge(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)

	if _, err := env.Engine.RunTriage(env.Ctx, conv.ID, "至急返金"); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.OverridePriority(env.Ctx, conv.ID, domain.PriorityLow, domain.UrgencyAnytime, "admin-1")
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if got.Priority != domain.PriorityLow || got.Urgency != domain.UrgencyAnytime {
		t.Fatalf("override not applied: %s/%s", got.Priority, got.Urgency)
	}
}

func TestOverrideComplaintClearsType(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)

	billing := domain.ComplaintBilling
	got, err := env.Engine.OverrideComplaint(env.Ctx, conv.ID, true, &billing, "admin-1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsComplaint || got.ComplaintType == nil || *got.ComplaintType != domain.ComplaintBilling {
		t.Fatalf("set: %v/%v", got.IsComplaint, got.ComplaintType)
	}

	got, err = env.Engine.OverrideComplaint(env.Ctx, conv.ID, false, nil, "admin-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.IsComplaint || got.ComplaintType != nil {
		t.Fatalf("clear left %v/%v", got.IsComplaint, got.ComplaintType)
	}
}

func TestUnfollowBlocksContact(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)

	env.Engine.ProcessWebhookEvents(env.Ctx, line.WebhookBody{Events: []line.WebhookEvent{
		{Type: "unfollow", Source: line.EventSource{Type: "user", UserID: "U-seed"}},
	}})

	contact, err := env.Engine.Repo.GetContactByPlatformID(env.Ctx, "U-seed")
	if err != nil {
		t.Fatal(err)
	}
	if !contact.IsBlocked {
		t.Fatalf("contact not blocked")
	}
	logs, _ := env.Engine.Repo.ListAuditLogs(env.Ctx, repo.AuditFilter{ConversationID: conv.ID, Action: "contact.blocked"})
	if len(logs) != 1 {
		t.Fatalf("blocked audit rows = %d", len(logs))
	}

	// Re-follow unblocks.
	env.Engine.ProcessWebhookEvents(env.Ctx, line.WebhookBody{Events: []line.WebhookEvent{
		{Type: "follow", Source: line.EventSource{Type: "user", UserID: "U-seed"}},
	}})
	contact, _ = env.Engine.Repo.GetContactByPlatformID(env.Ctx, "U-seed")
	if contact.IsBlocked {
		t.Fatalf("contact still blocked after follow")
	}
}

func TestAddAndRemoveTag(t *testing.T) {
	env := newTestEnv(t)
	conv := seedConversation(t, env)

	tag := domain.Tag{ID: "tag-1", Name: "vip", Color: "#FF0000", CreatedAt: "2024-06-01T12:00:00Z"}
	if err := env.Engine.Repo.InsertTag(env.Ctx, tag); err != nil {
		t.Fatal(err)
	}

	if err := env.Engine.AddTag(env.Ctx, conv.ID, tag.ID, "agent-1"); err != nil {
		t.Fatalf("add tag: %v", err)
	}
	// Attaching twice is a no-op, not an error.
	if err := env.Engine.AddTag(env.Ctx, conv.ID, tag.ID, "agent-1"); err != nil {
		t.Fatalf("re-add tag: %v", err)
	}
	tags, err := env.Engine.Repo.ListConversationTags(env.Ctx, conv.ID)
	if err != nil || len(tags) != 1 {
		t.Fatalf("tags = %v (%v)", tags, err)
	}

	if err := env.Engine.RemoveTag(env.Ctx, conv.ID, tag.ID, "agent-1"); err != nil {
		t.Fatalf("remove tag: %v", err)
	}
	tags, _ = env.Engine.Repo.ListConversationTags(env.Ctx, conv.ID)
	if len(tags) != 0 {
		t.Fatalf("tags after remove = %v", tags)
	}
}
