package engine

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"helpline/internal/domain"
	"helpline/internal/events"
	"helpline/internal/line"
	"helpline/internal/repo"
)

// ProcessWebhookEvents walks a verified webhook delivery. Each event is
// handled independently; one bad event never fails the batch. The platform
// has already been acked by the time this runs, so errors are logged, not
// returned.
func (e Engine) ProcessWebhookEvents(ctx context.Context, body line.WebhookBody) {
	for _, ev := range body.Events {
		switch ev.Type {
		case "message":
			if ev.Message == nil || ev.Message.Type != "text" {
				continue
			}
			if err := e.HandleInboundMessage(ctx, ev); err != nil {
				log.Printf("webhook: message event for %s: %v", ev.Source.UserID, err)
			}
		case "follow":
			if err := e.HandleFollow(ctx, ev); err != nil {
				log.Printf("webhook: follow event for %s: %v", ev.Source.UserID, err)
			}
		case "unfollow":
			if err := e.HandleUnfollow(ctx, ev); err != nil {
				log.Printf("webhook: unfollow event for %s: %v", ev.Source.UserID, err)
			}
		default:
			// Sticker, image, postback and friends are acked and dropped.
		}
	}
}

// HandleInboundMessage records one inbound text: find-or-create the contact
// and its open conversation, store the message (idempotent on the platform
// message id), then run triage. A triage failure does not undo the stored
// message.
func (e Engine) HandleInboundMessage(ctx context.Context, ev line.WebhookEvent) error {
	if ev.Message.ID != "" {
		if _, err := e.Repo.GetMessageByPlatformID(ctx, ev.Message.ID); err == nil {
			return nil // redelivery
		} else if err != repo.ErrNotFound {
			return err
		}
	}

	contact, err := e.ensureContact(ctx, ev.Source.UserID)
	if err != nil {
		return err
	}
	conv, err := e.ensureOpenConversation(ctx, contact.ID)
	if err != nil {
		return err
	}

	ts := ev.Time().UTC().Format(time.RFC3339)
	now := e.now().UTC().Format(time.RFC3339)
	msg := domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Direction:      domain.DirectionInbound,
		Text:           ev.Message.Text,
		Timestamp:      ts,
	}
	if ev.Message.ID != "" {
		id := ev.Message.ID
		msg.PlatformMessageID = &id
	}
	if raw, err := json.Marshal(ev); err == nil {
		s := string(raw)
		msg.RawPayload = &s
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMessage(ctx, tx, msg); err != nil {
		return err
	}
	if err := e.Repo.TouchInbound(ctx, tx, conv.ID, ts, preview(ev.Message.Text), now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if _, err := e.RunTriage(ctx, conv.ID, ev.Message.Text); err != nil {
		log.Printf("triage: conversation %s: %v", conv.ID, err)
	}
	return nil
}

// HandleFollow creates or unblocks the contact.
func (e Engine) HandleFollow(ctx context.Context, ev line.WebhookEvent) error {
	contact, err := e.Repo.GetContactByPlatformID(ctx, ev.Source.UserID)
	if err == repo.ErrNotFound {
		_, err = e.ensureContact(ctx, ev.Source.UserID)
		return err
	}
	if err != nil {
		return err
	}
	if !contact.IsBlocked {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetContactBlocked(ctx, tx, ev.Source.UserID, false); err != nil {
		return err
	}
	return tx.Commit()
}

// HandleUnfollow marks the contact blocked and leaves an audit trail on its
// open conversation, if any.
func (e Engine) HandleUnfollow(ctx context.Context, ev line.WebhookEvent) error {
	contact, err := e.Repo.GetContactByPlatformID(ctx, ev.Source.UserID)
	if err == repo.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetContactBlocked(ctx, tx, ev.Source.UserID, true); err != nil {
		return err
	}
	if conv, err := e.Repo.FindOpenConversation(ctx, contact.ID); err == nil {
		if err := e.Events.Append(ctx, tx, conv.ID, SystemUserID, events.ContactBlocked{ContactID: contact.ID, Blocked: true}); err != nil {
			return err
		}
	} else if err != repo.ErrNotFound {
		return err
	}
	return tx.Commit()
}

// ensureContact returns the contact for a platform user, creating it on
// first sight. Profile lookup failures are tolerated; the contact is then
// created with an empty display name.
func (e Engine) ensureContact(ctx context.Context, platformUserID string) (domain.Contact, error) {
	contact, err := e.Repo.GetContactByPlatformID(ctx, platformUserID)
	if err == nil {
		return contact, nil
	}
	if err != repo.ErrNotFound {
		return domain.Contact{}, err
	}

	var displayName string
	var pictureURL *string
	if e.Messenger != nil {
		if profile, err := e.Messenger.GetProfile(ctx, platformUserID); err == nil {
			displayName = profile.DisplayName
			pictureURL = profile.PictureURL
		} else {
			log.Printf("profile lookup for %s: %v", platformUserID, err)
		}
	}

	now := e.now().UTC().Format(time.RFC3339)
	contact = domain.Contact{
		ID:          uuid.New().String(),
		PlatformID:  platformUserID,
		DisplayName: displayName,
		PictureURL:  pictureURL,
		FollowedAt:  now,
		CreatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contact{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertContact(ctx, tx, contact); err != nil {
		return domain.Contact{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contact{}, err
	}
	return contact, nil
}

// ensureOpenConversation returns the contact's open conversation, creating
// a fresh NEW/MEDIUM/ANYTIME one when every prior thread is closed out.
func (e Engine) ensureOpenConversation(ctx context.Context, contactID string) (domain.Conversation, error) {
	conv, err := e.Repo.FindOpenConversation(ctx, contactID)
	if err == nil {
		return conv, nil
	}
	if err != repo.ErrNotFound {
		return domain.Conversation{}, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	conv = domain.Conversation{
		ID:        uuid.New().String(),
		ContactID: contactID,
		Status:    domain.StatusNew,
		Priority:  domain.PriorityMedium,
		Urgency:   domain.UrgencyAnytime,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Conversation{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertConversation(ctx, tx, conv); err != nil {
		return domain.Conversation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}
