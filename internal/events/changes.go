package events

import (
	"helpline/internal/domain"
	"helpline/internal/triage"
)

// Change is the payload of one audit row. Each variant carries only the
// fields relevant to its action kind; Action is the discriminator stored
// alongside the JSON encoding.
type Change interface {
	Action() string
}

// StatusChanged records a validated single-conversation status transition.
type StatusChanged struct {
	From domain.Status `json:"from"`
	To   domain.Status `json:"to"`
}

func (StatusChanged) Action() string { return "status.changed" }

// StatusBulkChanged records one conversation touched by a bulk update.
// Bulk updates skip the per-row version check, and the flag makes that
// visible to audit consumers.
type StatusBulkChanged struct {
	To            domain.Status `json:"to"`
	BulkOperation bool          `json:"bulk_operation"`
	TotalCount    int           `json:"total_count"`
}

func (StatusBulkChanged) Action() string { return "status.bulk_changed" }

// TriageApplied records the fields an automatic triage run escalated,
// plus the classification evidence behind the decision.
type TriageApplied struct {
	Priority        *domain.Priority      `json:"priority,omitempty"`
	Urgency         *domain.Urgency       `json:"urgency,omitempty"`
	IsComplaint     *bool                 `json:"is_complaint,omitempty"`
	ComplaintType   *domain.ComplaintType `json:"complaint_type,omitempty"`
	Confidence      float64               `json:"confidence"`
	MatchedKeywords []string              `json:"matched_keywords,omitempty"`
}

func (TriageApplied) Action() string { return "triage.applied" }

// NewTriageApplied builds the audit payload from a merge update and the
// classification that produced it.
func NewTriageApplied(u triage.Update, r triage.Result) TriageApplied {
	return TriageApplied{
		Priority:        u.Priority,
		Urgency:         u.Urgency,
		IsComplaint:     u.IsComplaint,
		ComplaintType:   u.ComplaintType,
		Confidence:      r.Confidence,
		MatchedKeywords: r.MatchedKeywords,
	}
}

// PriorityOverridden records a manual priority/urgency override, which
// bypasses the monotonic merge rules.
type PriorityOverridden struct {
	FromPriority domain.Priority `json:"from_priority"`
	ToPriority   domain.Priority `json:"to_priority"`
	FromUrgency  domain.Urgency  `json:"from_urgency"`
	ToUrgency    domain.Urgency  `json:"to_urgency"`
}

func (PriorityOverridden) Action() string { return "priority.overridden" }

// ComplaintOverridden records a manual complaint flag change. Clearing the
// flag also clears the complaint type.
type ComplaintOverridden struct {
	IsComplaint   bool                  `json:"is_complaint"`
	ComplaintType *domain.ComplaintType `json:"complaint_type,omitempty"`
}

func (ComplaintOverridden) Action() string { return "complaint.overridden" }

// Assigned records a conversation assignment.
type Assigned struct {
	AssignedUserID string `json:"assigned_user_id"`
}

func (Assigned) Action() string { return "conversation.assigned" }

// Replied records an outbound agent reply.
type Replied struct {
	MessageID string `json:"message_id"`
	Preview   string `json:"preview,omitempty"`
}

func (Replied) Action() string { return "message.replied" }

// TagAdded records a tag attached to a conversation.
type TagAdded struct {
	TagID   string `json:"tag_id"`
	TagName string `json:"tag_name,omitempty"`
}

func (TagAdded) Action() string { return "tag.added" }

// TagRemoved records a tag detached from a conversation.
type TagRemoved struct {
	TagID string `json:"tag_id"`
}

func (TagRemoved) Action() string { return "tag.removed" }

// ContactBlocked records a contact block state change from follow or
// unfollow webhook events.
type ContactBlocked struct {
	ContactID string `json:"contact_id"`
	Blocked   bool   `json:"blocked"`
}

func (ContactBlocked) Action() string { return "contact.blocked" }
