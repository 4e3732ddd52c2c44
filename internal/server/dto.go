package server

import (
	"encoding/json"

	"helpline/internal/domain"
	"helpline/internal/status"
	"helpline/internal/triage"
)

// Request payloads

type UpdateStatusRequest struct {
	Status          domain.Status `json:"status" enum:"NEW,WORKING,PENDING,RESOLVED,CLOSED,NO_ACTION_NEEDED"`
	ExpectedVersion *int64        `json:"expected_version,omitempty"`
}

type BulkUpdateStatusRequest struct {
	ConversationIDs []string      `json:"conversation_ids"`
	Status          domain.Status `json:"status" enum:"NEW,WORKING,PENDING,RESOLVED,CLOSED,NO_ACTION_NEEDED"`
}

type ReplyRequest struct {
	Text string `json:"text"`
}

type AssignRequest struct {
	UserID string `json:"user_id"`
}

type OverridePriorityRequest struct {
	Priority domain.Priority `json:"priority" enum:"LOW,MEDIUM,HIGH"`
	Urgency  domain.Urgency  `json:"urgency" enum:"ANYTIME,THIS_WEEK,TODAY,NOW"`
}

type OverrideComplaintRequest struct {
	IsComplaint   bool                  `json:"is_complaint"`
	ComplaintType *domain.ComplaintType `json:"complaint_type,omitempty" enum:"BILLING,QUALITY,DELAY,ATTITUDE,OTHER"`
}

type AddTagRequest struct {
	TagID string `json:"tag_id"`
}

type CreateTagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type CreateUserRequest struct {
	Email string      `json:"email" format:"email"`
	Name  string      `json:"name,omitempty"`
	Role  domain.Role `json:"role" enum:"ADMIN,AGENT,VIEWER"`
}

type UpdateUserRoleRequest struct {
	Role domain.Role `json:"role" enum:"ADMIN,AGENT,VIEWER"`
}

type CreateAPIKeyRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// Response payloads

type ConversationResponse struct {
	domain.Conversation
	StatusDisplayName string       `json:"status_display_name"`
	StatusColor       string       `json:"status_color"`
	Tags              []domain.Tag `json:"tags,omitempty"`
}

func conversationResponse(c domain.Conversation, tags []domain.Tag) ConversationResponse {
	return ConversationResponse{
		Conversation:      c,
		StatusDisplayName: status.DisplayName(c.Status),
		StatusColor:       status.Color(c.Status),
		Tags:              tags,
	}
}

func mapConversations(items []domain.Conversation) []ConversationResponse {
	res := make([]ConversationResponse, 0, len(items))
	for _, c := range items {
		res = append(res, conversationResponse(c, nil))
	}
	return res
}

type TransitionResponse struct {
	Status      domain.Status `json:"status"`
	DisplayName string        `json:"display_name"`
	Color       string        `json:"color"`
}

func transitionResponses(from domain.Status) []TransitionResponse {
	targets := status.AvailableTransitions(from)
	res := make([]TransitionResponse, 0, len(targets))
	for _, s := range targets {
		res = append(res, TransitionResponse{Status: s, DisplayName: status.DisplayName(s), Color: status.Color(s)})
	}
	return res
}

type TriageResultResponse struct {
	Priority        domain.Priority       `json:"priority"`
	Urgency         domain.Urgency        `json:"urgency"`
	IsComplaint     bool                  `json:"is_complaint"`
	ComplaintType   *domain.ComplaintType `json:"complaint_type,omitempty"`
	Confidence      float64               `json:"confidence"`
	MatchedKeywords []string              `json:"matched_keywords,omitempty"`
}

func triageResultResponse(r triage.Result) TriageResultResponse {
	return TriageResultResponse{
		Priority:        r.Priority,
		Urgency:         r.Urgency,
		IsComplaint:     r.IsComplaint,
		ComplaintType:   r.ComplaintType,
		Confidence:      r.Confidence,
		MatchedKeywords: r.MatchedKeywords,
	}
}

type BulkUpdateResponse struct {
	Updated int64 `json:"updated"`
}

type AuditLogResponse struct {
	ID             int64           `json:"id"`
	ConversationID *string         `json:"conversation_id,omitempty"`
	UserID         string          `json:"user_id"`
	Action         string          `json:"action"`
	Changes        json.RawMessage `json:"changes"`
	CreatedAt      string          `json:"created_at" format:"date-time"`
}

func auditLogResponse(a domain.AuditLog) AuditLogResponse {
	changes := json.RawMessage("{}")
	if json.Valid([]byte(a.Changes)) {
		changes = json.RawMessage(a.Changes)
	}
	return AuditLogResponse{
		ID:             a.ID,
		ConversationID: a.ConversationID,
		UserID:         a.UserID,
		Action:         a.Action,
		Changes:        changes,
		CreatedAt:      a.CreatedAt,
	}
}

func mapAuditLogs(items []domain.AuditLog) []AuditLogResponse {
	res := make([]AuditLogResponse, 0, len(items))
	for _, a := range items {
		res = append(res, auditLogResponse(a))
	}
	return res
}

type StatsResponse struct {
	Total    int                   `json:"total"`
	ByStatus map[domain.Status]int `json:"by_status"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is the plaintext secret, returned once at creation.
	Key string `json:"key,omitempty"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, UserID: k.UserID, Name: k.Name, CreatedAt: k.CreatedAt}
}

type RulesResponse struct {
	ComplaintKeywords    []string            `json:"complaint_keywords"`
	UrgencyNowKeywords   []string            `json:"urgency_now_keywords"`
	UrgencyTodayKeywords []string            `json:"urgency_today_keywords"`
	UrgencyWeekKeywords  []string            `json:"urgency_week_keywords"`
	PriorityHighKeywords []string            `json:"priority_high_keywords"`
	ComplaintTypes       map[string][]string `json:"complaint_types"`
}

func rulesResponse(rs triage.RuleSet) RulesResponse {
	types := make(map[string][]string, len(rs.ComplaintTypes))
	for ct, keywords := range rs.ComplaintTypes {
		types[string(ct)] = keywords
	}
	return RulesResponse{
		ComplaintKeywords:    rs.ComplaintKeywords,
		UrgencyNowKeywords:   rs.UrgencyNowKeywords,
		UrgencyTodayKeywords: rs.UrgencyTodayKeywords,
		UrgencyWeekKeywords:  rs.UrgencyWeekKeywords,
		PriorityHighKeywords: rs.PriorityHighKeywords,
		ComplaintTypes:       types,
	}
}
