package helplinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Helpline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Conversation represents the API conversation model (partial).
type Conversation struct {
	ID                 string  `json:"id"`
	ContactID          string  `json:"contact_id"`
	Status             string  `json:"status"`
	StatusDisplayName  string  `json:"status_display_name"`
	Priority           string  `json:"priority"`
	Urgency            string  `json:"urgency"`
	IsComplaint        bool    `json:"is_complaint"`
	ComplaintType      *string `json:"complaint_type,omitempty"`
	AssignedUserID     *string `json:"assigned_user_id,omitempty"`
	Version            int64   `json:"version"`
	LastMessagePreview string  `json:"last_message_preview,omitempty"`
}

// Message represents one inbound or outbound message.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Direction      string `json:"direction"`
	Text           string `json:"text"`
	Timestamp      string `json:"timestamp"`
}

// TriageResult is the classifier's verdict for one text.
type TriageResult struct {
	Priority        string   `json:"priority"`
	Urgency         string   `json:"urgency"`
	IsComplaint     bool     `json:"is_complaint"`
	ComplaintType   *string  `json:"complaint_type,omitempty"`
	Confidence      float64  `json:"confidence"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
}

// AuditLog represents one audit entry.
type AuditLog struct {
	ID             int64          `json:"id"`
	ConversationID *string        `json:"conversation_id,omitempty"`
	UserID         string         `json:"user_id"`
	Action         string         `json:"action"`
	Changes        map[string]any `json:"changes"`
	CreatedAt      string         `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListConversations returns conversations, optionally filtered by status.
func (c *Client) ListConversations(ctx context.Context, status string) ([]Conversation, error) {
	endpoint := "conversations"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Conversation
	err := c.do(ctx, http.MethodGet, c.path(endpoint), nil, &resp)
	return resp, err
}

// NeedsAction returns conversations whose latest inbound message is
// still unanswered.
func (c *Client) NeedsAction(ctx context.Context) ([]Conversation, error) {
	var resp []Conversation
	err := c.do(ctx, http.MethodGet, c.path("conversations/needs-action"), nil, &resp)
	return resp, err
}

// GetConversation fetches one conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var resp Conversation
	err := c.do(ctx, http.MethodGet, c.path("conversations/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// UpdateStatus changes a conversation's status. Pass expectedVersion to
// assert the optimistic lock; nil skips the precondition.
func (c *Client) UpdateStatus(ctx context.Context, id, status string, expectedVersion *int64) (Conversation, error) {
	body := map[string]any{"status": status}
	if expectedVersion != nil {
		body["expected_version"] = *expectedVersion
	}
	var resp Conversation
	endpoint := c.path(fmt.Sprintf("conversations/%s/status", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// Reply sends an outbound text on the conversation.
func (c *Client) Reply(ctx context.Context, id, text string) (Message, error) {
	var resp Message
	endpoint := c.path(fmt.Sprintf("conversations/%s/reply", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"text": text}, &resp)
	return resp, err
}

// Assign assigns the conversation to a user.
func (c *Client) Assign(ctx context.Context, id, userID string) (Conversation, error) {
	var resp Conversation
	endpoint := c.path(fmt.Sprintf("conversations/%s/assign", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"user_id": userID}, &resp)
	return resp, err
}

// Retriage re-runs triage over the conversation's recent inbound messages.
func (c *Client) Retriage(ctx context.Context, id string) (TriageResult, error) {
	var resp TriageResult
	endpoint := c.path(fmt.Sprintf("conversations/%s/retriage", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Messages lists a conversation's messages, oldest first.
func (c *Client) Messages(ctx context.Context, id string, limit int) ([]Message, error) {
	endpoint := fmt.Sprintf("conversations/%s/messages", url.PathEscape(id))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Message
	err := c.do(ctx, http.MethodGet, c.path(endpoint), nil, &resp)
	return resp, err
}

// AuditLogs returns recent audit entries for a conversation.
func (c *Client) AuditLogs(ctx context.Context, conversationID string, limit int) ([]AuditLog, error) {
	endpoint := "audit-logs"
	params := url.Values{}
	if conversationID != "" {
		params.Set("conversation_id", conversationID)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var resp []AuditLog
	err := c.do(ctx, http.MethodGet, c.path(endpoint), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) path(p string) string {
	return "v1/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
