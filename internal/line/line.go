// Package line talks to the LINE Messaging API: webhook signature
// validation, profile lookup, and outbound push.
package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.line.me"

// Messenger is the narrow surface the engine needs. Tests substitute a stub.
type Messenger interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	PushText(ctx context.Context, userID, text string) error
}

// Profile is the platform-side user profile.
type Profile struct {
	DisplayName   string  `json:"displayName"`
	PictureURL    *string `json:"pictureUrl,omitempty"`
	StatusMessage *string `json:"statusMessage,omitempty"`
}

// Client is the HTTP Messenger implementation.
type Client struct {
	ChannelSecret string
	AccessToken   string
	APIBase       string
	HTTP          *http.Client
}

func NewClient(channelSecret, accessToken, apiBase string) *Client {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		ChannelSecret: channelSecret,
		AccessToken:   accessToken,
		APIBase:       strings.TrimRight(apiBase, "/"),
		HTTP:          &http.Client{Timeout: 10 * time.Second},
	}
}

// ValidateSignature checks the x-line-signature header against the raw
// request body: base64(HMAC-SHA256(channel secret, body)).
func (c *Client) ValidateSignature(body []byte, signature string) bool {
	return ValidateSignature(c.ChannelSecret, body, signature)
}

// ValidateSignature is the standalone form used by tests and the webhook
// handler.
func ValidateSignature(channelSecret string, body []byte, signature string) bool {
	if channelSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Client) GetProfile(ctx context.Context, userID string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBase+"/v2/bot/profile/"+userID, nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return Profile{}, fmt.Errorf("profile lookup status %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	var p Profile
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (c *Client) PushText(ctx context.Context, userID, text string) error {
	payload := map[string]any{
		"to": userID,
		"messages": []map[string]string{
			{"type": "text", "text": text},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBase+"/v2/bot/message/push", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("push status %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

// Webhook payload types, trimmed to the events the inbox handles.

type WebhookBody struct {
	Destination string         `json:"destination"`
	Events      []WebhookEvent `json:"events"`
}

type WebhookEvent struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Source    EventSource     `json:"source"`
	Message   *MessagePayload `json:"message,omitempty"`
}

type EventSource struct {
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
}

type MessagePayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Time converts the platform's millisecond timestamp.
func (e WebhookEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}
