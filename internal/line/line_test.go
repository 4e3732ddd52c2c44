package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)

	if !ValidateSignature("secret", body, sign("secret", body)) {
		t.Fatalf("valid signature rejected")
	}
	if ValidateSignature("secret", body, sign("other", body)) {
		t.Fatalf("wrong-key signature accepted")
	}
	if ValidateSignature("secret", body, "") {
		t.Fatalf("empty signature accepted")
	}
	if ValidateSignature("", body, sign("", body)) {
		t.Fatalf("empty channel secret accepted")
	}
	if ValidateSignature("secret", append(body, ' '), sign("secret", body)) {
		t.Fatalf("tampered body accepted")
	}
}

func TestGetProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/profile/U123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"displayName": "Taro", "pictureUrl": "https://example.com/p.jpg"})
	}))
	defer srv.Close()

	c := NewClient("secret", "token-1", srv.URL)
	p, err := c.GetProfile(context.Background(), "U123")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.DisplayName != "Taro" || p.PictureURL == nil || *p.PictureURL != "https://example.com/p.jpg" {
		t.Fatalf("profile = %+v", p)
	}
}

func TestPushText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/push" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode push: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("secret", "token-1", srv.URL)
	if err := c.PushText(context.Background(), "U123", "こんにちは"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got["to"] != "U123" {
		t.Fatalf("push body = %v", got)
	}
}

func TestPushTextErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("secret", "bad", srv.URL)
	if err := c.PushText(context.Background(), "U123", "x"); err == nil {
		t.Fatalf("expected error on 401")
	}
}

func TestWebhookEventTime(t *testing.T) {
	e := WebhookEvent{Timestamp: 1717243140000}
	if got := e.Time(); !got.Equal(time.Date(2024, 6, 1, 11, 59, 0, 0, time.UTC)) {
		t.Fatalf("time = %s", got)
	}
}
