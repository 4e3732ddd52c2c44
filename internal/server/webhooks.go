package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"helpline/internal/config"
	"helpline/internal/domain"
	"helpline/internal/engine"
)

const (
	defaultDispatchInterval = 2 * time.Second
	defaultDispatchTimeout  = 5 * time.Second
	defaultDispatchBatch    = 100
)

// auditDispatcher delivers audit rows to configured outbound webhooks.
// Each webhook keeps its own cursor; delivery stops at the first failure
// and retries the same row on the next tick.
type auditDispatcher struct {
	engine   engine.Engine
	webhooks []config.WebhookConfig
	client   *http.Client
	mu       sync.Mutex
	cursors  map[int]int64
}

func startAuditDispatcher(e engine.Engine) {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return
	}
	d := &auditDispatcher{
		engine:   e,
		webhooks: e.Config.Webhooks,
		client:   &http.Client{Timeout: defaultDispatchTimeout},
		cursors:  make(map[int]int64),
	}
	go d.run()
}

func (d *auditDispatcher) run() {
	ticker := time.NewTicker(defaultDispatchInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll()
		<-ticker.C
	}
}

func (d *auditDispatcher) dispatchAll() {
	for i, hook := range d.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(i, hook)
	}
}

func (d *auditDispatcher) dispatchWebhook(idx int, hook config.WebhookConfig) {
	ctx := context.Background()
	cursor := d.cursorFor(idx)
	entries, err := d.engine.Repo.AuditLogsAfter(ctx, defaultDispatchBatch, cursor)
	if err != nil {
		log.Printf("dispatch: fetch audit rows failed: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	filter := newActionFilter(hook.Events)
	for _, entry := range entries {
		if !filter.match(entry.Action) {
			d.setCursor(idx, entry.ID)
			continue
		}
		if err := d.postEntry(ctx, hook, entry); err != nil {
			log.Printf("dispatch: deliver to %s failed: %v", hook.URL, err)
			return
		}
		d.setCursor(idx, entry.ID)
	}
}

// cursorFor initializes new cursors at the latest row so a freshly added
// webhook does not replay history.
func (d *auditDispatcher) cursorFor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.engine.Repo.LatestAuditID(context.Background())
	if err != nil {
		log.Printf("dispatch: init cursor failed: %v", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *auditDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type dispatchEvent struct {
	ID             int64           `json:"id"`
	Action         string          `json:"action"`
	ConversationID string          `json:"conversation_id,omitempty"`
	UserID         string          `json:"user_id"`
	TS             string          `json:"ts"`
	Changes        json.RawMessage `json:"changes"`
}

func (d *auditDispatcher) postEntry(ctx context.Context, hook config.WebhookConfig, entry domain.AuditLog) error {
	changes := json.RawMessage("{}")
	if json.Valid([]byte(entry.Changes)) {
		changes = json.RawMessage(entry.Changes)
	}
	body := dispatchEvent{
		ID:      entry.ID,
		Action:  entry.Action,
		UserID:  entry.UserID,
		TS:      entry.CreatedAt,
		Changes: changes,
	}
	if entry.ConversationID != nil {
		body.ConversationID = *entry.ConversationID
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	timeout := defaultDispatchTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Helpline-Event", entry.Action)
	req.Header.Set("X-Helpline-Delivery", fmt.Sprintf("%d", entry.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Helpline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type actionFilter struct {
	all bool
	set map[string]struct{}
}

func newActionFilter(actions []string) actionFilter {
	if len(actions) == 0 {
		return actionFilter{all: true}
	}
	set := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		key := strings.TrimSpace(a)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return actionFilter{all: true}
	}
	return actionFilter{set: set}
}

func (f actionFilter) match(action string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[action]
	return ok
}
