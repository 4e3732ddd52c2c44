package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"helpline/internal/engine"
	"helpline/internal/line"
)

const maxWebhookBody = 1 << 20

// registerLineWebhook mounts the platform's inbound webhook. It lives
// outside the versioned API: the platform authenticates by HMAC signature
// over the raw body, not by bearer token. Delivery is acked immediately and
// the events are processed in the background, so slow triage never trips
// the platform's delivery timeout.
func registerLineWebhook(r chi.Router, e engine.Engine) {
	r.Post("/webhook/line", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		secret := ""
		if e.Config != nil {
			secret = e.Config.Channel.Secret
		}
		signature := req.Header.Get("X-Line-Signature")
		if !line.ValidateSignature(secret, body, signature) {
			log.Printf("webhook: signature mismatch from %s", req.RemoteAddr)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var payload line.WebhookBody
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			e.ProcessWebhookEvents(ctx, payload)
		}()

		w.WriteHeader(http.StatusOK)
	})
}
