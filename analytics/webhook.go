package analytics

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/util"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const SIGNATURE_HEADER = "X-FlowFirst-Signature"

type WebhookLister interface {
	ListWebhooks(ctx context.Context, workspaceId string) ([]model.EventWebhook, error)
}

type eventDelivery struct {
	scope string
	body  []byte
}

var _ Sink = new(WebhookSink)

// WebhookSink posts every event to the active webhooks of its scope. Delivery
// happens on a background worker; events are dropped when its queue is full.
type WebhookSink struct {
	lister WebhookLister
	client *http.Client
	hooks  *cache.Cache
	worker *util.Worker
	now    func() time.Time
}

func NewWebhookSink(lister WebhookLister, client *http.Client, wg *sync.WaitGroup, capacity int) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	s := &WebhookSink{
		lister: lister,
		client: client,
		hooks:  cache.New(30*time.Second, time.Minute),
		now:    time.Now,
	}
	s.worker = util.NewWorker("event-webhooks", wg, s.deliver, capacity)
	return s
}

func (s *WebhookSink) Start() {
	s.worker.Start()
}

func (s *WebhookSink) Stop() {
	s.worker.Stop()
}

// Invalidate forgets the cached webhook list of a scope.
func (s *WebhookSink) Invalidate(scope string) {
	s.hooks.Delete(scope)
}

func (s *WebhookSink) Emit(ctx context.Context, scope string, name string, payload map[string]any) {
	body, err := json.Marshal(map[string]any{
		"name":    name,
		"payload": payload,
		"ts":      s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		logger.Warn("error in encoding event", zap.String("event", name), zap.Error(err))
		return
	}
	if !s.worker.TrySend(eventDelivery{scope: scope, body: body}) {
		logger.Warn("event webhook queue full, dropping event", zap.String("scope", scope), zap.String("event", name))
	}
}

func (s *WebhookSink) RecordStat(ctx context.Context, sample StatSample) {}

func (s *WebhookSink) activeHooks(ctx context.Context, scope string) ([]model.EventWebhook, error) {
	if cached, ok := s.hooks.Get(scope); ok {
		return cached.([]model.EventWebhook), nil
	}
	all, err := s.lister.ListWebhooks(ctx, scope)
	if err != nil {
		return nil, err
	}
	active := make([]model.EventWebhook, 0, len(all))
	for _, h := range all {
		if h.Active {
			active = append(active, h)
		}
	}
	s.hooks.SetDefault(scope, active)
	return active, nil
}

func (s *WebhookSink) deliver(task util.Task) error {
	d := task.(eventDelivery)
	ctx := context.Background()
	hooks, err := s.activeHooks(ctx, d.scope)
	if err != nil {
		return fmt.Errorf("list webhooks of %s: %w", d.scope, err)
	}
	for _, h := range hooks {
		if err := s.post(ctx, h, d.body); err != nil {
			logger.Warn("event webhook delivery failed", zap.String("scope", d.scope), zap.String("url", h.Url), zap.Error(err))
		}
	}
	return nil
}

func (s *WebhookSink) post(ctx context.Context, hook model.EventWebhook, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.Url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SIGNATURE_HEADER, Sign(hook.Secret, body))
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body keyed with secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
