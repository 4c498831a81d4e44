package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/util"
	"go.uber.org/zap"
)

var _ Step = new(webhookAction)
var _ CreateHook = new(webhookAction)
var _ SaveHook = new(webhookAction)

var validMethods = map[string]bool{
	http.MethodGet:   true,
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

type webhookConfig struct {
	Url     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
}

type webhookAction struct {
	client *http.Client
}

func NewWebhookAction(client *http.Client) *webhookAction {
	if client == nil {
		client = http.DefaultClient
	}
	return &webhookAction{client: client}
}

func (w *webhookAction) Label() string {
	return "Webhook"
}

func (w *webhookAction) Meta() map[string]any {
	return map[string]any{
		"description": "Calls an external URL (GET/POST/PUT/PATCH) and returns status and payload.",
		"outputs":     []string{"{ status: number, data: any }"},
		"example":     map[string]any{"url": "https://httpbin.org/post", "method": "POST", "body": map[string]any{"foo": "bar"}},
	}
}

func (w *webhookAction) DefaultPolicy() *model.ResiliencePolicy {
	return &model.ResiliencePolicy{TimeoutMs: 10000}
}

func (w *webhookAction) OnCreate(ctx context.Context, flowId string, node *model.Node) error {
	if node.Config == nil {
		node.Config = map[string]any{}
	}
	return nil
}

func (w *webhookAction) OnSave(ctx context.Context, flowId string, node *model.Node) error {
	cfg, err := decodeConfig[webhookConfig](node.Config)
	if err != nil {
		return model.NewInvalidFlowError("node %s: invalid webhook config: %v", node.Id, err)
	}
	if len(cfg.Url) == 0 {
		return model.NewInvalidFlowError("node %s: webhook needs a url", node.Id)
	}
	u, err := url.Parse(cfg.Url)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return model.NewInvalidFlowError("node %s: webhook url %q is not an http(s) url", node.Id, cfg.Url)
	}
	if len(cfg.Method) > 0 && !validMethods[strings.ToUpper(cfg.Method)] {
		return model.NewInvalidFlowError("node %s: unsupported webhook method %s", node.Id, cfg.Method)
	}
	return nil
}

func (w *webhookAction) Execute(ctx context.Context, req Request) (Result, error) {
	cfg, err := decodeConfig[webhookConfig](req.Node.Config)
	if err != nil {
		return Result{}, fmt.Errorf("invalid webhook config: %w", err)
	}
	if len(cfg.Url) == 0 {
		return Result{}, fmt.Errorf("node %s (webhook) has no url", req.Node.Id)
	}
	method := strings.ToUpper(cfg.Method)
	if len(method) == 0 {
		method = http.MethodPost
	}
	if !validMethods[method] {
		return Result{}, fmt.Errorf("unsupported webhook method %s", method)
	}

	data := templateData(req)
	resolved := util.ResolveParams(data, map[string]any{"url": cfg.Url, "body": cfg.Body})
	target := fmt.Sprintf("%v", resolved["url"])

	var body io.Reader
	if method != http.MethodGet {
		payload := resolved["body"]
		if payload == nil {
			payload = req.Input
		}
		if payload == nil {
			payload = map[string]any{}
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Result{}, fmt.Errorf("encode webhook body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	logger.Debug("calling webhook", zap.String("nodeId", req.Node.Id), zap.String("method", method), zap.String("url", target))
	resp, err := w.client.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read webhook response: %w", err)
	}
	var payload any
	if err := json.Unmarshal(text, &payload); err != nil {
		payload = map[string]any{"text": string(text)}
	}
	return Result{Output: map[string]any{"status": resp.StatusCode, "data": payload}}, nil
}
