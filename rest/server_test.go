package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/mohitkumar/flowfirst/action"
	"github.com/mohitkumar/flowfirst/analytics"
	"github.com/mohitkumar/flowfirst/cache"
	"github.com/mohitkumar/flowfirst/engine"
	"github.com/mohitkumar/flowfirst/metadata"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence"
	"github.com/mohitkumar/flowfirst/persistence/memory"
	"github.com/mohitkumar/flowfirst/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, persistence.Storage) {
	store := memory.NewMemoryStorage()
	registry := action.NewDefaultRegistry(nil)
	metadataService := metadata.NewMetadataService(store, registry, cache.NewFlowCache(0))
	reg := prometheus.NewRegistry()
	sink := analytics.NewMultiSink(analytics.NewStatRecorder(store), analytics.NewMetricsSink(reg))
	e := engine.NewEngine(engine.Config{PublicBaseURL: "http://flows.local"}, metadataService, store, registry, sink)
	executorService := service.NewWorkflowExecutionService(e, store, nil)
	s, err := NewServer(0, metadataService, executorService, reg)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler)
	t.Cleanup(srv.Close)
	return srv, store
}

func call(t *testing.T, srv *httptest.Server, method string, path string, body any) (int, map[string]any) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	if m, ok := decoded.(map[string]any); ok {
		return resp.StatusCode, m
	}
	return resp.StatusCode, map[string]any{"items": decoded}
}

func approvalFlow(webhookUrl string) map[string]any {
	return map[string]any{
		"id":          "approval",
		"workspaceId": "ws",
		"definition": map[string]any{
			"start": "check",
			"nodes": []any{
				map[string]any{"id": "check", "type": "webhook", "config": map[string]any{"url": webhookUrl + "?code={$.input.code}", "method": "GET"}},
				map[string]any{"id": "decide", "type": "decision", "config": map[string]any{"rules": []any{
					map[string]any{"when": map[string]any{"path": "status", "op": "eq", "value": 200}, "route": "approved"},
				}}},
				map[string]any{"id": "ask", "type": "form", "config": map[string]any{"title": "Manual review", "fields": []any{"approved"}}},
				map[string]any{"id": "done", "type": "hello"},
			},
			"edges": []any{
				map[string]any{"from": "check", "to": "decide"},
				map[string]any{"from": "decide", "to": "done", "via": "approved"},
				map[string]any{"from": "decide", "to": "ask", "via": "default"},
				map[string]any{"from": "ask", "to": "done"},
			},
		},
	}
}

func TestFlowLifecycle(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code, _ := strconv.Atoi(r.URL.Query().Get("code"))
		w.WriteHeader(code)
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()
	srv, _ := newTestServer(t)

	code, body := call(t, srv, http.MethodPost, "/flows", approvalFlow(upstream.URL))
	require.Equal(t, http.StatusOK, code, body)

	code, body = call(t, srv, http.MethodGet, "/flows/approval", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "approval", body["id"])

	code, body = call(t, srv, http.MethodGet, "/workspaces/ws/flows", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["items"], 1)

	code, body = call(t, srv, http.MethodPost, "/execute/approval", map[string]any{"input": map[string]any{"code": 200}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["ok"])
	require.Nil(t, body["waiting"])
	require.Contains(t, body["bag"], "done")

	code, body = call(t, srv, http.MethodPost, "/execute/approval", map[string]any{"input": map[string]any{"code": 400}})
	require.Equal(t, http.StatusOK, code)
	waiting := body["waiting"].(map[string]any)
	token := waiting["token"].(string)
	require.Equal(t, "http://flows.local/public/"+token, waiting["publicUrl"])
	executionId := body["executionId"].(string)

	code, body = call(t, srv, http.MethodGet, "/public/"+token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Manual review", body["title"])
	require.Equal(t, []any{"approved"}, body["fields"])

	code, body = call(t, srv, http.MethodPost, "/public/"+token, map[string]any{"data": map[string]any{"approved": true}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["resumed"])

	code, body = call(t, srv, http.MethodPost, "/public/"+token, map[string]any{"data": map[string]any{"approved": true}})
	require.Equal(t, http.StatusGone, code)
	require.Equal(t, false, body["ok"])
	require.Equal(t, "TokenAlreadyConsumed", body["kind"])

	code, _ = call(t, srv, http.MethodGet, "/public/"+token, nil)
	require.Equal(t, http.StatusGone, code)

	code, body = call(t, srv, http.MethodGet, "/executions/"+executionId, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "SUCCESS", body["execution"].(map[string]any)["status"])

	code, body = call(t, srv, http.MethodGet, "/workspaces/ws/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, body["stats"])
	require.NotEmpty(t, body["health"])

	code, _ = call(t, srv, http.MethodDelete, "/flows/approval", nil)
	require.Equal(t, http.StatusOK, code)
	code, body = call(t, srv, http.MethodGet, "/flows/approval", nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, false, body["ok"])
}

func TestErrorStatuses(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		code   int
		kind   string
	}{
		{name: "unknown flow", method: http.MethodPost, path: "/execute/nope", code: http.StatusNotFound, kind: "FlowNotFound"},
		{name: "unknown token", method: http.MethodGet, path: "/public/nope", code: http.StatusNotFound, kind: "TokenNotFound"},
		{name: "unknown token resume", method: http.MethodPost, path: "/public/nope", body: map[string]any{"data": map[string]any{}}, code: http.StatusNotFound, kind: "TokenNotFound"},
		{name: "unknown execution", method: http.MethodGet, path: "/executions/nope", code: http.StatusNotFound, kind: "ExecutionNotFound"},
		{name: "invalid flow", method: http.MethodPost, path: "/flows", body: map[string]any{"id": "x", "definition": map[string]any{"start": "a"}}, code: http.StatusBadRequest, kind: "InvalidFlow"},
		{name: "invalid webhook", method: http.MethodPost, path: "/workspaces/ws/webhooks", body: map[string]any{"url": "nope"}, code: http.StatusBadRequest, kind: "InvalidRequest"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, body := call(t, srv, tc.method, tc.path, tc.body)
			require.Equal(t, tc.code, code)
			require.Equal(t, false, body["ok"])
			require.Equal(t, tc.kind, body["kind"])
		})
	}
}

func TestServicesAndWebhooks(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := call(t, srv, http.MethodGet, "/services", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["items"], 7)

	code, body = call(t, srv, http.MethodPost, "/workspaces/ws/webhooks", map[string]any{"url": "https://example.com/hook", "secret": "s3cret"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["ok"])

	code, body = call(t, srv, http.MethodGet, "/workspaces/ws/webhooks", nil)
	require.Equal(t, http.StatusOK, code)
	hooks := body["items"].([]any)
	require.Len(t, hooks, 1)
	require.Nil(t, hooks[0].(map[string]any)["secret"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	call(t, srv, http.MethodPost, "/execute/nope", nil)

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAbandonedRequestsLetRunsFinish(t *testing.T) {
	srv, store := newTestServer(t)
	code, body := call(t, srv, http.MethodPost, "/flows", map[string]any{
		"id":          "slow",
		"workspaceId": "ws",
		"definition": map[string]any{
			"start": "d",
			"nodes": []any{
				map[string]any{"id": "d", "type": "delay", "config": map[string]any{"ms": 200}, "resilience": map[string]any{"failureThreshold": 1}},
			},
		},
	})
	require.Equal(t, http.StatusOK, code, body)

	impatient := &http.Client{Timeout: 30 * time.Millisecond}
	for i := 0; i < 5; i++ {
		resp, err := impatient.Post(srv.URL+"/execute/slow", "application/json", bytes.NewReader([]byte(`{"input":{}}`)))
		if err == nil {
			resp.Body.Close()
		}
		require.Error(t, err)
	}

	ctx := context.Background()
	require.Eventually(t, func() bool {
		stat, err := store.GetServiceStat(ctx, "ws", "d")
		return err == nil && stat != nil && stat.Successes == 5
	}, 5*time.Second, 20*time.Millisecond)

	health, err := store.GetServiceHealth(ctx, "ws", "d")
	require.NoError(t, err)
	require.Equal(t, model.CIRCUIT_CLOSED, health.State)
	require.Equal(t, 0, health.Failures)

	code, body = call(t, srv, http.MethodPost, "/execute/slow", map[string]any{"input": map[string]any{}})
	require.Equal(t, http.StatusOK, code, body)
	code, body = call(t, srv, http.MethodGet, "/executions/"+body["executionId"].(string), nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, string(model.SUCCESS), body["execution"].(map[string]any)["status"])
}
