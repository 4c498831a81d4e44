package action

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohitkumar/flowfirst/model"
	"github.com/stretchr/testify/require"
)

func runCtx(bag map[string]any) *model.RunContext {
	return &model.RunContext{ExecutionId: "e1", FlowId: "f1", Bag: bag}
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(nil)
	require.Equal(t, []string{"decision", "delay", "form", "hello", "javascript", "jsonmapper", "webhook"}, r.Keys())
	require.Error(t, r.Register("hello", NewHelloAction()))
	_, ok := r.Get("nope")
	require.False(t, ok)
	require.True(t, r.Has("webhook"))
}

func TestWebhookAction(t *testing.T) {
	var gotBody map[string]any
	var gotMethod, gotPath, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Api-Key")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":42}`))
	}))
	defer srv.Close()

	step := NewWebhookAction(srv.Client())
	res, err := step.Execute(context.Background(), Request{
		Node: model.Node{Id: "w1", Type: "webhook", Config: map[string]any{
			"url":     srv.URL + "/users/{$.input.user}",
			"headers": map[string]any{"X-Api-Key": "secret"},
			"body":    map[string]any{"name": "{$.input.user}"},
		}},
		Input:   map[string]any{"user": "ada"},
		Context: runCtx(map[string]any{}),
	})
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "/users/ada", gotPath)
	require.Equal(t, "secret", gotHeader)
	require.Equal(t, map[string]any{"name": "ada"}, gotBody)

	out := res.Output.(map[string]any)
	require.Equal(t, http.StatusCreated, out["status"])
	require.Equal(t, map[string]any{"id": float64(42)}, out["data"])
}

func TestWebhookActionTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	res, err := NewWebhookAction(srv.Client()).Execute(context.Background(), Request{
		Node:    model.Node{Id: "w1", Config: map[string]any{"url": srv.URL, "method": "get"}},
		Context: runCtx(nil),
	})
	require.NoError(t, err)
	out := res.Output.(map[string]any)
	require.Equal(t, http.StatusBadRequest, out["status"])
	require.Equal(t, map[string]any{"text": "nope"}, out["data"])
}

func TestWebhookOnSave(t *testing.T) {
	step := NewWebhookAction(nil)
	require.NoError(t, step.OnSave(context.Background(), "f1", &model.Node{Id: "w1", Config: map[string]any{"url": "https://example.com"}}))
	require.Error(t, step.OnSave(context.Background(), "f1", &model.Node{Id: "w1", Config: map[string]any{}}))
	require.Error(t, step.OnSave(context.Background(), "f1", &model.Node{Id: "w1", Config: map[string]any{"url": "ftp://x"}}))
	require.Error(t, step.OnSave(context.Background(), "f1", &model.Node{Id: "w1", Config: map[string]any{"url": "https://x", "method": "DELETE"}}))
}

func TestDecisionAction(t *testing.T) {
	node := model.Node{Id: "d1", Type: "decision", Config: map[string]any{
		"rules": []any{
			map[string]any{"when": map[string]any{"path": "status", "op": "eq", "value": 200}, "route": "approved"},
			map[string]any{"when": map[string]any{"path": "$.status", "op": "gte", "value": 400}, "route": "denied"},
		},
	}}
	step := NewDecisionAction()

	tests := []struct {
		name  string
		input any
		route string
	}{
		{name: "int status", input: map[string]any{"status": 200}, route: "approved"},
		{name: "float status", input: map[string]any{"status": float64(200)}, route: "approved"},
		{name: "denied", input: map[string]any{"status": 404}, route: "denied"},
		{name: "no match", input: map[string]any{"status": 302}, route: "default"},
		{name: "missing path", input: map[string]any{}, route: "default"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := step.Execute(context.Background(), Request{Node: node, Input: tc.input, Context: runCtx(nil)})
			require.NoError(t, err)
			require.Equal(t, tc.route, res.Route)
		})
	}
}

func TestDecisionFromBag(t *testing.T) {
	node := model.Node{Id: "d1", Config: map[string]any{
		"source":       "bag",
		"bagKey":       "call",
		"defaultRoute": "fallback",
		"rules": []any{
			map[string]any{"when": map[string]any{"path": "data.ok", "op": "eq", "value": true}, "next": "done"},
		},
	}}
	step := NewDecisionAction()
	res, err := step.Execute(context.Background(), Request{Node: node, Context: runCtx(map[string]any{
		"call": map[string]any{"data": map[string]any{"ok": true}},
	})})
	require.NoError(t, err)
	require.Equal(t, "done", res.Next)
	require.Empty(t, res.Route)

	res, err = step.Execute(context.Background(), Request{Node: node, Context: runCtx(map[string]any{})})
	require.NoError(t, err)
	require.Equal(t, "fallback", res.Route)
	require.Equal(t, map[string]any{"matched": nil}, res.Output)

	require.Error(t, step.OnSave(context.Background(), "f1", &model.Node{Id: "d1", Config: map[string]any{}}))
}

func TestJsAction(t *testing.T) {
	step := NewJsAction()
	res, err := step.Execute(context.Background(), Request{
		Node:    model.Node{Id: "js", Config: map[string]any{"script": "$.output = { total: $.input.a + $.bag.prev.b }; $.route = 'big';"}},
		Input:   map[string]any{"a": 2},
		Context: runCtx(map[string]any{"prev": map[string]any{"b": 3}}),
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"total": float64(5)}, res.Output)
	require.Equal(t, "big", res.Route)

	_, err = step.Execute(context.Background(), Request{
		Node:    model.Node{Id: "js", Config: map[string]any{"script": "throw new Error('bad')"}},
		Context: runCtx(nil),
	})
	require.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = step.Execute(ctx, Request{
		Node:    model.Node{Id: "js", Config: map[string]any{"script": "while (true) {}"}},
		Context: runCtx(nil),
	})
	require.Error(t, err)
}

func TestJsonMapAction(t *testing.T) {
	res, err := NewJsonMapAction().Execute(context.Background(), Request{
		Node: model.Node{Id: "m", Config: map[string]any{"mapping": map[string]any{
			"who":    "{$.input.name}",
			"status": "{$.bag.call.status}",
		}}},
		Input:   map[string]any{"name": "ada"},
		Context: runCtx(map[string]any{"call": map[string]any{"status": 200}}),
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"who": "ada", "status": float64(200)}, res.Output)
}

func TestFormAction(t *testing.T) {
	res, err := NewFormAction().Execute(context.Background(), Request{
		Node: model.Node{Id: "f", Config: map[string]any{
			"title":      "Approve?",
			"fields":     []any{"approved"},
			"resumeNext": "after",
		}},
		Context: runCtx(nil),
	})
	require.NoError(t, err)
	require.Nil(t, res.Output)
	require.NotNil(t, res.Wait)
	require.Equal(t, "after", res.Wait.ResumeNext)
	require.Equal(t, "Approve?", res.Wait.Payload["title"])
	require.Equal(t, []any{"approved"}, res.Wait.Payload["fields"])
}

func TestDelayAction(t *testing.T) {
	step := NewDelayAction()
	res, err := step.Execute(context.Background(), Request{Node: model.Node{Config: map[string]any{"ms": 5}}, Input: "x"})
	require.NoError(t, err)
	require.Equal(t, "x", res.Output)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = step.Execute(ctx, Request{Node: model.Node{Config: map[string]any{"ms": 10000}}})
	require.ErrorIs(t, err, context.Canceled)
}
