package engine

import (
	"context"
	"testing"

	"github.com/mohitkumar/flowfirst/action"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence/memory"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRunIsTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)

	store := memory.NewMemoryStorage()
	require.NoError(t, store.SaveFlow(context.Background(), model.Flow{Id: "traced", Definition: model.FlowDefinition{
		Start: "a",
		Nodes: []model.Node{{Id: "a", Type: "hello", Next: "b"}, {Id: "b", Type: "missing"}},
	}}))
	e := NewEngine(Config{}, store, store, action.NewDefaultRegistry(nil), nil)

	_, err := e.Run(context.Background(), "traced", nil)
	require.Equal(t, model.UNREGISTERED_STEP_TYPE, model.KindOf(err))

	spans := recorder.Ended()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name())
	}
	require.Equal(t, []string{"flow.node", "flow.run"}, names)
	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
}
