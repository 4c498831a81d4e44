package analytics

import (
	"context"
	"time"

	"github.com/mohitkumar/flowfirst/logger"
	"go.uber.org/zap"
)

const EVENT_EXECUTION_STARTED = "execution.started"
const EVENT_NODE_STARTED = "node.started"
const EVENT_NODE_SUCCEEDED = "node.succeeded"
const EVENT_NODE_FAILED = "node.failed"
const EVENT_EXECUTION_WAITING = "execution.waiting"
const EVENT_EXECUTION_FINISHED = "execution.finished"

// StatSample is the outcome of one step invocation, retries included.
type StatSample struct {
	Scope      string
	NodeId     string
	ServiceKey string
	Duration   time.Duration
	Success    bool
	At         time.Time
}

// Sink receives execution telemetry. Implementations must not block the run
// for long and never report errors back to it.
type Sink interface {
	Emit(ctx context.Context, scope string, name string, payload map[string]any)
	RecordStat(ctx context.Context, sample StatSample)
}

type NoopSink struct{}

var _ Sink = NoopSink{}

func (NoopSink) Emit(ctx context.Context, scope string, name string, payload map[string]any) {}

func (NoopSink) RecordStat(ctx context.Context, sample StatSample) {}

type multiSink struct {
	sinks []Sink
}

// NewMultiSink fans out to every sink. A panicking sink is logged and skipped.
func NewMultiSink(sinks ...Sink) Sink {
	return &multiSink{sinks: sinks}
}

func (m *multiSink) Emit(ctx context.Context, scope string, name string, payload map[string]any) {
	for _, s := range m.sinks {
		safely(name, func() { s.Emit(ctx, scope, name, payload) })
	}
}

func (m *multiSink) RecordStat(ctx context.Context, sample StatSample) {
	for _, s := range m.sinks {
		safely("stat", func() { s.RecordStat(ctx, sample) })
	}
}

func safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("telemetry sink panicked", zap.String("event", what), zap.Any("panic", r))
		}
	}()
	fn()
}
