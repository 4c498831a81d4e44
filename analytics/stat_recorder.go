package analytics

import (
	"context"
	"math"

	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/model"
	"go.uber.org/zap"
)

const maxStatSwapAttempts = 8

type StatStore interface {
	GetServiceStat(ctx context.Context, scope string, nodeId string) (*model.ServiceStat, error)
	SwapServiceStat(ctx context.Context, expected int64, next model.ServiceStat) (bool, error)
}

var _ Sink = new(StatRecorder)

// StatRecorder keeps per-node execution counters and latency estimates in the
// store. p50 is an exponentially weighted average, p95 a decaying maximum.
type StatRecorder struct {
	store StatStore
}

func NewStatRecorder(store StatStore) *StatRecorder {
	return &StatRecorder{store: store}
}

func (s *StatRecorder) Emit(ctx context.Context, scope string, name string, payload map[string]any) {}

func (s *StatRecorder) RecordStat(ctx context.Context, sample StatSample) {
	for i := 0; i < maxStatSwapAttempts; i++ {
		current, err := s.store.GetServiceStat(ctx, sample.Scope, sample.NodeId)
		if err != nil {
			logger.Warn("error in reading service stat", zap.String("scope", sample.Scope), zap.String("nodeId", sample.NodeId), zap.Error(err))
			return
		}
		var expected int64
		next := model.ServiceStat{Scope: sample.Scope, NodeId: sample.NodeId}
		if current != nil {
			expected = current.Version
			next = *current
		}
		next = ApplySample(next, sample)
		ok, err := s.store.SwapServiceStat(ctx, expected, next)
		if err != nil {
			logger.Warn("error in writing service stat", zap.String("scope", sample.Scope), zap.String("nodeId", sample.NodeId), zap.Error(err))
			return
		}
		if ok {
			return
		}
	}
	logger.Warn("service stat update lost to concurrent writers", zap.String("scope", sample.Scope), zap.String("nodeId", sample.NodeId))
}

// ApplySample folds one sample into a stat record.
func ApplySample(stat model.ServiceStat, sample StatSample) model.ServiceStat {
	ms := sample.Duration.Milliseconds()
	stat.ServiceKey = sample.ServiceKey
	stat.Executions++
	if sample.Success {
		stat.Successes++
	} else {
		stat.Failures++
	}
	if stat.P50Ms == 0 {
		stat.P50Ms = ms
	} else {
		stat.P50Ms = int64(math.Round(float64(stat.P50Ms)*0.9 + float64(ms)*0.1))
	}
	decayed := int64(math.Round(float64(stat.P95Ms) * 0.9))
	if ms > decayed {
		stat.P95Ms = ms
	} else {
		stat.P95Ms = decayed
	}
	stat.LastMs = ms
	return stat
}
