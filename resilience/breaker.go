package resilience

import (
	"context"
	"time"

	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence"
	"go.uber.org/zap"
)

const maxSwapAttempts = 8

type HealthStore interface {
	GetServiceHealth(ctx context.Context, scope string, nodeId string) (*model.ServiceHealth, error)
	SwapServiceHealth(ctx context.Context, expected int64, next model.ServiceHealth) (bool, error)
}

// Breaker is a circuit breaker whose state lives in the store, one record per
// (scope, node). All transitions are compare-and-set on the record version.
type Breaker struct {
	store HealthStore
	now   func() time.Time
}

func NewBreaker(store HealthStore) *Breaker {
	return &Breaker{store: store, now: time.Now}
}

// WithClock replaces the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Allow returns a CircuitOpen error when calls to the node are blocked. An
// OPEN circuit whose cooldown has elapsed moves to HALF_OPEN and lets the call
// through. Store failures let the call through.
func (b *Breaker) Allow(ctx context.Context, scope string, nodeId string, policy model.ResiliencePolicy) error {
	for i := 0; i < maxSwapAttempts; i++ {
		current, err := b.store.GetServiceHealth(ctx, scope, nodeId)
		if err != nil {
			logger.Warn("breaker state unavailable, allowing call", zap.String("scope", scope), zap.String("nodeId", nodeId), zap.Error(err))
			return nil
		}
		if current == nil || current.State != model.CIRCUIT_STATE_OPEN {
			return nil
		}
		if current.OpenedAt != nil && b.now().Sub(*current.OpenedAt) < policy.Cooldown() {
			return model.NewCircuitOpenError(scope, nodeId, "open-cooldown")
		}
		next := *current
		next.State = model.CIRCUIT_HALF_OPEN
		ok, err := b.store.SwapServiceHealth(ctx, current.Version, next)
		if err != nil {
			logger.Warn("error in moving breaker to half open", zap.String("scope", scope), zap.String("nodeId", nodeId), zap.Error(err))
			return nil
		}
		if ok {
			logger.Info("breaker half open", zap.String("scope", scope), zap.String("nodeId", nodeId))
			return nil
		}
	}
	return nil
}

// Record applies the outcome of one call to the breaker state.
func (b *Breaker) Record(ctx context.Context, scope string, nodeId string, serviceKey string, policy model.ResiliencePolicy, success bool) error {
	for i := 0; i < maxSwapAttempts; i++ {
		current, err := b.store.GetServiceHealth(ctx, scope, nodeId)
		if err != nil {
			return err
		}
		var expected int64
		next := model.ServiceHealth{Scope: scope, NodeId: nodeId, ServiceKey: serviceKey, State: model.CIRCUIT_CLOSED}
		if current != nil {
			expected = current.Version
			next = *current
			next.ServiceKey = serviceKey
		}
		if success {
			if current != nil && current.State == model.CIRCUIT_CLOSED && current.Failures == 0 {
				return nil
			}
			next.State = model.CIRCUIT_CLOSED
			next.Failures = 0
			next.OpenedAt = nil
			next.LastFailure = nil
		} else {
			b.applyFailure(&next, policy)
		}
		ok, err := b.store.SwapServiceHealth(ctx, expected, next)
		if err != nil {
			return err
		}
		if ok {
			if current == nil || current.State != next.State {
				logger.Info("breaker state changed", zap.String("scope", scope), zap.String("nodeId", nodeId), zap.String("state", string(next.State)))
			}
			return nil
		}
	}
	return persistence.StorageLayerError{Message: "breaker update lost to concurrent writers"}
}

func (b *Breaker) applyFailure(h *model.ServiceHealth, policy model.ResiliencePolicy) {
	now := b.now()
	h.Failures++
	h.LastFailure = &now
	switch h.State {
	case model.CIRCUIT_HALF_OPEN:
		h.State = model.CIRCUIT_STATE_OPEN
		h.OpenedAt = &now
	case model.CIRCUIT_CLOSED:
		if policy.FailureThreshold > 0 && h.Failures >= policy.FailureThreshold {
			h.State = model.CIRCUIT_STATE_OPEN
			h.OpenedAt = &now
		}
	}
}
