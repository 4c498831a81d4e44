package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mohae/deepcopy"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence"
)

var _ persistence.Storage = new(memoryStorage)

// memoryStorage keeps everything in process. Values are deep-copied on the
// way in and out so callers never share maps with the store.
type memoryStorage struct {
	mu         sync.RWMutex
	flows      map[string]model.Flow
	executions map[string]model.Execution
	logs       map[string][]model.ExecutionLog
	tokens     map[string]model.WaitToken
	health     map[string]model.ServiceHealth
	stats      map[string]model.ServiceStat
	webhooks   map[string][]model.EventWebhook
}

func NewMemoryStorage() *memoryStorage {
	return &memoryStorage{
		flows:      make(map[string]model.Flow),
		executions: make(map[string]model.Execution),
		logs:       make(map[string][]model.ExecutionLog),
		tokens:     make(map[string]model.WaitToken),
		health:     make(map[string]model.ServiceHealth),
		stats:      make(map[string]model.ServiceStat),
		webhooks:   make(map[string][]model.EventWebhook),
	}
}

func key(scope string, nodeId string) string {
	return scope + ":" + nodeId
}

func clone[T any](v T) T {
	return deepcopy.Copy(v).(T)
}

func (m *memoryStorage) SaveFlow(ctx context.Context, flow model.Flow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flows[flow.Id] = clone(flow)
	return nil
}

func (m *memoryStorage) GetFlow(ctx context.Context, id string) (*model.Flow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	flow, ok := m.flows[id]
	if !ok {
		return nil, fmt.Errorf("flow %s: %w", id, persistence.ErrNotFound)
	}
	flow = clone(flow)
	return &flow, nil
}

func (m *memoryStorage) DeleteFlow(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flows, id)
	return nil
}

func (m *memoryStorage) ListFlows(ctx context.Context, workspaceId string) ([]model.Flow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	flows := make([]model.Flow, 0)
	for _, f := range m.flows {
		if f.WorkspaceId == workspaceId {
			flows = append(flows, clone(f))
		}
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].Id < flows[j].Id })
	return flows, nil
}

func (m *memoryStorage) CreateExecution(ctx context.Context, exec *model.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[exec.Id]; ok {
		return persistence.StorageLayerError{Message: fmt.Sprintf("execution %s already exists", exec.Id)}
	}
	m.executions[exec.Id] = clone(*exec)
	return nil
}

func (m *memoryStorage) UpdateExecution(ctx context.Context, exec *model.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[exec.Id]; !ok {
		return fmt.Errorf("execution %s: %w", exec.Id, persistence.ErrNotFound)
	}
	m.executions[exec.Id] = clone(*exec)
	return nil
}

func (m *memoryStorage) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exec, ok := m.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", id, persistence.ErrNotFound)
	}
	exec = clone(exec)
	return &exec, nil
}

func (m *memoryStorage) AppendLog(ctx context.Context, log model.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[log.ExecutionId] = append(m.logs[log.ExecutionId], clone(log))
	return nil
}

func (m *memoryStorage) GetLogs(ctx context.Context, executionId string) ([]model.ExecutionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	logs := make([]model.ExecutionLog, 0, len(m.logs[executionId]))
	for _, l := range m.logs[executionId] {
		logs = append(logs, clone(l))
	}
	return logs, nil
}

func (m *memoryStorage) CreateWaitToken(ctx context.Context, token *model.WaitToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token.Token]; ok {
		return persistence.StorageLayerError{Message: "duplicate wait token"}
	}
	m.tokens[token.Token] = clone(*token)
	return nil
}

func (m *memoryStorage) GetWaitToken(ctx context.Context, token string) (*model.WaitToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[token]
	if !ok {
		return nil, fmt.Errorf("wait token: %w", persistence.ErrNotFound)
	}
	t = clone(t)
	return &t, nil
}

func (m *memoryStorage) ConsumeWaitToken(ctx context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return model.NewTokenNotFoundError(token)
	}
	if t.Consumed() {
		return model.NewTokenAlreadyConsumedError(token)
	}
	t.ConsumedAt = &at
	m.tokens[token] = t
	return nil
}

func (m *memoryStorage) GetServiceHealth(ctx context.Context, scope string, nodeId string) (*model.ServiceHealth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.health[key(scope, nodeId)]
	if !ok {
		return nil, nil
	}
	h = clone(h)
	return &h, nil
}

func (m *memoryStorage) SwapServiceHealth(ctx context.Context, expected int64, next model.ServiceHealth) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(next.Scope, next.NodeId)
	current, ok := m.health[k]
	if (!ok && expected != 0) || (ok && current.Version != expected) {
		return false, nil
	}
	next.Version = expected + 1
	m.health[k] = clone(next)
	return true, nil
}

func (m *memoryStorage) ListServiceHealth(ctx context.Context, scope string) ([]model.ServiceHealth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]model.ServiceHealth, 0)
	for _, h := range m.health {
		if h.Scope == scope {
			res = append(res, clone(h))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].NodeId < res[j].NodeId })
	return res, nil
}

func (m *memoryStorage) GetServiceStat(ctx context.Context, scope string, nodeId string) (*model.ServiceStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[key(scope, nodeId)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memoryStorage) SwapServiceStat(ctx context.Context, expected int64, next model.ServiceStat) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(next.Scope, next.NodeId)
	current, ok := m.stats[k]
	if (!ok && expected != 0) || (ok && current.Version != expected) {
		return false, nil
	}
	next.Version = expected + 1
	m.stats[k] = next
	return true, nil
}

func (m *memoryStorage) ListServiceStats(ctx context.Context, scope string) ([]model.ServiceStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]model.ServiceStat, 0)
	for _, s := range m.stats {
		if s.Scope == scope {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].NodeId < res[j].NodeId })
	return res, nil
}

func (m *memoryStorage) CreateWebhook(ctx context.Context, hook model.EventWebhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks[hook.WorkspaceId] = append(m.webhooks[hook.WorkspaceId], hook)
	return nil
}

func (m *memoryStorage) ListWebhooks(ctx context.Context, workspaceId string) ([]model.EventWebhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]model.EventWebhook, len(m.webhooks[workspaceId]))
	copy(res, m.webhooks[workspaceId])
	return res, nil
}

func (m *memoryStorage) Close() error {
	return nil
}
