package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/flowfirst/action"
	"github.com/mohitkumar/flowfirst/cache"
	"github.com/mohitkumar/flowfirst/flow"
	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence"
	"go.uber.org/zap"
)

// ServiceInfo describes one registered step type.
type ServiceInfo struct {
	Type  string         `json:"type"`
	Label string         `json:"label"`
	Meta  map[string]any `json:"meta,omitempty"`
}

type MetadataService interface {
	SaveFlow(ctx context.Context, f model.Flow) (*model.Flow, error)
	GetFlow(ctx context.Context, id string) (*model.Flow, error)
	DeleteFlow(ctx context.Context, id string) error
	ListFlows(ctx context.Context, workspaceId string) ([]model.Flow, error)
	Services() []ServiceInfo
	GetMetadataStorage() MetadataStorage
}

var _ MetadataService = new(MetadataServiceImpl)

type MetadataServiceImpl struct {
	storage  MetadataStorage
	registry *action.Registry
	cache    *cache.FlowCache
	now      func() time.Time
}

func NewMetadataService(storage MetadataStorage, registry *action.Registry, flowCache *cache.FlowCache) *MetadataServiceImpl {
	if flowCache == nil {
		flowCache = cache.NewFlowCache(cache.DEFAULT_FLOW_TTL)
	}
	return &MetadataServiceImpl{
		storage:  storage,
		registry: registry,
		cache:    flowCache,
		now:      time.Now,
	}
}

// SaveFlow validates and stores f. Step hooks run before anything is written:
// OnCreate for nodes the stored flow did not have, OnSave for every node and
// OnDelete for nodes that were dropped. Hooks may rewrite node config.
func (s *MetadataServiceImpl) SaveFlow(ctx context.Context, f model.Flow) (*model.Flow, error) {
	if len(f.Id) == 0 {
		f.Id = uuid.NewString()
	}
	if len(f.WorkspaceId) == 0 {
		f.WorkspaceId = model.DEFAULT_WORKSPACE
	}
	if err := flow.Validate(f.Definition, s.registry.Has); err != nil {
		return nil, err
	}

	previous, err := s.storage.GetFlow(ctx, f.Id)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return nil, err
	}
	oldNodes := map[string]model.Node{}
	if previous != nil {
		oldNodes = previous.Definition.NodeIndex()
	}

	nodes := make([]model.Node, len(f.Definition.Nodes))
	copy(nodes, f.Definition.Nodes)
	for i := range nodes {
		node := &nodes[i]
		step, _ := s.registry.Get(node.Type)
		if _, existed := oldNodes[node.Id]; !existed {
			if hook, ok := step.(action.CreateHook); ok {
				if err := hook.OnCreate(ctx, f.Id, node); err != nil {
					return nil, hookError(err)
				}
			}
		}
		if hook, ok := step.(action.SaveHook); ok {
			if err := hook.OnSave(ctx, f.Id, node); err != nil {
				return nil, hookError(err)
			}
		}
		delete(oldNodes, node.Id)
	}
	if err := s.runDeleteHooks(ctx, f.Id, oldNodes); err != nil {
		return nil, err
	}
	f.Definition.Nodes = nodes

	now := s.now()
	f.CreatedAt = now
	if previous != nil {
		f.CreatedAt = previous.CreatedAt
	}
	f.UpdatedAt = now
	if err := s.storage.SaveFlow(ctx, f); err != nil {
		return nil, err
	}
	s.cache.Invalidate(f.Id)
	logger.Info("flow saved", zap.String("flowId", f.Id), zap.String("workspaceId", f.WorkspaceId), zap.Int("nodes", len(nodes)))
	return &f, nil
}

func (s *MetadataServiceImpl) runDeleteHooks(ctx context.Context, flowId string, removed map[string]model.Node) error {
	for id, node := range removed {
		step, ok := s.registry.Get(node.Type)
		if !ok {
			continue
		}
		if hook, ok := step.(action.DeleteHook); ok {
			if err := hook.OnDelete(ctx, flowId, id); err != nil {
				return hookError(err)
			}
		}
	}
	return nil
}

func hookError(err error) error {
	if model.KindOf(err) != model.INTERNAL {
		return err
	}
	return &model.FlowError{Kind: model.INVALID_FLOW, Message: "step rejected node", Err: err}
}

func (s *MetadataServiceImpl) GetFlow(ctx context.Context, id string) (*model.Flow, error) {
	if f, ok := s.cache.GetFlow(id); ok {
		return f, nil
	}
	f, err := s.storage.GetFlow(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SaveFlow(f)
	return f, nil
}

func (s *MetadataServiceImpl) DeleteFlow(ctx context.Context, id string) error {
	f, err := s.storage.GetFlow(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return model.NewFlowNotFoundError(id)
	}
	if err != nil {
		return err
	}
	if err := s.runDeleteHooks(ctx, id, f.Definition.NodeIndex()); err != nil {
		return err
	}
	if err := s.storage.DeleteFlow(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	logger.Info("flow deleted", zap.String("flowId", id))
	return nil
}

func (s *MetadataServiceImpl) ListFlows(ctx context.Context, workspaceId string) ([]model.Flow, error) {
	return s.storage.ListFlows(ctx, workspaceId)
}

// Services lists the registered step types in name order.
func (s *MetadataServiceImpl) Services() []ServiceInfo {
	keys := s.registry.Keys()
	services := make([]ServiceInfo, 0, len(keys))
	for _, k := range keys {
		info := ServiceInfo{Type: k, Label: k}
		step, _ := s.registry.Get(k)
		if d, ok := step.(action.Describer); ok {
			info.Label = d.Label()
			info.Meta = d.Meta()
		}
		services = append(services, info)
	}
	return services
}

func (s *MetadataServiceImpl) GetMetadataStorage() MetadataStorage {
	return s.storage
}
