package cache

import (
	"time"

	"github.com/mohitkumar/flowfirst/model"
	c "github.com/patrickmn/go-cache"
)

const DEFAULT_FLOW_TTL = 5 * time.Minute

// FlowCache keeps recently used flow definitions in memory. Cached flows are
// shared, callers must not modify them.
type FlowCache struct {
	cache *c.Cache
}

func NewFlowCache(ttl time.Duration) *FlowCache {
	if ttl <= 0 {
		ttl = DEFAULT_FLOW_TTL
	}
	return &FlowCache{
		cache: c.New(ttl, 10*time.Minute),
	}
}

func (ch *FlowCache) SaveFlow(flow *model.Flow) {
	ch.cache.SetDefault(flow.Id, flow)
}

func (ch *FlowCache) GetFlow(flowId string) (*model.Flow, bool) {
	f, found := ch.cache.Get(flowId)
	if !found {
		return nil, false
	}
	return f.(*model.Flow), true
}

func (ch *FlowCache) Invalidate(flowId string) {
	ch.cache.Delete(flowId)
}
