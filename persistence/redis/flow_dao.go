package redis

import (
	"context"
	"errors"
	"fmt"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence"
	"github.com/mohitkumar/flowfirst/util"
	"go.uber.org/zap"
)

const FLOW_KEY string = "FLOW"
const WORKSPACE_FLOWS_KEY string = "WS_FLOWS"

var _ persistence.FlowStorage = new(redisFlowDao)

type redisFlowDao struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.Flow]
}

func newRedisFlowDao(base *baseDao) *redisFlowDao {
	return &redisFlowDao{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.Flow](),
	}
}

func (rf *redisFlowDao) SaveFlow(ctx context.Context, flow model.Flow) error {
	data, err := rf.encoderDecoder.Encode(flow)
	if err != nil {
		return err
	}
	previous, err := rf.GetFlow(ctx, flow.Id)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	_, err = rf.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		if previous != nil && previous.WorkspaceId != flow.WorkspaceId {
			pipe.SRem(ctx, rf.getNamespaceKey(WORKSPACE_FLOWS_KEY, previous.WorkspaceId), flow.Id)
		}
		pipe.HSet(ctx, rf.getNamespaceKey(FLOW_KEY), flow.Id, string(data))
		pipe.SAdd(ctx, rf.getNamespaceKey(WORKSPACE_FLOWS_KEY, flow.WorkspaceId), flow.Id)
		return nil
	})
	if err != nil {
		return storageError("error in saving flow", err, zap.String("flowId", flow.Id))
	}
	return nil
}

func (rf *redisFlowDao) GetFlow(ctx context.Context, id string) (*model.Flow, error) {
	val, err := rf.redisClient.HGet(ctx, rf.getNamespaceKey(FLOW_KEY), id).Result()
	if errors.Is(err, rd.Nil) {
		return nil, fmt.Errorf("flow %s: %w", id, persistence.ErrNotFound)
	}
	if err != nil {
		return nil, storageError("error in getting flow", err, zap.String("flowId", id))
	}
	return rf.encoderDecoder.Decode([]byte(val))
}

func (rf *redisFlowDao) DeleteFlow(ctx context.Context, id string) error {
	flow, err := rf.GetFlow(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = rf.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HDel(ctx, rf.getNamespaceKey(FLOW_KEY), id)
		pipe.SRem(ctx, rf.getNamespaceKey(WORKSPACE_FLOWS_KEY, flow.WorkspaceId), id)
		return nil
	})
	if err != nil {
		return storageError("error in deleting flow", err, zap.String("flowId", id))
	}
	return nil
}

func (rf *redisFlowDao) ListFlows(ctx context.Context, workspaceId string) ([]model.Flow, error) {
	ids, err := rf.redisClient.SMembers(ctx, rf.getNamespaceKey(WORKSPACE_FLOWS_KEY, workspaceId)).Result()
	if err != nil {
		return nil, storageError("error in listing flows", err, zap.String("workspaceId", workspaceId))
	}
	flows := make([]model.Flow, 0, len(ids))
	if len(ids) == 0 {
		return flows, nil
	}
	values, err := rf.redisClient.HMGet(ctx, rf.getNamespaceKey(FLOW_KEY), ids...).Result()
	if err != nil {
		return nil, storageError("error in listing flows", err, zap.String("workspaceId", workspaceId))
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		flow, err := rf.encoderDecoder.Decode([]byte(s))
		if err != nil {
			return nil, err
		}
		flows = append(flows, *flow)
	}
	return flows, nil
}
