package redis

import (
	"context"
	"errors"
	"sort"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence"
	"github.com/mohitkumar/flowfirst/util"
	"go.uber.org/zap"
)

const HEALTH_KEY string = "HEALTH"
const HEALTH_INDEX_KEY string = "HEALTH_IDX"
const STAT_KEY string = "STAT"
const STAT_INDEX_KEY string = "STAT_IDX"

var _ persistence.HealthStorage = new(redisHealthDao)

type redisHealthDao struct {
	*baseDao
	healthEncDec util.EncoderDecoder[model.ServiceHealth]
	statEncDec   util.EncoderDecoder[model.ServiceStat]
}

func newRedisHealthDao(base *baseDao) *redisHealthDao {
	return &redisHealthDao{
		baseDao:      base,
		healthEncDec: util.NewJsonEncoderDecoder[model.ServiceHealth](),
		statEncDec:   util.NewJsonEncoderDecoder[model.ServiceStat](),
	}
}

func (rh *redisHealthDao) GetServiceHealth(ctx context.Context, scope string, nodeId string) (*model.ServiceHealth, error) {
	h, err := getValue(ctx, rh.redisClient, rh.getNamespaceKey(HEALTH_KEY, scope, nodeId), rh.healthEncDec)
	if errors.Is(err, rd.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("error in getting service health", err, zap.String("scope", scope), zap.String("nodeId", nodeId))
	}
	return h, nil
}

func (rh *redisHealthDao) SwapServiceHealth(ctx context.Context, expected int64, next model.ServiceHealth) (bool, error) {
	next.Version = expected + 1
	return swapValue(ctx, rh.baseDao,
		rh.getNamespaceKey(HEALTH_KEY, next.Scope, next.NodeId),
		rh.getNamespaceKey(HEALTH_INDEX_KEY, next.Scope), next.NodeId,
		rh.healthEncDec, expected, func(h *model.ServiceHealth) int64 { return h.Version }, &next)
}

func (rh *redisHealthDao) ListServiceHealth(ctx context.Context, scope string) ([]model.ServiceHealth, error) {
	nodeIds, err := rh.redisClient.SMembers(ctx, rh.getNamespaceKey(HEALTH_INDEX_KEY, scope)).Result()
	if err != nil {
		return nil, storageError("error in listing service health", err, zap.String("scope", scope))
	}
	sort.Strings(nodeIds)
	res := make([]model.ServiceHealth, 0, len(nodeIds))
	for _, nodeId := range nodeIds {
		h, err := rh.GetServiceHealth(ctx, scope, nodeId)
		if err != nil {
			return nil, err
		}
		if h != nil {
			res = append(res, *h)
		}
	}
	return res, nil
}

func (rh *redisHealthDao) GetServiceStat(ctx context.Context, scope string, nodeId string) (*model.ServiceStat, error) {
	s, err := getValue(ctx, rh.redisClient, rh.getNamespaceKey(STAT_KEY, scope, nodeId), rh.statEncDec)
	if errors.Is(err, rd.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("error in getting service stat", err, zap.String("scope", scope), zap.String("nodeId", nodeId))
	}
	return s, nil
}

func (rh *redisHealthDao) SwapServiceStat(ctx context.Context, expected int64, next model.ServiceStat) (bool, error) {
	next.Version = expected + 1
	return swapValue(ctx, rh.baseDao,
		rh.getNamespaceKey(STAT_KEY, next.Scope, next.NodeId),
		rh.getNamespaceKey(STAT_INDEX_KEY, next.Scope), next.NodeId,
		rh.statEncDec, expected, func(s *model.ServiceStat) int64 { return s.Version }, &next)
}

func (rh *redisHealthDao) ListServiceStats(ctx context.Context, scope string) ([]model.ServiceStat, error) {
	nodeIds, err := rh.redisClient.SMembers(ctx, rh.getNamespaceKey(STAT_INDEX_KEY, scope)).Result()
	if err != nil {
		return nil, storageError("error in listing service stats", err, zap.String("scope", scope))
	}
	sort.Strings(nodeIds)
	res := make([]model.ServiceStat, 0, len(nodeIds))
	for _, nodeId := range nodeIds {
		s, err := rh.GetServiceStat(ctx, scope, nodeId)
		if err != nil {
			return nil, err
		}
		if s != nil {
			res = append(res, *s)
		}
	}
	return res, nil
}
