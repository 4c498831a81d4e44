package redis

import (
	"github.com/mohitkumar/flowfirst/persistence"
)

var _ persistence.Storage = new(redisStorage)

type redisStorage struct {
	*redisFlowDao
	*redisExecutionDao
	*redisWaitTokenDao
	*redisHealthDao
	*redisWebhookDao
	base *baseDao
}

// NewRedisStorage builds every dao on one shared client.
func NewRedisStorage(conf Config) *redisStorage {
	base := newBaseDao(conf)
	return &redisStorage{
		redisFlowDao:      newRedisFlowDao(base),
		redisExecutionDao: newRedisExecutionDao(base),
		redisWaitTokenDao: newRedisWaitTokenDao(base),
		redisHealthDao:    newRedisHealthDao(base),
		redisWebhookDao:   newRedisWebhookDao(base),
		base:              base,
	}
}

func (rs *redisStorage) Close() error {
	return rs.base.redisClient.Close()
}
