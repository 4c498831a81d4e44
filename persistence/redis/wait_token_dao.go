package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence"
	"github.com/mohitkumar/flowfirst/util"
	"go.uber.org/zap"
)

const WAIT_TOKEN_KEY string = "TOKEN"

var _ persistence.WaitTokenStorage = new(redisWaitTokenDao)

type redisWaitTokenDao struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.WaitToken]
}

func newRedisWaitTokenDao(base *baseDao) *redisWaitTokenDao {
	return &redisWaitTokenDao{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.WaitToken](),
	}
}

func (rt *redisWaitTokenDao) CreateWaitToken(ctx context.Context, token *model.WaitToken) error {
	data, err := rt.encoderDecoder.Encode(*token)
	if err != nil {
		return err
	}
	created, err := rt.redisClient.SetNX(ctx, rt.getNamespaceKey(WAIT_TOKEN_KEY, token.Token), string(data), 0).Result()
	if err != nil {
		return storageError("error in creating wait token", err, zap.String("executionId", token.ExecutionId))
	}
	if !created {
		return persistence.StorageLayerError{Message: "duplicate wait token"}
	}
	return nil
}

func (rt *redisWaitTokenDao) GetWaitToken(ctx context.Context, token string) (*model.WaitToken, error) {
	t, err := getValue(ctx, rt.redisClient, rt.getNamespaceKey(WAIT_TOKEN_KEY, token), rt.encoderDecoder)
	if errors.Is(err, rd.Nil) {
		return nil, fmt.Errorf("wait token: %w", persistence.ErrNotFound)
	}
	if err != nil {
		return nil, storageError("error in getting wait token", err)
	}
	return t, nil
}

func (rt *redisWaitTokenDao) ConsumeWaitToken(ctx context.Context, token string, at time.Time) error {
	key := rt.getNamespaceKey(WAIT_TOKEN_KEY, token)
	err := rt.redisClient.Watch(ctx, func(tx *rd.Tx) error {
		t, err := getValue(ctx, tx, key, rt.encoderDecoder)
		if errors.Is(err, rd.Nil) {
			return model.NewTokenNotFoundError(token)
		}
		if err != nil {
			return err
		}
		if t.Consumed() {
			return model.NewTokenAlreadyConsumedError(token)
		}
		t.ConsumedAt = &at
		data, err := rt.encoderDecoder.Encode(*t)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, key, string(data), 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, rd.TxFailedErr) {
		return model.NewTokenAlreadyConsumedError(token)
	}
	var fe *model.FlowError
	if err != nil && !errors.As(err, &fe) {
		return storageError("error in consuming wait token", err)
	}
	return err
}
