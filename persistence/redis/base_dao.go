package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/persistence"
	"github.com/mohitkumar/flowfirst/util"
	"go.uber.org/zap"
)

var errVersionConflict = errors.New("version conflict")

type baseDao struct {
	redisClient rd.UniversalClient
	namespace   string
}

func newBaseDao(conf Config) *baseDao {
	redisClient := rd.NewUniversalClient(&rd.UniversalOptions{
		Addrs:    conf.Addrs,
		Password: conf.Password,
		PoolSize: conf.PoolSize,
	})
	return &baseDao{
		redisClient: redisClient,
		namespace:   conf.namespace(),
	}
}

func (bs *baseDao) getNamespaceKey(args ...string) string {
	return fmt.Sprintf("%s:%s", bs.namespace, strings.Join(args, ":"))
}

func storageError(msg string, err error, fields ...zap.Field) error {
	logger.Error(msg, append(fields, zap.Error(err))...)
	return persistence.StorageLayerError{Message: fmt.Sprintf("%s: %v", msg, err)}
}

// getValue decodes the JSON stored at key. It returns nil, rd.Nil when the key is absent.
func getValue[T any](ctx context.Context, c rd.Cmdable, key string, encdec util.EncoderDecoder[T]) (*T, error) {
	val, err := c.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return encdec.Decode([]byte(val))
}

// swapValue writes next at key only if the stored version equals expected.
// The key is watched so a concurrent writer aborts the transaction. indexKey,
// when set, gets member added so records can be listed per scope.
func swapValue[T any](ctx context.Context, bs *baseDao, key string, indexKey string, member string,
	encdec util.EncoderDecoder[T], expected int64, versionOf func(*T) int64, next *T) (bool, error) {
	err := bs.redisClient.Watch(ctx, func(tx *rd.Tx) error {
		current, err := getValue(ctx, tx, key, encdec)
		switch {
		case errors.Is(err, rd.Nil):
			if expected != 0 {
				return errVersionConflict
			}
		case err != nil:
			return err
		case versionOf(current) != expected:
			return errVersionConflict
		}
		data, err := encdec.Encode(*next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if len(indexKey) > 0 {
				pipe.SAdd(ctx, indexKey, member)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, errVersionConflict) || errors.Is(err, rd.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, storageError("error in swapping record", err, zap.String("key", key))
	}
	return true, nil
}
