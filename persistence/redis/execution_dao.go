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

const EXECUTION_KEY string = "EXEC"
const EXECUTION_LOG_KEY string = "EXEC_LOG"

var _ persistence.ExecutionStorage = new(redisExecutionDao)

type redisExecutionDao struct {
	*baseDao
	encoderDecoder    util.EncoderDecoder[model.Execution]
	logEncoderDecoder util.EncoderDecoder[model.ExecutionLog]
}

func newRedisExecutionDao(base *baseDao) *redisExecutionDao {
	return &redisExecutionDao{
		baseDao:           base,
		encoderDecoder:    util.NewJsonEncoderDecoder[model.Execution](),
		logEncoderDecoder: util.NewJsonEncoderDecoder[model.ExecutionLog](),
	}
}

func (re *redisExecutionDao) CreateExecution(ctx context.Context, exec *model.Execution) error {
	data, err := re.encoderDecoder.Encode(*exec)
	if err != nil {
		return err
	}
	created, err := re.redisClient.HSetNX(ctx, re.getNamespaceKey(EXECUTION_KEY), exec.Id, string(data)).Result()
	if err != nil {
		return storageError("error in creating execution", err, zap.String("executionId", exec.Id))
	}
	if !created {
		return persistence.StorageLayerError{Message: fmt.Sprintf("execution %s already exists", exec.Id)}
	}
	return nil
}

func (re *redisExecutionDao) UpdateExecution(ctx context.Context, exec *model.Execution) error {
	key := re.getNamespaceKey(EXECUTION_KEY)
	exists, err := re.redisClient.HExists(ctx, key, exec.Id).Result()
	if err != nil {
		return storageError("error in updating execution", err, zap.String("executionId", exec.Id))
	}
	if !exists {
		return fmt.Errorf("execution %s: %w", exec.Id, persistence.ErrNotFound)
	}
	data, err := re.encoderDecoder.Encode(*exec)
	if err != nil {
		return err
	}
	if err := re.redisClient.HSet(ctx, key, exec.Id, string(data)).Err(); err != nil {
		return storageError("error in updating execution", err, zap.String("executionId", exec.Id))
	}
	return nil
}

func (re *redisExecutionDao) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	val, err := re.redisClient.HGet(ctx, re.getNamespaceKey(EXECUTION_KEY), id).Result()
	if errors.Is(err, rd.Nil) {
		return nil, fmt.Errorf("execution %s: %w", id, persistence.ErrNotFound)
	}
	if err != nil {
		return nil, storageError("error in getting execution", err, zap.String("executionId", id))
	}
	return re.encoderDecoder.Decode([]byte(val))
}

func (re *redisExecutionDao) AppendLog(ctx context.Context, log model.ExecutionLog) error {
	data, err := re.logEncoderDecoder.Encode(log)
	if err != nil {
		return err
	}
	if err := re.redisClient.RPush(ctx, re.getNamespaceKey(EXECUTION_LOG_KEY, log.ExecutionId), string(data)).Err(); err != nil {
		return storageError("error in appending execution log", err, zap.String("executionId", log.ExecutionId))
	}
	return nil
}

func (re *redisExecutionDao) GetLogs(ctx context.Context, executionId string) ([]model.ExecutionLog, error) {
	values, err := re.redisClient.LRange(ctx, re.getNamespaceKey(EXECUTION_LOG_KEY, executionId), 0, -1).Result()
	if err != nil {
		return nil, storageError("error in getting execution logs", err, zap.String("executionId", executionId))
	}
	logs := make([]model.ExecutionLog, 0, len(values))
	for _, v := range values {
		l, err := re.logEncoderDecoder.Decode([]byte(v))
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, nil
}
