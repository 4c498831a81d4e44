package redis

import (
	"context"

	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence"
	"github.com/mohitkumar/flowfirst/util"
	"go.uber.org/zap"
)

const WEBHOOK_KEY string = "WEBHOOK"

var _ persistence.WebhookStorage = new(redisWebhookDao)

type redisWebhookDao struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.EventWebhook]
}

func newRedisWebhookDao(base *baseDao) *redisWebhookDao {
	return &redisWebhookDao{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.EventWebhook](),
	}
}

func (rw *redisWebhookDao) CreateWebhook(ctx context.Context, hook model.EventWebhook) error {
	data, err := rw.encoderDecoder.Encode(hook)
	if err != nil {
		return err
	}
	if err := rw.redisClient.RPush(ctx, rw.getNamespaceKey(WEBHOOK_KEY, hook.WorkspaceId), string(data)).Err(); err != nil {
		return storageError("error in creating webhook", err, zap.String("workspaceId", hook.WorkspaceId))
	}
	return nil
}

func (rw *redisWebhookDao) ListWebhooks(ctx context.Context, workspaceId string) ([]model.EventWebhook, error) {
	values, err := rw.redisClient.LRange(ctx, rw.getNamespaceKey(WEBHOOK_KEY, workspaceId), 0, -1).Result()
	if err != nil {
		return nil, storageError("error in listing webhooks", err, zap.String("workspaceId", workspaceId))
	}
	hooks := make([]model.EventWebhook, 0, len(values))
	for _, v := range values {
		h, err := rw.encoderDecoder.Decode([]byte(v))
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, *h)
	}
	return hooks, nil
}
