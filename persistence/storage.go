package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohitkumar/flowfirst/model"
)

var ErrNotFound = errors.New("not found")

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

type FlowStorage interface {
	SaveFlow(ctx context.Context, flow model.Flow) error
	GetFlow(ctx context.Context, id string) (*model.Flow, error)
	DeleteFlow(ctx context.Context, id string) error
	ListFlows(ctx context.Context, workspaceId string) ([]model.Flow, error)
}

type ExecutionStorage interface {
	CreateExecution(ctx context.Context, exec *model.Execution) error
	UpdateExecution(ctx context.Context, exec *model.Execution) error
	GetExecution(ctx context.Context, id string) (*model.Execution, error)
	AppendLog(ctx context.Context, log model.ExecutionLog) error
	GetLogs(ctx context.Context, executionId string) ([]model.ExecutionLog, error)
}

type WaitTokenStorage interface {
	CreateWaitToken(ctx context.Context, token *model.WaitToken) error
	GetWaitToken(ctx context.Context, token string) (*model.WaitToken, error)
	// ConsumeWaitToken sets ConsumedAt exactly once. A second call fails with
	// a TokenAlreadyConsumed FlowError.
	ConsumeWaitToken(ctx context.Context, token string, at time.Time) error
}

// HealthStorage keeps breaker and stat records. The Swap methods are
// compare-and-set on Version: expected 0 means the record must not exist yet.
// They return false when another writer got there first. The Get methods
// return nil without error when no record exists.
type HealthStorage interface {
	GetServiceHealth(ctx context.Context, scope string, nodeId string) (*model.ServiceHealth, error)
	SwapServiceHealth(ctx context.Context, expected int64, next model.ServiceHealth) (bool, error)
	ListServiceHealth(ctx context.Context, scope string) ([]model.ServiceHealth, error)
	GetServiceStat(ctx context.Context, scope string, nodeId string) (*model.ServiceStat, error)
	SwapServiceStat(ctx context.Context, expected int64, next model.ServiceStat) (bool, error)
	ListServiceStats(ctx context.Context, scope string) ([]model.ServiceStat, error)
}

type WebhookStorage interface {
	CreateWebhook(ctx context.Context, hook model.EventWebhook) error
	ListWebhooks(ctx context.Context, workspaceId string) ([]model.EventWebhook, error)
}

type Storage interface {
	FlowStorage
	ExecutionStorage
	WaitTokenStorage
	HealthStorage
	WebhookStorage
	Close() error
}
