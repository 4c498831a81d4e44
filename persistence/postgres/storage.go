package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence"
	"go.uber.org/zap"
)

var _ persistence.Storage = new(pgStorage)

// pgStorage keeps each record as a JSONB document next to the columns
// needed for lookups and compare-and-set.
type pgStorage struct {
	pool *pgxpool.Pool
}

// NewPgStorage connects to dsn and creates the tables if needed.
func NewPgStorage(ctx context.Context, dsn string) (*pgStorage, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	logger.Info("connected to postgres", zap.String("host", poolCfg.ConnConfig.Host))
	return &pgStorage{pool: pool}, nil
}

func storageError(msg string, err error) error {
	logger.Error(msg, zap.Error(err))
	return persistence.StorageLayerError{Message: fmt.Sprintf("%s: %v", msg, err)}
}

func (s *pgStorage) SaveFlow(ctx context.Context, flow model.Flow) error {
	data, err := json.Marshal(flow)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO flows (id, workspace_id, data) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET workspace_id = EXCLUDED.workspace_id, data = EXCLUDED.data`,
		flow.Id, flow.WorkspaceId, data)
	if err != nil {
		return storageError("save flow", err)
	}
	return nil
}

func (s *pgStorage) GetFlow(ctx context.Context, id string) (*model.Flow, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM flows WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("flow %s: %w", id, persistence.ErrNotFound)
	}
	if err != nil {
		return nil, storageError("get flow", err)
	}
	var flow model.Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("unmarshal flow: %w", err)
	}
	return &flow, nil
}

func (s *pgStorage) DeleteFlow(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM flows WHERE id = $1`, id); err != nil {
		return storageError("delete flow", err)
	}
	return nil
}

func (s *pgStorage) ListFlows(ctx context.Context, workspaceId string) ([]model.Flow, error) {
	return queryDocs[model.Flow](ctx, s.pool, `SELECT data FROM flows WHERE workspace_id = $1 ORDER BY id`, workspaceId)
}

func (s *pgStorage) CreateExecution(ctx context.Context, exec *model.Execution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO executions (id, data) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, exec.Id, data)
	if err != nil {
		return storageError("create execution", err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.StorageLayerError{Message: fmt.Sprintf("execution %s already exists", exec.Id)}
	}
	return nil
}

func (s *pgStorage) UpdateExecution(ctx context.Context, exec *model.Execution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE executions SET data = $2 WHERE id = $1`, exec.Id, data)
	if err != nil {
		return storageError("update execution", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("execution %s: %w", exec.Id, persistence.ErrNotFound)
	}
	return nil
}

func (s *pgStorage) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM executions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("execution %s: %w", id, persistence.ErrNotFound)
	}
	if err != nil {
		return nil, storageError("get execution", err)
	}
	var exec model.Execution
	if err := json.Unmarshal(data, &exec); err != nil {
		return nil, fmt.Errorf("unmarshal execution: %w", err)
	}
	return &exec, nil
}

func (s *pgStorage) AppendLog(ctx context.Context, log model.ExecutionLog) error {
	data, err := json.Marshal(log)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `INSERT INTO execution_logs (execution_id, data) VALUES ($1, $2)`, log.ExecutionId, data); err != nil {
		return storageError("append execution log", err)
	}
	return nil
}

func (s *pgStorage) GetLogs(ctx context.Context, executionId string) ([]model.ExecutionLog, error) {
	return queryDocs[model.ExecutionLog](ctx, s.pool, `SELECT data FROM execution_logs WHERE execution_id = $1 ORDER BY seq`, executionId)
}

func (s *pgStorage) CreateWaitToken(ctx context.Context, token *model.WaitToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO wait_tokens (token, data) VALUES ($1, $2) ON CONFLICT (token) DO NOTHING`, token.Token, data)
	if err != nil {
		return storageError("create wait token", err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.StorageLayerError{Message: "duplicate wait token"}
	}
	return nil
}

func (s *pgStorage) GetWaitToken(ctx context.Context, token string) (*model.WaitToken, error) {
	var data []byte
	var consumedAt *time.Time
	err := s.pool.QueryRow(ctx, `SELECT data, consumed_at FROM wait_tokens WHERE token = $1`, token).Scan(&data, &consumedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("wait token: %w", persistence.ErrNotFound)
	}
	if err != nil {
		return nil, storageError("get wait token", err)
	}
	var t model.WaitToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal wait token: %w", err)
	}
	t.ConsumedAt = consumedAt
	return &t, nil
}

func (s *pgStorage) ConsumeWaitToken(ctx context.Context, token string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE wait_tokens SET consumed_at = $2 WHERE token = $1 AND consumed_at IS NULL`, token, at)
	if err != nil {
		return storageError("consume wait token", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wait_tokens WHERE token = $1)`, token).Scan(&exists); err != nil {
		return storageError("consume wait token", err)
	}
	if !exists {
		return model.NewTokenNotFoundError(token)
	}
	return model.NewTokenAlreadyConsumedError(token)
}

func (s *pgStorage) GetServiceHealth(ctx context.Context, scope string, nodeId string) (*model.ServiceHealth, error) {
	return getVersioned[model.ServiceHealth](ctx, s.pool, "service_health", scope, nodeId)
}

func (s *pgStorage) SwapServiceHealth(ctx context.Context, expected int64, next model.ServiceHealth) (bool, error) {
	next.Version = expected + 1
	return swapVersioned(ctx, s.pool, "service_health", next.Scope, next.NodeId, expected, next)
}

func (s *pgStorage) ListServiceHealth(ctx context.Context, scope string) ([]model.ServiceHealth, error) {
	return queryDocs[model.ServiceHealth](ctx, s.pool, `SELECT data FROM service_health WHERE scope = $1 ORDER BY node_id`, scope)
}

func (s *pgStorage) GetServiceStat(ctx context.Context, scope string, nodeId string) (*model.ServiceStat, error) {
	return getVersioned[model.ServiceStat](ctx, s.pool, "service_stats", scope, nodeId)
}

func (s *pgStorage) SwapServiceStat(ctx context.Context, expected int64, next model.ServiceStat) (bool, error) {
	next.Version = expected + 1
	return swapVersioned(ctx, s.pool, "service_stats", next.Scope, next.NodeId, expected, next)
}

func (s *pgStorage) ListServiceStats(ctx context.Context, scope string) ([]model.ServiceStat, error) {
	return queryDocs[model.ServiceStat](ctx, s.pool, `SELECT data FROM service_stats WHERE scope = $1 ORDER BY node_id`, scope)
}

func (s *pgStorage) CreateWebhook(ctx context.Context, hook model.EventWebhook) error {
	data, err := json.Marshal(hook)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `INSERT INTO event_webhooks (id, workspace_id, data) VALUES ($1, $2, $3)`, hook.Id, hook.WorkspaceId, data); err != nil {
		return storageError("create webhook", err)
	}
	return nil
}

func (s *pgStorage) ListWebhooks(ctx context.Context, workspaceId string) ([]model.EventWebhook, error) {
	return queryDocs[model.EventWebhook](ctx, s.pool, `SELECT data FROM event_webhooks WHERE workspace_id = $1 ORDER BY id`, workspaceId)
}

func (s *pgStorage) Close() error {
	s.pool.Close()
	return nil
}

func queryDocs[T any](ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageError("query", err)
	}
	defer rows.Close()
	res := make([]T, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, storageError("scan", err)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("unmarshal row: %w", err)
		}
		res = append(res, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate rows", err)
	}
	return res, nil
}

func getVersioned[T any](ctx context.Context, pool *pgxpool.Pool, table string, scope string, nodeId string) (*T, error) {
	var data []byte
	err := pool.QueryRow(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE scope = $1 AND node_id = $2`, table), scope, nodeId).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("get "+table, err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", table, err)
	}
	return &v, nil
}

// swapVersioned inserts when expected is 0 and otherwise updates the row only
// if its version still equals expected.
func swapVersioned(ctx context.Context, pool *pgxpool.Pool, table string, scope string, nodeId string, expected int64, next any) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, err
	}
	var query string
	if expected == 0 {
		query = fmt.Sprintf(`INSERT INTO %s (scope, node_id, version, data) VALUES ($1, $2, $3, $4)
			ON CONFLICT (scope, node_id) DO NOTHING`, table)
	} else {
		query = fmt.Sprintf(`UPDATE %s SET version = $3, data = $4
			WHERE scope = $1 AND node_id = $2 AND version = $5`, table)
	}
	args := []any{scope, nodeId, expected + 1, data}
	if expected != 0 {
		args = append(args, expected)
	}
	tag, err := pool.Exec(ctx, query, args...)
	if err != nil {
		return false, storageError("swap "+table, err)
	}
	return tag.RowsAffected() == 1, nil
}
