package postgres

const schema = `
CREATE TABLE IF NOT EXISTS flows (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	data         JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS flows_workspace_idx ON flows (workspace_id);

CREATE TABLE IF NOT EXISTS executions (
	id   TEXT PRIMARY KEY,
	data JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS execution_logs (
	seq          BIGSERIAL PRIMARY KEY,
	execution_id TEXT NOT NULL,
	data         JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS execution_logs_exec_idx ON execution_logs (execution_id, seq);

CREATE TABLE IF NOT EXISTS wait_tokens (
	token       TEXT PRIMARY KEY,
	consumed_at TIMESTAMPTZ,
	data        JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS service_health (
	scope   TEXT NOT NULL,
	node_id TEXT NOT NULL,
	version BIGINT NOT NULL,
	data    JSONB NOT NULL,
	PRIMARY KEY (scope, node_id)
);

CREATE TABLE IF NOT EXISTS service_stats (
	scope   TEXT NOT NULL,
	node_id TEXT NOT NULL,
	version BIGINT NOT NULL,
	data    JSONB NOT NULL,
	PRIMARY KEY (scope, node_id)
);

CREATE TABLE IF NOT EXISTS event_webhooks (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	data         JSONB NOT NULL
);
`
