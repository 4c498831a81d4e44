package model

import "time"

type CircuitState string

const CIRCUIT_CLOSED CircuitState = "CLOSED"
const CIRCUIT_STATE_OPEN CircuitState = "OPEN"
const CIRCUIT_HALF_OPEN CircuitState = "HALF_OPEN"

// ServiceHealth is the persisted breaker state of one node in one scope.
// Version is bumped by the store on every successful swap.
type ServiceHealth struct {
	Scope       string       `json:"workspaceId"`
	NodeId      string       `json:"nodeId"`
	ServiceKey  string       `json:"serviceKey"`
	State       CircuitState `json:"state"`
	Failures    int          `json:"failures"`
	OpenedAt    *time.Time   `json:"openedAt,omitempty"`
	LastFailure *time.Time   `json:"lastFailure,omitempty"`
	Version     int64        `json:"version"`
}

type ServiceStat struct {
	Scope      string `json:"workspaceId"`
	NodeId     string `json:"nodeId"`
	ServiceKey string `json:"serviceKey"`
	Executions int64  `json:"executions"`
	Successes  int64  `json:"successes"`
	Failures   int64  `json:"failures"`
	P50Ms      int64  `json:"p50Ms"`
	P95Ms      int64  `json:"p95Ms"`
	LastMs     int64  `json:"lastMs"`
	Version    int64  `json:"version"`
}

type EventWebhook struct {
	Id          string    `json:"id"`
	WorkspaceId string    `json:"workspaceId"`
	Url         string    `json:"url"`
	Secret      string    `json:"secret,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}
