package model

import (
	"time"

	"github.com/mohae/deepcopy"
)

type ExecutionStatus string

const RUNNING ExecutionStatus = "RUNNING"
const WAITING ExecutionStatus = "WAITING"
const SUCCESS ExecutionStatus = "SUCCESS"
const FAILED ExecutionStatus = "FAILED"

type Execution struct {
	Id          string          `json:"id"`
	FlowId      string          `json:"flowId"`
	WorkspaceId string          `json:"workspaceId"`
	Status      ExecutionStatus `json:"status"`
	Input       any             `json:"input"`
	Result      map[string]any  `json:"result,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
}

type LogLevel string

const LOG_INFO LogLevel = "INFO"
const LOG_WARN LogLevel = "WARN"
const LOG_ERROR LogLevel = "ERROR"

type ExecutionLog struct {
	Id          string         `json:"id"`
	ExecutionId string         `json:"executionId"`
	Level       LogLevel       `json:"level"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// RunContext is the state of one execution shared with the steps it runs.
type RunContext struct {
	ExecutionId string
	FlowId      string
	WorkspaceId string
	Bag         map[string]any
}

// Snapshot copies the context with a deep copy of the bag. Steps get a
// snapshot per attempt, so an attempt left running after its timeout never
// shares the bag the engine keeps writing.
func (c *RunContext) Snapshot() *RunContext {
	if c == nil {
		return nil
	}
	snapshot := *c
	if c.Bag != nil {
		snapshot.Bag = deepcopy.Copy(c.Bag).(map[string]any)
	}
	return &snapshot
}

type Waiting struct {
	Token      string `json:"token"`
	PublicUrl  string `json:"publicUrl"`
	ResumeNext string `json:"resumeNext"`
}

// RunResult is either a finished run (Result, Bag) or a suspended one (Waiting).
type RunResult struct {
	ExecutionId string         `json:"executionId"`
	Result      any            `json:"result,omitempty"`
	Bag         map[string]any `json:"bag,omitempty"`
	Waiting     *Waiting       `json:"waiting,omitempty"`
}

func (r *RunResult) IsWaiting() bool {
	return r.Waiting != nil
}

type WorkflowRunRequest struct {
	Input map[string]any `json:"input"`
}

type WorkflowResumeRequest struct {
	Data map[string]any `json:"data"`
}
