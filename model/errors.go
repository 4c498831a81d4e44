package model

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	FLOW_NOT_FOUND         ErrorKind = "FlowNotFound"
	STEP_NOT_FOUND         ErrorKind = "StepNotFound"
	UNREGISTERED_STEP_TYPE ErrorKind = "UnregisteredStepType"
	CIRCUIT_OPEN           ErrorKind = "CircuitOpen"
	TIMEOUT                ErrorKind = "Timeout"
	STEP_EXECUTION_FAILED  ErrorKind = "StepExecutionFailed"
	STEP_LIMIT_EXCEEDED    ErrorKind = "StepLimitExceeded"
	TOKEN_NOT_FOUND        ErrorKind = "TokenNotFound"
	TOKEN_ALREADY_CONSUMED ErrorKind = "TokenAlreadyConsumed"
	EXECUTION_NOT_FOUND    ErrorKind = "ExecutionNotFound"
	INVALID_FLOW           ErrorKind = "InvalidFlow"
	INVALID_REQUEST        ErrorKind = "InvalidRequest"
	INTERNAL               ErrorKind = "Internal"
)

// FlowError is a classified engine failure. Err, when set, is the underlying cause.
type FlowError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is matches any FlowError of the same kind, so errors.Is(err, &FlowError{Kind: TIMEOUT}) works.
func (e *FlowError) Is(target error) bool {
	t, ok := target.(*FlowError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the outermost FlowError in err's chain, or INTERNAL.
func KindOf(err error) ErrorKind {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return INTERNAL
}

func NewFlowNotFoundError(flowId string) error {
	return &FlowError{Kind: FLOW_NOT_FOUND, Message: fmt.Sprintf("flow %s not found", flowId)}
}

func NewStepNotFoundError(nodeId string) error {
	return &FlowError{Kind: STEP_NOT_FOUND, Message: fmt.Sprintf("node %s not found", nodeId)}
}

func NewUnregisteredStepTypeError(stepType string) error {
	return &FlowError{Kind: UNREGISTERED_STEP_TYPE, Message: fmt.Sprintf("step type %s not registered", stepType)}
}

func NewCircuitOpenError(scope string, nodeId string, reason string) error {
	return &FlowError{Kind: CIRCUIT_OPEN, Message: fmt.Sprintf("circuit open for %s/%s (%s)", scope, nodeId, reason)}
}

func NewTimeoutError(label string, ms int) error {
	return &FlowError{Kind: TIMEOUT, Message: fmt.Sprintf("%s timeout after %dms", label, ms)}
}

func NewStepExecutionError(label string, err error) error {
	return &FlowError{Kind: STEP_EXECUTION_FAILED, Message: fmt.Sprintf("%s failed", label), Err: err}
}

func NewStepLimitExceededError(limit int) error {
	return &FlowError{Kind: STEP_LIMIT_EXCEEDED, Message: fmt.Sprintf("run exceeded %d steps", limit)}
}

func NewTokenNotFoundError(token string) error {
	return &FlowError{Kind: TOKEN_NOT_FOUND, Message: fmt.Sprintf("wait token %s not found", token)}
}

func NewTokenAlreadyConsumedError(token string) error {
	return &FlowError{Kind: TOKEN_ALREADY_CONSUMED, Message: fmt.Sprintf("wait token %s already consumed", token)}
}

func NewExecutionNotFoundError(executionId string) error {
	return &FlowError{Kind: EXECUTION_NOT_FOUND, Message: fmt.Sprintf("execution %s not found", executionId)}
}

func NewInvalidFlowError(format string, args ...any) error {
	return &FlowError{Kind: INVALID_FLOW, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidRequestError(format string, args ...any) error {
	return &FlowError{Kind: INVALID_REQUEST, Message: fmt.Sprintf(format, args...)}
}
