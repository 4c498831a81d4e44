package model

import "time"

type WaitToken struct {
	Token       string         `json:"token"`
	ExecutionId string         `json:"executionId"`
	NodeId      string         `json:"nodeId"`
	ResumeNext  string         `json:"resumeNext"`
	Fields      map[string]any `json:"fields"`
	ContextBag  map[string]any `json:"contextBag"`
	CreatedAt   time.Time      `json:"createdAt"`
	ConsumedAt  *time.Time     `json:"consumedAt,omitempty"`
}

func (t *WaitToken) Consumed() bool {
	return t.ConsumedAt != nil
}

// WaitForm is the public view of a wait token.
type WaitForm struct {
	Token       string `json:"token"`
	ExecutionId string `json:"executionId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Fields      []any  `json:"fields"`
}
