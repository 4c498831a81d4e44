package model

import "time"

const DEFAULT_WORKSPACE = "default"

const DEFAULT_ROUTE = "default"

type Flow struct {
	Id          string         `json:"id" yaml:"id"`
	WorkspaceId string         `json:"workspaceId" yaml:"workspaceId"`
	Name        string         `json:"name" yaml:"name"`
	Definition  FlowDefinition `json:"definition" yaml:"definition"`
	CreatedAt   time.Time      `json:"createdAt" yaml:"-"`
	UpdatedAt   time.Time      `json:"updatedAt" yaml:"-"`
}

// Scope is the key under which breaker, stat and webhook records of the flow live.
func (f *Flow) Scope() string {
	if len(f.WorkspaceId) == 0 {
		return DEFAULT_WORKSPACE
	}
	return f.WorkspaceId
}

type FlowDefinition struct {
	Start string `json:"start" yaml:"start"`
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges,omitempty" yaml:"edges,omitempty"`
}

type Node struct {
	Id         string            `json:"id" yaml:"id"`
	Type       string            `json:"type" yaml:"type"`
	Config     map[string]any    `json:"config,omitempty" yaml:"config,omitempty"`
	Next       string            `json:"next,omitempty" yaml:"next,omitempty"`
	Resilience *ResiliencePolicy `json:"resilience,omitempty" yaml:"resilience,omitempty"`
}

// Edge is a transition out of From. An empty Via is the default route.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
	Via  string `json:"via,omitempty" yaml:"via,omitempty"`
}

func (e Edge) Route() string {
	if len(e.Via) == 0 {
		return DEFAULT_ROUTE
	}
	return e.Via
}

// NodeIndex maps node ids to nodes. Later duplicates win.
func (d *FlowDefinition) NodeIndex() map[string]Node {
	index := make(map[string]Node, len(d.Nodes))
	for _, n := range d.Nodes {
		index[n.Id] = n
	}
	return index
}

// ResiliencePolicy holds per-step timeout, retry and breaker settings.
// A zero field means "not set" when merging.
type ResiliencePolicy struct {
	TimeoutMs        int `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty" mapstructure:"timeout-ms"`
	MaxAttempts      int `json:"maxAttempts,omitempty" yaml:"maxAttempts,omitempty" mapstructure:"max-attempts"`
	BaseMs           int `json:"baseMs,omitempty" yaml:"baseMs,omitempty" mapstructure:"base-ms"`
	MaxMs            int `json:"maxMs,omitempty" yaml:"maxMs,omitempty" mapstructure:"max-ms"`
	FailureThreshold int `json:"failureThreshold,omitempty" yaml:"failureThreshold,omitempty" mapstructure:"failure-threshold"`
	CooldownMs       int `json:"cooldownMs,omitempty" yaml:"cooldownMs,omitempty" mapstructure:"cooldown-ms"`
}

func DefaultResiliencePolicy() ResiliencePolicy {
	return ResiliencePolicy{
		TimeoutMs:        30000,
		MaxAttempts:      1,
		BaseMs:           300,
		MaxMs:            8000,
		FailureThreshold: 5,
		CooldownMs:       60000,
	}
}

// Merge returns p with every non-zero field of override applied on top.
func (p ResiliencePolicy) Merge(override *ResiliencePolicy) ResiliencePolicy {
	if override == nil {
		return p
	}
	if override.TimeoutMs != 0 {
		p.TimeoutMs = override.TimeoutMs
	}
	if override.MaxAttempts != 0 {
		p.MaxAttempts = override.MaxAttempts
	}
	if override.BaseMs != 0 {
		p.BaseMs = override.BaseMs
	}
	if override.MaxMs != 0 {
		p.MaxMs = override.MaxMs
	}
	if override.FailureThreshold != 0 {
		p.FailureThreshold = override.FailureThreshold
	}
	if override.CooldownMs != 0 {
		p.CooldownMs = override.CooldownMs
	}
	return p
}

func (p ResiliencePolicy) Timeout() time.Duration {
	if p.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

func (p ResiliencePolicy) Cooldown() time.Duration {
	return time.Duration(p.CooldownMs) * time.Millisecond
}
