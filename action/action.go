package action

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/util"
)

// Request is what a step sees when the engine runs one node. Context is a
// snapshot taken for the attempt; writes to its Bag are not seen by the engine.
type Request struct {
	Node    model.Node
	Input   any
	Context *model.RunContext
}

// WaitRequest asks the engine to suspend the run until external input arrives.
type WaitRequest struct {
	Payload    map[string]any
	ResumeNext string
}

// Result of a step. Route selects an outgoing edge. Next is used only when the
// node has no edges. A nil Output leaves the bag untouched.
type Result struct {
	Output any
	Route  string
	Next   string
	Wait   *WaitRequest
}

type Step interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// Describer is implemented by steps that show up in the services listing.
type Describer interface {
	Label() string
	Meta() map[string]any
}

// PolicyProvider gives step-type resilience defaults, applied between the
// engine defaults and the node override.
type PolicyProvider interface {
	DefaultPolicy() *model.ResiliencePolicy
}

// CreateHook, SaveHook and DeleteHook are called by the metadata service when a
// flow is saved: OnCreate for nodes new to the flow, OnSave for every node
// being stored and OnDelete for nodes that went away.
type CreateHook interface {
	OnCreate(ctx context.Context, flowId string, node *model.Node) error
}

type SaveHook interface {
	OnSave(ctx context.Context, flowId string, node *model.Node) error
}

type DeleteHook interface {
	OnDelete(ctx context.Context, flowId string, nodeId string) error
}

type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
}

func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]Step)}
}

// NewDefaultRegistry returns a registry holding every built-in step.
func NewDefaultRegistry(client *http.Client) *Registry {
	r := NewRegistry()
	r.MustRegister("hello", NewHelloAction())
	r.MustRegister("webhook", NewWebhookAction(client))
	r.MustRegister("decision", NewDecisionAction())
	r.MustRegister("form", NewFormAction())
	r.MustRegister("javascript", NewJsAction())
	r.MustRegister("jsonmapper", NewJsonMapAction())
	r.MustRegister("delay", NewDelayAction())
	return r
}

func (r *Registry) Register(stepType string, step Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.steps[stepType]; ok {
		return fmt.Errorf("step type %s already registered", stepType)
	}
	r.steps[stepType] = step
	return nil
}

func (r *Registry) MustRegister(stepType string, step Step) {
	if err := r.Register(stepType, step); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(stepType string) (Step, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.steps[stepType]
	return s, ok
}

func (r *Registry) Has(stepType string) bool {
	_, ok := r.Get(stepType)
	return ok
}

func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.steps))
	for k := range r.steps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decodeConfig reads a node config map into a typed struct through JSON.
func decodeConfig[T any](config map[string]any) (*T, error) {
	if config == nil {
		config = map[string]any{}
	}
	data, err := util.NewJsonEncoderDecoder[map[string]any]().Encode(config)
	if err != nil {
		return nil, err
	}
	return util.NewJsonEncoderDecoder[T]().Decode(data)
}

// normalize turns any JSON-compatible value into generic maps, slices and
// float64 numbers so path lookups and comparisons behave the same whatever
// produced the value.
func normalize(v any) any {
	encdec := util.NewJsonEncoderDecoder[any]()
	data, err := encdec.Encode(v)
	if err != nil {
		return v
	}
	out, err := encdec.Decode(data)
	if err != nil {
		return v
	}
	return *out
}

// templateData is the root that {$...} templates in step configs resolve against.
func templateData(req Request) map[string]any {
	var bag map[string]any
	if req.Context != nil {
		bag = req.Context.Bag
	}
	return map[string]any{
		"input": normalize(req.Input),
		"bag":   normalize(bag),
	}
}
