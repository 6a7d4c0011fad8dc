// Package agent defines the pluggable trading-agent interface and the kind
// registry the dispatcher resolves roster entries against. Strategies live
// outside this module; the registry only validates parameters and
// constructs agents around a client runtime.
package agent

import (
	"fmt"
	"sort"
	"sync"

	"figgie-exchange/internal/client"
)

// Agent is one autonomous player. Start joins the session and begins
// acting; Stop halts it. Completed reports whether the agent has observed
// the end of its round.
type Agent interface {
	Start() error
	Stop()
	PlayerID() string
	Completed() bool
}

// Factory builds an agent of one kind around a client runtime. Params have
// already been validated against the kind's specs.
type Factory func(c *client.Client, params map[string]any) (Agent, error)

// ParamSpec declares one tunable parameter of an agent kind.
type ParamSpec struct {
	Name     string
	Type     string // "float", "int", "bool", "string"
	Required bool
	Default  any
	// Bounds apply to numeric types only.
	Min float64
	Max float64
}

type entry struct {
	factory Factory
	specs   []ParamSpec
}

// Registry maps agent kinds to factories and parameter specs.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a kind. Registering a duplicate kind is an error.
func (r *Registry) Register(kind string, specs []ParamSpec, f Factory) error {
	if kind == "" {
		return fmt.Errorf("agent kind is required")
	}
	if f == nil {
		return fmt.Errorf("agent kind %q: nil factory", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[kind]; ok {
		return fmt.Errorf("agent kind %q already registered", kind)
	}
	r.entries[kind] = entry{factory: f, specs: specs}
	return nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.entries))
	for k := range r.entries {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New validates params against the kind's specs, fills defaults, and
// constructs the agent.
func (r *Registry) New(kind string, c *client.Client, params map[string]any) (Agent, error) {
	r.mu.RLock()
	e, ok := r.entries[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent kind %q", kind)
	}

	validated, err := validateParams(kind, e.specs, params)
	if err != nil {
		return nil, err
	}
	return e.factory(c, validated)
}

// validateParams checks types and bounds, applies defaults, and rejects
// parameters no spec declares.
func validateParams(kind string, specs []ParamSpec, params map[string]any) (map[string]any, error) {
	known := make(map[string]ParamSpec, len(specs))
	for _, s := range specs {
		known[s.Name] = s
	}
	for name := range params {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("agent %s: unknown parameter %q", kind, name)
		}
	}

	out := make(map[string]any, len(specs))
	for _, s := range specs {
		raw, present := params[s.Name]
		if !present {
			if s.Required {
				return nil, fmt.Errorf("agent %s: missing required parameter %q", kind, s.Name)
			}
			if s.Default != nil {
				out[s.Name] = s.Default
			}
			continue
		}

		v, err := coerce(s, raw)
		if err != nil {
			return nil, fmt.Errorf("agent %s: parameter %q: %w", kind, s.Name, err)
		}
		out[s.Name] = v
	}
	return out, nil
}

// coerce normalizes a raw decoded value (YAML and JSON decode numbers
// inconsistently) to the spec's type and checks bounds.
func coerce(s ParamSpec, raw any) (any, error) {
	switch s.Type {
	case "float":
		f, ok := asFloat(raw)
		if !ok {
			return nil, fmt.Errorf("want float, got %T", raw)
		}
		if err := checkBounds(s, f); err != nil {
			return nil, err
		}
		return f, nil
	case "int":
		f, ok := asFloat(raw)
		if !ok || f != float64(int(f)) {
			return nil, fmt.Errorf("want int, got %v", raw)
		}
		if err := checkBounds(s, f); err != nil {
			return nil, err
		}
		return int(f), nil
	case "bool":
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", raw)
		}
		return b, nil
	case "string":
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", raw)
		}
		return str, nil
	default:
		return nil, fmt.Errorf("spec has unknown type %q", s.Type)
	}
}

func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func checkBounds(s ParamSpec, f float64) error {
	if s.Min == 0 && s.Max == 0 {
		return nil
	}
	if f < s.Min || f > s.Max {
		return fmt.Errorf("value %v outside [%v, %v]", f, s.Min, s.Max)
	}
	return nil
}

// FloatParam reads a validated float parameter with a fallback.
func FloatParam(params map[string]any, name string, fallback float64) float64 {
	if v, ok := params[name].(float64); ok {
		return v
	}
	return fallback
}

// IntParam reads a validated int parameter with a fallback.
func IntParam(params map[string]any, name string, fallback int) int {
	if v, ok := params[name].(int); ok {
		return v
	}
	return fallback
}
