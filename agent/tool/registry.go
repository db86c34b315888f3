// Package tool holds the registry of data-retrieval capabilities the
// router can invoke, plus the built-in catalog over the KPI warehouse.
package tool

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/contract"
)

// Invoker is the single contract every tool backend satisfies, whether it
// wraps a database query or an external model call.
type Invoker interface {
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, args map[string]any) (any, error)

func (f InvokerFunc) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
)

type Param struct {
	Type     ParamType
	Desc     string
	Required bool
}

type Tool struct {
	Name    string
	Desc    string
	Params  map[string]Param
	Invoker Invoker
}

// ValidateArgs checks an argument set against the tool's schema before
// invocation: required params present, no unknown params, types match.
func (t Tool) ValidateArgs(args map[string]any) error {
	for name, p := range t.Params {
		v, ok := args[name]
		if !ok {
			if p.Required {
				return fmt.Errorf("%w: %s: missing required arg %q", contractx.ErrArgValidation, t.Name, name)
			}
			continue
		}
		if !typeMatches(p.Type, v) {
			return fmt.Errorf("%w: %s: arg %q must be %s", contractx.ErrArgValidation, t.Name, name, p.Type)
		}
	}
	for name := range args {
		if _, ok := t.Params[name]; !ok {
			return fmt.Errorf("%w: %s: unknown arg %q", contractx.ErrArgValidation, t.Name, name)
		}
	}
	return nil
}

func typeMatches(pt ParamType, v any) bool {
	switch pt {
	case ParamString:
		_, ok := v.(string)
		return ok
	case ParamNumber:
		switch v.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case ParamInteger:
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	case ParamBoolean:
		_, ok := v.(bool)
		return ok
	case ParamArray:
		switch v.(type) {
		case []any, []float64:
			return true
		}
		return false
	}
	return false
}

// Registry declares the available tools. It is populated once at startup
// and read-only afterwards, so lookups need no synchronization.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return fmt.Errorf("%w: tool name is empty", contractx.ErrValidation)
	}
	if t.Invoker == nil {
		return fmt.Errorf("%w: tool %q has no invoker", contractx.ErrValidation, name)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", contractx.ErrDuplicateTool, name)
	}
	t.Name = name
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Lookup(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", contractx.ErrUnknownTool, name)
	}
	return t, nil
}

func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// List returns the tools in registration order for exposure to the
// classification and reasoning steps.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}
