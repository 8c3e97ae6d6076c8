// tool registry and dispatch

package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/vasilisp/edurag/internal/util"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	ErrUnknownTool   = errors.New("unknown tool")
	ErrToolExecution = errors.New("tool execution failed")
)

type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, args Args) (string, error)
}

type Info struct {
	Name        string
	Description string
}

// Registry is read-only after construction and safe for concurrent use.
type Registry struct {
	tools *orderedmap.OrderedMap[string, Tool]
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	registry := &Registry{tools: orderedmap.New[string, Tool]()}

	for _, tool := range tools {
		util.Assert(tool != nil, "NewRegistry nil tool")

		name := tool.Name()
		if err := util.ValidateToolName(name); err != nil {
			return nil, err
		}
		if _, ok := registry.tools.Get(name); ok {
			return nil, fmt.Errorf("duplicate tool name %s", name)
		}

		registry.tools.Set(name, tool)
	}

	return registry, nil
}

func (r *Registry) Execute(ctx context.Context, name string, args Args) (string, error) {
	util.Assert(r != nil, "Execute nil registry")

	tool, ok := r.tools.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	result, err := tool.Call(ctx, args)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrToolExecution, name, err)
	}

	return result, nil
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Info {
	util.Assert(r != nil, "List nil registry")

	infos := make([]Info, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		infos = append(infos, Info{Name: pair.Key, Description: pair.Value.Description()})
	}
	return infos
}
