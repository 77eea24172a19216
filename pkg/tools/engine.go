// Package tools executes one tool call against validated, typed input.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/convoflow/convoflow/pkg/models"
)

// Runner executes calls for one tool type.
type Runner interface {
	Run(ctx context.Context, tenantID string, tool models.ToolConfig, input map[string]any) (map[string]any, error)
}

// Engine validates tool input and dispatches to the runner registered for
// the tool's type. It performs no caching of results and no side effects of
// its own beyond the call the runner makes.
type Engine struct {
	runners map[models.ToolType]Runner
	logger  *slog.Logger

	mu      sync.Mutex
	schemas map[string]compiledSchema // keyed by tool ID
}

type compiledSchema struct {
	raw    string
	schema *jsonschema.Schema
}

// NewEngine builds an engine over the given per-type runners.
func NewEngine(runners map[models.ToolType]Runner, logger *slog.Logger) *Engine {
	return &Engine{
		runners: runners,
		logger:  logger.With("component", "tools"),
		schemas: make(map[string]compiledSchema),
	}
}

// Execute runs one tool call. Input is validated against the tool's schema
// before any side-effecting work; a validation failure returns
// *InvalidInputError without invoking the runner.
func (e *Engine) Execute(ctx context.Context, tenantID string, tool models.ToolConfig, input map[string]any) (map[string]any, error) {
	if input == nil {
		input = map[string]any{}
	}
	if err := e.validate(tool, input); err != nil {
		return nil, err
	}

	runner, ok := e.runners[tool.Type]
	if !ok {
		return nil, &ExecutionError{Tool: tool.Name, Err: fmt.Errorf("no runner for tool type %q", tool.Type)}
	}

	e.logger.DebugContext(ctx, "executing tool", "tool", tool.Name, "type", tool.Type, "tenant_id", tenantID)
	result, err := runner.Run(ctx, tenantID, tool, input)
	if err != nil {
		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			err = &ExecutionError{Tool: tool.Name, Err: err}
		}
		return nil, err
	}
	return result, nil
}

func (e *Engine) validate(tool models.ToolConfig, input map[string]any) error {
	if len(tool.InputSchema) == 0 {
		return nil
	}

	schema, err := e.compiled(tool)
	if err != nil {
		return &InvalidInputError{Tool: tool.Name, Causes: []string{err.Error()}}
	}
	if err := schema.Validate(input); err != nil {
		var valErr *jsonschema.ValidationError
		if errors.As(err, &valErr) {
			return &InvalidInputError{Tool: tool.Name, Causes: flattenCauses(valErr)}
		}
		return &InvalidInputError{Tool: tool.Name, Causes: []string{err.Error()}}
	}
	return nil
}

// compiled returns the cached compiled schema for the tool, recompiling
// when the stored schema text changed.
func (e *Engine) compiled(tool models.ToolConfig) (*jsonschema.Schema, error) {
	raw := string(tool.InputSchema)

	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.schemas[tool.ID]; ok && entry.raw == raw {
		return entry.schema, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(tool.ID+".json", strings.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}
	schema, err := compiler.Compile(tool.ID + ".json")
	if err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}
	e.schemas[tool.ID] = compiledSchema{raw: raw, schema: schema}
	return schema, nil
}

func flattenCauses(err *jsonschema.ValidationError) []string {
	leaves := err.BasicOutput().Errors
	causes := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		if leaf.Error == "" {
			continue
		}
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		causes = append(causes, fmt.Sprintf("%s: %s", loc, leaf.Error))
	}
	return causes
}
