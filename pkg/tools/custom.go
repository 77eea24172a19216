package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/convoflow/convoflow/pkg/models"
)

// Strategy is tenant/business-specific logic invoked by CUSTOM tools. The
// engine is agnostic to what a strategy does internally.
type Strategy interface {
	Run(ctx context.Context, tenantID string, input map[string]any) (map[string]any, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, tenantID string, input map[string]any) (map[string]any, error)

func (f StrategyFunc) Run(ctx context.Context, tenantID string, input map[string]any) (map[string]any, error) {
	return f(ctx, tenantID, input)
}

// customToolConfig names the registered strategy a CUSTOM tool dispatches to.
type customToolConfig struct {
	Strategy string `json:"strategy"`
}

// CustomRunner dispatches CUSTOM tool calls to registered strategies.
type CustomRunner struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewCustomRunner returns a runner with no strategies registered.
func NewCustomRunner() *CustomRunner {
	return &CustomRunner{strategies: make(map[string]Strategy)}
}

// Register binds a strategy name. Later registrations replace earlier ones.
func (r *CustomRunner) Register(name string, strategy Strategy) {
	r.mu.Lock()
	r.strategies[name] = strategy
	r.mu.Unlock()
}

func (r *CustomRunner) Run(ctx context.Context, tenantID string, tool models.ToolConfig, input map[string]any) (map[string]any, error) {
	var cfg customToolConfig
	if err := json.Unmarshal(tool.Config, &cfg); err != nil {
		return nil, &ExecutionError{Tool: tool.Name, Err: fmt.Errorf("invalid custom tool config: %w", err)}
	}

	r.mu.RLock()
	strategy, ok := r.strategies[cfg.Strategy]
	r.mu.RUnlock()
	if !ok {
		return nil, &ExecutionError{Tool: tool.Name, Err: fmt.Errorf("unknown strategy %q", cfg.Strategy)}
	}

	result, err := strategy.Run(ctx, tenantID, input)
	if err != nil {
		return nil, &ExecutionError{Tool: tool.Name, Err: err}
	}
	return result, nil
}

var _ Runner = (*CustomRunner)(nil)
