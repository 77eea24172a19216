// Package agentrun executes one domain agent's turn: entity extraction,
// the agent's tool pipeline, and answer synthesis.
package agentrun

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/convoflow/convoflow/pkg/classifier"
	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/permissions"
	"github.com/convoflow/convoflow/pkg/tools"
)

// Result is one agent's answer for one turn.
type Result struct {
	AgentID      string
	AgentName    string
	Response     string
	ToolsUsed    []string
	ToolsFailed  []string
	Tokens       int
	OutputFormat models.OutputFormat
}

// Executor runs one agent turn. Tools execute strictly sequentially in
// ascending priority order; a single tool failure never aborts the turn.
// The only fatal failure is the synthesis backend being unreachable.
type Executor struct {
	resolver     *permissions.Resolver
	engine       *tools.Engine
	classifier   classifier.Classifier
	historyLimit int
	logger       *slog.Logger
}

// NewExecutor builds an Executor. historyLimit caps the conversation
// messages injected into synthesis.
func NewExecutor(resolver *permissions.Resolver, engine *tools.Engine, cls classifier.Classifier, historyLimit int, logger *slog.Logger) *Executor {
	return &Executor{
		resolver:     resolver,
		engine:       engine,
		classifier:   cls,
		historyLimit: historyLimit,
		logger:       logger.With("component", "agentrun"),
	}
}

// Execute runs the grant's agent against query with the session history.
func (e *Executor) Execute(ctx context.Context, tenantID string, grant permissions.AgentGrant, query string, history []*models.Message) (*Result, error) {
	agent := grant.Agent
	logger := e.logger.With("tenant_id", tenantID, "agent", agent.Name)

	// Extraction failures degrade to an empty map rather than aborting.
	entities, err := e.classifier.ExtractEntities(ctx, query)
	if err != nil {
		logger.WarnContext(ctx, "entity extraction failed", "error", err)
		entities = map[string]any{}
	}

	grants, err := e.resolver.ResolveTools(ctx, tenantID, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tools: %w", err)
	}

	acc := NewAccumulator()
	for _, toolGrant := range grants {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		input := e.buildInput(query, entities, acc)
		result, err := e.engine.Execute(ctx, tenantID, toolGrant.Tool, input)
		if err != nil {
			logger.WarnContext(ctx, "tool failed, continuing pipeline",
				"tool", toolGrant.Tool.Name, "priority", toolGrant.Priority, "error", err)
			acc.RecordError(toolGrant.Tool.Name, err)
			continue
		}
		acc.Record(toolGrant.Tool.Name, result)
	}

	response, tokens, err := e.synthesize(ctx, agent, grant.OutputFormat, query, history, entities, acc)
	if err != nil {
		return nil, err
	}

	return &Result{
		AgentID:      agent.ID,
		AgentName:    agent.Name,
		Response:     response,
		ToolsUsed:    acc.Succeeded(),
		ToolsFailed:  acc.Failed(),
		Tokens:       tokens,
		OutputFormat: grant.OutputFormat,
	}, nil
}

// buildInput composes one tool call's input: the sub-intent query, the
// extracted entities, then earlier tool outputs so later tools can depend
// on them. Entities win over accumulated keys.
func (e *Executor) buildInput(query string, entities map[string]any, acc *Accumulator) map[string]any {
	input := map[string]any{"query": query}
	for _, tool := range acc.Succeeded() {
		for key, value := range acc.Result(tool) {
			input[key] = value
		}
	}
	for key, value := range entities {
		input[key] = value
	}
	input["query"] = query
	return input
}

func (e *Executor) synthesize(ctx context.Context, agent models.AgentConfig, format models.OutputFormat, query string, history []*models.Message, entities map[string]any, acc *Accumulator) (string, int, error) {
	systemPrompt := renderTemplate(agent.PromptTemplate, entities, query)
	if failed := acc.Failed(); len(failed) > 0 {
		systemPrompt += fmt.Sprintf(
			"\n\nNote: the following data sources failed this turn: %s. Answer from the remaining results and say plainly when you are unsure.",
			strings.Join(failed, ", "))
	}
	if len(acc.Succeeded()) == 0 && len(entities) == 0 {
		systemPrompt += "\n\nNo supporting data could be gathered for this request. Give a best-effort answer and state your uncertainty explicitly."
	}
	if format == models.OutputFormatJSON {
		systemPrompt += "\n\nRespond with a single JSON object."
	}

	var sb strings.Builder
	if n := len(history); n > 0 {
		start := 0
		if e.historyLimit > 0 && n > e.historyLimit {
			start = n - e.historyLimit
		}
		sb.WriteString("Recent conversation:\n")
		for _, msg := range history[start:] {
			fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Tool results:\n%s\n\nUser message: %s", acc.RenderJSON(), query)

	completion, err := e.classifier.Complete(ctx, agent.Model, systemPrompt, sb.String())
	if err != nil {
		// The model backend being down is the one failure the agent layer
		// cannot degrade around.
		return "", 0, err
	}
	return completion.Text, completion.Tokens, nil
}

// renderTemplate substitutes {name} placeholders in the agent prompt from
// the extracted entities; {query} always resolves to the user query.
func renderTemplate(template string, entities map[string]any, query string) string {
	out := strings.ReplaceAll(template, "{query}", query)
	for key, value := range entities {
		out = strings.ReplaceAll(out, "{"+key+"}", fmt.Sprint(value))
	}
	return out
}
