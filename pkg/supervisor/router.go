// Package supervisor classifies inbound messages and dispatches them to
// domain agents.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/convoflow/convoflow/pkg/agentrun"
	"github.com/convoflow/convoflow/pkg/classifier"
	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/permissions"
)

// IntentType is the router's decision for one message.
type IntentType string

const (
	IntentSingle  IntentType = "SINGLE_INTENT"
	IntentMulti   IntentType = "MULTI_INTENT"
	IntentUnclear IntentType = "UNCLEAR"
)

// ClarificationMessage is returned whenever no agent can be confidently
// matched. It is a normal reply, never an error.
const ClarificationMessage = "I want to make sure I get this right - could you tell me a bit more about what you need help with?"

// RouteResult is the outcome of routing one message.
type RouteResult struct {
	IntentType IntentType
	Confidence float64
	Agents     []string // dispatch order
	Results    []*agentrun.Result
	Response   string
	Tokens     int
}

// ToolsUsed flattens the tools invoked across all dispatched agents,
// preserving dispatch order.
func (r *RouteResult) ToolsUsed() []string {
	var out []string
	for _, result := range r.Results {
		out = append(out, result.ToolsUsed...)
	}
	return out
}

// Router classifies a message against the tenant's available agents and
// dispatches to one or more executors. Agents disabled for a tenant are
// never offered to the classifier, so they can never receive traffic.
type Router struct {
	resolver   *permissions.Resolver
	executor   *agentrun.Executor
	classifier classifier.Classifier
	threshold  float64
	logger     *slog.Logger
}

// NewRouter builds a Router. threshold is the minimum per-intent confidence
// below which an intent is discarded.
func NewRouter(resolver *permissions.Resolver, executor *agentrun.Executor, cls classifier.Classifier, threshold float64, logger *slog.Logger) *Router {
	return &Router{
		resolver:   resolver,
		executor:   executor,
		classifier: cls,
		threshold:  threshold,
		logger:     logger.With("component", "supervisor"),
	}
}

// Route classifies and dispatches one message. A classifier backend outage
// propagates as classifier.ErrUnavailable; everything else resolves to a
// normal reply, UNCLEAR included.
func (r *Router) Route(ctx context.Context, tenantID, message string, history []*models.Message) (*RouteResult, error) {
	grants, err := r.resolver.ResolveAgents(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve agents: %w", err)
	}
	if len(grants) == 0 {
		return unclear(0), nil
	}

	byName := make(map[string]permissions.AgentGrant, len(grants))
	candidates := make([]classifier.AgentOption, 0, len(grants))
	for _, grant := range grants {
		byName[grant.Agent.Name] = grant
		candidates = append(candidates, classifier.AgentOption{
			Name:        grant.Agent.Name,
			Description: grant.Agent.Description,
		})
	}

	classification, err := r.classifier.ClassifyIntents(ctx, message, history, candidates)
	if err != nil {
		return nil, err
	}

	intents := make([]classifier.Intent, 0, len(classification.Intents))
	best := 0.0
	for _, intent := range classification.Intents {
		if intent.Confidence > best {
			best = intent.Confidence
		}
		if intent.Confidence < r.threshold {
			continue
		}
		if _, ok := byName[intent.Agent]; !ok {
			continue
		}
		intents = append(intents, intent)
	}
	if len(intents) == 0 {
		r.logger.InfoContext(ctx, "no confident intent match",
			"tenant_id", tenantID, "best_confidence", best)
		result := unclear(best)
		result.Tokens = classification.Tokens
		return result, nil
	}

	results, err := r.dispatch(ctx, tenantID, message, byName, intents, history)
	if err != nil {
		return nil, err
	}

	intentType := IntentSingle
	if len(intents) > 1 {
		intentType = IntentMulti
	}
	out := &RouteResult{
		IntentType: intentType,
		Confidence: minConfidence(intents),
		Results:    results,
		Response:   aggregate(results),
		Tokens:     classification.Tokens,
	}
	for _, intent := range intents {
		out.Agents = append(out.Agents, intent.Agent)
	}
	for _, result := range results {
		out.Tokens += result.Tokens
	}
	return out, nil
}

// RouteExplicit bypasses classification and dispatches straight to the
// named agent. An agent not resolved for the tenant returns
// store.ErrNotFound; callers must not reveal whether it exists globally.
func (r *Router) RouteExplicit(ctx context.Context, tenantID, agentName, message string, history []*models.Message) (*RouteResult, error) {
	grant, err := r.resolver.ResolveAgentByName(ctx, tenantID, agentName)
	if err != nil {
		return nil, err
	}
	result, err := r.executor.Execute(ctx, tenantID, *grant, message, history)
	if err != nil {
		return nil, err
	}
	return &RouteResult{
		IntentType: IntentSingle,
		Confidence: 1.0,
		Agents:     []string{agentName},
		Results:    []*agentrun.Result{result},
		Response:   result.Response,
		Tokens:     result.Tokens,
	}, nil
}

// dispatch runs target agents concurrently and joins all branches before
// composing the reply. Every agent sees the same raw message and history;
// the classifier's per-intent sub-queries are advisory metadata only, the
// agent's own prompt decides which part of the message it answers.
func (r *Router) dispatch(ctx context.Context, tenantID, message string, byName map[string]permissions.AgentGrant, intents []classifier.Intent, history []*models.Message) ([]*agentrun.Result, error) {
	results := make([]*agentrun.Result, len(intents))
	errs := make([]error, len(intents))

	var wg sync.WaitGroup
	for i, intent := range intents {
		wg.Add(1)
		go func(i int, intent classifier.Intent) {
			defer wg.Done()
			results[i], errs[i] = r.executor.Execute(ctx, tenantID, byName[intent.Agent], message, history)
		}(i, intent)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// aggregate deterministically composes per-agent responses in dispatch
// order. A single result passes through unchanged.
func aggregate(results []*agentrun.Result) string {
	if len(results) == 1 {
		return results[0].Response
	}
	parts := make([]string, 0, len(results))
	for _, result := range results {
		parts = append(parts, fmt.Sprintf("**%s**\n%s", result.AgentName, result.Response))
	}
	return strings.Join(parts, "\n\n")
}

func unclear(confidence float64) *RouteResult {
	return &RouteResult{
		IntentType: IntentUnclear,
		Confidence: confidence,
		Response:   ClarificationMessage,
	}
}

func minConfidence(intents []classifier.Intent) float64 {
	min := intents[0].Confidence
	for _, intent := range intents[1:] {
		if intent.Confidence < min {
			min = intent.Confidence
		}
	}
	return min
}
