package agentrun

import (
	"encoding/json"
	"strings"
)

// errPrefix marks failed tools in the accumulator, keeping failures visible
// to synthesis without aborting the turn.
const errPrefix = "_error:"

// Accumulator collects tool results over one agent turn, in execution
// order. It is confined to a single turn and is not safe for concurrent use.
type Accumulator struct {
	order   []string
	results map[string]any
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{results: make(map[string]any)}
}

// Record stores a successful tool result.
func (a *Accumulator) Record(tool string, result map[string]any) {
	a.order = append(a.order, tool)
	a.results[tool] = result
}

// RecordError stores a failed tool under its error marker.
func (a *Accumulator) RecordError(tool string, err error) {
	key := errPrefix + tool
	a.order = append(a.order, key)
	a.results[key] = err.Error()
}

// Succeeded returns the tools that produced results, in execution order.
func (a *Accumulator) Succeeded() []string {
	var out []string
	for _, key := range a.order {
		if !strings.HasPrefix(key, errPrefix) {
			out = append(out, key)
		}
	}
	return out
}

// Failed returns the tools that failed, in execution order.
func (a *Accumulator) Failed() []string {
	var out []string
	for _, key := range a.order {
		if strings.HasPrefix(key, errPrefix) {
			out = append(out, strings.TrimPrefix(key, errPrefix))
		}
	}
	return out
}

// Result returns one tool's successful result, or nil.
func (a *Accumulator) Result(tool string) map[string]any {
	result, _ := a.results[tool].(map[string]any)
	return result
}

// Snapshot returns the full keyed result map, error markers included.
func (a *Accumulator) Snapshot() map[string]any {
	out := make(map[string]any, len(a.results))
	for key, value := range a.results {
		out[key] = value
	}
	return out
}

// RenderJSON renders the accumulated results for prompt injection.
func (a *Accumulator) RenderJSON() string {
	if len(a.results) == 0 {
		return "{}"
	}
	data, err := json.MarshalIndent(a.results, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
