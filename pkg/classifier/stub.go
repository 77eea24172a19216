package classifier

import (
	"context"

	"github.com/convoflow/convoflow/pkg/models"
)

// Stub is a deterministic Classifier for tests and local development.
// Behavior is programmed per call via the Fn fields; unset fields fall back
// to harmless defaults.
type Stub struct {
	IntentsFn  func(message string, candidates []AgentOption) []Intent
	EntitiesFn func(message string) map[string]any
	CompleteFn func(model, systemPrompt, userPrompt string) (string, error)

	// Unavailable makes every call fail with ErrUnavailable.
	Unavailable bool
}

func (s *Stub) ClassifyIntents(_ context.Context, message string, _ []*models.Message, candidates []AgentOption) (*Classification, error) {
	if s.Unavailable {
		return nil, ErrUnavailable
	}
	if s.IntentsFn == nil {
		return &Classification{}, nil
	}
	return &Classification{Intents: s.IntentsFn(message, candidates)}, nil
}

func (s *Stub) ExtractEntities(_ context.Context, message string) (map[string]any, error) {
	if s.Unavailable {
		return nil, ErrUnavailable
	}
	if s.EntitiesFn == nil {
		return map[string]any{}, nil
	}
	return s.EntitiesFn(message), nil
}

func (s *Stub) Complete(_ context.Context, model, systemPrompt, userPrompt string) (*Result, error) {
	if s.Unavailable {
		return nil, ErrUnavailable
	}
	if s.CompleteFn == nil {
		return &Result{Text: "stub completion"}, nil
	}
	text, err := s.CompleteFn(model, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text}, nil
}

var _ Classifier = (*Stub)(nil)
