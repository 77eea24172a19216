// Package classifier wraps the language-model capability behind the
// routing and synthesis layers: intent classification, entity extraction,
// and free-form completion.
package classifier

import (
	"context"
	"errors"

	"github.com/convoflow/convoflow/pkg/models"
)

// ErrUnavailable reports that the model backend itself is unreachable.
// It is the only classifier failure that aborts a chat turn; everything
// else degrades.
var ErrUnavailable = errors.New("classification backend unavailable")

// AgentOption is one candidate agent offered to the classifier.
type AgentOption struct {
	Name        string
	Description string
}

// Intent is one routed sub-intent: the chosen agent, the portion of the
// user message it should answer, and the model's confidence in the match.
type Intent struct {
	Agent      string  `json:"agent"`
	Query      string  `json:"query"`
	Confidence float64 `json:"confidence"`
}

// Classification is the full routing decision for one message.
type Classification struct {
	Intents []Intent
	Tokens  int
}

// Result is a synthesized completion.
type Result struct {
	Text   string
	Tokens int
}

// Classifier is the language-model capability used by the supervisor and
// agent executors. Implementations must return ErrUnavailable (possibly
// wrapped) when the backend cannot be reached at all.
type Classifier interface {
	// ClassifyIntents maps a user message onto the candidate agents.
	// Zero intents means the message matched no candidate.
	ClassifyIntents(ctx context.Context, message string, history []*models.Message, candidates []AgentOption) (*Classification, error)

	// ExtractEntities derives a typed parameter map from free text, such as
	// order numbers or dates mentioned in the message.
	ExtractEntities(ctx context.Context, message string) (map[string]any, error)

	// Complete renders one synthesis call against the given model.
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (*Result, error)
}
