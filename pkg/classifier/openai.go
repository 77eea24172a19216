package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/convoflow/convoflow/pkg/models"
)

// OpenAI implements Classifier against an OpenAI-compatible chat API.
type OpenAI struct {
	client  *openai.Client
	model   string // model used for classification and extraction
	logger  *slog.Logger
	history int // max history messages injected into classification
}

// NewOpenAI builds a classifier. baseURL may be empty for the public API or
// point at any OpenAI-compatible endpoint. model is the routing model;
// synthesis calls name their model per request.
func NewOpenAI(apiKey, baseURL, model string, historyLimit int, logger *slog.Logger) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		logger:  logger.With("component", "classifier"),
		history: historyLimit,
	}
}

const classifySystemPrompt = `You are an intent router for a customer support platform.
Given the user's message and a list of available agents, decide which agent or
agents should answer. Split multi-part messages into one intent per agent.
Respond with JSON only, in the form:
{"intents":[{"agent":"<agent name>","query":"<the part of the message for this agent>","confidence":<0.0-1.0>}]}
If no agent fits, return {"intents":[]}. Never invent agent names.`

func (o *OpenAI) ClassifyIntents(ctx context.Context, message string, history []*models.Message, candidates []AgentOption) (*Classification, error) {
	var sb strings.Builder
	sb.WriteString("Available agents:\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- %s: %s\n", c.Name, c.Description)
	}
	if n := len(history); n > 0 {
		start := 0
		if o.history > 0 && n > o.history {
			start = n - o.history
		}
		sb.WriteString("\nRecent conversation:\n")
		for _, msg := range history[start:] {
			fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
		}
	}
	sb.WriteString("\nUser message: ")
	sb.WriteString(message)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	var parsed struct {
		Intents []Intent `json:"intents"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		// A malformed routing answer is indistinguishable from "no match";
		// the router turns it into a clarification, not an error.
		o.logger.WarnContext(ctx, "unparseable classification response", "error", err)
		return &Classification{Tokens: resp.Usage.TotalTokens}, nil
	}

	// Drop intents naming agents that were never offered.
	valid := parsed.Intents[:0]
	for _, intent := range parsed.Intents {
		for _, c := range candidates {
			if intent.Agent == c.Name {
				valid = append(valid, intent)
				break
			}
		}
	}
	return &Classification{Intents: valid, Tokens: resp.Usage.TotalTokens}, nil
}

const extractSystemPrompt = `Extract structured parameters from the user's message as a flat JSON
object (strings, numbers, booleans). Include only values actually present:
identifiers, order or tracking numbers, dates, amounts, names.
If nothing can be extracted, return {}.`

func (o *OpenAI) ExtractEntities(ctx context.Context, message string) (map[string]any, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return map[string]any{}, nil
	}

	entities := make(map[string]any)
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &entities); err != nil {
		o.logger.WarnContext(ctx, "unparseable entity extraction response", "error", err)
		return map[string]any{}, nil
	}
	return entities, nil
}

func (o *OpenAI) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (*Result, error) {
	if model == "" {
		model = o.model
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return &Result{
		Text:   resp.Choices[0].Message.Content,
		Tokens: resp.Usage.TotalTokens,
	}, nil
}

var _ Classifier = (*OpenAI)(nil)
