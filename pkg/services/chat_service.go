// Package services contains business logic service layer implementations.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/convoflow/convoflow/pkg/classifier"
	"github.com/convoflow/convoflow/pkg/escalation"
	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/store"
	"github.com/convoflow/convoflow/pkg/supervisor"
)

// UnavailableMessage is returned when the language-model backend cannot be
// reached. The user's message is already persisted by then, so nothing is
// lost on retry.
const UnavailableMessage = "I'm having trouble reaching our assistant right now. Your message has been saved - please try again in a moment."

// EscalationAck is sent when a message triggers an automatic handoff.
const EscalationAck = "I'm connecting you with a member of our support team. They'll pick up this conversation shortly."

// TurnResult is the outcome of one user message.
type TurnResult struct {
	SessionID string   `json:"session_id"`
	Response  string   `json:"response"`
	Intent    string   `json:"intent"`
	Agents    []string `json:"agents,omitempty"`
	ToolsUsed []string `json:"tools_used,omitempty"`
	Tokens    int      `json:"token_count"`
	LatencyMS int64    `json:"latency_ms"`
	Escalated bool     `json:"escalated,omitempty"`
	Bypassed  bool     `json:"bypassed,omitempty"`
}

// Notifier delivers real-time events for messages created during a turn.
type Notifier interface {
	MessageCreated(ctx context.Context, tenantID string, session *models.ChatSession, msg *models.Message) error
}

// ChatService runs the message turn: persist the user message, decide
// between routing, escalation, and supporter bypass, and persist whatever
// the platform answers. The user message commits before anything else so a
// failed turn never loses input.
type ChatService struct {
	store        store.Store
	router       *supervisor.Router
	escalations  *escalation.Service
	detector     *escalation.Detector
	notifier     Notifier
	historyLimit int
	logger       *slog.Logger
}

// NewChatService creates a new ChatService
func NewChatService(st store.Store, router *supervisor.Router, esc *escalation.Service, det *escalation.Detector, notifier Notifier, historyLimit int, logger *slog.Logger) *ChatService {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &ChatService{
		store:        st,
		router:       router,
		escalations:  esc,
		detector:     det,
		notifier:     notifier,
		historyLimit: historyLimit,
		logger:       logger.With("component", "chat_service"),
	}
}

// HandleMessage processes one user message. agentName, when non-empty,
// pins the turn to that agent and skips intent classification. meta is
// caller-supplied metadata stored on the user message.
func (s *ChatService) HandleMessage(ctx context.Context, tenantID, sessionID, content, agentName string, meta map[string]any) (*TurnResult, error) {
	if content == "" {
		return nil, NewValidationError("content", "required")
	}
	started := time.Now()

	session, err := s.store.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	// The transcript survives even if routing fails or the request is
	// cancelled mid-turn, so the write uses its own context.
	history, err := s.store.ListMessages(ctx, sessionID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	userMsg := &models.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   content,
		Metadata:  meta,
		CreatedAt: time.Now(),
	}
	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.AppendMessageAndTouchSession(writeCtx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}
	s.notifyMessage(ctx, tenantID, session, userMsg)

	// While a human owns the conversation the message is delivered to the
	// supporter's channel and routing stays out of the way.
	if escalation.RoutingBypassed(session.EscalationStatus) {
		return &TurnResult{
			SessionID: sessionID,
			Bypassed:  true,
			LatencyMS: time.Since(started).Milliseconds(),
		}, nil
	}

	if reason, confidence, ok := s.detector.Detect(content); ok {
		s.logger.Info("Auto-escalation triggered",
			"session_id", sessionID, "reason", reason, "confidence", confidence)
		if _, err := s.escalations.Escalate(ctx, tenantID, sessionID, reason); err != nil {
			return nil, fmt.Errorf("failed to escalate session: %w", err)
		}
		ack, err := s.appendAssistant(ctx, tenantID, session, EscalationAck, map[string]any{
			"escalation_reason":     reason,
			"escalation_confidence": confidence,
		})
		if err != nil {
			return nil, err
		}
		return &TurnResult{
			SessionID: sessionID,
			Response:  ack.Content,
			Escalated: true,
			LatencyMS: time.Since(started).Milliseconds(),
		}, nil
	}

	var route *supervisor.RouteResult
	if agentName != "" {
		route, err = s.router.RouteExplicit(ctx, tenantID, agentName, content, history)
		if err != nil && errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
	} else {
		route, err = s.router.Route(ctx, tenantID, content, history)
	}
	if err != nil {
		if errors.Is(err, classifier.ErrUnavailable) {
			s.logger.Error("Routing backend unavailable", "session_id", sessionID, "error", err)
			apology, appendErr := s.appendAssistant(ctx, tenantID, session, UnavailableMessage, map[string]any{
				"error": "backend_unavailable",
			})
			if appendErr != nil {
				return nil, appendErr
			}
			return &TurnResult{
				SessionID: sessionID,
				Response:  apology.Content,
				LatencyMS: time.Since(started).Milliseconds(),
			}, nil
		}
		return nil, fmt.Errorf("failed to route message: %w", err)
	}

	latency := time.Since(started).Milliseconds()
	metadata := map[string]any{
		"intent":      string(route.IntentType),
		"latency_ms":  latency,
		"token_count": route.Tokens,
	}
	if len(route.Agents) > 0 {
		metadata["agents"] = route.Agents
	}
	if tools := route.ToolsUsed(); len(tools) > 0 {
		metadata["tools_used"] = tools
	}
	if _, err := s.appendAssistant(ctx, tenantID, session, route.Response, metadata); err != nil {
		return nil, err
	}
	if len(route.Results) == 1 {
		if err := s.store.BindAgent(ctx, tenantID, sessionID, route.Results[0].AgentID); err != nil {
			s.logger.Warn("Failed to record routed agent", "session_id", sessionID, "error", err)
		}
	}

	return &TurnResult{
		SessionID: sessionID,
		Response:  route.Response,
		Intent:    string(route.IntentType),
		Agents:    route.Agents,
		ToolsUsed: route.ToolsUsed(),
		Tokens:    route.Tokens,
		LatencyMS: latency,
	}, nil
}

// SupporterMessage appends a staff reply to an escalated session. Only
// sessions currently owned by a human accept supporter messages.
func (s *ChatService) SupporterMessage(ctx context.Context, tenantID, sessionID, supporterID, content string) (*models.Message, error) {
	if content == "" {
		return nil, NewValidationError("content", "required")
	}
	if supporterID == "" {
		return nil, NewValidationError("supporter_id", "required")
	}

	session, err := s.store.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !escalation.RoutingBypassed(session.EscalationStatus) {
		return nil, NewValidationError("session_id", "session is not escalated")
	}

	msg := &models.Message{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		Role:         models.RoleSupporter,
		Content:      content,
		SenderUserID: supporterID,
		CreatedAt:    time.Now(),
	}
	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.AppendMessageAndTouchSession(writeCtx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist supporter message: %w", err)
	}
	s.notifyMessage(ctx, tenantID, session, msg)
	return msg, nil
}

func (s *ChatService) appendAssistant(ctx context.Context, tenantID string, session *models.ChatSession, content string, metadata map[string]any) (*models.Message, error) {
	msg := &models.Message{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.AppendMessageAndTouchSession(writeCtx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}
	s.notifyMessage(ctx, tenantID, session, msg)
	return msg, nil
}

func (s *ChatService) notifyMessage(ctx context.Context, tenantID string, session *models.ChatSession, msg *models.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.MessageCreated(ctx, tenantID, session, msg); err != nil {
		s.logger.Warn("Failed to publish message event",
			"session_id", session.ID, "message_id", msg.ID, "error", err)
	}
}
