package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/store"
)

// SessionService manages chat session lifecycle. Sessions are append-only:
// they are created, accumulate messages, and are never deleted.
type SessionService struct {
	store store.Store
}

// NewSessionService creates a new SessionService
func NewSessionService(st store.Store) *SessionService {
	return &SessionService{store: st}
}

// CreateSession opens a new conversation for a chat user of the tenant.
func (s *SessionService) CreateSession(httpCtx context.Context, tenantID, chatUserID string) (*models.ChatSession, error) {
	if tenantID == "" {
		return nil, NewValidationError("tenant_id", "required")
	}
	if chatUserID == "" {
		return nil, NewValidationError("chat_user_id", "required")
	}

	// Use background context with timeout for critical write
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	if !tenant.IsActive {
		return nil, ErrTenantInactive
	}

	now := time.Now()
	session := &models.ChatSession{
		ID:               uuid.New().String(),
		TenantID:         tenantID,
		ChatUserID:       chatUserID,
		EscalationStatus: models.EscalationNone,
		CreatedAt:        now,
		LastMessageAt:    now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// GetSession retrieves a session scoped to its tenant.
func (s *SessionService) GetSession(ctx context.Context, tenantID, sessionID string) (*models.ChatSession, error) {
	session, err := s.store.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ListMessages returns the most recent messages of a session in
// chronological order. The session must belong to the tenant.
func (s *SessionService) ListMessages(ctx context.Context, tenantID, sessionID string, limit int) ([]*models.Message, error) {
	if _, err := s.GetSession(ctx, tenantID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	messages, err := s.store.ListMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}
