// Package escalation tracks a session's handoff from automated routing to a
// human supporter: none -> pending -> assigned -> resolved, with
// re-escalation from resolved back to pending.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/store"
)

var (
	// ErrInvalidTransition reports a state-machine conflict, such as
	// assigning a session that is not pending. Safe to retry after
	// re-reading the session.
	ErrInvalidTransition = errors.New("invalid escalation transition")

	// ErrReasonRequired reports an escalation request without a reason.
	ErrReasonRequired = errors.New("escalation reason is required")
)

// resolvedNotice is the synthetic system message appended when a session is
// resolved back to automated handling.
const resolvedNotice = "This conversation has been marked as resolved. I'm back to help with anything else you need."

// Notifier delivers real-time updates to session and tenant subscribers.
// Delivery is best-effort; transition durability never depends on it.
type Notifier interface {
	EscalationChanged(ctx context.Context, session *models.ChatSession) error
	MessageCreated(ctx context.Context, tenantID string, session *models.ChatSession, msg *models.Message) error
}

// Service applies escalation transitions atomically and fans out
// notifications.
type Service struct {
	store    store.Store
	notifier Notifier
	logger   *slog.Logger
}

// NewService builds an escalation Service.
func NewService(st store.Store, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		notifier: notifier,
		logger:   logger.With("component", "escalation"),
	}
}

// Escalate moves a session to pending on behalf of the chat user or the
// automatic detector. Re-requesting escalation while already pending is an
// idempotent success; escalating a session a supporter is actively handling
// is rejected. After the transition, the service tries to auto-assign the
// least-loaded online supporter; failure to do so leaves the session
// pending rather than failing the request.
func (s *Service) Escalate(ctx context.Context, tenantID, sessionID, reason string) (*models.ChatSession, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}

	session, err := s.store.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	switch session.EscalationStatus {
	case models.EscalationPending:
		return session, nil
	case models.EscalationAssigned:
		return nil, fmt.Errorf("%w: session is already with a supporter", ErrInvalidTransition)
	}

	upd := store.EscalationUpdate{
		Status: models.EscalationPending,
		Reason: &reason,
	}
	// escalated_at is set once, on the first departure from "none";
	// a re-escalation of a resolved session keeps the original timestamp.
	if session.EscalatedAt == nil {
		now := time.Now().UTC()
		upd.EscalatedAt = &now
	}

	updated, err := s.store.TransitionEscalation(ctx, tenantID, sessionID, session.EscalationStatus, upd)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: session state changed concurrently", ErrInvalidTransition)
		}
		return nil, err
	}
	s.logger.InfoContext(ctx, "session escalated",
		"tenant_id", tenantID, "session_id", sessionID, "reason", reason)
	s.notify(ctx, updated)

	if assigned, err := s.autoAssign(ctx, updated); err != nil {
		s.logger.WarnContext(ctx, "auto-assignment failed, session stays pending",
			"tenant_id", tenantID, "session_id", sessionID, "error", err)
	} else if assigned != nil {
		return assigned, nil
	}
	return updated, nil
}

// autoAssign picks the least-loaded online supporter, if any. Losing the
// assignment race to a concurrent admin is fine; the session is in good
// hands either way.
func (s *Service) autoAssign(ctx context.Context, session *models.ChatSession) (*models.ChatSession, error) {
	supporters, err := s.store.ListAvailableSupporters(ctx, session.TenantID)
	if err != nil {
		return nil, err
	}
	if len(supporters) == 0 {
		return nil, nil
	}

	assigned, err := s.Assign(ctx, session.TenantID, session.ID, supporters[0].ID)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, nil
		}
		return nil, err
	}
	return assigned, nil
}

// Assign hands a pending session to a specific supporter. The underlying
// update is an atomic check-and-set on status == pending, so of two
// concurrent assignments exactly one succeeds and the other gets
// ErrInvalidTransition. Re-assigning the same supporter is idempotent.
func (s *Service) Assign(ctx context.Context, tenantID, sessionID, supporterID string) (*models.ChatSession, error) {
	supporter, err := s.store.GetSupporter(ctx, tenantID, supporterID)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.TransitionEscalation(ctx, tenantID, sessionID, models.EscalationPending, store.EscalationUpdate{
		Status:         models.EscalationAssigned,
		AssignedUserID: &supporter.ID,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			current, getErr := s.store.GetSession(ctx, tenantID, sessionID)
			if getErr == nil && current.EscalationStatus == models.EscalationAssigned &&
				current.AssignedUserID == supporterID {
				return current, nil
			}
			return nil, fmt.Errorf("%w: session is not pending", ErrInvalidTransition)
		}
		return nil, err
	}

	if err := s.store.AdjustActiveSessions(ctx, supporter.ID, 1); err != nil {
		s.logger.WarnContext(ctx, "failed to bump supporter load",
			"supporter_id", supporter.ID, "error", err)
	}
	s.logger.InfoContext(ctx, "session assigned",
		"tenant_id", tenantID, "session_id", sessionID, "supporter_id", supporterID)
	s.notify(ctx, updated)
	return updated, nil
}

// Resolve closes out an assigned session. assigned_user_id is retained for
// audit; automated routing resumes on the next inbound message. A synthetic
// system message tells the chat user.
func (s *Service) Resolve(ctx context.Context, tenantID, sessionID, notes string) (*models.ChatSession, error) {
	session, err := s.store.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.EscalationStatus == models.EscalationResolved {
		return session, nil
	}

	now := time.Now().UTC()
	upd := store.EscalationUpdate{
		Status:     models.EscalationResolved,
		ResolvedAt: &now,
	}
	if notes != "" {
		upd.Metadata = map[string]any{"resolution_notes": notes}
	}

	updated, err := s.store.TransitionEscalation(ctx, tenantID, sessionID, models.EscalationAssigned, upd)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: only an assigned session can be resolved", ErrInvalidTransition)
		}
		return nil, err
	}

	if updated.AssignedUserID != "" {
		if err := s.store.AdjustActiveSessions(ctx, updated.AssignedUserID, -1); err != nil {
			s.logger.WarnContext(ctx, "failed to drop supporter load",
				"supporter_id", updated.AssignedUserID, "error", err)
		}
	}

	systemMsg := &models.Message{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		Role:         models.RoleSystem,
		Content:      resolvedNotice,
		SenderUserID: updated.AssignedUserID,
		CreatedAt:    now,
	}
	if err := s.store.AppendMessageAndTouchSession(ctx, systemMsg); err != nil {
		s.logger.ErrorContext(ctx, "failed to append resolution notice",
			"session_id", sessionID, "error", err)
	} else if s.notifier != nil {
		if err := s.notifier.MessageCreated(ctx, tenantID, updated, systemMsg); err != nil {
			s.logger.WarnContext(ctx, "resolution notice delivery failed", "error", err)
		}
	}

	s.logger.InfoContext(ctx, "session resolved",
		"tenant_id", tenantID, "session_id", sessionID)
	s.notify(ctx, updated)
	return updated, nil
}

// Queue lists escalated sessions for a tenant, optionally filtered by
// status, newest escalation first.
func (s *Service) Queue(ctx context.Context, tenantID string, status models.EscalationStatus) ([]*models.ChatSession, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	return s.store.ListEscalatedSessions(ctx, tenantID, status)
}

func (s *Service) notify(ctx context.Context, session *models.ChatSession) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.EscalationChanged(ctx, session); err != nil {
		s.logger.WarnContext(ctx, "escalation notification failed",
			"session_id", session.ID, "error", err)
	}
}
