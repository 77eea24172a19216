package escalation

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/pkg/models"
	"github.com/convoflow/convoflow/pkg/store"
)

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []models.EscalationStatus
	messages []*models.Message
}

func (n *recordingNotifier) EscalationChanged(_ context.Context, session *models.ChatSession) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, session.EscalationStatus)
	return nil
}

func (n *recordingNotifier) MessageCreated(_ context.Context, _ string, _ *models.ChatSession, msg *models.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func newService(t *testing.T) (*Service, *store.Memory, *recordingNotifier) {
	t.Helper()
	st := store.NewMemory()
	notifier := &recordingNotifier{}
	return NewService(st, notifier, slog.Default()), st, notifier
}

func seedSession(t *testing.T, st *store.Memory, id string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.CreateSession(context.Background(), &models.ChatSession{
		ID: id, TenantID: "acme", ChatUserID: "user-1",
		EscalationStatus: models.EscalationNone,
		CreatedAt:        now, LastMessageAt: now,
	}))
}

func TestEscalate_RequiresReason(t *testing.T) {
	svc, st, _ := newService(t)
	seedSession(t, st, "s1")

	_, err := svc.Escalate(context.Background(), "acme", "s1", "")
	assert.ErrorIs(t, err, ErrReasonRequired)
}

func TestEscalate_PendingWithoutSupporters(t *testing.T) {
	svc, st, notifier := newService(t)
	seedSession(t, st, "s1")

	session, err := svc.Escalate(context.Background(), "acme", "s1", "need a human")
	require.NoError(t, err)
	assert.Equal(t, models.EscalationPending, session.EscalationStatus)
	assert.Equal(t, "need a human", session.EscalationReason)
	require.NotNil(t, session.EscalatedAt)
	assert.Equal(t, []models.EscalationStatus{models.EscalationPending}, notifier.statuses)
}

func TestEscalate_AutoAssignsLeastLoaded(t *testing.T) {
	svc, st, _ := newService(t)
	seedSession(t, st, "s1")
	st.PutSupporter(&models.Supporter{
		ID: "busy", TenantID: "acme", Status: models.SupporterStatusOnline,
		ActiveSessions: 2, MaxSessions: 5,
	})
	st.PutSupporter(&models.Supporter{
		ID: "idle", TenantID: "acme", Status: models.SupporterStatusOnline,
		ActiveSessions: 0, MaxSessions: 5,
	})

	session, err := svc.Escalate(context.Background(), "acme", "s1", "need a human")
	require.NoError(t, err)
	assert.Equal(t, models.EscalationAssigned, session.EscalationStatus)
	assert.Equal(t, "idle", session.AssignedUserID)

	supporter, err := st.GetSupporter(context.Background(), "acme", "idle")
	require.NoError(t, err)
	assert.Equal(t, 1, supporter.ActiveSessions)
}

func TestEscalate_Idempotencies(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)
	seedSession(t, st, "s1")

	first, err := svc.Escalate(ctx, "acme", "s1", "need a human")
	require.NoError(t, err)

	// Re-requesting while pending is a no-op success.
	again, err := svc.Escalate(ctx, "acme", "s1", "still waiting")
	require.NoError(t, err)
	assert.Equal(t, models.EscalationPending, again.EscalationStatus)
	assert.Equal(t, first.EscalationReason, again.EscalationReason)

	// Escalating an actively handled session is rejected.
	st.PutSupporter(&models.Supporter{
		ID: "sup", TenantID: "acme", Status: models.SupporterStatusOnline, MaxSessions: 5,
	})
	_, err = svc.Assign(ctx, "acme", "s1", "sup")
	require.NoError(t, err)
	_, err = svc.Escalate(ctx, "acme", "s1", "escalate harder")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAssign_ConcurrentDoubleAssignment(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)
	seedSession(t, st, "s1")
	_, err := svc.Escalate(ctx, "acme", "s1", "need a human")
	require.NoError(t, err)

	for _, id := range []string{"sup-a", "sup-b"} {
		st.PutSupporter(&models.Supporter{
			ID: id, TenantID: "acme", Status: models.SupporterStatusOnline, MaxSessions: 5,
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"sup-a", "sup-b"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = svc.Assign(ctx, "acme", "s1", id)
		}(i, id)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
		} else if assert.ErrorIs(t, err, ErrInvalidTransition) {
			lost++
		}
	}
	assert.Equal(t, 1, won, "exactly one assignment wins the race")
	assert.Equal(t, 1, lost)
}

func TestAssign_SameSupporterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)
	seedSession(t, st, "s1")
	_, err := svc.Escalate(ctx, "acme", "s1", "need a human")
	require.NoError(t, err)
	st.PutSupporter(&models.Supporter{
		ID: "sup", TenantID: "acme", Status: models.SupporterStatusOnline, MaxSessions: 5,
	})

	_, err = svc.Assign(ctx, "acme", "s1", "sup")
	require.NoError(t, err)
	session, err := svc.Assign(ctx, "acme", "s1", "sup")
	require.NoError(t, err)
	assert.Equal(t, "sup", session.AssignedUserID)
}

func TestResolve_FullLifecycleAndReescalation(t *testing.T) {
	ctx := context.Background()
	svc, st, notifier := newService(t)
	seedSession(t, st, "s1")
	st.PutSupporter(&models.Supporter{
		ID: "sup", TenantID: "acme", Status: models.SupporterStatusOnline, MaxSessions: 5,
	})

	escalated, err := svc.Escalate(ctx, "acme", "s1", "need a human")
	require.NoError(t, err)
	require.Equal(t, models.EscalationAssigned, escalated.EscalationStatus)
	firstEscalatedAt := *escalated.EscalatedAt

	resolved, err := svc.Resolve(ctx, "acme", "s1", "refund issued")
	require.NoError(t, err)
	assert.Equal(t, models.EscalationResolved, resolved.EscalationStatus)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, "sup", resolved.AssignedUserID, "assignee retained for audit")
	assert.Equal(t, "refund issued", resolved.Metadata["resolution_notes"])

	// System message for the chat user.
	require.Len(t, notifier.messages, 1)
	assert.Equal(t, models.RoleSystem, notifier.messages[0].Role)

	// Supporter load returns.
	supporter, err := st.GetSupporter(ctx, "acme", "sup")
	require.NoError(t, err)
	assert.Equal(t, 0, supporter.ActiveSessions)

	// Resolving again is a no-op success.
	_, err = svc.Resolve(ctx, "acme", "s1", "")
	require.NoError(t, err)

	// Fresh re-escalation of the same session keeps the first escalated_at.
	st.PutSupporter(&models.Supporter{
		ID: "sup", TenantID: "acme", Status: "offline", MaxSessions: 5,
	})
	re, err := svc.Escalate(ctx, "acme", "s1", "it broke again")
	require.NoError(t, err)
	assert.Equal(t, models.EscalationPending, re.EscalationStatus)
	assert.Equal(t, firstEscalatedAt, *re.EscalatedAt)
}

func TestResolve_PendingIsInvalid(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)
	seedSession(t, st, "s1")
	_, err := svc.Escalate(ctx, "acme", "s1", "need a human")
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, "acme", "s1", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestQueue_FiltersByStatus(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)
	seedSession(t, st, "s1")
	seedSession(t, st, "s2")
	_, err := svc.Escalate(ctx, "acme", "s1", "need a human")
	require.NoError(t, err)

	pending, err := svc.Queue(ctx, "acme", models.EscalationPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "s1", pending[0].ID)

	all, err := svc.Queue(ctx, "acme", "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDetector(t *testing.T) {
	d := NewDetector(nil)

	reason, confidence, ok := d.Detect("I want to speak to someone, a real person, not a bot. HUMAN!")
	require.True(t, ok)
	assert.Equal(t, 1.0, confidence, "three or more hits saturate")
	assert.Contains(t, reason, "real person")

	_, confidence, ok = d.Detect("please talk to an agent")
	require.True(t, ok)
	assert.InDelta(t, 1.0/3, confidence, 1e-9)

	_, _, ok = d.Detect("where is my parcel?")
	assert.False(t, ok)

	custom := NewDetector([]string{"ombudsman"})
	_, _, ok = custom.Detect("I will contact the Ombudsman")
	assert.True(t, ok)
	_, _, ok = custom.Detect("give me a human")
	assert.False(t, ok, "custom keywords replace the defaults")
}
