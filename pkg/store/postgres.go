package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convoflow/convoflow/pkg/models"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func marshalMeta(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}

// --- Tenants ---

func (p *Postgres) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT tenant_id, name, is_active, created_at FROM tenants WHERE tenant_id = $1`, id)
	var t models.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (p *Postgres) ListActiveTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT tenant_id, name, is_active, created_at FROM tenants WHERE is_active ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	defer rows.Close()

	var out []*models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// --- Agents ---

func (p *Postgres) CreateAgent(ctx context.Context, agent *models.AgentConfig) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO agent_configs (agent_id, name, description, prompt_template, model, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		agent.ID, agent.Name, agent.Description, agent.PromptTemplate, agent.Model,
		agent.IsActive, agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (p *Postgres) scanAgent(row pgx.Row) (*models.AgentConfig, error) {
	var a models.AgentConfig
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.PromptTemplate, &a.Model,
		&a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	return &a, nil
}

const agentCols = `agent_id, name, description, prompt_template, model, is_active, created_at, updated_at`

func (p *Postgres) GetAgent(ctx context.Context, id string) (*models.AgentConfig, error) {
	return p.scanAgent(p.pool.QueryRow(ctx,
		`SELECT `+agentCols+` FROM agent_configs WHERE agent_id = $1`, id))
}

func (p *Postgres) GetAgentByName(ctx context.Context, name string) (*models.AgentConfig, error) {
	return p.scanAgent(p.pool.QueryRow(ctx,
		`SELECT `+agentCols+` FROM agent_configs WHERE name = $1`, name))
}

func (p *Postgres) ListAgents(ctx context.Context) ([]*models.AgentConfig, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+agentCols+` FROM agent_configs ORDER BY lower(name)`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*models.AgentConfig
	for rows.Next() {
		a, err := p.scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateAgent(ctx context.Context, agent *models.AgentConfig) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE agent_configs
		 SET name = $2, description = $3, prompt_template = $4, model = $5, is_active = $6, updated_at = now()
		 WHERE agent_id = $1`,
		agent.ID, agent.Name, agent.Description, agent.PromptTemplate, agent.Model, agent.IsActive)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Tools ---

const toolCols = `tool_id, name, type, config, input_schema, description, is_active, created_at, updated_at`

func (p *Postgres) scanTool(row pgx.Row) (*models.ToolConfig, error) {
	var t models.ToolConfig
	var cfg, schema []byte
	err := row.Scan(&t.ID, &t.Name, &t.Type, &cfg, &schema, &t.Description,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan tool: %w", err)
	}
	t.Config = json.RawMessage(cfg)
	t.InputSchema = json.RawMessage(schema)
	return &t, nil
}

func (p *Postgres) CreateTool(ctx context.Context, tool *models.ToolConfig) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO tool_configs (tool_id, name, type, config, input_schema, description, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tool.ID, tool.Name, tool.Type, []byte(tool.Config), []byte(tool.InputSchema),
		tool.Description, tool.IsActive, tool.CreatedAt, tool.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create tool: %w", err)
	}
	return nil
}

func (p *Postgres) GetTool(ctx context.Context, id string) (*models.ToolConfig, error) {
	return p.scanTool(p.pool.QueryRow(ctx,
		`SELECT `+toolCols+` FROM tool_configs WHERE tool_id = $1`, id))
}

func (p *Postgres) ListTools(ctx context.Context) ([]*models.ToolConfig, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+toolCols+` FROM tool_configs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var out []*models.ToolConfig
	for rows.Next() {
		t, err := p.scanTool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateTool(ctx context.Context, tool *models.ToolConfig) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE tool_configs
		 SET name = $2, type = $3, config = $4, input_schema = $5, description = $6, is_active = $7, updated_at = now()
		 WHERE tool_id = $1`,
		tool.ID, tool.Name, tool.Type, []byte(tool.Config), []byte(tool.InputSchema),
		tool.Description, tool.IsActive)
	if err != nil {
		return fmt.Errorf("update tool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Bindings ---

func (p *Postgres) ReplaceAgentBindings(ctx context.Context, agentID string, bindings []models.AgentToolBinding) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin binding replace: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM agent_configs WHERE agent_id = $1)`, agentID).Scan(&exists); err != nil {
		return fmt.Errorf("check agent: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM agent_tools WHERE agent_id = $1`, agentID); err != nil {
		return fmt.Errorf("clear bindings: %w", err)
	}
	for _, b := range bindings {
		if _, err := tx.Exec(ctx,
			`INSERT INTO agent_tools (agent_id, tool_id, priority, enabled, created_at)
			 VALUES ($1, $2, $3, $4, now())`,
			agentID, b.ToolID, b.Priority, b.Enabled); err != nil {
			return fmt.Errorf("insert binding: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) ListAgentBindings(ctx context.Context, agentID string) ([]models.AgentToolBinding, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT agent_id, tool_id, priority, enabled, created_at
		 FROM agent_tools WHERE agent_id = $1 ORDER BY priority ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()

	var out []models.AgentToolBinding
	for rows.Next() {
		var b models.AgentToolBinding
		if err := rows.Scan(&b.AgentID, &b.ToolID, &b.Priority, &b.Enabled, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- Permissions ---

func (p *Postgres) UpsertAgentPermission(ctx context.Context, perm *models.TenantAgentPermission) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO tenant_agent_permissions (tenant_id, agent_id, enabled, output_format, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 ON CONFLICT (tenant_id, agent_id)
		 DO UPDATE SET enabled = EXCLUDED.enabled, output_format = EXCLUDED.output_format, updated_at = now()`,
		perm.TenantID, perm.AgentID, perm.Enabled, string(perm.OutputFormat))
	if err != nil {
		return fmt.Errorf("upsert agent permission: %w", err)
	}
	return nil
}

func (p *Postgres) GetAgentPermission(ctx context.Context, tenantID, agentID string) (*models.TenantAgentPermission, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT tenant_id, agent_id, enabled, output_format, created_at, updated_at
		 FROM tenant_agent_permissions WHERE tenant_id = $1 AND agent_id = $2`, tenantID, agentID)
	var perm models.TenantAgentPermission
	var format string
	err := row.Scan(&perm.TenantID, &perm.AgentID, &perm.Enabled, &format, &perm.CreatedAt, &perm.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get agent permission: %w", err)
	}
	perm.OutputFormat = models.OutputFormat(format)
	return &perm, nil
}

func (p *Postgres) ListAgentPermissions(ctx context.Context, tenantID string) ([]*models.TenantAgentPermission, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT tenant_id, agent_id, enabled, output_format, created_at, updated_at
		 FROM tenant_agent_permissions WHERE tenant_id = $1 ORDER BY agent_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list agent permissions: %w", err)
	}
	defer rows.Close()

	var out []*models.TenantAgentPermission
	for rows.Next() {
		var perm models.TenantAgentPermission
		var format string
		if err := rows.Scan(&perm.TenantID, &perm.AgentID, &perm.Enabled, &format,
			&perm.CreatedAt, &perm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent permission: %w", err)
		}
		perm.OutputFormat = models.OutputFormat(format)
		out = append(out, &perm)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertToolPermission(ctx context.Context, perm *models.TenantToolPermission) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO tenant_tool_permissions (tenant_id, tool_id, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (tenant_id, tool_id)
		 DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()`,
		perm.TenantID, perm.ToolID, perm.Enabled)
	if err != nil {
		return fmt.Errorf("upsert tool permission: %w", err)
	}
	return nil
}

func (p *Postgres) GetToolPermission(ctx context.Context, tenantID, toolID string) (*models.TenantToolPermission, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT tenant_id, tool_id, enabled, created_at, updated_at
		 FROM tenant_tool_permissions WHERE tenant_id = $1 AND tool_id = $2`, tenantID, toolID)
	var perm models.TenantToolPermission
	err := row.Scan(&perm.TenantID, &perm.ToolID, &perm.Enabled, &perm.CreatedAt, &perm.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tool permission: %w", err)
	}
	return &perm, nil
}

// --- Sessions ---

const sessionCols = `session_id, tenant_id, chat_user_id, agent_id, escalation_status,
	escalation_reason, assigned_user_id, escalated_at, resolved_at, metadata, created_at, last_message_at`

func scanSession(row pgx.Row) (*models.ChatSession, error) {
	var s models.ChatSession
	var agentID, reason, assigned *string
	var meta []byte
	err := row.Scan(&s.ID, &s.TenantID, &s.ChatUserID, &agentID, &s.EscalationStatus,
		&reason, &assigned, &s.EscalatedAt, &s.ResolvedAt, &meta, &s.CreatedAt, &s.LastMessageAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if agentID != nil {
		s.AgentID = *agentID
	}
	if reason != nil {
		s.EscalationReason = *reason
	}
	if assigned != nil {
		s.AssignedUserID = *assigned
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode session metadata: %w", err)
		}
	}
	return &s, nil
}

func (p *Postgres) CreateSession(ctx context.Context, session *models.ChatSession) error {
	meta, err := marshalMeta(session.Metadata)
	if err != nil {
		return fmt.Errorf("encode session metadata: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO sessions (session_id, tenant_id, chat_user_id, escalation_status, metadata, created_at, last_message_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.TenantID, session.ChatUserID, session.EscalationStatus,
		meta, session.CreatedAt, session.LastMessageAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (p *Postgres) GetSession(ctx context.Context, tenantID, id string) (*models.ChatSession, error) {
	return scanSession(p.pool.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE session_id = $1 AND tenant_id = $2`, id, tenantID))
}

// TransitionEscalation is a single conditional UPDATE: the WHERE clause pins
// the expected current status, so of two concurrent transitions from the
// same state exactly one sees a row.
func (p *Postgres) TransitionEscalation(ctx context.Context, tenantID, sessionID string, from models.EscalationStatus, upd EscalationUpdate) (*models.ChatSession, error) {
	var metaPatch []byte
	if upd.Metadata != nil {
		var err error
		metaPatch, err = json.Marshal(upd.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode escalation metadata: %w", err)
		}
	}

	row := p.pool.QueryRow(ctx,
		`UPDATE sessions SET
			escalation_status = $4,
			escalation_reason = COALESCE($5, escalation_reason),
			assigned_user_id  = COALESCE($6, assigned_user_id),
			escalated_at      = COALESCE($7, escalated_at),
			resolved_at       = COALESCE($8, resolved_at),
			metadata          = CASE WHEN $9::jsonb IS NULL THEN metadata ELSE metadata || $9::jsonb END
		 WHERE session_id = $1 AND tenant_id = $2 AND escalation_status = $3
		 RETURNING `+sessionCols,
		sessionID, tenantID, from, upd.Status, upd.Reason, upd.AssignedUserID,
		upd.EscalatedAt, upd.ResolvedAt, metaPatch)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Distinguish a missing session from a lost CAS race.
			if _, getErr := p.GetSession(ctx, tenantID, sessionID); getErr == nil {
				return nil, ErrConflict
			}
			return nil, ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func (p *Postgres) ListEscalatedSessions(ctx context.Context, tenantID string, status models.EscalationStatus) ([]*models.ChatSession, error) {
	query := `SELECT ` + sessionCols + ` FROM sessions
		WHERE tenant_id = $1 AND escalation_status <> 'none'`
	args := []any{tenantID}
	if status != "" {
		query += ` AND escalation_status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY escalated_at DESC NULLS LAST`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list escalated sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.ChatSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) BindAgent(ctx context.Context, tenantID, sessionID, agentID string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE sessions SET agent_id = $3 WHERE session_id = $1 AND tenant_id = $2`,
		sessionID, tenantID, agentID)
	if err != nil {
		return fmt.Errorf("bind agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Messages ---

func (p *Postgres) insertMessage(ctx context.Context, tx pgx.Tx, msg *models.Message) error {
	meta, err := marshalMeta(msg.Metadata)
	if err != nil {
		return fmt.Errorf("encode message metadata: %w", err)
	}
	var sender *string
	if msg.SenderUserID != "" {
		sender = &msg.SenderUserID
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO messages (message_id, session_id, role, content, sender_user_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, sender, meta, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (p *Postgres) AppendMessage(ctx context.Context, msg *models.Message) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := p.insertMessage(ctx, tx, msg); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) AppendMessageAndTouchSession(ctx context.Context, msg *models.Message) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := p.insertMessage(ctx, tx, msg); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET last_message_at = $2 WHERE session_id = $1`,
		msg.SessionID, msg.CreatedAt); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	query := `SELECT message_id, session_id, role, content, sender_user_id, metadata, created_at
		FROM messages WHERE session_id = $1 ORDER BY created_at ASC, message_id ASC`
	args := []any{sessionID}
	if limit > 0 {
		// Last N in chronological order.
		query = `SELECT * FROM (
			SELECT message_id, session_id, role, content, sender_user_id, metadata, created_at
			FROM messages WHERE session_id = $1 ORDER BY created_at DESC, message_id DESC LIMIT $2
		) sub ORDER BY created_at ASC, message_id ASC`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var m models.Message
		var sender *string
		var meta []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &sender, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if sender != nil {
			m.SenderUserID = *sender
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// --- Supporters ---

const supporterCols = `supporter_id, tenant_id, display_name, status, active_sessions, max_sessions, created_at`

func scanSupporter(row pgx.Row) (*models.Supporter, error) {
	var s models.Supporter
	err := row.Scan(&s.ID, &s.TenantID, &s.DisplayName, &s.Status,
		&s.ActiveSessions, &s.MaxSessions, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan supporter: %w", err)
	}
	return &s, nil
}

func (p *Postgres) GetSupporter(ctx context.Context, tenantID, id string) (*models.Supporter, error) {
	return scanSupporter(p.pool.QueryRow(ctx,
		`SELECT `+supporterCols+` FROM supporters WHERE supporter_id = $1 AND tenant_id = $2`, id, tenantID))
}

func (p *Postgres) ListAvailableSupporters(ctx context.Context, tenantID string) ([]*models.Supporter, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+supporterCols+` FROM supporters
		 WHERE tenant_id = $1 AND status = $2 AND active_sessions < max_sessions
		 ORDER BY active_sessions ASC, supporter_id ASC`,
		tenantID, models.SupporterStatusOnline)
	if err != nil {
		return nil, fmt.Errorf("list available supporters: %w", err)
	}
	defer rows.Close()

	var out []*models.Supporter
	for rows.Next() {
		s, err := scanSupporter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) AdjustActiveSessions(ctx context.Context, supporterID string, delta int) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE supporters SET active_sessions = GREATEST(active_sessions + $2, 0)
		 WHERE supporter_id = $1`, supporterID, delta)
	if err != nil {
		return fmt.Errorf("adjust supporter sessions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Events (real-time catch-up) ---

// GetCatchupEvents returns persisted events on a channel after sinceID,
// oldest first, used by the WebSocket layer to replay missed events.
func (p *Postgres) GetCatchupEvents(ctx context.Context, channel string, sinceID, limit int) ([]CatchupEvent, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, payload FROM events WHERE channel = $1 AND id > $2 ORDER BY id ASC LIMIT $3`,
		channel, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("catchup query: %w", err)
	}
	defer rows.Close()

	var out []CatchupEvent
	for rows.Next() {
		var evt CatchupEvent
		var payload []byte
		if err := rows.Scan(&evt.ID, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(payload, &evt.Payload); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// CatchupEvent is one persisted real-time event row.
type CatchupEvent struct {
	ID      int
	Payload map[string]any
}

var _ Store = (*Postgres)(nil)
