package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/agent"
)

const agentColumns = `id, organization_id, agent_name, display_name, instance, model, role, capabilities, status, last_seen_at, metadata`

func scanAgent(row interface{ Scan(...any) error }) (*agent.Agent, error) {
	var a agent.Agent
	err := row.Scan(&a.ID, &a.OrganizationID, &a.Name, &a.DisplayName, &a.Instance,
		&a.Model, &a.Role, &a.Capabilities, &a.Status, &a.LastSeenAt, &a.Metadata)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) CreateAgent(ctx context.Context, a *agent.Agent) error {
	caps := a.Capabilities
	if caps == nil {
		caps = []byte(`{}`)
	}
	meta := a.Metadata
	if meta == nil {
		meta = []byte(`{}`)
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agents (organization_id, agent_name, display_name, instance, model, role, capabilities, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		a.OrganizationID, a.Name, a.DisplayName, a.Instance, a.Model, a.Role, caps, a.Status, meta,
	).Scan(&a.ID)
	return mapErr("create agent", err)
}

func (s *Store) GetAgent(ctx context.Context, organizationID, id string) (*agent.Agent, error) {
	a, err := scanAgent(s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE organization_id = $1 AND id = $2`,
		organizationID, id))
	if err != nil {
		return nil, mapErr("get agent", err)
	}
	return a, nil
}

func (s *Store) GetAgentByName(ctx context.Context, organizationID, name string) (*agent.Agent, error) {
	a, err := scanAgent(s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE organization_id = $1 AND agent_name = $2`,
		organizationID, name))
	if err != nil {
		return nil, mapErr("get agent by name", err)
	}
	return a, nil
}

func (s *Store) UpdateAgent(ctx context.Context, organizationID, id string, upd agent.UpdateRequest) (*agent.Agent, error) {
	a, err := scanAgent(s.pool.QueryRow(ctx, `
		UPDATE agents SET
			display_name = COALESCE($3, display_name),
			model        = COALESCE($4, model),
			role         = COALESCE($5, role),
			capabilities = COALESCE($6, capabilities),
			status       = COALESCE($7, status),
			metadata     = COALESCE($8, metadata)
		WHERE organization_id = $1 AND id = $2
		RETURNING `+agentColumns,
		organizationID, id,
		upd.DisplayName, upd.Model, upd.Role,
		nullableJSON(upd.Capabilities), upd.Status, nullableJSON(upd.Metadata)))
	if err != nil {
		return nil, mapErr("update agent", err)
	}
	return a, nil
}

// nullableJSON maps an absent RawMessage to SQL NULL so COALESCE keeps
// the stored value.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func (s *Store) ListAgents(ctx context.Context, organizationID string) ([]agent.Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE organization_id = $1 ORDER BY agent_name`,
		organizationID)
	if err != nil {
		return nil, mapErr("list agents", err)
	}
	defer rows.Close()

	var out []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, mapErr("scan agent", err)
		}
		out = append(out, *a)
	}
	return out, mapErr("list agents", rows.Err())
}

func (s *Store) TouchAgent(ctx context.Context, organizationID, id string, seenAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE agents SET last_seen_at = $3 WHERE organization_id = $1 AND id = $2`,
		organizationID, id, seenAt)
	return mapErr("touch agent", err)
}

func (s *Store) UpsertAssignment(ctx context.Context, a agent.Assignment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_assignments (agent_id, project_id, role, assigned_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (agent_id, project_id) DO UPDATE SET role = EXCLUDED.role, assigned_by = EXCLUDED.assigned_by`,
		a.AgentID, a.ProjectID, a.Role, a.AssignedBy)
	return mapErr("upsert assignment", err)
}

func (s *Store) DeleteAssignment(ctx context.Context, agentID, projectID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM agent_assignments WHERE agent_id = $1 AND project_id = $2`,
		agentID, projectID)
	if err != nil {
		return mapErr("delete assignment", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete assignment: %w", domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, agentID string) ([]agent.Assignment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_id, project_id, role, assigned_by FROM agent_assignments WHERE agent_id = $1`,
		agentID)
	if err != nil {
		return nil, mapErr("list assignments", err)
	}
	defer rows.Close()

	var out []agent.Assignment
	for rows.Next() {
		var a agent.Assignment
		if err := rows.Scan(&a.AgentID, &a.ProjectID, &a.Role, &a.AssignedBy); err != nil {
			return nil, mapErr("scan assignment", err)
		}
		out = append(out, a)
	}
	return out, mapErr("list assignments", rows.Err())
}

func (s *Store) CreateMessage(ctx context.Context, m *agent.Message) error {
	payload := m.Payload
	if payload == nil {
		payload = []byte(`{}`)
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agent_messages (organization_id, from_agent_id, to_agent_id, message_type, priority, channel, reply_to, payload, signature, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		m.OrganizationID, m.FromAgentID, m.ToAgentID, m.Type, m.Priority,
		m.Channel, m.ReplyTo, payload, m.Signature, m.Status,
	).Scan(&m.ID, &m.CreatedAt)
	return mapErr("create message", err)
}

func (s *Store) ListInbox(ctx context.Context, organizationID, agentID string, limit int, status agent.MessageStatus) ([]agent.InboxMessage, error) {
	query := `
		SELECT m.id, m.organization_id, m.from_agent_id, m.to_agent_id, m.message_type,
		       m.priority, m.channel, m.reply_to, m.payload, m.signature, m.status,
		       m.created_at, m.read_at, a.agent_name, a.display_name
		FROM agent_messages m
		JOIN agents a ON a.id = m.from_agent_id
		WHERE m.organization_id = $1 AND m.to_agent_id = $2`
	args := []any{organizationID, agentID}
	if status != "" {
		query += ` AND m.status = $3`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY m.created_at DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list inbox", err)
	}
	defer rows.Close()

	var out []agent.InboxMessage
	for rows.Next() {
		var m agent.InboxMessage
		err := rows.Scan(&m.ID, &m.OrganizationID, &m.FromAgentID, &m.ToAgentID, &m.Type,
			&m.Priority, &m.Channel, &m.ReplyTo, &m.Payload, &m.Signature, &m.Status,
			&m.CreatedAt, &m.ReadAt, &m.FromName, &m.FromDisplayName)
		if err != nil {
			return nil, mapErr("scan inbox message", err)
		}
		out = append(out, m)
	}
	return out, mapErr("list inbox", rows.Err())
}

func (s *Store) MarkMessagesRead(ctx context.Context, organizationID string, messageIDs []string, readAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE agent_messages SET status = 'read', read_at = $3
		 WHERE organization_id = $1 AND id = ANY($2) AND status <> 'read'`,
		organizationID, messageIDs, readAt)
	return mapErr("mark messages read", err)
}

const taskColumns = `id, organization_id, assigned_to, created_by, title, description, priority, deadline, payload, status, result, started_at, completed_at, created_at`

func scanTask(row interface{ Scan(...any) error }) (*agent.Task, error) {
	var t agent.Task
	err := row.Scan(&t.ID, &t.OrganizationID, &t.AssignedTo, &t.CreatedBy, &t.Title,
		&t.Description, &t.Priority, &t.Deadline, &t.Payload, &t.Status, &t.Result,
		&t.StartedAt, &t.CompletedAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateTask(ctx context.Context, t *agent.Task) error {
	payload := t.Payload
	if payload == nil {
		payload = []byte(`{}`)
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agent_tasks (organization_id, assigned_to, created_by, title, description, priority, deadline, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		t.OrganizationID, t.AssignedTo, t.CreatedBy, t.Title, t.Description,
		t.Priority, t.Deadline, payload, t.Status,
	).Scan(&t.ID, &t.CreatedAt)
	return mapErr("create task", err)
}

func (s *Store) GetTask(ctx context.Context, organizationID, id string) (*agent.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM agent_tasks WHERE organization_id = $1 AND id = $2`,
		organizationID, id))
	if err != nil {
		return nil, mapErr("get task", err)
	}
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, t *agent.Task) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE agent_tasks SET
			status = $3, result = $4, priority = $5, started_at = $6, completed_at = $7
		WHERE organization_id = $1 AND id = $2`,
		t.OrganizationID, t.ID, t.Status, t.Result, t.Priority, t.StartedAt, t.CompletedAt)
	if err != nil {
		return mapErr("update task", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update task: %w", domain.ErrNotFound)
	}
	return nil
}
