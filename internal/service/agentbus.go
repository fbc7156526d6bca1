package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/agent"
	"github.com/quothlabs/quoth/internal/port/database"
	"github.com/quothlabs/quoth/internal/port/messagequeue"
)

// defaultInboxLimit bounds inbox reads when the caller gives no limit.
const defaultInboxLimit = 10

// AgentBusService manages registered agents, their project assignments,
// and the org-scoped signed message and task bus. Queue is optional;
// when present, new rows are announced for realtime consumers, but
// inbox polling remains the source of truth.
type AgentBusService struct {
	store  database.Store
	queue  messagequeue.Queue
	logger *slog.Logger
	secret []byte
	now    func() time.Time
}

// NewAgentBusService creates the bus. queue may be nil.
func NewAgentBusService(store database.Store, queue messagequeue.Queue, signingSecret string, logger *slog.Logger) *AgentBusService {
	return &AgentBusService{
		store:  store,
		queue:  queue,
		logger: logger,
		secret: []byte(signingSecret),
		now:    time.Now,
	}
}

// Register creates an agent within the organization. Names are unique
// per org.
func (s *AgentBusService) Register(ctx context.Context, organizationID string, req agent.RegisterRequest) (*agent.Agent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	a := &agent.Agent{
		OrganizationID: organizationID,
		Name:           req.Name,
		DisplayName:    req.DisplayName,
		Instance:       req.Instance,
		Model:          req.Model,
		Role:           req.Role,
		Capabilities:   req.Capabilities,
		Status:         agent.StatusActive,
		Metadata:       req.Metadata,
	}
	if err := s.store.CreateAgent(ctx, a); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("agent name %q is taken in this organization: %w", req.Name, domain.ErrConflict)
		}
		return nil, err
	}
	return a, nil
}

// Update applies partial changes to an agent.
func (s *AgentBusService) Update(ctx context.Context, organizationID, agentRef string, upd agent.UpdateRequest) (*agent.Agent, error) {
	a, err := s.Resolve(ctx, organizationID, agentRef)
	if err != nil {
		return nil, err
	}
	if upd.Status != nil {
		switch *upd.Status {
		case agent.StatusActive, agent.StatusInactive, agent.StatusArchived:
		default:
			return nil, fmt.Errorf("unknown agent status %q: %w", *upd.Status, domain.ErrValidation)
		}
	}
	return s.store.UpdateAgent(ctx, organizationID, a.ID, upd)
}

// Remove archives an agent. Rows are kept so message history stays
// attributable.
func (s *AgentBusService) Remove(ctx context.Context, organizationID, agentRef string) error {
	archived := agent.StatusArchived
	_, err := s.Update(ctx, organizationID, agentRef, agent.UpdateRequest{Status: &archived})
	return err
}

// List returns all agents in the organization.
func (s *AgentBusService) List(ctx context.Context, organizationID string) ([]agent.Agent, error) {
	return s.store.ListAgents(ctx, organizationID)
}

// Resolve finds an agent by UUID or by name within the organization.
func (s *AgentBusService) Resolve(ctx context.Context, organizationID, ref string) (*agent.Agent, error) {
	if _, err := uuid.Parse(ref); err == nil {
		if a, err := s.store.GetAgent(ctx, organizationID, ref); err == nil {
			return a, nil
		}
	}
	a, err := s.store.GetAgentByName(ctx, organizationID, ref)
	if err != nil {
		return nil, fmt.Errorf("agent %q not found in organization: %w", ref, domain.ErrNotFound)
	}
	return a, nil
}

// AssignProject links an agent to a project.
func (s *AgentBusService) AssignProject(ctx context.Context, organizationID, agentRef, projectID string, role agent.AssignmentRole, assignedBy string) error {
	a, err := s.Resolve(ctx, organizationID, agentRef)
	if err != nil {
		return err
	}
	if role == "" {
		role = agent.AssignContributor
	}
	switch role {
	case agent.AssignOwner, agent.AssignContributor, agent.AssignReadonly:
	default:
		return fmt.Errorf("unknown assignment role %q: %w", role, domain.ErrValidation)
	}
	return s.store.UpsertAssignment(ctx, agent.Assignment{
		AgentID:    a.ID,
		ProjectID:  projectID,
		Role:       role,
		AssignedBy: assignedBy,
	})
}

// UnassignProject removes an agent's project link.
func (s *AgentBusService) UnassignProject(ctx context.Context, organizationID, agentRef, projectID string) error {
	a, err := s.Resolve(ctx, organizationID, agentRef)
	if err != nil {
		return err
	}
	return s.store.DeleteAssignment(ctx, a.ID, projectID)
}

// SendRequest carries the input for quoth_agent_message.
type SendRequest struct {
	From     string
	To       string
	Type     agent.MessageType
	Priority agent.Priority
	Channel  string
	ReplyTo  string
	Payload  json.RawMessage
}

// Send signs and persists an org-scoped message. The signature covers
// the envelope (from, to, timestamp); the payload is opaque.
func (s *AgentBusService) Send(ctx context.Context, organizationID string, req SendRequest) (*agent.Message, error) {
	if req.Type == "" {
		req.Type = agent.TypeMessage
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("unknown message type %q: %w", req.Type, domain.ErrValidation)
	}
	if req.Priority == "" {
		req.Priority = agent.PriorityNormal
	}
	if !req.Priority.Valid() {
		return nil, fmt.Errorf("unknown priority %q: %w", req.Priority, domain.ErrValidation)
	}

	from, err := s.Resolve(ctx, organizationID, req.From)
	if err != nil {
		return nil, err
	}
	to, err := s.Resolve(ctx, organizationID, req.To)
	if err != nil {
		return nil, err
	}

	m := &agent.Message{
		OrganizationID: organizationID,
		FromAgentID:    from.ID,
		ToAgentID:      to.ID,
		Type:           req.Type,
		Priority:       req.Priority,
		Channel:        req.Channel,
		ReplyTo:        req.ReplyTo,
		Payload:        req.Payload,
		Signature:      s.signEnvelope(from.ID, to.ID, s.now().UTC().Format(time.RFC3339)),
		Status:         agent.MessagePending,
	}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("queue message: %w", err)
	}

	_ = s.store.TouchAgent(ctx, organizationID, from.ID, s.now())
	s.notifyMessage(ctx, m)
	return m, nil
}

// signEnvelope computes the truncated HMAC over the envelope fields.
func (s *AgentBusService) signEnvelope(from, to, nowISO string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(from + to + nowISO))
	mac.Write(s.secret)
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

func (s *AgentBusService) notifyMessage(ctx context.Context, m *agent.Message) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.MessageNotification{
		MessageID:      m.ID,
		OrganizationID: m.OrganizationID,
		ToAgentID:      m.ToAgentID,
		Type:           string(m.Type),
		Priority:       string(m.Priority),
	})
	if err == nil {
		err = s.queue.Publish(ctx, messagequeue.SubjectAgentMessage, data)
	}
	if err != nil {
		s.logger.Warn("message notification failed", "message_id", m.ID, "error", err)
	}
}

// Inbox returns an agent's messages joined with sender profiles,
// optionally flipping the returned set to read.
func (s *AgentBusService) Inbox(ctx context.Context, organizationID, agentRef string, limit int, status agent.MessageStatus, markRead bool) ([]agent.InboxMessage, error) {
	a, err := s.Resolve(ctx, organizationID, agentRef)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultInboxLimit
	}

	messages, err := s.store.ListInbox(ctx, organizationID, a.ID, limit, status)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	_ = s.store.TouchAgent(ctx, organizationID, a.ID, s.now())

	if markRead && len(messages) > 0 {
		ids := make([]string, 0, len(messages))
		for _, m := range messages {
			if m.Status != agent.MessageRead {
				ids = append(ids, m.ID)
			}
		}
		if len(ids) > 0 {
			readAt := s.now()
			if err := s.store.MarkMessagesRead(ctx, organizationID, ids, readAt); err != nil {
				s.logger.Warn("mark read failed", "error", err)
			} else {
				for i := range messages {
					if messages[i].Status != agent.MessageRead {
						messages[i].Status = agent.MessageRead
						messages[i].ReadAt = &readAt
					}
				}
			}
		}
	}
	return messages, nil
}

// CreateTaskRequest carries the input for quoth_task_create.
type CreateTaskRequest struct {
	AssignedTo  string
	CreatedBy   string
	Title       string
	Description string
	Priority    int
	Deadline    *time.Time
	Payload     json.RawMessage
}

// CreateTask queues an org-scoped task for an agent.
func (s *AgentBusService) CreateTask(ctx context.Context, organizationID string, req CreateTaskRequest) (*agent.Task, error) {
	if err := agent.ValidateTaskTitle(req.Title); err != nil {
		return nil, err
	}
	assignee, err := s.Resolve(ctx, organizationID, req.AssignedTo)
	if err != nil {
		return nil, err
	}
	priority := req.Priority
	if priority <= 0 {
		priority = 3
	}

	t := &agent.Task{
		OrganizationID: organizationID,
		AssignedTo:     assignee.ID,
		CreatedBy:      req.CreatedBy,
		Title:          req.Title,
		Description:    req.Description,
		Priority:       priority,
		Deadline:       req.Deadline,
		Payload:        req.Payload,
		Status:         agent.TaskPending,
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.notifyTask(ctx, t)
	return t, nil
}

// UpdateTask applies a partial task update through the status machine.
// Moving to in_progress stamps started_at once; terminal states stamp
// completed_at.
func (s *AgentBusService) UpdateTask(ctx context.Context, organizationID, taskID string, upd agent.TaskUpdate) (*agent.Task, error) {
	t, err := s.store.GetTask(ctx, organizationID, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}

	if upd.Status != nil && *upd.Status != t.Status {
		if !t.Status.CanTransition(*upd.Status) {
			return nil, fmt.Errorf("task cannot move from %s to %s: %w", t.Status, *upd.Status, domain.ErrConflict)
		}
		t.Status = *upd.Status
		now := s.now()
		if t.Status == agent.TaskInProgress && t.StartedAt == nil {
			t.StartedAt = &now
		}
		if t.Status.Terminal() && t.CompletedAt == nil {
			t.CompletedAt = &now
		}
	}
	if upd.Result != nil {
		t.Result = *upd.Result
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}

	if err := s.store.UpdateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	s.notifyTask(ctx, t)
	return t, nil
}

func (s *AgentBusService) notifyTask(ctx context.Context, t *agent.Task) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.TaskNotification{
		TaskID:         t.ID,
		OrganizationID: t.OrganizationID,
		AssignedTo:     t.AssignedTo,
		Status:         string(t.Status),
	})
	if err == nil {
		err = s.queue.Publish(ctx, messagequeue.SubjectAgentTask, data)
	}
	if err != nil {
		s.logger.Warn("task notification failed", "task_id", t.ID, "error", err)
	}
}
