package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quothlabs/quoth/internal/domain"
)

// MessageType classifies bus traffic.
type MessageType string

// Message types.
const (
	TypeMessage   MessageType = "message"
	TypeTask      MessageType = "task"
	TypeResult    MessageType = "result"
	TypeAlert     MessageType = "alert"
	TypeKnowledge MessageType = "knowledge"
	TypeCurator   MessageType = "curator"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case TypeMessage, TypeTask, TypeResult, TypeAlert, TypeKnowledge, TypeCurator:
		return true
	}
	return false
}

// Priority orders message delivery.
type Priority string

// Message priorities.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// MessageStatus tracks delivery state.
type MessageStatus string

// Message delivery states.
const (
	MessagePending   MessageStatus = "pending"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// Message is a signed, org-scoped envelope between agents. The payload
// is opaque to the bus; the signature authenticates the envelope only.
type Message struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	FromAgentID    string          `json:"from_agent_id"`
	ToAgentID      string          `json:"to_agent_id"`
	Type           MessageType     `json:"type"`
	Priority       Priority        `json:"priority"`
	Channel        string          `json:"channel,omitempty"`
	ReplyTo        string          `json:"reply_to,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Signature      string          `json:"signature"`
	Status         MessageStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ReadAt         *time.Time      `json:"read_at,omitempty"`
}

// InboxMessage is a message joined with its sender's profile.
type InboxMessage struct {
	Message
	FromName        string `json:"from_agent_name"`
	FromDisplayName string `json:"from_display_name,omitempty"`
}

// TaskStatus is a task's lifecycle state.
type TaskStatus string

// Task states.
const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether s is a final task state.
func (s TaskStatus) Terminal() bool {
	return s == TaskDone || s == TaskFailed || s == TaskCancelled
}

// CanTransition reports whether s may move to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s.Terminal() || s == next {
		return false
	}
	switch s {
	case TaskPending:
		return next == TaskInProgress || next.Terminal()
	case TaskInProgress:
		return next.Terminal()
	}
	return false
}

// Task is an org-scoped unit of work assigned to an agent.
// Priority is an integer where 1 is highest.
type Task struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	AssignedTo     string          `json:"assigned_to"`
	CreatedBy      string          `json:"created_by"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Priority       int             `json:"priority"`
	Deadline       *time.Time      `json:"deadline,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Status         TaskStatus      `json:"status"`
	Result         string          `json:"result,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TaskUpdate applies partial updates to a task.
type TaskUpdate struct {
	Status   *TaskStatus `json:"status,omitempty"`
	Result   *string     `json:"result,omitempty"`
	Priority *int        `json:"priority,omitempty"`
}

// ValidateTaskTitle checks the create-task title field.
func ValidateTaskTitle(title string) error {
	if title == "" {
		return fmt.Errorf("title is required: %w", domain.ErrValidation)
	}
	if len(title) > 512 {
		return fmt.Errorf("title exceeds 512 characters: %w", domain.ErrValidation)
	}
	return nil
}
