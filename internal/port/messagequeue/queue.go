// Package messagequeue defines the delivery-notification port for the
// agent bus.
package messagequeue

import "context"

// Subjects published by the agent bus. Inbox polling remains the source
// of truth; these notify realtime consumers that new rows exist.
const (
	SubjectAgentMessage = "quoth.agents.message"
	SubjectAgentTask    = "quoth.agents.task"
)

// Handler processes one delivered message.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the messaging port.
type Queue interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)
	Close() error
}

// MessageNotification is the payload published on SubjectAgentMessage.
type MessageNotification struct {
	MessageID      string `json:"message_id"`
	OrganizationID string `json:"organization_id"`
	ToAgentID      string `json:"to_agent_id"`
	Type           string `json:"type"`
	Priority       string `json:"priority"`
}

// TaskNotification is the payload published on SubjectAgentTask.
type TaskNotification struct {
	TaskID         string `json:"task_id"`
	OrganizationID string `json:"organization_id"`
	AssignedTo     string `json:"assigned_to"`
	Status         string `json:"status"`
}
