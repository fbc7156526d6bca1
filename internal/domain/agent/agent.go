// Package agent defines registered agents, their project assignments,
// and the org-scoped message and task bus entities.
package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quothlabs/quoth/internal/domain"
)

// Status is an agent's registration state.
type Status string

// Agent states.
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusArchived Status = "archived"
)

// Agent is a registered AI worker within an organization. Name is unique
// per organization.
type Agent struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	Name           string          `json:"agent_name"`
	DisplayName    string          `json:"display_name,omitempty"`
	Instance       string          `json:"instance"`
	Model          string          `json:"model,omitempty"`
	Role           string          `json:"role,omitempty"`
	Capabilities   json.RawMessage `json:"capabilities,omitempty"`
	Status         Status          `json:"status"`
	LastSeenAt     *time.Time      `json:"last_seen_at,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// RegisterRequest carries the input for quoth_agent_register.
type RegisterRequest struct {
	Name         string          `json:"agent_name"`
	Instance     string          `json:"instance"`
	DisplayName  string          `json:"display_name,omitempty"`
	Model        string          `json:"model,omitempty"`
	Role         string          `json:"role,omitempty"`
	Capabilities json.RawMessage `json:"capabilities,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// Validate checks required registration fields.
func (r *RegisterRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("agent_name is required: %w", domain.ErrValidation)
	}
	if len(r.Name) > 128 {
		return fmt.Errorf("agent_name exceeds 128 characters: %w", domain.ErrValidation)
	}
	if r.Instance == "" {
		return fmt.Errorf("instance is required: %w", domain.ErrValidation)
	}
	return nil
}

// UpdateRequest applies partial updates to an agent. Nil fields are
// left unchanged.
type UpdateRequest struct {
	DisplayName  *string         `json:"display_name,omitempty"`
	Model        *string         `json:"model,omitempty"`
	Role         *string         `json:"role,omitempty"`
	Capabilities json.RawMessage `json:"capabilities,omitempty"`
	Status       *Status         `json:"status,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// AssignmentRole is an agent's role on an assigned project.
type AssignmentRole string

// Assignment roles.
const (
	AssignOwner       AssignmentRole = "owner"
	AssignContributor AssignmentRole = "contributor"
	AssignReadonly    AssignmentRole = "readonly"
)

// Assignment links an agent to a project.
type Assignment struct {
	AgentID    string         `json:"agent_id"`
	ProjectID  string         `json:"project_id"`
	Role       AssignmentRole `json:"role"`
	AssignedBy string         `json:"assigned_by"`
}
