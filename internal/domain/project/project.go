// Package project defines organizations, projects, users, and memberships.
package project

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/quothlabs/quoth/internal/domain"
)

// Tier is a project's usage class. It controls daily search quotas and
// whether reranking runs.
type Tier string

// Known tiers.
const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
	TierTeam Tier = "team"
)

// Role is a user's role within a project.
type Role string

// Known roles, ordered by authority.
const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEditor || r == RoleViewer
}

// CanPropose reports whether the role may submit document updates.
func (r Role) CanPropose() bool { return r == RoleAdmin || r == RoleEditor }

// CanApprove reports whether the role may approve or reject proposals
// and create projects.
func (r Role) CanApprove() bool { return r == RoleAdmin }

// Organization is the tenant boundary for agents, messages, tasks, and
// shared documents.
type Organization struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	OwnerUserID string    `json:"owner_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Project is the tenant boundary for documents and proposals.
type Project struct {
	ID              string    `json:"id"`
	Slug            string    `json:"slug"`
	Name            string    `json:"name"`
	OrganizationID  string    `json:"organization_id"`
	OwnerUserID     string    `json:"owner_user_id"`
	GitHubRepo      string    `json:"github_repo,omitempty"`
	IsPublic        bool      `json:"is_public"`
	RequireApproval bool      `json:"require_approval"`
	Tier            Tier      `json:"tier"`
	CreatedAt       time.Time `json:"created_at"`
}

// User is an authenticated account.
type User struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	DefaultProjectID string `json:"default_project_id,omitempty"`
}

// Member links a user to a project with a role. Composite key.
type Member struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
}

// Membership is a member row joined with its project, as surfaced by
// account listing and switching.
type Membership struct {
	ProjectID   string `json:"project_id"`
	ProjectSlug string `json:"project_slug"`
	ProjectName string `json:"project_name"`
	Role        Role   `json:"role"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// CreateRequest carries the input for project creation.
type CreateRequest struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	GitHubRepo string `json:"github_repo,omitempty"`
	IsPublic   bool   `json:"is_public,omitempty"`
}

// Validate checks name and slug constraints.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if len(r.Name) > 255 {
		return fmt.Errorf("name exceeds 255 characters: %w", domain.ErrValidation)
	}
	if r.Slug == "" {
		return fmt.Errorf("slug is required: %w", domain.ErrValidation)
	}
	if len(r.Slug) > 63 {
		return fmt.Errorf("slug exceeds 63 characters: %w", domain.ErrValidation)
	}
	if !slugPattern.MatchString(r.Slug) {
		return fmt.Errorf("slug must contain only lowercase letters, digits, and hyphens: %w", domain.ErrValidation)
	}
	return nil
}
