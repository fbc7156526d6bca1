package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/project"
	"github.com/quothlabs/quoth/internal/port/database"
)

// ProjectService creates projects and their backing organizations.
type ProjectService struct {
	store  database.Store
	logger *slog.Logger
}

// NewProjectService creates the project service.
func NewProjectService(store database.Store, logger *slog.Logger) *ProjectService {
	return &ProjectService{store: store, logger: logger}
}

// Create provisions a project for the calling user, creating an
// organization first if the user owns none, and grants the caller an
// admin membership. Admin only at the tool layer.
func (s *ProjectService) Create(ctx context.Context, userID string, req project.CreateRequest) (*project.Project, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	org, err := s.store.GetOrganizationByOwner(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		org = &project.Organization{
			Slug:        req.Slug + "-org",
			Name:        req.Name,
			OwnerUserID: userID,
		}
		if err := s.store.CreateOrganization(ctx, org); err != nil {
			return nil, fmt.Errorf("create organization: %w", err)
		}
		s.logger.Info("created organization", "slug", org.Slug, "owner", userID)
	} else if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}

	p := &project.Project{
		Slug:            req.Slug,
		Name:            req.Name,
		OrganizationID:  org.ID,
		OwnerUserID:     userID,
		GitHubRepo:      req.GitHubRepo,
		IsPublic:        req.IsPublic,
		RequireApproval: true,
		Tier:            project.TierFree,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("slug %q is taken; try %q: %w", req.Slug, req.Slug+"-2", domain.ErrConflict)
		}
		return nil, fmt.Errorf("create project: %w", err)
	}

	if err := s.store.UpsertMember(ctx, project.Member{
		ProjectID: p.ID,
		UserID:    userID,
		Role:      project.RoleAdmin,
	}); err != nil {
		return nil, fmt.Errorf("grant admin membership: %w", err)
	}

	s.logger.Info("created project", "slug", p.Slug, "project_id", p.ID)
	return p, nil
}
