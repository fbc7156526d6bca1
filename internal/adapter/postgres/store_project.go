package postgres

import (
	"context"

	"github.com/quothlabs/quoth/internal/domain/project"
)

func (s *Store) CreateOrganization(ctx context.Context, org *project.Organization) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO organizations (slug, name, owner_user_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		org.Slug, org.Name, org.OwnerUserID,
	).Scan(&org.ID, &org.CreatedAt)
	return mapErr("create organization", err)
}

func (s *Store) GetOrganizationByOwner(ctx context.Context, userID string) (*project.Organization, error) {
	var org project.Organization
	err := s.pool.QueryRow(ctx, `
		SELECT id, slug, name, owner_user_id, created_at
		FROM organizations
		WHERE owner_user_id = $1`,
		userID,
	).Scan(&org.ID, &org.Slug, &org.Name, &org.OwnerUserID, &org.CreatedAt)
	if err != nil {
		return nil, mapErr("get organization by owner", err)
	}
	return &org, nil
}

func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO projects (slug, name, organization_id, owner_user_id, github_repo, is_public, require_approval, tier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		p.Slug, p.Name, p.OrganizationID, p.OwnerUserID, p.GitHubRepo, p.IsPublic, p.RequireApproval, p.Tier,
	).Scan(&p.ID, &p.CreatedAt)
	return mapErr("create project", err)
}

const projectColumns = `id, slug, name, organization_id, owner_user_id, github_repo, is_public, require_approval, tier, created_at`

func scanProject(row interface{ Scan(...any) error }) (*project.Project, error) {
	var p project.Project
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.OrganizationID, &p.OwnerUserID,
		&p.GitHubRepo, &p.IsPublic, &p.RequireApproval, &p.Tier, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("get project", err)
	}
	return p, nil
}

func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (*project.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE slug = $1`, slug))
	if err != nil {
		return nil, mapErr("get project by slug", err)
	}
	return p, nil
}

func (s *Store) GetProjectTier(ctx context.Context, projectID string) (project.Tier, error) {
	var tier project.Tier
	err := s.pool.QueryRow(ctx,
		`SELECT tier FROM projects WHERE id = $1`, projectID,
	).Scan(&tier)
	if err != nil {
		return "", mapErr("get project tier", err)
	}
	return tier, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*project.User, error) {
	var u project.User
	var defaultProject *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, default_project_id
		FROM users
		WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &defaultProject)
	if err != nil {
		return nil, mapErr("get user", err)
	}
	if defaultProject != nil {
		u.DefaultProjectID = *defaultProject
	}
	return &u, nil
}

func (s *Store) UpsertMember(ctx context.Context, m project.Member) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO members (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		m.ProjectID, m.UserID, m.Role,
	)
	return mapErr("upsert member", err)
}

func (s *Store) GetMember(ctx context.Context, projectID, userID string) (*project.Member, error) {
	var m project.Member
	err := s.pool.QueryRow(ctx, `
		SELECT project_id, user_id, role
		FROM members
		WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	).Scan(&m.ProjectID, &m.UserID, &m.Role)
	if err != nil {
		return nil, mapErr("get member", err)
	}
	return &m, nil
}

func (s *Store) ListMemberships(ctx context.Context, userID string) ([]project.Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.project_id, p.slug, p.name, m.role
		FROM members m
		JOIN projects p ON p.id = m.project_id
		WHERE m.user_id = $1
		ORDER BY p.name`,
		userID,
	)
	if err != nil {
		return nil, mapErr("list memberships", err)
	}
	defer rows.Close()

	var out []project.Membership
	for rows.Next() {
		var ms project.Membership
		if err := rows.Scan(&ms.ProjectID, &ms.ProjectSlug, &ms.ProjectName, &ms.Role); err != nil {
			return nil, mapErr("scan membership", err)
		}
		out = append(out, ms)
	}
	return out, mapErr("list memberships", rows.Err())
}
