package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/document"
)

const proposalColumns = `id, project_id, document_id, file_path, original_content, proposed_content, reasoning, evidence_snippet, status, agent_id, signature, created_at`

func scanProposal(row interface{ Scan(...any) error }) (*document.Proposal, error) {
	var p document.Proposal
	err := row.Scan(&p.ID, &p.ProjectID, &p.DocumentID, &p.FilePath,
		&p.OriginalContent, &p.ProposedContent, &p.Reasoning, &p.EvidenceSnippet,
		&p.Status, &p.AgentID, &p.Signature, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProposal(ctx context.Context, p *document.Proposal) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO proposals (project_id, document_id, file_path, original_content, proposed_content, reasoning, evidence_snippet, status, agent_id, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		p.ProjectID, p.DocumentID, p.FilePath, p.OriginalContent, p.ProposedContent,
		p.Reasoning, p.EvidenceSnippet, p.Status, p.AgentID, p.Signature,
	).Scan(&p.ID, &p.CreatedAt)
	return mapErr("create proposal", err)
}

func (s *Store) GetProposal(ctx context.Context, projectID, id string) (*document.Proposal, error) {
	p, err := scanProposal(s.pool.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE project_id = $1 AND id = $2`,
		projectID, id))
	if err != nil {
		return nil, mapErr("get proposal", err)
	}
	return p, nil
}

func (s *Store) ListProposals(ctx context.Context, projectID string, status document.ProposalStatus) ([]document.Proposal, error) {
	var rows pgx.Rows
	var err error
	if status == "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+proposalColumns+` FROM proposals WHERE project_id = $1 ORDER BY created_at DESC`,
			projectID)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+proposalColumns+` FROM proposals WHERE project_id = $1 AND status = $2 ORDER BY created_at DESC`,
			projectID, status)
	}
	if err != nil {
		return nil, mapErr("list proposals", err)
	}
	defer rows.Close()

	var out []document.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, mapErr("scan proposal", err)
		}
		out = append(out, *p)
	}
	return out, mapErr("list proposals", rows.Err())
}

// UpdateProposalStatus performs the guarded state transition. A zero
// rows-affected result means the proposal is missing or was already
// decided; the caller distinguishes via GetProposal.
func (s *Store) UpdateProposalStatus(ctx context.Context, projectID, id string, from, to document.ProposalStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE proposals SET status = $4 WHERE project_id = $1 AND id = $2 AND status = $3`,
		projectID, id, from, to)
	if err != nil {
		return mapErr("update proposal status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("proposal not in %s state: %w", from, domain.ErrConflict)
	}
	return nil
}
