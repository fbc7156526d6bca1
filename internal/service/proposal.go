package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/document"
	"github.com/quothlabs/quoth/internal/domain/project"
	"github.com/quothlabs/quoth/internal/port/database"
)

// ProposeOutcome reports how a propose_update call was resolved.
type ProposeOutcome struct {
	// Applied is set when the project does not require approval and the
	// content was synced directly.
	Applied *SyncResult
	// Proposal is set when the edit was queued for admin review.
	Proposal *document.Proposal
	Created  bool // direct-apply created a new document
}

// ProposalService decides direct-apply vs. proposal and drives the
// pending to approved/rejected state machine.
type ProposalService struct {
	store     database.Store
	indexer   *IndexerService
	logger    *slog.Logger
	busSecret []byte
}

// NewProposalService creates the proposal engine. busSecret signs
// agent-attributed proposals.
func NewProposalService(store database.Store, indexer *IndexerService, busSecret string, logger *slog.Logger) *ProposalService {
	return &ProposalService{
		store:     store,
		indexer:   indexer,
		logger:    logger,
		busSecret: []byte(busSecret),
	}
}

// Propose handles quoth_propose_update. Viewers are rejected before any
// backend work; the four-way decision follows from whether the document
// exists and whether the project requires approval.
func (s *ProposalService) Propose(ctx context.Context, projectID string, role project.Role, req document.ProposeRequest) (*ProposeOutcome, error) {
	if !role.CanPropose() {
		return nil, fmt.Errorf("role %s may not propose document updates: %w", role, domain.ErrForbidden)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	existing := s.resolveDocument(ctx, projectID, req.DocID)

	if !p.RequireApproval {
		result, err := s.indexer.Sync(ctx, SyncRequest{
			ProjectID:  projectID,
			FilePath:   filePathFor(existing, req.DocID),
			Title:      titleFor(existing, req.DocID),
			Content:    req.NewContent,
			AgentID:    req.AgentID,
			Visibility: req.Visibility,
		})
		if err != nil {
			return nil, fmt.Errorf("direct apply: %w", err)
		}
		return &ProposeOutcome{Applied: result, Created: existing == nil}, nil
	}

	prop := &document.Proposal{
		ProjectID:       projectID,
		FilePath:        filePathFor(existing, req.DocID),
		ProposedContent: req.NewContent,
		Reasoning:       req.Reasoning,
		EvidenceSnippet: req.EvidenceSnippet,
		Status:          document.ProposalPending,
		AgentID:         req.AgentID,
	}
	if existing != nil {
		prop.DocumentID = &existing.ID
		prop.OriginalContent = &existing.Content
	} else {
		prop.Reasoning = "[NEW DOCUMENT] " + prop.Reasoning
	}
	if req.AgentID != "" {
		prop.Signature = s.sign(req.AgentID, req.NewContent)
	}

	if err := s.store.CreateProposal(ctx, prop); err != nil {
		return nil, fmt.Errorf("create proposal: %w", err)
	}
	return &ProposeOutcome{Proposal: prop}, nil
}

// resolveDocument looks up the target by path, then title, then
// substring. A miss means a new-document proposal.
func (s *ProposalService) resolveDocument(ctx context.Context, projectID, docID string) *document.Document {
	if doc, err := s.store.GetDocumentByPath(ctx, projectID, docID); err == nil {
		return doc
	}
	if doc, err := s.store.GetDocumentByTitle(ctx, projectID, docID); err == nil {
		return doc
	}
	if doc, err := s.store.FindDocumentLike(ctx, projectID, docID); err == nil {
		return doc
	}
	return nil
}

// List returns proposals filtered by status; empty status means all.
func (s *ProposalService) List(ctx context.Context, projectID string, status document.ProposalStatus) ([]document.Proposal, error) {
	if status != "" && status != document.ProposalPending &&
		status != document.ProposalApproved && status != document.ProposalRejected {
		return nil, fmt.Errorf("unknown proposal status %q: %w", status, domain.ErrValidation)
	}
	return s.store.ListProposals(ctx, projectID, status)
}

// Approve moves a pending proposal to approved and applies its content
// through the indexer. Admin only. An agent-signed proposal is verified
// against the bus secret before apply.
func (s *ProposalService) Approve(ctx context.Context, projectID string, role project.Role, proposalID string) (*SyncResult, error) {
	if !role.CanApprove() {
		return nil, fmt.Errorf("role %s may not approve proposals: %w", role, domain.ErrForbidden)
	}

	prop, err := s.store.GetProposal(ctx, projectID, proposalID)
	if err != nil {
		return nil, fmt.Errorf("load proposal: %w", err)
	}
	if !prop.Status.CanTransition(document.ProposalApproved) {
		return nil, fmt.Errorf("proposal is already %s: %w", prop.Status, domain.ErrConflict)
	}
	if prop.AgentID != "" && prop.Signature != "" {
		if s.sign(prop.AgentID, prop.ProposedContent) != prop.Signature {
			return nil, fmt.Errorf("proposal signature mismatch: %w", domain.ErrValidation)
		}
	}

	if err := s.store.UpdateProposalStatus(ctx, projectID, proposalID, document.ProposalPending, document.ProposalApproved); err != nil {
		return nil, err
	}

	result, err := s.indexer.Sync(ctx, SyncRequest{
		ProjectID: projectID,
		FilePath:  prop.FilePath,
		Title:     titleFromPath(prop.FilePath),
		Content:   prop.ProposedContent,
		AgentID:   prop.AgentID,
	})
	if err != nil {
		// The approval is recorded; the apply can be retried by re-syncing.
		s.logger.Error("approved proposal failed to apply", "proposal_id", proposalID, "error", err)
		return nil, fmt.Errorf("apply approved proposal: %w", err)
	}
	return result, nil
}

// Reject moves a pending proposal to rejected. Terminal; no reopening.
func (s *ProposalService) Reject(ctx context.Context, projectID string, role project.Role, proposalID string) error {
	if !role.CanApprove() {
		return fmt.Errorf("role %s may not reject proposals: %w", role, domain.ErrForbidden)
	}
	prop, err := s.store.GetProposal(ctx, projectID, proposalID)
	if err != nil {
		return fmt.Errorf("load proposal: %w", err)
	}
	if !prop.Status.CanTransition(document.ProposalRejected) {
		return fmt.Errorf("proposal is already %s: %w", prop.Status, domain.ErrConflict)
	}
	return s.store.UpdateProposalStatus(ctx, projectID, proposalID, document.ProposalPending, document.ProposalRejected)
}

// sign computes the truncated envelope signature for an
// agent-attributed proposal.
func (s *ProposalService) sign(agentID, content string) string {
	mac := hmac.New(sha256.New, s.busSecret)
	mac.Write([]byte(agentID))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

func filePathFor(existing *document.Document, docID string) string {
	if existing != nil {
		return existing.FilePath
	}
	return docID
}

func titleFor(existing *document.Document, docID string) string {
	if existing != nil {
		return existing.Title
	}
	return titleFromPath(docID)
}

// titleFromPath derives a readable title from a file path.
func titleFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	if strings.TrimSpace(base) == "" {
		return path
	}
	return base
}
