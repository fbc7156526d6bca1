package document

import (
	"fmt"
	"time"

	"github.com/quothlabs/quoth/internal/domain"
)

// ProposalStatus is a proposal's lifecycle state.
type ProposalStatus string

// Proposal states. Transitions form a DAG: pending moves to approved or
// rejected exactly once; both are terminal.
const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// CanTransition reports whether s may move to next.
func (s ProposalStatus) CanTransition(next ProposalStatus) bool {
	return s == ProposalPending && (next == ProposalApproved || next == ProposalRejected)
}

// Proposal is a pending edit held for admin approval. A nil DocumentID
// (and nil OriginalContent) marks a new-document proposal.
type Proposal struct {
	ID              string         `json:"id"`
	ProjectID       string         `json:"project_id"`
	DocumentID      *string        `json:"document_id,omitempty"`
	FilePath        string         `json:"file_path"`
	OriginalContent *string        `json:"original_content,omitempty"`
	ProposedContent string         `json:"proposed_content"`
	Reasoning       string         `json:"reasoning"`
	EvidenceSnippet string         `json:"evidence_snippet"`
	Status          ProposalStatus `json:"status"`
	AgentID         string         `json:"agent_id,omitempty"`
	Signature       string         `json:"signature,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// IsNewDocument reports whether the proposal creates a document rather
// than updating one.
func (p *Proposal) IsNewDocument() bool { return p.DocumentID == nil }

// ProposeRequest carries the input for quoth_propose_update.
type ProposeRequest struct {
	DocID           string     `json:"doc_id"`
	NewContent      string     `json:"new_content"`
	EvidenceSnippet string     `json:"evidence_snippet"`
	Reasoning       string     `json:"reasoning"`
	AgentID         string     `json:"agent_id,omitempty"`
	SourceInstance  string     `json:"source_instance,omitempty"`
	Visibility      Visibility `json:"visibility,omitempty"`
}

// Validate enforces the propose_update size limits before any backend work.
func (r *ProposeRequest) Validate() error {
	if r.DocID == "" {
		return fmt.Errorf("doc_id is required: %w", domain.ErrValidation)
	}
	if len(r.DocID) > MaxDocIDLen {
		return fmt.Errorf("doc_id exceeds %d characters: %w", MaxDocIDLen, domain.ErrValidation)
	}
	if r.NewContent == "" {
		return fmt.Errorf("new_content is required: %w", domain.ErrValidation)
	}
	if len(r.NewContent) > MaxContentBytes {
		return fmt.Errorf("new_content exceeds %d bytes: %w", MaxContentBytes, domain.ErrValidation)
	}
	if len(r.EvidenceSnippet) > MaxEvidenceBytes {
		return fmt.Errorf("evidence_snippet exceeds %d bytes: %w", MaxEvidenceBytes, domain.ErrValidation)
	}
	if len(r.Reasoning) > MaxReasoningLen {
		return fmt.Errorf("reasoning exceeds %d characters: %w", MaxReasoningLen, domain.ErrValidation)
	}
	if r.Visibility != "" && r.Visibility != VisibilityProject && r.Visibility != VisibilityShared {
		return fmt.Errorf("visibility must be project or shared: %w", domain.ErrValidation)
	}
	return nil
}
