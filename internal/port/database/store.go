// Package database defines the persistence port for the document store,
// vector search, proposals, the agent bus, and the activity log.
package database

import (
	"context"
	"time"

	"github.com/quothlabs/quoth/internal/domain/activity"
	"github.com/quothlabs/quoth/internal/domain/agent"
	"github.com/quothlabs/quoth/internal/domain/document"
	"github.com/quothlabs/quoth/internal/domain/project"
)

// VectorQuery asks for the nearest chunks to an embedded query within
// one project and embedding model.
type VectorQuery struct {
	ProjectID      string
	Embedding      []float32
	EmbeddingModel string
	Threshold      float64
	Count          int
}

// MatchResult is one vector or keyword search candidate.
type MatchResult struct {
	ChunkID    string
	DocumentID string
	Title      string
	FilePath   string
	Content    string
	Metadata   document.ChunkMetadata
	Similarity float64
}

// DocumentSync applies one incremental index transition: upsert the
// document row, delete orphaned chunks, insert new chunks. The store
// wraps the three mutations in a transaction serialized by an advisory
// lock on (project_id, file_path).
type DocumentSync struct {
	Document     *document.Document
	DeleteChunks []string
	InsertChunks []document.Chunk
}

// SyncOutcome reports the post-transaction document state. NoOp is set
// when a concurrent writer already stored the same checksum.
type SyncOutcome struct {
	Document *document.Document
	NoOp     bool
}

// Store is the persistence port. Every query carries explicit project or
// organization predicates; tenant isolation is never implicit.
type Store interface {
	// Organizations, projects, users, memberships.
	CreateOrganization(ctx context.Context, org *project.Organization) error
	GetOrganizationByOwner(ctx context.Context, userID string) (*project.Organization, error)
	CreateProject(ctx context.Context, p *project.Project) error
	GetProject(ctx context.Context, id string) (*project.Project, error)
	GetProjectBySlug(ctx context.Context, slug string) (*project.Project, error)
	GetProjectTier(ctx context.Context, projectID string) (project.Tier, error)
	GetUser(ctx context.Context, id string) (*project.User, error)
	UpsertMember(ctx context.Context, m project.Member) error
	GetMember(ctx context.Context, projectID, userID string) (*project.Member, error)
	ListMemberships(ctx context.Context, userID string) ([]project.Membership, error)

	// Documents and chunks.
	GetDocumentByPath(ctx context.Context, projectID, filePath string) (*document.Document, error)
	GetDocumentByTitle(ctx context.Context, projectID, title string) (*document.Document, error)
	FindDocumentLike(ctx context.Context, projectID, fragment string) (*document.Document, error)
	FindSharedDocument(ctx context.Context, organizationID, fragment string) (*document.Document, error)
	ListDocuments(ctx context.Context, projectID string) ([]document.Document, error)
	ListDocumentPaths(ctx context.Context, projectID string, limit int) ([]string, error)
	UpdateDocumentType(ctx context.Context, documentID string, docType document.DocType) error
	GetChunkHashes(ctx context.Context, documentID string) (map[string]string, error)
	ApplyDocumentSync(ctx context.Context, sync DocumentSync) (*SyncOutcome, error)
	GetChunksByIDs(ctx context.Context, projectID string, chunkIDs []string) ([]MatchResult, error)
	MatchDocuments(ctx context.Context, q VectorQuery) ([]MatchResult, error)
	MatchSharedDocuments(ctx context.Context, organizationID string, q VectorQuery) ([]MatchResult, error)
	KeywordSearchChunks(ctx context.Context, projectID string, tokens []string, limit int) ([]MatchResult, error)
	SubstringSearchChunks(ctx context.Context, projectID, token string, limit int) ([]MatchResult, error)
	CoverageCounts(ctx context.Context, projectID string) (total, withEmbeddings int, byType map[string]int, err error)

	// Proposals.
	CreateProposal(ctx context.Context, p *document.Proposal) error
	GetProposal(ctx context.Context, projectID, id string) (*document.Proposal, error)
	ListProposals(ctx context.Context, projectID string, status document.ProposalStatus) ([]document.Proposal, error)
	UpdateProposalStatus(ctx context.Context, projectID, id string, from, to document.ProposalStatus) error

	// Agents, assignments, messages, tasks.
	CreateAgent(ctx context.Context, a *agent.Agent) error
	GetAgent(ctx context.Context, organizationID, id string) (*agent.Agent, error)
	GetAgentByName(ctx context.Context, organizationID, name string) (*agent.Agent, error)
	UpdateAgent(ctx context.Context, organizationID, id string, upd agent.UpdateRequest) (*agent.Agent, error)
	ListAgents(ctx context.Context, organizationID string) ([]agent.Agent, error)
	TouchAgent(ctx context.Context, organizationID, id string, seenAt time.Time) error
	UpsertAssignment(ctx context.Context, a agent.Assignment) error
	DeleteAssignment(ctx context.Context, agentID, projectID string) error
	ListAssignments(ctx context.Context, agentID string) ([]agent.Assignment, error)
	CreateMessage(ctx context.Context, m *agent.Message) error
	ListInbox(ctx context.Context, organizationID, agentID string, limit int, status agent.MessageStatus) ([]agent.InboxMessage, error)
	MarkMessagesRead(ctx context.Context, organizationID string, messageIDs []string, readAt time.Time) error
	CreateTask(ctx context.Context, t *agent.Task) error
	GetTask(ctx context.Context, organizationID, id string) (*agent.Task, error)
	UpdateTask(ctx context.Context, t *agent.Task) error

	// Activity, drift, coverage.
	InsertActivityEvent(ctx context.Context, e *activity.Event) error
	SearchDayStats(ctx context.Context, projectID string, since time.Time) ([]activity.DayStat, error)
	TopMissedQueries(ctx context.Context, projectID string, since time.Time, k int) ([]activity.MissedQuery, error)
	InsertDriftEvent(ctx context.Context, d *activity.DriftEvent) error
	ListDriftEvents(ctx context.Context, projectID string, unresolvedOnly bool) ([]activity.DriftEvent, error)
	ResolveDriftEvent(ctx context.Context, projectID, id, resolvedBy string) error
	InsertCoverageSnapshot(ctx context.Context, s *activity.CoverageSnapshot) error
}
