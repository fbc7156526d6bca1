package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/quothlabs/quoth/internal/chunk"
	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/activity"
	"github.com/quothlabs/quoth/internal/domain/agent"
	"github.com/quothlabs/quoth/internal/domain/document"
	"github.com/quothlabs/quoth/internal/domain/project"
	"github.com/quothlabs/quoth/internal/port/database"
	"github.com/quothlabs/quoth/internal/port/embedder"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStore implements database.Store with overridable function fields.
// Unset fields return domain.ErrNotFound or succeed with zero values,
// whichever is the less surprising default.
type mockStore struct {
	createOrganizationFn    func(ctx context.Context, org *project.Organization) error
	getOrganizationByOwner  func(ctx context.Context, userID string) (*project.Organization, error)
	createProjectFn         func(ctx context.Context, p *project.Project) error
	getProjectFn            func(ctx context.Context, id string) (*project.Project, error)
	getProjectBySlugFn      func(ctx context.Context, slug string) (*project.Project, error)
	getProjectTierFn        func(ctx context.Context, projectID string) (project.Tier, error)
	getUserFn               func(ctx context.Context, id string) (*project.User, error)
	upsertMemberFn          func(ctx context.Context, m project.Member) error
	getMemberFn             func(ctx context.Context, projectID, userID string) (*project.Member, error)
	listMembershipsFn       func(ctx context.Context, userID string) ([]project.Membership, error)
	getDocumentByPathFn     func(ctx context.Context, projectID, filePath string) (*document.Document, error)
	getDocumentByTitleFn    func(ctx context.Context, projectID, title string) (*document.Document, error)
	findDocumentLikeFn      func(ctx context.Context, projectID, fragment string) (*document.Document, error)
	findSharedDocumentFn    func(ctx context.Context, organizationID, fragment string) (*document.Document, error)
	listDocumentsFn         func(ctx context.Context, projectID string) ([]document.Document, error)
	listDocumentPathsFn     func(ctx context.Context, projectID string, limit int) ([]string, error)
	updateDocumentTypeFn    func(ctx context.Context, documentID string, docType document.DocType) error
	getChunkHashesFn        func(ctx context.Context, documentID string) (map[string]string, error)
	applyDocumentSyncFn     func(ctx context.Context, sync database.DocumentSync) (*database.SyncOutcome, error)
	getChunksByIDsFn        func(ctx context.Context, projectID string, chunkIDs []string) ([]database.MatchResult, error)
	matchDocumentsFn        func(ctx context.Context, q database.VectorQuery) ([]database.MatchResult, error)
	matchSharedDocumentsFn  func(ctx context.Context, organizationID string, q database.VectorQuery) ([]database.MatchResult, error)
	keywordSearchChunksFn   func(ctx context.Context, projectID string, tokens []string, limit int) ([]database.MatchResult, error)
	substringSearchChunksFn func(ctx context.Context, projectID, token string, limit int) ([]database.MatchResult, error)
	coverageCountsFn        func(ctx context.Context, projectID string) (int, int, map[string]int, error)
	createProposalFn        func(ctx context.Context, p *document.Proposal) error
	getProposalFn           func(ctx context.Context, projectID, id string) (*document.Proposal, error)
	listProposalsFn         func(ctx context.Context, projectID string, status document.ProposalStatus) ([]document.Proposal, error)
	updateProposalStatusFn  func(ctx context.Context, projectID, id string, from, to document.ProposalStatus) error
	createAgentFn           func(ctx context.Context, a *agent.Agent) error
	getAgentFn              func(ctx context.Context, organizationID, id string) (*agent.Agent, error)
	getAgentByNameFn        func(ctx context.Context, organizationID, name string) (*agent.Agent, error)
	updateAgentFn           func(ctx context.Context, organizationID, id string, upd agent.UpdateRequest) (*agent.Agent, error)
	listAgentsFn            func(ctx context.Context, organizationID string) ([]agent.Agent, error)
	touchAgentFn            func(ctx context.Context, organizationID, id string, seenAt time.Time) error
	upsertAssignmentFn      func(ctx context.Context, a agent.Assignment) error
	deleteAssignmentFn      func(ctx context.Context, agentID, projectID string) error
	listAssignmentsFn       func(ctx context.Context, agentID string) ([]agent.Assignment, error)
	createMessageFn         func(ctx context.Context, m *agent.Message) error
	listInboxFn             func(ctx context.Context, organizationID, agentID string, limit int, status agent.MessageStatus) ([]agent.InboxMessage, error)
	markMessagesReadFn      func(ctx context.Context, organizationID string, messageIDs []string, readAt time.Time) error
	createTaskFn            func(ctx context.Context, t *agent.Task) error
	getTaskFn               func(ctx context.Context, organizationID, id string) (*agent.Task, error)
	updateTaskFn            func(ctx context.Context, t *agent.Task) error
	insertActivityEventFn   func(ctx context.Context, e *activity.Event) error
	searchDayStatsFn        func(ctx context.Context, projectID string, since time.Time) ([]activity.DayStat, error)
	topMissedQueriesFn      func(ctx context.Context, projectID string, since time.Time, k int) ([]activity.MissedQuery, error)
	insertDriftEventFn      func(ctx context.Context, d *activity.DriftEvent) error
	listDriftEventsFn       func(ctx context.Context, projectID string, unresolvedOnly bool) ([]activity.DriftEvent, error)
	resolveDriftEventFn     func(ctx context.Context, projectID, id, resolvedBy string) error
	insertCoverageSnapshot  func(ctx context.Context, s *activity.CoverageSnapshot) error
}

var _ database.Store = (*mockStore)(nil)

func (m *mockStore) CreateOrganization(ctx context.Context, org *project.Organization) error {
	if m.createOrganizationFn != nil {
		return m.createOrganizationFn(ctx, org)
	}
	org.ID = "org-1"
	return nil
}

func (m *mockStore) GetOrganizationByOwner(ctx context.Context, userID string) (*project.Organization, error) {
	if m.getOrganizationByOwner != nil {
		return m.getOrganizationByOwner(ctx, userID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) CreateProject(ctx context.Context, p *project.Project) error {
	if m.createProjectFn != nil {
		return m.createProjectFn(ctx, p)
	}
	p.ID = "proj-1"
	return nil
}

func (m *mockStore) GetProject(ctx context.Context, id string) (*project.Project, error) {
	if m.getProjectFn != nil {
		return m.getProjectFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetProjectBySlug(ctx context.Context, slug string) (*project.Project, error) {
	if m.getProjectBySlugFn != nil {
		return m.getProjectBySlugFn(ctx, slug)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetProjectTier(ctx context.Context, projectID string) (project.Tier, error) {
	if m.getProjectTierFn != nil {
		return m.getProjectTierFn(ctx, projectID)
	}
	return project.TierFree, nil
}

func (m *mockStore) GetUser(ctx context.Context, id string) (*project.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) UpsertMember(ctx context.Context, mem project.Member) error {
	if m.upsertMemberFn != nil {
		return m.upsertMemberFn(ctx, mem)
	}
	return nil
}

func (m *mockStore) GetMember(ctx context.Context, projectID, userID string) (*project.Member, error) {
	if m.getMemberFn != nil {
		return m.getMemberFn(ctx, projectID, userID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListMemberships(ctx context.Context, userID string) ([]project.Membership, error) {
	if m.listMembershipsFn != nil {
		return m.listMembershipsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockStore) GetDocumentByPath(ctx context.Context, projectID, filePath string) (*document.Document, error) {
	if m.getDocumentByPathFn != nil {
		return m.getDocumentByPathFn(ctx, projectID, filePath)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetDocumentByTitle(ctx context.Context, projectID, title string) (*document.Document, error) {
	if m.getDocumentByTitleFn != nil {
		return m.getDocumentByTitleFn(ctx, projectID, title)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) FindDocumentLike(ctx context.Context, projectID, fragment string) (*document.Document, error) {
	if m.findDocumentLikeFn != nil {
		return m.findDocumentLikeFn(ctx, projectID, fragment)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) FindSharedDocument(ctx context.Context, organizationID, fragment string) (*document.Document, error) {
	if m.findSharedDocumentFn != nil {
		return m.findSharedDocumentFn(ctx, organizationID, fragment)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListDocuments(ctx context.Context, projectID string) ([]document.Document, error) {
	if m.listDocumentsFn != nil {
		return m.listDocumentsFn(ctx, projectID)
	}
	return nil, nil
}

func (m *mockStore) ListDocumentPaths(ctx context.Context, projectID string, limit int) ([]string, error) {
	if m.listDocumentPathsFn != nil {
		return m.listDocumentPathsFn(ctx, projectID, limit)
	}
	return nil, nil
}

func (m *mockStore) UpdateDocumentType(ctx context.Context, documentID string, docType document.DocType) error {
	if m.updateDocumentTypeFn != nil {
		return m.updateDocumentTypeFn(ctx, documentID, docType)
	}
	return nil
}

func (m *mockStore) GetChunkHashes(ctx context.Context, documentID string) (map[string]string, error) {
	if m.getChunkHashesFn != nil {
		return m.getChunkHashesFn(ctx, documentID)
	}
	return map[string]string{}, nil
}

func (m *mockStore) ApplyDocumentSync(ctx context.Context, sync database.DocumentSync) (*database.SyncOutcome, error) {
	if m.applyDocumentSyncFn != nil {
		return m.applyDocumentSyncFn(ctx, sync)
	}
	return &database.SyncOutcome{Document: sync.Document}, nil
}

func (m *mockStore) GetChunksByIDs(ctx context.Context, projectID string, chunkIDs []string) ([]database.MatchResult, error) {
	if m.getChunksByIDsFn != nil {
		return m.getChunksByIDsFn(ctx, projectID, chunkIDs)
	}
	return nil, nil
}

func (m *mockStore) MatchDocuments(ctx context.Context, q database.VectorQuery) ([]database.MatchResult, error) {
	if m.matchDocumentsFn != nil {
		return m.matchDocumentsFn(ctx, q)
	}
	return nil, nil
}

func (m *mockStore) MatchSharedDocuments(ctx context.Context, organizationID string, q database.VectorQuery) ([]database.MatchResult, error) {
	if m.matchSharedDocumentsFn != nil {
		return m.matchSharedDocumentsFn(ctx, organizationID, q)
	}
	return nil, nil
}

func (m *mockStore) KeywordSearchChunks(ctx context.Context, projectID string, tokens []string, limit int) ([]database.MatchResult, error) {
	if m.keywordSearchChunksFn != nil {
		return m.keywordSearchChunksFn(ctx, projectID, tokens, limit)
	}
	return nil, nil
}

func (m *mockStore) SubstringSearchChunks(ctx context.Context, projectID, token string, limit int) ([]database.MatchResult, error) {
	if m.substringSearchChunksFn != nil {
		return m.substringSearchChunksFn(ctx, projectID, token, limit)
	}
	return nil, nil
}

func (m *mockStore) CoverageCounts(ctx context.Context, projectID string) (int, int, map[string]int, error) {
	if m.coverageCountsFn != nil {
		return m.coverageCountsFn(ctx, projectID)
	}
	return 0, 0, map[string]int{}, nil
}

func (m *mockStore) CreateProposal(ctx context.Context, p *document.Proposal) error {
	if m.createProposalFn != nil {
		return m.createProposalFn(ctx, p)
	}
	p.ID = "prop-1"
	return nil
}

func (m *mockStore) GetProposal(ctx context.Context, projectID, id string) (*document.Proposal, error) {
	if m.getProposalFn != nil {
		return m.getProposalFn(ctx, projectID, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListProposals(ctx context.Context, projectID string, status document.ProposalStatus) ([]document.Proposal, error) {
	if m.listProposalsFn != nil {
		return m.listProposalsFn(ctx, projectID, status)
	}
	return nil, nil
}

func (m *mockStore) UpdateProposalStatus(ctx context.Context, projectID, id string, from, to document.ProposalStatus) error {
	if m.updateProposalStatusFn != nil {
		return m.updateProposalStatusFn(ctx, projectID, id, from, to)
	}
	return nil
}

func (m *mockStore) CreateAgent(ctx context.Context, a *agent.Agent) error {
	if m.createAgentFn != nil {
		return m.createAgentFn(ctx, a)
	}
	a.ID = "agent-1"
	return nil
}

func (m *mockStore) GetAgent(ctx context.Context, organizationID, id string) (*agent.Agent, error) {
	if m.getAgentFn != nil {
		return m.getAgentFn(ctx, organizationID, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetAgentByName(ctx context.Context, organizationID, name string) (*agent.Agent, error) {
	if m.getAgentByNameFn != nil {
		return m.getAgentByNameFn(ctx, organizationID, name)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) UpdateAgent(ctx context.Context, organizationID, id string, upd agent.UpdateRequest) (*agent.Agent, error) {
	if m.updateAgentFn != nil {
		return m.updateAgentFn(ctx, organizationID, id, upd)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListAgents(ctx context.Context, organizationID string) ([]agent.Agent, error) {
	if m.listAgentsFn != nil {
		return m.listAgentsFn(ctx, organizationID)
	}
	return nil, nil
}

func (m *mockStore) TouchAgent(ctx context.Context, organizationID, id string, seenAt time.Time) error {
	if m.touchAgentFn != nil {
		return m.touchAgentFn(ctx, organizationID, id, seenAt)
	}
	return nil
}

func (m *mockStore) UpsertAssignment(ctx context.Context, a agent.Assignment) error {
	if m.upsertAssignmentFn != nil {
		return m.upsertAssignmentFn(ctx, a)
	}
	return nil
}

func (m *mockStore) DeleteAssignment(ctx context.Context, agentID, projectID string) error {
	if m.deleteAssignmentFn != nil {
		return m.deleteAssignmentFn(ctx, agentID, projectID)
	}
	return nil
}

func (m *mockStore) ListAssignments(ctx context.Context, agentID string) ([]agent.Assignment, error) {
	if m.listAssignmentsFn != nil {
		return m.listAssignmentsFn(ctx, agentID)
	}
	return nil, nil
}

func (m *mockStore) CreateMessage(ctx context.Context, msg *agent.Message) error {
	if m.createMessageFn != nil {
		return m.createMessageFn(ctx, msg)
	}
	msg.ID = "msg-1"
	return nil
}

func (m *mockStore) ListInbox(ctx context.Context, organizationID, agentID string, limit int, status agent.MessageStatus) ([]agent.InboxMessage, error) {
	if m.listInboxFn != nil {
		return m.listInboxFn(ctx, organizationID, agentID, limit, status)
	}
	return nil, nil
}

func (m *mockStore) MarkMessagesRead(ctx context.Context, organizationID string, messageIDs []string, readAt time.Time) error {
	if m.markMessagesReadFn != nil {
		return m.markMessagesReadFn(ctx, organizationID, messageIDs, readAt)
	}
	return nil
}

func (m *mockStore) CreateTask(ctx context.Context, t *agent.Task) error {
	if m.createTaskFn != nil {
		return m.createTaskFn(ctx, t)
	}
	t.ID = "task-1"
	return nil
}

func (m *mockStore) GetTask(ctx context.Context, organizationID, id string) (*agent.Task, error) {
	if m.getTaskFn != nil {
		return m.getTaskFn(ctx, organizationID, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) UpdateTask(ctx context.Context, t *agent.Task) error {
	if m.updateTaskFn != nil {
		return m.updateTaskFn(ctx, t)
	}
	return nil
}

func (m *mockStore) InsertActivityEvent(ctx context.Context, e *activity.Event) error {
	if m.insertActivityEventFn != nil {
		return m.insertActivityEventFn(ctx, e)
	}
	return nil
}

func (m *mockStore) SearchDayStats(ctx context.Context, projectID string, since time.Time) ([]activity.DayStat, error) {
	if m.searchDayStatsFn != nil {
		return m.searchDayStatsFn(ctx, projectID, since)
	}
	return nil, nil
}

func (m *mockStore) TopMissedQueries(ctx context.Context, projectID string, since time.Time, k int) ([]activity.MissedQuery, error) {
	if m.topMissedQueriesFn != nil {
		return m.topMissedQueriesFn(ctx, projectID, since, k)
	}
	return nil, nil
}

func (m *mockStore) InsertDriftEvent(ctx context.Context, d *activity.DriftEvent) error {
	if m.insertDriftEventFn != nil {
		return m.insertDriftEventFn(ctx, d)
	}
	return nil
}

func (m *mockStore) ListDriftEvents(ctx context.Context, projectID string, unresolvedOnly bool) ([]activity.DriftEvent, error) {
	if m.listDriftEventsFn != nil {
		return m.listDriftEventsFn(ctx, projectID, unresolvedOnly)
	}
	return nil, nil
}

func (m *mockStore) ResolveDriftEvent(ctx context.Context, projectID, id, resolvedBy string) error {
	if m.resolveDriftEventFn != nil {
		return m.resolveDriftEventFn(ctx, projectID, id, resolvedBy)
	}
	return nil
}

func (m *mockStore) InsertCoverageSnapshot(ctx context.Context, s *activity.CoverageSnapshot) error {
	if m.insertCoverageSnapshot != nil {
		return m.insertCoverageSnapshot(ctx, s)
	}
	return nil
}

// mockEmbedder returns a fixed vector, counting calls.
type mockEmbedder struct {
	mu     sync.Mutex
	calls  int
	vector []float32
	model  string
	err    error
}

func (m *mockEmbedder) embed() ([]float32, string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, "", m.err
	}
	vector := m.vector
	if vector == nil {
		vector = []float32{0.1, 0.2, 0.3}
	}
	model := m.model
	if model == "" {
		model = "embed-text-v3"
	}
	return vector, model, nil
}

func (m *mockEmbedder) EmbedPassage(context.Context, string, chunk.ContentType) ([]float32, string, error) {
	return m.embed()
}

func (m *mockEmbedder) EmbedQuery(context.Context, string, chunk.ContentType) ([]float32, string, error) {
	return m.embed()
}

func (m *mockEmbedder) Dimensions() int { return 3 }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockReranker returns canned rankings.
type mockReranker struct {
	ranked []embedder.RankedCandidate
	err    error
	calls  int
}

func (m *mockReranker) Rerank(context.Context, string, []string, int) ([]embedder.RankedCandidate, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.ranked, nil
}

// mockCache is a map-backed cache.Cache ignoring TTLs.
type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *mockCache) Close() {}
