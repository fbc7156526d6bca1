package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/quothlabs/quoth/internal/chunk"
	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/document"
	"github.com/quothlabs/quoth/internal/domain/project"
	"github.com/quothlabs/quoth/internal/port/database"
	"github.com/quothlabs/quoth/internal/port/embedder"
)

func freeUsage(store *mockStore) *UsageService {
	if store.getProjectTierFn == nil {
		store.getProjectTierFn = func(context.Context, string) (project.Tier, error) {
			return project.TierFree, nil
		}
	}
	return NewUsageService(store, newMockCache())
}

func proUsage(store *mockStore) *UsageService {
	store.getProjectTierFn = func(context.Context, string) (project.Tier, error) {
		return project.TierPro, nil
	}
	return NewUsageService(store, newMockCache())
}

func candidatesN(n int) []database.MatchResult {
	out := make([]database.MatchResult, n)
	for i := range out {
		out[i] = database.MatchResult{
			ChunkID:    fmt.Sprintf("chunk-%d", i),
			DocumentID: "doc-1",
			Title:      "Guide",
			FilePath:   "architecture/guide.md",
			Content:    fmt.Sprintf("candidate content %d", i),
			Similarity: 0.9 - float64(i)*0.01,
			Metadata:   document.ChunkMetadata{ChunkIndex: i},
		}
	}
	return out
}

func TestDynamicCutoffStopsAfterMinResults(t *testing.T) {
	// 16 candidates above the high bar, then a tail below it: all 16 are
	// kept, and the first sub-0.65 score after that ends the list.
	candidates := candidatesN(20)
	var ranked []embedder.RankedCandidate
	for i := 0; i < 16; i++ {
		ranked = append(ranked, embedder.RankedCandidate{Index: i, Relevance: 0.90 - float64(i)*0.01})
	}
	for i := 16; i < 20; i++ {
		ranked = append(ranked, embedder.RankedCandidate{Index: i, Relevance: 0.60})
	}

	out := dynamicCutoff(candidates, ranked)
	if len(out) != 16 {
		t.Fatalf("results = %d, want 16", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Relevance > out[i-1].Relevance {
			t.Fatalf("results not sorted by relevance at %d", i)
		}
	}
}

func TestDynamicCutoffDropsBelowMinRelevance(t *testing.T) {
	candidates := candidatesN(5)
	ranked := []embedder.RankedCandidate{
		{Index: 0, Relevance: 0.9},
		{Index: 1, Relevance: 0.49},
		{Index: 2, Relevance: 0.7},
	}
	out := dynamicCutoff(candidates, ranked)
	if len(out) != 2 {
		t.Fatalf("results = %d, want 2 (0.49 dropped)", len(out))
	}
}

func TestDynamicCutoffIgnoresInvalidIndices(t *testing.T) {
	candidates := candidatesN(3)
	ranked := []embedder.RankedCandidate{
		{Index: -1, Relevance: 0.9},
		{Index: 99, Relevance: 0.9},
		{Index: 1, Relevance: 0.8},
	}
	out := dynamicCutoff(candidates, ranked)
	if len(out) != 1 || out[0].ChunkID != "chunk-1" {
		t.Fatalf("expected only the valid index to survive, got %+v", out)
	}
}

func TestTrustBands(t *testing.T) {
	tests := []struct {
		relevance float64
		want      string
	}{
		{0.90, TrustHigh},
		{0.81, TrustHigh},
		{0.80, TrustMedium},
		{0.60, TrustMedium},
		{0.59, TrustLow},
	}
	for _, tt := range tests {
		if got := trustBand(tt.relevance); got != tt.want {
			t.Errorf("trustBand(%.2f) = %s, want %s", tt.relevance, got, tt.want)
		}
	}
}

func TestSearchIndexVectorOnlyOnFreeTier(t *testing.T) {
	store := &mockStore{
		matchDocumentsFn: func(_ context.Context, q database.VectorQuery) ([]database.MatchResult, error) {
			if q.Count != 50 {
				t.Errorf("candidate count = %d, want 50", q.Count)
			}
			return candidatesN(20), nil
		},
	}
	usage := freeUsage(store)
	rr := &mockReranker{}
	svc := NewRetrievalService(store, &mockEmbedder{}, rr, usage, testLogger())

	resp, err := svc.SearchIndex(context.Background(), "p1", "org-1", "how does auth work", ScopeProject, false)
	if err != nil {
		t.Fatalf("SearchIndex: %v", err)
	}
	if rr.calls != 0 {
		t.Fatal("free tier must not rerank outside genesis")
	}
	if len(resp.Results) != 10 {
		t.Fatalf("vector-only results = %d, want top 10", len(resp.Results))
	}
	if resp.Results[0].Relevance != resp.Results[0].Similarity {
		t.Fatal("vector-only relevance should equal similarity")
	}
	if resp.TierMessage == "" {
		t.Fatal("free tier response should carry a quota footer")
	}
}

func TestSearchIndexRerankedOnProTier(t *testing.T) {
	store := &mockStore{
		matchDocumentsFn: func(context.Context, database.VectorQuery) ([]database.MatchResult, error) {
			return candidatesN(3), nil
		},
	}
	usage := proUsage(store)
	rr := &mockReranker{ranked: []embedder.RankedCandidate{
		{Index: 2, Relevance: 0.95},
		{Index: 0, Relevance: 0.70},
		{Index: 1, Relevance: 0.40},
	}}
	svc := NewRetrievalService(store, &mockEmbedder{}, rr, usage, testLogger())

	resp, err := svc.SearchIndex(context.Background(), "p1", "org-1", "query text", ScopeProject, false)
	if err != nil {
		t.Fatalf("SearchIndex: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2 (0.40 cut)", len(resp.Results))
	}
	if resp.Results[0].ChunkID != "chunk-2" || resp.Results[0].Trust != TrustHigh {
		t.Fatalf("top result = %+v, want chunk-2 HIGH", resp.Results[0])
	}
}

func TestSearchIndexQuotaExhaustedFallsBackToKeyword(t *testing.T) {
	keywordCalled := false
	store := &mockStore{
		keywordSearchChunksFn: func(_ context.Context, _ string, tokens []string, _ int) ([]database.MatchResult, error) {
			keywordCalled = true
			for _, tok := range tokens {
				if len(tok) <= 2 {
					t.Errorf("short token %q should have been dropped", tok)
				}
			}
			return candidatesN(2), nil
		},
	}
	usage := freeUsage(store)
	for i := 0; i < 5; i++ {
		usage.Increment("p1", LimitSemanticSearch)
	}
	emb := &mockEmbedder{}
	svc := NewRetrievalService(store, emb, nil, usage, testLogger())

	resp, err := svc.SearchIndex(context.Background(), "p1", "org-1", "an auth token flow", ScopeProject, false)
	if err != nil {
		t.Fatalf("SearchIndex: %v", err)
	}
	if !keywordCalled {
		t.Fatal("exhausted quota should route to keyword search")
	}
	if emb.callCount() != 0 {
		t.Fatal("exhausted quota must not embed the query")
	}
	if !resp.UsedFallback {
		t.Fatal("UsedFallback should be set")
	}
	if !strings.Contains(resp.TierMessage, "limit reached") {
		t.Fatalf("tier message = %q, want limit-reached notice", resp.TierMessage)
	}
	for _, r := range resp.Results {
		if r.Relevance != 0.5 {
			t.Fatalf("fallback relevance = %.2f, want 0.5", r.Relevance)
		}
	}
}

func TestSearchIndexDegradesOnEmbedderFailure(t *testing.T) {
	store := &mockStore{
		keywordSearchChunksFn: func(context.Context, string, []string, int) ([]database.MatchResult, error) {
			return candidatesN(1), nil
		},
	}
	usage := proUsage(store)
	emb := &mockEmbedder{err: errors.New("provider down")}
	svc := NewRetrievalService(store, emb, nil, usage, testLogger())

	resp, err := svc.SearchIndex(context.Background(), "p1", "org-1", "resilient query", ScopeProject, false)
	if err != nil {
		t.Fatalf("SearchIndex should degrade, got error: %v", err)
	}
	if !resp.UsedFallback || len(resp.Results) != 1 {
		t.Fatalf("expected one keyword result via fallback, got %+v", resp)
	}
}

func TestSearchIndexRetriesRetryableEmbed(t *testing.T) {
	store := &mockStore{
		matchDocumentsFn: func(context.Context, database.VectorQuery) ([]database.MatchResult, error) {
			return nil, nil
		},
	}
	usage := proUsage(store)
	emb := &retryOnceEmbedder{}
	svc := NewRetrievalService(store, emb, nil, usage, testLogger())

	resp, err := svc.SearchIndex(context.Background(), "p1", "org-1", "transient failure", ScopeProject, false)
	if err != nil {
		t.Fatalf("SearchIndex: %v", err)
	}
	if emb.calls != 2 {
		t.Fatalf("embed calls = %d, want 2 (one retry)", emb.calls)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("results = %d, want 0", len(resp.Results))
	}
}

// retryOnceEmbedder fails the first call with a retryable provider error.
type retryOnceEmbedder struct {
	mockEmbedder
}

func (e *retryOnceEmbedder) EmbedQuery(_ context.Context, _ string, _ chunk.ContentType) ([]float32, string, error) {
	e.calls++
	if e.calls == 1 {
		return nil, "", &embedder.ProviderError{Op: "embed", StatusCode: 503, Retryable: true, Err: errors.New("unavailable")}
	}
	return []float32{0.1}, "embed-text-v3", nil
}

func TestSearchIndexValidation(t *testing.T) {
	svc := NewRetrievalService(&mockStore{}, &mockEmbedder{}, nil, freeUsage(&mockStore{}), testLogger())

	_, err := svc.SearchIndex(context.Background(), "p1", "org-1", "  ", ScopeProject, false)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("blank query: err = %v, want validation", err)
	}
	_, err = svc.SearchIndex(context.Background(), "p1", "org-1", strings.Repeat("q", 1001), ScopeProject, false)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("oversized query: err = %v, want validation", err)
	}
}

func TestSearchSharedScopeMergesAndDedupes(t *testing.T) {
	own := candidatesN(3)
	shared := []database.MatchResult{
		own[0], // duplicate chunk id
		{ChunkID: "shared-1", DocumentID: "doc-9", Similarity: 0.99, Content: "shared doc"},
	}
	store := &mockStore{
		matchDocumentsFn: func(context.Context, database.VectorQuery) ([]database.MatchResult, error) {
			return own, nil
		},
		matchSharedDocumentsFn: func(context.Context, string, database.VectorQuery) ([]database.MatchResult, error) {
			return shared, nil
		},
	}
	usage := proUsage(store)
	svc := NewRetrievalService(store, &mockEmbedder{}, nil, usage, testLogger())

	resp, err := svc.SearchIndex(context.Background(), "p1", "org-1", "merged search", ScopeShared, false)
	if err != nil {
		t.Fatalf("SearchIndex: %v", err)
	}
	if len(resp.Results) != 4 {
		t.Fatalf("results = %d, want 4 (3 own + 1 shared, dup removed)", len(resp.Results))
	}
	if resp.Results[0].ChunkID != "shared-1" {
		t.Fatalf("top result = %s, want shared-1 (highest similarity)", resp.Results[0].ChunkID)
	}
}

func TestReadChunksOrdersAndValidates(t *testing.T) {
	store := &mockStore{
		getChunksByIDsFn: func(context.Context, string, []string) ([]database.MatchResult, error) {
			return []database.MatchResult{
				{ChunkID: "c", FilePath: "b.md", Metadata: document.ChunkMetadata{ChunkIndex: 0}},
				{ChunkID: "a", FilePath: "a.md", Metadata: document.ChunkMetadata{ChunkIndex: 2}},
				{ChunkID: "b", FilePath: "a.md", Metadata: document.ChunkMetadata{ChunkIndex: 1}},
			}, nil
		},
	}
	svc := NewRetrievalService(store, &mockEmbedder{}, nil, freeUsage(&mockStore{}), testLogger())

	out, err := svc.ReadChunks(context.Background(), "p1", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("ReadChunks: %v", err)
	}
	got := []string{out[0].ChunkID, out[1].ChunkID, out[2].ChunkID}
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}

	if _, err := svc.ReadChunks(context.Background(), "p1", nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty ids: err = %v, want validation", err)
	}
	ids := make([]string, 21)
	if _, err := svc.ReadChunks(context.Background(), "p1", ids); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("21 ids: err = %v, want validation", err)
	}
}

func TestReadChunksEmptyIsNotFound(t *testing.T) {
	svc := NewRetrievalService(&mockStore{}, &mockEmbedder{}, nil, freeUsage(&mockStore{}), testLogger())
	_, err := svc.ReadChunks(context.Background(), "p1", []string{"missing"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestReadDocumentResolutionChain(t *testing.T) {
	doc := &document.Document{ID: "d1", FilePath: "architecture/auth.md", Title: "Auth"}
	store := &mockStore{
		findDocumentLikeFn: func(_ context.Context, _ string, fragment string) (*document.Document, error) {
			if fragment == "auth" {
				return doc, nil
			}
			return nil, domain.ErrNotFound
		},
		listDocumentPathsFn: func(context.Context, string, int) ([]string, error) {
			return []string{"architecture/auth.md", "patterns/testing.md"}, nil
		},
	}
	svc := NewRetrievalService(store, &mockEmbedder{}, nil, freeUsage(&mockStore{}), testLogger())

	got, _, err := svc.ReadDocument(context.Background(), "p1", "org-1", "auth", ScopeProject)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if got.ID != "d1" {
		t.Fatalf("resolved %s, want d1", got.ID)
	}

	_, suggestions, err := svc.ReadDocument(context.Background(), "p1", "org-1", "nonexistent", ScopeProject)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("miss: err = %v, want not found", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("suggestions = %d, want 2", len(suggestions))
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := sanitizeToken("auth&(flow)!"); got != "authflow" {
		t.Fatalf("sanitizeToken = %q, want authflow", got)
	}
}
