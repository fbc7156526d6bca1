package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	qotel "github.com/quothlabs/quoth/internal/adapter/otel"
	"github.com/quothlabs/quoth/internal/chunk"
	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/document"
	"github.com/quothlabs/quoth/internal/port/database"
	"github.com/quothlabs/quoth/internal/port/embedder"
)

// Retrieval pipeline tuning. The cutoff rule: drop everything below
// minRelevance, then after minResults are accumulated stop at the first
// score under highRelevance.
const (
	vectorCandidates  = 50
	similarityFloor   = 0.1
	rerankMax         = 30
	vectorOnlyTop     = 10
	minRelevance      = 0.50
	highRelevance     = 0.65
	minResults        = 15
	fallbackRelevance = 0.5

	vectorTimeout   = 5 * time.Second
	fulltextTimeout = 3 * time.Second
)

// Trust bands attached to search results.
const (
	TrustHigh   = "HIGH"
	TrustMedium = "MEDIUM"
	TrustLow    = "LOW"
)

// SearchScope widens a search beyond the active project.
type SearchScope string

// Search scopes. shared and org are synonyms: both add the
// organization's shared documents.
const (
	ScopeProject SearchScope = "project"
	ScopeShared  SearchScope = "shared"
	ScopeOrg     SearchScope = "org"
)

// SearchResult is one retrieved chunk with its relevance and trust band.
type SearchResult struct {
	ChunkID    string
	DocumentID string
	Title      string
	FilePath   string
	Content    string
	Metadata   document.ChunkMetadata
	Relevance  float64
	Similarity float64
	Trust      string
}

// SearchResponse is the full pipeline output.
type SearchResponse struct {
	Results      []SearchResult
	Usage        Usage
	UsedFallback bool
	TierMessage  string
}

// RetrievalService runs the search pipeline: admission, embed, vector
// ANN, optional rerank, dynamic cutoff, keyword fallback.
type RetrievalService struct {
	store    database.Store
	embedder embedder.Embedder
	reranker embedder.Reranker
	usage    *UsageService
	logger   *slog.Logger
}

// NewRetrievalService creates the pipeline. reranker may be nil, which
// disables the rerank stage globally.
func NewRetrievalService(store database.Store, emb embedder.Embedder, rr embedder.Reranker, usage *UsageService, logger *slog.Logger) *RetrievalService {
	return &RetrievalService{
		store:    store,
		embedder: emb,
		reranker: rr,
		usage:    usage,
		logger:   logger,
	}
}

// SearchIndex is the main document search. Tier-gated: when the daily
// semantic quota is exhausted the keyword fallback serves the request
// with a tier message instead of an error.
func (s *RetrievalService) SearchIndex(ctx context.Context, projectID, organizationID, query string, scope SearchScope, isGenesis bool) (*SearchResponse, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}

	usage := s.usage.Check(ctx, projectID, LimitSemanticSearch)
	if !usage.Allowed {
		results, err := s.keywordFallback(ctx, projectID, query)
		if err != nil {
			return nil, err
		}
		return &SearchResponse{
			Results:      results,
			Usage:        usage,
			UsedFallback: true,
			TierMessage:  "Daily semantic search limit reached; served keyword results instead. " + FormatFooter(usage),
		}, nil
	}
	s.usage.Increment(projectID, LimitSemanticSearch)

	results, err := s.semanticSearch(ctx, projectID, organizationID, query, scope, isGenesis)
	if err != nil {
		// Embedding or vector backend down: degrade to keyword for this
		// request rather than failing it.
		s.logger.Warn("semantic search degraded to keyword", "error", err)
		fallback, ferr := s.keywordFallback(ctx, projectID, query)
		if ferr != nil {
			return nil, err
		}
		return &SearchResponse{Results: fallback, Usage: usage, UsedFallback: true}, nil
	}

	return &SearchResponse{
		Results:     results,
		Usage:       usage,
		TierMessage: FormatFooter(usage),
	}, nil
}

// SearchChunks runs the same pipeline but returns chunk-granular
// references with short previews. No keyword fallback.
func (s *RetrievalService) SearchChunks(ctx context.Context, projectID, organizationID, query string, isGenesis bool) ([]SearchResult, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	results, err := s.semanticSearch(ctx, projectID, organizationID, query, ScopeProject, isGenesis)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Content = preview(results[i].Content, 300)
	}
	return results, nil
}

// semanticSearch is the embed, vector, rerank, cutoff core.
func (s *RetrievalService) semanticSearch(ctx context.Context, projectID, organizationID, query string, scope SearchScope, isGenesis bool) ([]SearchResult, error) {
	ctx, span := qotel.StartSearchSpan(ctx, projectID, string(scope))
	defer span.End()

	contentType := chunk.Classify(query)

	vector, model, err := s.embedder.EmbedQuery(ctx, query, contentType)
	if err != nil && embedder.IsRetryable(err) {
		vector, model, err = s.embedder.EmbedQuery(ctx, query, contentType)
	}
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, vectorTimeout)
	defer cancel()

	q := database.VectorQuery{
		ProjectID:      projectID,
		Embedding:      vector,
		EmbeddingModel: model,
		Threshold:      similarityFloor,
		Count:          vectorCandidates,
	}
	candidates, err := s.store.MatchDocuments(vctx, q)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if scope == ScopeShared || scope == ScopeOrg {
		shared, err := s.store.MatchSharedDocuments(vctx, organizationID, q)
		if err != nil {
			s.logger.Warn("shared-document search failed", "error", err)
		} else {
			candidates = mergeCandidates(candidates, shared)
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	if !s.usage.ShouldRerank(ctx, projectID, isGenesis) || s.reranker == nil {
		return vectorOnly(candidates), nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}
	ranked, err := s.reranker.Rerank(ctx, query, texts, rerankMax)
	if err != nil && embedder.IsRetryable(err) {
		ranked, err = s.reranker.Rerank(ctx, query, texts, rerankMax)
	}
	if err != nil {
		s.logger.Warn("rerank degraded to vector order", "error", err)
		return vectorOnly(candidates), nil
	}

	return dynamicCutoff(candidates, ranked), nil
}

// vectorOnly takes the top vector candidates directly when the rerank
// stage is disabled or down.
func vectorOnly(candidates []database.MatchResult) []SearchResult {
	n := len(candidates)
	if n > vectorOnlyTop {
		n = vectorOnlyTop
	}
	out := make([]SearchResult, 0, n)
	for _, c := range candidates[:n] {
		out = append(out, toResult(c, c.Similarity))
	}
	return out
}

// dynamicCutoff orders reranked results and applies the stopping rule:
// drop scores below minRelevance; once minResults are accumulated, stop
// at the first score under highRelevance. Ties break on vector
// similarity descending, then chunk index ascending.
func dynamicCutoff(candidates []database.MatchResult, ranked []embedder.RankedCandidate) []SearchResult {
	valid := ranked[:0]
	for _, r := range ranked {
		if r.Index >= 0 && r.Index < len(candidates) {
			valid = append(valid, r)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Relevance != valid[j].Relevance {
			return valid[i].Relevance > valid[j].Relevance
		}
		ci, cj := candidates[valid[i].Index], candidates[valid[j].Index]
		if ci.Similarity != cj.Similarity {
			return ci.Similarity > cj.Similarity
		}
		return ci.Metadata.ChunkIndex < cj.Metadata.ChunkIndex
	})

	var out []SearchResult
	for _, r := range valid {
		if r.Relevance < minRelevance {
			continue
		}
		if len(out) >= minResults && r.Relevance < highRelevance {
			break
		}
		out = append(out, toResult(candidates[r.Index], r.Relevance))
	}
	return out
}

func toResult(c database.MatchResult, relevance float64) SearchResult {
	return SearchResult{
		ChunkID:    c.ChunkID,
		DocumentID: c.DocumentID,
		Title:      c.Title,
		FilePath:   c.FilePath,
		Content:    c.Content,
		Metadata:   c.Metadata,
		Relevance:  relevance,
		Similarity: c.Similarity,
		Trust:      trustBand(relevance),
	}
}

// trustBand maps a relevance score to its band.
func trustBand(relevance float64) string {
	switch {
	case relevance > 0.80:
		return TrustHigh
	case relevance >= 0.60:
		return TrustMedium
	default:
		return TrustLow
	}
}

// mergeCandidates appends shared-document hits, deduplicating on chunk
// id, and re-sorts by similarity.
func mergeCandidates(own, shared []database.MatchResult) []database.MatchResult {
	seen := make(map[string]bool, len(own))
	for _, c := range own {
		seen[c.ChunkID] = true
	}
	for _, c := range shared {
		if !seen[c.ChunkID] {
			own = append(own, c)
		}
	}
	sort.SliceStable(own, func(i, j int) bool { return own[i].Similarity > own[j].Similarity })
	if len(own) > vectorCandidates {
		own = own[:vectorCandidates]
	}
	return own
}

// keywordFallback tokenizes the query, drops short tokens, and runs a
// full-text AND search. On backend failure it degrades once more to a
// substring match on the first token. Fixed relevance of 0.5.
func (s *RetrievalService) keywordFallback(ctx context.Context, projectID, query string) ([]SearchResult, error) {
	var tokens []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		if len(t) > 2 {
			tokens = append(tokens, sanitizeToken(t))
		}
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	fctx, cancel := context.WithTimeout(ctx, fulltextTimeout)
	defer cancel()

	matches, err := s.store.KeywordSearchChunks(fctx, projectID, tokens, vectorOnlyTop)
	if err != nil {
		s.logger.Warn("full-text search failed, degrading to substring", "error", err)
		matches, err = s.store.SubstringSearchChunks(fctx, projectID, tokens[0], vectorOnlyTop)
		if err != nil {
			return nil, fmt.Errorf("keyword fallback: %w", err)
		}
	}

	out := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		r := toResult(m, fallbackRelevance)
		out = append(out, r)
	}
	return out, nil
}

// sanitizeToken strips tsquery operator characters from a token.
func sanitizeToken(t string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '&', '|', '!', '(', ')', ':', '*', '\'', '<', '>':
			return -1
		}
		return r
	}, t)
}

// ReadChunks fetches up to MaxReadChunkIDs chunks by id within the
// project scope, ordered by file path then chunk index.
func (s *RetrievalService) ReadChunks(ctx context.Context, projectID string, chunkIDs []string) ([]database.MatchResult, error) {
	if len(chunkIDs) == 0 {
		return nil, fmt.Errorf("chunk_ids is required: %w", domain.ErrValidation)
	}
	if len(chunkIDs) > document.MaxReadChunkIDs {
		return nil, fmt.Errorf("chunk_ids exceeds %d entries: %w", document.MaxReadChunkIDs, domain.ErrValidation)
	}

	chunks, err := s.store.GetChunksByIDs(ctx, projectID, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks found: %w", domain.ErrNotFound)
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].FilePath != chunks[j].FilePath {
			return chunks[i].FilePath < chunks[j].FilePath
		}
		return chunks[i].Metadata.ChunkIndex < chunks[j].Metadata.ChunkIndex
	})
	return chunks, nil
}

// ReadDocument resolves a document by exact path or title, then by
// substring; with org scope a final pass searches the organization's
// shared documents. On miss, recent paths are returned as suggestions.
func (s *RetrievalService) ReadDocument(ctx context.Context, projectID, organizationID, docID string, scope SearchScope) (*document.Document, []string, error) {
	if docID == "" || len(docID) > document.MaxDocIDLen {
		return nil, nil, fmt.Errorf("doc_id must be 1..%d characters: %w", document.MaxDocIDLen, domain.ErrValidation)
	}

	if doc, err := s.store.GetDocumentByPath(ctx, projectID, docID); err == nil {
		return doc, nil, nil
	}
	if doc, err := s.store.GetDocumentByTitle(ctx, projectID, docID); err == nil {
		return doc, nil, nil
	}
	if doc, err := s.store.FindDocumentLike(ctx, projectID, docID); err == nil {
		return doc, nil, nil
	}
	if scope == ScopeShared || scope == ScopeOrg {
		if doc, err := s.store.FindSharedDocument(ctx, organizationID, docID); err == nil {
			return doc, nil, nil
		}
	}

	suggestions, err := s.store.ListDocumentPaths(ctx, projectID, 10)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("suggestion lookup failed", "error", err)
	}
	return nil, suggestions, fmt.Errorf("document %q not found: %w", docID, domain.ErrNotFound)
}

func validateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is required: %w", domain.ErrValidation)
	}
	if len(query) > document.MaxQueryLen {
		return fmt.Errorf("query exceeds %d characters: %w", document.MaxQueryLen, domain.ErrValidation)
	}
	return nil
}

// preview truncates content for chunk-reference listings.
func preview(content string, n int) string {
	if len(content) <= n {
		return content
	}
	return content[:n] + "…"
}
