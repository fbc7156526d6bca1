package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quothlabs/quoth/internal/port/embedder"
)

// answerContextMax bounds how many retrieved passages ground one answer.
const answerContextMax = 8

// AnswerResponse is the generative answer with the passages that
// grounded it. When the answer stage is skipped (quota, worker down),
// Answer is empty and TierMessage explains why.
type AnswerResponse struct {
	Answer      string
	Sources     []SearchResult
	Usage       Usage
	TierMessage string
}

// AnswerService runs retrieval and hands the top passages to the RAG
// worker for a grounded answer. Quota-metered separately from search.
type AnswerService struct {
	retrieval *RetrievalService
	answerer  embedder.Answerer
	usage     *UsageService
	logger    *slog.Logger
}

// NewAnswerService creates the answer stage. answerer may be nil, which
// disables answer generation.
func NewAnswerService(retrieval *RetrievalService, answerer embedder.Answerer, usage *UsageService, logger *slog.Logger) *AnswerService {
	return &AnswerService{
		retrieval: retrieval,
		answerer:  answerer,
		usage:     usage,
		logger:    logger,
	}
}

// Ask retrieves context for the query and generates an answer from it.
// Exhausted quota or a failed worker degrades to sources-only rather
// than failing the call.
func (s *AnswerService) Ask(ctx context.Context, projectID, organizationID, query string, scope SearchScope) (*AnswerResponse, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}

	usage := s.usage.Check(ctx, projectID, LimitRAGAnswer)

	sources, err := s.retrieval.semanticSearch(ctx, projectID, organizationID, query, scope, false)
	if err != nil {
		return nil, fmt.Errorf("retrieve answer context: %w", err)
	}
	if len(sources) == 0 {
		return &AnswerResponse{Usage: usage}, nil
	}

	if s.answerer == nil {
		return &AnswerResponse{
			Sources:     sources,
			Usage:       usage,
			TierMessage: "Answer generation is not configured on this server; returning search results only.",
		}, nil
	}
	if !usage.Allowed {
		return &AnswerResponse{
			Sources: sources,
			Usage:   usage,
			TierMessage: fmt.Sprintf("Daily answer limit reached (%d per day on the %s tier); returning search results only.",
				usage.Limit, usage.Tier),
		}, nil
	}
	s.usage.Increment(projectID, LimitRAGAnswer)

	n := len(sources)
	if n > answerContextMax {
		n = answerContextMax
	}
	passages := make([]string, 0, n)
	for _, src := range sources[:n] {
		passages = append(passages, src.Content)
	}

	answer, err := s.answerer.Answer(ctx, query, passages)
	if err != nil && embedder.IsRetryable(err) {
		answer, err = s.answerer.Answer(ctx, query, passages)
	}
	if err != nil {
		s.logger.Warn("answer generation degraded to sources only", "error", err)
		return &AnswerResponse{
			Sources:     sources,
			Usage:       usage,
			TierMessage: "Answer generation is temporarily unavailable; returning search results only.",
		}, nil
	}

	return &AnswerResponse{Answer: answer, Sources: sources, Usage: usage}, nil
}
