// Package embedder defines the embedding and reranking provider ports.
package embedder

import (
	"context"
	"errors"
	"fmt"

	"github.com/quothlabs/quoth/internal/chunk"
)

// Embedder turns text into fixed-dimension vectors. The returned model
// tag is stored alongside each chunk so searches can filter to the
// matching model.
type Embedder interface {
	EmbedPassage(ctx context.Context, text string, contentType chunk.ContentType) (vector []float32, model string, err error)
	EmbedQuery(ctx context.Context, text string, contentType chunk.ContentType) (vector []float32, model string, err error)
	Dimensions() int
}

// RankedCandidate is a reranker score for one input candidate.
type RankedCandidate struct {
	Index     int     `json:"index"`
	Relevance float64 `json:"relevance"`
}

// Reranker scores (query, candidate) pairs and returns candidates
// sorted by relevance descending. Optional: a nil Reranker disables
// the rerank stage.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []string, topN int) ([]RankedCandidate, error)
}

// Answerer generates a grounded natural-language answer from a query
// and its retrieved passages. Optional: a nil Answerer disables the
// answer stage.
type Answerer interface {
	Answer(ctx context.Context, query string, passages []string) (string, error)
}

// ProviderError wraps a provider failure with its retry class.
type ProviderError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transport/5xx/timeout failure
// worth one internal retry before degrading.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}
