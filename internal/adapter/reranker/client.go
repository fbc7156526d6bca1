// Package reranker implements the reranker port against an HTTP
// cross-encoder provider.
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/quothlabs/quoth/internal/config"
	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/port/embedder"
)

// maxCandidates is the provider's per-call candidate cap.
const maxCandidates = 100

// Client is an HTTP reranker client. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// New creates a reranker client, or nil when no key is configured so
// callers can skip the rerank stage entirely.
func New(cfg config.Reranker) *Client {
	if cfg.Key == "" {
		return nil
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.Key,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores candidates against the query and returns up to topN
// results sorted by relevance descending.
func (c *Client) Rerank(ctx context.Context, query string, candidates []string, topN int) ([]embedder.RankedCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) > maxCandidates {
		return nil, fmt.Errorf("too many rerank candidates (%d > %d): %w", len(candidates), maxCandidates, domain.ErrValidation)
	}

	body, err := json.Marshal(rerankRequest{Model: c.model, Query: query, Documents: candidates, TopN: topN})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &embedder.ProviderError{Op: "rerank", Retryable: true, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &embedder.ProviderError{Op: "rerank", StatusCode: resp.StatusCode, Retryable: true, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &embedder.ProviderError{
			Op:         "rerank",
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode >= 500,
			Err:        fmt.Errorf("provider returned %s", strings.TrimSpace(string(data))),
		}
	}

	var parsed rerankResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse rerank response: %w", err)
	}

	ranked := make([]embedder.RankedCandidate, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		ranked = append(ranked, embedder.RankedCandidate{Index: r.Index, Relevance: r.RelevanceScore})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Relevance > ranked[j].Relevance })
	return ranked, nil
}
