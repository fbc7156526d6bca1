// Package ragworker implements the answerer port against the RAG worker
// HTTP endpoint: retrieved passages in, a grounded answer out.
package ragworker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/quothlabs/quoth/internal/config"
	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/port/embedder"
)

// Client is an HTTP RAG worker client. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a RAG worker client from config.
func New(cfg config.RAGWorker) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.Key,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type answerRequest struct {
	Query    string   `json:"query"`
	Passages []string `json:"passages"`
}

type answerResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

// Answer sends the query and its retrieved passages to the worker.
func (c *Client) Answer(ctx context.Context, query string, passages []string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("answer query is empty: %w", domain.ErrValidation)
	}
	if len(passages) == 0 {
		return "", fmt.Errorf("answer needs at least one passage: %w", domain.ErrValidation)
	}

	body, err := json.Marshal(answerRequest{Query: query, Passages: passages})
	if err != nil {
		return "", fmt.Errorf("marshal answer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/answers", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build answer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &embedder.ProviderError{Op: "answer", Retryable: true, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &embedder.ProviderError{Op: "answer", StatusCode: resp.StatusCode, Retryable: true, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &embedder.ProviderError{
			Op:         "answer",
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode >= 500,
			Err:        fmt.Errorf("worker returned %s", strings.TrimSpace(string(data))),
		}
	}

	var parsed answerResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse answer response: %w", err)
	}
	if parsed.Error != "" {
		return "", &embedder.ProviderError{Op: "answer", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", parsed.Error)}
	}
	if strings.TrimSpace(parsed.Answer) == "" {
		return "", fmt.Errorf("worker returned an empty answer: %w", domain.ErrBackend)
	}
	return parsed.Answer, nil
}
