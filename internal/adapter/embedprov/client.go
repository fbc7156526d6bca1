// Package embedprov implements the embedder port against an HTTP
// embedding provider. Two model tags share one endpoint; content type
// selects the model, and all vectors are truncated to a common
// dimension so the index stays schema-homogeneous per model.
package embedprov

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/quothlabs/quoth/internal/chunk"
	"github.com/quothlabs/quoth/internal/config"
	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/port/embedder"
)

// Client is an HTTP embedding provider client. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	textModel  string
	codeModel  string
	dimensions int
	httpClient *http.Client
}

// New creates an embedding client from config.
func New(cfg config.Embedding) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.Key,
		textModel:  cfg.TextModel,
		codeModel:  cfg.CodeModel,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Dimensions returns the common vector dimension D.
func (c *Client) Dimensions() int { return c.dimensions }

// EmbedPassage embeds stored content with the model matching its
// content type.
func (c *Client) EmbedPassage(ctx context.Context, text string, contentType chunk.ContentType) ([]float32, string, error) {
	return c.embed(ctx, text, contentType, "passage")
}

// EmbedQuery embeds a search query with the model matching its
// content type.
func (c *Client) EmbedQuery(ctx context.Context, text string, contentType chunk.ContentType) ([]float32, string, error) {
	return c.embed(ctx, text, contentType, "query")
}

type embedRequest struct {
	Input     string `json:"input"`
	Model     string `json:"model"`
	InputType string `json:"input_type"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

func (c *Client) embed(ctx context.Context, text string, contentType chunk.ContentType, inputType string) ([]float32, string, error) {
	normalized := normalizeWhitespace(text)
	if normalized == "" {
		return nil, "", fmt.Errorf("embed input is empty: %w", domain.ErrValidation)
	}
	if contentType == "" {
		contentType = chunk.Classify(text)
	}

	model := c.textModel
	if contentType == chunk.ContentCode {
		model = c.codeModel
	}

	body, err := json.Marshal(embedRequest{Input: normalized, Model: model, InputType: inputType})
	if err != nil {
		return nil, "", fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &embedder.ProviderError{Op: "embed", Retryable: true, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, "", &embedder.ProviderError{Op: "embed", StatusCode: resp.StatusCode, Retryable: true, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", &embedder.ProviderError{
			Op:         "embed",
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode >= 500,
			Err:        fmt.Errorf("provider returned %s", strings.TrimSpace(string(data))),
		}
	}

	var parsed embedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, "", fmt.Errorf("parse embed response: %w", err)
	}
	if parsed.Error != "" {
		return nil, "", &embedder.ProviderError{Op: "embed", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", parsed.Error)}
	}
	if len(parsed.Embedding) < c.dimensions {
		return nil, "", fmt.Errorf("provider returned %d dims, need %d", len(parsed.Embedding), c.dimensions)
	}

	// Truncate to the common dimension D.
	return parsed.Embedding[:c.dimensions], model, nil
}

// normalizeWhitespace collapses runs of whitespace to single spaces.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
