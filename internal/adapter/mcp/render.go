package mcp

import (
	"errors"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/document"
	"github.com/quothlabs/quoth/internal/port/database"
	"github.com/quothlabs/quoth/internal/service"
)

// errorResult maps a domain error to a tool error block with the right
// register: validation and permission failures are explained, backend
// failures stay opaque.
func errorResult(err error) *mcplib.CallToolResult {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return mcplib.NewToolResultError("Permission denied: " + err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return mcplib.NewToolResultError("Not found: " + err.Error())
	case errors.Is(err, domain.ErrValidation):
		return mcplib.NewToolResultError("Invalid input: " + err.Error())
	case errors.Is(err, domain.ErrConflict):
		return mcplib.NewToolResultError("Conflict: " + err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		return mcplib.NewToolResultError("Authentication required")
	default:
		return mcplib.NewToolResultError("Internal error; try again shortly")
	}
}

// renderSearchResults formats a result list as a readable text block:
// header line per chunk with trust band and score, then the content.
func renderSearchResults(results []service.SearchResult, usedFallback bool, tierMessage string) string {
	var b strings.Builder
	if len(results) == 0 {
		b.WriteString("No results found.")
	} else {
		fmt.Fprintf(&b, "%d result(s):\n\n", len(results))
		for i, r := range results {
			fmt.Fprintf(&b, "--- [%d] %s (%s", i+1, r.FilePath, r.Trust)
			if !usedFallback {
				fmt.Fprintf(&b, " %.2f", r.Relevance)
			}
			fmt.Fprintf(&b, ") chunk=%s ---\n", r.ChunkID)
			if r.Title != "" {
				fmt.Fprintf(&b, "# %s\n", r.Title)
			}
			b.WriteString(r.Content)
			b.WriteString("\n\n")
		}
	}
	if usedFallback {
		b.WriteString("\n[keyword fallback]")
	}
	if tierMessage != "" {
		b.WriteString("\n" + tierMessage)
	}
	return b.String()
}

// renderAnswer formats a grounded answer followed by the source chunks
// it was built from. A skipped answer stage renders sources only.
func renderAnswer(resp *service.AnswerResponse) string {
	if resp.Answer == "" && len(resp.Sources) == 0 {
		return "No relevant documentation found to answer from."
	}
	var b strings.Builder
	if resp.Answer != "" {
		b.WriteString(resp.Answer)
		b.WriteString("\n\n")
	}
	if len(resp.Sources) > 0 {
		b.WriteString("Sources:\n")
		for i, r := range resp.Sources {
			fmt.Fprintf(&b, "  [%d] %s (%s %.2f) chunk=%s\n", i+1, r.FilePath, r.Trust, r.Relevance, r.ChunkID)
		}
	}
	if resp.TierMessage != "" {
		b.WriteString("\n" + resp.TierMessage)
	}
	return b.String()
}

// renderChunks groups fetched chunks by document.
func renderChunks(chunks []database.MatchResult) string {
	var b strings.Builder
	lastDoc := ""
	for _, c := range chunks {
		if c.DocumentID != lastDoc {
			fmt.Fprintf(&b, "## %s (%s)\n", c.Title, c.FilePath)
			lastDoc = c.DocumentID
		}
		fmt.Fprintf(&b, "[chunk %d] %s\n%s\n\n", c.Metadata.ChunkIndex, c.ChunkID, c.Content)
	}
	return b.String()
}

// renderDocument formats a full document read.
func renderDocument(doc *document.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", doc.Title)
	fmt.Fprintf(&b, "path: %s | type: %s | version: %d | updated: %s\n\n",
		doc.FilePath, orDash(string(doc.DocType)), doc.Version,
		doc.LastUpdated.Format("2006-01-02"))
	b.WriteString(doc.Content)
	return b.String()
}

// renderSuggestions formats a not-found response with recent paths.
func renderSuggestions(docID string, suggestions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document %q not found.", docID)
	if len(suggestions) > 0 {
		b.WriteString(" Recently updated documents:\n")
		for _, s := range suggestions {
			b.WriteString("  - " + s + "\n")
		}
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// argString reads an optional string argument.
func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// argBool reads an optional boolean argument.
func argBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// argInt reads an optional numeric argument (JSON numbers decode as
// float64).
func argInt(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
