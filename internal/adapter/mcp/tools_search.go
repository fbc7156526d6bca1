package mcp

import (
	"context"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/quothlabs/quoth/internal/domain/activity"
	"github.com/quothlabs/quoth/internal/service"
)

func (s *Server) searchIndexTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_search_index",
		mcplib.WithDescription("Semantically search the active project's documentation knowledge base. Results carry trust bands (HIGH/MEDIUM/LOW) and chunk ids usable with quoth_read_chunks."),
		mcplib.WithString("query",
			mcplib.Required(),
			mcplib.Description("Natural-language or code query (max 1000 characters)"),
		),
		mcplib.WithString("scope",
			mcplib.Description("project (default), shared, or org: the latter two include the organization's shared documents"),
			mcplib.Enum("project", "shared", "org"),
		),
		mcplib.WithBoolean("is_genesis",
			mcplib.Description("Set during a genesis scan; enables reranking on the free tier"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleSearchIndex}
}

func (s *Server) handleSearchIndex(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	query := argString(args, "query")
	scope := service.SearchScope(argString(args, "scope"))
	if scope == "" {
		scope = service.ScopeProject
	}
	isGenesis := argBool(args, "is_genesis")

	resp, err := s.deps.Retrieval.SearchIndex(ctx, t.ProjectID, t.OrganizationID, query, scope, isGenesis)

	event := &activity.Event{Type: activity.EventSearch, Query: query, ToolName: "quoth_search_index"}
	if resp != nil {
		n := len(resp.Results)
		event.ResultCount = &n
		if n > 0 {
			event.RelevanceScore = &resp.Results[0].Relevance
		}
	}
	s.record(t, event, started)

	if err != nil {
		return errorResult(err), nil
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.SearchesServed.Add(ctx, 1)
		if resp.UsedFallback {
			s.deps.Metrics.SearchFallbacks.Add(ctx, 1)
		}
		s.deps.Metrics.SearchLatency.Record(ctx, time.Since(started).Seconds())
	}
	return mcplib.NewToolResultText(renderSearchResults(resp.Results, resp.UsedFallback, resp.TierMessage)), nil
}

func (s *Server) searchChunksTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_search_chunks",
		mcplib.WithDescription("Search for chunk references: short previews with chunk ids, for follow-up reads via quoth_read_chunks."),
		mcplib.WithString("query",
			mcplib.Required(),
			mcplib.Description("Search query (max 1000 characters)"),
		),
		mcplib.WithBoolean("is_genesis",
			mcplib.Description("Set during a genesis scan"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleSearchChunks}
}

func (s *Server) handleSearchChunks(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	query := argString(args, "query")

	results, err := s.deps.Retrieval.SearchChunks(ctx, t.ProjectID, t.OrganizationID, query, argBool(args, "is_genesis"))

	event := &activity.Event{Type: activity.EventSearch, Query: query, ToolName: "quoth_search_chunks"}
	if err == nil {
		n := len(results)
		event.ResultCount = &n
	}
	s.record(t, event, started)

	if err != nil {
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(renderSearchResults(results, false, "")), nil
}

func (s *Server) askTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_ask",
		mcplib.WithDescription("Ask a question against the active project's knowledge base and get a grounded answer with its source chunks. Metered separately from search."),
		mcplib.WithString("query",
			mcplib.Required(),
			mcplib.Description("Natural-language question (max 1000 characters)"),
		),
		mcplib.WithString("scope",
			mcplib.Description("project (default), shared, or org: the latter two include the organization's shared documents"),
			mcplib.Enum("project", "shared", "org"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAsk}
}

func (s *Server) handleAsk(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	query := argString(args, "query")
	scope := service.SearchScope(argString(args, "scope"))
	if scope == "" {
		scope = service.ScopeProject
	}

	resp, err := s.deps.Answers.Ask(ctx, t.ProjectID, t.OrganizationID, query, scope)

	event := &activity.Event{Type: activity.EventSearch, Query: query, ToolName: "quoth_ask"}
	if resp != nil {
		n := len(resp.Sources)
		event.ResultCount = &n
	}
	s.record(t, event, started)

	if err != nil {
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(renderAnswer(resp)), nil
}

func (s *Server) readDocTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_read_doc",
		mcplib.WithDescription("Read a full document by path or title. Misses return suggestions."),
		mcplib.WithString("doc_id",
			mcplib.Required(),
			mcplib.Description("Document file path or title (max 500 characters)"),
		),
		mcplib.WithString("scope",
			mcplib.Description("org widens the lookup to the organization's shared documents"),
			mcplib.Enum("project", "shared", "org"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleReadDoc}
}

func (s *Server) handleReadDoc(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	docID := argString(args, "doc_id")
	scope := service.SearchScope(argString(args, "scope"))

	doc, suggestions, err := s.deps.Retrieval.ReadDocument(ctx, t.ProjectID, t.OrganizationID, docID, scope)

	event := &activity.Event{Type: activity.EventRead, ToolName: "quoth_read_doc"}
	if doc != nil {
		event.DocumentID = doc.ID
		event.FilePath = doc.FilePath
	}
	s.record(t, event, started)

	if err != nil {
		if len(suggestions) > 0 {
			return mcplib.NewToolResultText(renderSuggestions(docID, suggestions)), nil
		}
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(renderDocument(doc)), nil
}

func (s *Server) readChunksTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_read_chunks",
		mcplib.WithDescription("Fetch up to 20 chunks by id, grouped by document and ordered by chunk index."),
		mcplib.WithArray("chunk_ids",
			mcplib.Required(),
			mcplib.Description("Chunk UUIDs from a previous search (1-20 entries)"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleReadChunks}
}

func (s *Server) handleReadChunks(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	raw, _ := req.GetArguments()["chunk_ids"].([]any)
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok && id != "" {
			ids = append(ids, id)
		}
	}

	chunks, err := s.deps.Retrieval.ReadChunks(ctx, t.ProjectID, ids)

	event := &activity.Event{Type: activity.EventReadChunks, ToolName: "quoth_read_chunks"}
	if err == nil {
		n := len(chunks)
		event.ResultCount = &n
	}
	s.record(t, event, started)

	if err != nil {
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(renderChunks(chunks)), nil
}
