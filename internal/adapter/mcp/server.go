// Package mcp exposes the knowledge base as Model Context Protocol
// tools over streamable HTTP and SSE transports.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/quothlabs/quoth/internal/adapter/otel"
	"github.com/quothlabs/quoth/internal/domain/activity"
	"github.com/quothlabs/quoth/internal/middleware"
	"github.com/quothlabs/quoth/internal/service"
)

// serverName and serverVersion identify this MCP implementation in the
// protocol handshake.
const (
	serverName    = "quoth"
	serverVersion = "1.0.0"
)

// Deps carries the services the tool handlers dispatch into.
type Deps struct {
	Sessions  *service.SessionService
	Retrieval *service.RetrievalService
	Answers   *service.AnswerService
	Indexer   *service.IndexerService
	Proposals *service.ProposalService
	Projects  *service.ProjectService
	Bus       *service.AgentBusService
	Analytics *service.AnalyticsService
	Templates *service.TemplateService
	Activity  *service.ActivityService
	Metrics   *otel.Metrics
	Logger    *slog.Logger
}

// Server registers the quoth_* tools and serves them over HTTP.
type Server struct {
	mcpServer *mcpserver.MCPServer
	deps      Deps
}

// NewServer builds the tool registry.
func NewServer(deps Deps) *Server {
	s := &Server{
		mcpServer: mcpserver.NewMCPServer(serverName, serverVersion,
			mcpserver.WithToolCapabilities(false),
		),
		deps: deps,
	}
	s.registerTools()
	return s
}

// registerTools registers every quoth_* tool on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		// Search and read.
		s.searchIndexTool(),
		s.searchChunksTool(),
		s.askTool(),
		s.readDocTool(),
		s.readChunksTool(),
		// Documents and proposals.
		s.proposeUpdateTool(),
		s.proposalListTool(),
		s.proposalReviewTool(),
		// Templates and guidelines.
		s.listTemplatesTool(),
		s.getTemplateTool(),
		s.guidelinesTool(),
		// Accounts and projects.
		s.listAccountsTool(),
		s.switchAccountTool(),
		s.projectCreateTool(),
		// Genesis and analytics.
		s.genesisTool(),
		s.docHealthTool(),
		s.coverageTool(),
		// Agent bus.
		s.agentRegisterTool(),
		s.agentUpdateTool(),
		s.agentRemoveTool(),
		s.agentListTool(),
		s.agentAssignProjectTool(),
		s.agentUnassignProjectTool(),
		s.agentMessageTool(),
		s.agentInboxTool(),
		s.taskCreateTool(),
		s.taskUpdateTool(),
	)
}

// HTTPHandler returns the streamable-HTTP MCP endpoint. The context
// func only propagates the AuthRecord already verified by the HTTP
// middleware; rejection happened before dispatch.
func (s *Server) HTTPHandler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithHTTPContextFunc(propagateAuth),
	)
}

// SSEHandler returns the SSE MCP endpoint for clients that cannot use
// streamable HTTP.
func (s *Server) SSEHandler(basePath string) http.Handler {
	return mcpserver.NewSSEServer(s.mcpServer,
		mcpserver.WithStaticBasePath(basePath),
		mcpserver.WithSSEContextFunc(propagateAuth),
	)
}

// propagateAuth copies the verified AuthRecord from the HTTP request
// context into the tool-call context.
func propagateAuth(ctx context.Context, r *http.Request) context.Context {
	if rec := middleware.RecordFromContext(r.Context()); rec != nil {
		return middleware.WithRecord(ctx, rec)
	}
	return ctx
}

// tenant resolves the effective tenant for a tool call via the session
// layer.
func (s *Server) tenant(ctx context.Context) (*service.AuthRecord, service.Tenant, error) {
	rec := middleware.RecordFromContext(ctx)
	if rec == nil {
		return nil, service.Tenant{}, fmt.Errorf("no authenticated connection")
	}
	t, err := s.deps.Sessions.Active(ctx, rec)
	if err != nil {
		return nil, service.Tenant{}, err
	}
	return rec, t, nil
}

// record logs a timed activity event and bumps the tool-call counter.
// Never fails the tool call.
func (s *Server) record(t service.Tenant, e *activity.Event, started time.Time) {
	ms := int(time.Since(started).Milliseconds())
	e.ProjectID = t.ProjectID
	e.UserID = t.UserID
	e.ResponseTimeMs = &ms
	s.deps.Activity.Log(e)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ToolCalls.Add(context.Background(), 1)
	}
}
