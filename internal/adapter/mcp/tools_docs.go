package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/quothlabs/quoth/internal/domain/activity"
	"github.com/quothlabs/quoth/internal/domain/document"
	"github.com/quothlabs/quoth/internal/service"
)

func (s *Server) proposeUpdateTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_propose_update",
		mcplib.WithDescription("Propose a document update or creation. Applies directly on projects without approval gating; otherwise queues a proposal for admin review."),
		mcplib.WithString("doc_id",
			mcplib.Required(),
			mcplib.Description("Target document path or title; a new path creates a document"),
		),
		mcplib.WithString("new_content",
			mcplib.Required(),
			mcplib.Description("Full replacement content (max 500KB)"),
		),
		mcplib.WithString("evidence_snippet",
			mcplib.Description("Code or output supporting the change (max 10KB)"),
		),
		mcplib.WithString("reasoning",
			mcplib.Description("Why the change is needed (max 5000 characters)"),
		),
		mcplib.WithString("agent_id",
			mcplib.Description("Registered agent submitting the change; enables envelope signing"),
		),
		mcplib.WithString("source_instance",
			mcplib.Description("Instance identifier of the submitting agent"),
		),
		mcplib.WithString("visibility",
			mcplib.Description("project (default) or shared within the organization"),
			mcplib.Enum("project", "shared"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleProposeUpdate}
}

func (s *Server) handleProposeUpdate(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	proposeReq := document.ProposeRequest{
		DocID:           argString(args, "doc_id"),
		NewContent:      argString(args, "new_content"),
		EvidenceSnippet: argString(args, "evidence_snippet"),
		Reasoning:       argString(args, "reasoning"),
		AgentID:         argString(args, "agent_id"),
		SourceInstance:  argString(args, "source_instance"),
		Visibility:      document.Visibility(argString(args, "visibility")),
	}

	outcome, err := s.deps.Proposals.Propose(ctx, t.ProjectID, t.Role, proposeReq)

	event := &activity.Event{Type: activity.EventPropose, ToolName: "quoth_propose_update", FilePath: proposeReq.DocID}
	s.record(t, event, started)

	if err != nil {
		return errorResult(err), nil
	}

	if outcome.Applied != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.ChunksEmbedded.Add(ctx, int64(outcome.Applied.ChunksIndexed))
			s.deps.Metrics.ChunksReused.Add(ctx, int64(outcome.Applied.ChunksReused))
		}
		verb := "Updated"
		if outcome.Created {
			verb = "Created"
		}
		return mcplib.NewToolResultText(fmt.Sprintf(
			"%s %s (version %d): %d chunks indexed, %d reused.",
			verb, outcome.Applied.Document.FilePath, outcome.Applied.Document.Version,
			outcome.Applied.ChunksIndexed, outcome.Applied.ChunksReused)), nil
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.ProposalsCreated.Add(ctx, 1)
	}
	return mcplib.NewToolResultText(fmt.Sprintf(
		"Proposal %s queued for admin review (status: %s). An admin can decide it with quoth_proposal_review.",
		outcome.Proposal.ID, outcome.Proposal.Status)), nil
}

func (s *Server) proposalListTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_proposal_list",
		mcplib.WithDescription("List the active project's proposals, optionally filtered by status."),
		mcplib.WithString("status",
			mcplib.Description("pending, approved, or rejected; omit for all"),
			mcplib.Enum("pending", "approved", "rejected"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleProposalList}
}

func (s *Server) handleProposalList(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	status := document.ProposalStatus(argString(req.GetArguments(), "status"))
	proposals, err := s.deps.Proposals.List(ctx, t.ProjectID, status)
	if err != nil {
		return errorResult(err), nil
	}

	if len(proposals) == 0 {
		return mcplib.NewToolResultText("No proposals."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d proposal(s):\n", len(proposals))
	for _, p := range proposals {
		fmt.Fprintf(&b, "- %s  [%s]  %s", p.ID, p.Status, p.FilePath)
		if p.AgentID != "" {
			fmt.Fprintf(&b, "  (agent %s)", p.AgentID)
		}
		fmt.Fprintf(&b, "  %s\n", p.CreatedAt.Format(time.RFC3339))
	}
	return mcplib.NewToolResultText(b.String()), nil
}

func (s *Server) proposalReviewTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_proposal_review",
		mcplib.WithDescription("Approve or reject a pending proposal. Approval applies the content through the incremental indexer. Admin only."),
		mcplib.WithString("proposal_id",
			mcplib.Required(),
			mcplib.Description("The proposal to decide"),
		),
		mcplib.WithString("decision",
			mcplib.Required(),
			mcplib.Description("approve or reject"),
			mcplib.Enum("approve", "reject"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleProposalReview}
}

func (s *Server) handleProposalReview(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	proposalID := argString(args, "proposal_id")
	decision := argString(args, "decision")

	event := &activity.Event{Type: activity.EventPropose, ToolName: "quoth_proposal_review"}
	defer s.record(t, event, started)

	switch decision {
	case "approve":
		result, err := s.deps.Proposals.Approve(ctx, t.ProjectID, t.Role, proposalID)
		if err != nil {
			return errorResult(err), nil
		}
		return mcplib.NewToolResultText(fmt.Sprintf(
			"Approved and applied %s (version %d): %d chunks indexed, %d reused.",
			result.Document.FilePath, result.Document.Version,
			result.ChunksIndexed, result.ChunksReused)), nil
	case "reject":
		if err := s.deps.Proposals.Reject(ctx, t.ProjectID, t.Role, proposalID); err != nil {
			return errorResult(err), nil
		}
		return mcplib.NewToolResultText("Proposal rejected."), nil
	default:
		return mcplib.NewToolResultError("decision must be approve or reject"), nil
	}
}

func (s *Server) listTemplatesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_list_templates",
		mcplib.WithDescription("List knowledge-base starter templates."),
		mcplib.WithString("category",
			mcplib.Description("all (default), architecture, patterns, or contracts"),
			mcplib.Enum("all", "architecture", "patterns", "contracts"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListTemplates}
}

func (s *Server) handleListTemplates(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	category := service.TemplateCategory(argString(req.GetArguments(), "category"))
	templates, err := s.deps.Templates.List(category)
	if err != nil {
		return errorResult(err), nil
	}
	if len(templates) == 0 {
		return mcplib.NewToolResultText("No templates available."), nil
	}
	var b strings.Builder
	for _, t := range templates {
		fmt.Fprintf(&b, "- %s (%s)\n", t.ID, t.Category)
	}
	return mcplib.NewToolResultText(b.String()), nil
}

func (s *Server) getTemplateTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_get_template",
		mcplib.WithDescription("Fetch one template's content by id."),
		mcplib.WithString("template_id",
			mcplib.Required(),
			mcplib.Description("Template id from quoth_list_templates, e.g. architecture/overview"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetTemplate}
}

func (s *Server) handleGetTemplate(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	content, err := s.deps.Templates.Get(argString(req.GetArguments(), "template_id"))
	if err != nil {
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(content), nil
}

func (s *Server) guidelinesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_guidelines",
		mcplib.WithDescription("Canonical working guidelines for coding, reviewing, or documenting against this knowledge base."),
		mcplib.WithString("mode",
			mcplib.Required(),
			mcplib.Description("code, review, or document"),
			mcplib.Enum("code", "review", "document"),
		),
		mcplib.WithBoolean("full",
			mcplib.Description("Return the full text instead of the compact summary"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGuidelines}
}

func (s *Server) handleGuidelines(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	args := req.GetArguments()
	text, err := service.Guidelines(service.GuidelineMode(argString(args, "mode")), argBool(args, "full"))
	if err != nil {
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(text), nil
}

func (s *Server) genesisTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_genesis",
		mcplib.WithDescription("Return the Genesis Architect persona prompt that bootstraps a knowledge base from a source tree."),
		mcplib.WithString("focus",
			mcplib.Description("full_scan (default) or update_only"),
			mcplib.Enum("full_scan", "update_only"),
		),
		mcplib.WithString("language_hint",
			mcplib.Description("Primary language of the repository, if known"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGenesis}
}

func (s *Server) handleGenesis(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	focus := service.GenesisFocus(argString(args, "focus"))
	if focus == "" {
		focus = service.GenesisFullScan
	}

	s.record(t, &activity.Event{Type: activity.EventGenesis, ToolName: "quoth_genesis"}, started)
	return mcplib.NewToolResultText(service.GenesisPrompt(focus, argString(args, "language_hint"))), nil
}
