package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/activity"
	"github.com/quothlabs/quoth/internal/domain/project"
)

func (s *Server) listAccountsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_list_accounts",
		mcplib.WithDescription("List the projects this connection can act on, with the active one marked."),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListAccounts}
}

func (s *Server) handleListAccounts(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	rec, _, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	active, accounts, err := s.deps.Sessions.ListAccounts(ctx, rec)
	if err != nil {
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(renderAccounts(active, accounts)), nil
}

func (s *Server) switchAccountTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_switch_account",
		mcplib.WithDescription("Switch this connection's active project. All subsequent tool calls run against the new project with your role there."),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("Target project id or slug from quoth_list_accounts"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleSwitchAccount}
}

func (s *Server) handleSwitchAccount(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	rec, _, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	target := argString(req.GetArguments(), "project_id")
	sess, err := s.deps.Sessions.Switch(ctx, rec, target)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_, accounts, listErr := s.deps.Sessions.ListAccounts(ctx, rec)
			if listErr == nil {
				var b strings.Builder
				fmt.Fprintf(&b, "Project %q is not in your account list.\n\n", target)
				b.WriteString(renderAccounts("", accounts))
				return mcplib.NewToolResultError(b.String()), nil
			}
		}
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(fmt.Sprintf(
		"Switched to project %s (role: %s).", sess.ActiveProjectID, sess.ActiveRole)), nil
}

func renderAccounts(active string, accounts []project.Membership) string {
	if len(accounts) == 0 {
		return "No project memberships."
	}
	var b strings.Builder
	b.WriteString("Accessible projects:\n")
	for _, m := range accounts {
		marker := " "
		if m.ProjectID == active {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s (%s)  role=%s  id=%s\n", marker, m.ProjectName, m.ProjectSlug, m.Role, m.ProjectID)
	}
	return b.String()
}

func (s *Server) projectCreateTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_project_create",
		mcplib.WithDescription("Create a new project, provisioning an organization if you own none. Admin only."),
		mcplib.WithString("name",
			mcplib.Required(),
			mcplib.Description("Human-readable project name (max 255 characters)"),
		),
		mcplib.WithString("slug",
			mcplib.Required(),
			mcplib.Description("URL-safe identifier: lowercase letters, digits, hyphens (max 63 characters)"),
		),
		mcplib.WithString("github_repo",
			mcplib.Description("Optional owner/repo link"),
		),
		mcplib.WithBoolean("is_public",
			mcplib.Description("Whether the project is publicly readable"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleProjectCreate}
}

func (s *Server) handleProjectCreate(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	if !t.Role.CanApprove() {
		return errorResult(fmt.Errorf("project creation requires the admin role: %w", domain.ErrForbidden)), nil
	}

	args := req.GetArguments()
	p, err := s.deps.Projects.Create(ctx, t.UserID, project.CreateRequest{
		Name:       argString(args, "name"),
		Slug:       argString(args, "slug"),
		GitHubRepo: argString(args, "github_repo"),
		IsPublic:   argBool(args, "is_public"),
	})

	s.record(t, &activity.Event{Type: activity.EventProjectCreate, ToolName: "quoth_project_create"}, started)

	if err != nil {
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(fmt.Sprintf(
		"Created project %s (slug: %s, id: %s). Switch to it with quoth_switch_account.",
		p.Name, p.Slug, p.ID)), nil
}

func (s *Server) docHealthTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_doc_health",
		mcplib.WithDescription("Score the active project's documentation freshness and list stale documents with suggestions."),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleDocHealth}
}

func (s *Server) handleDocHealth(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	report, err := s.deps.Analytics.Health(ctx, t.ProjectID)
	if err != nil {
		return errorResult(err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Documentation health score: %d/100 (%d documents)\n\n", report.Score, len(report.Documents))
	for _, d := range report.Documents {
		fmt.Fprintf(&b, "- %s  [%s, %dd old]", d.FilePath, d.Staleness, d.DaysOld)
		if d.Suggestion != "" {
			fmt.Fprintf(&b, "  %s", d.Suggestion)
		}
		b.WriteByte('\n')
	}
	return mcplib.NewToolResultText(b.String()), nil
}

func (s *Server) coverageTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_coverage",
		mcplib.WithDescription("Snapshot documentation coverage: documents with embeddings over total, broken down by type. Auto-categorizes untyped documents by path."),
		mcplib.WithString("scan_type",
			mcplib.Description("Label for the snapshot, e.g. manual or scheduled; defaults to manual"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCoverage}
}

func (s *Server) handleCoverage(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	snap, err := s.deps.Analytics.Coverage(ctx, t.ProjectID, argString(req.GetArguments(), "scan_type"))

	s.record(t, &activity.Event{Type: activity.EventCoverageScan, ToolName: "quoth_coverage"}, started)

	if err != nil {
		return errorResult(err), nil
	}

	types := make([]string, 0, len(snap.Breakdown))
	for docType := range snap.Breakdown {
		types = append(types, docType)
	}
	sort.Strings(types)

	var b strings.Builder
	fmt.Fprintf(&b, "Coverage: %.1f%% (%d of %d documents embedded)\n", snap.CoveragePercentage, snap.TotalDocumented, snap.TotalDocumentable)
	for _, docType := range types {
		fmt.Fprintf(&b, "- %s: %d\n", docType, snap.Breakdown[docType])
	}
	return mcplib.NewToolResultText(b.String()), nil
}
