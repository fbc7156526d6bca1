package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/quothlabs/quoth/internal/domain/activity"
	"github.com/quothlabs/quoth/internal/domain/agent"
	"github.com/quothlabs/quoth/internal/service"
)

func (s *Server) agentRegisterTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_agent_register",
		mcplib.WithDescription("Register an AI agent in the organization. Names are unique per org."),
		mcplib.WithString("agent_name",
			mcplib.Required(),
			mcplib.Description("Unique agent name within the organization (max 128 characters)"),
		),
		mcplib.WithString("instance",
			mcplib.Required(),
			mcplib.Description("Instance identifier, e.g. hostname or session id"),
		),
		mcplib.WithString("display_name",
			mcplib.Description("Human-friendly name"),
		),
		mcplib.WithString("model",
			mcplib.Description("Underlying model identifier"),
		),
		mcplib.WithString("role",
			mcplib.Description("Free-form role label, e.g. curator or reviewer"),
		),
		mcplib.WithString("capabilities",
			mcplib.Description("JSON object describing what the agent can do"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAgentRegister}
}

func (s *Server) handleAgentRegister(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	regReq := agent.RegisterRequest{
		Name:        argString(args, "agent_name"),
		Instance:    argString(args, "instance"),
		DisplayName: argString(args, "display_name"),
		Model:       argString(args, "model"),
		Role:        argString(args, "role"),
	}
	if caps := argString(args, "capabilities"); caps != "" {
		regReq.Capabilities = json.RawMessage(caps)
	}

	a, err := s.deps.Bus.Register(ctx, t.OrganizationID, regReq)

	s.record(t, &activity.Event{Type: activity.EventAgentRegister, ToolName: "quoth_agent_register"}, started)

	if err != nil {
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(fmt.Sprintf(
		"Registered agent %s (id: %s, status: %s).", a.Name, a.ID, a.Status)), nil
}

func (s *Server) agentUpdateTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_agent_update",
		mcplib.WithDescription("Update an agent's profile or status. Omitted fields stay unchanged."),
		mcplib.WithString("agent",
			mcplib.Required(),
			mcplib.Description("Agent id or name"),
		),
		mcplib.WithString("display_name",
			mcplib.Description("New display name"),
		),
		mcplib.WithString("model",
			mcplib.Description("New model identifier"),
		),
		mcplib.WithString("role",
			mcplib.Description("New role label"),
		),
		mcplib.WithString("status",
			mcplib.Description("active, inactive, or archived"),
			mcplib.Enum("active", "inactive", "archived"),
		),
		mcplib.WithString("capabilities",
			mcplib.Description("Replacement capabilities JSON object"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAgentUpdate}
}

func (s *Server) handleAgentUpdate(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	var upd agent.UpdateRequest
	if v, ok := args["display_name"].(string); ok {
		upd.DisplayName = &v
	}
	if v, ok := args["model"].(string); ok {
		upd.Model = &v
	}
	if v, ok := args["role"].(string); ok {
		upd.Role = &v
	}
	if v, ok := args["status"].(string); ok && v != "" {
		status := agent.Status(v)
		upd.Status = &status
	}
	if caps := argString(args, "capabilities"); caps != "" {
		upd.Capabilities = json.RawMessage(caps)
	}

	a, err := s.deps.Bus.Update(ctx, t.OrganizationID, argString(args, "agent"), upd)

	s.record(t, &activity.Event{Type: activity.EventAgentUpdate, ToolName: "quoth_agent_update"}, started)

	if err != nil {
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(fmt.Sprintf(
		"Updated agent %s (status: %s).", a.Name, a.Status)), nil
}

func (s *Server) agentRemoveTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_agent_remove",
		mcplib.WithDescription("Archive an agent. Its message history stays attributable."),
		mcplib.WithString("agent",
			mcplib.Required(),
			mcplib.Description("Agent id or name"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAgentRemove}
}

func (s *Server) handleAgentRemove(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	ref := argString(req.GetArguments(), "agent")
	err = s.deps.Bus.Remove(ctx, t.OrganizationID, ref)

	s.record(t, &activity.Event{Type: activity.EventAgentRemove, ToolName: "quoth_agent_remove"}, started)

	if err != nil {
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(fmt.Sprintf("Agent %q archived.", ref)), nil
}

func (s *Server) agentListTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_agent_list",
		mcplib.WithDescription("List the organization's registered agents."),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAgentList}
}

func (s *Server) handleAgentList(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	agents, err := s.deps.Bus.List(ctx, t.OrganizationID)
	if err != nil {
		return errorResult(err), nil
	}
	if len(agents) == 0 {
		return mcplib.NewToolResultText("No agents registered."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d agent(s):\n", len(agents))
	for _, a := range agents {
		fmt.Fprintf(&b, "- %s  [%s]", a.Name, a.Status)
		if a.DisplayName != "" {
			fmt.Fprintf(&b, "  %q", a.DisplayName)
		}
		if a.Model != "" {
			fmt.Fprintf(&b, "  model=%s", a.Model)
		}
		if a.LastSeenAt != nil {
			fmt.Fprintf(&b, "  last_seen=%s", a.LastSeenAt.Format(time.RFC3339))
		}
		fmt.Fprintf(&b, "  id=%s\n", a.ID)
	}
	return mcplib.NewToolResultText(b.String()), nil
}

func (s *Server) agentAssignProjectTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_agent_assign_project",
		mcplib.WithDescription("Link an agent to a project with a role."),
		mcplib.WithString("agent",
			mcplib.Required(),
			mcplib.Description("Agent id or name"),
		),
		mcplib.WithString("project_id",
			mcplib.Description("Target project; defaults to the active project"),
		),
		mcplib.WithString("role",
			mcplib.Description("owner, contributor (default), or readonly"),
			mcplib.Enum("owner", "contributor", "readonly"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAgentAssignProject}
}

func (s *Server) handleAgentAssignProject(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	projectID := argString(args, "project_id")
	if projectID == "" {
		projectID = t.ProjectID
	}

	err = s.deps.Bus.AssignProject(ctx, t.OrganizationID, argString(args, "agent"),
		projectID, agent.AssignmentRole(argString(args, "role")), t.UserID)

	s.record(t, &activity.Event{Type: activity.EventAgentAssignProject, ToolName: "quoth_agent_assign_project"}, started)

	if err != nil {
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(fmt.Sprintf("Agent assigned to project %s.", projectID)), nil
}

func (s *Server) agentUnassignProjectTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_agent_unassign_project",
		mcplib.WithDescription("Remove an agent's project link."),
		mcplib.WithString("agent",
			mcplib.Required(),
			mcplib.Description("Agent id or name"),
		),
		mcplib.WithString("project_id",
			mcplib.Description("Target project; defaults to the active project"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAgentUnassignProject}
}

func (s *Server) handleAgentUnassignProject(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	projectID := argString(args, "project_id")
	if projectID == "" {
		projectID = t.ProjectID
	}

	err = s.deps.Bus.UnassignProject(ctx, t.OrganizationID, argString(args, "agent"), projectID)

	s.record(t, &activity.Event{Type: activity.EventAgentUnassignProject, ToolName: "quoth_agent_unassign_project"}, started)

	if err != nil {
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(fmt.Sprintf("Agent unassigned from project %s.", projectID)), nil
}

func (s *Server) agentMessageTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_agent_message",
		mcplib.WithDescription("Send a signed message from one agent to another within the organization."),
		mcplib.WithString("from",
			mcplib.Required(),
			mcplib.Description("Sending agent id or name"),
		),
		mcplib.WithString("to",
			mcplib.Required(),
			mcplib.Description("Receiving agent id or name"),
		),
		mcplib.WithString("message",
			mcplib.Required(),
			mcplib.Description("Message text"),
		),
		mcplib.WithString("type",
			mcplib.Description("message (default), task, result, alert, knowledge, or curator"),
			mcplib.Enum("message", "task", "result", "alert", "knowledge", "curator"),
		),
		mcplib.WithString("priority",
			mcplib.Description("low, normal (default), high, or urgent"),
			mcplib.Enum("low", "normal", "high", "urgent"),
		),
		mcplib.WithString("channel",
			mcplib.Description("Optional topic channel"),
		),
		mcplib.WithString("reply_to",
			mcplib.Description("Message id this replies to"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAgentMessage}
}

func (s *Server) handleAgentMessage(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	payload, err := json.Marshal(map[string]string{"message": argString(args, "message")})
	if err != nil {
		return errorResult(err), nil
	}

	m, err := s.deps.Bus.Send(ctx, t.OrganizationID, service.SendRequest{
		From:     argString(args, "from"),
		To:       argString(args, "to"),
		Type:     agent.MessageType(argString(args, "type")),
		Priority: agent.Priority(argString(args, "priority")),
		Channel:  argString(args, "channel"),
		ReplyTo:  argString(args, "reply_to"),
		Payload:  payload,
	})

	s.record(t, &activity.Event{Type: activity.EventAgentMessageSent, ToolName: "quoth_agent_message"}, started)

	if err != nil {
		return errorResult(err), nil
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.BusMessages.Add(ctx, 1)
	}
	return mcplib.NewToolResultText(fmt.Sprintf(
		"Message %s queued (%s, priority %s).", m.ID, m.Type, m.Priority)), nil
}

func (s *Server) agentInboxTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_agent_inbox",
		mcplib.WithDescription("Read an agent's inbox, newest first, optionally marking the returned messages read."),
		mcplib.WithString("agent",
			mcplib.Required(),
			mcplib.Description("Agent id or name"),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Max messages to return; defaults to 10"),
		),
		mcplib.WithString("status",
			mcplib.Description("Filter by delivery state"),
			mcplib.Enum("pending", "delivered", "read", "failed"),
		),
		mcplib.WithBoolean("mark_read",
			mcplib.Description("Flip the returned messages to read"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAgentInbox}
}

func (s *Server) handleAgentInbox(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	messages, err := s.deps.Bus.Inbox(ctx, t.OrganizationID, argString(args, "agent"),
		argInt(args, "limit"), agent.MessageStatus(argString(args, "status")), argBool(args, "mark_read"))

	s.record(t, &activity.Event{Type: activity.EventAgentInboxRead, ToolName: "quoth_agent_inbox"}, started)

	if err != nil {
		return errorResult(err), nil
	}
	if len(messages) == 0 {
		return mcplib.NewToolResultText("Inbox is empty."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d message(s):\n\n", len(messages))
	for _, m := range messages {
		from := m.FromName
		if m.FromDisplayName != "" {
			from = m.FromDisplayName
		}
		fmt.Fprintf(&b, "--- %s  from %s  [%s/%s/%s]", m.CreatedAt.Format(time.RFC3339), from, m.Type, m.Priority, m.Status)
		if m.Channel != "" {
			fmt.Fprintf(&b, "  #%s", m.Channel)
		}
		fmt.Fprintf(&b, "  id=%s ---\n", m.ID)
		b.Write(m.Payload)
		b.WriteString("\n\n")
	}
	return mcplib.NewToolResultText(b.String()), nil
}

func (s *Server) taskCreateTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_task_create",
		mcplib.WithDescription("Create a task for an agent. Priority is 1 (highest) to 5; default 3."),
		mcplib.WithString("assigned_to",
			mcplib.Required(),
			mcplib.Description("Assignee agent id or name"),
		),
		mcplib.WithString("title",
			mcplib.Required(),
			mcplib.Description("Task title (max 512 characters)"),
		),
		mcplib.WithString("description",
			mcplib.Description("Longer task description"),
		),
		mcplib.WithNumber("priority",
			mcplib.Description("1 (highest) to 5; defaults to 3"),
		),
		mcplib.WithString("deadline",
			mcplib.Description("RFC 3339 deadline, e.g. 2026-09-01T12:00:00Z"),
		),
		mcplib.WithString("created_by",
			mcplib.Description("Creating agent id or name, if a different agent files the task"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleTaskCreate}
}

func (s *Server) handleTaskCreate(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	createReq := service.CreateTaskRequest{
		AssignedTo:  argString(args, "assigned_to"),
		CreatedBy:   argString(args, "created_by"),
		Title:       argString(args, "title"),
		Description: argString(args, "description"),
		Priority:    argInt(args, "priority"),
	}
	if createReq.CreatedBy == "" {
		createReq.CreatedBy = t.UserID
	}
	if raw := argString(args, "deadline"); raw != "" {
		deadline, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcplib.NewToolResultError("deadline must be RFC 3339, e.g. 2026-09-01T12:00:00Z"), nil
		}
		createReq.Deadline = &deadline
	}

	task, err := s.deps.Bus.CreateTask(ctx, t.OrganizationID, createReq)

	s.record(t, &activity.Event{Type: activity.EventAgentTaskCreated, ToolName: "quoth_task_create"}, started)

	if err != nil {
		return errorResult(err), nil
	}
	return mcplib.NewToolResultText(fmt.Sprintf(
		"Task %s created (priority %d, status %s).", task.ID, task.Priority, task.Status)), nil
}

func (s *Server) taskUpdateTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quoth_task_update",
		mcplib.WithDescription("Advance a task through its lifecycle: pending to in_progress, then done, failed, or cancelled."),
		mcplib.WithString("task_id",
			mcplib.Required(),
			mcplib.Description("The task to update"),
		),
		mcplib.WithString("status",
			mcplib.Description("New status"),
			mcplib.Enum("in_progress", "done", "failed", "cancelled"),
		),
		mcplib.WithString("result",
			mcplib.Description("Outcome text, usually set with a terminal status"),
		),
		mcplib.WithNumber("priority",
			mcplib.Description("New priority, 1 (highest) to 5"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleTaskUpdate}
}

func (s *Server) handleTaskUpdate(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	started := time.Now()
	_, t, err := s.tenant(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	args := req.GetArguments()
	var upd agent.TaskUpdate
	if v := argString(args, "status"); v != "" {
		status := agent.TaskStatus(v)
		upd.Status = &status
	}
	if v, ok := args["result"].(string); ok {
		upd.Result = &v
	}
	if v := argInt(args, "priority"); v > 0 {
		upd.Priority = &v
	}

	task, err := s.deps.Bus.UpdateTask(ctx, t.OrganizationID, argString(args, "task_id"), upd)

	s.record(t, &activity.Event{Type: activity.EventAgentTaskUpdated, ToolName: "quoth_task_update"}, started)

	if err != nil {
		return errorResult(err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task %s is now %s.", task.ID, task.Status)
	if task.StartedAt != nil {
		fmt.Fprintf(&b, " Started %s.", task.StartedAt.Format(time.RFC3339))
	}
	if task.CompletedAt != nil {
		fmt.Fprintf(&b, " Completed %s.", task.CompletedAt.Format(time.RFC3339))
	}
	return mcplib.NewToolResultText(b.String()), nil
}
