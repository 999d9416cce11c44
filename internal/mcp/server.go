package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/store"
)

// MCPServer represents the MCP server that handles protocol communication.
type MCPServer struct {
	store    *store.Store
	engine   *core.Engine
	logger   *slog.Logger
	location *time.Location

	buildOnce sync.Once
	inner     *server.MCPServer
	httpSrv   *server.StreamableHTTPServer
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(store *store.Store, engine *core.Engine, logger *slog.Logger, location *time.Location) *MCPServer {
	return &MCPServer{
		store:    store,
		engine:   engine,
		logger:   logger,
		location: location,
	}
}

func (s *MCPServer) build() {
	s.buildOnce.Do(func() {
		inner := server.NewMCPServer(
			"autolauncher",
			"1.0.0",
			server.WithToolCapabilities(true),
		)
		s.registerTools(inner)
		s.inner = inner
		s.httpSrv = server.NewStreamableHTTPServer(inner)
	})
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	s.build()
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(s.inner)
}

// ServeHTTP serves the MCP protocol over the streamable HTTP transport.
func (s *MCPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.build()
	s.httpSrv.ServeHTTP(w, r)
}

// registerTools registers all available MCP tools.
func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("launcher_create_task",
		mcp.WithDescription("Schedule an executable to launch at a future time. Trigger kinds: once, hourly, daily, weekly"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Display name for the task"),
		),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Path to the executable or shortcut to launch"),
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Trigger kind"),
			mcp.Enum("once", "hourly", "daily", "weekly"),
		),
		mcp.WithString("at",
			mcp.Description("RFC3339 timestamp for one-time triggers"),
		),
		mcp.WithNumber("minute",
			mcp.Description("Minute of the hour (recurring triggers)"),
			mcp.Min(0),
			mcp.Max(59),
		),
		mcp.WithNumber("hour",
			mcp.Description("Hour of the day (daily and weekly triggers)"),
			mcp.Min(0),
			mcp.Max(23),
		),
		mcp.WithNumber("weekday",
			mcp.Description("Day of the week, 0=Sunday (weekly triggers)"),
			mcp.Min(0),
			mcp.Max(6),
		),
		mcp.WithBoolean("aggressive",
			mcp.Description("Fire late occurrences immediately instead of waiting for user idle"),
		),
		mcp.WithNumber("wake_lead_minutes",
			mcp.Description("Wake the machine this many minutes before the due time (1-15, 0 disables)"),
			mcp.Min(0),
			mcp.Max(15),
		),
		mcp.WithBoolean("sleep_after",
			mcp.Description("Put the machine to sleep after the launched program exits"),
		),
	), s.handleCreateTask)

	mcpServer.AddTool(mcp.NewTool("launcher_list_tasks",
		mcp.WithDescription("List all scheduled tasks"),
	), s.handleListTasks)

	mcpServer.AddTool(mcp.NewTool("launcher_get_task",
		mcp.WithDescription("Get task details"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleGetTask)

	mcpServer.AddTool(mcp.NewTool("launcher_delete_task",
		mcp.WithDescription("Delete a task. A launch already in flight keeps running"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleDeleteTask)

	mcpServer.AddTool(mcp.NewTool("launcher_pause_task",
		mcp.WithDescription("Pause a task. Its due time is frozen, not recomputed"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handlePauseTask)

	mcpServer.AddTool(mcp.NewTool("launcher_resume_task",
		mcp.WithDescription("Resume a paused task. A due time missed while paused fires once immediately"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleResumeTask)

	mcpServer.AddTool(mcp.NewTool("launcher_run_task",
		mcp.WithDescription("Launch the task's target immediately"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleRunTask)

	mcpServer.AddTool(mcp.NewTool("launcher_list_events",
		mcp.WithDescription("Show the execution log"),
		mcp.WithString("task_id",
			mcp.Description("Filter by task ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of events to return, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleListEvents)

	mcpServer.AddTool(mcp.NewTool("launcher_preview_trigger",
		mcp.WithDescription("Preview the next firing times of a trigger"),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Trigger kind"),
			mcp.Enum("once", "hourly", "daily", "weekly"),
		),
		mcp.WithString("at",
			mcp.Description("RFC3339 timestamp for one-time triggers"),
		),
		mcp.WithNumber("minute",
			mcp.Description("Minute of the hour"),
			mcp.Min(0),
			mcp.Max(59),
		),
		mcp.WithNumber("hour",
			mcp.Description("Hour of the day"),
			mcp.Min(0),
			mcp.Max(23),
		),
		mcp.WithNumber("weekday",
			mcp.Description("Day of the week, 0=Sunday"),
			mcp.Min(0),
			mcp.Max(6),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of firing times to return, default 5"),
			mcp.Min(1),
			mcp.Max(10),
		),
	), s.handlePreviewTrigger)

	s.logger.Info("MCP tools registered", "count", 9)
}

func (s *MCPServer) parseTrigger(request mcp.CallToolRequest) (core.Trigger, error) {
	trigger := core.Trigger{
		Kind:    core.TriggerKind(mcp.ParseString(request, "kind", "")),
		Minute:  int(mcp.ParseFloat64(request, "minute", 0)),
		Hour:    int(mcp.ParseFloat64(request, "hour", 0)),
		Weekday: time.Weekday(mcp.ParseFloat64(request, "weekday", 0)),
	}
	if atStr := mcp.ParseString(request, "at", ""); atStr != "" {
		at, err := time.Parse(time.RFC3339, atStr)
		if err != nil {
			return core.Trigger{}, fmt.Errorf("invalid at timestamp: %w", err)
		}
		trigger.At = &at
	}
	return trigger, nil
}

// handleCreateTask handles the launcher_create_task tool call.
func (s *MCPServer) handleCreateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	trigger, err := s.parseTrigger(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	task := &core.Task{
		Name:       mcp.ParseString(request, "name", ""),
		Target:     mcp.ParseString(request, "target", ""),
		Trigger:    trigger,
		Enabled:    true,
		Aggressive: mcp.ParseBoolean(request, "aggressive", false),
		Wake:       core.WakePolicy{LeadMinutes: int(mcp.ParseFloat64(request, "wake_lead_minutes", 0))},
		SleepAfter: mcp.ParseBoolean(request, "sleep_after", false),
	}

	if err := s.engine.AddTask(ctx, task); err != nil {
		s.logger.Error("mcp create task", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to create task: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task created\nID: %s\nSchedule: %s\nNext launch: %s",
		task.ID,
		task.Trigger.Describe(),
		s.formatTime(task.NextRunAt),
	)), nil
}

// handleListTasks handles the launcher_list_tasks tool call.
func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks := s.engine.ListTasks()
	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tasks:\n\n", len(tasks))
	for _, t := range tasks {
		state := "enabled"
		switch {
		case !t.Enabled:
			state = "disabled"
		case t.Paused:
			state = "paused"
		case s.engine.Running(t.ID):
			state = "running"
		}
		fmt.Fprintf(&b, "[%s] %s\n", state, t.ID)
		fmt.Fprintf(&b, "  Name: %s\n", t.Name)
		fmt.Fprintf(&b, "  Target: %s\n", t.Target)
		fmt.Fprintf(&b, "  Schedule: %s\n", t.Trigger.Describe())
		if t.NextRunAt != nil {
			fmt.Fprintf(&b, "  Next launch: %s\n", s.formatTime(t.NextRunAt))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

// handleGetTask handles the launcher_get_task tool call.
func (s *MCPServer) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, err := s.engine.GetTask(taskID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task ID: %s\n", task.ID)
	fmt.Fprintf(&b, "Name: %s\n", task.Name)
	fmt.Fprintf(&b, "Target: %s\n", task.Target)
	fmt.Fprintf(&b, "Schedule: %s\n", task.Trigger.Describe())
	fmt.Fprintf(&b, "Enabled: %t\n", task.Enabled)
	fmt.Fprintf(&b, "Paused: %t\n", task.Paused)
	fmt.Fprintf(&b, "Aggressive: %t\n", task.Aggressive)
	if task.Wake.LeadMinutes > 0 {
		fmt.Fprintf(&b, "Wake lead: %d minutes\n", task.Wake.LeadMinutes)
	}
	fmt.Fprintf(&b, "Sleep after: %t\n", task.SleepAfter)
	if task.LastRunAt != nil {
		fmt.Fprintf(&b, "Last launch: %s\n", s.formatTime(task.LastRunAt))
	}
	if task.NextRunAt != nil {
		fmt.Fprintf(&b, "Next launch: %s\n", s.formatTime(task.NextRunAt))
	}
	fmt.Fprintf(&b, "Created: %s\n", s.formatTime(&task.CreatedAt))
	return mcp.NewToolResultText(b.String()), nil
}

// handleDeleteTask handles the launcher_delete_task tool call.
func (s *MCPServer) handleDeleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if err := s.engine.DeleteTask(ctx, taskID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete task: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task deleted: %s", taskID)), nil
}

// handlePauseTask handles the launcher_pause_task tool call.
func (s *MCPServer) handlePauseTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if err := s.engine.PauseTask(ctx, taskID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to pause task: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task paused: %s", taskID)), nil
}

// handleResumeTask handles the launcher_resume_task tool call.
func (s *MCPServer) handleResumeTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if err := s.engine.ResumeTask(ctx, taskID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resume task: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task resumed: %s", taskID)), nil
}

// handleRunTask handles the launcher_run_task tool call.
func (s *MCPServer) handleRunTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	run, err := s.engine.RunNow(ctx, taskID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to launch task: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Launch started\nTask ID: %s\nRun ID: %s", taskID, run.ID)), nil
}

// handleListEvents handles the launcher_list_events tool call.
func (s *MCPServer) handleListEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	limit := int(mcp.ParseFloat64(request, "limit", 20))

	events, err := s.store.ListEvents(ctx, taskID, limit, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list events: %v", err)), nil
	}
	if len(events) == 0 {
		return mcp.NewToolResultText("No events recorded"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d events:\n\n", len(events))
	for _, e := range events {
		fmt.Fprintf(&b, "%s  %-9s %s", e.CreatedAt.In(s.location).Format("2006-01-02 15:04:05"), e.Type, e.TaskName)
		if e.Detail != "" {
			fmt.Fprintf(&b, " (%s)", e.Detail)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

// handlePreviewTrigger handles the launcher_preview_trigger tool call.
func (s *MCPServer) handlePreviewTrigger(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	trigger, err := s.parseTrigger(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := trigger.Validate(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid trigger: %v", err)), nil
	}

	count := int(mcp.ParseFloat64(request, "count", 5))

	now := time.Now().In(s.location)
	nextTimes, err := core.NextOccurrences(trigger, now, count)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("preview failed: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Schedule: %s\n", trigger.Describe())
	fmt.Fprintf(&b, "Time zone: %s\n\n", s.location)
	b.WriteString("Upcoming launches:\n")
	for i, t := range nextTimes {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, t.In(s.location).Format("2006-01-02 15:04:05"))
	}
	if len(nextTimes) == 0 {
		b.WriteString("  (none; the trigger is already spent)\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.In(s.location).Format("2006-01-02 15:04:05")
}
