// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes triage tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/focusguard/internal/policy"
	"github.com/starford/focusguard/internal/triage"
)

// Server wraps the MCP server with FocusGuard tools.
type Server struct {
	mcp *server.MCPServer
	svc *triage.Service
}

// New creates a new MCP server with all triage tools registered.
func New(svc *triage.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"FocusGuard",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_senders",
		mcp.WithDescription("List known senders with their category and message count."),
	), s.listSenders)

	s.mcp.AddTool(mcp.NewTool("categorize_sender",
		mcp.WithDescription("Assign a category (unknown, primary, vip, spam) to a sender. "+
			"VIP senders bypass suppression during focus sessions."),
		mcp.WithString("sender_id", mcp.Required(), mcp.Description("Sender key in app:name form (e.g. com.whatsapp:Mom)")),
		mcp.WithString("category", mcp.Required(), mcp.Description("One of: unknown, primary, vip, spam")),
	), s.categorizeSender)

	s.mcp.AddTool(mcp.NewTool("recent_notifications",
		mcp.WithDescription("List recently logged notifications, newest first. Only sender and time; never message content."),
		mcp.WithNumber("limit", mcp.Description("Maximum entries to return (default 20)")),
	), s.recentNotifications)

	s.mcp.AddTool(mcp.NewTool("focus_status",
		mcp.WithDescription("Report whether focus mode is active plus session and daily focus time."),
	), s.focusStatus)

	s.mcp.AddTool(mcp.NewTool("set_focus_mode",
		mcp.WithDescription("Turn focus mode on or off."),
		mcp.WithBoolean("active", mcp.Required(), mcp.Description("Desired focus state")),
	), s.setFocusMode)

	s.mcp.AddTool(mcp.NewTool("clear_notifications",
		mcp.WithDescription("Clear the notification log. Sender categorizations are kept."),
	), s.clearNotifications)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listSenders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	senders, err := s.svc.Senders(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(senders, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) categorizeSender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("sender_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawCat, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cat, err := policy.ParseCategory(rawCat)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.CategorizeSender(ctx, key, cat); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("categorized %s as %s", key, cat)), nil
}

func (s *Server) recentNotifications(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	rows, err := s.svc.Notifications(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultText("no notifications logged"), nil
	}
	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "%s  %s\n", row.ReceivedAt.Format("2006-01-02 15:04:05"), row.SenderKey())
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) focusStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, summary, err := s.svc.FocusMetrics(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{
		"active":             m.Active,
		"current_session_ms": m.CurrentSession.Milliseconds(),
		"daily_total_ms":     m.DailyTotal.Milliseconds(),
		"summary":            summary,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) setFocusMode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	active, err := req.RequireBool("active")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.SetFocusActive(ctx, active); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state := "off"
	if active {
		state = "on"
	}
	return mcp.NewToolResultText("focus mode is now " + state), nil
}

func (s *Server) clearNotifications(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.svc.ClearAllNotifications(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("notification log cleared"), nil
}
