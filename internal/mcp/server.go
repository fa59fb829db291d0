package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/bugboard/internal/apierr"
	"github.com/joescharf/bugboard/internal/bugs"
	"github.com/joescharf/bugboard/internal/models"
)

// Server exposes the bug service as MCP tools.
type Server struct {
	svc     *bugs.Service
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *bugs.Service, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{svc: svc, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("bugboard", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listBugsTool())
	srv.AddTool(s.getBugTool())
	srv.AddTool(s.createBugTool())
	srv.AddTool(s.updateBugTool())
	srv.AddTool(s.deleteBugTool())
	srv.AddTool(s.searchBugsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

const (
	statusHelp   = "Status: open, in-progress, resolved, closed"
	priorityHelp = "Priority: low, medium, high, critical"
)

// bugFieldOptions are the writable fields shared by create and update.
func bugFieldOptions(requireCreate bool) []mcp.ToolOption {
	required := func(desc string) []mcp.PropertyOption {
		opts := []mcp.PropertyOption{mcp.Description(desc)}
		if requireCreate {
			opts = append(opts, mcp.Required())
		}
		return opts
	}
	return []mcp.ToolOption{
		mcp.WithString("title", required("Short summary, at most 100 characters")...),
		mcp.WithString("description", required("Full description, at most 1000 characters")...),
		mcp.WithString("reporter", required("Who reported the bug")...),
		mcp.WithString("status", mcp.Description(statusHelp+" (default: open)")),
		mcp.WithString("priority", mcp.Description(priorityHelp+" (default: medium)")),
		mcp.WithArray("stepsToReproduce", mcp.Description("Ordered reproduction steps"), mcp.WithStringItems()),
		mcp.WithString("expectedBehavior", mcp.Description("What should happen")),
		mcp.WithString("actualBehavior", mcp.Description("What happens instead")),
		mcp.WithString("assignee", mcp.Description("Who is working on it")),
		mcp.WithArray("tags", mcp.Description("Free-form labels"), mcp.WithStringItems()),
		mcp.WithString("os", mcp.Description("Operating system where the bug was seen")),
		mcp.WithString("browser", mcp.Description("Browser where the bug was seen")),
		mcp.WithString("device", mcp.Description("Device where the bug was seen")),
	}
}

// bug_list
func (s *Server) listBugsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("bug_list",
		mcp.WithDescription("List bugs newest first, one page at a time. Returns {bugs, totalPages, currentPage, total}. Unknown filter values are ignored."),
		mcp.WithString("status", mcp.Description(statusHelp)),
		mcp.WithString("priority", mcp.Description(priorityHelp)),
		mcp.WithNumber("page", mcp.Description("1-based page number (default: 1)")),
		mcp.WithNumber("limit", mcp.Description("Page size (default: 10, max: 100)")),
	)
	return tool, s.handleListBugs
}

func (s *Server) handleListBugs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	filters := map[string]string{
		"status":   request.GetString("status", ""),
		"priority": request.GetString("priority", ""),
	}
	res, err := s.svc.List(ctx, filters, argString(args, "page"), argString(args, "limit"))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

// bug_get
func (s *Server) getBugTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("bug_get",
		mcp.WithDescription("Get one bug by ID. Returns the full bug record as JSON."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Bug ID (ULID)")),
	)
	return tool, s.handleGetBug
}

func (s *Server) handleGetBug(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	b, err := s.svc.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(b)
}

// bug_create
func (s *Server) createBugTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Report a new bug. Returns the created bug as JSON, including its assigned ID."),
	}, bugFieldOptions(true)...)
	return mcp.NewTool("bug_create", opts...), s.handleCreateBug
}

func (s *Server) handleCreateBug(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := inputFromArgs(request.GetArguments())
	if err != nil {
		return toolError(err), nil
	}
	b, err := s.svc.Create(ctx, in)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(b)
}

// bug_update
func (s *Server) updateBugTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Update an existing bug. Only the provided fields change. Returns the updated bug as JSON."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Bug ID (ULID)")),
	}, bugFieldOptions(false)...)
	return mcp.NewTool("bug_update", opts...), s.handleUpdateBug
}

func (s *Server) handleUpdateBug(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	in, err := inputFromArgs(request.GetArguments())
	if err != nil {
		return toolError(err), nil
	}
	b, err := s.svc.Update(ctx, id, in)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(b)
}

// bug_delete
func (s *Server) deleteBugTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("bug_delete",
		mcp.WithDescription("Permanently delete a bug."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Bug ID (ULID)")),
	)
	return tool, s.handleDeleteBug
}

func (s *Server) handleDeleteBug(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	res, err := s.svc.Delete(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

// bug_search
func (s *Server) searchBugsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("bug_search",
		mcp.WithDescription("Full-text search over bug titles and descriptions. Returns matching bugs, most relevant first."),
		mcp.WithString("q", mcp.Required(), mcp.Description("Search words; any word may match")),
	)
	return tool, s.handleSearchBugs
}

func (s *Server) handleSearchBugs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	found, err := s.svc.Search(ctx, request.GetString("q", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(found)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var envKeys = []string{"os", "browser", "device"}

// inputFromArgs decodes tool arguments through the same JSON shape the HTTP
// API accepts, so both surfaces share field names and type errors. The flat
// os/browser/device arguments patch single environment keys.
func inputFromArgs(args map[string]any) (models.BugInput, error) {
	var in models.BugInput
	payload := make(map[string]any, len(args))
	env := &models.EnvironmentPatch{}
	for k, v := range args {
		switch {
		case k == "id":
		case slices.Contains(envKeys, k):
			if v == nil {
				continue
			}
			sv, ok := v.(string)
			if !ok {
				return in, apierr.BadRequest(fmt.Sprintf("Invalid value for %s", k))
			}
			switch k {
			case "os":
				env.OS = &sv
			case "browser":
				env.Browser = &sv
			case "device":
				env.Device = &sv
			}
		default:
			payload[k] = v
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return in, apierr.BadRequest("Invalid arguments")
	}
	if err := json.Unmarshal(data, &in); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return in, apierr.BadRequest(fmt.Sprintf("Invalid value for %s", typeErr.Field))
		}
		return in, apierr.BadRequest("Invalid arguments")
	}
	in.StepsToReproduce = models.CompactSteps(in.StepsToReproduce)
	if !env.Empty() {
		in.EnvPatch = env
	}
	return in, nil
}

// toolError renders err with the same message an HTTP caller would see.
func toolError(err error) *mcp.CallToolResult {
	_, body := apierr.Normalize(err, false)
	msg := body.Error
	if len(body.Details) > 0 {
		msg += ": " + strings.Join(body.Details, "; ")
	}
	return mcp.NewToolResultError(msg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// argString renders a numeric or string argument the way a query string would carry it.
func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
