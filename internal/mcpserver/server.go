// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes attic tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"github.com/starford/attic/internal/attachservice"
)

const settingsURI = "attic://settings"

// Server wraps the MCP server with attic tools.
type Server struct {
	mcp *server.MCPServer
	svc *attachservice.Service
}

// New creates a new MCP server with all attic tools registered.
func New(svc *attachservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"attic",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("plan_organize",
		mcp.WithDescription("Preview which attachments an organize pass would move and where. Changes nothing."),
	), s.planOrganize)

	s.mcp.AddTool(mcp.NewTool("organize",
		mcp.WithDescription("Move misplaced attachments into the attachment folder according to the layout "+
			"settings and update links in notes. Call plan_organize first."),
	), s.organize)

	s.mcp.AddTool(mcp.NewTool("find_unlinked",
		mcp.WithDescription("List attachments that no note refers to."),
	), s.findUnlinked)

	s.mcp.AddTool(mcp.NewTool("purge_unlinked",
		mcp.WithDescription("Delete unlinked attachments (to the vault trash unless disabled in settings). "+
			"Every path is re-checked first; nothing is deleted if one became linked."),
		mcp.WithString("paths", mcp.Description("Comma or newline separated vault paths from find_unlinked")),
		mcp.WithBoolean("all", mcp.Description("Purge every unlinked attachment when paths is empty")),
	), s.purgeUnlinked)

	s.mcp.AddTool(mcp.NewTool("move_folder",
		mcp.WithDescription("Move every attachment below one folder into another, keeping subfolders."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Source folder (vault-relative)")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Target folder (vault-relative)")),
	), s.moveFolder)

	s.mcp.AddTool(mcp.NewTool("ocr_file",
		mcp.WithDescription("Transcribe an image or PDF into a Markdown note in the OCR output folder."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault path of the image or PDF")),
	), s.ocrFile)

	s.mcp.AddTool(mcp.NewTool("add_to_inbox",
		mcp.WithDescription("Store a base64 data URI (png, jpeg, gif, webp, pdf) in the OCR watch folder. "+
			"Set transcribe to run OCR on it immediately."),
		mcp.WithString("data_uri", mcp.Required(), mcp.Description("data:<mime>;base64,<payload>")),
		mcp.WithString("filename", mcp.Description("Optional file name; derived from the MIME type when empty")),
		mcp.WithBoolean("transcribe", mcp.Description("Transcribe right after saving")),
	), s.addToInbox)

	// Resource: current settings document.
	s.mcp.AddResource(
		mcp.NewResource(settingsURI, "attic settings",
			mcp.WithResourceDescription("Current organizer settings document."),
			mcp.WithMIMEType("application/yaml"),
		),
		s.readSettingsResource,
	)

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

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) planOrganize(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	plan, err := s.svc.Plan(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(plan), nil
}

func (s *Server) organize(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Organize(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) findUnlinked(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := s.svc.FindUnlinked(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(files) == 0 {
		return mcp.NewToolResultText("no unlinked attachments"), nil
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) purgeUnlinked(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := splitPaths(req.GetString("paths", ""))
	if len(paths) == 0 && !req.GetBool("all", false) {
		return mcp.NewToolResultError("paths or all is required"), nil
	}
	res, err := s.svc.PurgeUnlinked(ctx, paths)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) moveFolder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.MoveFolder(ctx, from, to)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) ocrFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ProcessOCRFile(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) readSettingsResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	cfg := s.svc.Settings()
	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode settings: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      settingsURI,
			MIMEType: "application/yaml",
			Text:     string(out),
		},
	}, nil
}

// splitPaths splits a comma or newline separated list, dropping blanks.
func splitPaths(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' })
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
