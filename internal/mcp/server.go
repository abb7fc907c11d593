// Package mcp exposes script analysis as Model Context Protocol tools, so an
// editor or agent can ask the reader panel for feedback and read back the
// comment threads it left.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"cohorte/api/internal/persona"
	"cohorte/api/internal/threads"
	"cohorte/api/internal/workspace"
)

type ServerConfig struct {
	Workspace *workspace.Workspace
	Version   string
}

// NewServer creates an MCP server with the analysis tools registered.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	s := server.NewMCPServer(
		"Cohorte",
		ver,
		server.WithToolCapabilities(false),
	)
	registerAnalyzeTool(s, cfg.Workspace)
	registerListThreadsTool(s, cfg.Workspace)
	return s
}

func registerAnalyzeTool(s *server.MCPServer, ws *workspace.Workspace) {
	tool := mcp.NewTool("analyze_script",
		mcp.WithDescription("Run a panel of reader personas over a script and return their line-anchored feedback. With a document_id the feedback is also stored as comment threads."),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Full script text"),
		),
		mcp.WithString("document_id",
			mcp.Description("Document to attach the feedback threads to. Empty = analyze without storing."),
		),
		mcp.WithString("personas_file",
			mcp.Description("Path to a YAML population file. Empty = a single neutral reader."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcp.NewToolResultError("text is required"), nil
		}
		in := workspace.Input{Text: text}
		if id, err := req.RequireString("document_id"); err == nil {
			in.DocumentID = strings.TrimSpace(id)
		}
		if path, err := req.RequireString("personas_file"); err == nil && strings.TrimSpace(path) != "" {
			population, err := persona.LoadFile(strings.TrimSpace(path))
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			in.Personas = population.Personas
		}

		report, err := ws.Analyze(ctx, in)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
		}
		return jsonResult(report)
	})
}

func registerListThreadsTool(s *server.MCPServer, ws *workspace.Workspace) {
	tool := mcp.NewTool("list_threads",
		mcp.WithDescription("List the comment threads stored for a document, ordered by position in the script."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Document id used when the script was analyzed"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, err := req.RequireString("document_id")
		if err != nil || strings.TrimSpace(documentID) == "" {
			return mcp.NewToolResultError("document_id is required"), nil
		}
		items, err := ws.Threads(ctx, strings.TrimSpace(documentID))
		if err != nil {
			if errors.Is(err, threads.ErrNotFound) {
				return mcp.NewToolResultError("document not found"), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("list threads failed: %v", err)), nil
		}
		return jsonResult(map[string]any{
			"documentId": strings.TrimSpace(documentID),
			"count":      len(items),
			"threads":    items,
		})
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
