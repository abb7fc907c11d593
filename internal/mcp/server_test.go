package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/server"

	"cohorte/api/internal/feedback"
	"cohorte/api/internal/llm"
	"cohorte/api/internal/store"
	"cohorte/api/internal/threads"
	"cohorte/api/internal/workspace"
)

const script = "INT. KITCHEN - NIGHT\nShe drops the plate.\n\nHe laughs."

func setupTestServer(t *testing.T) *server.MCPServer {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "cohorte.db"))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	ws := workspace.New(feedback.NewRequester(llm.NewMock(), nil, nil), st, 2, 10)
	return NewServer(ServerConfig{Workspace: ws, Version: "test"})
}

type toolResponse struct {
	Text    string
	IsError bool
}

// callTool sends a tools/call request through the JSON-RPC entry point.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	result := srv.HandleMessage(context.Background(), msg)

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	out := toolResponse{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			out.Text += c.Text
		}
	}
	return out
}

func TestNewServer(t *testing.T) {
	if srv := setupTestServer(t); srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestAnalyzeScriptTool(t *testing.T) {
	srv := setupTestServer(t)
	resp := callTool(t, srv, "analyze_script", map[string]any{
		"text":        script,
		"document_id": "kitchen",
	})
	if resp.IsError {
		t.Fatalf("unexpected tool error: %s", resp.Text)
	}

	var report workspace.Report
	if err := json.Unmarshal([]byte(resp.Text), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, resp.Text)
	}
	if report.DocumentID != "kitchen" || len(report.Analyses) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Threads) == 0 {
		t.Fatal("expected threads for a stored document")
	}

	listed := callTool(t, srv, "list_threads", map[string]any{"document_id": "kitchen"})
	if listed.IsError {
		t.Fatalf("unexpected tool error: %s", listed.Text)
	}
	var payload struct {
		Count   int              `json:"count"`
		Threads []threads.Thread `json:"threads"`
	}
	if err := json.Unmarshal([]byte(listed.Text), &payload); err != nil {
		t.Fatalf("decode threads: %v", err)
	}
	if payload.Count != len(report.Threads) || len(payload.Threads) != payload.Count {
		t.Fatalf("expected %d threads, got %d", len(report.Threads), payload.Count)
	}
}

func TestAnalyzeScriptWithPopulationFile(t *testing.T) {
	srv := setupTestServer(t)
	path := filepath.Join(t.TempDir(), "panel.yaml")
	population := "name: Panel\npersonas:\n  - id: p1\n    first_name: Inès\n  - id: p2\n    first_name: Tom\n"
	if err := os.WriteFile(path, []byte(population), 0o600); err != nil {
		t.Fatalf("write population: %v", err)
	}

	resp := callTool(t, srv, "analyze_script", map[string]any{"text": script, "personas_file": path})
	if resp.IsError {
		t.Fatalf("unexpected tool error: %s", resp.Text)
	}
	var report workspace.Report
	if err := json.Unmarshal([]byte(resp.Text), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(report.Analyses) != 2 {
		t.Fatalf("expected 2 analyses, got %d", len(report.Analyses))
	}
	if len(report.Threads) != 0 {
		t.Fatal("analysis without document_id must not store threads")
	}
}

func TestAnalyzeScriptToolErrors(t *testing.T) {
	srv := setupTestServer(t)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing text", map[string]any{}, "text is required"},
		{"blank text", map[string]any{"text": "   "}, "text is required"},
		{"bad population", map[string]any{"text": script, "personas_file": "/does/not/exist.yaml"}, "read population"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := callTool(t, srv, "analyze_script", tt.args)
			if !resp.IsError {
				t.Fatalf("expected tool error, got %s", resp.Text)
			}
			if !strings.Contains(resp.Text, tt.want) {
				t.Fatalf("expected %q in %q", tt.want, resp.Text)
			}
		})
	}
}

func TestListThreadsRequiresDocument(t *testing.T) {
	srv := setupTestServer(t)
	resp := callTool(t, srv, "list_threads", map[string]any{})
	if !resp.IsError || !strings.Contains(resp.Text, "document_id is required") {
		t.Fatalf("expected document_id error, got %+v", resp)
	}

	empty := callTool(t, srv, "list_threads", map[string]any{"document_id": "unknown"})
	if empty.IsError {
		t.Fatalf("unexpected error: %s", empty.Text)
	}
	if !strings.Contains(empty.Text, `"count": 0`) {
		t.Fatalf("expected empty listing, got %s", empty.Text)
	}
}
