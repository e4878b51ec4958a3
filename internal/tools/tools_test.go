package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/endpointgen/internal/build"
	"github.com/DeusData/endpointgen/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	cfg := config.Default(t.TempDir())
	writeFile(t, filepath.Join(cfg.SourceDir, "tasks", "list.ts"),
		`export default endpoint.get<Task[]>({ name: "listTasks", handler: async () => [] });`)
	writeFile(t, filepath.Join(cfg.SourceDir, "tasks", "create.ts"),
		`export default endpoint.post({ name: "createTask", maxRetries: 2, handler: async () => null });`)
	writeFile(t, filepath.Join(cfg.SourceDir, "search.ts"),
		`export default endpoint.get({ name: "search" });`)
	writeFile(t, filepath.Join(cfg.SourceDir, "broken.ts"),
		`export default endpoint.get({});`)
	return NewServer(build.New(cfg), "test"), cfg
}

func call(t *testing.T, handler func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error), args string) map[string]any {
	t.Helper()
	req := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(args)}}
	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if res.IsError {
		t.Fatalf("tool error: %s", text)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("decode %q: %v", text, err)
	}
	return out
}

func TestGenerateTool(t *testing.T) {
	s, cfg := newTestServer(t)

	out := call(t, s.handleGenerate, `{}`)
	if out["status"] != "rebuilt" || out["endpoints"] != float64(3) || out["route_files"] != float64(1) {
		t.Errorf("first generate = %v", out)
	}
	if warnings, _ := out["warnings"].([]any); len(warnings) != 1 {
		t.Errorf("warnings = %v", out["warnings"])
	}
	if _, err := os.Stat(filepath.Join(cfg.OutDir, "api.ts")); err != nil {
		t.Error("api.ts not written")
	}

	if out := call(t, s.handleGenerate, `{}`); out["status"] != "unchanged" {
		t.Errorf("second generate status = %v", out["status"])
	}
	if out := call(t, s.handleGenerate, `{"force": true}`); out["status"] != "rebuilt" {
		t.Errorf("forced generate status = %v", out["status"])
	}
}

func TestListEndpointsTool(t *testing.T) {
	s, _ := newTestServer(t)

	out := call(t, s.handleListEndpoints, `{}`)
	if out["count"] != float64(3) {
		t.Errorf("count = %v", out["count"])
	}

	out = call(t, s.handleListEndpoints, `{"method": "POST"}`)
	eps, _ := out["endpoints"].([]any)
	if len(eps) != 1 {
		t.Fatalf("endpoints = %v", eps)
	}
	ep := eps[0].(map[string]any)
	if ep["name"] != "createTask" || ep["route"] != "/api/tasks" || ep["max_retries"] != float64(2) {
		t.Errorf("endpoint = %v", ep)
	}

	out = call(t, s.handleListEndpoints, `{"route_prefix": "/api/search"}`)
	if out["count"] != float64(1) {
		t.Errorf("prefix filter count = %v", out["count"])
	}
}

func TestListEndpointsDropsDuplicateNames(t *testing.T) {
	s, cfg := newTestServer(t)
	writeFile(t, filepath.Join(cfg.SourceDir, "tasks", "archive.ts"),
		`export default endpoint.get({ name: "listTasks", handler: async () => [] });`)

	out := call(t, s.handleListEndpoints, `{}`)
	if out["count"] != float64(3) {
		t.Errorf("count = %v", out["count"])
	}
	warnings, _ := out["warnings"].([]any)
	var dupWarned bool
	for _, w := range warnings {
		if m, _ := w.(map[string]any); m["rel_path"] == "tasks/list.ts" {
			dupWarned = strings.Contains(m["reason"].(string), "duplicate endpoint name")
		}
	}
	if !dupWarned {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestListRoutesTool(t *testing.T) {
	s, cfg := newTestServer(t)
	out := call(t, s.handleListRoutes, `{}`)
	routes, _ := out["routes"].([]any)
	if len(routes) != 1 {
		t.Fatalf("routes = %v", routes)
	}
	r := routes[0].(map[string]any)
	methods := r["methods"].(map[string]any)
	if r["path"] != "/api/tasks" || methods["GET"] != "listTasks" || methods["POST"] != "createTask" {
		t.Errorf("route = %v", r)
	}
	if r["file"] != filepath.Join(cfg.RoutesDir, "tasks", "route.ts") {
		t.Errorf("file = %v", r["file"])
	}
}

func TestReadArtifactTool(t *testing.T) {
	s, cfg := newTestServer(t)
	call(t, s.handleGenerate, `{}`)

	out := call(t, s.handleReadArtifact, `{"path": "api.ts", "start_line": 1, "end_line": 1}`)
	if content, _ := out["content"].(string); !strings.Contains(content, "@generated by endpointgen") {
		t.Errorf("content = %q", content)
	}

	route := filepath.Join(cfg.RoutesDir, "tasks", "route.ts")
	out = call(t, s.handleReadArtifact, `{"path": "`+filepath.ToSlash(route)+`"}`)
	if content, _ := out["content"].(string); !strings.Contains(content, "createRouteHandler(listTasks)") {
		t.Errorf("route content = %q", content)
	}

	bad := filepath.Join(cfg.SourceDir, "search.ts")
	req := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`{"path": "` + filepath.ToSlash(bad) + `"}`)}}
	res, err := s.handleReadArtifact(context.Background(), req)
	if err != nil || !res.IsError {
		t.Errorf("reading a source file should be rejected, got %+v", res)
	}
	req = &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`{"path": "../endpoints/search.ts"}`)}}
	if res, _ := s.handleReadArtifact(context.Background(), req); !res.IsError {
		t.Error("relative escape should be rejected")
	}
}

func TestReadArtifactLargeFileNeedsRange(t *testing.T) {
	s, cfg := newTestServer(t)
	line := strings.Repeat("x", 99) + "\n"
	writeFile(t, filepath.Join(cfg.OutDir, "big.ts"), "// first\n"+strings.Repeat(line, maxArtifactSize/len(line)+10))

	req := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`{"path": "big.ts"}`)}}
	res, err := s.handleReadArtifact(context.Background(), req)
	if err != nil || !res.IsError {
		t.Fatalf("whole oversized file should be rejected, got %+v", res)
	}

	out := call(t, s.handleReadArtifact, `{"path": "big.ts", "start_line": 1, "end_line": 2}`)
	content, _ := out["content"].(string)
	if !strings.HasPrefix(content, "   1 | // first\n   2 | xxx") {
		t.Errorf("content = %.40q", content)
	}
	if strings.Count(content, "\n") != 1 {
		t.Errorf("expected two lines, got %q", content)
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		path, dir string
		want      bool
	}{
		{"/a/b/c.ts", "/a/b", true},
		{"/a/b", "/a/b", true},
		{"/a/bc/x.ts", "/a/b", false},
		{"/a/x.ts", "/a/b", false},
		{"/a/b/x.ts", "", false},
	}
	for _, tt := range tests {
		if got := within(tt.path, tt.dir); got != tt.want {
			t.Errorf("within(%s, %s) = %v, want %v", tt.path, tt.dir, got, tt.want)
		}
	}
}
