// Package tools exposes the generator as MCP tools over stdio.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/endpointgen/internal/build"
)

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp  *mcp.Server
	ctrl *build.Controller
}

// NewServer creates a new MCP server with all tools registered. ctrl is
// shared with any watcher so tool-triggered runs never overlap a
// regeneration.
func NewServer(ctrl *build.Controller, version string) *Server {
	srv := &Server{
		ctrl: ctrl,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "endpointgen",
				Version: version,
			},
			nil,
		),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "generate",
		Description: "Regenerate api.ts, store.ts, invalidate.ts and the per-route files from the endpoint sources. Skips all work when the sources match the build manifest unless force is set.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"force": {
					"type": "boolean",
					"description": "Ignore the build manifest and re-extract every file (default: false)"
				}
			}
		}`),
	}, s.handleGenerate)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "list_endpoints",
		Description: "Extract every endpoint source file and list the resulting descriptors: name, HTTP method, derived route, source file, type arguments and flags. Files that do not match the endpoint shape are listed as warnings.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"method": {
					"type": "string",
					"description": "Only list endpoints with this HTTP method",
					"enum": ["get", "post", "put", "patch", "delete"]
				},
				"route_prefix": {
					"type": "string",
					"description": "Only list endpoints whose route starts with this prefix (e.g. '/api/tasks')"
				}
			}
		}`),
	}, s.handleListEndpoints)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "list_routes",
		Description: "List route groups: each derived route path with the endpoint bound to every HTTP method and the route file generated for it. Client-only endpoints (no handler) never appear.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}, s.handleListRoutes)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "read_artifact",
		Description: "Read a generated file (api.ts, store.ts, invalidate.ts or a route.ts) with line numbers. Paths outside the output and routes directories are rejected.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "Artifact path: absolute, or relative to the output directory (e.g. 'api.ts')"
				},
				"start_line": {
					"type": "integer",
					"description": "Start reading from this line (1-based, optional)"
				},
				"end_line": {
					"type": "integer",
					"description": "Stop reading at this line (inclusive, optional)"
				}
			},
			"required": ["path"]
		}`),
	}, s.handleReadArtifact)
}

// jsonResult marshals data to JSON and returns as tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

func getStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// getIntArg extracts an integer argument with a default value.
func getIntArg(args map[string]any, key string, defaultVal int) int {
	f, ok := args[key].(float64) // JSON numbers decode as float64
	if !ok {
		return defaultVal
	}
	return int(f)
}

func getBoolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}
