package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) handleGenerate(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	run := s.ctrl.Run
	if getBoolArg(args, "force") {
		run = s.ctrl.Rebuild
	}
	res, err := run(ctx)
	if err != nil {
		return errResult(fmt.Sprintf("generate failed: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"status":      res.Status.String(),
		"endpoints":   res.Endpoints,
		"route_files": res.RouteFiles,
		"written":     res.Written,
		"warnings":    res.Warnings,
		"orphans":     res.Orphans,
	}), nil
}
