package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/endpointgen/internal/codegen"
	"github.com/DeusData/endpointgen/internal/endpoint"
	"github.com/DeusData/endpointgen/internal/routes"
)

type endpointSummary struct {
	Name         string `json:"name"`
	Method       string `json:"method"`
	Route        string `json:"route"`
	File         string `json:"file"`
	ResponseType string `json:"response_type"`
	ArgsType     string `json:"args_type"`
	Protected    bool   `json:"protected"`
	HasHandler   bool   `json:"has_handler"`
	HasRequest   bool   `json:"has_request_schema"`
	MaxRetries   int    `json:"max_retries,omitempty"`
	Optimistic   int    `json:"optimistic_updates,omitempty"`
}

// describe extracts the current source tree without touching the manifest
// or any artifact.
func (s *Server) describe(ctx context.Context) ([]*endpoint.Descriptor, []endpoint.Warning, error) {
	files, _, err := s.ctrl.Scan(ctx)
	if err != nil {
		return nil, nil, err
	}
	descs, warnings, err := s.ctrl.ExtractAll(files)
	if err != nil {
		return nil, nil, err
	}
	descs, dups, err := s.ctrl.Unique(descs)
	if err != nil {
		return nil, nil, err
	}
	return descs, append(warnings, dups...), nil
}

func (s *Server) handleListEndpoints(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	method := strings.ToLower(getStringArg(args, "method"))
	prefix := getStringArg(args, "route_prefix")

	descs, warnings, err := s.describe(ctx)
	if err != nil {
		return errResult(fmt.Sprintf("extract failed: %v", err)), nil
	}

	endpoints := make([]endpointSummary, 0, len(descs))
	for _, d := range descs {
		if method != "" && d.Method != method {
			continue
		}
		if prefix != "" && !strings.HasPrefix(d.RoutePath, prefix) {
			continue
		}
		endpoints = append(endpoints, endpointSummary{
			Name:         d.Name,
			Method:       d.UpperMethod(),
			Route:        d.RoutePath,
			File:         d.RelPath,
			ResponseType: d.ResponseType,
			ArgsType:     d.ArgsType,
			Protected:    d.Protected,
			HasHandler:   d.HasHandler,
			HasRequest:   d.HasRequestSchema,
			MaxRetries:   d.MaxRetries,
			Optimistic:   len(d.OptimisticUpdates),
		})
	}

	return jsonResult(map[string]any{
		"count":     len(endpoints),
		"endpoints": endpoints,
		"warnings":  warnings,
	}), nil
}

type routeSummary struct {
	Path    string            `json:"path"`
	Methods map[string]string `json:"methods"`
	File    string            `json:"file,omitempty"`
	Ignored bool              `json:"ignored,omitempty"`
}

func (s *Server) handleListRoutes(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	descs, _, err := s.describe(ctx)
	if err != nil {
		return errResult(fmt.Sprintf("extract failed: %v", err)), nil
	}
	groups, err := s.ctrl.Groups(descs)
	if err != nil {
		return errResult(err.Error()), nil
	}

	cfg := s.ctrl.Config()
	generated := make(map[string]string)
	for _, a := range codegen.Generate(descs, groups, cfg) {
		if a.Route != "" {
			generated[a.Route] = a.Path
		}
	}

	var out []routeSummary
	for _, path := range routes.SortedPaths(groups) {
		g := groups[path]
		r := routeSummary{Path: path, Methods: make(map[string]string, len(g.Methods))}
		for _, m := range g.SortedMethods() {
			r.Methods[m] = g.Methods[m].Name
		}
		if file, ok := generated[path]; ok {
			r.File = file
		} else {
			r.Ignored = cfg.RoutesDir != ""
		}
		out = append(out, r)
	}

	return jsonResult(map[string]any{
		"count":  len(out),
		"routes": out,
	}), nil
}
