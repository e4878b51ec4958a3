// Package routes derives URL routes from endpoint source paths and buckets
// handler-bearing descriptors by route and method.
package routes

import (
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/DeusData/endpointgen/internal/endpoint"
)

// Prefix is prepended to every derived route.
const Prefix = "/api/"

// Derive maps a source-relative path to its URL route.
// Format: /api/<dir segments>[/<filename unless CRUD>]
// Examples:
//   - tasks/list.ts -> /api/tasks
//   - users/profile/update.ts -> /api/users/profile
//   - billing/invoices.ts -> /api/billing/invoices
func Derive(relPath string, crud map[string]bool) string {
	relPath = strings.ReplaceAll(relPath, "\\", "/")
	relPath = strings.TrimSuffix(relPath, path.Ext(relPath))

	var segments []string
	for _, s := range strings.Split(relPath, "/") {
		if s != "" && s != "." {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return strings.TrimSuffix(Prefix, "/")
	}

	filename := segments[len(segments)-1]
	segments = segments[:len(segments)-1]
	if !crud[filename] {
		segments = append(segments, filename)
	}
	if len(segments) == 0 {
		return strings.TrimSuffix(Prefix, "/")
	}
	return Prefix + strings.Join(segments, "/")
}

// Segments returns the route path components after the /api prefix.
func Segments(route string) []string {
	rest := strings.TrimPrefix(route, strings.TrimSuffix(Prefix, "/"))
	var out []string
	for _, s := range strings.Split(rest, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Group is the set of descriptors sharing one route, keyed by uppercase
// HTTP method.
type Group struct {
	Path    string
	Methods map[string]*endpoint.Descriptor
}

// SortedMethods returns the group's methods in ascending order.
func (g *Group) SortedMethods() []string {
	out := make([]string, 0, len(g.Methods))
	for m := range g.Methods {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// DuplicatePolicy decides what happens when two handler-bearing descriptors
// derive the same (route, method) pair.
type DuplicatePolicy int

const (
	// DuplicateLastWins keeps the later descriptor in iteration order.
	DuplicateLastWins DuplicatePolicy = iota
	// DuplicateError aborts grouping with a *DuplicateRouteMethodError.
	DuplicateError
)

// ParsePolicy maps a config value to a DuplicatePolicy.
func ParsePolicy(s string) DuplicatePolicy {
	if s == "error" {
		return DuplicateError
	}
	return DuplicateLastWins
}

// DuplicateRouteMethodError reports two descriptors claiming one route and method.
type DuplicateRouteMethodError struct {
	Path   string
	Method string
	First  string // rel path of the descriptor already grouped
	Second string // rel path of the colliding descriptor
}

func (e *DuplicateRouteMethodError) Error() string {
	return fmt.Sprintf("duplicate route %s %s: %s and %s", e.Method, e.Path, e.First, e.Second)
}

// Build buckets descriptors by route path. Descriptors without a handler are
// client-only and never grouped. Collisions follow policy; with
// DuplicateLastWins the later descriptor in descs order replaces the earlier.
func Build(descs []*endpoint.Descriptor, policy DuplicatePolicy) (map[string]*Group, error) {
	groups := make(map[string]*Group)
	for _, d := range descs {
		if !d.HasHandler {
			continue
		}
		g, ok := groups[d.RoutePath]
		if !ok {
			g = &Group{Path: d.RoutePath, Methods: make(map[string]*endpoint.Descriptor)}
			groups[d.RoutePath] = g
		}
		method := d.UpperMethod()
		if prev, exists := g.Methods[method]; exists {
			if policy == DuplicateError {
				return nil, &DuplicateRouteMethodError{
					Path: d.RoutePath, Method: method, First: prev.RelPath, Second: d.RelPath,
				}
			}
			slog.Warn("routes.duplicate", "route", d.RoutePath, "method", method,
				"replaced", prev.RelPath, "by", d.RelPath)
		}
		g.Methods[method] = d
	}
	return groups, nil
}

// SortedPaths returns the group keys in ascending order.
func SortedPaths(groups map[string]*Group) []string {
	out := make([]string, 0, len(groups))
	for p := range groups {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
