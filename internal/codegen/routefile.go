package codegen

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/DeusData/endpointgen/internal/config"
	"github.com/DeusData/endpointgen/internal/endpoint"
	"github.com/DeusData/endpointgen/internal/extract"
	"github.com/DeusData/endpointgen/internal/routes"
	"github.com/DeusData/endpointgen/internal/sink"
)

// RoutePath returns where the bridging file for route lives:
// <routesDir>/<route without /api>/route.ts.
func RoutePath(routesDir, route string) string {
	parts := append([]string{routesDir}, routes.Segments(route)...)
	return filepath.Join(append(parts, sink.RouteFile)...)
}

func routeArtifacts(groups map[string]*routes.Group, cfg *config.Config) []Artifact {
	if cfg.RoutesDir == "" {
		return nil
	}
	ignore := cfg.IgnoreSet()
	var out []Artifact
	for _, path := range routes.SortedPaths(groups) {
		g := groups[path]
		if len(g.Methods) == 0 {
			continue
		}
		if segs := routes.Segments(path); len(segs) > 0 && ignore[segs[0]] {
			continue
		}
		file := RoutePath(cfg.RoutesDir, path)
		out = append(out, Artifact{
			Path:    file,
			Content: renderRoute(g, filepath.Dir(file), cfg.HandlerModule),
			Route:   path,
		})
	}
	return out
}

type routeImport struct {
	local  string
	module string
}

func renderRoute(g *routes.Group, dir, handlerModule string) []byte {
	methods := g.SortedMethods()
	locals := make(map[string]string, len(methods))
	used := make(map[string]bool, len(methods))
	imports := make([]routeImport, 0, len(methods))
	for _, m := range methods {
		d := g.Methods[m]
		local := identifier(d.Name)
		if used[local] {
			local += "_" + m
		}
		used[local] = true
		locals[m] = local
		imports = append(imports, routeImport{local: local, module: handlerImport(d, dir)})
	}
	sort.Slice(imports, func(i, j int) bool {
		if imports[i].module != imports[j].module {
			return imports[i].module < imports[j].module
		}
		return imports[i].local < imports[j].local
	})

	var buf bytes.Buffer
	buf.WriteString(header())
	fmt.Fprintf(&buf, "import { createRouteHandler } from %s;\n", quote(handlerModule))
	for _, imp := range imports {
		fmt.Fprintf(&buf, "import %s from %s;\n", imp.local, quote(imp.module))
	}
	buf.WriteString("\n")
	for _, m := range methods {
		fmt.Fprintf(&buf, "export const %s = createRouteHandler(%s);\n", m, locals[m])
	}
	return buf.Bytes()
}

// handlerImport keeps alias-rooted import paths and re-relativizes the
// others against the route file's directory.
func handlerImport(d *endpoint.Descriptor, dir string) string {
	if !strings.HasPrefix(d.ImportPath, ".") || d.SourcePath == "" {
		return d.ImportPath
	}
	return extract.RelativeModule(dir, d.SourcePath)
}
