// Package codegen renders the generated artifacts from a descriptor set.
// Generate is a pure function of its inputs: callers may pass descriptors
// in any order and get byte-identical output.
package codegen

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/DeusData/endpointgen/internal/config"
	"github.com/DeusData/endpointgen/internal/endpoint"
	"github.com/DeusData/endpointgen/internal/routes"
	"github.com/DeusData/endpointgen/internal/sink"
)

// Names of the aggregated artifacts inside the output directory.
const (
	APIFile        = "api.ts"
	StoreFile      = "store.ts"
	InvalidateFile = "invalidate.ts"
)

// Artifact is one generated file.
type Artifact struct {
	Path    string // absolute
	Content []byte
	Route   string // route path for bridging files, empty otherwise
}

// Generate renders api.ts, store.ts, invalidate.ts and one route file per
// eligible group. Route artifacts follow the three fixed ones, sorted by path.
func Generate(descs []*endpoint.Descriptor, groups map[string]*routes.Group, cfg *config.Config) []Artifact {
	sorted := sortDescriptors(descs)
	out := []Artifact{
		{Path: filepath.Join(cfg.OutDir, APIFile), Content: renderAPI(sorted, cfg)},
		{Path: filepath.Join(cfg.OutDir, StoreFile), Content: []byte(storeSource)},
		{Path: filepath.Join(cfg.OutDir, InvalidateFile), Content: []byte(invalidateSource)},
	}
	return append(out, routeArtifacts(groups, cfg)...)
}

// RouteArtifacts counts the route bridging files in artifacts.
func RouteArtifacts(artifacts []Artifact) int {
	n := 0
	for _, a := range artifacts {
		if a.Route != "" {
			n++
		}
	}
	return n
}

func sortDescriptors(descs []*endpoint.Descriptor) []*endpoint.Descriptor {
	sorted := append([]*endpoint.Descriptor(nil), descs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].RelPath < sorted[j].RelPath
	})
	return sorted
}

// quote renders s as a double-quoted JavaScript string literal.
func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// identifier turns an endpoint name into a valid JavaScript identifier.
func identifier(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_' || r == '$' || unicode.IsLetter(r):
			b.WriteRune(r)
		case unicode.IsDigit(r):
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func header() string {
	return sink.Header + "\n"
}
