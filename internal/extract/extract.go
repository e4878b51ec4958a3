// Package extract turns endpoint source files into descriptors by matching a
// constrained shape in the TypeScript syntax tree:
//
//	export default endpoint.<method><Response, Args>({ name: "...", ... })
//
// Malformed files never fail the build; they produce a Warning instead.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/endpointgen/internal/config"
	"github.com/DeusData/endpointgen/internal/discover"
	"github.com/DeusData/endpointgen/internal/endpoint"
	"github.com/DeusData/endpointgen/internal/parser"
	"github.com/DeusData/endpointgen/internal/routes"
)

// CalleeObject is the identifier whose method calls declare endpoints.
const CalleeObject = "endpoint"

const (
	defaultResponseType = "unknown"
	defaultArgsType     = "void"
)

// Extractor builds descriptors for one configured source tree.
type Extractor struct {
	SourceDir string
	OutDir    string
	Crud      map[string]bool
	Resolver  Resolver
}

// New creates an Extractor from a resolved configuration.
func New(cfg *config.Config) *Extractor {
	return &Extractor{
		SourceDir: cfg.SourceDir,
		OutDir:    cfg.OutDir,
		Crud:      cfg.CrudSet(),
		Resolver:  Resolver{Alias: cfg.Alias, AliasRoot: cfg.AliasRoot},
	}
}

// ExtractFile reads and parses f, then extracts its descriptor. The error
// is reserved for I/O and parser failures; shape mismatches are warnings.
func (e *Extractor) ExtractFile(f discover.FileInfo) (*endpoint.Descriptor, *endpoint.Warning, error) {
	source, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", f.RelPath, err)
	}
	source = parser.StripBOM(source)
	tree, err := parser.Parse(source)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", f.RelPath, err)
	}
	defer tree.Close()
	d, w := e.Extract(f, source, tree)
	return d, w, nil
}

// ExtractCached extracts f from source, reusing the tree cached for
// (f.RelPath, hash) or parsing and caching a new one.
func (e *Extractor) ExtractCached(cache *parser.TreeCache, f discover.FileInfo, source []byte, hash string) (*endpoint.Descriptor, *endpoint.Warning, error) {
	cached, err := cache.ParseCached(f.RelPath, hash, source)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", f.RelPath, err)
	}
	d, w := e.Extract(f, cached.Source, cached.Tree)
	return d, w, nil
}

// Extract builds a descriptor from an already parsed file. source must be
// the buffer the tree was parsed from.
func (e *Extractor) Extract(f discover.FileInfo, source []byte, tree *tree_sitter.Tree) (*endpoint.Descriptor, *endpoint.Warning) {
	warn := func(format string, args ...any) (*endpoint.Descriptor, *endpoint.Warning) {
		return nil, &endpoint.Warning{RelPath: f.RelPath, Reason: fmt.Sprintf(format, args...)}
	}

	root := tree.RootNode()
	if root == nil {
		return warn("empty syntax tree")
	}
	if !hasDefaultExport(root, source) {
		return warn("no default export")
	}

	call, method := findEndpointCall(root, source)
	if call == nil {
		return warn("no %s.<get|post|put|patch|delete>(...) call", CalleeObject)
	}

	responseType, argsType := typeArguments(call, source)

	obj := soleObjectArgument(call)
	if obj == nil {
		return warn("%s.%s must take a single object literal argument", CalleeObject, method)
	}
	props := readObject(obj, source)

	nameProp, ok := props["name"]
	if !ok {
		return warn("missing name")
	}
	if nameProp.value == nil || nameProp.value.Kind() != "string" {
		return warn("name must be a string literal")
	}
	name, ok := stringLiteral(parser.NodeText(nameProp.value, source))
	if !ok || name == "" {
		return warn("name must be a non-empty string literal")
	}

	d := &endpoint.Descriptor{
		Name:         name,
		Method:       method,
		RelPath:      f.RelPath,
		SourcePath:   f.Path,
		ImportPath:   e.importPath(f.Path),
		RoutePath:    routes.Derive(f.RelPath, e.Crud),
		Protected:    true,
		ResponseType: responseType,
		ArgsType:     argsType,
	}

	if p, ok := props["protected"]; ok && p.text == "false" {
		d.Protected = false
	}
	_, d.HasRequestSchema = props["request"]
	_, d.HasHandler = props["handler"]

	if p, ok := props["query"]; ok {
		d.Query = p.text
	}
	if p, ok := props["tags"]; ok && p.value != nil && p.value.Kind() == "object" {
		tags := readObject(p.value, source)
		if t, ok := tags["provides"]; ok {
			d.Provides = t.text
		}
		if t, ok := tags["invalidates"]; ok {
			d.Invalidates = t.text
		}
		d.TagTypes = tagTypes(d.Provides, d.Invalidates)
	}
	if p, ok := props["maxRetries"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(p.text)); err == nil && n > 0 {
			d.MaxRetries = n
		}
	}
	if p, ok := props["optimistic"]; ok {
		d.Optimistic = p.text
		d.OptimisticUpdates = parseOptimistic(p.text)
	}

	prov := e.Resolver.resolveTypes(collectImports(root, source), filepath.Dir(f.Path), responseType, argsType)
	d.ResponseTypeImport = prov.ResponseImport
	d.ArgsTypeImport = prov.ArgsImport
	d.TypeImports = prov.Imports

	return d, nil
}

// importPath is the module path of the endpoint file itself: alias-rooted
// when possible, otherwise relative to the output directory.
func (e *Extractor) importPath(abs string) string {
	if p, ok := e.Resolver.ModulePath(abs); ok {
		return p
	}
	return RelativeModule(e.OutDir, abs)
}

// RelativeModule returns a "./"-style module specifier for file abs as
// imported from dir.
func RelativeModule(dir, abs string) string {
	rel, err := filepath.Rel(dir, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	rel = filepath.ToSlash(rel)
	if moduleExtensions[filepath.Ext(rel)] {
		rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	}
	if !strings.HasPrefix(rel, ".") {
		rel = "./" + rel
	}
	return rel
}

// hasDefaultExport reports a top-level `export default ...` or an
// `export { x as default }` clause.
func hasDefaultExport(root *tree_sitter.Node, source []byte) bool {
	for _, stmt := range parser.NamedChildren(root) {
		if stmt.Kind() != "export_statement" {
			continue
		}
		if parser.HasToken(stmt, "default") {
			return true
		}
		found := false
		parser.Walk(stmt, func(n *tree_sitter.Node) bool {
			if found {
				return false
			}
			if n.Kind() != "export_specifier" {
				return true
			}
			target := n.ChildByFieldName("alias")
			if target == nil {
				target = n.ChildByFieldName("name")
			}
			found = target != nil && parser.NodeText(target, source) == "default"
			return false
		})
		if found {
			return true
		}
	}
	return false
}

// findEndpointCall returns the first call whose callee is
// endpoint.<method>, in document order.
func findEndpointCall(root *tree_sitter.Node, source []byte) (*tree_sitter.Node, string) {
	var call *tree_sitter.Node
	var method string
	parser.Walk(root, func(n *tree_sitter.Node) bool {
		if call != nil {
			return false
		}
		if n.Kind() != "call_expression" {
			return true
		}
		fn := n.ChildByFieldName("function")
		if fn == nil || fn.Kind() != "member_expression" {
			return true
		}
		obj := fn.ChildByFieldName("object")
		prop := fn.ChildByFieldName("property")
		if obj == nil || prop == nil || obj.Kind() != "identifier" {
			return true
		}
		if parser.NodeText(obj, source) != CalleeObject {
			return true
		}
		m := parser.NodeText(prop, source)
		if !endpoint.Methods[m] {
			return true
		}
		call, method = n, m
		return false
	})
	return call, method
}

// typeArguments returns the first two type arguments verbatim, with defaults.
func typeArguments(call *tree_sitter.Node, source []byte) (response, args string) {
	response, args = defaultResponseType, defaultArgsType
	ta := call.ChildByFieldName("type_arguments")
	if ta == nil {
		return response, args
	}
	types := withoutComments(parser.NamedChildren(ta))
	if len(types) > 0 {
		response = parser.NodeText(types[0], source)
	}
	if len(types) > 1 {
		args = parser.NodeText(types[1], source)
	}
	return response, args
}

func soleObjectArgument(call *tree_sitter.Node) *tree_sitter.Node {
	argsNode := call.ChildByFieldName("arguments")
	if argsNode == nil {
		return nil
	}
	args := withoutComments(parser.NamedChildren(argsNode))
	if len(args) != 1 || args[0].Kind() != "object" {
		return nil
	}
	return args[0]
}

func withoutComments(nodes []*tree_sitter.Node) []*tree_sitter.Node {
	out := nodes[:0]
	for _, n := range nodes {
		if n.Kind() != "comment" {
			out = append(out, n)
		}
	}
	return out
}

// property is one key of an object literal. value is nil for shorthand
// properties and methods; text is the splice-ready initializer.
type property struct {
	value *tree_sitter.Node
	text  string
}

// readObject indexes the properties of an object literal node by key.
//
// TypeScript object AST structure:
//
//	object
//	  pair (key: property_identifier | string, value: expression)
//	  shorthand_property_identifier
//	  method_definition (name: property_identifier)
func readObject(obj *tree_sitter.Node, source []byte) map[string]property {
	props := make(map[string]property)
	for _, child := range parser.NamedChildren(obj) {
		switch child.Kind() {
		case "pair":
			keyNode := child.ChildByFieldName("key")
			valueNode := child.ChildByFieldName("value")
			if keyNode == nil || valueNode == nil {
				continue
			}
			props[propertyKey(keyNode, source)] = property{
				value: valueNode,
				text:  parser.NodeText(valueNode, source),
			}
		case "shorthand_property_identifier":
			name := parser.NodeText(child, source)
			props[name] = property{text: name}
		case "method_definition":
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			text := parser.NodeText(child, source)
			if e, ok := parseEntry(text); ok {
				text = e.Value
			}
			props[propertyKey(nameNode, source)] = property{text: text}
		}
	}
	return props
}

func propertyKey(n *tree_sitter.Node, source []byte) string {
	text := parser.NodeText(n, source)
	if n.Kind() == "string" {
		if v, ok := stringLiteral(text); ok {
			return v
		}
	}
	return text
}
