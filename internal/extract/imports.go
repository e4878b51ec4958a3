package extract

import (
	"path/filepath"
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/endpointgen/internal/parser"
)

// moduleExtensions are stripped when a resolved file path becomes an alias path.
var moduleExtensions = map[string]bool{
	".ts": true, ".tsx": true, ".mts": true, ".cts": true, ".js": true, ".jsx": true,
}

// Resolver canonicalizes module specifiers to alias-rooted paths
// (<alias>/<path relative to AliasRoot, no extension>).
type Resolver struct {
	Alias     string
	AliasRoot string
}

// ModulePath returns the alias path of an absolute file or module path when
// it lies under AliasRoot.
func (r *Resolver) ModulePath(abs string) (string, bool) {
	if r.Alias == "" || r.AliasRoot == "" {
		return "", false
	}
	rel, err := filepath.Rel(r.AliasRoot, abs)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	if moduleExtensions[filepath.Ext(rel)] {
		rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	}
	if rel == "." {
		return r.Alias, true
	}
	return r.Alias + "/" + rel, true
}

// Canonical resolves a module specifier found in a file living in
// importerDir. Alias specifiers are kept; relative specifiers that resolve
// under AliasRoot are rewritten; anything else is returned unchanged.
func (r *Resolver) Canonical(specifier, importerDir string) string {
	if r.isAliased(specifier) {
		return specifier
	}
	if !isRelative(specifier) {
		return specifier
	}
	if p, ok := r.ModulePath(filepath.Join(importerDir, filepath.FromSlash(specifier))); ok {
		return p
	}
	return specifier
}

// isAliased reports whether a module path starts with the configured alias.
func (r *Resolver) isAliased(specifier string) bool {
	if r.Alias == "" {
		return false
	}
	return specifier == r.Alias || strings.HasPrefix(specifier, strings.TrimSuffix(r.Alias, "/")+"/")
}

func isRelative(specifier string) bool {
	return specifier == "." || specifier == ".." ||
		strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}

// namedImport is one import_specifier. Entry is what the generated import
// lists ("Task" or "Task as T"); Local is the name used in type text.
type namedImport struct {
	Entry string
	Local string
}

type importDecl struct {
	Specifier string
	Names     []namedImport
}

// collectImports returns the top-level import declarations with their
// named imports. Default and namespace imports carry no type names here.
//
// TypeScript import AST structure:
//
//	import_statement
//	  import_clause
//	    named_imports
//	      import_specifier (name, alias?)
//	  source: string
func collectImports(root *tree_sitter.Node, source []byte) []importDecl {
	var decls []importDecl
	for _, stmt := range parser.NamedChildren(root) {
		if stmt.Kind() != "import_statement" {
			continue
		}
		srcNode := stmt.ChildByFieldName("source")
		if srcNode == nil {
			continue
		}
		spec, ok := stringLiteral(parser.NodeText(srcNode, source))
		if !ok || spec == "" {
			continue
		}
		decl := importDecl{Specifier: spec}
		parser.Walk(stmt, func(n *tree_sitter.Node) bool {
			if n.Kind() != "import_specifier" {
				return true
			}
			if imp, ok := importSpecifier(n, source); ok {
				decl.Names = append(decl.Names, imp)
			}
			return false
		})
		decls = append(decls, decl)
	}
	return decls
}

func importSpecifier(n *tree_sitter.Node, source []byte) (namedImport, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return namedImport{}, false
	}
	name := parser.NodeText(nameNode, source)
	if aliasNode := n.ChildByFieldName("alias"); aliasNode != nil {
		alias := parser.NodeText(aliasNode, source)
		if alias != "" && alias != name {
			return namedImport{Entry: name + " as " + alias, Local: alias}, true
		}
	}
	return namedImport{Entry: name, Local: name}, true
}

// typeProvenance is the result of matching imports against type text.
type typeProvenance struct {
	ResponseImport string
	ArgsImport     string
	Imports        map[string][]string
}

// resolveTypes records, for every named import whose local name occurs in
// the response or args type text, the canonical path it comes from.
// Containment is a plain substring test, so a name that is part of a
// longer identifier also matches.
func (r *Resolver) resolveTypes(decls []importDecl, importerDir, responseType, argsType string) typeProvenance {
	prov := typeProvenance{}
	sets := make(map[string]map[string]bool)
	for _, decl := range decls {
		path := r.Canonical(decl.Specifier, importerDir)
		for _, imp := range decl.Names {
			inResponse := strings.Contains(responseType, imp.Local)
			inArgs := strings.Contains(argsType, imp.Local)
			if !inResponse && !inArgs {
				continue
			}
			if inResponse && prov.ResponseImport == "" {
				prov.ResponseImport = path
			}
			if inArgs && prov.ArgsImport == "" {
				prov.ArgsImport = path
			}
			if sets[path] == nil {
				sets[path] = make(map[string]bool)
			}
			sets[path][imp.Entry] = true
		}
	}
	if len(sets) == 0 {
		return prov
	}
	prov.Imports = make(map[string][]string, len(sets))
	for path, names := range sets {
		list := make([]string, 0, len(names))
		for n := range names {
			list = append(list, n)
		}
		sort.Strings(list)
		prov.Imports[path] = list
	}
	return prov
}
