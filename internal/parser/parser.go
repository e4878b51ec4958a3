package parser

import (
	"errors"
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

var (
	languageOnce sync.Once
	language     *tree_sitter.Language
	languageErr  error
	parserPool   *sync.Pool
)

func initLanguage() {
	languageOnce.Do(func() {
		language = tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
		if language == nil {
			languageErr = errors.New("typescript grammar unavailable")
			return
		}
		probe := tree_sitter.NewParser()
		if err := probe.SetLanguage(language); err != nil {
			languageErr = fmt.Errorf("set language: %w", err)
			probe.Close()
			return
		}
		probe.Close()

		parserPool = &sync.Pool{
			New: func() any {
				p := tree_sitter.NewParser()
				if err := p.SetLanguage(language); err != nil {
					panic(fmt.Sprintf("set language: %v", err))
				}
				return p
			},
		}
	})
}

// Init loads the TypeScript grammar. It reports the failure that makes every
// later Parse call fail, so callers can abort before touching any file.
func Init() error {
	initLanguage()
	return languageErr
}

// Parse parses TypeScript source into a tree-sitter Tree.
// The caller must call tree.Close() when done.
// Parsers are pooled via sync.Pool to avoid per-file allocation.
func Parse(source []byte) (*tree_sitter.Tree, error) {
	if err := Init(); err != nil {
		return nil, err
	}

	p, _ := parserPool.Get().(*tree_sitter.Parser)
	if p == nil {
		return nil, errors.New("failed to get typescript parser")
	}
	tree := p.Parse(StripBOM(source), nil)
	parserPool.Put(p)

	if tree == nil {
		return nil, errors.New("typescript parse failed")
	}
	return tree, nil
}

// WalkFunc is called for each node during AST traversal.
// Return false to skip children.
type WalkFunc func(node *tree_sitter.Node) bool

// Walk traverses the AST in depth-first order.
func Walk(node *tree_sitter.Node, fn WalkFunc) {
	if node == nil {
		return
	}
	if !fn(node) {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			Walk(child, fn)
		}
	}
}

// NodeText returns the text content of a node.
func NodeText(node *tree_sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// NamedChildren returns the named children of node in source order.
func NamedChildren(node *tree_sitter.Node) []*tree_sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*tree_sitter.Node, 0, node.NamedChildCount())
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if child := node.NamedChild(i); child != nil {
			out = append(out, child)
		}
	}
	return out
}

// HasToken reports whether node has a direct anonymous child of the given kind
// (keywords such as "default" or "type").
func HasToken(node *tree_sitter.Node, kind string) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && !child.IsNamed() && child.Kind() == kind {
			return true
		}
	}
	return false
}

// StripBOM removes a UTF-8 BOM (0xEF 0xBB 0xBF) from the start of source.
// Parse applies it too, so node offsets index the stripped buffer.
func StripBOM(source []byte) []byte {
	if len(source) >= 3 && source[0] == 0xEF && source[1] == 0xBB && source[2] == 0xBF {
		return source[3:]
	}
	return source
}
