package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/endpointgen/internal/parser"
)

type ASTCmd struct {
	File  string `arg:"" help:"TypeScript file to parse." type:"existingfile"`
	Width int    `help:"Truncate node text to this many bytes." default:"60"`
}

func (c *ASTCmd) Run() error {
	source, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("read %s: %w", c.File, err)
	}
	return printTree(os.Stdout, source, c.Width)
}

func printTree(w io.Writer, source []byte, width int) error {
	tree, err := parser.Parse(source)
	if err != nil {
		return err
	}
	defer tree.Close()
	printNode(w, tree.RootNode(), parser.StripBOM(source), 0, width)
	return nil
}

func printNode(w io.Writer, node *tree_sitter.Node, source []byte, depth, width int) {
	if node == nil {
		return
	}
	text := parser.NodeText(node, source)
	if width > 0 && len(text) > width {
		text = text[:width] + "..."
	}
	fmt.Fprintf(w, "%s%s %q\n", strings.Repeat("  ", depth), node.Kind(), text)
	for i := uint(0); i < node.ChildCount(); i++ {
		printNode(w, node.Child(i), source, depth+1, width)
	}
}
