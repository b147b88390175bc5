package search

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"cardcheck/internal/logging"
	"cardcheck/internal/snapshot"
)

// Structural kinds understood by the structural capability.
const (
	KindCall     = "call"     // a call to a named function/constructor
	KindFunction = "function" // a function or method definition
	KindClass    = "class"    // a class/type definition
	KindImport   = "import"   // an import of a named module/package
)

// Structural searches parsed syntax trees for a code shape: a call,
// definition, class, or import whose name contains name (case-insensitive;
// empty matches any). Notebook code cells are parsed as Python so claims
// about notebook code resolve too.
func (t *Toolkit) Structural(kind, name string) (*Result, error) {
	switch kind {
	case KindCall, KindFunction, KindClass, KindImport:
	default:
		return nil, fmt.Errorf("unknown structural kind %q", kind)
	}

	res := &Result{}
	for _, f := range t.snap.Files() {
		switch f.Kind {
		case snapshot.KindSource:
			if f.Language == "" {
				continue
			}
			content, ok := t.snap.Content(f.Path)
			if !ok {
				continue
			}
			t.matchTree(res, f.Path, -1, f.Language, content, kind, name)

		case snapshot.KindNotebook:
			nb, ok := t.snap.NotebookFor(f.Path)
			if !ok {
				continue
			}
			for _, cell := range nb.Cells {
				if cell.Type != "code" {
					continue
				}
				t.matchTree(res, f.Path, cell.Index, "python", []byte(cell.Source), kind, name)
			}
		}
	}
	logging.SearchDebug("structural search kind=%s name=%q: %d hits", kind, name, res.Count)
	return res, nil
}

// matchTree parses one unit of code and walks its tree for matches.
func (t *Toolkit) matchTree(res *Result, path string, cell int, language string, content []byte, kind, name string) {
	lang := grammarFor(language)
	if lang == nil {
		return
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		logging.SearchDebug("parse failed for %s: %v", path, err)
		return
	}
	defer tree.Close()

	needle := strings.ToLower(name)
	text := func(n *sitter.Node) string { return n.Content(content) }

	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if nodeName, ok := nodeOfKind(n, language, kind, text); ok {
			if needle == "" || strings.Contains(strings.ToLower(nodeName), needle) {
				m := Match{
					File:    path,
					Line:    int(n.StartPoint().Row) + 1,
					Snippet: firstLine(text(n)),
				}
				if cell >= 0 {
					m.Cell = cell
				}
				res.add(m, t.maxMatches)
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())
}

func grammarFor(language string) *sitter.Language {
	switch language {
	case "go":
		return golang.GetLanguage()
	case "python":
		return python.GetLanguage()
	case "javascript":
		return javascript.GetLanguage()
	default:
		return nil
	}
}

// nodeOfKind reports whether a node has the requested shape and, if so,
// the name the caller should match against.
func nodeOfKind(n *sitter.Node, language, kind string, text func(*sitter.Node) string) (string, bool) {
	nodeType := n.Type()

	switch kind {
	case KindCall:
		if nodeType == "call_expression" || (language == "python" && nodeType == "call") {
			if fn := n.ChildByFieldName("function"); fn != nil {
				return text(fn), true
			}
		}

	case KindFunction:
		switch nodeType {
		case "function_declaration", "method_declaration", "function_definition", "method_definition":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				return text(nameNode), true
			}
		}

	case KindClass:
		switch {
		case language == "python" && nodeType == "class_definition",
			language == "javascript" && nodeType == "class_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				return text(nameNode), true
			}
		case language == "go" && nodeType == "type_spec":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				return text(nameNode), true
			}
		}

	case KindImport:
		switch nodeType {
		case "import_declaration", "import_statement", "import_from_statement":
			return text(n), true
		}
	}

	return "", false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
