package gates

import (
	"context"
	"path/filepath"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"sunwell/internal/logging"
)

// SyntaxGate parses each artifact with tree-sitter and fails on any parse
// error node, grounded on the teacher's internal/world/ast_treesitter.go
// parser setup (one *sitter.Parser per language, SetLanguage + ParseCtx).
// Unrecognized extensions are skipped, not failed.
type SyntaxGate struct{}

// NewSyntaxGate returns a SyntaxGate.
func NewSyntaxGate() *SyntaxGate { return &SyntaxGate{} }

func (g *SyntaxGate) Name() string { return "syntax" }

func languageFor(path string) *sitter.Language {
	switch filepath.Ext(path) {
	case ".go":
		return golang.GetLanguage()
	case ".py":
		return python.GetLanguage()
	case ".rs":
		return rust.GetLanguage()
	case ".js", ".jsx":
		return javascript.GetLanguage()
	case ".ts", ".tsx":
		return typescript.GetLanguage()
	default:
		return nil
	}
}

func (g *SyntaxGate) Run(ctx context.Context, workspace string, artifacts []Artifact) (Result, error) {
	res := Result{Gate: g.Name(), Status: StatusPass}

	for _, a := range artifacts {
		lang := languageFor(a.Path)
		if lang == nil {
			continue
		}

		parser := sitter.NewParser()
		parser.SetLanguage(lang)
		tree, err := parser.ParseCtx(ctx, nil, a.Content)
		parser.Close()
		if err != nil {
			logging.Get(logging.CategoryGates).Warn("syntax gate: parse error for %s: %v", a.Path, err)
			res.Status = StatusFail
			res.Messages = append(res.Messages, Message{Path: a.Path, Message: err.Error(), Severity: SeverityError})
			continue
		}

		root := tree.RootNode()
		errNodes := collectErrorNodes(root, a.Content)
		tree.Close()
		if len(errNodes) > 0 {
			res.Status = StatusFail
			for i := range errNodes {
				errNodes[i].Path = a.Path
			}
			res.Messages = append(res.Messages, errNodes...)
		}
	}

	return res, nil
}

// collectErrorNodes walks the tree looking for ERROR nodes or nodes marked
// IsMissing, the two tree-sitter signals for a syntax error.
func collectErrorNodes(node *sitter.Node, content []byte) []Message {
	var out []Message
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.IsError() || n.IsMissing() {
			point := n.StartPoint()
			out = append(out, Message{
				Line:     int(point.Row) + 1,
				Message:  "syntax error near " + n.Content(content),
				Severity: SeverityError,
			})
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(node)
	return out
}
