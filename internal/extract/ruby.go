package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/callgraph/internal/grammar"
	"github.com/jward/callgraph/internal/resolve"
)

func init() {
	register(&langSpec{
		policy:       resolve.PolicyChain,
		receivers:    []string{"self"},
		constructors: []string{"initialize"},
		separators:   []string{".", "::", "&."},

		body: rubyBody,

		typeName: func(n *sitter.Node, src []byte) string {
			return cleanTypeName(fieldText(n, "name", src))
		},
		baseTypes: func(n *sitter.Node, src []byte) []string {
			sc := n.ChildByFieldName("superclass")
			if sc == nil {
				return nil
			}
			if name := cleanTypeName(strings.TrimPrefix(strings.TrimSpace(nodeText(sc, src)), "<")); name != "" {
				return []string{name}
			}
			return nil
		},
		typeBody: rubyBody,

		calleeText: rubyCalleeText,
		callImport: rubyRequire,

		assignKinds: map[string]bool{"assignment": true},
		assign:      rubyAssign,
		valueType:   rubyValueType,
	}, grammar.Ruby)
}

// rubyBody returns the body_statement when the grammar exposes one, and the
// definition itself otherwise so its statements are walked directly.
func rubyBody(n *sitter.Node) *sitter.Node {
	if b := n.ChildByFieldName("body"); b != nil {
		return b
	}
	if b := firstOfKind(n, "body_statement"); b != nil {
		return b
	}
	return n
}

// rubyCalleeText joins receiver and method, rewriting @ivar receivers to
// self.ivar.
func rubyCalleeText(n *sitter.Node, src []byte) string {
	method := fieldText(n, "method", src)
	if method == "" {
		return ""
	}
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		return method
	}
	return rubySelfChain(nodeText(recv, src)) + "." + method
}

func rubySelfChain(text string) string {
	if strings.HasPrefix(text, "@") {
		return "self." + strings.TrimLeft(text, "@")
	}
	return text
}

func rubyRequire(callee string, n *sitter.Node, src []byte) (string, bool) {
	switch callee {
	case "require", "require_relative", "load":
	default:
		return "", false
	}
	arg := firstOfKind(n.ChildByFieldName("arguments"), "string")
	if arg == nil {
		return "", false
	}
	return stringLiteralValue(nodeText(arg, src)), true
}

func rubyAssign(n *sitter.Node, src []byte) []assignment {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || right == nil {
		return nil
	}
	switch left.Type() {
	case "identifier":
		return []assignment{{target: []string{nodeText(left, src)}, value: right}}
	case "instance_variable", "class_variable":
		return []assignment{{target: []string{"self", strings.TrimLeft(nodeText(left, src), "@")}, value: right}}
	}
	return nil
}

// rubyValueType treats Foo.new as instantiation of Foo.
func rubyValueType(n *sitter.Node, src []byte) (string, *sitter.Node) {
	if n.Type() != "call" {
		return "", nil
	}
	if fieldText(n, "method", src) == "new" {
		if recv := n.ChildByFieldName("receiver"); recv != nil {
			return cleanTypeName(nodeText(recv, src)), nil
		}
	}
	return "", n
}
