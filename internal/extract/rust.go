package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/callgraph/internal/grammar"
	"github.com/jward/callgraph/internal/resolve"
)

func init() {
	register(&langSpec{
		policy:     resolve.PolicyChain,
		receivers:  []string{"self", "Self"},
		separators: []string{".", "::"},

		returnType: func(n *sitter.Node, src []byte) string {
			return cleanTypeName(fieldText(n, "return_type", src))
		},
		params: rustParams,

		typeName: func(n *sitter.Node, src []byte) string {
			if n.Type() == "impl_item" {
				return cleanTypeName(fieldText(n, "type", src))
			}
			return fieldText(n, "name", src)
		},
		baseTypes: func(n *sitter.Node, src []byte) []string {
			if n.Type() != "impl_item" {
				return nil
			}
			if trait := cleanTypeName(fieldText(n, "trait", src)); trait != "" {
				return []string{trait}
			}
			return nil
		},
		typeBody: func(n *sitter.Node) *sitter.Node {
			switch n.Type() {
			case "impl_item", "trait_item":
				return n.ChildByFieldName("body")
			}
			return nil
		},
		fields: rustFields,

		imports: func(n *sitter.Node, src []byte) []string {
			if arg := fieldText(n, "argument", src); arg != "" {
				return []string{arg}
			}
			return nil
		},

		assignKinds: map[string]bool{"let_declaration": true, "assignment_expression": true},
		assign:      rustAssign,
		valueType:   rustValueType,
	}, grammar.Rust)
}

func rustParams(n *sitter.Node, src []byte) map[string]string {
	out := make(map[string]string)
	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		if p.Type() != "parameter" {
			continue
		}
		name := rustPatternName(p.ChildByFieldName("pattern"), src)
		if typ := cleanTypeName(fieldText(p, "type", src)); name != "" && typ != "" {
			out[name] = typ
		}
	}
	return out
}

// rustPatternName unwraps `mut x` to x; other patterns are "".
func rustPatternName(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "identifier":
		return nodeText(n, src)
	case "mut_pattern":
		return rustPatternName(firstOfKind(n, "identifier"), src)
	}
	return ""
}

func rustFields(n *sitter.Node, src []byte) map[string]string {
	if n.Type() != "struct_item" {
		return nil
	}
	out := make(map[string]string)
	for _, f := range namedChildren(n.ChildByFieldName("body")) {
		if f.Type() != "field_declaration" {
			continue
		}
		if typ := cleanTypeName(fieldText(f, "type", src)); typ != "" {
			out[fieldText(f, "name", src)] = typ
		}
	}
	return out
}

func rustAssign(n *sitter.Node, src []byte) []assignment {
	if n.Type() == "let_declaration" {
		name := rustPatternName(n.ChildByFieldName("pattern"), src)
		if name == "" {
			return nil
		}
		a := assignment{
			target: []string{name},
			value:  n.ChildByFieldName("value"),
			typ:    cleanTypeName(fieldText(n, "type", src)),
		}
		if a.typ == "" && a.value == nil {
			return nil
		}
		return []assignment{a}
	}
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != "field_expression" {
		return nil
	}
	value := left.ChildByFieldName("value")
	if value == nil || value.Type() != "self" {
		return nil
	}
	return []assignment{{target: []string{"self", fieldText(left, "field", src)}, value: right}}
}

func rustValueType(n *sitter.Node, src []byte) (string, *sitter.Node) {
	switch n.Type() {
	case "struct_expression":
		return cleanTypeName(fieldText(n, "name", src)), nil
	case "reference_expression", "try_expression", "await_expression":
		if inner := namedChildren(n); len(inner) > 0 {
			return rustValueType(inner[len(inner)-1], src)
		}
	case "call_expression":
		// Foo::new() and Foo::new_with(..) construct Foo.
		fn := n.ChildByFieldName("function")
		if fn != nil && fn.Type() == "scoped_identifier" {
			path := fieldText(fn, "path", src)
			if path != "Self" && isTypeLike(lastSegment(path, "::")) && strings.HasPrefix(fieldText(fn, "name", src), "new") {
				return cleanTypeName(path), nil
			}
		}
		return "", n
	}
	return "", nil
}
