package extract

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/callgraph/internal/grammar"
	"github.com/jward/callgraph/internal/resolve"
)

func init() {
	register(&langSpec{
		policy: resolve.PolicyChain,

		receiver:   goReceiver,
		returnType: goReturnType,
		params:     goParams,

		typeBody:  func(*sitter.Node) *sitter.Node { return nil },
		baseTypes: goEmbedded,
		fields:    goFields,

		calleeText: goCalleeText,
		imports: func(n *sitter.Node, src []byte) []string {
			return []string{stringLiteralValue(fieldText(n, "path", src))}
		},

		assignKinds: map[string]bool{
			"short_var_declaration": true,
			"assignment_statement":  true,
			"var_spec":              true,
		},
		assign:    goAssign,
		valueType: goValueType,
	}, grammar.Go)
}

func goReceiver(n *sitter.Node, src []byte) (string, string) {
	if n.Type() != "method_declaration" {
		return "", ""
	}
	p := firstOfKind(n.ChildByFieldName("receiver"), "parameter_declaration")
	if p == nil {
		return "", ""
	}
	return fieldText(p, "name", src), cleanTypeName(fieldText(p, "type", src))
}

// goReturnType is the first result type, "" for none.
func goReturnType(n *sitter.Node, src []byte) string {
	result := n.ChildByFieldName("result")
	if result == nil {
		return ""
	}
	if result.Type() == "parameter_list" {
		p := firstOfKind(result, "parameter_declaration")
		if p == nil {
			return ""
		}
		result = p.ChildByFieldName("type")
	}
	return goTypeName(result, src)
}

// goTypeName names a declared type; builtins and anonymous types are "".
func goTypeName(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "type_identifier", "qualified_type", "pointer_type", "generic_type":
		name := cleanTypeName(nodeText(n, src))
		if name == "error" {
			return ""
		}
		return name
	}
	return ""
}

func goParams(n *sitter.Node, src []byte) map[string]string {
	out := make(map[string]string)
	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		if p.Type() != "parameter_declaration" {
			continue
		}
		typ := goTypeName(p.ChildByFieldName("type"), src)
		if typ == "" {
			continue
		}
		for _, id := range namedChildren(p) {
			if id.Type() == "identifier" {
				out[nodeText(id, src)] = typ
			}
		}
	}
	return out
}

func goStructFields(n *sitter.Node) []*sitter.Node {
	st := n.ChildByFieldName("type")
	if st == nil || st.Type() != "struct_type" {
		return nil
	}
	var out []*sitter.Node
	for _, f := range namedChildren(firstOfKind(st, "field_declaration_list")) {
		if f.Type() == "field_declaration" {
			out = append(out, f)
		}
	}
	return out
}

func goFields(n *sitter.Node, src []byte) map[string]string {
	out := make(map[string]string)
	for _, f := range goStructFields(n) {
		typ := goTypeName(f.ChildByFieldName("type"), src)
		if typ == "" {
			continue
		}
		for _, id := range namedChildren(f) {
			if id.Type() == "field_identifier" {
				out[nodeText(id, src)] = typ
			}
		}
	}
	return out
}

// goEmbedded lists embedded struct fields.
func goEmbedded(n *sitter.Node, src []byte) []string {
	var out []string
	for _, f := range goStructFields(n) {
		if firstOfKind(f, "field_identifier") != nil {
			continue
		}
		if typ := goTypeName(f.ChildByFieldName("type"), src); typ != "" {
			out = append(out, typ)
		}
	}
	return out
}

func goCalleeText(n *sitter.Node, src []byte) string {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "func_literal", "parenthesized_expression":
		return ""
	}
	return nodeText(fn, src)
}

func goAssign(n *sitter.Node, src []byte) []assignment {
	if n.Type() == "var_spec" {
		var out []assignment
		typ := goTypeName(n.ChildByFieldName("type"), src)
		values := namedChildren(n.ChildByFieldName("value"))
		i := 0
		for _, id := range namedChildren(n) {
			if id.Type() != "identifier" {
				continue
			}
			a := assignment{target: []string{nodeText(id, src)}, typ: typ}
			if i < len(values) {
				a.value = values[i]
			}
			if a.typ != "" || a.value != nil {
				out = append(out, a)
			}
			i++
		}
		return out
	}

	left := namedChildren(n.ChildByFieldName("left"))
	right := namedChildren(n.ChildByFieldName("right"))
	var out []assignment
	for i, l := range left {
		if i >= len(right) {
			break
		}
		if target := goTarget(l, src); target != nil {
			out = append(out, assignment{target: target, value: right[i]})
		}
	}
	return out
}

func goTarget(n *sitter.Node, src []byte) []string {
	switch n.Type() {
	case "identifier":
		if name := nodeText(n, src); name != "_" {
			return []string{name}
		}
	case "selector_expression":
		operand := n.ChildByFieldName("operand")
		if operand != nil && operand.Type() == "identifier" {
			return []string{nodeText(operand, src), fieldText(n, "field", src)}
		}
	}
	return nil
}

func goValueType(n *sitter.Node, src []byte) (string, *sitter.Node) {
	switch n.Type() {
	case "composite_literal":
		return goTypeName(n.ChildByFieldName("type"), src), nil
	case "unary_expression":
		if operand := n.ChildByFieldName("operand"); operand != nil {
			return goValueType(operand, src)
		}
	case "call_expression":
		if fieldText(n, "function", src) == "new" {
			args := namedChildren(n.ChildByFieldName("arguments"))
			if len(args) > 0 {
				return cleanTypeName(nodeText(args[0], src)), nil
			}
			return "", nil
		}
		return "", n
	}
	return "", nil
}
