package extract

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/callgraph/internal/grammar"
	"github.com/jward/callgraph/internal/resolve"
)

func init() {
	register(&langSpec{
		policy:       resolve.PolicyChain,
		receivers:    []string{"this"},
		constructors: []string{"constructor", "super"},
		separators:   []string{".", "?."},

		functionName: jsFunctionName,
		body:         jsBody,
		returnType:   jsReturnType,
		params:       jsParams,

		baseTypes: jsBaseTypes,
		fields:    jsFields,

		imports: func(n *sitter.Node, src []byte) []string {
			return []string{stringLiteralValue(fieldText(n, "source", src))}
		},
		callImport: jsCallImport,

		assignKinds: map[string]bool{"variable_declarator": true, "assignment_expression": true},
		assign:      jsAssign,
		valueType:   jsValueType,
	}, grammar.JavaScript, grammar.TypeScript, grammar.TSX)
}

func jsFunctionValue(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}

// jsFunctionName also names `const f = () => {}` bindings.
func jsFunctionName(n *sitter.Node, src []byte) string {
	if n.Type() == "variable_declarator" {
		name := n.ChildByFieldName("name")
		if name == nil || name.Type() != "identifier" || !jsFunctionValue(n.ChildByFieldName("value")) {
			return ""
		}
		return nodeText(name, src)
	}
	return fieldText(n, "name", src)
}

func jsBody(n *sitter.Node) *sitter.Node {
	if n.Type() == "variable_declarator" {
		if v := n.ChildByFieldName("value"); v != nil {
			return v.ChildByFieldName("body")
		}
		return nil
	}
	return n.ChildByFieldName("body")
}

func jsReturnType(n *sitter.Node, src []byte) string {
	if n.Type() == "variable_declarator" {
		n = n.ChildByFieldName("value")
	}
	return cleanTypeName(fieldText(n, "return_type", src))
}

func jsParams(n *sitter.Node, src []byte) map[string]string {
	out := make(map[string]string)
	if n.Type() == "variable_declarator" {
		n = n.ChildByFieldName("value")
	}
	if n == nil {
		return out
	}
	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		switch p.Type() {
		case "required_parameter", "optional_parameter":
			pattern := p.ChildByFieldName("pattern")
			typ := cleanTypeName(fieldText(p, "type", src))
			if pattern != nil && pattern.Type() == "identifier" && typ != "" {
				out[nodeText(pattern, src)] = typ
			}
		}
	}
	return out
}

func jsBaseTypes(n *sitter.Node, src []byte) []string {
	var out []string
	add := func(c *sitter.Node) {
		switch c.Type() {
		case "identifier", "type_identifier", "member_expression", "nested_type_identifier", "generic_type":
			out = append(out, cleanTypeName(nodeText(c, src)))
		}
	}
	for _, c := range namedChildren(firstOfKind(n, "class_heritage")) {
		switch c.Type() {
		case "extends_clause", "implements_clause":
			for _, t := range namedChildren(c) {
				add(t)
			}
		default:
			add(c)
		}
	}
	return out
}

// jsFields reads typed TypeScript class fields.
func jsFields(n *sitter.Node, src []byte) map[string]string {
	out := make(map[string]string)
	for _, f := range namedChildren(n.ChildByFieldName("body")) {
		if f.Type() != "public_field_definition" {
			continue
		}
		if typ := cleanTypeName(fieldText(f, "type", src)); typ != "" {
			out[fieldText(f, "name", src)] = typ
		}
	}
	return out
}

// jsCallImport records require("x") and dynamic import("x").
func jsCallImport(callee string, n *sitter.Node, src []byte) (string, bool) {
	if callee != "require" && callee != "import" {
		return "", false
	}
	arg := firstOfKind(n.ChildByFieldName("arguments"), "string")
	if arg == nil {
		return "", false
	}
	return stringLiteralValue(nodeText(arg, src)), true
}

func jsAssign(n *sitter.Node, src []byte) []assignment {
	if n.Type() == "variable_declarator" {
		name := n.ChildByFieldName("name")
		if name == nil || name.Type() != "identifier" {
			return nil
		}
		a := assignment{
			target: []string{nodeText(name, src)},
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
	if left == nil || right == nil {
		return nil
	}
	switch left.Type() {
	case "identifier":
		return []assignment{{target: []string{nodeText(left, src)}, value: right}}
	case "member_expression":
		obj := left.ChildByFieldName("object")
		if obj != nil && (obj.Type() == "this" || obj.Type() == "identifier") {
			return []assignment{{target: []string{nodeText(obj, src), fieldText(left, "property", src)}, value: right}}
		}
	}
	return nil
}

func jsValueType(n *sitter.Node, src []byte) (string, *sitter.Node) {
	switch n.Type() {
	case "new_expression":
		return cleanTypeName(fieldText(n, "constructor", src)), nil
	case "call_expression":
		return "", n
	case "await_expression":
		if inner := namedChildren(n); len(inner) > 0 {
			return jsValueType(inner[0], src)
		}
	}
	return "", nil
}
