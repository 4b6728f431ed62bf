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
		receivers:    []string{"$this", "self", "static"},
		constructors: []string{"__construct"},
		separators:   []string{"->", "::", "?->"},

		returnType: func(n *sitter.Node, src []byte) string {
			return phpType(fieldText(n, "return_type", src))
		},
		params: phpParams,

		baseTypes: phpBaseTypes,
		fields:    phpFields,

		calleeText: phpCalleeText,
		imports:    phpImports,

		assignKinds: map[string]bool{"assignment_expression": true},
		assign:      phpAssign,
		valueType:   phpValueType,
	}, grammar.PHP)
}

// phpType cleans a declared type; scalar types are "".
func phpType(text string) string {
	switch typ := cleanTypeName(text); strings.ToLower(typ) {
	case "void", "mixed", "int", "float", "string", "bool", "array", "null", "callable", "iterable":
		return ""
	default:
		return typ
	}
}

func phpParams(n *sitter.Node, src []byte) map[string]string {
	out := make(map[string]string)
	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		switch p.Type() {
		case "simple_parameter", "property_promotion_parameter":
			if typ := phpType(fieldText(p, "type", src)); typ != "" {
				out[fieldText(p, "name", src)] = typ
			}
		}
	}
	return out
}

func phpBaseTypes(n *sitter.Node, src []byte) []string {
	var out []string
	for _, clause := range namedChildren(n) {
		switch clause.Type() {
		case "base_clause", "class_interface_clause":
			for _, c := range namedChildren(clause) {
				switch c.Type() {
				case "name", "qualified_name":
					out = append(out, cleanTypeName(nodeText(c, src)))
				}
			}
		}
	}
	return out
}

// phpFields reads typed properties and promoted constructor parameters.
// Keys drop the sigil, matching $this->name chains.
func phpFields(n *sitter.Node, src []byte) map[string]string {
	out := make(map[string]string)
	for _, d := range namedChildren(n.ChildByFieldName("body")) {
		switch d.Type() {
		case "property_declaration":
			typ := phpType(fieldText(d, "type", src))
			if typ == "" {
				continue
			}
			for _, el := range namedChildren(d) {
				if el.Type() == "property_element" {
					name := nodeText(firstOfKind(el, "variable_name"), src)
					out[strings.TrimPrefix(name, "$")] = typ
				}
			}
		case "method_declaration":
			if fieldText(d, "name", src) != "__construct" {
				continue
			}
			for _, p := range namedChildren(d.ChildByFieldName("parameters")) {
				if p.Type() != "property_promotion_parameter" {
					continue
				}
				if typ := phpType(fieldText(p, "type", src)); typ != "" {
					out[strings.TrimPrefix(fieldText(p, "name", src), "$")] = typ
				}
			}
		}
	}
	return out
}

func phpCalleeText(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "member_call_expression", "nullsafe_member_call_expression", "scoped_call_expression":
		return spanCallee(n, "name", src)
	}
	return fieldText(n, "function", src)
}

func phpImports(n *sitter.Node, src []byte) []string {
	var out []string
	for _, clause := range namedChildren(n) {
		if clause.Type() != "namespace_use_clause" {
			continue
		}
		if name := firstOfKind(clause, "qualified_name", "name"); name != nil {
			out = append(out, strings.TrimPrefix(nodeText(name, src), `\`))
		}
	}
	return out
}

func phpAssign(n *sitter.Node, src []byte) []assignment {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || right == nil {
		return nil
	}
	switch left.Type() {
	case "variable_name":
		return []assignment{{target: []string{nodeText(left, src)}, value: right}}
	case "member_access_expression":
		obj := left.ChildByFieldName("object")
		if obj != nil && obj.Type() == "variable_name" {
			return []assignment{{target: []string{nodeText(obj, src), fieldText(left, "name", src)}, value: right}}
		}
	}
	return nil
}

func phpValueType(n *sitter.Node, src []byte) (string, *sitter.Node) {
	switch n.Type() {
	case "object_creation_expression":
		if name := firstOfKind(n, "name", "qualified_name"); name != nil {
			return cleanTypeName(nodeText(name, src)), nil
		}
	case "function_call_expression", "member_call_expression", "scoped_call_expression":
		return "", n
	}
	return "", nil
}
