package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/callgraph/internal/grammar"
	"github.com/jward/callgraph/internal/resolve"
)

func init() {
	register(&langSpec{
		policy:     resolve.PolicyNone,
		separators: []string{".", "->"},

		functionName: cFunctionName,
		returnType:   cReturnType,

		typeName: cTypeName,
		typeBody: func(*sitter.Node) *sitter.Node { return nil },
		fields:   cFields,

		imports: cIncludes,
	}, grammar.C)

	register(&langSpec{
		policy:       resolve.PolicyQualified,
		receivers:    []string{"this"},
		separators:   []string{".", "->", "::"},
		implicitThis: true,

		functionName: cFunctionName,
		receiver:     cppQualifiedReceiver,
		returnType:   cReturnType,
		params:       cppParams,

		typeName: cTypeName,
		baseTypes: func(n *sitter.Node, src []byte) []string {
			return baseTypesFromList(firstOfKind(n, "base_class_clause"), src,
				"type_identifier", "qualified_identifier", "template_type")
		},
		fields: cFields,

		imports: cIncludes,

		assignKinds: map[string]bool{"declaration": true, "assignment_expression": true},
		assign:      cppAssign,
		valueType:   cppValueType,
	}, grammar.CPP)
}

// cFunctionDeclarator digs through pointer and reference declarators to
// the function_declarator of a definition.
func cFunctionDeclarator(n *sitter.Node) *sitter.Node {
	d := n.ChildByFieldName("declarator")
	for d != nil && d.Type() != "function_declarator" {
		next := d.ChildByFieldName("declarator")
		if next == nil {
			next = firstOfKind(d, "function_declarator")
		}
		d = next
	}
	return d
}

// cQualifiedName is the declared name of a function, possibly "Type::name".
func cQualifiedName(n *sitter.Node, src []byte) string {
	fd := cFunctionDeclarator(n)
	if fd == nil {
		return ""
	}
	return nodeText(fd.ChildByFieldName("declarator"), src)
}

func cFunctionName(n *sitter.Node, src []byte) string {
	name := cQualifiedName(n, src)
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	return strings.TrimSpace(name)
}

// cppQualifiedReceiver binds out-of-class definitions (Widget::draw) to
// their type.
func cppQualifiedReceiver(n *sitter.Node, src []byte) (string, string) {
	name := cQualifiedName(n, src)
	i := strings.LastIndex(name, "::")
	if i < 0 {
		return "", ""
	}
	return "", cleanTypeName(name[:i])
}

func cReturnType(n *sitter.Node, src []byte) string {
	switch typ := cleanTypeName(fieldText(n, "type", src)); typ {
	case "void", "int", "char", "float", "double", "long", "short", "bool", "unsigned", "auto", "size_t":
		return ""
	default:
		return typ
	}
}

func cTypeName(n *sitter.Node, src []byte) string {
	if n.Type() == "type_definition" {
		d := n.ChildByFieldName("declarator")
		if d == nil || d.Type() != "type_identifier" {
			return ""
		}
		return nodeText(d, src)
	}
	// struct Foo without a body is a reference, not a definition.
	if n.ChildByFieldName("body") == nil {
		return ""
	}
	return fieldText(n, "name", src)
}

// cDeclName returns the identifier a declarator introduces.
func cDeclName(d *sitter.Node, src []byte) string {
	for d != nil {
		switch d.Type() {
		case "identifier", "field_identifier":
			return nodeText(d, src)
		}
		next := d.ChildByFieldName("declarator")
		if next == nil {
			next = firstOfKind(d, "identifier", "field_identifier", "pointer_declarator", "reference_declarator")
		}
		d = next
	}
	return ""
}

func cFields(n *sitter.Node, src []byte) map[string]string {
	body := n.ChildByFieldName("body")
	if n.Type() == "type_definition" {
		if inner := n.ChildByFieldName("type"); inner != nil {
			body = inner.ChildByFieldName("body")
		}
	}
	out := make(map[string]string)
	for _, f := range namedChildren(body) {
		if f.Type() != "field_declaration" {
			continue
		}
		d := f.ChildByFieldName("declarator")
		if d == nil || d.Type() == "function_declarator" {
			continue
		}
		typ := cleanTypeName(fieldText(f, "type", src))
		if name := cDeclName(d, src); name != "" && typ != "" {
			out[name] = typ
		}
	}
	return out
}

func cIncludes(n *sitter.Node, src []byte) []string {
	if path := stringLiteralValue(fieldText(n, "path", src)); path != "" {
		return []string{path}
	}
	return nil
}

func cppParams(n *sitter.Node, src []byte) map[string]string {
	out := make(map[string]string)
	fd := cFunctionDeclarator(n)
	if fd == nil {
		return out
	}
	for _, p := range namedChildren(fd.ChildByFieldName("parameters")) {
		if p.Type() != "parameter_declaration" {
			continue
		}
		typ := cleanTypeName(fieldText(p, "type", src))
		if name := cDeclName(p.ChildByFieldName("declarator"), src); name != "" && typ != "" {
			out[name] = typ
		}
	}
	return out
}

func cppAssign(n *sitter.Node, src []byte) []assignment {
	if n.Type() == "assignment_expression" {
		left := n.ChildByFieldName("left")
		right := n.ChildByFieldName("right")
		if left == nil || right == nil {
			return nil
		}
		switch left.Type() {
		case "identifier":
			return []assignment{{target: []string{nodeText(left, src)}, value: right}}
		case "field_expression":
			arg := left.ChildByFieldName("argument")
			if arg != nil && (arg.Type() == "this" || arg.Type() == "identifier") {
				return []assignment{{target: []string{nodeText(arg, src), fieldText(left, "field", src)}, value: right}}
			}
		}
		return nil
	}

	typ := cReturnType(n, src)
	var out []assignment
	for _, d := range namedChildren(n) {
		a := assignment{typ: typ}
		switch d.Type() {
		case "init_declarator":
			a.value = d.ChildByFieldName("value")
		case "identifier", "pointer_declarator", "reference_declarator":
		default:
			continue
		}
		if name := cDeclName(d, src); name != "" && (a.typ != "" || a.value != nil) {
			a.target = []string{name}
			out = append(out, a)
		}
	}
	return out
}

func cppValueType(n *sitter.Node, src []byte) (string, *sitter.Node) {
	switch n.Type() {
	case "new_expression":
		return cleanTypeName(fieldText(n, "type", src)), nil
	case "call_expression":
		return "", n
	}
	return "", nil
}
