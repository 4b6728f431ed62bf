package extract

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/callgraph/internal/grammar"
	"github.com/jward/callgraph/internal/resolve"
)

// Java and C# share the class-centric shape: implicit this, declared field
// and local types, and `new T()` instantiation.

func init() {
	register(&langSpec{
		policy:       resolve.PolicyChain,
		receivers:    []string{"this"},
		implicitThis: true,

		returnType: func(n *sitter.Node, src []byte) string {
			return declaredType(fieldText(n, "type", src))
		},
		params: javaParams,

		baseTypes: javaBaseTypes,
		fields:    javaFields,

		calleeText: func(n *sitter.Node, src []byte) string {
			return spanCallee(n, "name", src)
		},
		imports: func(n *sitter.Node, src []byte) []string {
			if id := firstOfKind(n, "scoped_identifier", "identifier"); id != nil {
				return []string{nodeText(id, src)}
			}
			return nil
		},

		assignKinds: map[string]bool{"local_variable_declaration": true, "assignment_expression": true},
		assign:      javaAssign,
		valueType:   jvmValueType,
	}, grammar.Java)

	register(&langSpec{
		policy:       resolve.PolicyChain,
		receivers:    []string{"this"},
		implicitThis: true,

		returnType: func(n *sitter.Node, src []byte) string {
			if t := fieldText(n, "returns", src); t != "" {
				return declaredType(t)
			}
			return declaredType(fieldText(n, "type", src))
		},
		params: csharpParams,

		baseTypes: func(n *sitter.Node, src []byte) []string {
			return baseTypesFromList(firstOfKind(n, "base_list"), src,
				"identifier", "qualified_name", "generic_name")
		},
		fields: csharpFields,

		imports: func(n *sitter.Node, src []byte) []string {
			if id := firstOfKind(n, "qualified_name", "identifier"); id != nil {
				return []string{nodeText(id, src)}
			}
			return nil
		},

		assignKinds: map[string]bool{"local_declaration_statement": true, "assignment_expression": true},
		assign:      csharpAssign,
		valueType:   jvmValueType,
	}, grammar.CSharp)
}

// declaredType cleans a declared type, dropping void and primitives.
func declaredType(text string) string {
	switch typ := cleanTypeName(text); typ {
	case "void", "var", "int", "long", "short", "byte", "char", "float", "double", "boolean", "bool":
		return ""
	default:
		return typ
	}
}

func javaParams(n *sitter.Node, src []byte) map[string]string {
	out := make(map[string]string)
	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		if p.Type() != "formal_parameter" {
			continue
		}
		if typ := declaredType(fieldText(p, "type", src)); typ != "" {
			out[fieldText(p, "name", src)] = typ
		}
	}
	return out
}

func javaBaseTypes(n *sitter.Node, src []byte) []string {
	var out []string
	if sc := n.ChildByFieldName("superclass"); sc != nil {
		out = append(out, baseTypesFromList(sc, src, "type_identifier", "scoped_type_identifier", "generic_type")...)
	}
	if ifaces := n.ChildByFieldName("interfaces"); ifaces != nil {
		out = append(out, baseTypesFromList(firstOfKind(ifaces, "type_list"), src,
			"type_identifier", "scoped_type_identifier", "generic_type")...)
	}
	for i, b := range out {
		out[i] = cleanTypeName(b)
	}
	return out
}

func javaFields(n *sitter.Node, src []byte) map[string]string {
	out := make(map[string]string)
	for _, f := range namedChildren(n.ChildByFieldName("body")) {
		if f.Type() != "field_declaration" {
			continue
		}
		typ := declaredType(fieldText(f, "type", src))
		if typ == "" {
			continue
		}
		for _, d := range namedChildren(f) {
			if d.Type() == "variable_declarator" {
				out[fieldText(d, "name", src)] = typ
			}
		}
	}
	return out
}

func javaAssign(n *sitter.Node, src []byte) []assignment {
	if n.Type() == "assignment_expression" {
		return jvmAssignExpr(n, src, "field_access", "object", "field")
	}
	typ := declaredType(fieldText(n, "type", src))
	var out []assignment
	for _, d := range namedChildren(n) {
		if d.Type() != "variable_declarator" {
			continue
		}
		a := assignment{target: []string{fieldText(d, "name", src)}, value: d.ChildByFieldName("value"), typ: typ}
		if a.typ != "" || a.value != nil {
			out = append(out, a)
		}
	}
	return out
}

// jvmAssignExpr handles `x = v` and `this.x = v`.
func jvmAssignExpr(n *sitter.Node, src []byte, memberKind, objField, nameField string) []assignment {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || right == nil {
		return nil
	}
	switch left.Type() {
	case "identifier":
		return []assignment{{target: []string{nodeText(left, src)}, value: right}}
	case memberKind:
		obj := left.ChildByFieldName(objField)
		if obj != nil && (obj.Type() == "this" || obj.Type() == "this_expression" || obj.Type() == "identifier") {
			return []assignment{{target: []string{nodeText(obj, src), fieldText(left, nameField, src)}, value: right}}
		}
	}
	return nil
}

func csharpParams(n *sitter.Node, src []byte) map[string]string {
	out := make(map[string]string)
	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		if p.Type() != "parameter" {
			continue
		}
		if typ := declaredType(fieldText(p, "type", src)); typ != "" {
			out[fieldText(p, "name", src)] = typ
		}
	}
	return out
}

// csharpDeclarators yields name and initializer of each variable_declarator.
func csharpDeclarators(decl *sitter.Node, src []byte, fn func(name string, value *sitter.Node)) {
	for _, d := range namedChildren(decl) {
		if d.Type() != "variable_declarator" {
			continue
		}
		name := fieldText(d, "name", src)
		if name == "" {
			name = nodeText(firstOfKind(d, "identifier"), src)
		}
		var value *sitter.Node
		for _, c := range namedChildren(d) {
			switch c.Type() {
			case "identifier", "bracketed_argument_list":
			case "equals_value_clause":
				if inner := namedChildren(c); len(inner) > 0 {
					value = inner[0]
				}
			default:
				value = c
			}
		}
		fn(name, value)
	}
}

func csharpFields(n *sitter.Node, src []byte) map[string]string {
	out := make(map[string]string)
	for _, f := range namedChildren(n.ChildByFieldName("body")) {
		switch f.Type() {
		case "field_declaration":
			decl := firstOfKind(f, "variable_declaration")
			typ := declaredType(fieldText(decl, "type", src))
			if typ == "" {
				continue
			}
			csharpDeclarators(decl, src, func(name string, _ *sitter.Node) {
				out[name] = typ
			})
		case "property_declaration":
			if typ := declaredType(fieldText(f, "type", src)); typ != "" {
				out[fieldText(f, "name", src)] = typ
			}
		}
	}
	return out
}

func csharpAssign(n *sitter.Node, src []byte) []assignment {
	if n.Type() == "assignment_expression" {
		return jvmAssignExpr(n, src, "member_access_expression", "expression", "name")
	}
	decl := firstOfKind(n, "variable_declaration")
	if decl == nil {
		return nil
	}
	typ := declaredType(fieldText(decl, "type", src))
	var out []assignment
	csharpDeclarators(decl, src, func(name string, value *sitter.Node) {
		if name != "" && (typ != "" || value != nil) {
			out = append(out, assignment{target: []string{name}, value: value, typ: typ})
		}
	})
	return out
}

func jvmValueType(n *sitter.Node, src []byte) (string, *sitter.Node) {
	switch n.Type() {
	case "object_creation_expression":
		return declaredType(fieldText(n, "type", src)), nil
	case "method_invocation", "invocation_expression":
		return "", n
	case "cast_expression":
		return declaredType(fieldText(n, "type", src)), nil
	}
	return "", nil
}
