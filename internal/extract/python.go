package extract

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/callgraph/internal/grammar"
	"github.com/jward/callgraph/internal/resolve"
)

func init() {
	register(&langSpec{
		policy:       resolve.PolicyChain,
		receivers:    []string{"self", "cls"},
		constructors: []string{"__init__", "super"},
		ctorByCase:   true,

		returnType: func(n *sitter.Node, src []byte) string {
			return cleanTypeName(fieldText(n, "return_type", src))
		},
		params:    pythonParams,
		baseTypes: pythonBaseTypes,

		imports: pythonImports,

		assignKinds: map[string]bool{"assignment": true},
		assign:      pythonAssign,
		valueType:   pythonValueType,
	}, grammar.Python)
}

func pythonParams(n *sitter.Node, src []byte) map[string]string {
	out := make(map[string]string)
	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		switch p.Type() {
		case "typed_parameter":
			name := firstOfKind(p, "identifier")
			if typ := cleanTypeName(fieldText(p, "type", src)); name != nil && typ != "" {
				out[nodeText(name, src)] = typ
			}
		case "typed_default_parameter":
			if typ := cleanTypeName(fieldText(p, "type", src)); typ != "" {
				out[fieldText(p, "name", src)] = typ
			}
		}
	}
	return out
}

func pythonBaseTypes(n *sitter.Node, src []byte) []string {
	var out []string
	for _, c := range namedChildren(n.ChildByFieldName("superclasses")) {
		switch c.Type() {
		case "identifier", "attribute":
			out = append(out, nodeText(c, src))
		}
	}
	return out
}

func pythonImports(n *sitter.Node, src []byte) []string {
	if n.Type() == "import_from_statement" {
		module := fieldText(n, "module_name", src)
		if module == "" {
			return nil
		}
		return []string{module}
	}
	var out []string
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "dotted_name":
			out = append(out, nodeText(c, src))
		case "aliased_import":
			out = append(out, fieldText(c, "name", src))
		}
	}
	return out
}

func pythonAssign(n *sitter.Node, src []byte) []assignment {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil {
		return nil
	}
	// x: Foo = ... binds the annotation even without a value.
	if ann := cleanTypeName(fieldText(n, "type", src)); ann != "" {
		if target := pythonTarget(left, src); target != nil {
			return []assignment{{target: target, typ: ann}}
		}
	}
	if right == nil {
		return nil
	}
	target := pythonTarget(left, src)
	if target == nil {
		return nil
	}
	return []assignment{{target: target, value: right}}
}

// pythonTarget returns the chain of an assignable name or self attribute.
func pythonTarget(n *sitter.Node, src []byte) []string {
	switch n.Type() {
	case "identifier":
		return []string{nodeText(n, src)}
	case "attribute":
		obj := n.ChildByFieldName("object")
		if obj == nil || obj.Type() != "identifier" {
			return nil
		}
		return []string{nodeText(obj, src), fieldText(n, "attribute", src)}
	}
	return nil
}

func pythonValueType(n *sitter.Node, src []byte) (string, *sitter.Node) {
	switch n.Type() {
	case "call":
		return "", n
	case "await":
		if inner := firstOfKind(n, "call"); inner != nil {
			return "", inner
		}
	}
	return "", nil
}

