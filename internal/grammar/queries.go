package grammar

// Role is the structural role a syntax node plays for extraction.
type Role int

const (
	RoleOther Role = iota
	RoleFunctionDef
	RoleTypeDef
	RoleCallExpr
	RoleImport
)

func (r Role) String() string {
	switch r {
	case RoleFunctionDef:
		return "function_def"
	case RoleTypeDef:
		return "type_def"
	case RoleCallExpr:
		return "call_expr"
	case RoleImport:
		return "import"
	default:
		return "other"
	}
}

// Queries lists, per role, the node kinds that carry it in one grammar.
type Queries struct {
	Functions []string
	Types     []string
	Calls     []string
	Imports   []string
}

// roleIndex flattens Queries into a kind -> Role lookup.
func (q Queries) roleIndex() map[string]Role {
	idx := make(map[string]Role)
	for _, k := range q.Functions {
		idx[k] = RoleFunctionDef
	}
	for _, k := range q.Types {
		idx[k] = RoleTypeDef
	}
	for _, k := range q.Calls {
		idx[k] = RoleCallExpr
	}
	for _, k := range q.Imports {
		idx[k] = RoleImport
	}
	return idx
}

var jsQueries = Queries{
	Functions: []string{"function_declaration", "generator_function_declaration", "method_definition", "variable_declarator"},
	Types:     []string{"class_declaration", "class"},
	Calls:     []string{"call_expression"},
	Imports:   []string{"import_statement"},
}

var tsQueries = Queries{
	Functions: []string{"function_declaration", "generator_function_declaration", "method_definition", "variable_declarator"},
	Types:     []string{"class_declaration", "abstract_class_declaration", "class", "interface_declaration"},
	Calls:     []string{"call_expression"},
	Imports:   []string{"import_statement"},
}

var queries = map[Language]Queries{
	Python: {
		Functions: []string{"function_definition"},
		Types:     []string{"class_definition"},
		Calls:     []string{"call"},
		Imports:   []string{"import_statement", "import_from_statement"},
	},
	Go: {
		Functions: []string{"function_declaration", "method_declaration"},
		Types:     []string{"type_spec"},
		Calls:     []string{"call_expression"},
		Imports:   []string{"import_spec"},
	},
	C: {
		Functions: []string{"function_definition"},
		Types:     []string{"struct_specifier", "type_definition"},
		Calls:     []string{"call_expression"},
		Imports:   []string{"preproc_include"},
	},
	CPP: {
		Functions: []string{"function_definition"},
		Types:     []string{"class_specifier", "struct_specifier"},
		Calls:     []string{"call_expression"},
		Imports:   []string{"preproc_include"},
	},
	Java: {
		Functions: []string{"method_declaration", "constructor_declaration"},
		Types:     []string{"class_declaration", "interface_declaration", "enum_declaration", "record_declaration"},
		Calls:     []string{"method_invocation"},
		Imports:   []string{"import_declaration"},
	},
	CSharp: {
		Functions: []string{"method_declaration", "constructor_declaration", "local_function_statement"},
		Types:     []string{"class_declaration", "struct_declaration", "interface_declaration", "record_declaration"},
		Calls:     []string{"invocation_expression"},
		Imports:   []string{"using_directive"},
	},
	JavaScript: jsQueries,
	TypeScript: tsQueries,
	TSX:        tsQueries,
	PHP: {
		Functions: []string{"function_definition", "method_declaration"},
		Types:     []string{"class_declaration", "interface_declaration", "trait_declaration"},
		Calls:     []string{"function_call_expression", "member_call_expression", "scoped_call_expression"},
		Imports:   []string{"namespace_use_declaration"},
	},
	Ruby: {
		Functions: []string{"method", "singleton_method"},
		Types:     []string{"class", "module"},
		Calls:     []string{"call"},
	},
	Rust: {
		Functions: []string{"function_item"},
		Types:     []string{"struct_item", "enum_item", "trait_item", "impl_item"},
		Calls:     []string{"call_expression"},
		Imports:   []string{"use_declaration"},
	},
}

// QueriesFor returns the structural queries for lang.
func QueriesFor(lang Language) (Queries, bool) {
	q, ok := queries[lang]
	return q, ok
}
