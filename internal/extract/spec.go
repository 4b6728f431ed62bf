package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/callgraph/internal/grammar"
	"github.com/jward/callgraph/internal/resolve"
)

// assignment is one `target = value` binding found in a function body. A
// declared type, when present, wins over the value.
type assignment struct {
	target []string // chain parts, e.g. ["self", "p"] or ["x"]
	value  *sitter.Node
	typ    string
}

// langSpec holds per-language hooks. Nil hooks fall back to the defaults in
// this file.
type langSpec struct {
	policy       resolve.Policy
	receivers    []string // keywords bound to the enclosing instance
	constructors []string // method names that denote the type itself
	separators   []string // chain separators, "." first
	implicitThis bool
	// ctorByCase treats a call to a capitalized name as instantiation when
	// inferring assigned types.
	ctorByCase bool

	functionName func(n *sitter.Node, src []byte) string
	// receiver returns the receiver variable and type of a method
	// declaration (Go).
	receiver   func(n *sitter.Node, src []byte) (name, typ string)
	body       func(n *sitter.Node) *sitter.Node
	returnType func(n *sitter.Node, src []byte) string
	params     func(n *sitter.Node, src []byte) map[string]string

	typeName  func(n *sitter.Node, src []byte) string
	baseTypes func(n *sitter.Node, src []byte) []string
	typeBody  func(n *sitter.Node) *sitter.Node
	fields    func(n *sitter.Node, src []byte) map[string]string

	calleeText func(n *sitter.Node, src []byte) string
	imports    func(n *sitter.Node, src []byte) []string
	// callImport reports module loads written as calls (require("x")).
	callImport func(callee string, n *sitter.Node, src []byte) (string, bool)

	assignKinds map[string]bool
	assign      func(n *sitter.Node, src []byte) []assignment
	// valueType returns the type a value constructs, or a call node whose
	// target's return type should be used.
	valueType func(n *sitter.Node, src []byte) (typ string, call *sitter.Node)
}

var specs = map[grammar.Language]*langSpec{}

func register(spec *langSpec, langs ...grammar.Language) {
	if len(spec.separators) == 0 {
		spec.separators = []string{"."}
	}
	for _, l := range langs {
		specs[l] = spec
	}
}

// nodeText returns the source text of a node, or "" for a nil node.
func nodeText(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return string(src[n.StartByte():n.EndByte()])
}

func fieldText(n *sitter.Node, field string, src []byte) string {
	if n == nil {
		return ""
	}
	return nodeText(n.ChildByFieldName(field), src)
}

// namedChildren returns n's named children in order.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

// firstOfKind returns the first named child of n with one of kinds.
func firstOfKind(n *sitter.Node, kinds ...string) *sitter.Node {
	for _, c := range namedChildren(n) {
		for _, k := range kinds {
			if c.Type() == k {
				return c
			}
		}
	}
	return nil
}

func defaultFunctionName(n *sitter.Node, src []byte) string {
	return fieldText(n, "name", src)
}

func defaultBody(n *sitter.Node) *sitter.Node {
	return n.ChildByFieldName("body")
}

func defaultTypeName(n *sitter.Node, src []byte) string {
	return fieldText(n, "name", src)
}

// defaultCalleeText is the text of the call's "function" field.
func defaultCalleeText(n *sitter.Node, src []byte) string {
	return nodeText(n.ChildByFieldName("function"), src)
}

// spanCallee returns the text from the start of the call to the end of its
// name field, for grammars that split object and method (Java, PHP, Ruby).
func spanCallee(n *sitter.Node, nameField string, src []byte) string {
	name := n.ChildByFieldName(nameField)
	if name == nil {
		return nodeText(n, src)
	}
	return string(src[n.StartByte():name.EndByte()])
}

// normalizeCallee reduces callee text to a bare chain. Bracketed groups
// and whitespace are dropped, then generic arguments. Text that is not a
// name chain afterwards yields "".
func normalizeCallee(text string) string {
	var b strings.Builder
	depth := 0
	gap := false
	for _, r := range text {
		switch {
		case r == '(' || r == '[' || r == '{':
			depth++
		case r == ')' || r == ']' || r == '}':
			if depth > 0 {
				depth--
			}
		case depth > 0:
		case unicode.IsSpace(r):
			gap = true
		default:
			// A space not adjoining a separator starts a new chain, so
			// "new Foo().bar" becomes "Foo.bar".
			if gap && !strings.ContainsRune(".:-?&", r) && !endsWithSeparator(b.String()) {
				b.Reset()
			}
			gap = false
			b.WriteRune(r)
		}
	}
	text = stripGenerics(b.String())
	for _, r := range text {
		if !isCalleeRune(r) {
			return ""
		}
	}
	text = strings.TrimLeft(text, ".:")
	return strings.TrimRight(text, ".:->?!")
}

func endsWithSeparator(s string) bool {
	return s != "" && strings.ContainsRune(".:>&", rune(s[len(s)-1]))
}

func isCalleeRune(r rune) bool {
	switch r {
	case '_', '$', '@', '.', ':', '-', '>', '\\', '?', '!':
		return true
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// stripGenerics removes <...> groups, keeping "->" intact.
func stripGenerics(text string) string {
	if !strings.Contains(text, "<") {
		return text
	}
	var b strings.Builder
	depth := 0
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case ch == '<':
			depth++
		case ch == '>' && i > 0 && text[i-1] == '-' && depth == 0:
			b.WriteByte(ch)
		case ch == '>':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// cleanTypeName reduces a type expression to its base identifier:
// "*pkg.Server" -> "Server", "List<Foo>" -> "List", "Optional[Foo]" -> "Foo".
func cleanTypeName(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, ":")
	text = strings.TrimSpace(text)
	text = strings.Trim(text, `"'`)
	for _, wrapper := range []string{"Optional[", "typing.Optional["} {
		if strings.HasPrefix(text, wrapper) && strings.HasSuffix(text, "]") {
			text = text[len(wrapper) : len(text)-1]
		}
	}
	if i := strings.IndexAny(text, "[<("); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimLeft(text, "*&?^ ")
	text = strings.TrimSuffix(text, "?")
	text = strings.TrimRight(text, "*& ")
	text = strings.TrimPrefix(text, "const ")
	text = strings.TrimPrefix(text, "mut ")
	text = strings.TrimPrefix(text, "&")
	if i := strings.LastIndexAny(text, ".:\\"); i >= 0 {
		text = text[i+1:]
	}
	return strings.TrimSpace(text)
}

// isTypeLike reports whether name starts with an upper-case letter, the
// constructor heuristic for dynamically typed languages.
func isTypeLike(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return r != utf8.RuneError && unicode.IsUpper(r)
}

// lastSegment returns the final chain part of a callee.
func lastSegment(text string, seps ...string) string {
	parts := resolve.SplitChain(text, seps...)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// baseTypesFromList collects identifier-like children of a base list node.
func baseTypesFromList(list *sitter.Node, src []byte, kinds ...string) []string {
	if list == nil {
		return nil
	}
	var out []string
	for _, c := range namedChildren(list) {
		for _, k := range kinds {
			if c.Type() == k {
				if name := nodeText(c, src); name != "" {
					out = append(out, name)
				}
				break
			}
		}
	}
	return out
}

// stringLiteralValue strips quotes and brackets from an import path.
func stringLiteralValue(text string) string {
	return strings.Trim(strings.TrimSpace(text), "\"'`<>")
}
