// Package extract walks one file's syntax tree and produces its functions,
// types, imports and raw calls, then resolves those calls into a
// FileSummary.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/callgraph/internal/grammar"
	"github.com/jward/callgraph/internal/graph"
	"github.com/jward/callgraph/internal/logging"
	"github.com/jward/callgraph/internal/resolve"
)

// DefaultMaxSteps caps the nodes popped from the traversal stack per file.
const DefaultMaxSteps = 50000

// ErrStepBudget is returned when a file needs more traversal steps than
// the extractor allows.
var ErrStepBudget = errors.New("traversal step budget exceeded")

// cancelCheckInterval is how many steps pass between context checks.
const cancelCheckInterval = 1024

// Extractor turns source text into raw entities. It shares the worker's
// Registry and is not safe for concurrent use.
type Extractor struct {
	registry *grammar.Registry
	maxSteps int
	logger   *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxSteps sets the traversal budget per file.
func WithMaxSteps(n int) Option {
	return func(e *Extractor) { e.maxSteps = n }
}

// WithLogger sets the extractor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New returns an Extractor over registry.
func New(registry *grammar.Registry, opts ...Option) *Extractor {
	e := &Extractor{registry: registry, maxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDiscard(e.logger)
	if e.maxSteps <= 0 {
		e.maxSteps = DefaultMaxSteps
	}
	return e
}

// frame is one pending node on the traversal stack.
type frame struct {
	node          *sitter.Node
	enclosingType string
	fn            *fnState // innermost function whose body contains node
}

type fnState struct {
	entity    *graph.FunctionEntity
	receivers []string
}

type pendingAssign struct {
	fn *fnState
	a  assignment
}

// fileState is the working state of one extraction.
type fileState struct {
	lang     grammar.Language
	spec     *langSpec
	resolver *resolve.Resolver
	src      []byte
	summary  *graph.FileSummary

	fns      []*fnState
	fnIndex  map[string]int // function key -> index in fns
	assigns  []pendingAssign
	instance map[string]map[string]string // type -> member -> type
	methods  map[string]map[string]bool   // type -> method names
}

// Extraction is the raw result for one file, before call resolution.
type Extraction struct {
	Summary *graph.FileSummary
	state   *fileState
}

// Extract parses src as lang and collects raw entities. Calls are recorded
// unresolved; symbol tables are populated.
func (e *Extractor) Extract(ctx context.Context, lang grammar.Language, src []byte) (*Extraction, error) {
	spec, ok := specs[lang]
	if !ok || !e.registry.Has(lang) {
		return nil, fmt.Errorf("extract: language %q not available", lang)
	}
	tree, err := e.registry.Parse(ctx, lang, src)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	defer tree.Close()

	st := &fileState{
		lang:     lang,
		spec:     spec,
		resolver: resolve.New(spec.policy, spec.constructors...),
		src:      src,
		summary:  graph.NewFileSummary(string(lang)),
		fnIndex:  make(map[string]int),
		instance: make(map[string]map[string]string),
		methods:  make(map[string]map[string]bool),
	}
	if err := e.walk(ctx, st, tree.RootNode()); err != nil {
		return nil, err
	}
	st.finish()
	return &Extraction{Summary: st.summary, state: st}, nil
}

// walk traverses the tree with an explicit stack. Children are pushed in
// reverse so nodes are visited in source order.
func (e *Extractor) walk(ctx context.Context, st *fileState, root *sitter.Node) error {
	stack := []frame{{node: root}}
	steps := 0
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		steps++
		if steps > e.maxSteps {
			return fmt.Errorf("extract: %w (%d)", ErrStepBudget, e.maxSteps)
		}
		if steps%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("extract: %w", err)
			}
		}

		n := f.node
		if n == nil || n.IsNull() {
			continue
		}

		var next []frame
		handled := false
		switch e.registry.RoleOf(st.lang, n.Type()) {
		case grammar.RoleFunctionDef:
			next, handled = st.enterFunction(f)
		case grammar.RoleTypeDef:
			next, handled = st.enterType(f)
		case grammar.RoleImport:
			st.recordImports(n)
			handled = true
		case grammar.RoleCallExpr:
			st.recordCall(f)
		}
		if !handled && f.fn != nil && st.spec.assignKinds[n.Type()] && st.spec.assign != nil {
			for _, a := range st.spec.assign(n, st.src) {
				st.assigns = append(st.assigns, pendingAssign{fn: f.fn, a: a})
			}
		}

		if handled {
			for i := len(next) - 1; i >= 0; i-- {
				stack = append(stack, next[i])
			}
			continue
		}
		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: n.NamedChild(i), enclosingType: f.enclosingType, fn: f.fn})
		}
	}
	return nil
}

func row(p sitter.Point) int {
	return int(p.Row)
}

func (st *fileState) enterFunction(f frame) ([]frame, bool) {
	n := f.node
	nameFn := st.spec.functionName
	if nameFn == nil {
		nameFn = defaultFunctionName
	}
	name := nameFn(n, st.src)
	if name == "" {
		return nil, false
	}

	enclosing := f.enclosingType
	receivers := st.spec.receivers
	if st.spec.receiver != nil {
		if rName, rType := st.spec.receiver(n, st.src); rType != "" {
			enclosing = rType
			if rName != "" && rName != "_" {
				receivers = []string{rName}
			}
		}
	}

	fn := &graph.FunctionEntity{
		Name:          name,
		StartLine:     row(n.StartPoint()),
		EndLine:       row(n.EndPoint()),
		EnclosingType: enclosing,
		LocalSymbols:  make(map[string]string),
	}
	if fn.EndLine < fn.StartLine {
		fn.EndLine = fn.StartLine
	}
	if st.spec.returnType != nil {
		fn.ReturnType = st.spec.returnType(n, st.src)
		if fn.ReturnType == "Self" || fn.ReturnType == "self" || fn.ReturnType == "static" {
			fn.ReturnType = enclosing
		}
	}
	if st.spec.params != nil {
		for k, v := range st.spec.params(n, st.src) {
			fn.LocalSymbols[k] = v
		}
	}

	fs := &fnState{entity: fn, receivers: receivers}
	key := fn.Key()
	if i, ok := st.fnIndex[key]; ok {
		st.fns[i] = fs
	} else {
		st.fnIndex[key] = len(st.fns)
		st.fns = append(st.fns, fs)
	}
	st.summary.Functions[key] = fn

	bodyFn := st.spec.body
	if bodyFn == nil {
		bodyFn = defaultBody
	}
	return children(bodyFn(n), n, enclosing, fs), true
}

// children returns the frames to descend into for a definition. A body hook
// returning the definition itself means its statements are direct children.
func children(body, def *sitter.Node, enclosing string, fs *fnState) []frame {
	if body == nil {
		return nil
	}
	if !body.Equal(def) {
		return []frame{{node: body, enclosingType: enclosing, fn: fs}}
	}
	out := make([]frame, 0, def.NamedChildCount())
	for _, c := range namedChildren(def) {
		out = append(out, frame{node: c, enclosingType: enclosing, fn: fs})
	}
	return out
}

func (st *fileState) enterType(f frame) ([]frame, bool) {
	n := f.node
	nameFn := st.spec.typeName
	if nameFn == nil {
		nameFn = defaultTypeName
	}
	name := nameFn(n, st.src)
	if name == "" {
		return nil, false
	}

	t, ok := st.summary.Types[name]
	if !ok {
		t = &graph.TypeEntity{
			Name:      name,
			StartLine: row(n.StartPoint()),
			EndLine:   row(n.EndPoint()),
		}
		st.summary.Types[name] = t
	}
	if st.spec.baseTypes != nil {
		for _, b := range st.spec.baseTypes(n, st.src) {
			if !containsString(t.BaseTypes, b) {
				t.BaseTypes = append(t.BaseTypes, b)
			}
		}
	}
	if st.spec.fields != nil {
		for member, typ := range st.spec.fields(n, st.src) {
			st.instanceTable(name)[member] = typ
		}
	}

	bodyFn := st.spec.typeBody
	if bodyFn == nil {
		bodyFn = defaultBody
	}
	return children(bodyFn(n), n, name, nil), true
}

func (st *fileState) recordImports(n *sitter.Node) {
	if st.spec.imports == nil {
		return
	}
	for _, imp := range st.spec.imports(n, st.src) {
		st.summary.AddImport(imp)
	}
}

func (st *fileState) recordCall(f frame) {
	calleeFn := st.spec.calleeText
	if calleeFn == nil {
		calleeFn = defaultCalleeText
	}
	text := normalizeCallee(calleeFn(f.node, st.src))
	if st.spec.callImport != nil {
		if imp, ok := st.spec.callImport(text, f.node, st.src); ok {
			st.summary.AddImport(imp)
		}
	}
	if f.fn == nil || text == "" {
		return
	}
	f.fn.entity.RawCalls = append(f.fn.entity.RawCalls, graph.RawCall{
		Text:  text,
		Parts: resolve.SplitChain(text, st.spec.separators...),
		Line:  row(f.node.StartPoint()),
	})
}

func (st *fileState) instanceTable(typeName string) map[string]string {
	t, ok := st.instance[typeName]
	if !ok {
		t = make(map[string]string)
		st.instance[typeName] = t
	}
	return t
}

// scopeFor builds the resolution scope of one function.
func (st *fileState) scopeFor(fs *fnState) resolve.Scope {
	encl := fs.entity.EnclosingType
	return resolve.Scope{
		EnclosingType: encl,
		Receivers:     fs.receivers,
		Locals:        fs.entity.LocalSymbols,
		Instance:      st.instance[encl],
		ImplicitThis:  st.spec.implicitThis,
		Methods:       st.methods[encl],
		TypeMembers:   func(name string) map[string]string { return st.instance[name] },
	}
}

// finish derives type members and fills symbol tables from assignments.
func (st *fileState) finish() {
	for _, fs := range st.fns {
		fn := fs.entity
		if fn.EnclosingType == "" {
			continue
		}
		if st.methods[fn.EnclosingType] == nil {
			st.methods[fn.EnclosingType] = make(map[string]bool)
		}
		st.methods[fn.EnclosingType][fn.Name] = true
		if t, ok := st.summary.Types[fn.EnclosingType]; ok {
			t.AddMember(fn.Name)
		}
	}

	for _, pa := range st.assigns {
		typ := st.typeOfValue(pa)
		if typ == "" {
			continue
		}
		fn := pa.fn.entity
		target := pa.a.target
		switch {
		case len(target) == 2 && fn.EnclosingType != "" && containsString(pa.fn.receivers, target[0]):
			st.instanceTable(fn.EnclosingType)[target[1]] = typ
		case len(target) == 1:
			fn.LocalSymbols[target[0]] = typ
		}
	}

	for name, t := range st.summary.Types {
		if members := st.instance[name]; len(members) > 0 {
			t.InstanceSymbols = make(map[string]string, len(members))
			for k, v := range members {
				t.InstanceSymbols[k] = v
			}
		}
	}
}

// typeOfValue infers the type an assigned value produces: a constructed
// type, or the declared return type of the function the value calls.
func (st *fileState) typeOfValue(pa pendingAssign) string {
	if pa.a.typ != "" {
		return pa.a.typ
	}
	if pa.a.value == nil || st.spec.valueType == nil {
		return ""
	}
	typ, call := st.spec.valueType(pa.a.value, st.src)
	if typ != "" || call == nil {
		return typ
	}

	calleeFn := st.spec.calleeText
	if calleeFn == nil {
		calleeFn = defaultCalleeText
	}
	text := normalizeCallee(calleeFn(call, st.src))
	if text == "" {
		return ""
	}
	raw := graph.RawCall{Text: text, Parts: resolve.SplitChain(text, st.spec.separators...)}
	target, ok := st.resolver.Resolve(raw, st.scopeFor(pa.fn))
	if !ok {
		return ""
	}
	if fn, ok := st.summary.Functions[target]; ok && fn.ReturnType != "" {
		return fn.ReturnType
	}
	if st.spec.ctorByCase {
		if last := lastSegment(text, st.spec.separators...); isTypeLike(last) {
			return last
		}
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
