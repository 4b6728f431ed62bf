// Package resolve rewrites raw call chains into canonical call targets.
//
// Resolution is a syntactic heuristic: receiver keywords bind to the
// enclosing type, and chain segments that name a variable with a known
// type are replaced by that type. It does not type-check anything, and a
// call it cannot resolve is kept as its dotted text.
package resolve

import (
	"strings"

	"github.com/jward/callgraph/internal/graph"
)

// Policy selects how a language's call chains are rewritten.
type Policy int

const (
	// PolicyChain walks dotted chains against the symbol tables.
	PolicyChain Policy = iota
	// PolicyQualified is PolicyChain plus pass-through of "::" qualified
	// names, since namespaces are not modeled.
	PolicyQualified
	// PolicyNone keeps the raw callee text.
	PolicyNone
)

// Scope is the symbol context a call is resolved in.
type Scope struct {
	EnclosingType string
	// Receivers are the names bound to the enclosing instance: self, this,
	// or a Go method's receiver variable.
	Receivers []string
	Locals    map[string]string
	Instance  map[string]string
	// ImplicitThis lets a bare first segment match Instance (Java, C#, C++),
	// and binds a bare call to a method of the enclosing type.
	ImplicitThis bool
	Methods      map[string]bool // methods of the enclosing type
	// TypeMembers returns the instance table of another type, or nil.
	TypeMembers func(typeName string) map[string]string
}

// Resolver turns raw calls into canonical targets for one language.
type Resolver struct {
	Policy       Policy
	Constructors map[string]bool // method names that denote the type itself
}

// New returns a Resolver with the given policy and constructor names.
func New(policy Policy, constructors ...string) *Resolver {
	r := &Resolver{Policy: policy, Constructors: make(map[string]bool, len(constructors))}
	for _, c := range constructors {
		r.Constructors[c] = true
	}
	return r
}

// Resolve returns the canonical target for call. The boolean is false when
// the call yields no edge: an empty chain, a bare receiver, or a
// constructor-equivalent invocation.
func (r *Resolver) Resolve(call graph.RawCall, s Scope) (string, bool) {
	switch r.Policy {
	case PolicyNone:
		if call.Text == "" {
			return "", false
		}
		return call.Text, true
	case PolicyQualified:
		if strings.Contains(call.Text, "::") {
			return r.resolveQualified(call.Text, s)
		}
	}
	return r.resolveChain(call.Parts, s)
}

func (r *Resolver) resolveQualified(text string, s Scope) (string, bool) {
	segs := strings.Split(text, "::")
	if r.Constructors[segs[len(segs)-1]] {
		return "", false
	}
	if t, ok := s.Locals[segs[0]]; ok && len(segs) > 1 {
		return t + "." + strings.Join(segs[1:], "."), true
	}
	return text, true
}

func (r *Resolver) resolveChain(parts []string, s Scope) (string, bool) {
	if len(parts) == 0 {
		return "", false
	}
	dropped := false
	if s.EnclosingType != "" && contains(s.Receivers, parts[0]) {
		parts = parts[1:]
		dropped = true
	}
	if len(parts) == 0 {
		return "", false
	}

	ctx := ""
	if dropped {
		ctx = s.EnclosingType
	}
	resolving := true
	var tail []string
	for i, part := range parts {
		if resolving {
			if t, ok := r.lookup(i, part, dropped, ctx, s); ok {
				ctx = t
				continue
			}
			resolving = false
		}
		tail = append(tail, part)
	}

	if len(tail) > 0 && r.Constructors[tail[len(tail)-1]] {
		return "", false
	}
	if ctx == "" && len(tail) == 1 && s.ImplicitThis && s.Methods[tail[0]] {
		ctx = s.EnclosingType
	}
	switch {
	case ctx == "":
		return strings.Join(tail, "."), true
	case len(tail) == 0:
		return ctx, true
	default:
		return ctx + "." + strings.Join(tail, "."), true
	}
}

// lookup finds the type bound to part. The first segment consults locals,
// then the instance table; later segments consult the instance table of the
// type resolved so far. An instance entry shadows a method of the same name.
func (r *Resolver) lookup(i int, part string, dropped bool, ctx string, s Scope) (string, bool) {
	if i == 0 {
		if !dropped {
			if t, ok := s.Locals[part]; ok {
				return t, true
			}
			if !s.ImplicitThis {
				return "", false
			}
		}
		t, ok := s.Instance[part]
		return t, ok
	}
	if ctx == s.EnclosingType {
		t, ok := s.Instance[part]
		return t, ok
	}
	if s.TypeMembers == nil {
		return "", false
	}
	t, ok := s.TypeMembers(ctx)[part]
	return t, ok
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// SplitChain splits callee text into chain parts on any of seps, dropping
// empty segments.
func SplitChain(text string, seps ...string) []string {
	if len(seps) == 0 {
		seps = []string{"."}
	}
	for _, sep := range seps[1:] {
		text = strings.ReplaceAll(text, sep, seps[0])
	}
	raw := strings.Split(text, seps[0])
	parts := raw[:0]
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
