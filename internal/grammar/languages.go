package grammar

import (
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language is a canonical language identifier as written to the graph.
type Language string

const (
	C          Language = "c"
	CPP        Language = "cpp"
	CSharp     Language = "c_sharp"
	Go         Language = "go"
	Java       Language = "java"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	TSX        Language = "tsx"
	PHP        Language = "php"
	Python     Language = "python"
	Ruby       Language = "ruby"
	Rust       Language = "rust"
)

// extToLanguage maps file extensions to canonical language names.
var extToLanguage = map[string]Language{
	".c":    C,
	".h":    C,
	".cpp":  CPP,
	".cc":   CPP,
	".cxx":  CPP,
	".hpp":  CPP,
	".cs":   CSharp,
	".go":   Go,
	".java": Java,
	".js":   JavaScript,
	".jsx":  JavaScript,
	".mjs":  JavaScript,
	".cjs":  JavaScript,
	".ts":   TypeScript,
	".tsx":  TSX,
	".php":  PHP,
	".py":   Python,
	".pyi":  Python,
	".rb":   Ruby,
	".rs":   Rust,
}

// loaders returns the tree-sitter grammar for each language. A loader that
// returns nil or panics marks its language as unavailable.
var loaders = map[Language]func() *sitter.Language{
	C:          c.GetLanguage,
	CPP:        cpp.GetLanguage,
	CSharp:     csharp.GetLanguage,
	Go:         golang.GetLanguage,
	Java:       java.GetLanguage,
	JavaScript: javascript.GetLanguage,
	TypeScript: ts.GetLanguage,
	TSX:        tsx.GetLanguage,
	PHP:        php.GetLanguage,
	Python:     python.GetLanguage,
	Ruby:       ruby.GetLanguage,
	Rust:       rust.GetLanguage,
}

// LanguageFor returns the language for a file path based on its extension.
// Returns ("", false) if the extension is not recognized.
func LanguageFor(path string) (Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLanguage[ext]
	return lang, ok
}

// All returns every known language in lexical order.
func All() []Language {
	langs := make([]Language, 0, len(loaders))
	for l := range loaders {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Parse converts a configured language name, returning false for unknown names.
func Parse(name string) (Language, bool) {
	l := Language(strings.ToLower(strings.TrimSpace(name)))
	if l == "csharp" || l == "c#" {
		l = CSharp
	}
	_, ok := loaders[l]
	return l, ok
}
