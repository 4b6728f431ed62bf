// Package callgraph builds repository-wide function call graphs across
// languages using tree-sitter: C, C++, C#, Go, Java, JavaScript, TypeScript,
// PHP, Python, Ruby and Rust.
//
// # Pipeline
//
// A build runs in three phases:
//
//  1. Enumerate: resolve the ref through a [Provider] and list the files of
//     the repository at that ref. Files whose extension maps to no grammar
//     are skipped.
//
//  2. Process: a bounded pool of workers fetches, parses and resolves each
//     file into a [FileSummary]. Each worker owns its own grammar registry
//     and recycles it periodically; a file that overruns its deadline or
//     traversal budget is dropped without stopping the build.
//
//  3. Assemble: summaries are merged into a [RepoGraph] and a second pass
//     fills every function's called-by list.
//
// # Usage
//
//	e, err := callgraph.Open(cfg, "https://github.com/owner/repo")
//	if err != nil { ... }
//	defer e.Close()
//
//	b, err := e.GenerateIfNeeded(ctx, "https://github.com/owner/repo", "main")
//	q := callgraph.NewQuery(b.Graph, e.Provider())
//	sites, err := q.Callers("Processor.run")
//
// # Incremental builds
//
// [Engine.GenerateIfNeeded] compares the commit hash stored with the last
// graph for the same url and ref against the commit the ref points at now.
// When they match the stored graph is returned as is and no file content is
// fetched. Otherwise the graph is rebuilt from scratch.
//
// # Query API
//
// The [QueryBuilder] answers:
//
//   - [QueryBuilder.Callers]: call sites that target a function.
//   - [QueryBuilder.Callees]: resolved targets a function calls.
//   - [QueryBuilder.FunctionAt]: the innermost function containing a line.
//   - [QueryBuilder.CallStack]: that function plus its resolved calls.
//   - [QueryBuilder.FunctionSource]: the function's source, read through the
//     provider.
package callgraph
