package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/callgraph"
	"github.com/jward/callgraph/internal/provider"
	"github.com/jward/callgraph/internal/store"
)

var (
	flagRepo     string
	flagQueryRef string
)

var callersCmd = &cobra.Command{
	Use:   "callers <function-key>",
	Short: "List the call sites that call a function",
	Long:  "Function keys are \"Class.method\" for methods and the bare name for free functions. Prefix with \"<path>:\" to pick one file.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCallers,
}

var calleesCmd = &cobra.Command{
	Use:   "callees <function-key>",
	Short: "List the resolved calls a function makes",
	Args:  cobra.ExactArgs(1),
	RunE:  runCallees,
}

var stackCmd = &cobra.Command{
	Use:   "stack <file-path> <line>",
	Short: "Show the function containing a line and what it calls",
	Long:  "Lines are 0-based.",
	Args:  cobra.ExactArgs(2),
	RunE:  runStack,
}

var showCmd = &cobra.Command{
	Use:   "show <function-key>",
	Short: "Print the source of a function",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	for _, c := range []*cobra.Command{callersCmd, calleesCmd, stackCmd, showCmd} {
		c.Flags().StringVar(&flagRepo, "repo", "", "repository url (default: the most recently built)")
		c.Flags().StringVar(&flagQueryRef, "ref", "", "ref (default: the most recently built for --repo)")
	}
}

// openQuery loads the selected stored graph. The provider is only needed by
// show, so one that cannot be created is tolerated.
func openQuery(ctx context.Context) (*callgraph.QueryBuilder, func(), error) {
	s, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	closeStore := func() { s.Close() }

	meta, err := selectedGraph(ctx, s)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	p, err := provider.ForURL(meta.URL, callgraph.ProviderOptions(cfg))
	if err != nil {
		logger.Debug("query.no_provider", "url", meta.URL, "error", err)
		g, err := s.Load(ctx, meta.URL, meta.Ref)
		if err != nil {
			closeStore()
			return nil, nil, err
		}
		return callgraph.NewQuery(g, nil), closeStore, nil
	}

	e, err := callgraph.New(p, callgraph.WithStore(s), callgraph.WithLogger(logger))
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	q, err := e.Query(ctx, meta.URL, meta.Ref)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return q, closeStore, nil
}

func selectedGraph(ctx context.Context, s store.GraphStore) (*callgraph.Metadata, error) {
	var (
		meta *callgraph.Metadata
		err  error
	)
	if flagRepo == "" {
		meta, err = s.Latest(ctx)
	} else {
		meta, err = s.Metadata(ctx, resolveRepoURL(flagRepo), flagQueryRef)
	}
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("no graph found in %s (run 'callgraph build' first)", cfg.Store.Path)
	}
	return meta, nil
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

func runCallers(cmd *cobra.Command, args []string) error {
	q, done, err := openQuery(cmd.Context())
	if err != nil {
		return outputError("callers", err)
	}
	defer done()

	sites, err := q.Callers(args[0])
	if err != nil {
		return outputError("callers", err)
	}
	return outputResult(CLIResult{Command: "callers", Results: callSitesToCLI(sites)})
}

func runCallees(cmd *cobra.Command, args []string) error {
	q, done, err := openQuery(cmd.Context())
	if err != nil {
		return outputError("callees", err)
	}
	defer done()

	callees, err := q.Callees(args[0])
	if err != nil {
		return outputError("callees", err)
	}
	return outputResult(CLIResult{Command: "callees", Results: calleesToCLI(callees)})
}

func runStack(cmd *cobra.Command, args []string) error {
	line, err := parseIntArg(args[1], "line")
	if err != nil {
		return outputError("stack", err)
	}
	q, done, err := openQuery(cmd.Context())
	if err != nil {
		return outputError("stack", err)
	}
	defer done()

	stack, err := q.CallStack(args[0], line)
	if err != nil {
		return outputError("stack", err)
	}
	return outputResult(CLIResult{Command: "stack", Results: CLICallStack{
		Function: functionToCLI(stack.Function),
		Line:     stack.Line,
		Calls:    calleesToCLI(stack.Calls),
	}})
}

func runShow(cmd *cobra.Command, args []string) error {
	q, done, err := openQuery(cmd.Context())
	if err != nil {
		return outputError("show", err)
	}
	defer done()

	refs := q.Functions(args[0])
	if len(refs) == 0 {
		return outputError("show", fmt.Errorf("%w: %s", callgraph.ErrFunctionNotFound, args[0]))
	}
	var sources []CLISource
	for _, ref := range refs {
		src, err := q.FunctionSource(cmd.Context(), ref)
		if err != nil {
			return outputError("show", err)
		}
		sources = append(sources, CLISource{Function: functionToCLI(ref), Source: src})
	}
	return outputResult(CLIResult{Command: "show", Results: sources})
}
