package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/callgraph"
)

var (
	flagRef       string
	flagForce     bool
	flagOut       string
	flagLanguages string
	flagWorkers   int
)

var buildCmd = &cobra.Command{
	Use:   "build <repo-url>",
	Short: "Build the call graph of a repository",
	Long: "Resolves the ref, parses every supported file and stores the call graph. " +
		"The stored graph is reused when the ref still points at the commit it was built from, unless --force is given. " +
		"<repo-url> is a GitHub URL or a local directory.",
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&flagRef, "ref", "", "branch, tag or commit (default: the default branch)")
	buildCmd.Flags().BoolVar(&flagForce, "force", false, "rebuild even when the stored graph is current")
	buildCmd.Flags().StringVar(&flagOut, "out", "", "also write the graph to this file (.json, .yaml)")
	buildCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. go,python)")
	buildCmd.Flags().IntVar(&flagWorkers, "workers", 0, "worker cap (default from config; 1 runs sequentially)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	start := time.Now()
	repoURL := resolveRepoURL(args[0])

	opts := []callgraph.Option{callgraph.WithLogger(logger)}
	if langs := splitLanguages(flagLanguages); len(langs) > 0 {
		opts = append(opts, callgraph.WithLanguages(langs...))
	}
	if flagWorkers > 0 {
		opts = append(opts, callgraph.WithWorkers(flagWorkers))
	}

	engine, err := callgraph.Open(cfg, repoURL, opts...)
	if err != nil {
		return outputError("build", err)
	}
	defer engine.Close()

	ctx := context.Background()
	var b *callgraph.Build
	if flagForce {
		b, err = engine.Generate(ctx, repoURL, flagRef)
	} else {
		b, err = engine.GenerateIfNeeded(ctx, repoURL, flagRef)
	}
	if err != nil {
		return outputError("build", err)
	}

	if flagOut != "" {
		if err := writeGraph(flagOut, b.Graph); err != nil {
			return outputError("build", err)
		}
	}

	meta := b.Graph.Metadata
	total := time.Since(start).Round(time.Millisecond)
	if b.Reused() {
		fmt.Fprintf(stderr, "Up to date: %s@%s (%s) in %s\n", meta.URL, meta.Ref, meta.CommitHash, total)
	} else {
		fmt.Fprintf(stderr, "Built %s@%s in %s (%d files, %d failed, %d timed out, %d workers)\n",
			meta.URL, meta.Ref, total,
			len(b.Graph.Files), b.Stats.Failed, b.Stats.TimedOut, b.Stats.Workers,
		)
	}
	fmt.Fprintf(stderr, "Store: %s\n", cfg.Store.Path)
	if flagOut != "" {
		fmt.Fprintf(stderr, "Graph: %s\n", flagOut)
	}

	return outputResult(CLIResult{Command: "build", Results: buildToCLI(b)})
}
