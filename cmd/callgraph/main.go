package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/callgraph/internal/config"
	"github.com/jward/callgraph/internal/logging"
)

var (
	flagDB      string
	flagFormat  string
	flagConfig  string
	flagVerbose bool
)

// Set by PersistentPreRunE.
var (
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
	stdout   io.Writer = os.Stdout
	stderr   io.Writer = os.Stderr
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	err := rootCmd.Execute()
	if closeLog != nil {
		closeLog()
	}
	if err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "callgraph",
	Short:         "Cross-language function call graphs",
	Long:          "Callgraph parses a repository with tree-sitter and records, for every function, what it calls and who calls it.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return setup()
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "graph store path (default: .callgraph/graph.db)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|yaml|text")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: .callgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(callersCmd)
	rootCmd.AddCommand(calleesCmd)
	rootCmd.AddCommand(stackCmd)
	rootCmd.AddCommand(showCmd)
}

// setup loads configuration, applies flag overrides and builds the logger.
func setup() error {
	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagDB != "" {
		c.Store.Path = flagDB
	}
	if flagVerbose {
		c.Log.Level = "debug"
	}
	cfg = c

	l, closer, err := logging.New(logging.Config{
		Level:      c.Log.Level,
		JSONFormat: c.Log.JSON,
		OutputFile: c.Log.File,
	})
	if err != nil {
		return err
	}
	logger, closeLog = l, closer
	return nil
}

// splitLanguages parses a comma-separated --languages value.
func splitLanguages(s string) []string {
	var langs []string
	for _, l := range strings.Split(s, ",") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}

// resolveRepoURL makes a local directory argument absolute so stored graphs
// are keyed the same wherever the command runs. Remote URLs are returned
// unchanged.
func resolveRepoURL(arg string) string {
	if strings.Contains(arg, "://") {
		return arg
	}
	info, err := os.Stat(arg)
	if err != nil || !info.IsDir() {
		return arg
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return arg
	}
	return abs
}
