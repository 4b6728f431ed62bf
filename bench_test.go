package callgraph

import (
	"context"
	"fmt"
	"testing"
)

// benchGoSource is a realistic ~100-line Go file with functions, structs,
// interfaces, and method calls for exercising the full extraction pipeline.
const benchGoSource = `package bench

import (
	"fmt"
	"strings"
)

// Logger defines a logging interface.
type Logger interface {
	Log(msg string)
	Logf(format string, args ...interface{})
}

// Config holds application configuration.
type Config struct {
	Name    string
	Debug   bool
	MaxRetry int
	Tags    []string
}

// Validate checks the config for correctness.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.MaxRetry < 0 {
		return fmt.Errorf("max_retry must be non-negative")
	}
	return nil
}

// String returns a human-readable representation.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Name: %s, Debug: %v}", c.Name, c.Debug)
}

// HasTag reports whether the config includes the given tag.
func (c *Config) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// StdoutLogger implements Logger by writing to stdout.
type StdoutLogger struct {
	Prefix string
}

// Log writes a plain message.
func (l *StdoutLogger) Log(msg string) {
	fmt.Printf("[%s] %s\n", l.Prefix, msg)
}

// Logf writes a formatted message.
func (l *StdoutLogger) Logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.Log(msg)
}

// NewApp creates and returns an initialized App.
func NewApp(cfg *Config, log Logger) *App {
	return &App{config: cfg, logger: log}
}

// App is the main application struct.
type App struct {
	config *Config
	logger Logger
}

// Run starts the application.
func (a *App) Run() error {
	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.logger.Logf("starting %s", a.config.Name)
	a.process()
	return nil
}

// process does the main work.
func (a *App) process() {
	tags := strings.Join(a.config.Tags, ", ")
	a.logger.Logf("processing with tags: %s", tags)
}

// BuildGreeting constructs a greeting string.
func BuildGreeting(name string) string {
	return fmt.Sprintf("Hello, %s!", name)
}

// CountWords returns the number of words in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
`

// benchProvider returns a provider holding n copies of benchGoSource.
func benchProvider(n int) *memProvider {
	files := make(map[string]string, n)
	for i := 0; i < n; i++ {
		files[fmt.Sprintf("pkg%d/bench.go", i)] = benchGoSource
	}
	return newMemProvider(files)
}

// BenchmarkGenerate_Go measures a full build of 32 realistic Go files.
func BenchmarkGenerate_Go(b *testing.B) {
	ctx := context.Background()
	e, err := New(benchProvider(32), WithLanguages("go"))
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Generate(ctx, testRepo, "main"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkGenerate_Sequential is BenchmarkGenerate_Go on one worker.
func BenchmarkGenerate_Sequential(b *testing.B) {
	ctx := context.Background()
	e, err := New(benchProvider(32), WithLanguages("go"), WithWorkers(1))
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Generate(ctx, testRepo, "main"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkQueryCallers measures the query path only.
func BenchmarkQueryCallers(b *testing.B) {
	e, err := New(benchProvider(32), WithLanguages("go"))
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()
	build, err := e.Generate(context.Background(), testRepo, "main")
	if err != nil {
		b.Fatal(err)
	}
	q := NewQuery(build.Graph, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := q.Callers("Config.Validate"); err != nil {
			b.Fatal(err)
		}
	}
}
