package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ccmeter/ccmeter/internal/config"
	"github.com/ccmeter/ccmeter/internal/notify"
	"github.com/ccmeter/ccmeter/internal/store"
	"github.com/ccmeter/ccmeter/internal/tracker"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, `ccmeter - token usage meter for assistant CLIs

Usage: ccmeter <command> [options]

Commands:
  ingest     Record lifecycle events streamed on stdin, one JSON document per line
  session    Show usage for a session
  usage      Show global usage rollups
  version    Show version

Examples:
  ccmeter ingest < events.jsonl
  ccmeter session --session ses_123 --verbose
  ccmeter usage --year --all-time --model sonnet
`)
}

// stderrNotifier prints notifications where the host UI will relay them.
type stderrNotifier struct{}

func (stderrNotifier) Notify(severity notify.Severity, message string) {
	fmt.Fprintf(os.Stderr, "[%s] %s\n", severity, message)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "ingest":
		runIngest(args)
	case "session":
		runSession(args)
	case "usage":
		runUsage(args)
	case "version", "-v", "--version":
		fmt.Printf("ccmeter version %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		usage()
		os.Exit(1)
	}
}

// setup loads configuration and opens the store. A store that cannot
// be opened or migrated disables the feature gracefully: one
// diagnostic, nil tracker, no further processing.
func setup() *tracker.Tracker {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return nil
	}
	if !cfg.Enabled {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.StoragePath), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Usage tracking disabled: %v\n", err)
		return nil
	}

	st, err := store.Open(cfg.StoragePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Usage tracking disabled: %v\n", err)
		return nil
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		fmt.Fprintf(os.Stderr, "Usage tracking disabled: %v\n", err)
		return nil
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return tracker.New(cfg, st, stderrNotifier{}, logger)
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	fs.Parse(args)

	tr := setup()
	if tr == nil {
		return
	}

	// The process stays up for the life of the stream so message and
	// time thresholds accumulate across events instead of resetting
	// on every invocation.
	if _, err := tr.HandleStream(os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading events: %v\n", err)
		os.Exit(1)
	}
}

func runSession(args []string) {
	fs := flag.NewFlagSet("session", flag.ExitOnError)
	var (
		sessionID string
		verbose   bool
	)
	fs.StringVar(&sessionID, "session", "", "Session identifier")
	fs.BoolVar(&verbose, "verbose", false, "Show token categories and per-model breakdown")
	fs.Parse(args)

	if sessionID == "" {
		fmt.Fprintf(os.Stderr, "Error: --session is required\n")
		os.Exit(1)
	}

	tr := setup()
	if tr == nil {
		return
	}

	out, err := tr.SessionReport(sessionID, verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(out)
}

func runUsage(args []string) {
	fs := flag.NewFlagSet("usage", flag.ExitOnError)
	var opts tracker.GlobalOptions
	fs.BoolVar(&opts.Verbose, "verbose", false, "Show token categories and per-model breakdown")
	fs.BoolVar(&opts.IncludeYear, "year", false, "Include the year-to-date row")
	fs.BoolVar(&opts.IncludeAllTime, "all-time", false, "Include the all-time row")
	fs.StringVar(&opts.ModelFilter, "model", "", "Only count models containing this substring")
	fs.Parse(args)

	tr := setup()
	if tr == nil {
		return
	}

	out, err := tr.GlobalReport(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(out)
}
