package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/expense-tracker/internal/apperr"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run parses args, executes the selected command and returns the exit code
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.command()

	err := root.Parse(args,
		ff.WithEnvVarPrefix("EXPENSE_TRACKER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithConfigAllowMissingFile(),
	)
	if errors.Is(err, ff.ErrHelp) {
		fmt.Fprintf(stderr, "%s\n", ffhelp.Command(root.GetSelected()))
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", ffhelp.Command(root.GetSelected()))
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	if *a.showVersion {
		fmt.Fprintln(stdout, version)
		return 0
	}

	level, err := parseLevel(*a.logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	err = root.Run(ctx)
	defer a.close()
	if errors.Is(err, ff.ErrHelp) {
		fmt.Fprintf(stderr, "%s\n", ffhelp.Command(root.GetSelected()))
		return 0
	}
	if err != nil {
		printError(stderr, err)
		return 1
	}
	return 0
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// printError renders validation errors field by field so they can be fixed
// in one go
func printError(w io.Writer, err error) {
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintln(w, "error: invalid input")
		for _, field := range slices.Sorted(maps.Keys(verr.Fields)) {
			fmt.Fprintf(w, "  %s: %s\n", field, verr.Fields[field])
		}
		return
	}
	if errors.Is(err, apperr.ErrAuth) {
		fmt.Fprintf(w, "error: %v (run 'expense-tracker login')\n", err)
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}
