package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"
	"golang.org/x/time/rate"

	"github.com/zombor/expense-tracker/internal/api"
	"github.com/zombor/expense-tracker/internal/approval"
	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/notification"
	"github.com/zombor/expense-tracker/internal/policy"
	"github.com/zombor/expense-tracker/internal/receipt"
	"github.com/zombor/expense-tracker/internal/scanning"
	"github.com/zombor/expense-tracker/internal/session"
	"github.com/zombor/expense-tracker/internal/store"
)

// app holds the root flags and the components built from them. Components
// are created on first use so that help and version never touch the disk.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	flags       *ff.FlagSet
	apiURL      *string
	dbPath      *string
	receiptsDir *string
	offline     *bool
	rateLimit   *float64
	timeout     *time.Duration
	logLevel    *string
	scannerType *string
	geminiKey   *string
	geminiModel *string
	ollamaURL   *string
	ollamaModel *string
	showVersion *bool

	kv         *store.BoltStore
	client     *api.Client
	session    *session.Manager
	expenses   *expense.Repository
	receipts   *receipt.Service
	storage    *receipt.LocalStorage
	controller *approval.Controller
	feed       *notification.Feed
	checker    *policy.Checker
}

type connectivity struct {
	offline bool
}

func (c connectivity) Online() bool { return !c.offline }

func (a *app) command() *ff.Command {
	fs := ff.NewFlagSet("expense-tracker")
	a.flags = fs
	a.apiURL = fs.StringLong("api-url", "http://localhost:3000/api", "Backend API base URL")
	a.dbPath = fs.StringLong("db", "expense-tracker.db", "Local database file path")
	a.receiptsDir = fs.StringLong("receipts", "./receipts", "Directory for receipts waiting for upload")
	a.offline = fs.BoolLong("offline", "Do not contact the backend; queue new expenses as drafts")
	a.rateLimit = fs.Float64Long("rate-limit", 10, "Maximum backend requests per second (0 for unlimited)")
	a.timeout = fs.DurationLong("timeout", 30*time.Second, "Timeout for each backend request")
	a.logLevel = fs.StringLong("log-level", "warn", "Log level: debug, info, warn or error")
	a.scannerType = fs.StringLong("scanner", "gemini", "Receipt scanner: 'gemini', 'ollama' or 'none'")
	a.geminiKey = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	a.geminiModel = fs.StringLong("gemini-model", scanning.DefaultGeminiModel, "Google Gemini model name")
	a.ollamaURL = fs.StringLong("ollama-url", scanning.DefaultOllamaURL, "Ollama API base URL")
	a.ollamaModel = fs.StringLong("ollama-model", scanning.DefaultOllamaModel, "Ollama model name (e.g., llava, qwen2-vl)")
	a.showVersion = fs.BoolLong("version", "Show version information")
	fs.StringLong("config", "", "Config file with one 'flag value' per line (optional)")

	return &ff.Command{
		Name:      "expense-tracker",
		Usage:     "expense-tracker [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "travel expense reports from the command line",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			return ff.ErrHelp
		},
		Subcommands: []*ff.Command{
			a.loginCommand(),
			a.logoutCommand(),
			a.whoamiCommand(),
			a.listCommand(),
			a.createCommand(),
			a.updateCommand(),
			a.syncCommand(),
			a.draftsCommand(),
			a.pendingCommand(),
			a.approveCommand(),
			a.rejectCommand(),
			a.requestInfoCommand(),
			a.notificationsCommand(),
			a.readCommand(),
			a.settingsCommand(),
			a.checkCommand(),
			a.scanCommand(),
			a.reportCommand(),
		},
	}
}

// subFlags returns a flag set for a subcommand that also accepts the root flags
func (a *app) subFlags(name string) *ff.FlagSet {
	return ff.NewFlagSet(name).SetParent(a.flags)
}

// openStore opens the local database; settings need nothing else
func (a *app) openStore() error {
	if a.kv != nil {
		return nil
	}
	slog.Debug("Opening local database", "path", *a.dbPath)
	kv, err := store.Open(*a.dbPath, store.DefaultNamespace)
	if err != nil {
		return fmt.Errorf("opening local database: %w", err)
	}
	a.kv = kv
	return nil
}

// open builds every component from the root flags and restores the
// persisted session
func (a *app) open() error {
	if a.expenses != nil {
		return nil
	}
	if err := a.openStore(); err != nil {
		return err
	}

	opts := []api.Option{api.WithTimeout(*a.timeout)}
	if *a.rateLimit > 0 {
		opts = append(opts, api.WithRateLimit(rate.Limit(*a.rateLimit), max(1, int(*a.rateLimit))))
	}
	client, err := api.NewClient(*a.apiURL, opts...)
	if err != nil {
		return fmt.Errorf("configuring backend client: %w", err)
	}
	a.client = client

	a.session = session.NewManager(client, a.kv)
	if ok, err := a.session.Restore(); err != nil {
		slog.Warn("Failed to restore session", "error", err)
	} else if !ok {
		slog.Debug("No saved session")
	}

	storage, err := receipt.NewLocalStorage(*a.receiptsDir)
	if err != nil {
		return fmt.Errorf("opening receipt storage: %w", err)
	}
	a.storage = storage

	conn := connectivity{offline: *a.offline}
	a.receipts = receipt.NewService(client, a.session, storage, nil).WithConnectivity(conn)

	repo, err := expense.NewRepository(client, a.session, a.kv,
		expense.WithConnectivity(conn),
		expense.WithReceiptResolver(a.receipts),
	)
	if err != nil {
		return err
	}
	a.expenses = repo
	a.controller = approval.NewController(client, a.session, repo)
	a.feed = notification.NewFeed(client, a.session)
	a.checker = policy.NewChecker(client, a.session)
	return nil
}

// openScanner creates the receipt model selected by --scanner
func (a *app) openScanner(ctx context.Context) (scanning.Scanner, error) {
	switch *a.scannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *a.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", *a.geminiModel)
		g, err := scanning.NewGemini(ctx, apiKey, *a.geminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
		return g, nil
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *a.ollamaURL, "model", *a.ollamaModel)
		o, err := scanning.NewOllama(*a.ollamaURL, *a.ollamaModel)
		if err != nil {
			return nil, fmt.Errorf("initializing ollama: %w", err)
		}
		return o, nil
	case "none", "":
		return nil, receipt.ErrScanningDisabled
	default:
		return nil, fmt.Errorf("invalid scanner type %q: use gemini, ollama or none", *a.scannerType)
	}
}

func (a *app) close() {
	if a.kv == nil {
		return
	}
	if err := a.kv.Close(); err != nil {
		slog.Warn("Failed to close local database", "error", err)
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}
