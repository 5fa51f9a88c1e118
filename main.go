package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vicentereig/notegrab/internal/commands"
	"github.com/vicentereig/notegrab/internal/config"
	xlog "github.com/vicentereig/notegrab/internal/log"
	"github.com/vicentereig/notegrab/internal/output"
)

var (
	// version is overridden at build time via -ldflags "-X main.version=X.Y.Z"
	version = "dev"
)

const prompt = "Enter note links (separate several with spaces): "

const examples = `  notegrab download https://www.xiaohongshu.com/explore/64781bdd000000001300a8b5
  notegrab download --mode sequential URL1 URL2
  notegrab download                      # prompts for links on stdin
  notegrab --history-db ~/.notegrab/history.db history --kind video --limit 5
  notegrab version`

type cli struct {
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	exitCode int

	configPath  string
	root        string
	cookie      string
	mode        string
	concurrency int
	overwrite   string
	historyDB   string
	logLevel    string
	logFile     string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stderr)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		_ = output.Print(stdout, output.Error(err))
		return 1
	}
	return c.exitCode
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "notegrab",
		Short:         "Download the videos and images of shared notes",
		Example:       examples,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "YAML config file")
	pf.StringVar(&c.root, "root", "", "download root directory (default \".\")")
	pf.StringVar(&c.cookie, "cookie", "", "Cookie header sent with page requests")
	pf.StringVar(&c.mode, "mode", "", "batch mode: concurrent or sequential")
	pf.IntVar(&c.concurrency, "concurrency", 0, "max pages in flight in concurrent mode (0 = all)")
	pf.StringVar(&c.overwrite, "overwrite", "", "existing files: auto, always or never")
	pf.StringVar(&c.historyDB, "history-db", "", "SQLite download ledger (disabled when empty)")
	pf.StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&c.logFile, "log-file", "", "also write JSON logs to this rotating file")

	root.AddCommand(c.downloadCommand(), c.historyCommand(), c.versionCommand())
	return root
}

func (c *cli) downloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "download [urls...]",
		Short: "Download every note page given as an argument or on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			c.configureLogging(cfg)
			defer xlog.Close()

			urls := args
			if len(urls) == 0 {
				urls, err = promptURLs(c.stdin, c.stderr)
				if err != nil {
					return err
				}
			}

			app, err := commands.NewApp(cfg, version, c.stderr)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c.emit(app.Download(ctx, urls))
			return nil
		},
	}
}

func (c *cli) historyCommand() *cobra.Command {
	var (
		items  bool
		query  string
		kind   string
		runID  string
		itemID string
		limit  int
		page   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded downloads from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			c.configureLogging(cfg)
			defer xlog.Close()

			app, err := commands.NewApp(cfg, version, c.stderr)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer app.Close()

			c.emit(app.History(commands.HistoryParams{
				Items:  items,
				Query:  optional(query),
				Kind:   optional(kind),
				RunID:  optional(runID),
				ItemID: optional(itemID),
				Limit:  limit,
				Page:   page,
			}))
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&items, "items", false, "list items instead of individual files")
	f.StringVar(&query, "query", "", "match titles containing this text")
	f.StringVar(&kind, "kind", "", "only video or image")
	f.StringVar(&runID, "run", "", "only this batch run")
	f.StringVar(&itemID, "item", "", "only this item id")
	f.IntVar(&limit, "limit", 20, "limit")
	f.IntVar(&page, "page", 0, "page")
	return cmd
}

func (c *cli) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			c.emit(commands.NewAppWithDeps(nil, nil, version).Version())
		},
	}
}

// loadConfig resolves defaults, file and environment, then applies the
// flags the user actually set.
func (c *cli) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.NewLoader(c.configPath).Load()
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Root = c.root
	}
	if flags.Changed("cookie") {
		cfg.Cookie = c.cookie
	}
	if flags.Changed("mode") {
		cfg.Mode = c.mode
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = c.concurrency
	}
	if flags.Changed("overwrite") {
		cfg.Overwrite = c.overwrite
	}
	if flags.Changed("history-db") {
		cfg.HistoryDB = c.historyDB
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = c.logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = c.logFile
	}

	if err := config.Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *cli) configureLogging(cfg config.Config) {
	xlog.Configure(xlog.Config{
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		Output: zerolog.ConsoleWriter{Out: c.stderr, TimeFormat: time.Kitchen},
	})
}

// emit prints an envelope and derives the exit code from it.
func (c *cli) emit(envelope string) {
	_ = output.Print(c.stdout, envelope)
	c.exitCode = exitCode(envelope)
}

func exitCode(envelope string) int {
	var r struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal([]byte(envelope), &r); err != nil || !r.Success {
		return 1
	}
	return 0
}

// promptURLs reads one line of space-separated links.
func promptURLs(r io.Reader, w io.Writer) ([]string, error) {
	fmt.Fprint(w, prompt)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read links: %w", err)
	}
	return strings.Fields(line), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
