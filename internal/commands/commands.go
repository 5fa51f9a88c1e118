package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/vicentereig/notegrab/internal/batch"
	"github.com/vicentereig/notegrab/internal/client"
	"github.com/vicentereig/notegrab/internal/config"
	"github.com/vicentereig/notegrab/internal/download"
	"github.com/vicentereig/notegrab/internal/extract"
	"github.com/vicentereig/notegrab/internal/output"
	"github.com/vicentereig/notegrab/internal/store"
	"github.com/vicentereig/notegrab/internal/types"
)

// ErrHistoryDisabled is reported by History when no ledger is configured.
var ErrHistoryDisabled = errors.New("download history is disabled: set --history-db or history_db")

type App struct {
	runner  BatchRunner
	history HistoryStore
	version string
}

// NewApp wires the production dependencies from cfg. Progress lines are
// written to progressOut (usually stderr).
func NewApp(cfg config.Config, version string, progressOut io.Writer) (*App, error) {
	mode, err := types.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	overwrite, err := types.ParseOverwritePolicy(cfg.Overwrite)
	if err != nil {
		return nil, err
	}
	if progressOut == nil {
		progressOut = os.Stderr
	}

	pages := client.NewPageClient(client.Options{
		Headers:           cfg.RequestHeaders(),
		Canonicalize:      cfg.CanonicalizeURLs,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	extractor := extract.New(extract.Options{ImageHost: cfg.ImageHost})
	fs := afero.NewOsFs()
	downloader := download.New(download.Options{
		UserAgent:   cfg.UserAgent,
		MaxAttempts: cfg.Download.MaxAttempts,
		Backoff:     cfg.Download.Backoff,
		Fs:          fs,
	})

	progress := newProgressPrinter(progressOut)
	downloader.SetProgressCallback(progress.Transfer)

	opts := batch.Options{
		Root:        cfg.Root,
		Mode:        mode,
		Concurrency: cfg.Concurrency,
		Overwrite:   overwrite,
		ExtractPolicy: extract.RetryPolicy{
			MaxAttempts: cfg.Extract.MaxAttempts,
			Delay:       cfg.Extract.Delay,
		},
		ImageTimeout: cfg.Download.ImageTimeout,
		VideoTimeout: cfg.Download.VideoTimeout,
		Fs:           fs,
		OnProgress:   progress.Batch,
		OnItem:       progress.Item,
	}

	app := &App{version: version}
	if cfg.HistoryDB != "" {
		st, err := store.NewHistoryStore(cfg.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("open history ledger: %w", err)
		}
		opts.Recorder = st
		app.history = st
	}
	app.runner = batch.New(pages, extractor, downloader, opts)
	return app, nil
}

// NewAppWithDeps creates an App with injected dependencies. history may be nil.
func NewAppWithDeps(runner BatchRunner, history HistoryStore, version string) *App {
	return &App{runner: runner, history: history, version: version}
}

func (a *App) Close() {
	if a.history != nil {
		a.history.Close()
	}
}

// Download runs one batch. A batch that ran is a success even when some of
// its items failed; the summary carries the per-item outcomes.
func (a *App) Download(ctx context.Context, urls []string) string {
	summary, err := a.runner.Run(ctx, urls)
	if err != nil {
		return output.Error(err)
	}
	return output.Success(summary)
}

type HistoryParams struct {
	Items  bool
	Query  *string
	Kind   *string
	RunID  *string
	ItemID *string
	Limit  int
	Page   int
}

func (a *App) History(params HistoryParams) string {
	if a.history == nil {
		return output.Error(ErrHistoryDisabled)
	}

	if params.Items {
		items, err := a.history.ListItems(store.ListItemsParams{
			Query: params.Query,
			Limit: params.Limit,
			Page:  params.Page,
		})
		if err != nil {
			return output.Error(err)
		}
		return output.Success(items)
	}

	downloads, err := a.history.ListDownloads(store.ListDownloadsParams{
		Query:  params.Query,
		Kind:   params.Kind,
		RunID:  params.RunID,
		ItemID: params.ItemID,
		Limit:  params.Limit,
		Page:   params.Page,
	})
	if err != nil {
		return output.Error(err)
	}
	return output.Success(downloads)
}

func (a *App) Version() string {
	return output.Success(map[string]string{"version": resolveVersion(a.version, gitDescribe)})
}
