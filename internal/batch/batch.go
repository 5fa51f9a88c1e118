// Package batch drives a list of note page URLs through fetch, extract and
// download, sequentially or concurrently, and summarises the result.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/vicentereig/notegrab/internal/config"
	"github.com/vicentereig/notegrab/internal/extract"
	xlog "github.com/vicentereig/notegrab/internal/log"
	"github.com/vicentereig/notegrab/internal/types"
)

var (
	// ErrEmptyBatch is returned by Run when there is nothing to do.
	ErrEmptyBatch = errors.New("batch: no URLs given")
	// ErrUnsafeFilename fails an asset whose name would leave the item directory.
	ErrUnsafeFilename = errors.New("unsafe asset filename")
)

// PageFetcher is implemented by client.PageClient.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (string, error)
}

// Resolver is implemented by extract.Extractor.
type Resolver interface {
	Resolve(ctx context.Context, policy extract.RetryPolicy, url string, fetch extract.FetchFunc) (types.MediaItem, error)
}

// AssetDownloader is implemented by download.Downloader.
type AssetDownloader interface {
	Download(ctx context.Context, task *types.DownloadTask) error
}

// Recorder receives every asset that ended up on disk.
type Recorder interface {
	RecordAsset(runID string, item types.MediaItem, task *types.DownloadTask) error
}

// Options configures an Orchestrator.
type Options struct {
	Root        string
	Mode        types.Mode
	Concurrency int // concurrent mode only; 0 means one goroutine per URL
	Overwrite   types.OverwritePolicy

	ExtractPolicy extract.RetryPolicy
	ImageTimeout  time.Duration
	VideoTimeout  time.Duration

	Fs       afero.Fs
	Recorder Recorder

	// OnProgress is called after every finished item with the running count.
	OnProgress func(completed, total int)
	// OnItem is called with each item's terminal outcome.
	OnItem func(types.Outcome)

	Logger *zerolog.Logger
}

// Summary is the result of one Run. Outcomes are in input order.
type Summary struct {
	RunID     string          `json:"run_id"`
	Total     int             `json:"total"`
	Completed int             `json:"completed"`
	Failed    int             `json:"failed"`
	Outcomes  []types.Outcome `json:"outcomes"`
}

// Orchestrator runs batches. One Orchestrator may run several batches, one
// at a time or in parallel.
type Orchestrator struct {
	fetcher    PageFetcher
	resolver   Resolver
	downloader AssetDownloader
	opts       Options
	logger     zerolog.Logger
}

// New returns an Orchestrator.
func New(fetcher PageFetcher, resolver Resolver, downloader AssetDownloader, opts Options) *Orchestrator {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Mode == "" {
		opts.Mode = types.ModeConcurrent
	}
	if opts.Overwrite == "" {
		opts.Overwrite = types.OverwriteAuto
	}
	if opts.ExtractPolicy.MaxAttempts == 0 {
		opts.ExtractPolicy = extract.DefaultRetryPolicy()
	}
	if opts.ImageTimeout == 0 {
		opts.ImageTimeout = config.DefaultImageTimeout
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	logger := xlog.WithComponent("batch")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Orchestrator{
		fetcher:    fetcher,
		resolver:   resolver,
		downloader: downloader,
		opts:       opts,
		logger:     logger,
	}
}

// Run processes every URL and returns once all of them reached a terminal
// state. Individual failures are reported in the summary; the only error
// is ErrEmptyBatch.
func (o *Orchestrator) Run(ctx context.Context, urls []string) (Summary, error) {
	if len(urls) == 0 {
		return Summary{}, ErrEmptyBatch
	}

	runID := uuid.NewString()
	logger := o.logger.With().Str(xlog.FieldRunID, runID).Logger()
	logger.Info().
		Int(xlog.FieldTotal, len(urls)).
		Str("mode", string(o.opts.Mode)).
		Msg("batch started")

	outcomes := make([]types.Outcome, len(urls))
	tracker := NewTracker(len(urls), o.opts.OnProgress, func() {
		logger.Info().Int(xlog.FieldTotal, len(urls)).Msg("all downloads finished")
	})

	runOne := func(i int) {
		outcomes[i] = o.runItemSafe(ctx, runID, i, urls[i], logger)
		if o.opts.OnItem != nil {
			o.opts.OnItem(outcomes[i])
		}
		tracker.Finish()
	}

	switch o.opts.Mode {
	case types.ModeSequential:
		for i := range urls {
			runOne(i)
		}
	default:
		p := pool.New()
		if o.opts.Concurrency > 0 {
			p = p.WithMaxGoroutines(o.opts.Concurrency)
		}
		for i := range urls {
			p.Go(func() { runOne(i) })
		}
		p.Wait()
	}

	summary := Summary{RunID: runID, Total: len(urls), Outcomes: outcomes}
	for _, out := range outcomes {
		switch out.State {
		case types.ItemCompleted:
			summary.Completed++
		case types.ItemFailed:
			summary.Failed++
		}
	}
	logger.Info().
		Int(xlog.FieldCompleted, summary.Completed).
		Int("failed", summary.Failed).
		Int(xlog.FieldTotal, summary.Total).
		Msg("batch finished")
	return summary, nil
}

// runItemSafe isolates a panicking item so it fails alone.
func (o *Orchestrator) runItemSafe(ctx context.Context, runID string, i int, url string, logger zerolog.Logger) types.Outcome {
	var out types.Outcome
	recovered := panics.Try(func() {
		out = o.runItem(ctx, runID, i, url, logger)
	})
	if recovered != nil {
		out = types.Outcome{Index: i, URL: url, State: types.ItemQueued}
		out.Fail(fmt.Errorf("item panicked: %w", recovered.AsError()))
		logger.Error().Int(xlog.FieldIndex, i).Str(xlog.FieldURL, url).
			Str("panic", fmt.Sprint(recovered.Value)).
			Msg("item panicked")
	}
	return out
}

func (o *Orchestrator) runItem(ctx context.Context, runID string, i int, url string, logger zerolog.Logger) types.Outcome {
	out := types.Outcome{Index: i, URL: url, State: types.ItemQueued}
	logger = logger.With().Int(xlog.FieldIndex, i).Str(xlog.FieldURL, url).Logger()

	out.Advance(types.ItemFetching)
	fetch := func(ctx context.Context) (string, error) {
		markup, err := o.fetcher.FetchPage(ctx, url)
		if err == nil {
			out.Advance(types.ItemExtracting)
		}
		return markup, err
	}

	item, err := o.resolver.Resolve(ctx, o.opts.ExtractPolicy, url, fetch)
	if err != nil {
		out.Fail(err)
		logger.Error().Err(err).Msg("item failed")
		return out
	}
	out.Item = &item
	out.Advance(types.ItemDownloadingAssets)
	logger = logger.With().
		Str(xlog.FieldItemID, item.ID).
		Str(xlog.FieldTitle, item.Title).
		Str(xlog.FieldKind, string(item.Kind)).
		Logger()
	logger.Info().Int(xlog.FieldAssets, len(item.Assets)).Msg("media found")

	dir := filepath.Join(o.opts.Root, item.Kind.Dir(), item.Dir())
	if err := o.ensureDir(dir, logger); err != nil {
		out.Fail(err)
		logger.Error().Err(err).Msg("item failed")
		return out
	}

	var errs []error
	for _, asset := range item.Assets {
		dest, err := assetPath(dir, asset.SuggestedFilename)
		if err != nil {
			errs = append(errs, err)
			logger.Error().Err(err).Str(xlog.FieldURL, asset.URL).Msg("asset rejected")
			continue
		}
		task := types.NewDownloadTask(asset, dest, item.Kind)
		task.Overwrite = o.opts.Overwrite.Overwrite(item.Kind)
		task.Timeout = o.timeout(item.Kind)

		if err := o.downloader.Download(ctx, task); err != nil {
			errs = append(errs, err)
			logger.Error().Err(err).Str(xlog.FieldPath, task.DestinationPath).Msg("asset failed")
			continue
		}
		out.Files = append(out.Files, task.DestinationPath)
		if o.opts.Recorder != nil {
			if err := o.opts.Recorder.RecordAsset(runID, item, task); err != nil {
				logger.Warn().Err(err).Msg("record download history")
			}
		}
	}

	if len(errs) > 0 {
		out.Fail(fmt.Errorf("%d of %d assets failed: %w", len(errs), len(item.Assets), errors.Join(errs...)))
		logger.Error().Err(out.Err).Msg("item failed")
		return out
	}
	out.Advance(types.ItemCompleted)
	logger.Info().Msg("item completed")
	return out
}

func (o *Orchestrator) ensureDir(dir string, logger zerolog.Logger) error {
	exists, err := afero.DirExists(o.opts.Fs, dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if exists {
		logger.Debug().Str(xlog.FieldPath, dir).Msg("directory already exists")
		return nil
	}
	if err := o.opts.Fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	logger.Info().Str(xlog.FieldPath, dir).Msg("directory created")
	return nil
}

// assetPath joins name under dir. name must be one plain path segment.
func assetPath(dir, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrUnsafeFilename, name)
	}
	return filepath.Join(dir, name), nil
}

func (o *Orchestrator) timeout(kind types.Kind) time.Duration {
	if kind == types.KindImage {
		return o.opts.ImageTimeout
	}
	return o.opts.VideoTimeout
}
