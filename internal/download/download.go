// Package download streams media assets to disk.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/vicentereig/notegrab/internal/config"
	xlog "github.com/vicentereig/notegrab/internal/log"
	"github.com/vicentereig/notegrab/internal/types"
)

// ProgressFunc observes a task while its body is being written, and once
// more when a transfer ends with Status Succeeded or Failed. It is called
// from the downloading goroutine and must not block for long.
type ProgressFunc func(task *types.DownloadTask)

// Options configures a Downloader.
type Options struct {
	UserAgent string
	// Headers are added to every request; User-Agent wins over a header of
	// the same name.
	Headers map[string]string
	// MaxAttempts is the total number of attempts per task, including the
	// first. Defaults to config.DefaultDownloadRetries.
	MaxAttempts int
	// Backoff is the fixed delay between attempts. Zero retries immediately.
	Backoff time.Duration

	HTTPClient *http.Client
	Fs         afero.Fs
	Logger     *zerolog.Logger
}

// Downloader fetches assets over HTTP. It is safe for concurrent use.
type Downloader struct {
	httpClient  *http.Client
	fs          afero.Fs
	userAgent   string
	headers     map[string]string
	maxAttempts int
	backoff     time.Duration
	logger      zerolog.Logger

	mu       sync.RWMutex
	progress ProgressFunc
}

// New returns a Downloader.
func New(opts Options) *Downloader {
	d := &Downloader{
		httpClient:  opts.HTTPClient,
		fs:          opts.Fs,
		userAgent:   opts.UserAgent,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		headers:     make(map[string]string, len(opts.Headers)),
	}
	if d.httpClient == nil {
		d.httpClient = &http.Client{}
	}
	if d.fs == nil {
		d.fs = afero.NewOsFs()
	}
	if d.userAgent == "" {
		d.userAgent = config.DefaultUserAgent
	}
	if d.maxAttempts < 1 {
		d.maxAttempts = config.DefaultDownloadRetries
	}
	for k, v := range opts.Headers {
		d.headers[k] = v
	}
	if opts.Logger != nil {
		d.logger = *opts.Logger
	} else {
		d.logger = xlog.WithComponent("download")
	}
	return d
}

// SetProgressCallback installs fn as the progress observer; nil removes it.
func (d *Downloader) SetProgressCallback(fn ProgressFunc) {
	d.mu.Lock()
	d.progress = fn
	d.mu.Unlock()
}

func (d *Downloader) report(task *types.DownloadTask) {
	d.mu.RLock()
	fn := d.progress
	d.mu.RUnlock()
	if fn != nil {
		fn(task)
	}
}

// Download stores task.Asset at task.DestinationPath.
//
// An existing destination is left alone unless task.Overwrite is set. Transport
// failures and non-200 responses are retried up to the task's attempt budget;
// once a 200 response has been accepted, a read or write failure ends the task
// with a Transfer error and the partial file is removed.
func (d *Downloader) Download(ctx context.Context, task *types.DownloadTask) error {
	if task.MaxAttempts < 1 {
		task.MaxAttempts = d.maxAttempts
	}
	logger := d.logger.With().
		Str(xlog.FieldURL, task.Asset.URL).
		Str(xlog.FieldPath, task.DestinationPath).
		Logger()

	if !task.Overwrite {
		exists, err := afero.Exists(d.fs, task.DestinationPath)
		if err != nil {
			task.Status = types.TaskFailed
			return fmt.Errorf("stat %s: %w", task.DestinationPath, err)
		}
		if exists {
			task.Skipped = true
			task.Status = types.TaskSucceeded
			logger.Info().Msg("file exists, skipping")
			return nil
		}
	}

	if err := d.fs.MkdirAll(filepath.Dir(task.DestinationPath), 0o755); err != nil {
		task.Status = types.TaskFailed
		return fmt.Errorf("create directory for %s: %w", task.DestinationPath, err)
	}

	req, err := d.newRequest(task.Asset.URL)
	if err != nil {
		task.Status = types.TaskFailed
		return fmt.Errorf("download %s: %w", task.Asset.URL, err)
	}

	task.Status = types.TaskInProgress
	retryIf := func(err error) bool {
		if ctx.Err() != nil {
			return false
		}
		var de *DownloadError
		return !errors.As(err, &de)
	}

	err = retry.Do(
		func() error {
			task.Attempt++
			return d.attempt(ctx, req, task)
		},
		retry.Context(ctx),
		retry.Attempts(uint(task.MaxAttempts)),
		retry.Delay(d.backoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryIf),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().Err(err).
				Int(xlog.FieldAttempt, int(n)+1).
				Int(xlog.FieldMaxAttempts, task.MaxAttempts).
				Msg("download attempt failed")
		}),
	)
	if err == nil {
		task.Status = types.TaskSucceeded
		d.report(task)
		logger.Info().Int64(xlog.FieldBytes, task.BytesReceived).Msg("download finished")
		return nil
	}

	task.Status = types.TaskFailed
	d.report(task)
	var de *DownloadError
	if errors.As(err, &de) {
		de.Attempts = task.Attempt
		return de
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("download %s: %w", task.Asset.URL, ctxErr)
	}
	return &DownloadError{Kind: RetriesExhausted, URL: task.Asset.URL, Attempts: task.Attempt, Err: err}
}

// newRequest builds the GET shared by every attempt of one task.
func (d *Downloader) newRequest(rawURL string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", d.userAgent)
	return req, nil
}

// attempt performs one GET. Errors returned as *DownloadError are final.
func (d *Downloader) attempt(ctx context.Context, req *http.Request, task *types.DownloadTask) error {
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	resp, err := d.httpClient.Do(req.Clone(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return &statusError{Status: resp.StatusCode}
	}

	task.BytesReceived = 0
	task.BytesTotal = resp.ContentLength
	if task.BytesTotal <= 0 {
		task.BytesTotal = -1
	}
	d.report(task)

	if err := d.store(resp.Body, task); err != nil {
		if rmErr := d.fs.Remove(task.DestinationPath); rmErr != nil {
			d.logger.Debug().Err(rmErr).Str(xlog.FieldPath, task.DestinationPath).Msg("remove partial file")
		}
		return &DownloadError{Kind: Transfer, URL: task.Asset.URL, Err: err}
	}
	return nil
}

func (d *Downloader) store(body io.Reader, task *types.DownloadTask) error {
	f, err := d.fs.Create(task.DestinationPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	w := &progressWriter{w: f, task: task, report: d.report}
	_, copyErr := io.Copy(w, body)
	closeErr := f.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return fmt.Errorf("close file: %w", closeErr)
	}
	return nil
}

// progressWriter counts bytes into the task and notifies after each write.
type progressWriter struct {
	w      io.Writer
	task   *types.DownloadTask
	report func(*types.DownloadTask)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.task.BytesReceived += int64(n)
	p.report(p.task)
	return n, err
}
