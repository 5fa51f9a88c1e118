package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vicentereig/notegrab/internal/types"
)

// failingCreateFs refuses to create files but otherwise behaves normally.
type failingCreateFs struct {
	afero.Fs
}

func (failingCreateFs) Create(string) (afero.File, error) {
	return nil, errors.New("disk full")
}

func newTestDownloader(fs afero.Fs, attempts int) *Downloader {
	nop := zerolog.Nop()
	return New(Options{
		UserAgent:   "notegrab-test",
		Headers:     map[string]string{"Referer": "https://example.com/"},
		MaxAttempts: attempts,
		Fs:          fs,
		Logger:      &nop,
	})
}

func TestDownloadWritesBodyAndHeaders(t *testing.T) {
	var gotUA, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	task := types.NewDownloadTask(types.AssetRef{URL: srv.URL + "/t1"}, "/root/images/title/t1.jpg", types.KindImage)

	err := newTestDownloader(fs, 5).Download(context.Background(), task)
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "/root/images/title/t1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
	assert.Equal(t, "notegrab-test", gotUA)
	assert.Equal(t, "https://example.com/", gotReferer)
	assert.Equal(t, types.TaskSucceeded, task.Status)
	assert.Equal(t, 1, task.Attempt)
	assert.Equal(t, int64(10), task.BytesReceived)
	assert.Equal(t, int64(10), task.BytesTotal)
	assert.False(t, task.Skipped)
}

func TestDownloadSkipsExistingFile(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("new"))
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/out/a.jpg", []byte("old"), 0o644))

	task := types.NewDownloadTask(types.AssetRef{URL: srv.URL}, "/out/a.jpg", types.KindImage)
	require.NoError(t, newTestDownloader(fs, 5).Download(context.Background(), task))

	assert.Zero(t, hits.Load(), "no request is made for an existing file")
	assert.True(t, task.Skipped)
	assert.Equal(t, types.TaskSucceeded, task.Status)
	data, _ := afero.ReadFile(fs, "/out/a.jpg")
	assert.Equal(t, "old", string(data))
}

func TestDownloadOverwriteReplacesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("new"))
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/out/v.mp4", []byte("old-and-longer"), 0o644))

	task := types.NewDownloadTask(types.AssetRef{URL: srv.URL}, "/out/v.mp4", types.KindVideo)
	task.Overwrite = true
	require.NoError(t, newTestDownloader(fs, 5).Download(context.Background(), task))

	data, _ := afero.ReadFile(fs, "/out/v.mp4")
	assert.Equal(t, "new", string(data))
	assert.False(t, task.Skipped)
}

func TestDownloadRetriesExactlyMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	task := types.NewDownloadTask(types.AssetRef{URL: srv.URL}, "/out/x.jpg", types.KindImage)

	err := newTestDownloader(fs, 5).Download(context.Background(), task)
	require.Error(t, err)
	assert.Equal(t, int32(5), hits.Load())
	assert.ErrorIs(t, err, ErrRetriesExhausted)

	var de *DownloadError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, RetriesExhausted, de.Kind)
	assert.Equal(t, 5, de.Attempts)
	assert.Equal(t, types.TaskFailed, task.Status)

	exists, _ := afero.Exists(fs, "/out/x.jpg")
	assert.False(t, exists, "no file is created for a failed request")
}

func TestDownloadRecoversAfterTransientStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	task := types.NewDownloadTask(types.AssetRef{URL: srv.URL}, "/out/x.jpg", types.KindImage)
	require.NoError(t, newTestDownloader(fs, 5).Download(context.Background(), task))
	assert.Equal(t, 3, task.Attempt)
}

func TestDownloadSendsHeadersOnEveryAttempt(t *testing.T) {
	var mu sync.Mutex
	var agents, referers []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.Header.Get("User-Agent"))
		referers = append(referers, r.Header.Get("Referer"))
		n := len(agents)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	task := types.NewDownloadTask(types.AssetRef{URL: srv.URL}, "/out/x.jpg", types.KindImage)
	require.NoError(t, newTestDownloader(afero.NewMemMapFs(), 5).Download(context.Background(), task))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"notegrab-test", "notegrab-test", "notegrab-test"}, agents)
	assert.Equal(t, []string{"https://example.com/", "https://example.com/", "https://example.com/"}, referers)
}

func TestDownloadReportsTerminalStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   types.TaskStatus
	}{
		{name: "success", status: http.StatusOK, want: types.TaskSucceeded},
		{name: "failure", status: http.StatusInternalServerError, want: types.TaskFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			}))
			defer srv.Close()

			var statuses []types.TaskStatus
			d := newTestDownloader(afero.NewMemMapFs(), 2)
			d.SetProgressCallback(func(task *types.DownloadTask) {
				statuses = append(statuses, task.Status)
			})

			task := types.NewDownloadTask(types.AssetRef{URL: srv.URL}, "/out/x.jpg", types.KindImage)
			_ = d.Download(context.Background(), task)

			require.NotEmpty(t, statuses)
			assert.Equal(t, tt.want, statuses[len(statuses)-1])
			for _, st := range statuses[:len(statuses)-1] {
				assert.False(t, st.IsFinished())
			}
		})
	}
}

func TestDownloadTransportErrorsAreRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	task := types.NewDownloadTask(types.AssetRef{URL: url}, "/out/x.jpg", types.KindImage)
	err := newTestDownloader(afero.NewMemMapFs(), 3).Download(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, task.Attempt)
}

func TestDownloadBrokenBodyIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		// Promise more than is sent so the client sees an unexpected EOF.
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("short"))
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	task := types.NewDownloadTask(types.AssetRef{URL: srv.URL}, "/out/v.mp4", types.KindVideo)

	err := newTestDownloader(fs, 5).Download(context.Background(), task)
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.ErrorIs(t, err, ErrTransfer)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, types.TaskFailed, task.Status)

	exists, _ := afero.Exists(fs, "/out/v.mp4")
	assert.False(t, exists, "partial file is removed")
}

func TestDownloadWriteFailureIsTransferError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	fs := failingCreateFs{Fs: afero.NewMemMapFs()}
	task := types.NewDownloadTask(types.AssetRef{URL: srv.URL}, "/x.jpg", types.KindImage)

	err := newTestDownloader(fs, 5).Download(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransfer)
	assert.Equal(t, 1, task.Attempt)
}

func TestDownloadReportsProgress(t *testing.T) {
	payload := make([]byte, 64<<10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	d := newTestDownloader(afero.NewMemMapFs(), 1)
	var mu sync.Mutex
	var seen []int64
	d.SetProgressCallback(func(task *types.DownloadTask) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, int64(len(payload)), task.BytesTotal)
		seen = append(seen, task.BytesReceived)
	})

	task := types.NewDownloadTask(types.AssetRef{URL: srv.URL}, "/v.mp4", types.KindVideo)
	require.NoError(t, d.Download(context.Background(), task))

	require.NotEmpty(t, seen)
	assert.Equal(t, int64(0), seen[0])
	assert.Equal(t, int64(len(payload)), seen[len(seen)-1])
	assert.Equal(t, 100, task.Percent())
}

func TestDownloadUnknownLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush() // forces chunked encoding
		_, _ = w.Write([]byte("streamed"))
	}))
	defer srv.Close()

	task := types.NewDownloadTask(types.AssetRef{URL: srv.URL}, "/v.mp4", types.KindVideo)
	require.NoError(t, newTestDownloader(afero.NewMemMapFs(), 1).Download(context.Background(), task))
	assert.Equal(t, int64(-1), task.BytesTotal)
	assert.Equal(t, -1, task.Percent())
	assert.Equal(t, int64(8), task.BytesReceived)
}

func TestDownloadTimeoutBoundsAttempt(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	task := types.NewDownloadTask(types.AssetRef{URL: srv.URL}, "/x.jpg", types.KindImage)
	task.Timeout = 20 * time.Millisecond

	start := time.Now()
	err := newTestDownloader(afero.NewMemMapFs(), 2).Download(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 2, task.Attempt)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDownloadInvalidURL(t *testing.T) {
	task := types.NewDownloadTask(types.AssetRef{URL: "://bad"}, "/x.jpg", types.KindImage)
	err := newTestDownloader(afero.NewMemMapFs(), 3).Download(context.Background(), task)
	require.Error(t, err)
	assert.Zero(t, task.Attempt)
	assert.Equal(t, types.TaskFailed, task.Status)
}

func TestDownloadErrorMessages(t *testing.T) {
	e := &DownloadError{Kind: RetriesExhausted, URL: "u", Attempts: 5, Err: &statusError{Status: 500}}
	assert.Contains(t, e.Error(), "after 5 attempts")
	assert.Contains(t, e.Error(), "500")

	e = &DownloadError{Kind: Transfer, URL: "u", Err: errors.New("short read")}
	assert.Contains(t, e.Error(), "transfer failed")
}
