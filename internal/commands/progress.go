package commands

import (
	"fmt"
	"io"
	"sync"

	"github.com/vicentereig/notegrab/internal/types"
)

// unknownLengthStep is how often a transfer without Content-Length reports.
const unknownLengthStep = 1 << 20

// progressPrinter writes human progress lines. Callbacks arrive from
// several goroutines in concurrent mode.
type progressPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	last map[*types.DownloadTask]int64
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, last: make(map[*types.DownloadTask]int64)}
}

// Transfer reports byte progress, once per percent point (or per MiB when the
// total is unknown) and once at the end. A finished task drops its entry.
func (p *progressPrinter) Transfer(task *types.DownloadTask) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if task.Status.IsFinished() {
		_, seen := p.last[task]
		delete(p.last, task)
		if seen && task.Status == types.TaskSucceeded && task.BytesTotal <= 0 {
			fmt.Fprintf(p.out, "⬇ %s %d bytes, done\n", task.DestinationPath, task.BytesReceived)
		}
		return
	}

	mark := int64(task.Percent())
	if mark < 0 {
		mark = task.BytesReceived / unknownLengthStep
	}
	prev, seen := p.last[task]
	if seen && prev == mark {
		return
	}
	p.last[task] = mark

	if task.BytesTotal > 0 {
		fmt.Fprintf(p.out, "⬇ %s %d/%d bytes (%d%%)\n", task.DestinationPath, task.BytesReceived, task.BytesTotal, mark)
		if task.BytesReceived >= task.BytesTotal {
			delete(p.last, task)
		}
		return
	}
	fmt.Fprintf(p.out, "⬇ %s %d bytes\n", task.DestinationPath, task.BytesReceived)
}

func (p *progressPrinter) Item(out types.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch out.State {
	case types.ItemCompleted:
		title := ""
		if out.Item != nil {
			title = out.Item.Title
		}
		fmt.Fprintf(p.out, "✓ %s %s (%d files)\n", out.URL, title, len(out.Files))
	case types.ItemFailed:
		fmt.Fprintf(p.out, "✗ %s: %s\n", out.URL, out.Error)
	}
}

func (p *progressPrinter) Batch(completed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "📦 %d/%d done\n", completed, total)
	if completed == total {
		fmt.Fprintln(p.out, "🎉 All downloads finished")
	}
}
