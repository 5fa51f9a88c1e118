package types

// ItemState is the state of one page URL inside a batch.
// Transitions only move forward: Queued → Fetching → Extracting →
// DownloadingAssets → Completed, with Failed reachable from any
// non-terminal state.
type ItemState string

const (
	ItemQueued            ItemState = "queued"
	ItemFetching          ItemState = "fetching"
	ItemExtracting        ItemState = "extracting"
	ItemDownloadingAssets ItemState = "downloading_assets"
	ItemCompleted         ItemState = "completed"
	ItemFailed            ItemState = "failed"
)

var itemStateOrder = map[ItemState]int{
	ItemQueued:            0,
	ItemFetching:          1,
	ItemExtracting:        2,
	ItemDownloadingAssets: 3,
	ItemCompleted:         4,
	ItemFailed:            4,
}

// IsTerminal reports whether the state is Completed or Failed.
func (s ItemState) IsTerminal() bool {
	return s == ItemCompleted || s == ItemFailed
}

// CanAdvance reports whether moving from s to next is a forward transition.
func (s ItemState) CanAdvance(next ItemState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == ItemFailed {
		return true
	}
	return itemStateOrder[next] > itemStateOrder[s]
}

// Outcome is the terminal record for one page URL of a batch.
type Outcome struct {
	Index int        `json:"index"`
	URL   string     `json:"url"`
	State ItemState  `json:"state"`
	Item  *MediaItem `json:"item,omitempty"`
	// Files lists the destination paths written or found on disk.
	Files []string `json:"files,omitempty"`
	Err   error    `json:"-"`
	Error string   `json:"error,omitempty"`
}

// Advance moves the outcome to next if the transition is forward and
// reports whether it did.
func (o *Outcome) Advance(next ItemState) bool {
	if !o.State.CanAdvance(next) {
		return false
	}
	o.State = next
	return true
}

// Fail moves the outcome to Failed and records err.
func (o *Outcome) Fail(err error) {
	if !o.Advance(ItemFailed) {
		return
	}
	o.Err = err
	if err != nil {
		o.Error = err.Error()
	}
}
