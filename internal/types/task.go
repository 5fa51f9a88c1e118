package types

import "time"

// TaskStatus is the status of a single asset download.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskSucceeded  TaskStatus = "succeeded"
	TaskFailed     TaskStatus = "failed"
)

// IsFinished returns true for Succeeded and Failed.
func (s TaskStatus) IsFinished() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// DownloadTask is the work item for one asset. It is created by the batch
// orchestrator and mutated only by the downloader.
type DownloadTask struct {
	Asset           AssetRef
	DestinationPath string
	Kind            Kind

	// Overwrite re-fetches even when DestinationPath already exists.
	Overwrite bool
	// Timeout bounds the whole request including the body; 0 disables it.
	Timeout time.Duration

	Attempt     int
	MaxAttempts int
	Status      TaskStatus

	BytesReceived int64
	// BytesTotal is the declared Content-Length, or -1 when unknown.
	BytesTotal int64
	// Skipped is set when the file already existed and no transfer happened.
	Skipped bool
}

// NewDownloadTask returns a pending task for asset written to dest.
func NewDownloadTask(asset AssetRef, dest string, kind Kind) *DownloadTask {
	return &DownloadTask{
		Asset:           asset,
		DestinationPath: dest,
		Kind:            kind,
		Status:          TaskPending,
		BytesTotal:      -1,
	}
}

// Percent returns download progress in [0,100], or -1 when the total is unknown.
func (t *DownloadTask) Percent() int {
	if t.BytesTotal <= 0 {
		return -1
	}
	p := int(t.BytesReceived * 100 / t.BytesTotal)
	if p > 100 {
		p = 100
	}
	return p
}
