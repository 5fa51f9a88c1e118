// Package commands provides the CLI command implementations.
//
// # Dependency Injection
//
// The interfaces below define the dependencies of App, enabling testability
// through mock injection. Shared data types live in internal/types and
// internal/store so no package has to import commands.
//
// Usage:
//   - Production: Use NewApp() which wires the page client, extractor,
//     downloader, orchestrator and optional history ledger
//   - Testing: Use NewAppWithDeps() to inject mocks
package commands

import (
	"context"

	"github.com/vicentereig/notegrab/internal/batch"
	"github.com/vicentereig/notegrab/internal/store"
)

// BatchRunner runs one download batch.
// The concrete implementation is batch.Orchestrator.
type BatchRunner interface {
	Run(ctx context.Context, urls []string) (batch.Summary, error)
}

// HistoryStore reads the download ledger.
// The concrete implementation is store.HistoryStore.
type HistoryStore interface {
	ListDownloads(params store.ListDownloadsParams) ([]store.Download, error)
	ListItems(params store.ListItemsParams) ([]store.Item, error)
	Close() error
}
