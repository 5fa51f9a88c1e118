package commands

import (
	"context"

	"github.com/vicentereig/notegrab/internal/batch"
	"github.com/vicentereig/notegrab/internal/store"
)

// MockBatchRunner implements BatchRunner for testing.
type MockBatchRunner struct {
	RunFunc func(ctx context.Context, urls []string) (batch.Summary, error)
}

func (m *MockBatchRunner) Run(ctx context.Context, urls []string) (batch.Summary, error) {
	if m.RunFunc != nil {
		return m.RunFunc(ctx, urls)
	}
	return batch.Summary{Total: len(urls)}, nil
}

// MockHistoryStore implements HistoryStore for testing.
type MockHistoryStore struct {
	ListDownloadsFunc func(params store.ListDownloadsParams) ([]store.Download, error)
	ListItemsFunc     func(params store.ListItemsParams) ([]store.Item, error)
	CloseFunc         func() error
}

func (m *MockHistoryStore) ListDownloads(params store.ListDownloadsParams) ([]store.Download, error) {
	if m.ListDownloadsFunc != nil {
		return m.ListDownloadsFunc(params)
	}
	return nil, nil
}

func (m *MockHistoryStore) ListItems(params store.ListItemsParams) ([]store.Item, error) {
	if m.ListItemsFunc != nil {
		return m.ListItemsFunc(params)
	}
	return nil, nil
}

func (m *MockHistoryStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
