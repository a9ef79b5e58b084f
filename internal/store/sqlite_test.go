package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/gmail-scraper/internal/scrape"
	"github.com/hal9000y/gmail-scraper/internal/store"
)

func newTestSQLiteSink(t *testing.T) *store.SQLiteSink {
	t.Helper()

	s, err := store.NewSQLiteSink(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing sqlite sink: %v", err)
		}
	})

	return s
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteSink(t)

	key := scrape.Key{Recipient: "me@example.com", SubjectSubstring: "Invoice"}
	other := scrape.Key{Recipient: "me@example.com", SubjectSubstring: "Receipt"}

	_, err := s.Load(ctx, key)
	assert.ErrorIs(t, err, store.ErrNotFound)

	first := scrape.ResultSet{{Sender: "a", Subject: "Invoice 1", Snippet: "one..."}}
	second := scrape.ResultSet{
		{Sender: "b", Subject: "Invoice 2", Snippet: "two..."},
		{Sender: "c", Subject: "Invoice 3", Snippet: "three..."},
	}

	require.NoError(t, s.Save(ctx, key, first))
	require.NoError(t, s.Save(ctx, key, second))
	require.NoError(t, s.Save(ctx, other, nil))

	got, err := s.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	got, err = s.Load(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteSinkConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteSink(t)

	const (
		workers = 400
		keys    = 7
	)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []error
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			key := scrape.Key{Recipient: "me@example.com", SubjectSubstring: fmt.Sprintf("subject %d", i%keys)}
			results := scrape.ResultSet{{Sender: "a", Subject: key.SubjectSubstring, Snippet: fmt.Sprintf("%d...", i)}}

			if err := s.Save(ctx, key, results); err != nil {
				mu.Lock()
				failed = append(failed, err)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, failed)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, keys, n)

	for k := 0; k < keys; k++ {
		got, err := s.Load(ctx, scrape.Key{Recipient: "me@example.com", SubjectSubstring: fmt.Sprintf("subject %d", k)})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, fmt.Sprintf("subject %d", k), got[0].Subject)
	}
}
