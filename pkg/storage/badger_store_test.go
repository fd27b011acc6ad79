package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/crawl-engine/pkg/models"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir(), false, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testPage(url, body string) *models.CachedPage {
	return &models.CachedPage{
		URL:         url,
		FinalURL:    url,
		Body:        []byte(body),
		ContentType: "text/html",
		ContentHash: utils.HashBytes([]byte(body)),
		FetchedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestBadgerStore_PutGet(t *testing.T) {
	store := newTestStore(t)

	_, found, err := store.Get("https://example.com/")
	require.NoError(t, err)
	assert.False(t, found)

	page := testPage("https://example.com/", "<html>hi</html>")
	require.NoError(t, store.Put(page))

	got, found, err := store.Get("https://example.com/")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, page.URL, got.URL)
	assert.Equal(t, page.Body, got.Body)
	assert.Equal(t, page.ContentHash, got.ContentHash)
	assert.True(t, page.FetchedAt.Equal(got.FetchedAt))
}

func TestBadgerStore_Count(t *testing.T) {
	store := newTestStore(t)
	assert.Equal(t, 0, store.Count())

	require.NoError(t, store.Put(testPage("https://example.com/a", "a")))
	require.NoError(t, store.Put(testPage("https://example.com/b", "b")))
	require.NoError(t, store.Put(testPage("https://example.com/a", "a2")))

	assert.Equal(t, 2, store.Count(), "overwriting a page must not change the count")
}

func TestBadgerStore_PutRejectsEmptyURL(t *testing.T) {
	store := newTestStore(t)
	err := store.Put(&models.CachedPage{})
	assert.ErrorIs(t, err, utils.ErrCache)
	assert.Equal(t, "Cache_Other", utils.CategorizeError(err))
}

func TestBadgerStore_Reuse(t *testing.T) {
	dir := t.TempDir()

	t.Run("reuse keeps entries", func(t *testing.T) {
		store1, err := NewBadgerStore(dir, false, testLogger())
		require.NoError(t, err)
		require.NoError(t, store1.Put(testPage("https://example.com/page1", "x")))
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, true, testLogger())
		require.NoError(t, err)
		defer store2.Close()

		assert.Equal(t, 1, store2.Count())
		_, found, err := store2.Get("https://example.com/page1")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("no reuse wipes entries", func(t *testing.T) {
		store, err := NewBadgerStore(dir, false, testLogger())
		require.NoError(t, err)
		defer store.Close()

		assert.Equal(t, 0, store.Count())
		_, found, err := store.Get("https://example.com/page1")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestBadgerStore_ConcurrentPuts(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Put(testPage("https://example.com/same", "body")))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.Count())
}

func TestBadgerStore_WriteIndex(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		store := newTestStore(t)
		outPath := filepath.Join(t.TempDir(), "index.txt")
		require.NoError(t, store.WriteIndex(context.Background(), outPath))

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		assert.Empty(t, string(data))
	})

	t.Run("urls written without prefix", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Put(testPage("https://example.com/page1", "1")))
		require.NoError(t, store.Put(testPage("https://example.com/page2", "2")))

		outPath := filepath.Join(t.TempDir(), "index.txt")
		require.NoError(t, store.WriteIndex(context.Background(), outPath))

		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/page1\nhttps://example.com/page2\n", string(data))
	})

	t.Run("invalid path returns filesystem error", func(t *testing.T) {
		store := newTestStore(t)
		err := store.WriteIndex(context.Background(), "/nonexistent/dir/file.txt")
		assert.ErrorIs(t, err, utils.ErrFilesystem)
	})

	t.Run("cancelled context stops iteration", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Put(testPage("https://example.com/page1", "1")))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := store.WriteIndex(ctx, filepath.Join(t.TempDir(), "index.txt"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBadgerStore_RunGCStopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		store.RunGC(ctx, 50*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunGC did not respect context cancellation")
	}
}

func TestBadgerStore_Close(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir(), false, testLogger())
	require.NoError(t, err)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestDBUpdateConflictRetry(t *testing.T) {
	t.Run("succeeds after transient conflicts", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			if attempts <= 3 {
				return badger.ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 4, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return badger.ErrConflict
		})
		require.ErrorIs(t, err, utils.ErrCache)
		assert.Contains(t, err.Error(), "transaction conflict not resolved")
		assert.Equal(t, maxConflictRetries, attempts)
	})

	t.Run("non-conflict error returned immediately", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		sentinel := errors.New("some other error")
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, attempts)
	})
}
