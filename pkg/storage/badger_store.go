package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-engine/pkg/log"
	"github.com/Sriram-PR/crawl-engine/pkg/models"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

const (
	pageKeyPrefix = "page:"    // Prefix for page URL keys in DB
	cacheDBDir    = "pages_db" // Subdirectory of the cache dir holding Badger files
)

// BadgerStore implements PageCache on top of BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // Cached key count for O(1) Count
}

// NewBadgerStore opens (or creates) the page cache under cacheDir. Unless
// reuse is set, any existing cache is removed first.
func NewBadgerStore(cacheDir string, reuse bool, logger *logrus.Entry) (*BadgerStore, error) {
	logger = logger.WithField("component", "page_cache")
	store := &BadgerStore{log: logger}
	dbPath := filepath.Join(cacheDir, cacheDBDir)

	if !reuse {
		logger.Debugf("Cache reuse disabled, removing existing cache at %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Warnf("Failed to remove existing cache directory %s: %v", dbPath, err)
		}
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create cache directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1)

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrCache, dbPath, err)
	}

	if reuse {
		count, err := store.countKeys()
		if err != nil {
			logger.Warnf("Failed to count existing cache entries: %v", err)
		} else {
			store.keyCount.Store(int64(count))
		}
	}

	logger.WithFields(logrus.Fields{"path": dbPath, "reuse": reuse, "entries": store.keyCount.Load()}).Info("Page cache opened")
	return store, nil
}

// countKeys performs a one-time full key scan (used only when reusing a cache).
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(pageKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Conflicts between concurrent writers to the same key resolve quickly.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrCache, maxConflictRetries)
}

// Get implements PageCache. Undecodable entries are reported as misses.
func (s *BadgerStore) Get(url string) (*models.CachedPage, bool, error) {
	key := []byte(pageKeyPrefix + url)
	var page *models.CachedPage

	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		return item.Value(func(val []byte) error {
			var decoded models.CachedPage
			if errJSON := json.Unmarshal(val, &decoded); errJSON != nil {
				s.log.Warnf("Failed to decode cached page for key '%s': %v. Treating as miss.", string(key), errJSON)
				return nil
			}
			page = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading key '%s': %w", utils.ErrCache, string(key), err)
	}
	return page, page != nil, nil
}

// Put implements PageCache
func (s *BadgerStore) Put(page *models.CachedPage) error {
	if page == nil || page.URL == "" {
		return fmt.Errorf("%w: page without URL", utils.ErrCache)
	}
	key := []byte(pageKeyPrefix + page.URL)

	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("%w: encoding page '%s': %w", utils.ErrCache, page.URL, err)
	}

	isNew := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		isNew = errors.Is(errGet, badger.ErrKeyNotFound)
		return txn.SetEntry(badger.NewEntry(key, data))
	})
	if err != nil {
		return fmt.Errorf("%w: writing key '%s': %w", utils.ErrCache, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	return nil
}

// Count implements PageCache
func (s *BadgerStore) Count() int {
	return int(s.keyCount.Load())
}

// RunGC runs BadgerDB's value log garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db.IsClosed() {
				return
			}
			var err error
			// Rewrite while at least half of a value log file is reclaimable
			for err == nil {
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
				s.log.Warnf("BadgerDB GC error: %v", err)
			} else {
				s.log.Debug("BadgerDB GC cycle finished")
			}

		case <-ctx.Done():
			return
		}
	}
}

// WriteIndex implements PageCache
func (s *BadgerStore) WriteIndex(ctx context.Context, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("%w: create cache index '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	written := 0
	prefix := []byte(pageKeyPrefix)

	iterErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := it.Item().KeyCopy(nil)
			if _, err := writer.WriteString(string(key[len(prefix):]) + "\n"); err != nil {
				return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
			}
			written++
		}
		return nil
	})
	if iterErr != nil {
		return iterErr
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("%w: flush cache index: %w", utils.ErrFilesystem, err)
	}

	s.log.Infof("Wrote %d cached URLs to %s", written, filePath)
	return nil
}

// Close implements PageCache
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", utils.ErrCache, err)
	}
	s.log.Debug("Page cache closed")
	return nil
}
