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

	"car-scraper/pkg/log"
	"car-scraper/pkg/models"
	"car-scraper/pkg/utils"
)

const (
	imageKeyPrefix = "img:"      // Prefix for normalized image URL keys
	ledgerDBDir    = "ledger_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements PersistentLedger using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // Cached key count for O(1) Count
}

// NewBadgerStore opens (or creates) the ledger database under stateDir.
// When reset is true any existing database is removed first.
func NewBadgerStore(stateDir string, reset bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{log: logger}
	dbPath := filepath.Join(stateDir, ledgerDBDir)

	if reset {
		logger.Warnf("Ledger reset requested. REMOVING existing ledger directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing ledger directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Opening ledger database at: %s", dbPath)
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1)

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	count, err := store.countKeys()
	if err != nil {
		logger.Warnf("Failed to count existing ledger entries: %v", err)
	} else {
		store.keyCount.Store(int64(count))
		logger.Infof("Ledger database holds %d entries", count)
	}
	return store, nil
}

// countKeys performs a one-time key scan at open
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(imageKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// RecordImage implements LedgerStore
func (s *BadgerStore) RecordImage(entry *models.LedgerEntry) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("%w: ledger store not initialized", utils.ErrDatabase)
	}
	if entry == nil || entry.URL == "" {
		return false, fmt.Errorf("%w: ledger entry without URL", utils.ErrDatabase)
	}
	key := []byte(imageKeyPrefix + string(entry.URL))

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		return false, fmt.Errorf("%w: failed to marshal ledger entry for JSON key '%s': %w", utils.ErrParsing, string(key), errJson)
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		isNew = errors.Is(errGet, badger.ErrKeyNotFound)
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in RecordImage: %v", err)
		return false, fmt.Errorf("%w: failed recording image key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	return isNew, nil
}

// LookupImage implements LedgerStore
func (s *BadgerStore) LookupImage(url models.NormalizedURL) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	key := []byte(imageKeyPrefix + string(url))

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting image key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}
		return item.Value(func(val []byte) error {
			var decoded models.LedgerEntry
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				s.log.Warnf("Failed to unmarshal ledger entry for key '%s': %v. Treating as absent.", string(key), errJson)
				return nil
			}
			entry = &decoded
			return nil
		})
	})
	if errView != nil {
		s.log.Errorf("DB View error in LookupImage for key '%s': %v", string(key), errView)
		return nil, errView
	}
	return entry, nil
}

// ForEach implements LedgerStore. Undecodable values are logged and skipped.
func (s *BadgerStore) ForEach(ctx context.Context, fn func(models.LedgerEntry) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(imageKeyPrefix)

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var entry models.LedgerEntry
			errValue := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if errValue != nil {
				s.log.Warnf("Skipping unreadable ledger entry '%s': %v", string(item.Key()), errValue)
				continue
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count implements LedgerStore
func (s *BadgerStore) Count() int {
	return int(s.keyCount.Load())
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug("Ledger GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for {
				// Run GC if log is at least 50% reclaimable space
				if err = s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("Ledger GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping ledger GC goroutine: %v", ctx.Err())
			return
		}
	}
}

// WriteLedgerLog implements StoreAdmin. Each line is url<TAB>digest<TAB>path.
func (s *BadgerStore) WriteLedgerLog(ctx context.Context, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("%w: create ledger log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	var writeErr error
	written := 0

	iterErr := s.ForEach(ctx, func(e models.LedgerEntry) error {
		if _, err := fmt.Fprintf(writer, "%s\t%s\t%s\n", e.URL, e.Digest, e.Path); err != nil {
			writeErr = err
			return err
		}
		written++
		if written%5000 == 0 {
			return writer.Flush()
		}
		return nil
	})

	if flushErr := writer.Flush(); flushErr != nil && writeErr == nil {
		writeErr = flushErr
	}
	if syncErr := file.Sync(); syncErr != nil && writeErr == nil {
		writeErr = syncErr
	}

	if errors.Is(iterErr, context.Canceled) || errors.Is(iterErr, context.DeadlineExceeded) {
		return iterErr
	}
	if writeErr != nil {
		return fmt.Errorf("%w: writing ledger log '%s': %w", utils.ErrFilesystem, filePath, writeErr)
	}
	if iterErr != nil {
		return fmt.Errorf("%w: iterating ledger: %w", utils.ErrDatabase, iterErr)
	}
	s.log.Infof("Wrote %d ledger entries to %s", written, filePath)
	return nil
}

// Close implements StoreAdmin
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing ledger DB: %v", err)
		return fmt.Errorf("%w: closing ledger: %w", utils.ErrDatabase, err)
	}
	s.log.Debug("Ledger DB closed.")
	return nil
}
