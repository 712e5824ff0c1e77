package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"car-scraper/pkg/models"
	"car-scraper/pkg/utils"
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

func testEntry(n int) *models.LedgerEntry {
	return &models.LedgerEntry{
		URL:        models.NormalizedURL(fmt.Sprintf("https://stimg.cardekho.com/images/%d.jpeg?imwidth=1920&impolicy=resize", n)),
		Digest:     models.ContentDigest(fmt.Sprintf("%064d", n)),
		Path:       filepath.Join("car_images", "Tata", "Nexon", "exterior", fmt.Sprintf("Front %d.jpg", n)),
		Category:   models.CategoryExterior,
		Brand:      "Tata",
		Model:      "Nexon",
		AcquiredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewBadgerStore(t *testing.T) {
	t.Run("fresh store has zero count", func(t *testing.T) {
		store := newTestStore(t)
		assert.Equal(t, 0, store.Count())
	})

	t.Run("reopen preserves entries", func(t *testing.T) {
		dir := t.TempDir()

		store1, err := NewBadgerStore(dir, false, testLogger())
		require.NoError(t, err)
		_, err = store1.RecordImage(testEntry(1))
		require.NoError(t, err)
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, false, testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })
		assert.Equal(t, 1, store2.Count())
	})

	t.Run("reset wipes entries", func(t *testing.T) {
		dir := t.TempDir()

		store1, err := NewBadgerStore(dir, false, testLogger())
		require.NoError(t, err)
		_, err = store1.RecordImage(testEntry(1))
		require.NoError(t, err)
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, true, testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })
		assert.Equal(t, 0, store2.Count())
	})
}

func TestRecordImage(t *testing.T) {
	store := newTestStore(t)

	t.Run("new URL returns true", func(t *testing.T) {
		added, err := store.RecordImage(testEntry(1))
		require.NoError(t, err)
		assert.True(t, added)
	})

	t.Run("same URL returns false and overwrites", func(t *testing.T) {
		e := testEntry(1)
		e.Category = models.CategoryInterior
		added, err := store.RecordImage(e)
		require.NoError(t, err)
		assert.False(t, added)

		got, err := store.LookupImage(e.URL)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.CategoryInterior, got.Category)
	})

	t.Run("count not double-counted", func(t *testing.T) {
		assert.Equal(t, 1, store.Count())
	})

	t.Run("entry without URL rejected", func(t *testing.T) {
		_, err := store.RecordImage(&models.LedgerEntry{Digest: "abc"})
		assert.ErrorIs(t, err, utils.ErrDatabase)
	})
}

func TestLookupImage(t *testing.T) {
	store := newTestStore(t)

	t.Run("not found", func(t *testing.T) {
		got, err := store.LookupImage("https://example.com/missing.jpg")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("full round-trip", func(t *testing.T) {
		want := testEntry(7)
		want.PHash = 0xdeadbeef
		_, err := store.RecordImage(want)
		require.NoError(t, err)

		got, err := store.LookupImage(want.URL)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, *want, *got)
	})

	t.Run("corrupted JSON treated as absent", func(t *testing.T) {
		key := []byte(imageKeyPrefix + "https://example.com/bad.jpg")
		require.NoError(t, store.db.Update(func(txn *badger.Txn) error {
			return txn.Set(key, []byte("{not json"))
		}))
		got, err := store.LookupImage("https://example.com/bad.jpg")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestForEach(t *testing.T) {
	t.Run("visits every entry", func(t *testing.T) {
		store := newTestStore(t)
		for i := range 5 {
			_, err := store.RecordImage(testEntry(i))
			require.NoError(t, err)
		}

		seen := map[models.NormalizedURL]bool{}
		err := store.ForEach(context.Background(), func(e models.LedgerEntry) error {
			seen[e.URL] = true
			return nil
		})
		require.NoError(t, err)
		assert.Len(t, seen, 5)
	})

	t.Run("callback error stops iteration", func(t *testing.T) {
		store := newTestStore(t)
		for i := range 3 {
			_, err := store.RecordImage(testEntry(i))
			require.NoError(t, err)
		}
		stop := errors.New("stop")
		calls := 0
		err := store.ForEach(context.Background(), func(models.LedgerEntry) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})

	t.Run("context cancellation", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.RecordImage(testEntry(1))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err = store.ForEach(ctx, func(models.LedgerEntry) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("unreadable entries skipped", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.RecordImage(testEntry(1))
		require.NoError(t, err)
		require.NoError(t, store.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(imageKeyPrefix+"https://example.com/bad.jpg"), []byte("garbage"))
		}))

		calls := 0
		err = store.ForEach(context.Background(), func(models.LedgerEntry) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestWriteLedgerLog(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		store := newTestStore(t)
		path := filepath.Join(t.TempDir(), "ledger.tsv")
		require.NoError(t, store.WriteLedgerLog(context.Background(), path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("entries written as TSV", func(t *testing.T) {
		store := newTestStore(t)
		e := testEntry(3)
		_, err := store.RecordImage(e)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "ledger.tsv")
		require.NoError(t, store.WriteLedgerLog(context.Background(), path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		line := strings.TrimSpace(string(data))
		assert.Equal(t, string(e.URL)+"\t"+string(e.Digest)+"\t"+e.Path, line)
	})

	t.Run("invalid path returns error", func(t *testing.T) {
		store := newTestStore(t)
		err := store.WriteLedgerLog(context.Background(), "/nonexistent/dir/file.log")
		assert.ErrorIs(t, err, utils.ErrFilesystem)
	})
}

func TestRunGC(t *testing.T) {
	t.Run("respects context cancellation", func(t *testing.T) {
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
	})
}

func TestClose(t *testing.T) {
	t.Run("double close does not panic", func(t *testing.T) {
		store, err := NewBadgerStore(t.TempDir(), false, testLogger())
		require.NoError(t, err)
		assert.NoError(t, store.Close())
		assert.NoError(t, store.Close())
	})
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
		require.ErrorIs(t, err, utils.ErrDatabase)
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
