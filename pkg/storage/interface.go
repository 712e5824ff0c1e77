package storage

import (
	"context"
	"time"

	"car-scraper/pkg/models"
)

// LedgerStore persists committed ledger entries across runs
type LedgerStore interface {
	// RecordImage stores entry keyed by its normalized URL.
	// Returns true if the URL was not stored before.
	RecordImage(entry *models.LedgerEntry) (bool, error)

	// LookupImage returns the stored entry for a URL, or nil when absent
	LookupImage(url models.NormalizedURL) (*models.LedgerEntry, error)

	// ForEach calls fn for every stored entry. Iteration stops at the first error fn returns.
	ForEach(ctx context.Context, fn func(models.LedgerEntry) error) error

	// Count returns the number of stored entries
	Count() int
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// WriteLedgerLog writes every stored URL, digest and path to filePath as TSV
	WriteLedgerLog(ctx context.Context, filePath string) error

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database
	Close() error
}

// PersistentLedger combines both interfaces for the CLI
type PersistentLedger interface {
	LedgerStore
	StoreAdmin
}
