package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"car-scraper/pkg/acquire"
	"car-scraper/pkg/config"
	"car-scraper/pkg/storage"
	"car-scraper/pkg/utils"
)

const ledgerGCInterval = 5 * time.Minute

// LedgerHandle owns the run's duplicate ledger and, in persistent mode, its store
type LedgerHandle struct {
	Ledger *acquire.Ledger
	Mode   string
	Seeded int // Entries loaded from disk or the store before the first candidate

	store  storage.PersistentLedger
	stopGC context.CancelFunc
	log    *logrus.Entry
}

// OpenLedger builds the ledger for cfg.LedgerMode:
//   - cold: empty
//   - warm: seeded from the images already under output_dir
//   - persistent: backed by the badger store in state_dir
func OpenLedger(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) (*LedgerHandle, error) {
	ledgerLog := log.WithField("component", "ledger")
	h := &LedgerHandle{Mode: cfg.LedgerMode, log: ledgerLog}

	switch cfg.LedgerMode {
	case config.LedgerModeWarm:
		h.Ledger = acquire.NewLedger(nil, ledgerLog)
		entries, err := acquire.Reconcile(ctx, cfg.OutputDir, ledgerLog)
		if err != nil {
			return nil, fmt.Errorf("reconcile '%s': %w", cfg.OutputDir, err)
		}
		h.Ledger.Seed(entries...)
		h.Seeded = len(entries)
		ledgerLog.Infof("Warm ledger seeded with %d existing images from %s", h.Seeded, cfg.OutputDir)

	case config.LedgerModePersistent:
		store, err := storage.NewBadgerStore(cfg.StateDir, false, ledgerLog)
		if err != nil {
			return nil, err
		}
		h.store = store
		h.Ledger = acquire.NewLedger(store, ledgerLog)
		n, err := h.Ledger.Preload(ctx)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("preload ledger: %w", err)
		}
		h.Seeded = n
		gcCtx, cancel := context.WithCancel(context.Background())
		h.stopGC = cancel
		go store.RunGC(gcCtx, ledgerGCInterval)
		ledgerLog.Infof("Persistent ledger loaded %d entries from %s", n, cfg.StateDir)

	default:
		h.Ledger = acquire.NewLedger(nil, ledgerLog)
		ledgerLog.Debug("Cold ledger: starting empty")
	}
	return h, nil
}

// WriteLog dumps every stored entry as TSV. Only the persistent mode has a store.
func (h *LedgerHandle) WriteLog(ctx context.Context, path string) error {
	if h.store == nil {
		return fmt.Errorf("%w: ledger log needs ledger_mode '%s', running '%s'", utils.ErrDatabase, config.LedgerModePersistent, h.Mode)
	}
	return h.store.WriteLedgerLog(ctx, path)
}

// Close stops background GC and closes the store, if any
func (h *LedgerHandle) Close() error {
	if h.stopGC != nil {
		h.stopGC()
	}
	if h.store == nil {
		return nil
	}
	return h.store.Close()
}
