package acquire

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"car-scraper/pkg/models"
	"car-scraper/pkg/storage"
)

// ErrReadOnlyTxn is returned by Record inside View
var ErrReadOnlyTxn = errors.New("ledger: record in read-only transaction")

type perceptualEntry struct {
	hash uint64
	path string
}

// Ledger tracks accepted URLs, content digests and destination paths for a session.
// It only grows. All access goes through View and Update, which share one mutex,
// so a check followed by the actions it guards is atomic across goroutines.
type Ledger struct {
	mu         sync.Mutex
	urls       map[models.NormalizedURL]string // url -> path
	digests    map[models.ContentDigest]string // digest -> path
	paths      map[string]struct{}
	perceptual []perceptualEntry
	store      storage.LedgerStore // Optional
	log        *logrus.Entry
}

// LedgerStats is a point-in-time size of each set
type LedgerStats struct {
	URLs    int
	Digests int
	Paths   int
}

// NewLedger returns an empty ledger. When store is non-nil every committed
// entry is also written to it.
func NewLedger(store storage.LedgerStore, log *logrus.Entry) *Ledger {
	return &Ledger{
		urls:    make(map[models.NormalizedURL]string),
		digests: make(map[models.ContentDigest]string),
		paths:   make(map[string]struct{}),
		store:   store,
		log:     log,
	}
}

// Preload copies every entry from the backing store into memory
func (l *Ledger) Preload(ctx context.Context) (int, error) {
	if l.store == nil {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	err := l.store.ForEach(ctx, func(e models.LedgerEntry) error {
		l.apply(e)
		n++
		return nil
	})
	return n, err
}

// Seed adds entries discovered outside the acquirer, such as files already on disk.
// Seeded entries are not written to the store.
func (l *Ledger) Seed(entries ...models.LedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		l.apply(e)
	}
}

// Stats returns the current set sizes
func (l *Ledger) Stats() LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LedgerStats{URLs: len(l.urls), Digests: len(l.digests), Paths: len(l.paths)}
}

// URLPath reports the path recorded for a normalized URL
func (l *Ledger) URLPath(u models.NormalizedURL) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.urls[u]
	return p, ok
}

// View runs fn with read access
func (l *Ledger) View(fn func(*LedgerTxn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(&LedgerTxn{l: l})
}

// Update runs fn with read/write access. Entries recorded by fn are committed
// together if fn returns nil and discarded otherwise.
func (l *Ledger) Update(fn func(*LedgerTxn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	txn := &LedgerTxn{l: l, writable: true}
	if err := fn(txn); err != nil {
		return err
	}
	for _, e := range txn.pending {
		l.apply(e)
		l.persist(e)
	}
	return nil
}

// apply must be called with mu held
func (l *Ledger) apply(e models.LedgerEntry) {
	if e.URL != "" {
		l.urls[e.URL] = e.Path
	}
	if e.Digest != "" {
		l.digests[e.Digest] = e.Path
	}
	if e.Path != "" {
		l.paths[e.Path] = struct{}{}
	}
	if e.PHash != 0 {
		l.perceptual = append(l.perceptual, perceptualEntry{hash: e.PHash, path: e.Path})
	}
}

// persist failures are logged; the in-memory ledger stays authoritative for the session
func (l *Ledger) persist(e models.LedgerEntry) {
	if l.store == nil || e.URL == "" {
		return
	}
	if _, err := l.store.RecordImage(&e); err != nil {
		l.log.WithField("img_url", e.URL).Errorf("Failed to persist ledger entry: %v", err)
	}
}

// LedgerTxn is the handle passed to View and Update callbacks
type LedgerTxn struct {
	l        *Ledger
	writable bool
	pending  []models.LedgerEntry
}

// URLPath reports whether u was accepted and where it was written
func (t *LedgerTxn) URLPath(u models.NormalizedURL) (string, bool) {
	if p, ok := t.l.urls[u]; ok {
		return p, true
	}
	for _, e := range t.pending {
		if e.URL == u {
			return e.Path, true
		}
	}
	return "", false
}

// HasURL reports whether u was accepted
func (t *LedgerTxn) HasURL(u models.NormalizedURL) bool {
	_, ok := t.URLPath(u)
	return ok
}

// DigestPath reports whether d was accepted and the path it lives at
func (t *LedgerTxn) DigestPath(d models.ContentDigest) (string, bool) {
	if p, ok := t.l.digests[d]; ok {
		return p, true
	}
	for _, e := range t.pending {
		if e.Digest == d {
			return e.Path, true
		}
	}
	return "", false
}

// HasPath reports whether path was written by an accepted image
func (t *LedgerTxn) HasPath(path string) bool {
	if _, ok := t.l.paths[path]; ok {
		return true
	}
	for _, e := range t.pending {
		if e.Path == path {
			return true
		}
	}
	return false
}

// NearDuplicate returns the path of an accepted image whose difference hash is
// within maxDistance bits of hash. maxDistance <= 0 disables the check.
func (t *LedgerTxn) NearDuplicate(hash uint64, maxDistance int) (string, bool) {
	if maxDistance <= 0 || hash == 0 {
		return "", false
	}
	for _, p := range t.l.perceptual {
		if hashDistance(hash, p.hash) <= maxDistance {
			return p.path, true
		}
	}
	for _, e := range t.pending {
		if e.PHash != 0 && hashDistance(hash, e.PHash) <= maxDistance {
			return e.Path, true
		}
	}
	return "", false
}

// Record stages e for commit when the enclosing Update returns nil
func (t *LedgerTxn) Record(e models.LedgerEntry) error {
	if !t.writable {
		return ErrReadOnlyTxn
	}
	t.pending = append(t.pending, e)
	return nil
}
