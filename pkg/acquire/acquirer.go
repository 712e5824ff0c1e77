// Package acquire turns candidate image references into de-duplicated,
// quality-checked files under <root>/<brand>/<model>/<category>/.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"car-scraper/pkg/classify"
	"car-scraper/pkg/config"
	"car-scraper/pkg/models"
	"car-scraper/pkg/parse"
	"car-scraper/pkg/utils"
)

// ContentSource downloads image bytes and their digest
type ContentSource interface {
	Hash(ctx context.Context, u models.NormalizedURL) (*Content, error)
}

// Options tunes an Acquirer
type Options struct {
	URL                parse.ImageURLOptions
	Quality            QualityGate
	PerceptualDistance int // 0 disables near-duplicate detection
	Workers            int // <= 1 acquires sequentially
}

// OptionsFromConfig derives Options from a validated AppConfig
func OptionsFromConfig(cfg *config.AppConfig) (Options, error) {
	opts := Options{
		URL: parse.ImageURLOptions{
			ResizeDirective:     cfg.ResizeDirective,
			PlaceholderSuffixes: cfg.PlaceholderSuffixes,
		},
		Quality:            QualityGate{MinWidth: cfg.MinImageWidth, MinHeight: cfg.MinImageHeight},
		PerceptualDistance: cfg.PerceptualDedupDistance,
		Workers:            cfg.NumImageWorkers,
	}
	if cfg.Site.BaseURL != "" {
		base, err := url.Parse(cfg.Site.BaseURL)
		if err != nil {
			return opts, fmt.Errorf("%w: site.base_url: %v", utils.ErrConfigValidation, err)
		}
		opts.URL.BaseURL = base
	}
	return opts, nil
}

// Result is the outcome of one candidate. Image is set only when accepted.
type Result struct {
	Outcome     models.Outcome
	URL         models.NormalizedURL
	Category    models.ImageCategory
	Image       *models.AcquiredImage
	DuplicateOf string // Path of the already accepted image, for duplicate outcomes
	Err         error  // Cause of a fetch or quality rejection
}

// Accepted reports whether the candidate was written
func (r Result) Accepted() bool { return r.Outcome == models.OutcomeAccepted }

// Acquirer runs the normalize, classify, hash, dedup, write and verify pipeline
type Acquirer struct {
	source     ContentSource
	classifier *classify.Classifier
	ledger     *Ledger
	paths      *PathBuilder
	opts       Options
	log        *logrus.Entry
}

// NewAcquirer wires an Acquirer around an existing ledger
func NewAcquirer(source ContentSource, classifier *classify.Classifier, ledger *Ledger, paths *PathBuilder, opts Options, log *logrus.Entry) *Acquirer {
	return &Acquirer{
		source:     source,
		classifier: classifier,
		ledger:     ledger,
		paths:      paths,
		opts:       opts,
		log:        log,
	}
}

// Ledger returns the ledger the acquirer commits to
func (a *Acquirer) Ledger() *Ledger { return a.ledger }

// Acquire processes one candidate. Rejections are reported through Result.Outcome;
// the error is non-nil only for filesystem failures, which wrap utils.ErrFilesystem.
// A download cut short by ctx leaves Outcome unset.
func (a *Acquirer) Acquire(ctx context.Context, cand models.CandidateImage, brand, model string) (Result, error) {
	imgLog := a.log.WithFields(logrus.Fields{"brand": brand, "model": model, "img_url": cand.URL})

	normURL, ok := parse.NormalizeImageURL(cand.URL, a.opts.URL)
	if !ok {
		imgLog.Debug("Rejected: URL did not normalize")
		return Result{Outcome: models.OutcomeInvalidURL}, nil
	}
	res := Result{URL: normURL}
	imgLog = imgLog.WithField("img_url", normURL)

	if seenAt, ok := a.ledger.URLPath(normURL); ok {
		imgLog.Debug("Rejected: duplicate URL")
		res.Outcome, res.DuplicateOf = models.OutcomeDuplicateURL, seenAt
		return res, nil
	}

	res.Category = a.classifier.ClassifyCandidate(cand)

	content, err := a.source.Hash(ctx, normURL)
	if err != nil {
		if ctx.Err() != nil {
			// Batch cancelled mid-download; not a rejection of this image
			imgLog.Debugf("Abandoned: %v", ctx.Err())
			return res, nil
		}
		imgLog.WithField("error_type", utils.CategorizeError(err)).Warnf("Rejected: fetch failed: %v", err)
		res.Outcome, res.Err = models.OutcomeFetchFailed, err
		return res, nil
	}

	var phash uint64
	if a.opts.PerceptualDistance > 0 {
		if phash, err = PerceptualHash(content.Bytes); err != nil {
			imgLog.Debugf("Perceptual hash unavailable: %v", err)
			phash = 0
		}
	}

	err = a.ledger.Update(func(txn *LedgerTxn) error {
		// Another worker may have accepted the same URL while we were downloading
		if p, dup := txn.URLPath(normURL); dup {
			res.Outcome, res.DuplicateOf = models.OutcomeDuplicateURL, p
			return nil
		}
		if p, dup := txn.DigestPath(content.Digest); dup {
			res.Outcome, res.DuplicateOf = models.OutcomeDuplicateDigest, p
			return nil
		}
		if p, dup := txn.NearDuplicate(phash, a.opts.PerceptualDistance); dup {
			res.Outcome, res.DuplicateOf = models.OutcomeDuplicatePerceptual, p
			return nil
		}

		dir, err := a.paths.Dir(brand, model, res.Category)
		if err != nil {
			return err
		}
		path, err := a.writeFree(dir, cand.Title, content.Bytes, txn)
		if err != nil {
			return err
		}
		if path == "" {
			res.Outcome = models.OutcomeDuplicatePath
			return nil
		}

		width, height, err := a.opts.Quality.Check(path)
		if err != nil {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				return fmt.Errorf("%w: removing rejected image '%s': %w", utils.ErrFilesystem, path, rmErr)
			}
			if errors.Is(err, utils.ErrFilesystem) {
				return err
			}
			res.Outcome, res.Err = models.OutcomeQualityRejected, err
			return nil
		}

		res.Outcome = models.OutcomeAccepted
		res.Image = &models.AcquiredImage{
			Category:  res.Category,
			FilePath:  path,
			Digest:    content.Digest,
			SourceURL: normURL,
			Width:     width,
			Height:    height,
		}
		return txn.Record(models.LedgerEntry{
			URL:        normURL,
			Digest:     content.Digest,
			Path:       path,
			Category:   res.Category,
			Brand:      brand,
			Model:      model,
			PHash:      phash,
			AcquiredAt: time.Now(),
		})
	})
	if err != nil {
		imgLog.Errorf("Filesystem failure: %v", err)
		res.Outcome, res.Err = models.OutcomeFilesystemError, err
		return res, err
	}

	switch res.Outcome {
	case models.OutcomeAccepted:
		imgLog.WithFields(logrus.Fields{"category": res.Category, "path": res.Image.FilePath}).Debug("Image accepted")
	case models.OutcomeQualityRejected:
		imgLog.Infof("Rejected: %v", res.Err)
	default:
		imgLog.WithField("duplicate_of", res.DuplicateOf).Debugf("Rejected: %s", res.Outcome)
	}
	return res, nil
}

// writeFree writes data to the first free name in dir. It returns "" when the
// chosen path is already owned by the ledger.
func (a *Acquirer) writeFree(dir, title string, data []byte, txn *LedgerTxn) (string, error) {
	for attempt := 0; attempt < 3; attempt++ {
		path, err := a.paths.FreeFile(dir, title)
		if err != nil {
			return "", err
		}
		if txn.HasPath(path) {
			return "", nil
		}
		err = writeExclusive(path, data)
		if errors.Is(err, os.ErrExist) {
			// Created by something outside this process since the probe
			continue
		}
		if err != nil {
			return "", err
		}
		return path, nil
	}
	return "", utils.WrapErrorf(utils.ErrFilesystem, "could not claim a free file name in '%s'", dir)
}

// writeExclusive creates path, failing if it exists, and writes data to it.
// A partially written file is removed.
func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return err
		}
		return fmt.Errorf("%w: creating image file '%s': %w", utils.ErrFilesystem, path, err)
	}
	_, writeErr := f.Write(data)
	closeErr := f.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(path)
		return fmt.Errorf("%w: writing image file '%s': %w", utils.ErrFilesystem, path, writeErr)
	}
	return nil
}

// BatchResult aggregates the outcomes of one model's candidates
type BatchResult struct {
	Images     []models.AcquiredImage
	Counts     map[models.ImageCategory]int
	Rejections map[models.Outcome]int
}

func newBatchResult() BatchResult {
	return BatchResult{
		Counts:     make(map[models.ImageCategory]int),
		Rejections: make(map[models.Outcome]int),
	}
}

func (b *BatchResult) add(r Result) {
	if r.Accepted() {
		b.Images = append(b.Images, *r.Image)
		b.Counts[r.Image.Category]++
		return
	}
	if r.Outcome != models.OutcomeUnset {
		b.Rejections[r.Outcome]++
	}
}

// Total returns the number of accepted images
func (b BatchResult) Total() int { return len(b.Images) }

// Rejected returns the number of rejected candidates
func (b BatchResult) Rejected() int {
	n := 0
	for _, c := range b.Rejections {
		n += c
	}
	return n
}

// AcquireAll acquires every candidate for one model. With Workers <= 1 candidates
// are processed in order; otherwise a bounded pool is used. The first filesystem
// failure (or context cancellation) stops the batch and is returned along with
// whatever was accepted so far.
func (a *Acquirer) AcquireAll(ctx context.Context, cands []models.CandidateImage, brand, model string) (BatchResult, error) {
	batch := newBatchResult()

	if a.opts.Workers <= 1 {
		for _, cand := range cands {
			if err := ctx.Err(); err != nil {
				return batch, err
			}
			res, err := a.Acquire(ctx, cand, brand, model)
			batch.add(res)
			if err != nil {
				return batch, err
			}
		}
		return batch, nil
	}

	results := make([]Result, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)

	var mu sync.Mutex
	var firstErr error
	for i, cand := range cands {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := a.Acquire(gctx, cand, brand, model)
			results[i] = res
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
			return err
		})
	}
	waitErr := g.Wait()

	for _, res := range results {
		batch.add(res)
	}
	if firstErr != nil {
		return batch, firstErr
	}
	if waitErr != nil {
		return batch, waitErr
	}
	return batch, ctx.Err()
}
