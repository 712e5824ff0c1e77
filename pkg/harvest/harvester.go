// Package harvest walks the brand catalog, extracts each model's pages and
// hands the candidate images to the acquirer.
package harvest

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"car-scraper/pkg/acquire"
	"car-scraper/pkg/classify"
	"car-scraper/pkg/config"
	"car-scraper/pkg/extract"
	"car-scraper/pkg/fetch"
	"car-scraper/pkg/models"
	"car-scraper/pkg/parse"
	"car-scraper/pkg/utils"
)

// DocumentFetcher returns a parsed page
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error)
}

// Progress is a snapshot of a running harvest
type Progress struct {
	ModelsProcessed int64
	ImagesAccepted  int64
	IsRunning       bool
}

// Harvester runs brand -> model -> images for one configuration
type Harvester struct {
	cfg       *config.AppConfig
	pages     DocumentFetcher
	extractor *extract.Extractor
	acquirer  *acquire.Acquirer
	paths     *acquire.PathBuilder
	ledger    *LedgerHandle
	log       *logrus.Entry

	modelsProcessed atomic.Int64
	imagesAccepted  atomic.Int64
	running         atomic.Bool
}

// New wires the fetch, extract and acquire layers around a shared HTTP client
func New(cfg *config.AppConfig, client *http.Client, ledger *LedgerHandle, log *logrus.Entry) (*Harvester, error) {
	limiter := fetch.NewRateLimiter(cfg.DefaultDelayPerHost, log)
	hosts := fetch.NewHostSemaphorePool(cfg.MaxRequestsPerHost, log)
	fetcher := fetch.NewFetcher(client, cfg, limiter, hosts, log)

	var robots *fetch.RobotsHandler
	if cfg.RespectRobots {
		robots = fetch.NewRobotsHandler(fetcher, cfg.DefaultUserAgent, log)
	}

	extractor, err := extract.New(cfg.Site, cfg.SkipImagePatterns, log.WithField("component", "extract"))
	if err != nil {
		return nil, err
	}
	opts, err := acquire.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	paths := acquire.NewPathBuilder(cfg.OutputDir)
	hasher := acquire.NewHasher(fetcher, cfg.ImageTimeout, cfg.MaxImageSizeBytes, log.WithField("component", "hasher"))
	acquirer := acquire.NewAcquirer(hasher, classify.New(cfg.CategoryKeywords), ledger.Ledger, paths, opts, log.WithField("component", "acquire"))

	return &Harvester{
		cfg:       cfg,
		pages:     fetch.NewPageFetcher(fetcher, robots, log.WithField("component", "pages")),
		extractor: extractor,
		acquirer:  acquirer,
		paths:     paths,
		ledger:    ledger,
		log:       log,
	}, nil
}

// GetProgress returns the current counters
func (h *Harvester) GetProgress() Progress {
	return Progress{
		ModelsProcessed: h.modelsProcessed.Load(),
		ImagesAccepted:  h.imagesAccepted.Load(),
		IsRunning:       h.running.Load(),
	}
}

// Run harvests every non-skipped brand in order, pausing brand_delay between
// brands. Per-model and per-brand failures are recorded and the run goes on;
// only cancellation stops it early. The returned metadata is complete up to
// the point the run stopped.
func (h *Harvester) Run(ctx context.Context, brands []config.BrandConfig, out *OutputManager) (*models.RunMetadata, error) {
	h.running.Store(true)
	defer h.running.Store(false)

	meta := &models.RunMetadata{
		RunID:        uuid.NewString(),
		StartTime:    time.Now(),
		LedgerMode:   h.ledger.Mode,
		OutputDir:    h.cfg.OutputDir,
		LedgerSeeded: h.ledger.Seeded,
	}
	stats := newRunStats(meta)
	runLog := h.log.WithField("run_id", meta.RunID)
	runLog.Infof("Starting harvest of %d brands (ledger: %s, %d seeded entries)", len(brands), meta.LedgerMode, meta.LedgerSeeded)

	var runErr error
	started := false
	for _, brand := range brands {
		if brand.Skip {
			runLog.WithField("brand", brand.Name).Info("Brand marked skip, not harvesting")
			continue
		}
		if started {
			if err := sleepCtx(ctx, h.cfg.BrandDelay); err != nil {
				runErr = err
				break
			}
		}
		started = true
		meta.Brands = append(meta.Brands, brand.Name)

		brandLog := runLog.WithField("brand", brand.Name)
		if err := h.harvestBrand(ctx, brand, out, stats, brandLog); err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			stats.addError(err)
			brandLog.WithField("error_type", utils.CategorizeError(err)).Errorf("Brand failed: %v", err)
		}
	}

	stats.finish()
	meta.EndTime = time.Now()
	runLog.WithFields(logrus.Fields{
		"models":   meta.TotalModels,
		"failed":   meta.FailedModels,
		"images":   meta.TotalImages,
		"rejected": meta.TotalRejected,
		"duration": meta.EndTime.Sub(meta.StartTime).Round(time.Millisecond),
	}).Info("Harvest finished")
	return meta, runErr
}

// harvestBrand fetches the brand listing and harvests each model on it
func (h *Harvester) harvestBrand(ctx context.Context, brand config.BrandConfig, out *OutputManager, stats *runStats, brandLog *logrus.Entry) error {
	doc, err := h.pages.FetchDocument(ctx, brand.URL)
	if err != nil {
		return fmt.Errorf("brand listing '%s': %w", brand.URL, err)
	}
	cards := h.extractor.Models(doc)
	if len(cards) == 0 {
		return fmt.Errorf("%w: no model cards on %s", utils.ErrSelectorNotFound, brand.URL)
	}
	if limit := config.GetEffectiveMaxModels(brand, *h.cfg); limit > 0 && len(cards) > limit {
		brandLog.Infof("Limiting to %d of %d models", limit, len(cards))
		cards = cards[:limit]
	}
	brandLog.Infof("Found %d models", len(cards))

	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return err
		}
		modelLog := brandLog.WithField("model", card.Listing.Name)
		rec, batch := h.harvestModel(ctx, brand.Name, card, modelLog)
		if out != nil {
			out.RecordCar(rec, batch.Images, modelLog)
		}
		stats.addModel(rec, batch.Rejections)
		h.modelsProcessed.Add(1)
		h.imagesAccepted.Add(int64(rec.TotalImages))
	}
	return ctx.Err()
}

// harvestModel builds the car record for one listing card and acquires its images.
// Failures end up in rec.ErrorType; a panic is recovered the same way.
func (h *Harvester) harvestModel(ctx context.Context, brand string, card extract.ModelCard, modelLog *logrus.Entry) (rec models.CarRecord, batch acquire.BatchResult) {
	name := card.Listing.Name
	rec = models.CarRecord{
		Brand:          brand,
		Model:          name,
		URL:            card.Listing.URL,
		Price:          card.Listing.Price,
		ImageCounts:    make(map[models.ImageCategory]int, len(models.CategoryPriority)),
		ProcessedAt:    time.Now(),
		ImageDirectory: h.paths.ModelDir(brand, name),
	}
	for _, c := range models.CategoryPriority {
		rec.ImageCounts[c] = 0
	}
	extract.ApplySpecs(&rec, nil)

	defer func() {
		if r := recover(); r != nil {
			modelLog.WithFields(logrus.Fields{
				"panic_info":  fmt.Sprintf("%v", r),
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered while harvesting model")
			rec.ErrorType = "Internal_Panic"
		}
	}()

	site := h.extractor.Site()
	doc, err := h.pages.FetchDocument(ctx, card.Listing.URL)
	if err != nil {
		rec.ErrorType = utils.CategorizeError(err)
		modelLog.WithField("error_type", rec.ErrorType).Warnf("Model page failed: %v", err)
		return rec, batch
	}
	rec.PriceRange, rec.Variants = h.extractor.Variants(doc)

	if specsDoc, err := h.pages.FetchDocument(ctx, parse.JoinPagePath(card.Listing.URL, site.SpecsPageSuffix)); err != nil {
		modelLog.Warnf("Specs page failed: %v", err)
	} else {
		extract.ApplySpecs(&rec, h.extractor.Specs(specsDoc))
	}

	cands := append([]models.CandidateImage(nil), card.Images...)
	for _, suffix := range site.GalleryPageSuffixes {
		pageURL := parse.JoinPagePath(card.Listing.URL, suffix)
		galleryDoc, err := h.pages.FetchDocument(ctx, pageURL)
		if err != nil {
			modelLog.WithField("page", pageURL).Warnf("Gallery page failed: %v", err)
			continue
		}
		cands = append(cands, h.extractor.GalleryImages(galleryDoc)...)
	}
	if site.ColorsPageSuffix != "" {
		pageURL := parse.JoinPagePath(card.Listing.URL, site.ColorsPageSuffix)
		if colorsDoc, err := h.pages.FetchDocument(ctx, pageURL); err != nil {
			modelLog.WithField("page", pageURL).Warnf("Colors page failed: %v", err)
		} else {
			cands = append(cands, h.extractor.ColorImages(colorsDoc)...)
		}
	}
	modelLog.Debugf("Collected %d candidate images", len(cands))

	batch, err = h.acquirer.AcquireAll(ctx, cands, brand, name)
	for c, n := range batch.Counts {
		rec.ImageCounts[c] = n
	}
	rec.TotalImages = batch.Total()
	if err != nil {
		rec.ErrorType = utils.CategorizeError(err)
		if ctx.Err() == nil {
			modelLog.WithField("error_type", rec.ErrorType).Errorf("Image acquisition aborted: %v", err)
		}
	}

	modelLog.WithFields(logrus.Fields{
		"images":   rec.TotalImages,
		"rejected": batch.Rejected(),
	}).Info("Model harvested")
	return rec, batch
}

// sleepCtx waits for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
