package acquire

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"car-scraper/pkg/models"
	"car-scraper/pkg/utils"
)

// Reconcile walks an existing <root>/<brand>/<model>/<category>/*.jpg tree and
// returns one entry per image file with its digest and path. Files outside the
// layout or in unknown category directories are skipped. A missing root yields
// no entries.
func Reconcile(ctx context.Context, root string, log *logrus.Entry) ([]models.LedgerEntry, error) {
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		log.Infof("Output directory %s does not exist yet; nothing to reconcile", root)
		return nil, nil
	}

	var entries []models.LedgerEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), imageExt) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 4 {
			return nil
		}
		category, ok := models.ParseCategory(parts[2])
		if !ok || parts[2] != string(category) {
			log.Debugf("Skipping %s: not in a category directory", path)
			return nil
		}

		digest, err := utils.CalculateFileSHA256(path)
		if err != nil {
			log.Warnf("Skipping unreadable file %s: %v", path, err)
			return nil
		}
		entries = append(entries, models.LedgerEntry{
			Digest:   models.ContentDigest(digest),
			Path:     path,
			Category: category,
			Brand:    parts[0],
			Model:    parts[1],
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return entries, err
		}
		return entries, fmt.Errorf("%w: walking '%s': %w", utils.ErrFilesystem, root, err)
	}
	log.Infof("Reconciled %d existing images under %s", len(entries), root)
	return entries, nil
}
