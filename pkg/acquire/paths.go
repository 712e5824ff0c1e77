package acquire

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"car-scraper/pkg/models"
	"car-scraper/pkg/utils"
)

const (
	fallbackTitle   = "image"
	fallbackSegment = "unknown"
	imageExt        = ".jpg" // Always .jpg regardless of source format
	maxPathProbes   = 100000
)

// PathBuilder derives <root>/<brand>/<model>/<category>/<title>[_N].jpg paths
type PathBuilder struct {
	root string
}

// NewPathBuilder creates a PathBuilder rooted at root
func NewPathBuilder(root string) *PathBuilder {
	return &PathBuilder{root: root}
}

// Root returns the output root
func (p *PathBuilder) Root() string { return p.root }

// ModelDir returns <root>/<brand>/<model> without creating it
func (p *PathBuilder) ModelDir(brand, model string) string {
	return filepath.Join(p.root,
		utils.SanitizeNameOr(brand, fallbackSegment),
		utils.SanitizeNameOr(model, fallbackSegment))
}

// DirPath returns the category directory without creating it
func (p *PathBuilder) DirPath(brand, model string, category models.ImageCategory) string {
	if !category.IsValid() {
		category = models.DefaultCategory
	}
	return filepath.Join(p.ModelDir(brand, model), string(category))
}

// Dir returns the category directory, creating it if absent.
// An existing directory is not an error.
func (p *PathBuilder) Dir(brand, model string, category models.ImageCategory) (string, error) {
	dir := p.DirPath(brand, model, category)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: creating image directory '%s': %w", utils.ErrFilesystem, dir, err)
	}
	return dir, nil
}

// FreeFile returns the first of name.jpg, name_1.jpg, name_2.jpg, ... absent from dir
func (p *PathBuilder) FreeFile(dir, title string) (string, error) {
	name := utils.SanitizeNameOr(title, fallbackTitle)
	for i := 0; i < maxPathProbes; i++ {
		candidate := name
		if i > 0 {
			candidate = name + "_" + strconv.Itoa(i)
		}
		path := filepath.Join(dir, candidate+imageExt)
		_, err := os.Lstat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: probing '%s': %w", utils.ErrFilesystem, path, err)
		}
	}
	return "", utils.WrapErrorf(utils.ErrFilesystem, "no free file name for '%s' in '%s'", name, dir)
}
