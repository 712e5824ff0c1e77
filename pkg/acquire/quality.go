package acquire

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/webp"

	"car-scraper/pkg/utils"
)

// QualityGate enforces minimum decoded dimensions on a written file
type QualityGate struct {
	MinWidth  int
	MinHeight int
}

// Check decodes the header of the file at path. Undecodable files and images
// smaller than the minimum return an error wrapping utils.ErrQualityRejected.
func (g QualityGate) Check(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: opening '%s' for verification: %w", utils.ErrFilesystem, path, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: undecodable image: %v", utils.ErrQualityRejected, err)
	}
	if cfg.Width < g.MinWidth || cfg.Height < g.MinHeight {
		return cfg.Width, cfg.Height, utils.WrapErrorf(utils.ErrQualityRejected,
			"%s %dx%d below minimum %dx%d", format, cfg.Width, cfg.Height, g.MinWidth, g.MinHeight)
	}
	return cfg.Width, cfg.Height, nil
}

// PerceptualHash returns the 64-bit difference hash of an encoded image
func PerceptualHash(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: decoding for perceptual hash: %v", utils.ErrQualityRejected, err)
	}
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return 0, err
	}
	return hash.GetHash(), nil
}

// hashDistance is the Hamming distance between two difference hashes
func hashDistance(a, b uint64) int {
	dist, err := goimagehash.NewImageHash(a, goimagehash.DHash).Distance(goimagehash.NewImageHash(b, goimagehash.DHash))
	if err != nil {
		return 64
	}
	return dist
}
