package acquire

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"car-scraper/pkg/classify"
	"car-scraper/pkg/config"
	"car-scraper/pkg/models"
	"car-scraper/pkg/parse"
	"car-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// blockImage draws a w x h image of 64px blocks whose shades depend on seed
func blockImage(w, h, seed int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(((x/64)*37 + (y/64)*91 + seed*53) % 256)
			img.Set(x, y, color.RGBA{R: v, G: v / 2, B: 255 - v, A: 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, w, h, seed, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, blockImage(w, h, seed), &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h, seed int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, blockImage(w, h, seed)))
	return buf.Bytes()
}

// fakeSource serves bodies by URL path and counts calls
type fakeSource struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{bodies: make(map[string][]byte)}
}

func (f *fakeSource) set(path string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[path] = body
}

func (f *fakeSource) Hash(ctx context.Context, u models.NormalizedURL) (*Content, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := url.Parse(string(u))
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	body, ok := f.bodies[parsed.Path]
	f.mu.Unlock()
	if !ok {
		return nil, utils.WrapErrorf(utils.ErrClientHTTPError, "status 404 Not Found for %s", u)
	}
	return &Content{Bytes: body, Digest: models.ContentDigest(utils.CalculateBytesSHA256(body))}, nil
}

func testOptions() Options {
	return Options{
		URL: parse.ImageURLOptions{
			ResizeDirective:     config.DefaultResize,
			PlaceholderSuffixes: []string{"spacer3x2.png"},
		},
		Quality: QualityGate{MinWidth: 800, MinHeight: 600},
	}
}

func newTestAcquirer(t *testing.T, src ContentSource, opts Options) (*Acquirer, string) {
	t.Helper()
	root := t.TempDir()
	acq := NewAcquirer(src, classify.New(config.DefaultCategoryKeywords()), NewLedger(nil, testLogger()),
		NewPathBuilder(root), opts, testLogger())
	return acq, root
}

func cdn(path string) string {
	return "//stimg.cardekho.com" + path
}

// filesIn lists regular file names directly under dir
func filesIn(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

func fmtPath(i int) string { return fmt.Sprintf("/images/%d.jpg", i) }
