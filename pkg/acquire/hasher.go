package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"car-scraper/pkg/models"
	"car-scraper/pkg/utils"
)

// Requester is the slice of fetch.Fetcher the hasher depends on
type Requester interface {
	NewRequest(ctx context.Context, rawURL string) (*http.Request, error)
	Fetch(ctx context.Context, req *http.Request, timeout time.Duration) (*http.Response, error)
}

// Content is a fully downloaded image body and its digest.
// Bytes are exactly what gets written to disk.
type Content struct {
	Bytes       []byte
	Digest      models.ContentDigest
	ContentType string
}

// Hasher downloads image bytes and computes their SHA-256. It never touches disk.
type Hasher struct {
	fetcher  Requester
	timeout  time.Duration
	maxBytes int64 // 0 disables the limit
	log      *logrus.Entry
}

// NewHasher creates a Hasher. timeout bounds each request including the body read,
// not the time spent waiting for the host slot or pacing delay.
func NewHasher(fetcher Requester, timeout time.Duration, maxBytes int64, log *logrus.Entry) *Hasher {
	return &Hasher{
		fetcher:  fetcher,
		timeout:  timeout,
		maxBytes: maxBytes,
		log:      log,
	}
}

// Hash performs a single GET and returns the body with its digest.
// Every failure is returned as an error; callers treat it as a soft rejection.
func (h *Hasher) Hash(ctx context.Context, u models.NormalizedURL) (*Content, error) {
	req, err := h.fetcher.NewRequest(ctx, string(u))
	if err != nil {
		return nil, err
	}
	resp, err := h.fetcher.Fetch(ctx, req, h.timeout)
	if err != nil {
		return nil, fmt.Errorf("fetch image '%s': %w", u, err)
	}
	defer resp.Body.Close()

	if h.maxBytes > 0 {
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if size, errParse := strconv.ParseInt(cl, 10, 64); errParse == nil && size > h.maxBytes {
				return nil, utils.WrapErrorf(utils.ErrImageTooLarge, "'%s' declares %d bytes (limit %d)", u, size, h.maxBytes)
			}
		}
	}

	var reader io.Reader = resp.Body
	if h.maxBytes > 0 {
		// One extra byte distinguishes "exactly at the limit" from "over it"
		reader = io.LimitReader(resp.Body, h.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %w", utils.ErrResponseBodyRead, u, err)
	}
	if h.maxBytes > 0 && int64(len(data)) > h.maxBytes {
		return nil, utils.WrapErrorf(utils.ErrImageTooLarge, "'%s' body exceeds %d bytes", u, h.maxBytes)
	}

	h.log.WithFields(logrus.Fields{"img_url": u, "bytes": len(data)}).Trace("Image downloaded")
	return &Content{
		Bytes:       data,
		Digest:      models.ContentDigest(utils.CalculateBytesSHA256(data)),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
