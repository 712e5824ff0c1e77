package fetch

import (
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"car-scraper/pkg/utils"
)

// PageFetcher returns a queryable document for a page URL or fails
type PageFetcher struct {
	fetcher *Fetcher
	robots  *RobotsHandler // nil disables robots.txt checks
	log     *logrus.Entry
}

// NewPageFetcher creates a PageFetcher. Pass a nil robots handler to skip robots.txt.
func NewPageFetcher(fetcher *Fetcher, robots *RobotsHandler, log *logrus.Entry) *PageFetcher {
	return &PageFetcher{fetcher: fetcher, robots: robots, log: log}
}

// FetchDocument fetches pageURL with retries and parses it into a goquery document
func (p *PageFetcher) FetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid page URL '%s'", utils.ErrParsing, pageURL)
	}
	if p.robots != nil && !p.robots.Allowed(ctx, u) {
		return nil, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, pageURL)
	}

	req, err := p.fetcher.NewRequest(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	resp, err := p.fetcher.FetchWithRetry(ctx, req)
	if err != nil {
		if resp != nil {
			drainAndClose(resp)
		}
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: HTML parse of %s: %v", utils.ErrParsing, pageURL, err)
	}
	// Relative hrefs resolve against the final URL after redirects
	doc.Url = resp.Request.URL
	p.log.WithField("url", pageURL).Debug("Fetched page")
	return doc, nil
}
