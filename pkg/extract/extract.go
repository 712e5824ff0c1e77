// Package extract pulls model listings, specifications, variants and candidate
// images out of retailer pages using the selectors in config.SiteConfig.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"car-scraper/pkg/config"
	"car-scraper/pkg/models"
	"car-scraper/pkg/parse"
	"car-scraper/pkg/utils"
)

// NotAvailable fills record fields the specs page did not provide
const NotAvailable = "N/A"

// ModelCard is one model on a brand listing page together with its listing thumbnails
type ModelCard struct {
	Listing models.ModelListing
	Images  []models.CandidateImage
}

// Extractor applies the site selectors to fetched documents. It performs no I/O.
type Extractor struct {
	site config.SiteConfig
	base *url.URL
	skip []*regexp.Regexp
	log  *logrus.Entry
}

// New creates an Extractor. site must already be validated.
func New(site config.SiteConfig, skipPatterns []string, log *logrus.Entry) (*Extractor, error) {
	base, err := url.Parse(site.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: site base_url '%s': %v", utils.ErrConfigValidation, site.BaseURL, err)
	}
	skip, err := utils.CompileRegexPatterns(skipPatterns)
	if err != nil {
		return nil, err
	}
	return &Extractor{site: site, base: base, skip: skip, log: log}, nil
}

// Site returns the selectors in use
func (e *Extractor) Site() config.SiteConfig { return e.site }

// Models returns every model card on a brand listing page. Cards without a
// link or a name are skipped.
func (e *Extractor) Models(doc *goquery.Document) []ModelCard {
	base := e.docBase(doc)
	var cards []ModelCard

	doc.Find(e.site.ModelCardSelector).Each(func(i int, card *goquery.Selection) {
		href, _ := card.Find("a[href]").First().Attr("href")
		pageURL, ok := parse.ResolvePageURL(base, href)
		if !ok {
			e.log.Debugf("Model card #%d has no usable link", i)
			return
		}
		name := cleanText(card.Find(e.site.ModelNameSelector).First().Text())
		if name == "" {
			e.log.Debugf("Model card #%d (%s) has no name", i, pageURL)
			return
		}

		price := CleanPrice(card.Find(e.site.ModelPriceSelector).First().Text())
		if price == "" {
			price = NotAvailable
		}

		mc := ModelCard{Listing: models.ModelListing{Name: name, URL: pageURL, Price: price}}
		card.Find(e.site.ListingImageSelector).Each(func(_ int, img *goquery.Selection) {
			if cand, ok := e.candidate(img, name, ""); ok {
				mc.Images = append(mc.Images, cand)
			}
		})
		cards = append(cards, mc)
	})
	return cards
}

// Specs returns the two-cell rows of the specs tables as key/value pairs
func (e *Extractor) Specs(doc *goquery.Document) map[string]string {
	specs := make(map[string]string)
	doc.Find(e.site.SpecsTableSelector).Find("tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() != 2 {
			return
		}
		key := cleanText(cols.Eq(0).Text())
		if key == "" {
			return
		}
		specs[key] = cleanText(cols.Eq(1).Text())
	})
	return specs
}

// Variants returns the price range heading and the variant rows of a model page.
// The first table row is a header.
func (e *Extractor) Variants(doc *goquery.Document) (priceRange string, variants []models.Variant) {
	section := doc.Find(e.site.VariantSectionSelector).First()
	if section.Length() == 0 {
		return "", nil
	}
	priceRange = cleanText(section.Find(e.site.VariantPriceSelector).First().Text())

	base := e.docBase(doc)
	section.Find(e.site.VariantTableSelector).First().Find("tr").Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() < 3 {
			return
		}
		first := cols.Eq(0)
		link := first.Find("a").First()
		if link.Length() == 0 {
			return
		}

		v := models.Variant{Name: cleanText(link.Text())}
		if href, ok := link.Attr("href"); ok {
			v.URL, _ = parse.ResolvePageURL(base, href)
		}
		first.Find("span.variantTag").Each(func(_ int, tag *goquery.Selection) {
			if t := cleanText(tag.Text()); t != "" {
				v.Tags = append(v.Tags, t)
			}
		})
		if t := cleanText(first.Find("div.topselling").First().Text()); t != "" {
			v.Tags = append(v.Tags, t)
		}
		v.Specifications = cleanText(first.Find("span.kmpl").First().Text())
		if v.Specifications != "" {
			summary := ParseSpecSummary(v.Specifications)
			v.Summary = &summary
		}
		v.Price = CleanPrice(cols.Eq(1).Text())
		variants = append(variants, v)
	})
	return priceRange, variants
}

// GalleryImages returns the candidates of a pictures page
func (e *Extractor) GalleryImages(doc *goquery.Document) []models.CandidateImage {
	var out []models.CandidateImage
	doc.Find(e.site.GallerySelector).Each(func(_ int, img *goquery.Selection) {
		title, _ := img.Attr("title")
		if cand, ok := e.candidate(img, title, ""); ok {
			out = append(out, cand)
		}
	})
	return out
}

// ColorImages returns the candidates of a colors page: the carousel images, the
// swatches inside the carousel and the colour picker. All are tagged colors and
// titled "Color - <name>". Repeated URLs are dropped, first occurrence wins.
func (e *Extractor) ColorImages(doc *goquery.Document) []models.CandidateImage {
	var out []models.CandidateImage
	seen := make(map[string]bool)
	add := func(img *goquery.Selection, name string) {
		cand, ok := e.candidate(img, "Color - "+name, string(models.CategoryColors))
		if !ok || seen[cand.URL] {
			return
		}
		seen[cand.URL] = true
		cand.Alt = name
		out = append(out, cand)
	}

	section := doc.Find(e.site.ColorSectionSelector).First()
	section.Find(e.site.ColorImageSelector).Each(func(_ int, img *goquery.Selection) {
		alt, _ := img.Attr("alt")
		add(img, strings.TrimSpace(alt))
	})
	section.Find(e.site.ColorSwatchSelector).Each(func(_ int, swatch *goquery.Selection) {
		icon := swatch.Find("i.coloredIcon").First()
		if icon.Length() == 0 {
			return
		}
		name := swatchName(swatch)
		if style, _ := icon.Attr("style"); strings.Contains(style, "linear-gradient") {
			name = "Dual Tone - " + name
		}
		if img := swatch.Find("img").First(); img.Length() > 0 {
			add(img, name)
		}
	})
	doc.Find(e.site.ColorPickerSelector).Each(func(_ int, item *goquery.Selection) {
		if img := item.Find("img").First(); img.Length() > 0 {
			add(img, swatchName(item))
		}
	})
	return out
}

// candidate builds a CandidateImage from the first non-empty source attribute.
// Sources matching a skip pattern are dropped.
func (e *Extractor) candidate(img *goquery.Selection, title, category string) (models.CandidateImage, bool) {
	src := e.imageSource(img)
	if src == "" || utils.MatchesAny(e.skip, src) {
		return models.CandidateImage{}, false
	}
	alt, _ := img.Attr("alt")
	return models.CandidateImage{
		URL:      src,
		Title:    strings.TrimSpace(title),
		Alt:      strings.TrimSpace(alt),
		Category: category,
	}, true
}

func (e *Extractor) imageSource(img *goquery.Selection) string {
	for _, attr := range e.site.ImageSourceAttrs {
		if v, ok := img.Attr(attr); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func (e *Extractor) docBase(doc *goquery.Document) *url.URL {
	if doc.Url != nil {
		return doc.Url
	}
	return e.base
}

func swatchName(s *goquery.Selection) string {
	name, _ := s.Find("div.gs_control").First().Attr("title")
	return strings.TrimSpace(name)
}

// cleanText collapses runs of whitespace and trims
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CleanPrice drops everything from the first '*' and the "Rs." prefix
func CleanPrice(s string) string {
	if i := strings.Index(s, "*"); i >= 0 {
		s = s[:i]
	}
	return cleanText(strings.ReplaceAll(s, "Rs.", ""))
}
