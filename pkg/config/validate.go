package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"car-scraper/pkg/models"
	"car-scraper/pkg/utils"
)

const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	DefaultAcceptLanguage = "en-US,en;q=0.5"
	DefaultResize         = "imwidth=1920&impolicy=resize"
	DefaultBaseURL        = "https://www.cardekho.com"

	DefaultSkipImagePattern = `(?i)(spacer|placeholder|blank)`
)

// DefaultBrands is the catalog used when the config lists none
func DefaultBrands() []BrandConfig {
	return []BrandConfig{
		{Name: "Maruti", URL: "https://www.cardekho.com/maruti-suzuki-cars"},
		{Name: "Tata", URL: "https://www.cardekho.com/cars/Tata"},
		{Name: "Kia", URL: "https://www.cardekho.com/cars/Kia"},
		{Name: "Toyota", URL: "https://www.cardekho.com/toyota-cars"},
		{Name: "Hyundai", URL: "https://www.cardekho.com/cars/Hyundai"},
		{Name: "Mahindra", URL: "https://www.cardekho.com/cars/Mahindra"},
		{Name: "Honda", URL: "https://www.cardekho.com/cars/Honda"},
		{Name: "MG", URL: "https://www.cardekho.com/cars/MG"},
		{Name: "Skoda", URL: "https://www.cardekho.com/cars/Skoda"},
	}
}

// DefaultCategoryKeywords returns the keyword sets keyed by category name
func DefaultCategoryKeywords() map[string][]string {
	return map[string][]string{
		string(models.CategoryExterior):   {"front", "rear", "side", "wheel", "headlight", "taillight"},
		string(models.CategoryInterior):   {"dashboard", "steering", "seat", "boot", "console"},
		string(models.CategoryColors):     {"colour", "color"},
		string(models.CategoryThreeSixty): {"360"},
		string(models.CategoryVariants):   {"variant"},
	}
}

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.DefaultUserAgent == "" {
		c.DefaultUserAgent = DefaultUserAgent
	}
	if c.AcceptHeader == "" {
		c.AcceptHeader = DefaultAccept
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = DefaultAcceptLanguage
	}

	if c.DefaultDelayPerHost < 0 {
		warnings = append(warnings, "default_delay_per_host cannot be negative, setting to 0")
		c.DefaultDelayPerHost = 0
	}
	if c.BrandDelay < 0 {
		warnings = append(warnings, "brand_delay cannot be negative, setting to 0")
		c.BrandDelay = 0
	} else if c.BrandDelay == 0 {
		c.BrandDelay = 2 * time.Second
	}

	// NumImageWorkers: one worker keeps acquisition strictly sequential
	if c.NumImageWorkers <= 0 {
		c.NumImageWorkers = 1
	}

	if c.MaxRequestsPerHost <= 0 {
		c.MaxRequestsPerHost = 2
	}

	if c.MaxModelsPerBrand < 0 {
		warnings = append(warnings, "max_models_per_brand cannot be negative, setting to 0 (unlimited)")
		c.MaxModelsPerBrand = 0
	}

	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to './car_images'")
		c.OutputDir = "./car_images"
	}
	if c.ReportDir == "" {
		c.ReportDir = "./car_reports"
	}
	if c.StateDir == "" {
		c.StateDir = "./car_state"
	}

	switch c.LedgerMode {
	case "":
		c.LedgerMode = LedgerModeCold
	case LedgerModeCold, LedgerModeWarm, LedgerModePersistent:
	default:
		return warnings, fmt.Errorf("%w: ledger_mode '%s' must be one of cold, warm, persistent", utils.ErrConfigValidation, c.LedgerMode)
	}

	// MaxRetries applies to page fetches only; image fetches are single-attempt
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	if c.ImageTimeout <= 0 {
		c.ImageTimeout = 10 * time.Second
	}
	if c.DefaultDelayPerHost > 0 && c.DefaultDelayPerHost >= c.ImageTimeout {
		warnings = append(warnings, fmt.Sprintf(
			"default_delay_per_host (%v) >= image_timeout (%v), images on one host will spend longer waiting for their turn than downloading",
			c.DefaultDelayPerHost, c.ImageTimeout))
	}

	if c.MaxImageSizeBytes < 0 {
		warnings = append(warnings, "max_image_size_bytes cannot be negative, setting to 0 (unlimited)")
		c.MaxImageSizeBytes = 0
	} else if c.MaxImageSizeBytes == 0 {
		c.MaxImageSizeBytes = 20 << 20
	}

	if c.MinImageWidth <= 0 {
		c.MinImageWidth = 800
	}
	if c.MinImageHeight <= 0 {
		c.MinImageHeight = 600
	}

	if c.ResizeDirective == "" {
		c.ResizeDirective = DefaultResize
	} else {
		c.ResizeDirective = strings.TrimPrefix(c.ResizeDirective, "?")
		if _, perr := url.ParseQuery(c.ResizeDirective); perr != nil {
			return warnings, fmt.Errorf("%w: resize_directive '%s' is not a valid query: %v", utils.ErrConfigValidation, c.ResizeDirective, perr)
		}
	}
	if len(c.PlaceholderSuffixes) == 0 {
		c.PlaceholderSuffixes = []string{"spacer3x2.png"}
	}
	if c.SkipImagePatterns == nil {
		c.SkipImagePatterns = []string{DefaultSkipImagePattern}
	}
	if _, perr := utils.CompileRegexPatterns(c.SkipImagePatterns); perr != nil {
		return warnings, perr
	}

	if len(c.CategoryKeywords) == 0 {
		c.CategoryKeywords = DefaultCategoryKeywords()
	} else {
		for name := range c.CategoryKeywords {
			if _, ok := models.ParseCategory(name); !ok {
				return warnings, fmt.Errorf("%w: category_keywords has unknown category '%s'", utils.ErrConfigValidation, name)
			}
		}
	}

	if c.PerceptualDedupDistance < 0 {
		warnings = append(warnings, "perceptual_dedup_distance cannot be negative, disabling")
		c.PerceptualDedupDistance = 0
	}

	if c.EnableOutputMapping && c.OutputMappingFilename == "" {
		warnings = append(warnings,
			"'enable_output_mapping' is true but 'output_mapping_filename' is empty. "+
				"Defaulting to 'url_to_file_map.tsv'")
		c.OutputMappingFilename = "url_to_file_map.tsv"
	}

	c.validateHTTPClientSettings()

	siteWarnings, err := c.Site.Validate()
	warnings = append(warnings, siteWarnings...)
	if err != nil {
		return warnings, err
	}

	if len(c.Brands) == 0 {
		warnings = append(warnings, "no brands configured, using the built-in catalog")
		c.Brands = DefaultBrands()
	}
	seen := make(map[string]bool, len(c.Brands))
	for i := range c.Brands {
		b := &c.Brands[i]
		b.Name = strings.TrimSpace(b.Name)
		if b.Name == "" {
			return warnings, fmt.Errorf("%w: brand #%d has no name", utils.ErrConfigValidation, i+1)
		}
		key := strings.ToLower(b.Name)
		if seen[key] {
			return warnings, fmt.Errorf("%w: brand '%s' listed twice", utils.ErrConfigValidation, b.Name)
		}
		seen[key] = true
		u, perr := url.Parse(b.URL)
		if perr != nil || u.Scheme == "" || u.Host == "" {
			return warnings, fmt.Errorf("%w: brand '%s' has invalid url '%s'", utils.ErrConfigValidation, b.Name, b.URL)
		}
		if b.MaxModels != nil && *b.MaxModels < 0 {
			warnings = append(warnings, fmt.Sprintf("brand '%s' max_models cannot be negative, using global setting", b.Name))
			b.MaxModels = nil
		}
	}

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate fills in the site selectors the harvester was written against.
// Only base_url is checked for shape; selectors are passed to goquery as-is.
func (c *SiteConfig) Validate() (warnings []string, err error) {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	u, perr := url.Parse(c.BaseURL)
	if perr != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: site base_url '%s' must be absolute", utils.ErrConfigValidation, c.BaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	setDefault(&c.ModelCardSelector, "li.gsc_col-xs-12.gsc_col-sm-6.gsc_col-md-12.gsc_col-lg-12")
	setDefault(&c.ModelNameSelector, "h3")
	setDefault(&c.ModelPriceSelector, "div.price")
	setDefault(&c.ListingImageSelector, "div.imageWrapper img")

	setDefault(&c.SpecsPageSuffix, "/specs")
	setDefault(&c.SpecsTableSelector, "div.specsAllLists table")

	setDefault(&c.VariantSectionSelector, `section[data-track-component="variantList"]`)
	setDefault(&c.VariantPriceSelector, "p.gs_readmore")
	setDefault(&c.VariantTableSelector, "table.allvariant")

	if len(c.GalleryPageSuffixes) == 0 {
		c.GalleryPageSuffixes = []string{"/pictures", "/pictures/exterior", "/pictures/interior"}
	}
	setDefault(&c.GallerySelector, "div.pictureGallerySec img")
	setDefault(&c.ColorsPageSuffix, "/colors")
	setDefault(&c.ColorSectionSelector, `div[data-type="css-carousel"]`)
	setDefault(&c.ColorImageSelector, `ul[data-carousel="ColorGallery"] img`)
	setDefault(&c.ColorSwatchSelector, "li[data-color]")
	setDefault(&c.ColorPickerSelector, "div.gscr_lSGallery li[data-color]")

	if len(c.ImageSourceAttrs) == 0 {
		c.ImageSourceAttrs = []string{"data-lazy-src", "data-src", "src"}
	}
	return warnings, nil
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}
