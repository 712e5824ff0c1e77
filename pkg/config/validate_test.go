package config

import (
	"strings"
	"testing"
	"time"

	"car-scraper/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := AppConfig{} // Zero value
	warnings, err := cfg.Validate()

	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, cfg.DefaultUserAgent)
	assert.Equal(t, DefaultAccept, cfg.AcceptHeader)
	assert.Equal(t, DefaultAcceptLanguage, cfg.AcceptLanguage)
	assert.Equal(t, 2*time.Second, cfg.BrandDelay)
	assert.Equal(t, 1, cfg.NumImageWorkers)
	assert.Equal(t, 2, cfg.MaxRequestsPerHost)
	assert.Equal(t, "./car_images", cfg.OutputDir)
	assert.Equal(t, "./car_reports", cfg.ReportDir)
	assert.Equal(t, "./car_state", cfg.StateDir)
	assert.Equal(t, LedgerModeCold, cfg.LedgerMode)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.InitialRetryDelay)
	assert.Equal(t, 30*time.Second, cfg.MaxRetryDelay)
	assert.Equal(t, 10*time.Second, cfg.ImageTimeout)
	assert.Equal(t, int64(20<<20), cfg.MaxImageSizeBytes)
	assert.Equal(t, 800, cfg.MinImageWidth)
	assert.Equal(t, 600, cfg.MinImageHeight)
	assert.Equal(t, DefaultResize, cfg.ResizeDirective)
	assert.Equal(t, []string{"spacer3x2.png"}, cfg.PlaceholderSuffixes)
	assert.Equal(t, []string{DefaultSkipImagePattern}, cfg.SkipImagePatterns)
	assert.Equal(t, DefaultCategoryKeywords(), cfg.CategoryKeywords)
	assert.Equal(t, 0, cfg.PerceptualDedupDistance)

	assert.Equal(t, 45*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 100, cfg.HTTPClientSettings.MaxIdleConns)
	assert.Equal(t, 2, cfg.HTTPClientSettings.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, cfg.HTTPClientSettings.IdleConnTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTPClientSettings.TLSHandshakeTimeout)
	assert.Equal(t, 1*time.Second, cfg.HTTPClientSettings.ExpectContinueTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTPClientSettings.DialerTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTPClientSettings.DialerKeepAlive)

	assert.Equal(t, DefaultBaseURL, cfg.Site.BaseURL)
	assert.Equal(t, []string{"data-lazy-src", "data-src", "src"}, cfg.Site.ImageSourceAttrs)
	assert.Len(t, cfg.Site.GalleryPageSuffixes, 3)
	assert.Equal(t, "/colors", cfg.Site.ColorsPageSuffix)

	require.Len(t, cfg.Brands, 9)
	assert.Equal(t, "Maruti", cfg.Brands[0].Name)
	assert.Equal(t, "Skoda", cfg.Brands[8].Name)

	assert.True(t, containsWarning(warnings, "output_dir is empty"))
	assert.True(t, containsWarning(warnings, "no brands configured"))
}

func TestAppConfig_Validate_ValidConfig(t *testing.T) {
	cfg := AppConfig{
		NumImageWorkers:   4,
		OutputDir:         "/output",
		StateDir:          "/state",
		LedgerMode:        LedgerModePersistent,
		MaxRetries:        5,
		InitialRetryDelay: 2 * time.Second,
		MaxRetryDelay:     60 * time.Second,
		ResizeDirective:   "?imwidth=1280",
		Brands:            []BrandConfig{{Name: " Tata ", URL: "https://www.cardekho.com/cars/Tata"}},
		Site:              SiteConfig{BaseURL: "https://example.com/", GallerySelector: "div.g img"},
	}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 4, cfg.NumImageWorkers)
	assert.Equal(t, "/output", cfg.OutputDir)
	assert.Equal(t, LedgerModePersistent, cfg.LedgerMode)
	assert.Equal(t, "imwidth=1280", cfg.ResizeDirective)
	assert.Equal(t, "Tata", cfg.Brands[0].Name)
	assert.Equal(t, "https://example.com", cfg.Site.BaseURL)
	assert.Equal(t, "div.g img", cfg.Site.GallerySelector)
}

func TestAppConfig_Validate_NegativeValues(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*AppConfig)
		wantWarning string
		check       func(*testing.T, *AppConfig)
	}{
		{
			name: "negative max_retries",
			setup: func(c *AppConfig) {
				c.MaxRetries = -1
				c.InitialRetryDelay = 1 * time.Second // Prevent default of 3 retries
			},
			wantWarning: "max_retries cannot be negative",
			check:       func(t *testing.T, c *AppConfig) { assert.Equal(t, 0, c.MaxRetries) },
		},
		{
			name:        "negative brand_delay",
			setup:       func(c *AppConfig) { c.BrandDelay = -time.Second },
			wantWarning: "brand_delay cannot be negative",
			check:       func(t *testing.T, c *AppConfig) { assert.Equal(t, time.Duration(0), c.BrandDelay) },
		},
		{
			name:        "negative max_image_size_bytes",
			setup:       func(c *AppConfig) { c.MaxImageSizeBytes = -5 },
			wantWarning: "max_image_size_bytes cannot be negative",
			check:       func(t *testing.T, c *AppConfig) { assert.Equal(t, int64(0), c.MaxImageSizeBytes) },
		},
		{
			name:        "negative perceptual distance",
			setup:       func(c *AppConfig) { c.PerceptualDedupDistance = -1 },
			wantWarning: "perceptual_dedup_distance cannot be negative",
			check:       func(t *testing.T, c *AppConfig) { assert.Equal(t, 0, c.PerceptualDedupDistance) },
		},
		{
			name: "negative brand max_models",
			setup: func(c *AppConfig) {
				c.Brands = []BrandConfig{{Name: "Kia", URL: "https://www.cardekho.com/cars/Kia", MaxModels: intPtr(-1)}}
			},
			wantWarning: "max_models cannot be negative",
			check:       func(t *testing.T, c *AppConfig) { assert.Nil(t, c.Brands[0].MaxModels) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{}
			tt.setup(&cfg)
			warnings, err := cfg.Validate()
			require.NoError(t, err)
			assert.True(t, containsWarning(warnings, tt.wantWarning), "warnings: %v", warnings)
			tt.check(t, &cfg)
		})
	}
}

func TestAppConfig_Validate_RetryDelayInversion(t *testing.T) {
	cfg := AppConfig{
		MaxRetries:        3,
		InitialRetryDelay: 10 * time.Second,
		MaxRetryDelay:     5 * time.Second,
	}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.True(t, containsWarning(warnings, "initial_retry_delay"))
	assert.Equal(t, 5*time.Second, cfg.InitialRetryDelay)
}

func TestAppConfig_Validate_DelayExceedsImageTimeout(t *testing.T) {
	cfg := AppConfig{DefaultDelayPerHost: 15 * time.Second, ImageTimeout: 10 * time.Second}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.True(t, containsWarning(warnings, "image_timeout"))

	cfg = AppConfig{DefaultDelayPerHost: 2 * time.Second}
	warnings, err = cfg.Validate()
	require.NoError(t, err)
	assert.False(t, containsWarning(warnings, "image_timeout"))
}

func TestAppConfig_Validate_OutputMappingFilename(t *testing.T) {
	cfg := AppConfig{EnableOutputMapping: true}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.True(t, containsWarning(warnings, "output_mapping_filename"))
	assert.Equal(t, "url_to_file_map.tsv", cfg.OutputMappingFilename)
}

func TestAppConfig_Validate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AppConfig
		wantMsg string
	}{
		{"bad ledger mode", AppConfig{LedgerMode: "lukewarm"}, "ledger_mode"},
		{"bad skip pattern", AppConfig{SkipImagePatterns: []string{"[oops"}}, "invalid regex pattern"},
		{"unknown category keyword", AppConfig{CategoryKeywords: map[string][]string{"engine": {"bay"}}}, "unknown category 'engine'"},
		{"relative base url", AppConfig{Site: SiteConfig{BaseURL: "/cars"}}, "base_url"},
		{"brand without name", AppConfig{Brands: []BrandConfig{{URL: "https://x.test/cars"}}}, "has no name"},
		{"brand bad url", AppConfig{Brands: []BrandConfig{{Name: "Kia", URL: "cars/Kia"}}}, "invalid url"},
		{"duplicate brand", AppConfig{Brands: []BrandConfig{
			{Name: "Kia", URL: "https://x.test/kia"},
			{Name: "kia", URL: "https://x.test/kia2"},
		}}, "listed twice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			_, err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrConfigValidation)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestAppConfig_Validate_CategoryAlias(t *testing.T) {
	cfg := AppConfig{CategoryKeywords: map[string][]string{"360": {"spin"}}}
	_, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, []string{"spin"}, cfg.CategoryKeywords["360"])
}

func TestSiteConfig_Validate_KeepsOverrides(t *testing.T) {
	site := SiteConfig{
		BaseURL:             "https://example.com",
		GalleryPageSuffixes: []string{"/photos"},
		ImageSourceAttrs:    []string{"data-original"},
		ModelNameSelector:   "h2.title",
	}
	warnings, err := site.Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, []string{"/photos"}, site.GalleryPageSuffixes)
	assert.Equal(t, []string{"data-original"}, site.ImageSourceAttrs)
	assert.Equal(t, "h2.title", site.ModelNameSelector)
	assert.Equal(t, "div.price", site.ModelPriceSelector)
}

// containsWarning checks if any warning contains the substring.
func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
