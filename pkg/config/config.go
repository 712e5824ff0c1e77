package config

import (
	"strings"
	"time"
)

// Ledger modes control how the duplicate ledger is seeded at startup
const (
	LedgerModeCold       = "cold"       // Empty ledger every run
	LedgerModeWarm       = "warm"       // Seed from images already under output_dir
	LedgerModePersistent = "persistent" // Load and record entries in the state_dir store
)

// BrandConfig is one entry of the brand catalog
type BrandConfig struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Skip      bool   `yaml:"skip,omitempty"`
	MaxModels *int   `yaml:"max_models,omitempty"` // Overrides max_models_per_brand
}

// SiteConfig holds the selectors and page layout of the retailer site.
// Every field has a default matching the site the harvester was written for.
type SiteConfig struct {
	BaseURL string `yaml:"base_url"`

	ModelCardSelector    string `yaml:"model_card_selector"`
	ModelNameSelector    string `yaml:"model_name_selector"`
	ModelPriceSelector   string `yaml:"model_price_selector"`
	ListingImageSelector string `yaml:"listing_image_selector"`

	SpecsPageSuffix    string `yaml:"specs_page_suffix"`
	SpecsTableSelector string `yaml:"specs_table_selector"`

	VariantSectionSelector string `yaml:"variant_section_selector"`
	VariantPriceSelector   string `yaml:"variant_price_selector"`
	VariantTableSelector   string `yaml:"variant_table_selector"`

	GalleryPageSuffixes  []string `yaml:"gallery_page_suffixes"`
	GallerySelector      string   `yaml:"gallery_selector"`
	ColorsPageSuffix     string   `yaml:"colors_page_suffix"`
	ColorSectionSelector string   `yaml:"color_section_selector"`
	ColorImageSelector   string   `yaml:"color_image_selector"`
	ColorSwatchSelector  string   `yaml:"color_swatch_selector"`
	ColorPickerSelector  string   `yaml:"color_picker_selector"`

	ImageSourceAttrs []string `yaml:"image_source_attrs"` // Tried in order
}

// AppConfig holds the global application configuration
type AppConfig struct {
	DefaultUserAgent        string              `yaml:"default_user_agent"`
	AcceptHeader            string              `yaml:"accept_header,omitempty"`
	AcceptLanguage          string              `yaml:"accept_language,omitempty"`
	DefaultDelayPerHost     time.Duration       `yaml:"default_delay_per_host"`
	BrandDelay              time.Duration       `yaml:"brand_delay"`
	NumImageWorkers         int                 `yaml:"num_image_workers,omitempty"`
	MaxRequestsPerHost      int                 `yaml:"max_requests_per_host,omitempty"`
	MaxModelsPerBrand       int                 `yaml:"max_models_per_brand,omitempty"` // 0 = unlimited
	OutputDir               string              `yaml:"output_dir"`
	ReportDir               string              `yaml:"report_dir"`
	StateDir                string              `yaml:"state_dir"`
	LedgerMode              string              `yaml:"ledger_mode"`
	MaxRetries              int                 `yaml:"max_retries,omitempty"`
	InitialRetryDelay       time.Duration       `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay           time.Duration       `yaml:"max_retry_delay,omitempty"`
	ImageTimeout            time.Duration       `yaml:"image_timeout,omitempty"`
	MaxImageSizeBytes       int64               `yaml:"max_image_size_bytes,omitempty"`
	MinImageWidth           int                 `yaml:"min_image_width,omitempty"`
	MinImageHeight          int                 `yaml:"min_image_height,omitempty"`
	ResizeDirective         string              `yaml:"resize_directive,omitempty"`
	PlaceholderSuffixes     []string            `yaml:"placeholder_suffixes,omitempty"`
	SkipImagePatterns       []string            `yaml:"skip_image_patterns,omitempty"` // Regex patterns for candidate URLs to drop
	CategoryKeywords        map[string][]string `yaml:"category_keywords,omitempty"`
	PerceptualDedupDistance int                 `yaml:"perceptual_dedup_distance,omitempty"` // 0 disables
	RespectRobots           bool                `yaml:"respect_robots,omitempty"`
	LogToFile               bool                `yaml:"log_to_file,omitempty"`
	LogFile                 string              `yaml:"log_file,omitempty"`
	EnableOutputMapping     bool                `yaml:"enable_output_mapping,omitempty"`
	OutputMappingFilename   string              `yaml:"output_mapping_filename,omitempty"`
	MetadataYAMLFilename    string              `yaml:"metadata_yaml_filename,omitempty"`
	CarsJSONLFilename       string              `yaml:"cars_jsonl_filename,omitempty"`
	TreeFilename            string              `yaml:"tree_filename,omitempty"`
	HTTPClientSettings      HTTPClientConfig    `yaml:"http_client_settings,omitempty"`
	Site                    SiteConfig          `yaml:"site"`
	Brands                  []BrandConfig       `yaml:"brands"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// GetEffectiveMaxModels determines the model cap for a brand
func GetEffectiveMaxModels(brand BrandConfig, appCfg AppConfig) int {
	if brand.MaxModels != nil {
		return *brand.MaxModels
	}
	return appCfg.MaxModelsPerBrand
}

// GetEffectiveOutputMappingFilename returns the TSV map filename
func GetEffectiveOutputMappingFilename(appCfg AppConfig) string {
	if appCfg.OutputMappingFilename != "" {
		return appCfg.OutputMappingFilename
	}
	return "url_to_file_map.tsv"
}

// GetEffectiveMetadataYAMLFilename returns the run metadata filename
func GetEffectiveMetadataYAMLFilename(appCfg AppConfig) string {
	if appCfg.MetadataYAMLFilename != "" {
		return appCfg.MetadataYAMLFilename
	}
	return "run_metadata.yaml"
}

// GetEffectiveCarsJSONLFilename returns the car records filename
func GetEffectiveCarsJSONLFilename(appCfg AppConfig) string {
	if appCfg.CarsJSONLFilename != "" {
		return appCfg.CarsJSONLFilename
	}
	return "cars.jsonl"
}

// GetEffectiveTreeFilename returns the image tree dump filename
func GetEffectiveTreeFilename(appCfg AppConfig) string {
	if appCfg.TreeFilename != "" {
		return appCfg.TreeFilename
	}
	return "image_tree.txt"
}

// FindBrand returns the catalog entry whose name matches case-insensitively
func (c *AppConfig) FindBrand(name string) (BrandConfig, bool) {
	for _, b := range c.Brands {
		if strings.EqualFold(b.Name, name) {
			return b, true
		}
	}
	return BrandConfig{}, false
}
