package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func intPtr(i int) *int {
	return &i
}

func TestGetEffectiveMaxModels(t *testing.T) {
	tests := []struct {
		name     string
		brand    BrandConfig
		appCfg   AppConfig
		expected int
	}{
		{"brand override wins", BrandConfig{MaxModels: intPtr(2)}, AppConfig{MaxModelsPerBrand: 10}, 2},
		{"brand zero means unlimited", BrandConfig{MaxModels: intPtr(0)}, AppConfig{MaxModelsPerBrand: 10}, 0},
		{"nil uses global", BrandConfig{}, AppConfig{MaxModelsPerBrand: 10}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetEffectiveMaxModels(tt.brand, tt.appCfg))
		})
	}
}

func TestGetEffectiveFilenames(t *testing.T) {
	empty := AppConfig{}
	assert.Equal(t, "url_to_file_map.tsv", GetEffectiveOutputMappingFilename(empty))
	assert.Equal(t, "run_metadata.yaml", GetEffectiveMetadataYAMLFilename(empty))
	assert.Equal(t, "cars.jsonl", GetEffectiveCarsJSONLFilename(empty))
	assert.Equal(t, "image_tree.txt", GetEffectiveTreeFilename(empty))

	custom := AppConfig{
		OutputMappingFilename: "map.tsv",
		MetadataYAMLFilename:  "meta.yaml",
		CarsJSONLFilename:     "out.jsonl",
		TreeFilename:          "tree.txt",
	}
	assert.Equal(t, "map.tsv", GetEffectiveOutputMappingFilename(custom))
	assert.Equal(t, "meta.yaml", GetEffectiveMetadataYAMLFilename(custom))
	assert.Equal(t, "out.jsonl", GetEffectiveCarsJSONLFilename(custom))
	assert.Equal(t, "tree.txt", GetEffectiveTreeFilename(custom))
}

func TestFindBrand(t *testing.T) {
	cfg := AppConfig{Brands: DefaultBrands()}

	b, ok := cfg.FindBrand("tata")
	assert.True(t, ok)
	assert.Equal(t, "Tata", b.Name)
	assert.Equal(t, "https://www.cardekho.com/cars/Tata", b.URL)

	_, ok = cfg.FindBrand("Ferrari")
	assert.False(t, ok)
}

func TestAppConfig_YAMLDecode(t *testing.T) {
	data := []byte(`
output_dir: ./imgs
ledger_mode: warm
brand_delay: 3s
num_image_workers: 4
category_keywords:
  interior: [dashboard, cabin]
brands:
  - name: Tata
    url: https://www.cardekho.com/cars/Tata
    max_models: 2
site:
  base_url: https://example.com
`)
	var cfg AppConfig
	err := yaml.Unmarshal(data, &cfg)
	assert.NoError(t, err)
	assert.Equal(t, "./imgs", cfg.OutputDir)
	assert.Equal(t, LedgerModeWarm, cfg.LedgerMode)
	assert.Equal(t, "3s", cfg.BrandDelay.String())
	assert.Equal(t, 4, cfg.NumImageWorkers)
	assert.Equal(t, []string{"dashboard", "cabin"}, cfg.CategoryKeywords["interior"])
	if assert.Len(t, cfg.Brands, 1) {
		assert.Equal(t, 2, *cfg.Brands[0].MaxModels)
	}
	assert.Equal(t, "https://example.com", cfg.Site.BaseURL)
}
