package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"car-scraper/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath
}

func TestLoadConfig_ValidFile(t *testing.T) {
	cfgPath := writeConfig(t, `
output_dir: "./images"
num_image_workers: 4
ledger_mode: warm
brands:
  - name: Tata
    url: https://www.cardekho.com/cars/Tata
  - name: Kia
    url: https://www.cardekho.com/cars/Kia
    skip: true
    max_models: 3
`)

	cfg, err := loadConfig(cfgPath)

	require.NoError(t, err)
	assert.Equal(t, 4, cfg.NumImageWorkers)
	assert.Equal(t, config.LedgerModeWarm, cfg.LedgerMode)
	require.Len(t, cfg.Brands, 2)
	assert.True(t, cfg.Brands[1].Skip)
	require.NotNil(t, cfg.Brands[1].MaxModels)
	assert.Equal(t, 3, *cfg.Brands[1].MaxModels)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := loadConfig("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := loadConfig(writeConfig(t, "{{invalid yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestDoValidate_Defaults(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate(writeConfig(t, "num_image_workers: 2\n"), &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	out := stdout.String()
	assert.Contains(t, out, "WARN: no brands configured")
	assert.Contains(t, out, "OK: 9 brands (0 skipped), ledger_mode cold")
	assert.Contains(t, out, "Configuration valid")
	assert.Empty(t, stderr.String())
}

func TestDoValidate_InvalidLedgerMode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate(writeConfig(t, "ledger_mode: lukewarm\n"), &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "ERROR")
	assert.Contains(t, stderr.String(), "lukewarm")
}

func TestDoValidate_BadBrandURL(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate(writeConfig(t, `
brands:
  - name: Tata
    url: not-a-url
`), &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Tata")
}

func TestDoValidate_ConfigNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate("/nonexistent.yaml", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error")
}

func TestDoListBrands(t *testing.T) {
	cfgPath := writeConfig(t, `
max_models_per_brand: 5
brands:
  - name: Tata
    url: https://www.cardekho.com/cars/Tata
  - name: Kia
    url: https://www.cardekho.com/cars/Kia
    skip: true
    max_models: 2
`)

	var stdout, stderr bytes.Buffer
	exitCode := doListBrands(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	out := stdout.String()
	assert.Contains(t, out, "Tata\n    URL: https://www.cardekho.com/cars/Tata\n    Max Models: 5")
	assert.Contains(t, out, "Kia\n    URL: https://www.cardekho.com/cars/Kia\n    Max Models: 2\n    Skipped")
	assert.Less(t, bytes.Index(stdout.Bytes(), []byte("Tata")), bytes.Index(stdout.Bytes(), []byte("Kia")), "catalog order is kept")
}

func TestDoListBrands_ConfigNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doListBrands("/nonexistent.yaml", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error")
}

func TestSelectBrands(t *testing.T) {
	cfg := &config.AppConfig{Brands: []config.BrandConfig{
		{Name: "Tata", URL: "https://example.com/tata"},
		{Name: "Kia", URL: "https://example.com/kia", Skip: true},
	}}

	all, err := selectBrands(cfg, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	picked, err := selectBrands(cfg, []string{"kia"})
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, "Kia", picked[0].Name)
	assert.False(t, picked[0].Skip, "explicitly named brands run even when skipped")
	assert.True(t, cfg.Brands[1].Skip, "catalog entry is not modified")

	_, err = selectBrands(cfg, []string{"Lada"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Available brands: [Tata Kia]")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"Tata", "Kia"}, splitList(" Tata, ,Kia,"))
	assert.Nil(t, splitList(""))
}

func TestResolveLogFile(t *testing.T) {
	day := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

	assert.Empty(t, resolveLogFile(&config.AppConfig{}, day))
	assert.Equal(t, "custom.log", resolveLogFile(&config.AppConfig{LogFile: "custom.log", LogToFile: true}, day))
	assert.Equal(t, filepath.Join("reports", "car_scraping_20240309.log"),
		resolveLogFile(&config.AppConfig{LogToFile: true, ReportDir: "reports"}, day))
}

func TestPrintUsageTo(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	out := buf.String()
	assert.Contains(t, out, "crawl")
	assert.Contains(t, out, "validate")
	assert.Contains(t, out, "list-brands")
	assert.Contains(t, out, "version")
}
