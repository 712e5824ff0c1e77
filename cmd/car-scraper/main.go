package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"car-scraper/pkg/config"
	"car-scraper/pkg/fetch"
	"car-scraper/pkg/harvest"
	applog "car-scraper/pkg/log"
)

const (
	version           = "1.0.0"
	ledgerLogFilename = "ledger_urls.tsv"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		runCrawl(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "list-brands":
		runListBrands(os.Args[2:])
	case "version":
		fmt.Printf("car-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `car-scraper - Car model and image harvester

Usage:
  car-scraper <command> [options]

Commands:
  crawl        Harvest the configured brands
  validate     Validate configuration file
  list-brands  List the brand catalog
  version      Show version info

Run 'car-scraper <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// runCrawl handles the crawl subcommand
func runCrawl(args []string) {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	brand := fs.String("brand", "", "Single brand to harvest")
	brands := fs.String("brands", "", "Comma-separated brands to harvest (default: whole catalog)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	ledgerMode := fs.String("ledger-mode", "", "Override ledger_mode (cold, warm, persistent)")
	writeLedgerLog := fs.Bool("write-ledger-log", false, "Write all ledger entries to the report dir on completion (persistent mode)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: car-scraper crawl [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  car-scraper crawl -brand Tata\n")
		fmt.Fprintf(os.Stderr, "  car-scraper crawl -brands Tata,Kia -ledger-mode persistent\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *brand != "" && *brands != "" {
		fmt.Fprintln(os.Stderr, "Error: use either -brand or -brands, not both")
		os.Exit(1)
	}

	names := splitList(*brands)
	if *brand != "" {
		names = []string{*brand}
	}
	os.Exit(executeCrawl(*configFile, names, *logLevel, *ledgerMode, *writeLedgerLog))
}

// splitList parses a comma-separated flag value, dropping empty items
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// selectBrands returns the catalog entries to harvest. Named brands are
// harvested even when the catalog marks them skip.
func selectBrands(appCfg *config.AppConfig, names []string) ([]config.BrandConfig, error) {
	if len(names) == 0 {
		return appCfg.Brands, nil
	}
	selected := make([]config.BrandConfig, 0, len(names))
	for _, name := range names {
		b, ok := appCfg.FindBrand(name)
		if !ok {
			available := make([]string, 0, len(appCfg.Brands))
			for _, c := range appCfg.Brands {
				available = append(available, c.Name)
			}
			return nil, fmt.Errorf("brand '%s' not found. Available brands: %v", name, available)
		}
		b.Skip = false
		selected = append(selected, b)
	}
	return selected, nil
}

// resolveLogFile returns the log file path, or "" when file logging is off
func resolveLogFile(appCfg *config.AppConfig, now time.Time) string {
	if appCfg.LogFile != "" {
		return appCfg.LogFile
	}
	if appCfg.LogToFile {
		return filepath.Join(appCfg.ReportDir, applog.DefaultLogFileName(now))
	}
	return ""
}

// executeCrawl runs a full harvest and returns the process exit code
func executeCrawl(configFile string, brandNames []string, logLevelStr, ledgerMode string, writeLedgerLog bool) int {
	appCfg, err := loadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	if ledgerMode != "" {
		appCfg.LedgerMode = ledgerMode
	}
	warnings, err := appCfg.Validate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}

	logger, closeLog, err := applog.NewLogger(logLevelStr, resolveLogFile(appCfg, time.Now()), os.Stderr)
	if err != nil {
		logger.Warnf("File logging disabled: %v", err)
	}
	defer closeLog()
	for _, w := range warnings {
		logger.Warn(w)
	}
	logAppConfig(appCfg, logger)

	selected, err := selectBrands(appCfg, brandNames)
	if err != nil {
		logger.Errorf("Error: %v", err)
		return 1
	}

	// ===========================================================
	// == Setup Context & Signal Handling ==
	// ===========================================================
	crawlCtx, cancelCrawl := context.WithCancel(context.Background())
	defer cancelCrawl()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		sig, ok := <-sigChan
		if !ok {
			return
		}
		logger.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancelCrawl()

		select {
		case sig = <-sigChan:
			logger.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()
	defer signal.Stop(sigChan)

	// ===========================================================
	// == Initialize Components ==
	// ===========================================================
	logEntry := logger.WithField("component", "crawl")

	ledger, err := harvest.OpenLedger(crawlCtx, appCfg, logEntry)
	if err != nil {
		logger.Errorf("Failed to open duplicate ledger: %v", err)
		return 1
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			logger.Errorf("Error closing ledger store: %v", err)
		}
	}()

	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, logEntry)
	harvester, err := harvest.New(appCfg, httpClient, ledger, logEntry)
	if err != nil {
		logger.Errorf("Failed to initialize harvester: %v", err)
		return 1
	}
	out, err := harvest.NewOutputManager(appCfg, appCfg.LedgerMode != config.LedgerModeCold, logEntry)
	if err != nil {
		logger.Errorf("Failed to open report files: %v", err)
		return 1
	}

	// ===========================================================
	// == Run ==
	// ===========================================================
	meta, runErr := harvester.Run(crawlCtx, selected, out)
	if err := out.Close(meta); err != nil {
		logger.Errorf("Failed to write run reports: %v", err)
		if runErr == nil {
			runErr = err
		}
	}

	if writeLedgerLog {
		if crawlCtx.Err() != nil {
			logger.Warnf("Skipping ledger log due to cancellation: %v", crawlCtx.Err())
		} else {
			logPath := filepath.Join(appCfg.ReportDir, ledgerLogFilename)
			if err := ledger.WriteLog(crawlCtx, logPath); err != nil {
				logger.Errorf("Error writing ledger log: %v", err)
			} else {
				logger.Infof("Wrote ledger log to %s", logPath)
			}
		}
	}

	progress := harvester.GetProgress()
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warnf("Harvest cancelled after %d models (%d images).", progress.ModelsProcessed, progress.ImagesAccepted)
			return 0
		}
		logger.Errorf("Harvest finished with error: %v", runErr)
		return 1
	}
	logger.Infof("Harvest completed: %d models, %d images.", progress.ModelsProcessed, progress.ImagesAccepted)
	return 0
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: car-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	skipped := 0
	for _, b := range appCfg.Brands {
		if b.Skip {
			skipped++
		}
	}
	fmt.Fprintf(stdout, "OK: %d brands (%d skipped), ledger_mode %s, output_dir %s\n",
		len(appCfg.Brands), skipped, appCfg.LedgerMode, appCfg.OutputDir)
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runListBrands handles the list-brands subcommand
func runListBrands(args []string) {
	fs := flag.NewFlagSet("list-brands", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: car-scraper list-brands [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doListBrands(*configFile, os.Stdout, os.Stderr))
}

// doListBrands lists the brand catalog in configuration order.
// Returns exit code (0 = success, 1 = error).
func doListBrands(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := appCfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Brands in %s:\n\n", configPath)
	for _, b := range appCfg.Brands {
		fmt.Fprintf(stdout, "  %s\n", b.Name)
		fmt.Fprintf(stdout, "    URL: %s\n", b.URL)
		if limit := config.GetEffectiveMaxModels(b, *appCfg); limit > 0 {
			fmt.Fprintf(stdout, "    Max Models: %d\n", limit)
		}
		if b.Skip {
			fmt.Fprintln(stdout, "    Skipped")
		}
		fmt.Fprintln(stdout)
	}
	return 0
}

// logAppConfig logs the effective configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: Brands:%d, ImageWorkers:%d, MaxReqPerHost:%d, MaxModelsPerBrand:%d",
		len(appCfg.Brands), appCfg.NumImageWorkers, appCfg.MaxRequestsPerHost, appCfg.MaxModelsPerBrand)
	log.Infof("Config: DefaultDelay:%v, BrandDelay:%v, OutputDir:%s, ReportDir:%s, StateDir:%s",
		appCfg.DefaultDelayPerHost, appCfg.BrandDelay, appCfg.OutputDir, appCfg.ReportDir, appCfg.StateDir)
	log.Infof("Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v",
		appCfg.MaxRetries, appCfg.InitialRetryDelay, appCfg.MaxRetryDelay)
	log.Infof("Config Images: Timeout:%v, MaxSize:%d bytes, MinSize:%dx%d, Resize:'%s', PerceptualDistance:%d",
		appCfg.ImageTimeout, appCfg.MaxImageSizeBytes, appCfg.MinImageWidth, appCfg.MinImageHeight,
		appCfg.ResizeDirective, appCfg.PerceptualDedupDistance)
	log.Infof("Config Ledger: Mode:%s, RespectRobots:%t", appCfg.LedgerMode, appCfg.RespectRobots)
	log.Infof("Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout)
	log.Infof("Config Output Mapping: Enabled:%t, Filename:'%s'",
		appCfg.EnableOutputMapping, appCfg.OutputMappingFilename)
}
