package harvest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"car-scraper/pkg/config"
	"car-scraper/pkg/models"
	"car-scraper/pkg/utils"
)

// OutputManager owns the report files of a run: car records, the URL map,
// run metadata and the image tree.
type OutputManager struct {
	log       *logrus.Entry
	appCfg    *config.AppConfig
	reportDir string

	// TSV mapping
	mappingFile     *os.File
	mappingFileMu   sync.Mutex
	mappingFilePath string

	// JSONL car records
	jsonlFile     *os.File
	jsonlFileMu   sync.Mutex
	jsonlFilePath string
}

// NewOutputManager creates the report directory and opens the record files.
// In appendMode existing files are extended instead of truncated.
func NewOutputManager(appCfg *config.AppConfig, appendMode bool, log *logrus.Entry) (*OutputManager, error) {
	om := &OutputManager{
		log:       log.WithField("component", "output"),
		appCfg:    appCfg,
		reportDir: appCfg.ReportDir,
	}
	if err := os.MkdirAll(om.reportDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating report dir '%s': %w", utils.ErrFilesystem, om.reportDir, err)
	}

	om.jsonlFilePath = filepath.Join(om.reportDir, config.GetEffectiveCarsJSONLFilename(*appCfg))
	file, err := openOutputFile(om.jsonlFilePath, appendMode)
	if err != nil {
		return nil, err
	}
	om.jsonlFile = file
	om.log.Infof("Car records output: %s", om.jsonlFilePath)

	if appCfg.EnableOutputMapping {
		om.mappingFilePath = filepath.Join(om.reportDir, config.GetEffectiveOutputMappingFilename(*appCfg))
		file, err := openOutputFile(om.mappingFilePath, appendMode)
		if err != nil {
			om.closeJSONLFile()
			return nil, err
		}
		om.mappingFile = file
		om.log.Infof("URL-to-file mapping enabled. Output file: %s", om.mappingFilePath)
	} else {
		om.log.Debug("URL-to-file mapping is disabled.")
	}
	return om, nil
}

// openOutputFile opens path for writing, appending or truncating
func openOutputFile(path string, appendMode bool) (*os.File, error) {
	openFlags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		openFlags |= os.O_APPEND
	} else {
		openFlags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, openFlags, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening output file '%s': %w", utils.ErrFilesystem, path, err)
	}
	return file, nil
}

// RecordCar writes rec to cars.jsonl and one mapping line per accepted image
func (om *OutputManager) RecordCar(rec models.CarRecord, images []models.AcquiredImage, taskLog *logrus.Entry) {
	om.writeToJSONLFile(rec, taskLog)
	for _, img := range images {
		om.writeToMappingFile(string(img.SourceURL), img.FilePath, taskLog)
	}
}

// writeToMappingFile writes a line to the TSV mapping file (if enabled and open)
func (om *OutputManager) writeToMappingFile(imageURL, filePath string, taskLog *logrus.Entry) {
	om.mappingFileMu.Lock()
	defer om.mappingFileMu.Unlock()

	if om.mappingFile == nil {
		return
	}

	line := fmt.Sprintf("%s\t%s\n", imageURL, filePath)
	if _, err := om.mappingFile.WriteString(line); err != nil {
		taskLog.WithFields(logrus.Fields{
			"tsv_mapping_file": om.mappingFilePath,
			"line_content":     strings.TrimSpace(line),
		}).Errorf("Failed to write to TSV mapping file: %v", err)
	}
}

// writeToJSONLFile writes a car record to the JSONL output file
func (om *OutputManager) writeToJSONLFile(rec models.CarRecord, taskLog *logrus.Entry) {
	om.jsonlFileMu.Lock()
	defer om.jsonlFileMu.Unlock()

	if om.jsonlFile == nil {
		return
	}

	jsonBytes, err := json.Marshal(rec)
	if err != nil {
		taskLog.WithField("jsonl_file", om.jsonlFilePath).Errorf("Failed to marshal car record to JSON: %v", err)
		return
	}

	if _, err := om.jsonlFile.Write(append(jsonBytes, '\n')); err != nil {
		taskLog.WithField("jsonl_file", om.jsonlFilePath).Errorf("Failed to write to JSONL file: %v", err)
	}
}

// Close syncs and closes the record files, then writes the run metadata and
// the image tree. Tree failures are logged only.
func (om *OutputManager) Close(meta *models.RunMetadata) error {
	om.closeMappingFile()
	om.closeJSONLFile()

	if err := om.writeMetadataYAML(meta); err != nil {
		return err
	}

	treePath := filepath.Join(om.reportDir, config.GetEffectiveTreeFilename(*om.appCfg))
	if _, err := os.Stat(om.appCfg.OutputDir); err == nil {
		if err := utils.GenerateAndSaveTreeStructure(om.appCfg.OutputDir, treePath, om.log); err != nil {
			om.log.Warnf("Could not write image tree: %v", err)
		}
	}
	return nil
}

// closeMappingFile closes the TSV mapping file, if it was opened
func (om *OutputManager) closeMappingFile() {
	om.mappingFileMu.Lock()
	defer om.mappingFileMu.Unlock()

	if om.mappingFile != nil {
		if err := om.mappingFile.Sync(); err != nil {
			om.log.Errorf("Error syncing TSV mapping file '%s': %v", om.mappingFilePath, err)
		}
		if err := om.mappingFile.Close(); err != nil {
			om.log.Errorf("Error closing TSV mapping file '%s': %v", om.mappingFilePath, err)
		}
		om.mappingFile = nil
	}
}

// closeJSONLFile closes the JSONL output file, if it was opened
func (om *OutputManager) closeJSONLFile() {
	om.jsonlFileMu.Lock()
	defer om.jsonlFileMu.Unlock()

	if om.jsonlFile != nil {
		if err := om.jsonlFile.Sync(); err != nil {
			om.log.Errorf("Error syncing JSONL file '%s': %v", om.jsonlFilePath, err)
		}
		if err := om.jsonlFile.Close(); err != nil {
			om.log.Errorf("Error closing JSONL file '%s': %v", om.jsonlFilePath, err)
		}
		om.jsonlFile = nil
	}
}

// writeMetadataYAML writes the run summary to run_metadata.yaml
func (om *OutputManager) writeMetadataYAML(meta *models.RunMetadata) error {
	if meta == nil {
		return nil
	}
	yamlFilePath := filepath.Join(om.reportDir, config.GetEffectiveMetadataYAMLFilename(*om.appCfg))

	yamlData, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal run metadata to YAML: %w", err)
	}
	if err := os.WriteFile(yamlFilePath, yamlData, 0644); err != nil {
		return fmt.Errorf("%w: writing metadata YAML file '%s': %w", utils.ErrFilesystem, yamlFilePath, err)
	}

	om.log.Infof("Wrote run metadata (%d models, %d images) to %s", meta.TotalModels, meta.TotalImages, yamlFilePath)
	return nil
}
