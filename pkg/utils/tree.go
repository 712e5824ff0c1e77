package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	indentPrefix    = "    "
	entryPrefix     = "├── "
	lastEntryPrefix = "└── "
	verticalLine    = "│   "
)

// GenerateAndSaveTreeStructure writes a text tree of targetDir to outputFilePath.
// Directories are listed before files and annotated with the number of files they hold.
func GenerateAndSaveTreeStructure(targetDir, outputFilePath string, log *logrus.Entry) error {
	if _, err := os.Stat(targetDir); os.IsNotExist(err) {
		return fmt.Errorf("target directory '%s' does not exist: %w", targetDir, err)
	} else if err != nil {
		return fmt.Errorf("error checking target directory '%s': %w", targetDir, err)
	}

	file, err := os.Create(outputFilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file '%s': %w", outputFilePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	header := fmt.Sprintf("Image tree for: %s", targetDir)
	if _, err := fmt.Fprintf(writer, "%s\n%s\n\n%s/\n", header, strings.Repeat("=", len(header)), filepath.Base(targetDir)); err != nil {
		return err
	}

	total, err := writeTreeLevel(writer, targetDir, "", log)
	if err != nil {
		log.Errorf("Error occurred during tree walk for '%s': %v", targetDir, err)
		return fmt.Errorf("error generating tree structure for '%s': %w", targetDir, err)
	}
	if _, err := fmt.Fprintf(writer, "\n%d files\n", total); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush tree file '%s': %w", outputFilePath, err)
	}
	log.Debugf("Wrote tree of %s (%d files) to %s", targetDir, total, outputFilePath)
	return nil
}

// writeTreeLevel writes the entries of dirPath and returns the number of files beneath it
func writeTreeLevel(w io.Writer, dirPath, indent string, log *logrus.Entry) (int, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		log.Warnf("Failed to read directory '%s': %v", dirPath, err)
		return 0, fmt.Errorf("failed to read directory '%s': %w", dirPath, err)
	}

	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		if a.IsDir() != b.IsDir() {
			if a.IsDir() {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})

	files := 0
	for i, entry := range entries {
		isLast := i == len(entries)-1
		connector, childIndent := entryPrefix, indent+verticalLine
		if isLast {
			connector, childIndent = lastEntryPrefix, indent+indentPrefix
		}

		if !entry.IsDir() {
			files++
			if _, err := fmt.Fprintf(w, "%s%s%s\n", indent, connector, entry.Name()); err != nil {
				return files, err
			}
			continue
		}

		// Children are rendered first so the directory line can carry their count
		var sub strings.Builder
		n, err := writeTreeLevel(&sub, filepath.Join(dirPath, entry.Name()), childIndent, log)
		if err != nil {
			return files, err
		}
		files += n
		if _, err := fmt.Fprintf(w, "%s%s%s/ (%d)\n%s", indent, connector, entry.Name(), n, sub.String()); err != nil {
			return files, err
		}
	}
	return files, nil
}
