package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultLogFileName returns car_scraping_<YYYYMMDD>.log for the given day
func DefaultLogFileName(now time.Time) string {
	return fmt.Sprintf("car_scraping_%s.log", now.Format("20060102"))
}

// NewLogger builds the application logger writing to stderr and, when logFile
// is non-empty, appending to that file as well. The returned closer releases
// the file and is safe to call when no file was opened.
func NewLogger(levelStr, logFile string, stderr io.Writer) (*logrus.Logger, func() error, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	logger.SetOutput(stderr)

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		logger.Warnf("Invalid log level '%s', using 'info'. Error: %v", levelStr, err)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	noop := func() error { return nil }
	if logFile == "" {
		return logger, noop, nil
	}

	if dir := filepath.Dir(logFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return logger, noop, fmt.Errorf("create log dir '%s': %w", dir, err)
		}
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return logger, noop, fmt.Errorf("open log file '%s': %w", logFile, err)
	}
	logger.SetOutput(io.MultiWriter(stderr, f))
	return logger, f.Close, nil
}
