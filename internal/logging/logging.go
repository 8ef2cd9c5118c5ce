// internal/logging/logging.go
// Package logging routes the standard logger to stdout plus an optional run
// log file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	mu      sync.Mutex
	logFile *os.File
)

// Init points the standard logger at stdout and, when logPath is non-empty,
// at an append-only log file as well.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writers []io.Writer
	writers = append(writers, os.Stdout)

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// Close releases the log file and restores the standard logger to stderr.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

// LogEvent writes a formatted line through the configured writers.
func LogEvent(format string, args ...any) {
	log.Printf(format, args...)
}

// LogRequest records one backend exchange. direction is "send" or "recv";
// payload is the raw JSON body.
func LogRequest(direction, endpoint string, payload []byte) {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	if dir == "" {
		dir = "SEND"
	}
	body := strings.TrimSpace(string(payload))
	if body == "" {
		body = "{}"
	}
	log.Println(fmt.Sprintf("[%s] endpoint=%s payload=%s", dir, endpoint, body))
}
