// Package logging builds the zap logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const filePrefix = "docdesk-"

// New returns a JSON logger at level writing to w.
func New(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(zapcore.AddSync(w)), lvl)
	return zap.New(core, zap.AddCaller()), nil
}

// Open returns a logger writing to a fresh file under dir, or to stderr when
// dir is empty. The returned closer flushes and closes the file.
func Open(level, dir string, maxFiles int, now time.Time) (*zap.Logger, func(), error) {
	if dir == "" {
		log, err := New(level, os.Stderr)
		if err != nil {
			return nil, nil, err
		}
		return log, func() { _ = log.Sync() }, nil
	}
	f, err := SetupLogFile(dir, maxFiles, now)
	if err != nil {
		return nil, nil, err
	}
	log, err := New(level, f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return log, func() {
		_ = log.Sync()
		_ = f.Close()
	}, nil
}

// SetupLogFile creates a timestamped log file and keeps only the newest maxFiles.
func SetupLogFile(dir string, maxFiles int, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	name := filepath.Join(dir, filePrefix+now.Format("2006-01-02T15-04-05.000")+".log")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	if err := prune(dir, maxFiles); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to clean up old logs: %v\n", err)
	}
	return f, nil
}

func prune(dir string, maxFiles int) error {
	if maxFiles < 1 {
		maxFiles = 1
	}
	files, err := filepath.Glob(filepath.Join(dir, filePrefix+"*.log"))
	if err != nil {
		return err
	}
	if len(files) <= maxFiles {
		return nil
	}
	// names sort chronologically
	sort.Strings(files)
	for _, f := range files[:len(files)-maxFiles] {
		if err := os.Remove(f); err != nil {
			return fmt.Errorf("remove %s: %w", f, err)
		}
	}
	return nil
}
