// Package logging routes the standard logger to the console and a
// size-rotated file under the configured log directory.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup tees log output to stderr and logs/<app>_<YYYYMMDD>.log, rotated at
// 10 MB with 5 backups kept.
func Setup(appName, directory string) error {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.log", appName, time.Now().Format("20060102"))
	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(directory, filename),
		MaxSize:    10, // megabytes
		MaxBackups: 5,
	}

	log.SetOutput(io.MultiWriter(os.Stderr, rotated))
	log.SetFlags(log.LstdFlags | log.LUTC)
	return nil
}
