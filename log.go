package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

// logConfig is read from the environment before flags are parsed.
type logConfig struct {
	Stderr bool   `env:"CAPTION_VOICE_LOG_STDERR"`
	Level  string `env:"CAPTION_VOICE_LOG_LEVEL" envDefault:"info"`
}

func cacheDir() (string, error) {
	return gap.NewScope(gap.User, appName).CacheDir()
}

func getLogFilePath() (string, error) {
	dir, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName+".log"), nil
}

func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	cfg, err := env.ParseAs[logConfig]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log config: %w", err)
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	if cfg.Stderr {
		log.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}

	// Log to file, if set
	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, err
	}
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	return f.Close, nil
}
