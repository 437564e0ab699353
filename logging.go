/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const logDate string = `2006-01-02T15:04:05.000-07:00`

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: logDate}).
		With().
		Timestamp().
		Logger()
}

// setupLogging installs the global logger. Without --verbose only warnings
// and errors are printed.
func setupLogging(cfg *Config) {
	level := zerolog.WarnLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = newLogger(os.Stderr)
}

// humanReadableSize formats a byte count for serve log lines, in SI units.
func humanReadableSize(bytes int64) string {
	const units = "kMGTPE"

	if bytes < 1000 {
		return fmt.Sprintf("%d B", bytes)
	}

	size := float64(bytes)
	i := -1
	for size >= 1000 && i < len(units)-1 {
		size /= 1000
		i++
	}

	return fmt.Sprintf("%.1f %cB", size, units[i])
}
