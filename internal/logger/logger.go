/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package logger holds the process-wide structured logger.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, encoding and destinations.
type Config struct {
	Level      string   `mapstructure:"level" yaml:"level"`   // debug/info/warn/error
	Format     string   `mapstructure:"format" yaml:"format"` // text/json
	Outputs    []string `mapstructure:"outputs" yaml:"outputs"`
	MaxSizeMB  int      `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int      `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int      `mapstructure:"max_age_days" yaml:"max_age_days"`
}

var (
	globalLogger atomic.Pointer[slog.Logger]
	mu           sync.Mutex
	closers      []io.Closer
)

// Init replaces the global logger. Outputs are "stdout", "stderr" or file
// paths; files are rotated with lumberjack.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	var writers []io.Writer
	var opened []io.Closer
	for _, output := range cfg.Outputs {
		switch output {
		case "", "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if dir := filepath.Dir(output); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create log directory %s: %w", dir, err)
				}
			}
			w := &lumberjack.Logger{
				Filename:   output,
				MaxSize:    orDefault(cfg.MaxSizeMB, 100),
				MaxBackups: orDefault(cfg.MaxBackups, 3),
				MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			}
			writers = append(writers, w)
			opened = append(opened, w)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	out := io.MultiWriter(writers...)

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	previous := closers
	closers = opened
	globalLogger.Store(slog.New(handler))

	for _, c := range previous {
		_ = c.Close()
	}
	return nil
}

// Close flushes and closes any rotating log files.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	var errs []error
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	closers = nil
	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns the global logger, or slog.Default before Init.
func Logger() *slog.Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// SetLogger installs l as the global logger. Tests use it to capture output.
func SetLogger(l *slog.Logger) {
	globalLogger.Store(l)
}

func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
